package models

// ContentMatch is a library content search hit: one chunk of one document.
type ContentMatch struct {
	FilePath   string  `json:"file_path"`
	FileName   string  `json:"file_name"`
	Content    string  `json:"content"`
	ChunkIndex int     `json:"chunk_index"`
	ChunkCount int     `json:"chunk_count"`
	Score      float64 `json:"score"`
}
