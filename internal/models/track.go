package models

// Track is a media catalog entry. The embedding for a track is built from its
// textual descriptor (artist, title, optional characteristics), not from audio.
type Track struct {
	ID              string  `json:"id"`
	Artist          string  `json:"artist"`
	Title           string  `json:"title"`
	Album           string  `json:"album,omitempty"`
	Duration        string  `json:"duration,omitempty"`
	Characteristics string  `json:"characteristics,omitempty"`
	Score           float64 `json:"score,omitempty"`
}
