// Package chunker splits long text into overlapping character windows for embedding.
package chunker

const (
	// DefaultChunkSize is the window size in characters.
	DefaultChunkSize = 1000
	// DefaultChunkOverlap is the overlap between consecutive windows.
	DefaultChunkOverlap = 200
)

// Chunker splits text into overlapping fixed-size character windows, preferring
// to end each window at a sentence terminator or paragraph break.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// New creates a chunker with the given size and overlap (in characters).
// Non-positive size falls back to the default; overlap is clamped below size.
func New(chunkSize, chunkOverlap int) *Chunker {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = 0
	}
	if chunkOverlap >= chunkSize {
		chunkOverlap = chunkSize / 2
	}
	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}
}

// Chunk splits text into windows of at most chunkSize characters. Sizes are
// counted in runes, never bytes, so multi-byte text is never cut mid-character.
// A window that does not reach the end of the text is shortened to the last
// sentence terminator or newline past the window midpoint, when one exists;
// the next window starts overlap characters before the adjusted end. The
// window that reaches the end of the text is the final chunk.
func (c *Chunker) Chunk(text string) []string {
	if text == "" {
		return nil
	}
	runes := []rune(text)
	if len(runes) <= c.chunkSize {
		return []string{text}
	}

	var chunks []string
	pos := 0
	for pos < len(runes) {
		end := pos + c.chunkSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[pos:]))
			break
		}
		if bp := boundary(runes[pos:end]); bp > c.chunkSize/2 {
			end = pos + bp + 1
		}
		chunks = append(chunks, string(runes[pos:end]))
		next := end - c.chunkOverlap
		if next <= pos {
			next = pos + 1
		}
		pos = next
	}
	return chunks
}

// boundary returns the index of the last sentence terminator or newline in
// window, or -1 when none exists.
func boundary(window []rune) int {
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == '.' || window[i] == '\n' {
			return i
		}
	}
	return -1
}
