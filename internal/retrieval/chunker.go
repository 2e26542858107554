package retrieval

import (
	"errors"
	"strings"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

var ErrInvalidChunkConfig = errors.New("chunk overlap must be in [0, chunk size)")

// Page is the extracted text of one PDF page.
type Page struct {
	DocumentID   uint
	DocumentName string
	Number       int
	Text         string
}

// Chunk is a window of page text. ID is the chunk's position in the corpus-wide
// insertion order and doubles as the ranking tie-breaker.
type Chunk struct {
	ID           int    `json:"id"`
	DocumentID   uint   `json:"document_id"`
	DocumentName string `json:"document_name"`
	Page         int    `json:"page"`
	Position     int    `json:"position"`
	Offset       int    `json:"offset"`
	Text         string `json:"text"`
}

type ChunkConfig struct {
	Size    int
	Overlap int
}

func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{Size: DefaultChunkSize, Overlap: DefaultChunkOverlap}
}

func (c ChunkConfig) Validate() error {
	if c.Size <= 0 || c.Overlap < 0 || c.Overlap >= c.Size {
		return ErrInvalidChunkConfig
	}
	return nil
}

// ChunkPages slides a window of cfg.Size runes over every page, advancing by
// cfg.Size-cfg.Overlap. Chunks never span pages and the trailing partial window
// of each page is kept.
func ChunkPages(pages []Page, cfg ChunkConfig) ([]Chunk, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	chunks := make([]Chunk, 0)
	step := cfg.Size - cfg.Overlap
	for _, page := range pages {
		if strings.TrimSpace(page.Text) == "" {
			continue
		}
		runes := []rune(page.Text)
		for start, pos := 0, 0; start < len(runes); start, pos = start+step, pos+1 {
			end := start + cfg.Size
			if end > len(runes) {
				end = len(runes)
			}
			chunks = append(chunks, Chunk{
				ID:           len(chunks),
				DocumentID:   page.DocumentID,
				DocumentName: page.DocumentName,
				Page:         page.Number,
				Position:     pos,
				Offset:       start,
				Text:         string(runes[start:end]),
			})
			if end == len(runes) {
				break
			}
		}
	}
	return chunks, nil
}
