package domain

import (
	"fmt"
	"time"
)

// Chunk represents a contiguous, bounded segment of a document's text.
// StartIndex/EndIndex are word-index bounds within the normalized source
// text, not character offsets. A chunk is either fully embedded (Embedding,
// EmbeddingModel and EmbeddedAt all set) or not embedded at all.
type Chunk struct {
	ID             string
	DocumentID     string
	ChunkNumber    int
	Text           string
	StartIndex     int
	EndIndex       int
	TokenCount     int
	PageNumber     *int
	Embedding      []float32
	EmbeddingModel string
	EmbeddedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsEmbedded reports whether the chunk carries a usable embedding.
func (c *Chunk) IsEmbedded() bool {
	return len(c.Embedding) > 0 && c.EmbeddingModel != "" && c.EmbeddedAt != nil
}

// SetEmbedding attaches the complete embedding triple to the chunk.
func (c *Chunk) SetEmbedding(embedding []float32, model string, at time.Time) {
	c.Embedding = embedding
	c.EmbeddingModel = model
	c.EmbeddedAt = &at
	c.UpdatedAt = at
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.DocumentID == "" {
		return fmt.Errorf("chunk DocumentID is required")
	}

	if c.Text == "" {
		return fmt.Errorf("chunk Text is required")
	}

	if c.ChunkNumber < 0 {
		return fmt.Errorf("chunk ChunkNumber cannot be negative")
	}

	if c.StartIndex >= c.EndIndex {
		return fmt.Errorf("chunk StartIndex must be less than EndIndex")
	}

	if c.TokenCount <= 0 {
		return fmt.Errorf("chunk TokenCount must be positive")
	}

	// Partial triples are never valid: embedding metadata travels together.
	hasVector := len(c.Embedding) > 0
	hasModel := c.EmbeddingModel != ""
	hasTime := c.EmbeddedAt != nil
	if hasVector != hasModel || hasVector != hasTime {
		return fmt.Errorf("chunk embedding fields must be set together")
	}

	return nil
}
