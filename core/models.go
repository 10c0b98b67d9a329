package core

import (
	"encoding/binary"

	"github.com/go-crypt/x/blake2b"
)

// EmbeddingDimensions is the vector length produced by the default embedding model
// (text-embedding-3-small). Every stored row carries a vector of this length.
const EmbeddingDimensions = 1536

// ID is a fixed-width identifier derived from content.
type ID uint64

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// This ensures that identical content produces identical IDs.
func IDFromContent(text string) ID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	return ID(binary.LittleEndian.Uint64(sum))
}

// ConversationRecord is one node of a conversation export. Its shape is not
// guaranteed: the text lives under message.content.parts when
// message.content.content_type is "text", and any of those keys may be missing.
type ConversationRecord map[string]any

// Conversation is a single conversation from a conversations.json export.
type Conversation struct {
	ID             string                        `json:"id"`
	ConversationID string                        `json:"conversation_id"`
	Title          string                        `json:"title"`
	CreateTime     float64                       `json:"create_time"`
	UpdateTime     float64                       `json:"update_time"`
	Mapping        map[string]ConversationRecord `json:"mapping"`
}

// ChatID returns the identifier rows from this conversation are stored under.
// Older exports only carry "id", newer ones also carry "conversation_id".
func (c *Conversation) ChatID() string {
	if c.ID != "" {
		return c.ID
	}
	return c.ConversationID
}

// Chunk is a single piece of text extracted from a conversation record.
type Chunk struct {
	ChatID string
	Text   string
}

// Vector is an embedding vector.
type Vector []float32

// ZeroVector returns the all-zero vector that stands in for a failed embedding.
func ZeroVector(dim int) Vector {
	return make(Vector, dim)
}

// IsZero reports whether every component of v is zero.
func (v Vector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// IndexRow is one row of the index table.
type IndexRow struct {
	ChatID     string
	Text       string
	Embeddings Vector
}

// IndexTable is an ordered collection of index rows. Row order is insertion order.
type IndexTable []IndexRow

// RankedResult is a row that survived ranking, with its dot-product score.
type RankedResult struct {
	ChatID string
	Text   string
	Score  float64
}
