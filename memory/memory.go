package memory

import (
	"context"
)

// VectorDocument is a single document submitted to the vector tier.
// Identity is the generated ID; many documents share one crew.
type VectorDocument struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// VectorMatch is a similarity search hit.
type VectorMatch struct {
	ID         string
	Content    string
	Metadata   map[string]string
	Similarity float32
}

// VectorStore is the capability the Coordinator drives for semantic recall.
// Implementations: chromem.Store (local), anything else that can add, query,
// count and persist documents.
//
// Implementations must be safe for concurrent use.
type VectorStore interface {
	// Name returns the collection name.
	Name() string

	// Add stores one document. The implementation embeds Content itself.
	Add(ctx context.Context, doc VectorDocument) error

	// Query returns up to limit documents most similar to text, restricted to
	// documents whose metadata matches every key in where.
	// Results are sorted by similarity (highest first).
	Query(ctx context.Context, text string, where map[string]string, limit int) ([]VectorMatch, error)

	// Count returns the number of documents in the collection.
	Count(ctx context.Context) (int, error)

	// Persist flushes the collection to stable storage.
	Persist(ctx context.Context) error

	// Close releases resources.
	Close() error
}

// VectorOpener opens (or creates) the configured collection.
// It is the "open" half of the vector capability.
type VectorOpener func(ctx context.Context, cfg VectorDBConfig) (VectorStore, error)

// Embedder converts text to vector embeddings.
// Implementations: hashed.Embedder (offline), onnx.Embedder (local model).
//
// Note: Embedder is an implementation detail of a VectorStore.
// The Coordinator does not interact with Embedder directly.
type Embedder interface {
	// Embed converts a single text to embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns embedding vector size.
	Dimensions() int
}

// Mirror receives a copy of every crew file during synchronization.
type Mirror interface {
	Upload(ctx context.Context, crew string, data []byte) error
}
