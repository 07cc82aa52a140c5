// Package knowledge provides vector retrieval over pre-embedded knowledge
// chunks backed by PostgreSQL + pgvector.
//
// The engine consumes the Retriever interface; Store is the production
// implementation. Retrieval failures are reported as ErrRetrievalUnavailable
// so callers can degrade to history-only context instead of failing the
// request.
package knowledge

import (
	"context"
	"errors"
	"time"
)

// ErrRetrievalUnavailable indicates the vector backend (or the embedder in
// front of it) could not be reached or timed out. Recoverable: the caller
// should proceed with an empty retrieval result.
var ErrRetrievalUnavailable = errors.New("retrieval unavailable")

// Chunk is a unit of pre-embedded knowledge. Read-only from the engine's
// perspective; the embedding itself never leaves this package.
type Chunk struct {
	ID       string
	Text     string
	Source   string
	Metadata map[string]string
	CreateAt time.Time
}

// Scored pairs a chunk with its similarity to the query, in [0, 1] for
// cosine similarity.
type Scored struct {
	Chunk Chunk
	Score float64
}

// Retriever returns the topK most relevant chunks for a query, highest
// similarity first. Ties are broken by ascending chunk ID so equal inputs
// always produce identical output order (the response cache key depends on
// it). The result may be empty; it is never longer than topK.
type Retriever interface {
	Retrieve(ctx context.Context, query string, topK int) ([]Scored, error)
}
