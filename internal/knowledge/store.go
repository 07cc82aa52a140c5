package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// searchTimeout bounds a single embed+search round trip so a slow vector
// backend cannot stall the request pipeline past the degrade decision.
const searchTimeout = 10 * time.Second

// Store implements Retriever on PostgreSQL + pgvector. Query embeddings are
// generated through the configured embedder; chunk embeddings are written
// once at ingestion and never mutated afterwards.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool     *pgxpool.Pool
	embedder ai.Embedder
	logger   *slog.Logger
}

// NewStore creates a Store. logger may be nil.
func NewStore(pool *pgxpool.Pool, embedder ai.Embedder, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, embedder: embedder, logger: logger}
}

// Retrieve implements Retriever.
//
// Results are ordered by ascending cosine distance with chunk ID as the tie
// break, done in SQL so the ordering is stable across calls. Any backend or
// embedder failure is wrapped in ErrRetrievalUnavailable.
func (s *Store) Retrieve(ctx context.Context, query string, topK int) ([]Scored, error) {
	if query == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	if topK <= 0 {
		return nil, fmt.Errorf("topK must be positive, got %d", topK)
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	embedding, err := s.embedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embedding query: %w", ErrRetrievalUnavailable, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, content, source, metadata, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM knowledge_chunks
		ORDER BY embedding <=> $1, id
		LIMIT $2`,
		embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: searching chunks: %w", ErrRetrievalUnavailable, err)
	}
	defer rows.Close()

	var results []Scored
	for rows.Next() {
		var (
			c            Chunk
			metadataJSON []byte
			score        float64
		)
		if err := rows.Scan(&c.ID, &c.Text, &c.Source, &metadataJSON, &c.CreateAt, &score); err != nil {
			return nil, fmt.Errorf("%w: scanning chunk row: %w", ErrRetrievalUnavailable, err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &c.Metadata); err != nil {
				s.logger.Warn("unparseable chunk metadata", "chunk_id", c.ID, "error", err)
				c.Metadata = map[string]string{}
			}
		}
		results = append(results, Scored{Chunk: c, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading chunk rows: %w", ErrRetrievalUnavailable, err)
	}

	s.logger.Debug("retrieved chunks", "query_len", len(query), "top_k", topK, "count", len(results))
	return results, nil
}

// Add embeds and upserts a chunk. Used by ingestion tooling and tests; the
// request pipeline itself never writes knowledge.
func (s *Store) Add(ctx context.Context, chunk Chunk) error {
	if chunk.ID == "" {
		return fmt.Errorf("chunk ID must not be empty")
	}

	embedding, err := s.embedQuery(ctx, chunk.Text)
	if err != nil {
		return fmt.Errorf("embedding chunk %q: %w", chunk.ID, err)
	}

	metadataJSON, err := json.Marshal(chunk.Metadata)
	if err != nil {
		return fmt.Errorf("marshaling metadata for chunk %q: %w", chunk.ID, err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO knowledge_chunks (id, content, source, metadata, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (id) DO UPDATE
		SET content = EXCLUDED.content,
		    source = EXCLUDED.source,
		    metadata = EXCLUDED.metadata,
		    embedding = EXCLUDED.embedding`,
		chunk.ID, chunk.Text, chunk.Source, metadataJSON, embedding)
	if err != nil {
		return fmt.Errorf("upserting chunk %q: %w", chunk.ID, err)
	}

	s.logger.Debug("added chunk", "id", chunk.ID, "content_length", len(chunk.Text))
	return nil
}

// embedQuery generates a single embedding vector for text.
func (s *Store) embedQuery(ctx context.Context, text string) (pgvector.Vector, error) {
	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{
		Input: []*ai.Document{
			{Content: []*ai.Part{ai.NewTextPart(text)}},
		},
	})
	if err != nil {
		return pgvector.Vector{}, err
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding returned")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}
