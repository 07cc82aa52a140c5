package history

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store manages session and turn persistence with a PostgreSQL backend.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store. logger may be nil.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// AppendExchange appends the user turn and the assistant turn of one
// completed request as a unit. Either both turns become visible or neither
// does.
//
// The session row is created on first use and locked with
// SELECT ... FOR UPDATE for the duration of the transaction, so concurrent
// appends to one session serialize and sequence numbers stay dense and
// monotonic. Failures are wrapped in ErrStoreUnavailable.
func (s *Store) AppendExchange(ctx context.Context, sessionID, userText, assistantText string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID must not be empty")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: beginning transaction: %w", ErrStoreUnavailable, err)
	}
	// Rollback after commit is a no-op; log anything else for debugging.
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && rbErr != pgx.ErrTxClosed {
			s.logger.Debug("transaction rollback", "error", rbErr)
		}
	}()

	// Ensure the session row exists, then lock it.
	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions (id, created_at, updated_at, turn_count)
		VALUES ($1, now(), now(), 0)
		ON CONFLICT (id) DO NOTHING`,
		sessionID); err != nil {
		return fmt.Errorf("%w: ensuring session %q: %w", ErrStoreUnavailable, sessionID, err)
	}

	var maxSeq int32
	if err := tx.QueryRow(ctx, `
		SELECT turn_count FROM sessions WHERE id = $1 FOR UPDATE`,
		sessionID).Scan(&maxSeq); err != nil {
		return fmt.Errorf("%w: locking session %q: %w", ErrStoreUnavailable, sessionID, err)
	}

	turns := []struct {
		role string
		text string
	}{
		{RoleUser, userText},
		{RoleAssistant, assistantText},
	}
	for i, t := range turns {
		if _, err := tx.Exec(ctx, `
			INSERT INTO turns (id, session_id, role, content, seq, created_at)
			VALUES ($1, $2, $3, $4, $5, now())`,
			uuid.New(), sessionID, t.role, t.text, maxSeq+int32(i)+1); err != nil {
			return fmt.Errorf("%w: inserting %s turn: %w", ErrStoreUnavailable, t.role, err)
		}
	}

	if _, err := tx.Exec(ctx, `
		UPDATE sessions SET turn_count = $1, updated_at = now() WHERE id = $2`,
		maxSeq+2, sessionID); err != nil {
		return fmt.Errorf("%w: updating session %q: %w", ErrStoreUnavailable, sessionID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: committing exchange: %w", ErrStoreUnavailable, err)
	}

	s.logger.Debug("appended exchange", "session_id", sessionID, "seq", maxSeq+2)
	return nil
}

// Recent returns up to maxTurns of the most recent turns for a session, in
// chronological (ascending sequence) order. An unknown session yields an
// empty slice, not an error.
func (s *Store) Recent(ctx context.Context, sessionID string, maxTurns int) ([]Turn, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID must not be empty")
	}
	if maxTurns <= 0 {
		return nil, fmt.Errorf("maxTurns must be positive, got %d", maxTurns)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, session_id, role, content, seq, created_at
		FROM (
			SELECT id, session_id, role, content, seq, created_at
			FROM turns
			WHERE session_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq ASC`,
		sessionID, maxTurns)
	if err != nil {
		return nil, fmt.Errorf("%w: loading turns for %q: %w", ErrStoreUnavailable, sessionID, err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Text, &t.Seq, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("%w: scanning turn row: %w", ErrStoreUnavailable, err)
		}
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading turn rows: %w", ErrStoreUnavailable, err)
	}

	s.logger.Debug("loaded history", "session_id", sessionID, "count", len(turns))
	return turns, nil
}

// TurnCount returns the number of turns stored for a session.
func (s *Store) TurnCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM turns WHERE session_id = $1`, sessionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("%w: counting turns for %q: %w", ErrStoreUnavailable, sessionID, err)
	}
	return count, nil
}
