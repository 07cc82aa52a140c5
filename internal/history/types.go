// Package history persists ordered conversation turns per session in
// PostgreSQL.
//
// Turns are immutable once written. A request's user/assistant exchange is
// appended as a pair inside one transaction that locks the session row, so
// sequence numbers are assigned without gaps or interleaving even when the
// store is shared by multiple processes.
package history

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role constants for Turn.Role.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ErrStoreUnavailable indicates the history backend could not be reached or
// the write failed. The answer pipeline treats an append failure as
// non-fatal but must log it: the next request in the session will not see
// this exchange.
var ErrStoreUnavailable = errors.New("history store unavailable")

// Turn is one message in a conversation. Immutable once created.
type Turn struct {
	ID        uuid.UUID
	SessionID string
	Role      string // RoleUser or RoleAssistant
	Text      string
	Seq       int32
	CreatedAt time.Time
}
