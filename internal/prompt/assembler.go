// Package prompt assembles bounded prompts from retrieved knowledge and
// conversation history, and derives the cache fingerprint for the result.
//
// Assembly is a pure function of its inputs: no clock, no randomness, no
// hidden state. The response cache keys on the assembled text, so two
// identical requests must produce byte-identical prompts.
package prompt

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ragline/ragline/internal/history"
	"github.com/ragline/ragline/internal/knowledge"
)

// ErrMessageTooLarge indicates the new user message alone exceeds the
// context budget. User-facing: the request is rejected rather than the
// message silently truncated.
var ErrMessageTooLarge = errors.New("message exceeds context budget")

// preamble is the static system instruction heading every prompt. Constant
// overhead, excluded from the budget accounting.
const preamble = `You are a helpful assistant. Answer the user's message using the context passages and the conversation so far. If the context does not contain the answer, say so plainly instead of guessing.`

// Budget bounds assembly. The unit is runes: a tokenizer would tie the
// assembler to one model family and add a dependency, while rune counts
// keep it pure and model-agnostic.
type Budget struct {
	// Total is the rune budget shared by the message, retrieved chunks
	// and history. Section labels and the preamble are constant overhead
	// outside the budget.
	Total int

	// ChunkCap truncates any single retrieved chunk that alone exceeds it.
	ChunkCap int
}

// Context is an assembled prompt plus a record of what went into it, for
// observability and tests.
type Context struct {
	// Text is the full prompt handed to the completion client.
	Text string

	// ChunkIDs lists the retrieved chunks actually included, in prompt
	// order.
	ChunkIDs []string

	// TurnsIncluded is how many history turns made it into the prompt.
	TurnsIncluded int

	// Size is the rune count charged against Budget.Total.
	Size int
}

// Assemble builds the prompt in fixed section order: preamble, retrieved
// chunks (in the order given, individually capped), recent history (newest
// kept, oldest dropped), then the new user message.
//
// The message is never truncated; if it alone exceeds the budget, Assemble
// fails with ErrMessageTooLarge before any downstream work happens.
// Retrieved context is charged against the budget before history: relevance
// to the current question outweighs older conversation, so when space runs
// out it is history that gets dropped first. That priority is a deliberate
// policy, relied on by the truncation tests.
func Assemble(retrieval []knowledge.Scored, hist []history.Turn, message string, b Budget) (Context, error) {
	if message == "" {
		return Context{}, fmt.Errorf("message must not be empty")
	}
	if b.Total <= 0 || b.ChunkCap <= 0 {
		return Context{}, fmt.Errorf("budget and chunk cap must be positive, got %+v", b)
	}

	msgSize := utf8.RuneCountInString(message)
	if msgSize > b.Total {
		return Context{}, fmt.Errorf("%w: message is %d runes, budget is %d",
			ErrMessageTooLarge, msgSize, b.Total)
	}
	remaining := b.Total - msgSize

	// Retrieved chunks, in the order the retriever ranked them. A chunk
	// over the per-chunk cap is truncated, not skipped; the first chunk
	// that no longer fits the remaining budget ends the section.
	var (
		chunkTexts []string
		chunkIDs   []string
	)
	for _, sc := range retrieval {
		text := truncateRunes(sc.Chunk.Text, b.ChunkCap)
		size := utf8.RuneCountInString(text)
		if size > remaining {
			break
		}
		chunkTexts = append(chunkTexts, fmt.Sprintf("[%s] %s", sc.Chunk.ID, text))
		chunkIDs = append(chunkIDs, sc.Chunk.ID)
		remaining -= size
	}

	// History, newest backward until the budget is exhausted, then
	// restored to chronological order.
	var kept []history.Turn
	for i := len(hist) - 1; i >= 0; i-- {
		size := utf8.RuneCountInString(hist[i].Text)
		if size > remaining {
			break
		}
		kept = append(kept, hist[i])
		remaining -= size
	}
	// kept is newest-first; render oldest-first.
	var historyLines []string
	for i := len(kept) - 1; i >= 0; i-- {
		historyLines = append(historyLines, kept[i].Role+": "+kept[i].Text)
	}

	var sb strings.Builder
	sb.WriteString(preamble)
	if len(chunkTexts) > 0 {
		sb.WriteString("\n\nContext:\n")
		sb.WriteString(strings.Join(chunkTexts, "\n"))
	}
	if len(historyLines) > 0 {
		sb.WriteString("\n\nConversation:\n")
		sb.WriteString(strings.Join(historyLines, "\n"))
	}
	sb.WriteString("\n\nuser: ")
	sb.WriteString(message)

	return Context{
		Text:          sb.String(),
		ChunkIDs:      chunkIDs,
		TurnsIncluded: len(kept),
		Size:          b.Total - remaining,
	}, nil
}

// truncateRunes returns s cut to at most limit runes.
func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
