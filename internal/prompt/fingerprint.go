package prompt

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Params are the generation parameters that, together with the assembled
// prompt text, determine the completion. They are part of the cache key:
// the same prompt at a different temperature is a different request.
type Params struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Key is the hex-encoded fingerprint of (prompt text, generation
// parameters) used as the response-cache key.
type Key string

// Fingerprint derives the cache key for an assembled prompt.
//
// The digest covers the exact prompt bytes plus each parameter, with NUL
// separators so field boundaries cannot alias ("ab"+"c" vs "a"+"bc"). No
// whitespace or case normalization is applied: the assembler is already
// deterministic, and normalizing would alias prompts that produce different
// completions.
func Fingerprint(text string, p Params) Key {
	h := sha256.New()
	h.Write([]byte(p.Model))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatFloat(float64(p.Temperature), 'g', -1, 32)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(p.MaxTokens)))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return Key(hex.EncodeToString(h.Sum(nil)))
}
