package testutil

import (
	"context"
	"strings"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// MockModelName is the model name the mock registers under.
const MockModelName = "mock/test-model"

// MockLLM provides deterministic completions for tests. It matches the
// prompt text against registered substrings and returns the paired
// response, and can be told to fail a number of calls first to exercise
// retry paths.
//
// Safe for concurrent use.
type MockLLM struct {
	mu        sync.Mutex
	rules     []mockRule
	fallback  string
	failTimes int
	failErr   error
	calls     []MockCall
}

type mockRule struct {
	pattern  string
	response string
}

// MockCall records one call to the mock model.
type MockCall struct {
	Prompt   string
	Response string
}

// NewMockLLM creates a mock model returning fallback when no rule matches.
func NewMockLLM(fallback string) *MockLLM {
	return &MockLLM{fallback: fallback}
}

// AddResponse registers a substring-response pair, checked in
// registration order. Matching is case-insensitive.
func (m *MockLLM) AddResponse(pattern, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{
		pattern:  strings.ToLower(pattern),
		response: response,
	})
}

// FailTimes makes the next n calls return err before responses resume.
func (m *MockLLM) FailTimes(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failTimes = n
	m.failErr = err
}

// Calls returns a copy of all recorded calls.
func (m *MockLLM) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]MockCall, len(m.calls))
	copy(cp, m.calls)
	return cp
}

// CallCount returns how many times the model was invoked, including
// injected failures.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Register registers the mock as a Genkit model under MockModelName.
func (m *MockLLM) Register(g *genkit.Genkit) ai.Model {
	return genkit.DefineModel(g, MockModelName, &ai.ModelOptions{
		Label: "Mock Test Model",
		Supports: &ai.ModelSupports{
			Multiturn:  true,
			SystemRole: true,
		},
	}, m.generate)
}

func (m *MockLLM) generate(_ context.Context, req *ai.ModelRequest, _ ai.ModelStreamCallback) (*ai.ModelResponse, error) {
	var promptText string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == ai.RoleUser {
			promptText = req.Messages[i].Text()
			break
		}
	}

	m.mu.Lock()
	if m.failTimes > 0 {
		m.failTimes--
		err := m.failErr
		m.calls = append(m.calls, MockCall{Prompt: promptText})
		m.mu.Unlock()
		return nil, err
	}

	responseText := m.fallback
	lower := strings.ToLower(promptText)
	for i := range m.rules {
		if strings.Contains(lower, m.rules[i].pattern) {
			responseText = m.rules[i].response
			break
		}
	}
	m.calls = append(m.calls, MockCall{Prompt: promptText, Response: responseText})
	m.mu.Unlock()

	return &ai.ModelResponse{
		Request: req,
		Message: &ai.Message{
			Role:    ai.RoleModel,
			Content: []*ai.Part{ai.NewTextPart(responseText)},
		},
	}, nil
}
