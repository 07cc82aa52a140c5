package llm

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ragline/ragline/internal/prompt"
	"github.com/ragline/ragline/internal/testutil"
)

func mockParams() prompt.Params {
	return prompt.Params{Model: testutil.MockModelName, Temperature: 0.2, MaxTokens: 256}
}

func fastRetry(maxRetries int) RetryConfig {
	return RetryConfig{
		MaxRetries:      maxRetries,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func newTestClient(t *testing.T, mock *testutil.MockLLM, retry RetryConfig) *Client {
	t.Helper()

	g := testutil.NewGenkit(t)
	mock.Register(g)

	client, err := NewClient(Config{
		Genkit: g,
		Logger: testutil.DiscardLogger(),
		Retry:  retry,
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	return client
}

func TestCompleteReturnsAnswer(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("fallback")
	mock.AddResponse("refund", "Refunds take 14 days.")
	client := newTestClient(t, mock, fastRetry(1))

	answer, err := client.Complete(context.Background(), "what is the refund policy?", mockParams())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if answer != "Refunds take 14 days." {
		t.Errorf("answer = %q", answer)
	}
}

func TestCompleteRetriesTransientThenSucceeds(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("recovered")
	mock.FailTimes(2, errors.New("503 Service Unavailable"))
	client := newTestClient(t, mock, fastRetry(3))

	answer, err := client.Complete(context.Background(), "hello", mockParams())
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if answer != "recovered" {
		t.Errorf("answer = %q", answer)
	}
	if n := mock.CallCount(); n != 3 {
		t.Errorf("model called %d times, want 3", n)
	}
}

func TestCompleteExhaustedRetries(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("never reached")
	mock.FailTimes(10, errors.New("model is overloaded"))
	client := newTestClient(t, mock, fastRetry(2))

	_, err := client.Complete(context.Background(), "hello", mockParams())
	if !errors.Is(err, ErrCompletionUnavailable) {
		t.Fatalf("err = %v, want ErrCompletionUnavailable", err)
	}
	if !strings.Contains(err.Error(), "overloaded") {
		t.Errorf("err should carry the last provider error, got %v", err)
	}
	if n := mock.CallCount(); n != 3 {
		t.Errorf("model called %d times, want 3 (1 + 2 retries)", n)
	}
}

func TestCompleteFatalErrorNoRetry(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("never reached")
	mock.FailTimes(10, errors.New("invalid api key"))
	client := newTestClient(t, mock, fastRetry(3))

	_, err := client.Complete(context.Background(), "hello", mockParams())
	if err == nil {
		t.Fatal("expected error")
	}
	if errors.Is(err, ErrCompletionUnavailable) {
		t.Error("fatal error should not be wrapped as unavailable")
	}
	if n := mock.CallCount(); n != 1 {
		t.Errorf("model called %d times, want 1", n)
	}
}

func TestCompleteEmptyPrompt(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, testutil.NewMockLLM("x"), fastRetry(1))
	if _, err := client.Complete(context.Background(), "", mockParams()); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestCompleteCanceledContext(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("never reached")
	mock.FailTimes(10, errors.New("503 Service Unavailable"))
	client := newTestClient(t, mock, RetryConfig{
		MaxRetries:      5,
		InitialInterval: time.Hour,
		MaxInterval:     time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := client.Complete(ctx, "hello", mockParams())
		done <- err
	}()

	// Let the first attempt fail and the backoff sleep start.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Complete did not return after cancellation")
	}
}

func TestCompleteTripsBreakerWhenProviderDown(t *testing.T) {
	t.Parallel()

	mock := testutil.NewMockLLM("never reached")
	mock.FailTimes(100, errors.New("503 Service Unavailable"))

	g := testutil.NewGenkit(t)
	mock.Register(g)
	client, err := NewClient(Config{
		Genkit:  g,
		Logger:  testutil.DiscardLogger(),
		Retry:   fastRetry(1),
		Breaker: CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour},
	})
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	// Two failed attempts trip the breaker.
	if _, err := client.Complete(context.Background(), "hello", mockParams()); err == nil {
		t.Fatal("expected failure")
	}

	before := mock.CallCount()
	_, err = client.Complete(context.Background(), "hello", mockParams())
	if !errors.Is(err, ErrCompletionUnavailable) || !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want unavailable via open circuit", err)
	}
	if mock.CallCount() != before {
		t.Error("open circuit still reached the provider")
	}
}
