package llm

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Hour})

	for range 2 {
		cb.Failure()
	}
	if cb.State() != CircuitClosed {
		t.Fatalf("state = %v, want closed below threshold", cb.State())
	}

	cb.Failure()
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open at threshold", cb.State())
	}
	if err := cb.Allow(); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Allow = %v, want ErrCircuitOpen", err)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})

	cb.Failure()
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open", cb.State())
	}

	time.Sleep(20 * time.Millisecond)

	// Timeout elapsed: the next Allow transitions to half-open.
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow after timeout = %v, want nil", err)
	}
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %v, want half-open", cb.State())
	}

	cb.Success()
	if cb.State() != CircuitHalfOpen {
		t.Fatalf("state = %v, want half-open below success threshold", cb.State())
	}
	cb.Success()
	if cb.State() != CircuitClosed {
		t.Fatalf("state = %v, want closed after recovery", cb.State())
	}
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: 10 * time.Millisecond})

	cb.Failure()
	time.Sleep(20 * time.Millisecond)
	if err := cb.Allow(); err != nil {
		t.Fatalf("Allow = %v", err)
	}

	cb.Failure()
	if cb.State() != CircuitOpen {
		t.Fatalf("state = %v, want open after half-open failure", cb.State())
	}
}

func TestCircuitBreakerSuccessResetsFailureCount(t *testing.T) {
	t.Parallel()

	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 2, SuccessThreshold: 1, Timeout: time.Hour})

	cb.Failure()
	cb.Success()
	cb.Failure()
	if cb.State() != CircuitClosed {
		t.Fatal("non-consecutive failures should not open the circuit")
	}
}

func TestCircuitStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state CircuitState
		want  string
	}{
		{CircuitClosed, "closed"},
		{CircuitOpen, "open"},
		{CircuitHalfOpen, "half-open"},
		{CircuitState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String(%d) = %q, want %q", tt.state, got, tt.want)
		}
	}
}
