package connerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestBadDelayErrorUnwraps(t *testing.T) {
	err := fmt.Errorf("connect: %w", &BadDelayError{DelayMS: 15, MinMS: 0.1, MaxMS: 10})
	if !errors.Is(err, ErrBadDelay) {
		t.Fatalf("expected ErrBadDelay, got: %v", err)
	}

	var bd *BadDelayError
	if !errors.As(err, &bd) {
		t.Fatal("expected errors.As to find *BadDelayError")
	}
	if bd.DelayMS != 15 {
		t.Errorf("DelayMS = %v, want 15", bd.DelayMS)
	}
	if !strings.Contains(err.Error(), "max_delay 10") {
		t.Errorf("message should name the window, got %q", err.Error())
	}
}

func TestBadDelayErrorReason(t *testing.T) {
	err := &BadDelayError{DelayMS: 0.01, Reason: "delay must be >= resolution"}
	if got := err.Error(); got != "bad delay 0.01 ms: delay must be >= resolution" {
		t.Errorf("Error() = %q", got)
	}
}

func TestIsPairError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"illegal", fmt.Errorf("%w: target", ErrIllegalConnection), true},
		{"receptor", ErrUnknownReceptorType, true},
		{"type mismatch", fmt.Errorf("weight: %w", ErrTypeMismatch), true},
		{"unknown node", ErrUnknownNode, true},
		{"bad delay", &BadDelayError{DelayMS: 1}, false},
		{"config", ErrConfig, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPairError(tt.err); got != tt.want {
				t.Errorf("IsPairError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestReason(t *testing.T) {
	if got := Reason(fmt.Errorf("x: %w", ErrUnknownReceptorType)); got != "unknown_receptor_type" {
		t.Errorf("Reason = %q", got)
	}
	if got := Reason(&BadDelayError{}); got != "bad_delay" {
		t.Errorf("Reason = %q", got)
	}
	if got := Reason(errors.New("boom")); got != "other" {
		t.Errorf("Reason = %q", got)
	}
}
