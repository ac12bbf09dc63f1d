package errors

import (
	"errors"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(ErrCodeNotFound, "node %s not found", "n1")

	if err.Code != ErrCodeNotFound {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeNotFound)
	}

	if err.Message != "node n1 not found" {
		t.Errorf("Message = %v, want %v", err.Message, "node n1 not found")
	}

	expected := "NOT_FOUND: node n1 not found"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestWrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Wrap(ErrCodeCorruptGraph, cause, "load failed")

	if err.Code != ErrCodeCorruptGraph {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeCorruptGraph)
	}

	if err.Cause != cause {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}

	unwrapped := errors.Unwrap(err)
	if unwrapped != cause {
		t.Errorf("Unwrap() = %v, want %v", unwrapped, cause)
	}

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
}

func TestInvalidConnection(t *testing.T) {
	err := InvalidConnection(ReasonSelfLoop, "node %s cannot connect to itself", "a")

	if err.Code != ErrCodeInvalidConnection {
		t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidConnection)
	}
	if err.Reason != ReasonSelfLoop {
		t.Errorf("Reason = %v, want %v", err.Reason, ReasonSelfLoop)
	}

	expected := "INVALID_CONNECTION(SelfLoop): node a cannot connect to itself"
	if err.Error() != expected {
		t.Errorf("Error() = %v, want %v", err.Error(), expected)
	}
}

func TestIs(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     Code
		expected bool
	}{
		{
			name:     "matching code",
			err:      New(ErrCodeInvalidInput, "test"),
			code:     ErrCodeInvalidInput,
			expected: true,
		},
		{
			name:     "non-matching code",
			err:      New(ErrCodeInvalidInput, "test"),
			code:     ErrCodeNotFound,
			expected: false,
		},
		{
			name:     "outer code of wrapped error",
			err:      Wrap(ErrCodeCorruptGraph, New(ErrCodeUnknownKind, "inner"), "outer"),
			code:     ErrCodeCorruptGraph,
			expected: true,
		},
		{
			name:     "inner code of wrapped error",
			err:      Wrap(ErrCodeCorruptGraph, New(ErrCodeUnknownKind, "inner"), "outer"),
			code:     ErrCodeUnknownKind,
			expected: true,
		},
		{
			name:     "non-Error type",
			err:      errors.New("plain error"),
			code:     ErrCodeInvalidInput,
			expected: false,
		},
		{
			name:     "nil error",
			err:      nil,
			code:     ErrCodeInvalidInput,
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Is(tt.err, tt.code); got != tt.expected {
				t.Errorf("Is() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Code
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeDuplicateID, "test"),
			expected: ErrCodeDuplicateID,
		},
		{
			name:     "plain error",
			err:      errors.New("plain"),
			expected: "",
		},
		{
			name:     "nil",
			err:      nil,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestReasonOf(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Reason
	}{
		{
			name:     "direct",
			err:      InvalidConnection(ReasonArityExceeded, "full"),
			expected: ReasonArityExceeded,
		},
		{
			name:     "wrapped in corrupt graph",
			err:      Wrap(ErrCodeCorruptGraph, InvalidConnection(ReasonCycleDetected, "loop"), "edge e1"),
			expected: ReasonCycleDetected,
		},
		{
			name:     "no reason",
			err:      New(ErrCodeNotFound, "missing"),
			expected: "",
		},
		{
			name:     "plain error",
			err:      errors.New("plain"),
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ReasonOf(tt.err); got != tt.expected {
				t.Errorf("ReasonOf() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "Error type",
			err:      New(ErrCodeInvalidInput, "friendly message"),
			expected: "friendly message",
		},
		{
			name:     "plain error",
			err:      errors.New("plain error"),
			expected: "plain error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.expected {
				t.Errorf("UserMessage() = %v, want %v", got, tt.expected)
			}
		})
	}
}
