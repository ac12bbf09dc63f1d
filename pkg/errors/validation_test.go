package errors

import (
	"strings"
	"testing"
)

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid uuid", "0b3f6c1e-6a8e-4d1c-9d55-8f3f1a2b7c10", false},
		{"valid short", "n1", false},
		{"valid with colon", "edge:a:b", false},

		{"empty", "", true},
		{"too long", strings.Repeat("a", 129), true},
		{"space", "foo bar", true},
		{"null byte", "foo\x00bar", true},
		{"newline", "foo\nbar", true},
		{"tab", "foo\tbar", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID("node", tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !Is(err, ErrCodeInvalidInput) {
				t.Errorf("ValidateID(%q) code = %v, want %v", tt.input, GetCode(err), ErrCodeInvalidInput)
			}
		})
	}
}

func TestValidateKind(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"single word", "start", false},
		{"dashed", "text-message", false},
		{"digits", "step2-go", false},

		{"empty", "", true},
		{"uppercase", "TextMessage", true},
		{"underscore", "text_message", true},
		{"leading dash", "-start", true},
		{"trailing dash", "start-", true},
		{"double dash", "text--message", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKind(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKind(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFlowName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"simple", "onboarding", false},
		{"with dot", "welcome.v2", false},

		{"empty", "", true},
		{"slash", "a/b", true},
		{"backslash", "a\\b", true},
		{"traversal", "..", true},
		{"control", "a\x01b", true},
		{"too long", strings.Repeat("x", 200), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFlowName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFlowName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
