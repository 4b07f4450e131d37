package api

import (
	"testing"
)

func TestNewRunID(t *testing.T) {
	id := NewRunID()
	if !ValidateRunID(id) {
		t.Errorf("NewRunID() = %q, want valid run ID", id)
	}
	if other := NewRunID(); other == id {
		t.Errorf("NewRunID() returned %q twice", id)
	}
}

func TestValidateRunID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "run_0123456789abcdef0123456789abcdef", true},
		{"uppercase hex", "run_0123456789ABCDEF0123456789ABCDEF", false},
		{"wrong prefix", "resp_0123456789abcdef0123456789abcdef", false},
		{"too short", "run_abc", false},
		{"dashes", "run_01234567-89ab-cdef-0123-456789abcdef", false},
		{"empty", "", false},
		{"prefix only", "run_", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateRunID(tt.id); got != tt.want {
				t.Errorf("ValidateRunID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
