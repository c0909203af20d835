package uuid

import (
	"strings"
	"testing"
)

func TestNewGeneratesValidV4(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := New()
		if !IsValid(id) {
			t.Fatalf("generated id is not a valid UUID v4: %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id generated: %q", id)
		}
		seen[id] = true
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"valid lowercase", "550e8400-e29b-41d4-a716-446655440000", true},
		{"valid uppercase", "550E8400-E29B-41D4-A716-446655440000", true},
		{"empty", "", false},
		{"missing dashes", "550e8400e29b41d4a716446655440000", false},
		{"wrong version", "550e8400-e29b-11d4-a716-446655440000", false},
		{"wrong variant", "550e8400-e29b-41d4-c716-446655440000", false},
		{"too short", "550e8400-e29b-41d4-a716-44665544000", false},
		{"not hex", "550e8400-e29b-41d4-a716-44665544zzzz", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValid(tt.input); got != tt.want {
				t.Errorf("IsValid(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(New()); err != nil {
		t.Errorf("unexpected error for generated id: %v", err)
	}

	err := Validate("not-a-uuid")
	if err == nil {
		t.Fatal("expected error for invalid id")
	}
	if !strings.Contains(err.Error(), "not-a-uuid") {
		t.Errorf("error should name the rejected value, got %q", err.Error())
	}
}
