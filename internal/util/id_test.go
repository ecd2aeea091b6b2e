package util

import (
	"strings"
	"testing"
)

func TestNewIDPrefix(t *testing.T) {
	id := NewID("rft")
	if !strings.HasPrefix(id, "rft_") {
		t.Fatalf("expected rft_ prefix, got %q", id)
	}
	if strings.Contains(id, "-") {
		t.Fatalf("expected compact hex, got %q", id)
	}
	if len(id) != len("rft_")+32 {
		t.Fatalf("unexpected id length: %q", id)
	}
}

func TestNewIDNoPrefix(t *testing.T) {
	a, b := NewID(""), NewID("")
	if len(a) != 32 {
		t.Fatalf("unexpected id length: %q", a)
	}
	if a == b {
		t.Fatal("ids must not repeat")
	}
}
