package common

import (
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	if err := Guard(nil, "lending"); err != nil {
		t.Fatalf("nil view should never block: %v", err)
	}

	set := NewPauseSet("Lending")
	if err := Guard(set, "lending"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(set, "oracle"); err != nil {
		t.Fatalf("unexpected pause on oracle: %v", err)
	}

	set.Set("lending", false)
	if err := Guard(set, "lending"); err != nil {
		t.Fatalf("expected resume, got %v", err)
	}
}
