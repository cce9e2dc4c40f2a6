package common

import (
	"errors"
	"testing"
)

func TestGuard(t *testing.T) {
	pauses := NewStaticPauses(" RunClub ", "")
	if err := Guard(pauses, "runclub"); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected paused error, got %v", err)
	}
	if err := Guard(pauses, "token"); err != nil {
		t.Fatalf("token should not be paused: %v", err)
	}
	if err := Guard(nil, "runclub"); err != nil {
		t.Fatalf("nil view should not pause: %v", err)
	}
	if err := Guard(pauses, ""); err != nil {
		t.Fatalf("empty module should not pause: %v", err)
	}
}
