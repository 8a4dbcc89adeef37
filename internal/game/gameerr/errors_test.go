package gameerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsMatchBySentinel(t *testing.T) {
	err := New(ErrOccupiedSlot, "slot %d is taken", 3)
	if !errors.Is(err, ErrOccupiedSlot) {
		t.Fatalf("expected errors.Is to match the sentinel")
	}
	if errors.Is(err, ErrEmptySlot) {
		t.Fatalf("unexpected match against a different sentinel")
	}
	wrapped := fmt.Errorf("summon: %w", err)
	if !errors.Is(wrapped, ErrOccupiedSlot) {
		t.Fatalf("expected wrapped error to match")
	}
	if KindOf(wrapped) != KindConflict {
		t.Fatalf("expected conflict kind, got %s", KindOf(wrapped))
	}
	if got := err.Error(); got != "occupied_slot: slot 3 is taken" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestKindOf(t *testing.T) {
	cases := map[error]Kind{
		New(ErrRange, "x"):             KindValidation,
		New(ErrEmptySlot, "x"):         KindNotFound,
		New(ErrInvalidTransition, "x"): KindTransition,
		Internal("broken"):             KindInternal,
		errors.New("plain"):            KindInternal,
	}
	for err, want := range cases {
		if got := KindOf(err); got != want {
			t.Fatalf("KindOf(%v) = %s, want %s", err, got, want)
		}
	}
	if IsInternal(nil) {
		t.Fatalf("nil must not be internal")
	}
	if !IsInternal(errors.New("plain")) {
		t.Fatalf("errors outside the taxonomy are internal")
	}
	if Kind(42).String() != "KIND_42" {
		t.Fatalf("unexpected name for unknown kind: %s", Kind(42))
	}
}
