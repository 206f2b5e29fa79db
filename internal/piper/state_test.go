package piper

import (
	"errors"
	"testing"
)

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateUninitialized, StateInitialized, true},
		{StateUninitialized, StateTerminated, false},
		{StateInitialized, StateTerminated, true},
		{StateUninitialized, StateUninitialized, false},
		{StateInitialized, StateInitialized, false},
		{StateInitialized, StateUninitialized, false},
		{StateTerminated, StateInitialized, false},
		{StateTerminated, StateUninitialized, false},
		{StateTerminated, StateTerminated, false},
	}
	for _, tt := range tests {
		if got := validTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("validTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTransitionError(t *testing.T) {
	tests := []struct {
		from State
		want error
	}{
		{StateUninitialized, ErrNotInitialized},
		{StateInitialized, ErrAlreadyInitialized},
		{StateTerminated, ErrTerminated},
	}
	for _, tt := range tests {
		err := transitionError("op", tt.from)
		if !errors.Is(err, tt.want) {
			t.Errorf("transitionError(%s) = %v, want %v", tt.from, err, tt.want)
		}
		if KindOf(err) != KindLifecycle {
			t.Errorf("transitionError(%s) kind = %s, want lifecycle", tt.from, KindOf(err))
		}
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateUninitialized, "Uninitialized"},
		{StateInitialized, "Initialized"},
		{StateTerminated, "Terminated"},
		{State(99), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

func TestKind_String(t *testing.T) {
	if KindConfig.String() != "config" {
		t.Errorf("KindConfig.String() = %q", KindConfig.String())
	}
	if Kind(42).String() != "unknown" {
		t.Errorf("Kind(42).String() = %q", Kind(42).String())
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("plain error should have unknown kind")
	}
}
