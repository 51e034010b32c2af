package editor

import (
	"errors"
	"testing"
	"time"

	"github.com/debemdeboas/inkwell/internal/pipeline"
)

func TestMachineTransitions(t *testing.T) {
	tests := []struct {
		from, to State
		allowed  bool
	}{
		{Idle, ProcessingAssets, true},
		{Idle, WaitingForAssets, false},
		{ProcessingAssets, WaitingForAssets, true},
		{ProcessingAssets, SavingPublish, true},
		{WaitingForAssets, ProcessingAssets, true},
		{WaitingForAssets, Idle, true},
		{WaitingForAssets, SavingDraft, false},
		{SavingDraft, Complete, true},
		{SavingDraft, ProcessingAssets, false},
		{Complete, Idle, true},
		{Complete, ProcessingAssets, false},
		{Error, Idle, true},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			if got := canTransition(tt.from, tt.to); got != tt.allowed {
				t.Errorf("Expected %v, got %v", tt.allowed, got)
			}
		})
	}
}

func TestMachineRejectsInvalidTransition(t *testing.T) {
	m := NewMachine(0)
	if err := m.wait([]string{"a.png"}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
	if m.State() != Idle {
		t.Errorf("Expected Idle, got %s", m.State())
	}
}

func TestMachineBegin(t *testing.T) {
	m := NewMachine(0)
	if err := m.Begin(OpSaveDraft); err != nil {
		t.Fatal(err)
	}
	m.process()
	if err := m.Begin(OpPreview); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}

	m.fail(ErrUploadFailed, []pipeline.AssetError{{Reference: "a.png", Reason: "boom"}})
	st := m.Status()
	if st.State != Error || st.Operation != OpSaveDraft || len(st.Errors) != 1 {
		t.Fatalf("Expected Error with one error for save, got %+v", st)
	}

	var seen []State
	m.Subscribe(func(s Status) { seen = append(seen, s.State) })
	if err := m.Begin(OpPreview); err != nil {
		t.Fatalf("Expected Begin to dismiss a finished machine, got %v", err)
	}
	if len(seen) != 1 || seen[0] != Idle {
		t.Errorf("Expected Idle notification, got %v", seen)
	}
	if m.Status().Operation != OpPreview {
		t.Errorf("Expected preview operation, got %q", m.Status().Operation)
	}
	m.release()
	if m.Status().Operation != OpNone {
		t.Error("Expected release to drop the operation")
	}
}

func TestMachineDismiss(t *testing.T) {
	m := NewMachine(0)
	if err := m.Dismiss(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}
	m.complete()
	if err := m.Dismiss(); err != nil || m.State() != Idle {
		t.Errorf("Expected Idle after dismiss, got %s (%v)", m.State(), err)
	}
}

func TestMachineAutoDismiss(t *testing.T) {
	m := NewMachine(10 * time.Millisecond)
	defer m.Stop()

	done := make(chan struct{})
	m.Subscribe(func(s Status) {
		if s.State == Idle {
			close(done)
		}
	})

	if err := m.complete(); err != nil {
		t.Fatal(err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Expected Complete to return to Idle, still %s", m.State())
	}
}

func TestMachineAutoDismissSkipsErrors(t *testing.T) {
	m := NewMachine(5 * time.Millisecond)
	defer m.Stop()

	m.fail(ErrUploadFailed, nil)
	time.Sleep(30 * time.Millisecond)
	if m.State() != Error {
		t.Errorf("Expected Error to stay until dismissed, got %s", m.State())
	}
}
