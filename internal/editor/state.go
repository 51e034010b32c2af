package editor

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/debemdeboas/inkwell/internal/pipeline"
)

type State int

const (
	Idle State = iota
	ProcessingAssets
	WaitingForAssets
	SavingDraft
	SavingPublish
	Complete
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case ProcessingAssets:
		return "processing_assets"
	case WaitingForAssets:
		return "waiting_for_assets"
	case SavingDraft:
		return "saving_draft"
	case SavingPublish:
		return "saving_publish"
	case Complete:
		return "complete"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Busy reports whether an operation owns the machine.
func (s State) Busy() bool {
	return s == ProcessingAssets || s == SavingDraft || s == SavingPublish
}

type Operation string

const (
	OpNone      Operation = ""
	OpCacheSave Operation = "cache_save"
	OpPreview   Operation = "preview"
	OpSaveDraft Operation = "save_draft"
	OpPublish   Operation = "publish"
)

var transitions = map[State][]State{
	Idle:             {ProcessingAssets, SavingDraft, SavingPublish, Complete, Error},
	ProcessingAssets: {WaitingForAssets, SavingDraft, SavingPublish, Complete, Error},
	WaitingForAssets: {ProcessingAssets, Idle},
	SavingDraft:      {Complete, Error},
	SavingPublish:    {Complete, Error},
	Complete:         {Idle},
	Error:            {Idle},
}

func canTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// Status is a snapshot of the machine. Missing is set in WaitingForAssets and
// Errors in Error.
type Status struct {
	State     State                 `json:"state"`
	Operation Operation             `json:"operation,omitempty"`
	Missing   []string              `json:"missing,omitempty"`
	Errors    []pipeline.AssetError `json:"errors,omitempty"`
	Message   string                `json:"message,omitempty"`
	Since     time.Time             `json:"since"`
}

// Machine enforces the processing state sequence of one editor session.
type Machine struct {
	mu        sync.Mutex
	status    Status
	listeners []func(Status)

	dismissAfter time.Duration
	dismiss      *time.Timer
	generation   uint64
	now          func() time.Time
}

// NewMachine starts in Idle. A positive dismissAfter returns a successful
// Complete to Idle after that delay.
func NewMachine(dismissAfter time.Duration) *Machine {
	m := &Machine{dismissAfter: dismissAfter, now: time.Now}
	m.status = Status{State: Idle, Since: m.now()}
	return m
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneStatus(m.status)
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.State
}

// Subscribe registers fn for every transition. Listeners run synchronously
// after the machine lock is released.
func (m *Machine) Subscribe(fn func(Status)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Begin claims the machine for op. A finished Complete or Error is dismissed
// first. Busy and waiting machines return ErrBusy.
func (m *Machine) Begin(op Operation) error {
	m.mu.Lock()
	reset := false
	switch m.status.State {
	case Idle:
	case Complete, Error:
		m.set(Status{State: Idle})
		reset = true
	default:
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrBusy, m.status.State)
	}
	m.status.Operation = op
	m.mu.Unlock()

	if reset {
		m.notify()
	}
	return nil
}

// release drops a claimed operation that ended without leaving Idle.
func (m *Machine) release() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.State == Idle {
		m.status.Operation = OpNone
	}
}

// Dismiss returns a finished machine to Idle.
func (m *Machine) Dismiss() error {
	m.mu.Lock()
	s := m.status.State
	m.mu.Unlock()
	if s != Complete && s != Error {
		return fmt.Errorf("%w: cannot dismiss %s", ErrInvalidTransition, s)
	}
	return m.to(Idle, nil)
}

func (m *Machine) process() error {
	return m.to(ProcessingAssets, nil)
}

func (m *Machine) wait(missing []string) error {
	return m.to(WaitingForAssets, func(s *Status) { s.Missing = slices.Clone(missing) })
}

func (m *Machine) saving(publish bool) error {
	if publish {
		return m.to(SavingPublish, nil)
	}
	return m.to(SavingDraft, nil)
}

func (m *Machine) complete() error {
	return m.to(Complete, nil)
}

func (m *Machine) fail(err error, errs []pipeline.AssetError) error {
	return m.to(Error, func(s *Status) {
		s.Errors = slices.Clone(errs)
		if err != nil {
			s.Message = err.Error()
		}
	})
}

func (m *Machine) cancel() error {
	m.mu.Lock()
	s := m.status.State
	m.mu.Unlock()
	if s != WaitingForAssets {
		return ErrNothingPending
	}
	return m.to(Idle, nil)
}

func (m *Machine) to(next State, fill func(*Status)) error {
	m.mu.Lock()
	cur := m.status
	if !canTransition(cur.State, next) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, cur.State, next)
	}

	st := Status{State: next}
	if next != Idle {
		st.Operation = cur.Operation
	}
	if fill != nil {
		fill(&st)
	}
	m.set(st)
	m.mu.Unlock()

	m.notify()
	return nil
}

// set replaces the status and schedules the auto-dismiss. Callers hold mu.
func (m *Machine) set(st Status) {
	st.Since = m.now()
	m.status = st
	m.generation++

	if m.dismiss != nil {
		m.dismiss.Stop()
		m.dismiss = nil
	}
	if st.State == Complete && len(st.Errors) == 0 && m.dismissAfter > 0 {
		gen := m.generation
		m.dismiss = time.AfterFunc(m.dismissAfter, func() { m.autoDismiss(gen) })
	}
}

func (m *Machine) autoDismiss(gen uint64) {
	m.mu.Lock()
	if m.generation != gen || m.status.State != Complete {
		m.mu.Unlock()
		return
	}
	m.set(Status{State: Idle})
	m.mu.Unlock()
	m.notify()
}

func (m *Machine) notify() {
	m.mu.Lock()
	st := cloneStatus(m.status)
	listeners := slices.Clone(m.listeners)
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
}

// Stop cancels a pending auto-dismiss.
func (m *Machine) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dismiss != nil {
		m.dismiss.Stop()
		m.dismiss = nil
	}
}

func cloneStatus(s Status) Status {
	s.Missing = slices.Clone(s.Missing)
	s.Errors = slices.Clone(s.Errors)
	return s
}
