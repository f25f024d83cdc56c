// Package turn tracks the lifecycle of one answer from capture to delivered feedback.
package turn

import (
	"fmt"
	"sync"
	"time"
)

// State is a stage of a turn.
type State string

const (
	Idle               State = "idle"
	Recording          State = "recording"
	Uploading          State = "uploading"
	AnalyzingFace      State = "analyzing-face"
	Transcribing       State = "transcribing"
	Polling            State = "polling"
	GeneratingFeedback State = "generating-feedback"
	Delivered          State = "delivered"
	Failed             State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Delivered || s == Failed }

// Busy reports whether a turn in this state blocks a new one.
func (s State) Busy() bool { return s != Idle && !s.Terminal() }

var forward = map[State]State{
	Idle:               Recording,
	Recording:          Uploading,
	Uploading:          AnalyzingFace,
	AnalyzingFace:      Transcribing,
	Transcribing:       Polling,
	Polling:            GeneratingFeedback,
	GeneratingFeedback: Delivered,
}

// CanTransition reports whether from → to is legal.
func CanTransition(from, to State) bool {
	if to == Failed {
		return from != Idle && !from.Terminal()
	}
	next, ok := forward[from]
	return ok && next == to
}

// Event describes one transition.
type Event struct {
	Turn int
	From State
	To   State
	At   time.Time
	// Err is set when To is Failed.
	Err error
}

// Observer receives transitions in order.
type Observer interface {
	TurnChanged(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) TurnChanged(e Event) { f(e) }

// Machine is the state of a single turn.
type Machine struct {
	mu        sync.Mutex
	turn      int
	state     State
	err       error
	observers []Observer
	now       func() time.Time
}

// NewMachine returns a machine in Idle for the given turn number.
func NewMachine(turn int, observers ...Observer) *Machine {
	return &Machine{turn: turn, state: Idle, observers: observers, now: time.Now}
}

// Turn returns the turn number.
func (m *Machine) Turn() int { return m.turn }

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Err returns the failure cause once the machine is Failed.
func (m *Machine) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Advance moves to the given state, rejecting illegal transitions.
func (m *Machine) Advance(to State) error {
	if to == Failed {
		return fmt.Errorf("turn %d: use Fail to enter %s", m.turn, Failed)
	}
	return m.transition(to, nil)
}

// Fail moves to Failed with the cause.
func (m *Machine) Fail(cause error) error {
	return m.transition(Failed, cause)
}

func (m *Machine) transition(to State, cause error) error {
	m.mu.Lock()
	from := m.state
	if !CanTransition(from, to) {
		m.mu.Unlock()
		return fmt.Errorf("turn %d: illegal transition %s -> %s", m.turn, from, to)
	}
	m.state = to
	m.err = cause
	ev := Event{Turn: m.turn, From: from, To: to, At: m.now(), Err: cause}
	observers := m.observers
	m.mu.Unlock()

	for _, o := range observers {
		o.TurnChanged(ev)
	}
	return nil
}
