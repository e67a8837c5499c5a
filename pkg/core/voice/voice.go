// Package voice holds the voice-activity state machine shared by
// push-to-talk and hands-free calls. It is a pure state holder: inbound
// envelopes and local capture events drive transitions, nothing here
// touches the transport.
package voice

import (
	"sync"

	"github.com/relaydesk/relay-go/pkg/core/wire"
)

// State is the voice pipeline state.
type State int

const (
	StateIdle State = iota
	StateWakeListening
	StateListening
	StateRecording
	StateTranscribing
	StateProcessing
	StateSpeaking
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWakeListening:
		return "wake_listening"
	case StateListening:
		return "listening"
	case StateRecording:
		return "recording"
	case StateTranscribing:
		return "transcribing"
	case StateProcessing:
		return "processing"
	case StateSpeaking:
		return "speaking"
	default:
		return "unknown"
	}
}

// stateFromWire maps server-asserted state names onto local states.
func stateFromWire(name string) (State, bool) {
	switch name {
	case "idle":
		return StateIdle, true
	case "wake_listening":
		return StateWakeListening, true
	case "listening":
		return StateListening, true
	case "recording":
		return StateRecording, true
	case "transcribing":
		return StateTranscribing, true
	case "processing":
		return StateProcessing, true
	case "speaking":
		return StateSpeaking, true
	default:
		return StateIdle, false
	}
}

// Mode selects how a call begins listening.
type Mode string

const (
	// ModeWakeWord waits for a wake word before engaging.
	ModeWakeWord Mode = "wake_word"
	// ModeContinuous listens from the moment the call starts.
	ModeContinuous Mode = "continuous"
)

// Machine is the voice state machine. All methods are safe for concurrent
// use; transitions are atomic under the internal lock.
type Machine struct {
	mu        sync.Mutex
	state     State
	partial   string
	finalText string
	onChange  func(old, new State)
}

// NewMachine returns a machine in the idle state. onChange, if non-nil, is
// called after every state transition, outside the lock.
func NewMachine(onChange func(old, new State)) *Machine {
	return &Machine{state: StateIdle, onChange: onChange}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// PartialTranscript returns the live partial transcript buffer.
func (m *Machine) PartialTranscript() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.partial
}

// FinalTranscript returns the most recent finalized transcript.
func (m *Machine) FinalTranscript() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.finalText
}

// Activate enters the initial listening state for the given mode.
func (m *Machine) Activate(mode Mode) {
	if mode == ModeWakeWord {
		m.transition(StateWakeListening)
	} else {
		m.transition(StateListening)
	}
}

// Deactivate returns to idle and clears the transcript buffers.
func (m *Machine) Deactivate() {
	m.mu.Lock()
	m.partial = ""
	m.finalText = ""
	m.mu.Unlock()
	m.transition(StateIdle)
}

// Reset is an alias for Deactivate kept for call teardown readability.
func (m *Machine) Reset() { m.Deactivate() }

// SetSpeaking marks the assistant as speaking or, when speaking ends with
// the call still live, returns to listening.
func (m *Machine) SetSpeaking(speaking bool) {
	if speaking {
		m.transition(StateSpeaking)
		return
	}
	m.mu.Lock()
	cur := m.state
	m.mu.Unlock()
	if cur == StateSpeaking {
		m.transition(StateListening)
	}
}

// Apply feeds one inbound envelope through the machine. Envelope types the
// machine does not care about are ignored.
func (m *Machine) Apply(env wire.Inbound) {
	switch e := env.(type) {
	case wire.VADEvent:
		m.applyVAD(e.Event)
	case wire.WakeWordDetected:
		m.mu.Lock()
		cur := m.state
		m.mu.Unlock()
		if cur == StateWakeListening {
			m.transition(StateListening)
		}
	case wire.TalkStateChanged:
		if s, ok := stateFromWire(e.State); ok {
			m.transition(s)
		}
	case wire.PartialTranscription:
		m.mu.Lock()
		m.partial = e.Text
		m.mu.Unlock()
	case wire.VoiceTranscription:
		m.mu.Lock()
		if e.IsFinal {
			m.finalText = e.Text
			m.partial = ""
		} else {
			m.partial = e.Text
		}
		m.mu.Unlock()
		if e.IsFinal {
			m.transition(StateProcessing)
		}
	}
}

func (m *Machine) applyVAD(event string) {
	m.mu.Lock()
	cur := m.state
	m.mu.Unlock()

	switch event {
	case wire.VADSpeechStart:
		// Only engage while actively listening. Speech during playback is
		// the call orchestrator's interruption path, not a recording start.
		if cur == StateListening {
			m.transition(StateRecording)
		}
	case wire.VADSpeechEnd:
		if cur == StateRecording {
			m.transition(StateTranscribing)
		}
	case wire.VADNoSpeech:
		if cur == StateRecording || cur == StateTranscribing {
			m.transition(StateListening)
		}
	}
}

func (m *Machine) transition(to State) {
	m.mu.Lock()
	from := m.state
	if from == to {
		m.mu.Unlock()
		return
	}
	m.state = to
	cb := m.onChange
	m.mu.Unlock()
	if cb != nil {
		cb(from, to)
	}
}
