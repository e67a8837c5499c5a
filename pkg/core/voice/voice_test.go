package voice

import (
	"testing"

	"github.com/relaydesk/relay-go/pkg/core/wire"
)

func TestActivateModes(t *testing.T) {
	t.Parallel()

	m := NewMachine(nil)
	if m.State() != StateIdle {
		t.Fatalf("expected idle initially, got %v", m.State())
	}

	m.Activate(ModeWakeWord)
	if m.State() != StateWakeListening {
		t.Errorf("expected wake_listening, got %v", m.State())
	}

	m.Deactivate()
	m.Activate(ModeContinuous)
	if m.State() != StateListening {
		t.Errorf("expected listening, got %v", m.State())
	}
}

func TestVADDrivenTransitions(t *testing.T) {
	t.Parallel()

	m := NewMachine(nil)
	m.Activate(ModeContinuous)

	m.Apply(wire.VADEvent{Event: wire.VADSpeechStart})
	if m.State() != StateRecording {
		t.Fatalf("expected recording after speech_start, got %v", m.State())
	}

	m.Apply(wire.VADEvent{Event: wire.VADSpeechEnd})
	if m.State() != StateTranscribing {
		t.Fatalf("expected transcribing after speech_end, got %v", m.State())
	}

	m.Apply(wire.VADEvent{Event: wire.VADNoSpeech})
	if m.State() != StateListening {
		t.Errorf("expected listening after no_speech, got %v", m.State())
	}
}

func TestVADIgnoredOutsideListening(t *testing.T) {
	t.Parallel()

	m := NewMachine(nil)
	m.Apply(wire.VADEvent{Event: wire.VADSpeechStart})
	if m.State() != StateIdle {
		t.Errorf("speech_start while idle must not transition, got %v", m.State())
	}

	m.Activate(ModeContinuous)
	m.SetSpeaking(true)
	m.Apply(wire.VADEvent{Event: wire.VADSpeechStart})
	if m.State() != StateSpeaking {
		t.Errorf("speech_start while speaking must not start recording, got %v", m.State())
	}
}

func TestWakeWordOnlyFromWakeListening(t *testing.T) {
	t.Parallel()

	m := NewMachine(nil)
	m.Activate(ModeWakeWord)
	m.Apply(wire.WakeWordDetected{Confidence: 0.92})
	if m.State() != StateListening {
		t.Fatalf("expected listening after wake word, got %v", m.State())
	}

	// A second detection while already listening is a no-op.
	m.Apply(wire.VADEvent{Event: wire.VADSpeechStart})
	m.Apply(wire.WakeWordDetected{Confidence: 0.99})
	if m.State() != StateRecording {
		t.Errorf("wake word while recording must not transition, got %v", m.State())
	}
}

func TestServerAssertedState(t *testing.T) {
	t.Parallel()

	m := NewMachine(nil)
	m.Apply(wire.TalkStateChanged{State: "processing"})
	if m.State() != StateProcessing {
		t.Errorf("expected processing, got %v", m.State())
	}

	m.Apply(wire.TalkStateChanged{State: "bogus"})
	if m.State() != StateProcessing {
		t.Errorf("unknown server state must be ignored, got %v", m.State())
	}
}

func TestTranscriptBuffers(t *testing.T) {
	t.Parallel()

	m := NewMachine(nil)
	m.Activate(ModeContinuous)

	m.Apply(wire.PartialTranscription{Text: "turn on"})
	if m.PartialTranscript() != "turn on" {
		t.Errorf("unexpected partial: %q", m.PartialTranscript())
	}

	m.Apply(wire.VoiceTranscription{Text: "turn on the", IsFinal: false})
	if m.PartialTranscript() != "turn on the" {
		t.Errorf("unexpected partial: %q", m.PartialTranscript())
	}
	if m.State() != StateListening {
		t.Errorf("non-final transcription must not change state, got %v", m.State())
	}

	m.Apply(wire.VoiceTranscription{Text: "turn on the lights", IsFinal: true})
	if m.FinalTranscript() != "turn on the lights" {
		t.Errorf("unexpected final: %q", m.FinalTranscript())
	}
	if m.PartialTranscript() != "" {
		t.Errorf("partial must clear on final, got %q", m.PartialTranscript())
	}
	if m.State() != StateProcessing {
		t.Errorf("expected processing after final transcription, got %v", m.State())
	}
}

func TestDeactivateClearsBuffers(t *testing.T) {
	t.Parallel()

	m := NewMachine(nil)
	m.Activate(ModeContinuous)
	m.Apply(wire.VoiceTranscription{Text: "hello", IsFinal: true})

	m.Deactivate()
	if m.State() != StateIdle {
		t.Errorf("expected idle, got %v", m.State())
	}
	if m.PartialTranscript() != "" || m.FinalTranscript() != "" {
		t.Error("deactivate must clear transcript buffers")
	}
}

func TestOnChangeCallback(t *testing.T) {
	t.Parallel()

	type hop struct{ from, to State }
	var hops []hop
	m := NewMachine(func(old, new State) {
		hops = append(hops, hop{old, new})
	})

	m.Activate(ModeContinuous)
	m.SetSpeaking(true)
	m.SetSpeaking(false)
	m.SetSpeaking(false) // no-op while listening

	want := []hop{
		{StateIdle, StateListening},
		{StateListening, StateSpeaking},
		{StateSpeaking, StateListening},
	}
	if len(hops) != len(want) {
		t.Fatalf("expected %d transitions, got %d (%v)", len(want), len(hops), hops)
	}
	for i, w := range want {
		if hops[i] != w {
			t.Errorf("transition %d: expected %v, got %v", i, w, hops[i])
		}
	}
}
