// Package call drives a live voice call over the realtime channel:
// microphone streaming, the live level meter, synthesized-speech playback
// with interruption detection, and call duration/mute bookkeeping. At
// most one call is active per session.
package call

import (
	"context"
	"encoding/base64"
	"log/slog"
	"sync"
	"time"

	"github.com/relaydesk/relay-go/pkg/core"
	"github.com/relaydesk/relay-go/pkg/core/audio"
	"github.com/relaydesk/relay-go/pkg/core/voice"
	"github.com/relaydesk/relay-go/pkg/core/wire"
	"github.com/relaydesk/relay-go/pkg/metrics"
)

// Phase is the call lifecycle phase.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseConnecting
	PhaseActive
	PhaseEnding
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseConnecting:
		return "connecting"
	case PhaseActive:
		return "active"
	case PhaseEnding:
		return "ending"
	default:
		return "unknown"
	}
}

// Sender writes envelopes to the realtime channel.
type Sender interface {
	Send(env wire.Outbound) bool
}

// Capture is the microphone pipeline. EnsurePermission must be checked
// before any call state mutates; Start delivers PCM chunks until Stop.
type Capture interface {
	EnsurePermission() error
	Start(onChunk func(pcm []byte)) error
	Stop()
}

// Player synthesizes and plays assistant speech. Play returns a channel
// that closes when playback reaches idle or error; Stop cuts playback
// immediately.
type Player interface {
	Play(text string) (<-chan struct{}, error)
	Stop()
}

// Config tunes a call.
type Config struct {
	// Mode selects wake-word or continuous listening.
	Mode voice.Mode
	// VADThreshold is the backend voice-activity sensitivity.
	VADThreshold float64
	// SilenceTimeout is how long the backend waits before closing a
	// speech segment.
	SilenceTimeout time.Duration
	// AutoTTS enables spoken responses.
	AutoTTS bool
	// PlaybackTimeout bounds one playback await so the state machine
	// always returns to listening.
	PlaybackTimeout time.Duration
}

// DefaultConfig returns the production tuning.
func DefaultConfig() Config {
	return Config{
		Mode:            voice.ModeContinuous,
		VADThreshold:    0.5,
		SilenceTimeout:  1500 * time.Millisecond,
		AutoTTS:         true,
		PlaybackTimeout: 2 * time.Minute,
	}
}

// Orchestrator runs voice calls for one agent at a time.
type Orchestrator struct {
	cfg     Config
	sender  Sender
	capture Capture
	player  Player
	voice   *voice.Machine
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu         sync.Mutex
	phase      Phase
	agentID    string
	muted      bool
	level      float64
	durationS  int
	speaking   bool
	tickerStop chan struct{}
	ended      chan struct{}
}

// NewOrchestrator builds a call orchestrator in the idle phase.
func NewOrchestrator(cfg Config, sender Sender, capture Capture, player Player, vm *voice.Machine, logger *slog.Logger, m *metrics.Metrics) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PlaybackTimeout <= 0 {
		cfg.PlaybackTimeout = DefaultConfig().PlaybackTimeout
	}
	return &Orchestrator{
		cfg:     cfg,
		sender:  sender,
		capture: capture,
		player:  player,
		voice:   vm,
		logger:  logger,
		metrics: m,
	}
}

// Phase returns the current lifecycle phase.
func (o *Orchestrator) Phase() Phase {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.phase
}

// Duration returns the elapsed call time in whole seconds.
func (o *Orchestrator) Duration() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.durationS
}

// Level returns the latest microphone level in [0, 1].
func (o *Orchestrator) Level() float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.level
}

// Muted reports the mute flag.
func (o *Orchestrator) Muted() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.muted
}

// SetMuted toggles outbound transmission. Capture and the call stay
// alive while muted.
func (o *Orchestrator) SetMuted(muted bool) {
	o.mu.Lock()
	o.muted = muted
	if muted {
		o.level = 0
	}
	o.mu.Unlock()
}

// StartCall begins a voice call for the agent. A call already past idle
// makes this a no-op. The microphone permission check runs before any
// state mutates, so a denial leaves the orchestrator untouched.
func (o *Orchestrator) StartCall(agentID string) error {
	o.mu.Lock()
	if o.phase != PhaseIdle {
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	if err := o.capture.EnsurePermission(); err != nil {
		o.metrics.RecordError(string(core.ErrResource))
		return core.NewResourceError("microphone permission denied: " + err.Error())
	}

	o.mu.Lock()
	if o.phase != PhaseIdle {
		o.mu.Unlock()
		return nil
	}
	o.phase = PhaseConnecting
	o.agentID = agentID
	o.ended = make(chan struct{})
	o.mu.Unlock()

	ok := o.sender.Send(wire.VoiceModeSet{
		Type:             wire.TypeVoiceModeSet,
		Mode:             string(o.cfg.Mode),
		AgentID:          agentID,
		VADThreshold:     o.cfg.VADThreshold,
		SilenceTimeoutMS: int(o.cfg.SilenceTimeout / time.Millisecond),
	})
	if ok {
		ok = o.sender.Send(wire.NewTalkModeStart(agentID))
	}
	if !ok {
		o.reset()
		return core.NewSendError("channel not open")
	}

	o.voice.Activate(o.cfg.Mode)

	if err := o.capture.Start(o.onChunk); err != nil {
		o.voice.Reset()
		o.reset()
		return core.NewResourceError("audio capture failed: " + err.Error())
	}

	o.mu.Lock()
	o.tickerStop = make(chan struct{})
	stop := o.tickerStop
	o.phase = PhaseActive
	o.mu.Unlock()
	go o.tickDuration(stop)

	o.metrics.SetCallActive(true)
	o.logger.Debug("call started", "agent", agentID)
	return nil
}

// onChunk handles one captured PCM chunk. Muted calls keep capturing but
// neither meter nor transmit.
func (o *Orchestrator) onChunk(pcm []byte) {
	o.mu.Lock()
	if o.phase != PhaseActive || o.muted {
		o.mu.Unlock()
		return
	}
	o.level = audio.Level(pcm)
	agentID := o.agentID
	o.mu.Unlock()

	o.metrics.AddAudioBytes("out", len(pcm))
	o.sender.Send(wire.NewAudioChunk(agentID, base64.StdEncoding.EncodeToString(pcm)))
}

func (o *Orchestrator) tickDuration(stop chan struct{}) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			o.mu.Lock()
			o.durationS++
			o.mu.Unlock()
		}
	}
}

// SpeakResponse plays a synthesized response and blocks until playback
// settles, the timeout lapses, the call ends, or ctx is cancelled. It is
// honored only while the call is active with auto-TTS enabled.
func (o *Orchestrator) SpeakResponse(ctx context.Context, text string) error {
	o.mu.Lock()
	if o.phase != PhaseActive || !o.cfg.AutoTTS {
		o.mu.Unlock()
		return nil
	}
	o.speaking = true
	ended := o.ended
	o.mu.Unlock()
	o.voice.SetSpeaking(true)

	done, err := o.player.Play(text)
	if err != nil {
		o.finishSpeaking()
		return core.NewResourceError("playback failed: " + err.Error())
	}

	timeout := time.NewTimer(o.cfg.PlaybackTimeout)
	defer timeout.Stop()
	select {
	case <-done:
	case <-timeout.C:
		// A hung watcher counts as done so the call always returns to
		// listening.
		o.logger.Debug("playback watcher timed out")
		o.player.Stop()
	case <-ended:
		return nil
	case <-ctx.Done():
		o.player.Stop()
		o.finishSpeaking()
		return ctx.Err()
	}

	o.finishSpeaking()
	return nil
}

// finishSpeaking clears the speaking flag and, if the call is still
// active, returns the voice state to listening. An interruption may have
// cleared the flag already; the machine still has to leave the speaking
// state, so the transition runs unconditionally while the call is live.
func (o *Orchestrator) finishSpeaking() {
	o.mu.Lock()
	o.speaking = false
	active := o.phase == PhaseActive
	o.mu.Unlock()
	if active {
		o.voice.SetSpeaking(false)
	}
}

// HandleEnvelope reacts to inbound voice envelopes. A speech start while
// the assistant is speaking cuts playback and reports exactly one
// interruption.
func (o *Orchestrator) HandleEnvelope(env wire.Inbound) {
	vad, ok := env.(wire.VADEvent)
	if !ok || vad.Event != wire.VADSpeechStart {
		return
	}

	o.mu.Lock()
	if o.phase != PhaseActive || !o.speaking {
		o.mu.Unlock()
		return
	}
	o.speaking = false
	agentID := o.agentID
	o.mu.Unlock()

	o.player.Stop()
	o.sender.Send(wire.NewTalkInterruption(agentID))
	o.logger.Debug("assistant speech interrupted", "agent", agentID)
}

// EndCall tears the call down: capture, playback, ticker, and voice state
// all stop, and the backend is told the call ended. Ending an idle call
// is a no-op.
func (o *Orchestrator) EndCall() {
	o.mu.Lock()
	if o.phase == PhaseIdle || o.phase == PhaseEnding {
		o.mu.Unlock()
		return
	}
	o.phase = PhaseEnding
	agentID := o.agentID
	duration := o.durationS
	if o.tickerStop != nil {
		close(o.tickerStop)
		o.tickerStop = nil
	}
	if o.ended != nil {
		close(o.ended)
		o.ended = nil
	}
	o.mu.Unlock()

	o.capture.Stop()
	o.player.Stop()

	o.sender.Send(wire.NewTalkModeStop(agentID))
	o.sender.Send(wire.VoiceModeSet{Type: wire.TypeVoiceModeSet, Mode: "off", AgentID: agentID})

	o.voice.Reset()
	o.reset()

	o.metrics.SetCallActive(false)
	o.metrics.ObserveCallDuration(float64(duration))
	o.logger.Debug("call ended", "agent", agentID, "duration_s", duration)
}

// reset returns all call fields to their idle values.
func (o *Orchestrator) reset() {
	o.mu.Lock()
	o.phase = PhaseIdle
	o.agentID = ""
	o.muted = false
	o.level = 0
	o.durationS = 0
	o.speaking = false
	if o.tickerStop != nil {
		close(o.tickerStop)
		o.tickerStop = nil
	}
	if o.ended != nil {
		close(o.ended)
		o.ended = nil
	}
	o.mu.Unlock()
}
