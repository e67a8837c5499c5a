package relay

import (
	"context"
	"sync"

	"github.com/relaydesk/relay-go/pkg/core/agents"
	"github.com/relaydesk/relay-go/pkg/core/call"
	"github.com/relaydesk/relay-go/pkg/core/conn"
	"github.com/relaydesk/relay-go/pkg/core/voice"
	"github.com/relaydesk/relay-go/pkg/core/wire"
)

// SessionConfig customizes a realtime session. Zero values get sensible
// defaults; Capture and Player default to the real microphone and
// speaker.
type SessionConfig struct {
	Conn    conn.Config
	Call    call.Config
	Capture call.Capture
	Player  call.Player

	// OnChange runs after any agent or voice state mutation.
	OnChange func()
	// OnUnauthorized runs when the channel requires re-authentication.
	OnUnauthorized func(reason string)
}

// Session multiplexes agents and at most one voice call over one realtime
// connection. Construct with Client.NewSession, start with Start, and
// always Close.
type Session struct {
	client *Client

	conn   *conn.Manager
	agents *agents.Orchestrator
	voice  *voice.Machine
	call   *call.Orchestrator

	onUnauthorized func(string)

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewSession builds a session wired to this client's credentials.
func (c *Client) NewSession(cfg SessionConfig) *Session {
	connCfg := cfg.Conn
	if connCfg.URL == "" {
		connCfg = conn.DefaultConfig(c.realtimeURL())
	}
	cm := conn.NewManager(connCfg, c.logger, c.metrics)
	cm.SetToken(c.Token())

	vm := voice.NewMachine(nil)
	ag := agents.New(cm, c.logger, cfg.OnChange)

	capture := cfg.Capture
	if capture == nil {
		capture = NewMicCapture(c.logger)
	}
	player := cfg.Player
	if player == nil {
		player = NewSpeaker(c.Transcribe.Synthesize, c.logger)
	}
	callCfg := cfg.Call
	if callCfg == (call.Config{}) {
		callCfg = call.DefaultConfig()
	}
	co := call.NewOrchestrator(callCfg, cm, capture, player, vm, c.logger, c.metrics)

	return &Session{
		client:         c,
		conn:           cm,
		agents:         ag,
		voice:          vm,
		call:           co,
		onUnauthorized: cfg.OnUnauthorized,
		done:           make(chan struct{}),
	}
}

// Start opens the realtime channel and begins routing inbound envelopes.
func (s *Session) Start(ctx context.Context) error {
	if err := s.conn.Connect(ctx); err != nil {
		return err
	}
	s.wg.Add(1)
	go s.dispatch()
	return nil
}

// dispatch routes each connection event to every component that reacts to
// it. Envelopes are processed strictly in arrival order.
func (s *Session) dispatch() {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.conn.Events():
			s.handleEvent(ev)
		}
	}
}

func (s *Session) handleEvent(ev conn.Event) {
	switch e := ev.(type) {
	case conn.EnvelopeEvent:
		s.route(e.Env)
	case conn.UnauthorizedEvent:
		s.client.SetToken("")
		if s.onUnauthorized != nil {
			s.onUnauthorized(e.Reason)
		}
	case conn.StatusEvent:
		s.client.logger.Debug("connection status", "old", e.Old, "new", e.New)
	}
}

func (s *Session) route(env wire.Inbound) {
	s.voice.Apply(env)
	s.call.HandleEnvelope(env)
	s.agents.HandleEnvelope(env)
}

// Agents returns the agent orchestrator.
func (s *Session) Agents() *agents.Orchestrator { return s.agents }

// Voice returns the voice state machine.
func (s *Session) Voice() *voice.Machine { return s.voice }

// Call returns the call orchestrator.
func (s *Session) Call() *call.Orchestrator { return s.call }

// Conn returns the connection manager.
func (s *Session) Conn() *conn.Manager { return s.conn }

// SendMessage submits a user turn to the active agent.
func (s *Session) SendMessage(text string) error {
	return s.agents.SendMessage(s.agents.ActiveID(), text)
}

// StartCall begins a voice call on the active agent.
func (s *Session) StartCall() error {
	return s.call.StartCall(s.agents.ActiveID())
}

// EndCall ends any active voice call.
func (s *Session) EndCall() {
	s.call.EndCall()
}

// SpeakResponse speaks a response aloud during an active call.
func (s *Session) SpeakResponse(ctx context.Context, text string) error {
	return s.call.SpeakResponse(ctx, text)
}

// Close tears the session down: call, timers, dispatch loop, and the
// connection.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.call.EndCall()
		s.agents.Shutdown()
		close(s.done)
		s.conn.Close()
		s.wg.Wait()
	})
}
