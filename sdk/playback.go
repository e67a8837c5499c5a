package relay

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/relaydesk/relay-go/pkg/core/audio"
	"github.com/relaydesk/relay-go/pkg/core/call"
)

// SynthesizeFunc turns text into PCM in the channel's fixed format.
type SynthesizeFunc func(ctx context.Context, text string) ([]byte, error)

// Speaker synthesizes and plays assistant speech through oto. It
// implements call.Player.
type Speaker struct {
	synth  SynthesizeFunc
	logger *slog.Logger
	format audio.Config

	mu      sync.Mutex
	otoCtx  *oto.Context
	current *oto.Player
	stopped bool
}

var _ call.Player = (*Speaker)(nil)

// NewSpeaker builds a speaker backed by the given synthesis function.
func NewSpeaker(synth SynthesizeFunc, logger *slog.Logger) *Speaker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Speaker{synth: synth, logger: logger, format: audio.DefaultConfig()}
}

// Play synthesizes the text and starts playback. The returned channel
// closes when playback drains, fails, or is stopped.
func (s *Speaker) Play(text string) (<-chan struct{}, error) {
	if err := s.initContext(); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		pcm, err := s.synth(ctx, text)
		if err != nil {
			s.logger.Debug("synthesis failed", "error", err)
			return
		}

		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return
		}
		player := s.otoCtx.NewPlayer(bytes.NewReader(pcm))
		s.current = player
		s.mu.Unlock()

		player.Play()
		for player.IsPlaying() {
			time.Sleep(10 * time.Millisecond)
		}

		s.mu.Lock()
		if s.current == player {
			s.current = nil
		}
		s.mu.Unlock()
		player.Close()
	}()
	return done, nil
}

// Stop cuts any current playback immediately and discards its remaining
// audio.
func (s *Speaker) Stop() {
	s.mu.Lock()
	player := s.current
	s.current = nil
	s.mu.Unlock()
	if player != nil {
		player.Pause()
		player.Close()
	}
}

// Close stops playback and refuses further plays. The oto context has no
// teardown; it lives for the process.
func (s *Speaker) Close() {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.Stop()
}

func (s *Speaker) initContext() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.otoCtx != nil {
		return nil
	}
	opts := &oto.NewContextOptions{
		SampleRate:   s.format.SampleRate,
		ChannelCount: s.format.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	}
	otoCtx, ready, err := oto.NewContext(opts)
	if err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	<-ready
	s.otoCtx = otoCtx
	return nil
}
