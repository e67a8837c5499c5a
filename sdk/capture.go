package relay

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/relaydesk/relay-go/pkg/core/audio"
	"github.com/relaydesk/relay-go/pkg/core/call"
)

// MicCapture streams microphone PCM through malgo in the channel's fixed
// format (mono, 16 kHz, 16-bit). It implements call.Capture.
type MicCapture struct {
	logger *slog.Logger
	format audio.Config

	mu      sync.Mutex
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	started bool
}

var _ call.Capture = (*MicCapture)(nil)

// NewMicCapture builds an unstarted capture. The audio context is lazily
// initialized on first use.
func NewMicCapture(logger *slog.Logger) *MicCapture {
	if logger == nil {
		logger = slog.Default()
	}
	return &MicCapture{logger: logger, format: audio.DefaultConfig()}
}

// EnsurePermission verifies a capture device is available before any call
// state mutates. It initializes the audio context and enumerates capture
// devices, which on macOS also triggers the OS permission prompt.
func (m *MicCapture) EnsurePermission() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.initContextLocked(); err != nil {
		return err
	}
	devices, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return fmt.Errorf("enumerate capture devices: %w", err)
	}
	if len(devices) == 0 {
		return fmt.Errorf("no capture device available")
	}
	return nil
}

// Start opens the default capture device and delivers PCM chunks to
// onChunk from the hardware callback.
func (m *MicCapture) Start(onChunk func(pcm []byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return fmt.Errorf("capture already started")
	}
	if err := m.initContextLocked(); err != nil {
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(m.format.Channels)
	deviceConfig.SampleRate = uint32(m.format.SampleRate)
	deviceConfig.PeriodSizeInMilliseconds = 20
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInputSamples []byte, _ uint32) {
			// The callback buffer is reused by malgo; hand out a copy.
			chunk := make([]byte, len(pInputSamples))
			copy(chunk, pInputSamples)
			onChunk(chunk)
		},
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}

	m.device = device
	m.started = true
	m.logger.Debug("microphone capture started",
		"sample_rate", m.format.SampleRate, "channels", m.format.Channels)
	return nil
}

// Stop halts capture. The audio context stays alive for the next call.
func (m *MicCapture) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.device != nil {
		m.device.Stop()
		m.device.Uninit()
		m.device = nil
	}
	m.started = false
}

// Close releases the audio context. The capture cannot be reused.
func (m *MicCapture) Close() {
	m.Stop()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		m.ctx.Uninit()
		m.ctx.Free()
		m.ctx = nil
	}
}

func (m *MicCapture) initContextLocked() error {
	if m.ctx != nil {
		return nil
	}
	cfg := malgo.ContextConfig{}
	cfg.ThreadPriority = malgo.ThreadPriorityRealtime
	ctx, err := malgo.InitContext(nil, cfg, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	m.ctx = ctx
	return nil
}
