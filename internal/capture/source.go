// Package capture drives the audio input device and feeds captured blocks
// into the multi-track engine and the timing engine.
//
// The device callback only stages raw PCM into a byte ring buffer; block
// assembly, sample conversion, and the per-block timing decision run on a
// separate goroutine so the real-time callback never does more than a
// bounded copy.
package capture

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/oscil-go/internal/audio"
	"github.com/tphakala/oscil-go/internal/conf"
	"github.com/tphakala/oscil-go/internal/errors"
	"github.com/tphakala/oscil-go/internal/logging"
	"github.com/tphakala/oscil-go/internal/observability"
	"github.com/tphakala/oscil-go/internal/timing"
)

// stagingBlocks is how many audio blocks the staging ring buffer can hold
// before the device callback starts dropping.
const stagingBlocks = 16

// CaptureEvent reports one fired capture decision.
type CaptureEvent struct {
	Frame uint64 // waveform bridge frame counter at fire time
	Mode  timing.TimingMode
	When  time.Time
}

// Source owns one capture device and the goroutine that turns its PCM
// stream into engine blocks.
type Source struct {
	settings     *conf.Settings
	engine       *audio.MultiTrackEngine
	timingEngine *timing.TimingEngine
	metrics      *observability.Metrics // nil when telemetry is disabled

	staging *ringbuffer.RingBuffer
	events  chan CaptureEvent
	failed  chan error

	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	deviceID   malgo.DeviceID // kept alive for the device's id pointer
	useDefault bool
	deviceName string

	quit    chan struct{}
	wg      sync.WaitGroup
	started atomic.Bool

	droppedBytes atomic.Uint64
	lastCallback atomic.Int64 // unix nanos of the previous data callback

	logger *slog.Logger
}

// NewSource creates a capture source bound to the given engines. metrics
// may be nil.
func NewSource(settings *conf.Settings, engine *audio.MultiTrackEngine, timingEngine *timing.TimingEngine, metrics *observability.Metrics) *Source {
	logger := logging.ForService("capture")
	if logger == nil {
		logger = slog.Default()
	}

	blockBytes := settings.Audio.BlockSize * settings.Audio.Channels * bytesPerSample
	return &Source{
		settings:     settings,
		engine:       engine,
		timingEngine: timingEngine,
		metrics:      metrics,
		staging:      ringbuffer.New(blockBytes * stagingBlocks),
		events:       make(chan CaptureEvent, 16),
		failed:       make(chan error, 1),
		quit:         make(chan struct{}),
		logger:       logger,
	}
}

// Events delivers fired capture decisions. The channel is buffered and
// never blocks the capture path; a slow consumer loses events, not audio.
func (s *Source) Events() <-chan CaptureEvent {
	return s.events
}

// Failures delivers at most one unrecoverable device error; the supervisor
// is expected to tear the source down and build a new one.
func (s *Source) Failures() <-chan error {
	return s.failed
}

// DeviceName returns the resolved device name after Start.
func (s *Source) DeviceName() string {
	return s.deviceName
}

// DroppedBytes returns the number of staged bytes lost to overruns.
func (s *Source) DroppedBytes() uint64 {
	return s.droppedBytes.Load()
}

// Start opens the configured device and begins capturing. The context only
// bounds startup; use Stop to end capture.
func (s *Source) Start(ctx context.Context) error {
	if !s.started.CompareAndSwap(false, true) {
		return errors.Newf("capture already started").
			Component("capture").
			Category(errors.CategoryState).
			Build()
	}

	if err := ctx.Err(); err != nil {
		s.started.Store(false)
		return err
	}

	malgoCtx, err := malgo.InitContext(preferredBackend(), malgo.ContextConfig{}, func(message string) {
		s.logger.Debug("miniaudio", "message", message)
	})
	if err != nil {
		s.started.Store(false)
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Build()
	}
	s.malgoCtx = malgoCtx

	infos, err := malgoCtx.Devices(malgo.Capture)
	if err != nil {
		s.teardownContext()
		s.started.Store(false)
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Build()
	}

	s.deviceID, s.useDefault, s.deviceName, err = selectDevice(infos, s.settings.Audio.Source)
	if err != nil {
		s.teardownContext()
		s.started.Store(false)
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(s.settings.Audio.Channels)
	deviceConfig.SampleRate = uint32(s.settings.Audio.SampleRate)
	deviceConfig.Alsa.NoMMap = 1
	if !s.useDefault {
		deviceConfig.Capture.DeviceID = s.deviceID.Pointer()
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: s.onReceiveFrames,
		Stop: s.onDeviceStop,
	})
	if err != nil {
		s.teardownContext()
		s.started.Store(false)
		s.recordDeviceStart("error")
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("device", s.deviceName).
			Build()
	}
	s.device = device

	sampleRate := float64(s.settings.Audio.SampleRate)
	s.engine.PrepareToPlay(sampleRate, s.settings.Audio.BlockSize, s.settings.Audio.Channels)
	s.timingEngine.PrepareToPlay(sampleRate, s.settings.Audio.BlockSize)

	if err := device.Start(); err != nil {
		device.Uninit()
		s.device = nil
		s.teardownContext()
		s.started.Store(false)
		s.recordDeviceStart("error")
		return errors.New(err).
			Component("capture").
			Category(errors.CategoryAudioSource).
			Context("device", s.deviceName).
			Build()
	}
	s.recordDeviceStart("success")

	s.wg.Add(1)
	go s.assembleBlocks()

	s.logger.Info("capture started",
		"device", s.deviceName,
		"sample_rate", s.settings.Audio.SampleRate,
		"channels", s.settings.Audio.Channels,
		"block_size", s.settings.Audio.BlockSize)
	return nil
}

// Stop ends capture and releases the device. Idempotent.
func (s *Source) Stop() {
	if !s.started.CompareAndSwap(true, false) {
		return
	}

	close(s.quit)
	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}
	s.teardownContext()
	s.wg.Wait()

	s.engine.ReleaseResources()
	s.timingEngine.ReleaseResources()
	s.logger.Info("capture stopped", "device", s.deviceName)
}

func (s *Source) teardownContext() {
	if s.malgoCtx != nil {
		_ = s.malgoCtx.Uninit()
		s.malgoCtx.Free()
		s.malgoCtx = nil
	}
}

func (s *Source) recordDeviceStart(status string) {
	if s.metrics != nil {
		s.metrics.Capture.RecordDeviceStart(s.deviceName, status)
	}
}

// onReceiveFrames stages raw PCM from the device callback. Must stay
// allocation-free and bounded.
func (s *Source) onReceiveFrames(_, pSamples []byte, _ uint32) {
	now := time.Now().UnixNano()
	if prev := s.lastCallback.Swap(now); prev != 0 && s.metrics != nil {
		s.metrics.Capture.RecordCallbackGap(s.deviceName, float64(now-prev)/1e9)
	}

	n, err := s.staging.Write(pSamples)
	if err != nil {
		dropped := uint64(len(pSamples) - n)
		if s.droppedBytes.Add(dropped) == dropped {
			// Log the first overrun only; after that the counter tells
			// the story.
			s.logger.Warn("staging buffer overrun, dropping audio",
				"device", s.deviceName,
				"dropped_bytes", dropped)
		}
		if s.metrics != nil {
			s.metrics.Capture.RecordDeviceError(s.deviceName, "overrun")
		}
	}
}

// onDeviceStop restarts the device after an unexpected stop; if the restart
// fails, the failure channel tells the supervisor to rebuild the source.
func (s *Source) onDeviceStop() {
	go func() {
		select {
		case <-s.quit:
			return
		case <-time.After(100 * time.Millisecond):
		}

		device := s.device
		if device == nil || !s.started.Load() {
			return
		}
		if err := device.Start(); err != nil {
			s.logger.Error("device restart failed", "device", s.deviceName, "error", err)
			if s.metrics != nil {
				s.metrics.Capture.RecordDeviceError(s.deviceName, "restart_failed")
			}
			select {
			case s.failed <- errors.New(err).
				Component("capture").
				Category(errors.CategoryAudioSource).
				Context("device", s.deviceName).
				Build():
			default:
			}
			return
		}
		s.logger.Info("device restarted", "device", s.deviceName)
	}()
}

// assembleBlocks drains the staging buffer into fixed-size blocks and runs
// the per-block pipeline: timing clock advance, capture decision, engine
// routing.
func (s *Source) assembleBlocks() {
	defer s.wg.Done()

	blockSize := s.settings.Audio.BlockSize
	channels := s.settings.Audio.Channels
	gain := float32(s.settings.Audio.Gain)
	if gain <= 0 {
		gain = 1
	}
	blockBytes := blockSize * channels * bytesPerSample

	raw := make([]byte, blockBytes)
	chans := make([][]float32, channels)
	for ch := range chans {
		chans[ch] = make([]float32, blockSize)
	}

	// Poll at half the block duration so staged audio never waits more
	// than one block.
	blockDuration := time.Duration(float64(blockSize) / float64(s.settings.Audio.SampleRate) * float64(time.Second))
	poll := max(blockDuration/2, time.Millisecond)
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			for s.staging.Length() >= blockBytes {
				if _, err := s.staging.Read(raw); err != nil {
					break
				}
				s.processBlock(raw, chans, blockSize, gain)
			}
		}
	}
}

func (s *Source) processBlock(raw []byte, chans [][]float32, blockSize int, gain float32) {
	deinterleaveS16(raw, chans, blockSize, gain)

	s.timingEngine.ProcessTimingBlock(nil, blockSize)
	fired := s.timingEngine.ShouldCapture(nil, chans, blockSize)
	s.engine.ProcessAudioBlock(chans, blockSize)

	if !fired {
		return
	}

	event := CaptureEvent{
		Frame: s.engine.WaveformBridge().FrameCount(),
		Mode:  s.timingEngine.Mode(),
		When:  time.Now(),
	}
	select {
	case s.events <- event:
	default:
	}
}
