package miniaudio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/veliryo/avatar-core/core/audio"
)

// Renderer plays assembled clips on the local default output device. It is a
// development stand-in for the avatar renderer and exposes the same contract:
// accepted clips queue gaplessly, cancellation cuts playback immediately.
type Renderer struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig
	encodingInfo audio.EncodingInfo

	onTurnFinished func()

	mu      sync.Mutex
	audioMu sync.Mutex
	queued  []byte

	marksMu sync.Mutex
	marks   []playbackMark
}

type playbackMark struct {
	position int
	callback func()
}

type RendererOption func(*Renderer)

func WithEncodingInfo(encodingInfo audio.EncodingInfo) RendererOption {
	return func(r *Renderer) { r.encodingInfo = encodingInfo }
}

// WithTurnFinishedCallback registers a callback fired when playback crosses
// a turn-finished mark.
func WithTurnFinishedCallback(callback func()) RendererOption {
	return func(r *Renderer) { r.onTurnFinished = callback }
}

func NewRenderer(opts ...RendererOption) (*Renderer, error) {
	renderer := &Renderer{
		encodingInfo:   audio.GetDefaultEncodingInfo(),
		onTurnFinished: func() {},
	}
	for _, opt := range opts {
		opt(renderer)
	}

	if renderer.encodingInfo.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported playback format %q", renderer.encodingInfo.Format.Name())
	}

	audioCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize audio context: %w", err)
	}
	renderer.audioContext = audioCtx

	if err := renderer.initDevice(); err != nil {
		renderer.Close()
		return nil, fmt.Errorf("failed to initialize playback device: %w", err)
	}
	if err := renderer.device.Start(); err != nil {
		renderer.Close()
		return nil, fmt.Errorf("failed to start playback device: %w", err)
	}

	return renderer, nil
}

func (r *Renderer) initDevice() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sampleRate := uint32(r.encodingInfo.SampleRate)
	channels := r.encodingInfo.Channels
	if channels == 0 {
		channels = audio.DefaultChannels
	}
	bytesPerFrame := r.encodingInfo.FrameSize()

	r.config = malgo.DefaultDeviceConfig(malgo.Playback)
	r.config.SampleRate = sampleRate
	r.config.Playback.Format = malgo.FormatS16
	r.config.Playback.Channels = uint32(channels)
	r.config.Alsa.NoMMap = 1
	r.config.PeriodSizeInFrames = sampleRate / 10 // ~100ms of audio
	r.config.Periods = 4

	var err error
	if r.device, err = malgo.InitDevice(
		r.audioContext.Context,
		r.config,
		malgo.DeviceCallbacks{Data: r.processAudio(bytesPerFrame)},
	); err != nil {
		return err
	}

	return nil
}

// SubmitClip queues a clip for gapless playback after whatever is already
// queued. It returns as soon as the clip is accepted.
func (r *Renderer) SubmitClip(_ context.Context, clip []byte) error {
	r.mu.Lock()
	device := r.device
	r.mu.Unlock()

	if device == nil {
		return fmt.Errorf("device not initialized")
	} else if !device.IsStarted() {
		return fmt.Errorf("device not started")
	}

	r.audioMu.Lock()
	defer r.audioMu.Unlock()
	r.queued = append(r.queued, clip...)
	return nil
}

// CancelActiveSpeech drops everything queued, including pending turn marks.
func (r *Renderer) CancelActiveSpeech() error {
	r.audioMu.Lock()
	r.marksMu.Lock()
	defer r.audioMu.Unlock()
	defer r.marksMu.Unlock()

	r.queued = nil
	r.marks = nil
	return nil
}

// MarkTurnFinished places a mark after the currently queued audio; the
// turn-finished callback fires once playback passes it.
func (r *Renderer) MarkTurnFinished() error {
	r.audioMu.Lock()
	position := len(r.queued)
	r.audioMu.Unlock()

	r.marksMu.Lock()
	defer r.marksMu.Unlock()
	r.marks = append(r.marks, playbackMark{position: position, callback: r.onTurnFinished})
	return nil
}

func (r *Renderer) EncodingInfo() audio.EncodingInfo {
	return r.encodingInfo
}

func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	if r.audioContext != nil {
		_ = r.audioContext.Uninit()
		r.audioContext.Free()
		r.audioContext = nil
	}
}

func (r *Renderer) processAudio(bytesPerFrame int) malgo.DataProc {
	return func(pOutput, _ []byte, frameCount uint32) {
		need := int(frameCount) * bytesPerFrame
		r.processMarks(need)

		if len(r.queued) == 0 {
			return
		}

		if len(r.queued) < need {
			_ = copy(pOutput, r.queued)
			r.audioMu.Lock()
			r.queued = nil
			r.audioMu.Unlock()
			return
		}

		_ = copy(pOutput, r.queued[:need])
		r.audioMu.Lock()
		r.queued = r.queued[need:]
		r.audioMu.Unlock()
	}
}

func (r *Renderer) processMarks(until int) {
	passedMarks := 0
	for i, mark := range r.marks {
		if mark.position >= until {
			r.marks[i].position -= until
		} else {
			passedMarks++
		}
	}
	if passedMarks > 0 {
		r.marksMu.Lock()
		toCall := r.marks[:passedMarks]
		r.marks = r.marks[passedMarks:]
		defer r.marksMu.Unlock()
		go func() {
			for _, mark := range toCall {
				mark.callback()
			}
		}()
	}
}
