package portaudio

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/veliryo/avatar-core/core/audio"
)

// Renderer plays assembled clips through PortAudio. Unlike the miniaudio
// renderer it writes synchronously, so SubmitClip blocks for the clip's
// playback duration; cancellation aborts the write loop between buffers.
type Renderer struct {
	bufferSize   int
	stream       *portaudio.Stream
	encodingInfo audio.EncodingInfo

	out []int16

	mu        sync.Mutex
	leftover  []byte
	cancelled bool
}

func NewRenderer(bufferSize int) (*Renderer, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	out := make([]int16, bufferSize)
	stream, err := portaudio.OpenDefaultStream(0, 1, audio.DefaultSampleRate, bufferSize, out)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open portaudio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start portaudio stream: %w", err)
	}

	return &Renderer{
		bufferSize:   bufferSize,
		stream:       stream,
		encodingInfo: audio.GetDefaultEncodingInfo(),
		out:          out,
	}, nil
}

func (r *Renderer) SubmitClip(ctx context.Context, clip []byte) error {
	chunkSize := r.bufferSize * r.encodingInfo.FrameSize()

	r.mu.Lock()
	r.cancelled = false
	data := append(r.leftover, clip...)
	r.leftover = nil
	r.mu.Unlock()

	for len(data) >= chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		r.mu.Lock()
		cancelled := r.cancelled
		r.mu.Unlock()
		if cancelled {
			return nil
		}

		if err := binary.Read(bytes.NewBuffer(data[:chunkSize]), binary.LittleEndian, r.out); err != nil {
			return fmt.Errorf("failed to decode clip chunk: %w", err)
		}
		if err := r.stream.Write(); err != nil {
			return fmt.Errorf("failed to write to portaudio stream: %w", err)
		}
		data = data[chunkSize:]
	}

	r.mu.Lock()
	if !r.cancelled {
		r.leftover = data
	}
	r.mu.Unlock()
	return nil
}

func (r *Renderer) CancelActiveSpeech() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = true
	r.leftover = nil
	return nil
}

// MarkTurnFinished drains the sub-buffer remainder, padded with silence to a
// full device buffer.
func (r *Renderer) MarkTurnFinished() error {
	chunkSize := r.bufferSize * r.encodingInfo.FrameSize()

	r.mu.Lock()
	data := r.leftover
	r.leftover = nil
	r.mu.Unlock()

	if len(data) == 0 {
		return nil
	}

	padded := make([]byte, chunkSize)
	copy(padded, data)
	for i := len(data); i < chunkSize; i++ {
		padded[i] = r.encodingInfo.SilenceValue()
	}

	if err := binary.Read(bytes.NewBuffer(padded), binary.LittleEndian, r.out); err != nil {
		return fmt.Errorf("failed to decode clip remainder: %w", err)
	}
	if err := r.stream.Write(); err != nil {
		return fmt.Errorf("failed to write to portaudio stream: %w", err)
	}
	return nil
}

func (r *Renderer) EncodingInfo() audio.EncodingInfo {
	return r.encodingInfo
}

func (r *Renderer) Close() {
	r.stream.Close()
	portaudio.Terminate()
}
