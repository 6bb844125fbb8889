package audio

import "time"

const (
	DefaultSampleRate = 16000
	DefaultFormat     = EncodingLinear16
	DefaultChannels   = 1
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{
		SampleRate: DefaultSampleRate,
		Format:     DefaultFormat,
		Channels:   DefaultChannels,
	}
}

// EncodingInfo describes the raw audio the pipeline carries. Clips are byte
// slices in this encoding from the speech feed all the way to the renderer.
type EncodingInfo struct {
	SampleRate int
	Format     encodingFormat
	Channels   int
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// FrameSize returns the byte size of one sample frame across all channels.
func (e EncodingInfo) FrameSize() int {
	channels := e.Channels
	if channels == 0 {
		channels = DefaultChannels
	}
	return e.Format.ByteSize() * channels
}

// BytesPerSecond returns the raw throughput of the encoding.
func (e EncodingInfo) BytesPerSecond() int {
	return e.SampleRate * e.FrameSize()
}

// Duration converts a byte count in this encoding to playback time.
func (e EncodingInfo) Duration(byteCount int) time.Duration {
	perSecond := e.BytesPerSecond()
	if perSecond <= 0 {
		return 0
	}
	return time.Duration(byteCount) * time.Second / time.Duration(perSecond)
}

// SilenceValue returns the byte that encodes digital silence.
func (e EncodingInfo) SilenceValue() byte {
	switch e.Format {
	case EncodingALaw:
		return 0x55
	case EncodingMulaw:
		return 0xFF
	case EncodingLinear16:
		return 0
	}
	return 0
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case EncodingMulaw, EncodingALaw:
		return 1
	case EncodingLinear16:
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
