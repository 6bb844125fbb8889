package events

const (
	// KindAudioDelta identifies incremental assistant audio fragments.
	KindAudioDelta Kind = "feed.audio_delta"
	// KindTextDelta identifies incremental assistant text fragments.
	KindTextDelta Kind = "feed.text_delta"
)

// AudioDelta carries one incremental assistant audio fragment for a turn.
//
// The payload is opaque to the orchestration layer; it is accumulated and
// submitted to the renderer as-is.
type AudioDelta struct {
	Base
	TurnID  string
	Payload []byte
}

// NewAudioDelta creates an assistant audio fragment event.
func NewAudioDelta(turnID string, payload []byte) AudioDelta {
	return AudioDelta{Base: NewBase(KindAudioDelta), TurnID: turnID, Payload: payload}
}

// TextDelta carries one incremental assistant text fragment for a turn.
type TextDelta struct {
	Base
	TurnID string
	Text   string
}

// NewTextDelta creates an assistant text fragment event.
func NewTextDelta(turnID string, text string) TextDelta {
	return TextDelta{Base: NewBase(KindTextDelta), TurnID: turnID, Text: text}
}
