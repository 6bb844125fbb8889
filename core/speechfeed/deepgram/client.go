package deepgram

import (
	"context"
	"fmt"
	"log"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/veliryo/avatar-core/core/audio"
	"github.com/veliryo/avatar-core/core/speechfeed"
)

type feedVoice string

const (
	VoiceThalia  feedVoice = "aura-2-thalia-en"
	VoiceAsteria feedVoice = "aura-asteria-en"
	VoiceOrion   feedVoice = "aura-orion-en"

	defaultVoice = VoiceThalia
)

func GetAvailableVoices() []feedVoice {
	return []feedVoice{VoiceThalia, VoiceAsteria, VoiceOrion}
}

// FeedClient bridges Deepgram's listen and speak websockets into the event
// stream the orchestrator consumes: user speech activity and finalized
// transcripts on the listen side, assistant audio and text deltas plus turn
// boundaries on the speak side.
type FeedClient struct {
	voice        feedVoice
	encodingInfo audio.EncodingInfo
	options      speechfeed.FeedOptions

	listenConn  *websocket.Conn
	listenMu    sync.Mutex
	lastAudioTs time.Time

	unendedSegment        bool
	accumulatedTranscript string

	speakConn    *websocket.Conn
	speakMu      sync.Mutex
	turnMu       sync.Mutex
	activeTurnID string

	closed bool
}

type ClientOption func(*FeedClient)

func WithVoice(voice feedVoice) ClientOption {
	return func(c *FeedClient) { c.voice = voice }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) ClientOption {
	return func(c *FeedClient) { c.encodingInfo = encodingInfo }
}

func NewFeedClient(ctx context.Context, opts ...ClientOption) (*FeedClient, error) {
	client := &FeedClient{
		voice:        defaultVoice,
		encodingInfo: audio.GetDefaultEncodingInfo(),
	}

	for _, opt := range opts {
		opt(client)
	}

	if !slices.Contains(GetAvailableVoices(), client.voice) {
		return nil, fmt.Errorf("invalid voice")
	}

	return client, nil
}

// Open dials the listen and speak websockets and starts their read loops.
func (c *FeedClient) Open(ctx context.Context, opts ...speechfeed.FeedOption) error {
	options := speechfeed.FeedOptions{KeepAliveInterval: 5 * time.Second}
	for _, opt := range opts {
		opt(&options)
	}
	c.options = options

	listenConn, err := connectListenWebsocket(c.encodingInfo)
	if err != nil {
		return fmt.Errorf("failed to open listen websocket: %w", err)
	}
	c.listenConn = listenConn
	go c.readAndProcessListenMessages(ctx, listenConn)

	speakConn, err := connectSpeakWebsocket(c.voice, c.encodingInfo)
	if err != nil {
		listenConn.Close()
		c.listenConn = nil
		return fmt.Errorf("failed to open speak websocket: %w", err)
	}
	c.speakConn = speakConn
	go c.readAndProcessSpeakMessages(ctx, speakConn)

	return nil
}

func (c *FeedClient) Close(ctx context.Context) error {
	c.closed = true

	if err := c.stopListenStream(); err != nil {
		log.Printf("Failed to close listen stream: %v", err)
	}
	if err := c.closeSpeakStream(); err != nil {
		log.Printf("Failed to close speak stream: %v", err)
	}

	return nil
}
