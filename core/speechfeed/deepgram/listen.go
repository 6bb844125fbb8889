package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/veliryo/avatar-core/core/audio"
	"github.com/veliryo/avatar-core/internal/utils"
)

func connectListenWebsocket(encodingInfo audio.EncodingInfo) (*websocket.Conn, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	listenUrl, _ := url.Parse("wss://api.deepgram.com/v1/listen")
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", encodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", "nova-3")
	queryParams.Set("language", "en-US")
	queryParams.Set("smart_format", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("interim_results", "true")
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")

	listenUrl.RawQuery = queryParams.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(listenUrl.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

// SendAudio forwards raw user microphone audio to the listen stream.
func (c *FeedClient) SendAudio(audio []byte) error {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()

	if c.listenConn == nil {
		return fmt.Errorf("listen connection closed")
	}

	c.lastAudioTs = time.Now()
	if err := c.listenConn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (c *FeedClient) sendSilence(audio []byte) error {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()

	if c.listenConn == nil {
		return fmt.Errorf("listen connection closed")
	}
	if err := c.listenConn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

func (c *FeedClient) sendListenKeepAlive() {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()

	if c.listenConn == nil {
		return
	}
	if err := c.listenConn.WriteJSON(
		struct {
			Type string `json:"type"`
		}{
			Type: "KeepAlive",
		}); err != nil {
		log.Println("Failed to write to deepgram client", "error", err)
	}
}

func (c *FeedClient) stopListenStream() error {
	c.listenMu.Lock()
	defer c.listenMu.Unlock()

	if c.listenConn != nil {
		if err := c.listenConn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
			return fmt.Errorf("failed to close deepgram listen stream: %w", err)
		}
	}
	return nil
}

func (c *FeedClient) readAndProcessListenMessages(ctx context.Context, conn *websocket.Conn) {
	silenceCtx, silenceCancel := context.WithCancel(ctx)
	defer silenceCancel()

	go c.generateSilence(silenceCtx, c.encodingInfo)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if err.Error() != "websocket: close 1000 (normal)" {
				log.Println("Failed to read deepgram websocket message", "error", err)
			}

			c.listenConn = nil
			conn.Close()
			return
		}
		if msgType != websocket.BinaryMessage {
			go c.processListenMessage(ctx, msg)
		}
	}
}

func (c *FeedClient) processListenMessage(_ context.Context, msg []byte) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	err := json.Unmarshal(msg, &parsedMsg)
	if err != nil {
		log.Println("Failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			log.Println("Failed to unmarshal deepgram message", err)
			return
		}
		if msgResp.IsFinal {
			if len(msgResp.Channel.Alternatives) > 0 {
				transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
				if len(transcript) > 0 {
					c.accumulatedTranscript += " " + transcript
				}
			}
			if msgResp.SpeechFinal {
				c.onUserSpeechEnded()
			}
		}

	case api.TypeUtteranceEndResponse:
		var msgResp api.UtteranceEndResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			log.Println("Failed to unmarshal deepgram message", err)
			return
		}

		if c.unendedSegment {
			c.onUserSpeechEnded()
		}
	case api.TypeSpeechStartedResponse:
		var msgResp api.SpeechStartedResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			log.Println("Failed to unmarshal deepgram message", err)
			return
		}

		c.unendedSegment = true
		if c.options.UserSpeechStartedCallback != nil {
			c.options.UserSpeechStartedCallback()
		}
	}
}

func (c *FeedClient) onUserSpeechEnded() {
	c.unendedSegment = false

	if c.options.UserSpeechEndedCallback != nil {
		c.options.UserSpeechEndedCallback()
	}

	fullTranscript := strings.TrimSpace(c.accumulatedTranscript)
	c.accumulatedTranscript = ""
	if len(fullTranscript) > 0 && c.options.UserTranscriptFinalCallback != nil {
		c.options.UserTranscriptFinalCallback(uuid.NewString(), fullTranscript, time.Now())
	}
}

// generateSilence keeps the listen stream warm: short gaps in microphone
// audio are padded with silence frames, longer gaps fall back to keep-alive
// pings so the connection is not dropped server-side.
func (c *FeedClient) generateSilence(ctx context.Context, encoding audio.EncodingInfo) {
	type silenceGeneratorState string
	const (
		silenceGeneratorStateWaiting   silenceGeneratorState = "waiting"
		silenceGeneratorStateSilence   silenceGeneratorState = "silence"
		silenceGeneratorStateKeepAlive silenceGeneratorState = "keepAlive"
	)

	const durationMs = 50
	const millisecondsPerSecond = 1000
	ticker := time.NewTicker(durationMs * time.Millisecond)

	chunk := make([]byte, encoding.BytesPerSecond()*durationMs/millisecondsPerSecond)
	for i := range chunk {
		chunk[i] = encoding.SilenceValue()
	}
	chunkDuration := encoding.Duration(len(chunk))

	var state = silenceGeneratorStateWaiting
	var firstSilenceTime *time.Time
	var lastKeepAliveTime *time.Time
	for {
		select {
		case <-ctx.Done():
			ticker.Stop()
			return
		case <-ticker.C:
			switch state {
			case silenceGeneratorStateWaiting:
				if time.Since(c.lastAudioTs) > chunkDuration {
					state = silenceGeneratorStateSilence
					firstSilenceTime = utils.Ptr(time.Now())
					continue
				}

			case silenceGeneratorStateSilence:
				if time.Since(c.lastAudioTs) < chunkDuration {
					state = silenceGeneratorStateWaiting
					firstSilenceTime = nil
					continue
				}
				if time.Since(*firstSilenceTime).Milliseconds() >= 1000 {
					state = silenceGeneratorStateKeepAlive
					lastKeepAliveTime = utils.Ptr(time.Now())
					firstSilenceTime = nil
					continue
				}

				if err := c.sendSilence(chunk); err != nil {
					log.Println("Sending silence audio error", err)
				}

			case silenceGeneratorStateKeepAlive:
				if time.Since(c.lastAudioTs) < chunkDuration {
					state = silenceGeneratorStateWaiting
					continue
				}

				if time.Since(*lastKeepAliveTime) >= c.options.KeepAliveInterval {
					lastKeepAliveTime = utils.Ptr(time.Now())
					c.sendListenKeepAlive()
				}
			}
		}
	}
}
