package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/veliryo/avatar-core/core/audio"
)

func connectSpeakWebsocket(voice feedVoice, encodingInfo audio.EncodingInfo) (*websocket.Conn, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	urlValues := url.Values{}
	urlValues.Set("encoding", encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(encodingInfo.SampleRate))
	urlValues.Set("model", string(voice))
	urlValues.Set("container", "none")

	conn, _, err := websocket.DefaultDialer.Dial(
		(&url.URL{
			Scheme: "wss",
			Host:   "api.deepgram.com", Path: "/v1/speak",
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{"Authorization": {"token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

// Speak starts a new assistant turn for the given text. The turn's audio
// arrives fragmented through the audio-delta callback; completion is signaled
// once the backend flushes the turn.
func (c *FeedClient) Speak(ctx context.Context, text string) (string, error) {
	if c.closed {
		return "", fmt.Errorf("feed client closed")
	}

	c.turnMu.Lock()
	turnID := uuid.NewString()
	c.activeTurnID = turnID
	c.turnMu.Unlock()

	if c.options.TextDeltaCallback != nil {
		c.options.TextDeltaCallback(turnID, text, time.Now())
	}

	if err := c.sendSpeakMessage(sendTextMsg(text)); err != nil {
		return "", fmt.Errorf("failed to send websocket send text message: %w", err)
	}
	if err := c.sendSpeakMessage(flushMsg); err != nil {
		return "", fmt.Errorf("failed to send websocket flush message: %w", err)
	}

	return turnID, nil
}

// CancelSpeech abandons the in-flight assistant turn and clears the backend
// synthesis buffer.
func (c *FeedClient) CancelSpeech() error {
	c.turnMu.Lock()
	turnID := c.activeTurnID
	c.activeTurnID = ""
	c.turnMu.Unlock()

	if turnID == "" {
		return nil
	}

	if err := c.sendSpeakMessage(clearMsg); err != nil {
		return fmt.Errorf("failed to send websocket clear message: %w", err)
	}

	if c.options.TurnCanceledCallback != nil {
		c.options.TurnCanceledCallback(turnID)
	}
	return nil
}

func (c *FeedClient) readAndProcessSpeakMessages(_ context.Context, conn *websocket.Conn) {
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if err.Error() != "websocket: close 1000 (normal)" {
				log.Printf("Websocket read error: %v", err)
			}

			c.speakConn = nil
			conn.Close()
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			c.turnMu.Lock()
			turnID := c.activeTurnID
			c.turnMu.Unlock()

			if turnID != "" && len(msg) > 0 && c.options.AudioDeltaCallback != nil {
				c.options.AudioDeltaCallback(turnID, msg, time.Now())
			}
		case websocket.TextMessage:
			var parsedMsg struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				c.turnMu.Lock()
				turnID := c.activeTurnID
				c.activeTurnID = ""
				c.turnMu.Unlock()

				if turnID != "" && c.options.TurnCompletedCallback != nil {
					c.options.TurnCompletedCallback(turnID)
				}
			}
		}
	}
}

type websocketMessage struct {
	Type string `json:"type"`
}

var (
	sendTextMsg = func(text string) struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} {
		return struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}{Type: "Speak", Text: text}
	}
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

func (c *FeedClient) sendSpeakMessage(msg any) error {
	c.speakMu.Lock()
	defer c.speakMu.Unlock()

	if c.speakConn == nil {
		return fmt.Errorf("websocket connection closed")
	}
	if err := c.speakConn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}

func (c *FeedClient) closeSpeakStream() error {
	if err := c.sendSpeakMessage(closeMsg); err != nil {
		c.speakMu.Lock()
		conn := c.speakConn
		c.speakMu.Unlock()
		if conn != nil {
			if aggressiveCloseErr := conn.Close(); aggressiveCloseErr != nil {
				return fmt.Errorf("failed to close websocket: %w", errors.Join(err, aggressiveCloseErr))
			}
		}
	}
	return nil
}
