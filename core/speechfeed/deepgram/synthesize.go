package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var synthesisHTTPClient = &http.Client{
	Transport: otelhttp.NewTransport(http.DefaultTransport),
	Timeout:   10 * time.Second,
}

// Synthesize renders one utterance through the REST endpoint and returns the
// raw audio. Used for out-of-band prompts that should not disturb the
// streaming speak connection.
func (c *FeedClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	body, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	urlValues := url.Values{}
	urlValues.Set("encoding", c.encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(c.encodingInfo.SampleRate))
	urlValues.Set("model", string(c.voice))
	urlValues.Set("container", "none")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		(&url.URL{
			Scheme: "https",
			Host:   "api.deepgram.com", Path: "/v1/speak",
			RawQuery: urlValues.Encode(),
		}).String(),
		bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build synthesis request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := synthesisHTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call synthesis endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesis endpoint returned %s", resp.Status)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesis response: %w", err)
	}
	return audio, nil
}

// SpeakNudge synthesizes a short prompt out of band and feeds it back as a
// regular assistant turn so it flows through the normal clip pipeline.
func (c *FeedClient) SpeakNudge(ctx context.Context, text string) (string, error) {
	audio, err := c.Synthesize(ctx, text)
	if err != nil {
		return "", err
	}

	turnID := uuid.NewString()
	if c.options.TextDeltaCallback != nil {
		c.options.TextDeltaCallback(turnID, text, time.Now())
	}
	if c.options.AudioDeltaCallback != nil {
		c.options.AudioDeltaCallback(turnID, audio, time.Now())
	}
	if c.options.TurnCompletedCallback != nil {
		c.options.TurnCompletedCallback(turnID)
	}
	return turnID, nil
}
