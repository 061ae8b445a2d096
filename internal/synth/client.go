package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/book-expert/audiobook-service/internal/config"
	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/logger"
)

// API paths and headers for the ElevenLabs-compatible provider.
const (
	apiTextToSpeech = "/v1/text-to-speech/"

	headerAPIKey      = "xi-api-key"
	headerContentType = "Content-Type"
	headerAccept      = "Accept"
	contentTypeJSON   = "application/json"
	contentTypeMPEG   = "audio/mpeg"
)

// Provider defaults applied when the configuration leaves them unset.
const (
	defaultStability       = 0.5
	defaultSimilarityBoost = 0.7

	filePermissions = 0o600
)

// Request is the JSON payload sent to the provider.
type Request struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

// VoiceSettings tunes the provider's delivery.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Client synthesizes speech through an ElevenLabs-compatible HTTP API.
// It implements core.Synthesizer with bounded per-call retry; each attempt
// carries its own network timeout.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	modelID      string
	maxTextChars int
	settings     VoiceSettings
	retry        RetryPolicy
	log          *logger.Logger
}

// NewClient creates a synthesis client from the TTS configuration.
func NewClient(cfg config.TTSConfig, log *logger.Logger) *Client {
	settings := VoiceSettings{
		Stability:       cfg.Stability,
		SimilarityBoost: cfg.SimilarityBoost,
	}
	if settings.Stability == 0 {
		settings.Stability = defaultStability
	}

	if settings.SimilarityBoost == 0 {
		settings.SimilarityBoost = defaultSimilarityBoost
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		},
		baseURL:      cfg.BaseURL,
		apiKey:       cfg.APIKey,
		modelID:      cfg.ModelID,
		maxTextChars: cfg.MaxTextChars,
		settings:     settings,
		retry: RetryPolicy{
			MaxAttempts:  cfg.MaxAttempts,
			InitialDelay: time.Duration(cfg.InitialBackoffSeconds) * time.Second,
			MaxDelay:     time.Duration(cfg.MaxBackoffSeconds) * time.Second,
		},
		log: log,
	}
}

// Synthesize converts one text unit into one audio file at destination. The
// text is truncated to the provider's maximum length; the provider enforces
// the same cap server-side. On failure nothing is written to destination.
func (c *Client) Synthesize(ctx context.Context, text, voiceID, destination string) error {
	audioData, err := c.generate(ctx, text, voiceID)
	if err != nil {
		return err
	}

	return writeFileAtomic(destination, audioData)
}

func (c *Client) generate(ctx context.Context, text, voiceID string) ([]byte, error) {
	payload := Request{
		Text:          truncate(text, c.maxTextChars),
		ModelID:       c.modelID,
		VoiceSettings: c.settings,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	var audioData []byte

	retryErr := c.retry.Do(ctx, func(ctx context.Context) error {
		data, attemptErr := c.attempt(ctx, voiceID, body)
		if attemptErr != nil {
			c.log.Warn("Synthesis attempt for voice '%s' failed: %v", voiceID, attemptErr)

			return attemptErr
		}

		audioData = data

		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	return audioData, nil
}

// attempt performs one provider round trip. Rejections of any kind,
// transport failures included, surface as a core.SynthesisError carrying
// whatever diagnostics the provider returned.
func (c *Client) attempt(ctx context.Context, voiceID string, body []byte) ([]byte, error) {
	url := c.baseURL + apiTextToSpeech + voiceID

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}

	req.Header.Set(headerAPIKey, c.apiKey)
	req.Header.Set(headerContentType, contentTypeJSON)
	req.Header.Set(headerAccept, contentTypeMPEG)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &core.SynthesisError{StatusCode: 0, Body: "", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)

		return nil, &core.SynthesisError{
			StatusCode: resp.StatusCode,
			Body:       string(raw),
			Err:        nil,
		}
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &core.SynthesisError{StatusCode: 0, Body: "", Err: err}
	}

	return audioData, nil
}

// truncate bounds text to max characters without splitting a rune.
func truncate(text string, max int) string {
	if max <= 0 {
		return text
	}

	runes := []rune(text)
	if len(runes) <= max {
		return text
	}

	return string(runes[:max])
}

// writeFileAtomic writes data to a temporary sibling and renames it into
// place, so a failed write never leaves a partial file at path.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"

	err := os.WriteFile(tmpPath, data, filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write audio file: %w", err)
	}

	err = os.Rename(tmpPath, path)
	if err != nil {
		_ = os.Remove(tmpPath)

		return fmt.Errorf("failed to move audio file into place: %w", err)
	}

	return nil
}
