// Package gemini adapts the Google Gen AI SDK to the three capabilities the
// poem pipeline needs: schema-constrained text, token counting, and narration.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

var (
	// ErrTransient marks failures worth retrying later (rate limits, 5xx, timeouts).
	ErrTransient = errors.New("gemini: transient failure")
	// ErrContentBlocked is returned when the model refuses the prompt.
	ErrContentBlocked = errors.New("gemini: content blocked")
	// ErrEmptyResponse is returned when the model produced no usable output.
	ErrEmptyResponse = errors.New("gemini: empty response")
)

// Config holds provider settings
type Config struct {
	APIKey     string
	TextModel  string
	TokenModel string
	TTSModel   string
	Timeout    time.Duration
}

// Audio is narrated speech and the MIME type describing it.
type Audio struct {
	Data     []byte
	MIMEType string
}

// Client wraps genai.Client
type Client struct {
	client *genai.Client
	config Config
	logger *slog.Logger
}

// NewClient creates a Gemini API client
func NewClient(ctx context.Context, config Config, logger *slog.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	logger.Info("Gemini client initialized",
		slog.String("text_model", config.TextModel),
		slog.String("tts_model", config.TTSModel),
	)

	return &Client{client: client, config: config, logger: logger}, nil
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.config.Timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.config.Timeout)
}

// GenerateText returns the model's text output. When schema is set the model
// is asked for JSON matching it.
func (c *Client) GenerateText(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	var cfg *genai.GenerateContentConfig
	if schema != nil {
		cfg = &genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
		}
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, c.config.TextModel, genai.Text(prompt), cfg)
	if err != nil {
		return "", classify(err)
	}

	text, err := responseText(resp)
	if err != nil {
		return "", err
	}

	c.logger.Debug("Gemini text generated",
		slog.String("model", c.config.TextModel),
		slog.Int("chars", len(text)),
		slog.Duration("latency", time.Since(start)),
	)
	return text, nil
}

// CountTokens returns the token count of text under the token model.
func (c *Client) CountTokens(ctx context.Context, text string) (int, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.Models.CountTokens(ctx, c.config.TokenModel, genai.Text(text), nil)
	if err != nil {
		return 0, classify(err)
	}
	return int(resp.TotalTokens), nil
}

// GenerateAudio streams narrated speech for prompt and returns it as WAV when
// the model answers with raw PCM.
func (c *Client) GenerateAudio(ctx context.Context, prompt, voice, language string) (*Audio, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	cfg := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			LanguageCode: language,
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: voice},
			},
		},
	}

	var (
		data     []byte
		mimeType string
		chunks   int
	)
	for resp, err := range c.client.Models.GenerateContentStream(ctx, c.config.TTSModel, genai.Text(prompt), cfg) {
		if err != nil {
			return nil, classify(err)
		}
		for _, part := range candidateParts(resp) {
			if part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			if mimeType == "" {
				mimeType = part.InlineData.MIMEType
			}
			data = append(data, part.InlineData.Data...)
			chunks++
		}
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no audio returned", ErrEmptyResponse)
	}

	c.logger.Debug("Gemini audio generated",
		slog.String("model", c.config.TTSModel),
		slog.String("mime_type", mimeType),
		slog.Int("chunks", chunks),
		slog.Int("bytes", len(data)),
	)

	if isRawPCM(mimeType) {
		wav, err := PCMToWAV(data, mimeType)
		if err != nil {
			return nil, err
		}
		return &Audio{Data: wav, MIMEType: "audio/wav"}, nil
	}
	return &Audio{Data: data, MIMEType: mimeType}, nil
}

func candidateParts(resp *genai.GenerateContentResponse) []*genai.Part {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	return resp.Candidates[0].Content.Parts
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return "", fmt.Errorf("%w: %s", ErrContentBlocked, resp.PromptFeedback.BlockReason)
		}
		return "", ErrEmptyResponse
	}

	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", fmt.Errorf("%w: finish reason %s", ErrContentBlocked, resp.Candidates[0].FinishReason)
	}

	var sb strings.Builder
	for _, part := range candidateParts(resp) {
		sb.WriteString(part.Text)
	}
	if sb.Len() == 0 {
		return "", ErrEmptyResponse
	}
	return sb.String(), nil
}

// classify wraps SDK errors so callers can tell transient failures apart.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTransient, err)
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusTooManyRequests, apiErr.Code >= http.StatusInternalServerError:
			return fmt.Errorf("%w: %v", ErrTransient, err)
		}
	}
	return fmt.Errorf("gemini request failed: %w", err)
}
