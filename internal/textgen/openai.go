package textgen

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

const DefaultTimeout = 15 * time.Second

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint
// (Groq, OpenRouter).
type OpenAIConfig struct {
	Name    string
	BaseURL string
	APIKey  string
	Referer string
	Models  []string
	Timeout time.Duration
	Client  *http.Client
}

// OpenAIBackend walks its model list until one model answers.
type OpenAIBackend struct {
	cfg  OpenAIConfig
	http *http.Client
}

// NewOpenAI returns nil when no API key or model is configured.
func NewOpenAI(cfg OpenAIConfig) *OpenAIBackend {
	if strings.TrimSpace(cfg.APIKey) == "" || len(cfg.Models) == 0 {
		return nil
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	hc := cfg.Client
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIBackend{cfg: cfg, http: hc}
}

func (b *OpenAIBackend) Name() string { return b.cfg.Name }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (b *OpenAIBackend) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var last error
	for _, model := range b.cfg.Models {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := b.complete(ctx, model, prompt, maxTokens)
		if err == nil && text != "" {
			return text, nil
		}
		if err == nil {
			err = errors.Newf("%s %s: empty completion", b.cfg.Name, model)
		}
		last = err
	}
	if last == nil {
		last = errors.Newf("%s: no models", b.cfg.Name)
	}
	return "", last
}

func (b *OpenAIBackend) complete(ctx context.Context, model, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:     model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: maxTokens,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if b.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", b.cfg.Referer)
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return "", errors.Wrapf(err, "%s %s", b.cfg.Name, model)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return "", errors.Newf("%s %s: status %d", b.cfg.Name, model, resp.StatusCode)
	}

	var out chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", errors.Wrapf(err, "%s %s: decode", b.cfg.Name, model)
	}
	if len(out.Choices) == 0 {
		return "", errors.Newf("%s %s: no choices", b.cfg.Name, model)
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}
