// Package textgen produces short promotional text through a chain of hosted
// language-model backends.
package textgen

import (
	"context"
	"strings"

	logx "postpilot/pkg/logx"
)

// Unavailable is returned when no backend produced text.
const Unavailable = "⚠️ All free models busy, please retry."

// Generator never fails: callers get Unavailable instead of an error.
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) string
}

// Usable reports whether generated text may be published.
func Usable(text string) bool {
	t := strings.TrimSpace(text)
	return t != "" && t != Unavailable
}

// Backend is one provider. Complete returns trimmed text or an error.
type Backend interface {
	Name() string
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Chain tries backends in order and returns the first non-empty result.
type Chain struct {
	backends []Backend
	log      logx.Logger
}

func NewChain(log logx.Logger, backends ...Backend) *Chain {
	if log.IsZero() {
		log = logx.Nop()
	}
	bs := make([]Backend, 0, len(backends))
	for _, b := range backends {
		if b != nil {
			bs = append(bs, b)
		}
	}
	return &Chain{backends: bs, log: log}
}

// Backends returns the backend names in order.
func (c *Chain) Backends() []string {
	out := make([]string, 0, len(c.backends))
	for _, b := range c.backends {
		out = append(out, b.Name())
	}
	return out
}

func (c *Chain) Generate(ctx context.Context, prompt string, maxTokens int) string {
	for _, b := range c.backends {
		if ctx.Err() != nil {
			break
		}
		text, err := b.Complete(ctx, prompt, maxTokens)
		if err != nil {
			c.log.Debug("text backend failed", logx.String("backend", b.Name()), logx.Err(err))
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	c.log.Warn("all text backends unavailable", logx.Int("backends", len(c.backends)))
	return Unavailable
}

// Options selects the backends of a standard chain.
type Options struct {
	Groq       OpenAIConfig
	OpenRouter OpenAIConfig
	Gemini     GeminiConfig
}

// Build constructs the chain groq -> openrouter -> gemini, leaving out
// backends without credentials.
func Build(ctx context.Context, opt Options, log logx.Logger) (*Chain, error) {
	var backends []Backend
	if opt.Groq.Name == "" {
		opt.Groq.Name = "groq"
	}
	if b := NewOpenAI(opt.Groq); b != nil {
		backends = append(backends, b)
	}
	if opt.OpenRouter.Name == "" {
		opt.OpenRouter.Name = "openrouter"
	}
	if b := NewOpenAI(opt.OpenRouter); b != nil {
		backends = append(backends, b)
	}
	g, err := NewGemini(ctx, opt.Gemini)
	if err != nil {
		return nil, err
	}
	if g != nil {
		backends = append(backends, g)
	}
	return NewChain(log, backends...), nil
}
