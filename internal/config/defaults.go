package config

import "strings"

const (
	DefaultPromotedLink = "https://bit.ly/qorganizer"
	DefaultDays         = 14
	DefaultMaxTokens    = 120
	DefaultRecentLimit  = 10
	DefaultStorePath    = "./campaign.db"
)

var (
	defaultGroqModels = []string{
		"compound-beta-kimi",
		"compound-beta-mini",
		"compound-beta",
		"gemma-7b-it",
		"llama3-8b-8192",
		"mixtral-8x7b-32768",
		"mistral-7b-instruct",
		"llama-3.1-8b-instant",
	}
	defaultOpenRouterModels = []string{
		"google/gemma-2-9b-it:free",
		"google/gemini-1.5-flash-latest:free",
		"moonshotai/kimi-k2:free",
		"mistralai/mistral-7b-instruct:free",
	}
)

// DefaultTemplates is the stock three-platform calendar row.
func DefaultTemplates() []TemplateConfig {
	return []TemplateConfig{
		{Platform: "microblog", Prompt: "Write a catchy 1-sentence post about messy downloads"},
		{Platform: "forum", Prompt: "150-word intro post for r/productivity", Community: "productivity"},
		{Platform: "professional-network", Prompt: "100-word LinkedIn post for freelancers"},
	}
}

// ApplyDefaults fills every omitted knob. Durations are left as strings and
// resolved by the consumers through ParseDurationOrDefault.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "sqlite"
	}
	if strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = DefaultStorePath
	}
	if c.Storage.RetryAttempts <= 0 {
		c.Storage.RetryAttempts = 3
	}

	if strings.TrimSpace(c.Campaign.PromotedLink) == "" {
		c.Campaign.PromotedLink = DefaultPromotedLink
	}
	if c.Campaign.Days <= 0 {
		c.Campaign.Days = DefaultDays
	}
	if c.Campaign.MaxTokens <= 0 {
		c.Campaign.MaxTokens = DefaultMaxTokens
	}
	if len(c.Campaign.Templates) == 0 && len(c.Campaign.Extra) == 0 {
		c.Campaign.Templates = DefaultTemplates()
	}

	if c.Replies.RecentLimit <= 0 {
		c.Replies.RecentLimit = DefaultRecentLimit
	}
	if c.Replies.MaxTokens <= 0 {
		c.Replies.MaxTokens = DefaultMaxTokens
	}

	mb := &c.Platforms.Microblog
	if strings.TrimSpace(mb.Host) == "" {
		mb.Host = "https://bsky.social"
	}
	if strings.TrimSpace(mb.PermalinkTemplate) == "" {
		mb.PermalinkTemplate = "https://bsky.app/profile/{handle}/post/{id}"
	}
	f := &c.Platforms.Forum
	if strings.TrimSpace(f.UserAgent) == "" {
		f.UserAgent = "postpilot/1.0"
	}
	if strings.TrimSpace(f.AuthURL) == "" {
		f.AuthURL = "https://www.reddit.com"
	}
	if strings.TrimSpace(f.BaseURL) == "" {
		f.BaseURL = "https://oauth.reddit.com"
	}
	p := &c.Platforms.Professional
	if strings.TrimSpace(p.Author) == "" {
		p.Author = "urn:li:person:me"
	}
	if strings.TrimSpace(p.BaseURL) == "" {
		p.BaseURL = "https://api.linkedin.com"
	}

	if strings.TrimSpace(c.LLM.Groq.BaseURL) == "" {
		c.LLM.Groq.BaseURL = "https://api.groq.com/openai/v1"
	}
	if len(c.LLM.Groq.Models) == 0 {
		c.LLM.Groq.Models = append([]string(nil), defaultGroqModels...)
	}
	if strings.TrimSpace(c.LLM.OpenRouter.BaseURL) == "" {
		c.LLM.OpenRouter.BaseURL = "https://openrouter.ai/api/v1"
	}
	if len(c.LLM.OpenRouter.Models) == 0 {
		c.LLM.OpenRouter.Models = append([]string(nil), defaultOpenRouterModels...)
	}
	if strings.TrimSpace(c.LLM.Gemini.Model) == "" {
		c.LLM.Gemini.Model = "gemini-2.0-flash"
	}

	if strings.TrimSpace(c.Admin.Addr) == "" {
		c.Admin.Addr = "127.0.0.1:8787"
	}
}
