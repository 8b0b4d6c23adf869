package config

// Config is the on-disk configuration (JSON, YAML or TOML).
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
// Credentials may be left empty in the file and supplied through the
// environment (see ApplyEnv).
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Telegram  TelegramConfig  `json:"telegram,omitempty"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Campaign  CampaignConfig  `json:"campaign"`
	Replies   RepliesConfig   `json:"replies"`
	Platforms PlatformsConfig `json:"platforms"`
	LLM       LLMConfig       `json:"llm"`
	Admin     AdminConfig     `json:"admin,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TelegramConfig is the operator alert channel. It is not a publishing target.
type TelegramConfig struct {
	Token   string `json:"token,omitempty"` // do not log
	ChatID  int64  `json:"chat_id,omitempty"`
	Timeout string `json:"timeout,omitempty"`
}

// StorageConfig controls the post store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./campaign.db", "busy_timeout": "1s" }
type StorageConfig struct {
	Driver        string `json:"driver"`
	Path          string `json:"path"`
	BusyTimeout   string `json:"busy_timeout,omitempty"`
	RetryAttempts int    `json:"retry_attempts,omitempty"`
	RetryBackoff  string `json:"retry_backoff,omitempty"`
}

// SchedulerConfig controls the two background loops.
//
// Defaults:
//   - dispatch_interval: "1m"
//   - comment_interval: "10m"
//   - cooldown: "60s" (pause after a failed or panicking iteration)
//   - publish_timeout: "30s" (per platform call)
type SchedulerConfig struct {
	DispatchInterval string `json:"dispatch_interval,omitempty"`
	CommentInterval  string `json:"comment_interval,omitempty"`
	Cooldown         string `json:"cooldown,omitempty"`
	PublishTimeout   string `json:"publish_timeout,omitempty"`
}

// CampaignConfig is the declarative calendar.
//
// Templates are expanded over days 0..Days-1 into ids "{platform}_{day}".
// Extra entries are appended as-is and may carry an explicit id.
type CampaignConfig struct {
	PromotedLink string           `json:"promoted_link,omitempty"`
	Days         int              `json:"days,omitempty"`
	MaxTokens    int              `json:"max_tokens,omitempty"`
	Templates    []TemplateConfig `json:"templates,omitempty"`
	Extra        []EntryConfig    `json:"extra,omitempty"`
}

type TemplateConfig struct {
	Platform  string `json:"platform"`
	Prompt    string `json:"prompt"`
	Community string `json:"community,omitempty"`
}

type EntryConfig struct {
	ID        string `json:"id,omitempty"`
	Platform  string `json:"platform"`
	Prompt    string `json:"prompt"`
	Day       int    `json:"day"`
	Community string `json:"community,omitempty"`
}

type RepliesConfig struct {
	Enabled     bool   `json:"enabled"`
	RecentLimit int    `json:"recent_limit,omitempty"`
	Delay       string `json:"delay,omitempty"`
	MaxTokens   int    `json:"max_tokens,omitempty"`
}

type PlatformsConfig struct {
	Microblog    MicroblogConfig    `json:"microblog"`
	Forum        ForumConfig        `json:"forum"`
	Professional ProfessionalConfig `json:"professional"`
}

type MicroblogConfig struct {
	Host              string `json:"host,omitempty"`
	Handle            string `json:"handle,omitempty"`
	AppPassword       string `json:"app_password,omitempty"` // do not log
	PermalinkTemplate string `json:"permalink_template,omitempty"`
}

type ForumConfig struct {
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"` // do not log
	Username     string `json:"username,omitempty"`
	Password     string `json:"password,omitempty"` // do not log
	UserAgent    string `json:"user_agent,omitempty"`
	AuthURL      string `json:"auth_url,omitempty"`
	BaseURL      string `json:"base_url,omitempty"`
}

type ProfessionalConfig struct {
	Token   string `json:"token,omitempty"` // do not log
	Author  string `json:"author,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
}

// LLMConfig lists the text generation backends in fallback order:
// groq, then openrouter, then gemini. Backends without a key are skipped.
type LLMConfig struct {
	Timeout    string        `json:"timeout,omitempty"`
	Groq       BackendConfig `json:"groq"`
	OpenRouter BackendConfig `json:"openrouter"`
	Gemini     GeminiConfig  `json:"gemini"`
}

type BackendConfig struct {
	APIKey  string   `json:"api_key,omitempty"` // do not log
	BaseURL string   `json:"base_url,omitempty"`
	Referer string   `json:"referer,omitempty"`
	Models  []string `json:"models,omitempty"`
}

type GeminiConfig struct {
	APIKey string `json:"api_key,omitempty"` // do not log
	Model  string `json:"model,omitempty"`
}

// AdminConfig controls the optional HTTP admin API.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:8787").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type AdminConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"` // do not log
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}
