package config

import (
	"os"
	"strconv"
	"strings"
)

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// envBinding maps one environment key onto a config field. The first key in a
// group that is set wins.
type envBinding struct {
	keys []string
	set  func(c *Config, v string)
}

var envBindings = []envBinding{
	{[]string{"PRODUCT_URL", "POSTPILOT_PROMOTED_LINK"}, func(c *Config, v string) { c.Campaign.PromotedLink = v }},

	{[]string{"GROQ_KEY", "GROQAPI_KEY"}, func(c *Config, v string) { c.LLM.Groq.APIKey = v }},
	{[]string{"OPENROUTER_KEY"}, func(c *Config, v string) { c.LLM.OpenRouter.APIKey = v }},
	{[]string{"GEMINI_API_KEY"}, func(c *Config, v string) { c.LLM.Gemini.APIKey = v }},

	{[]string{"BSKY_HOST"}, func(c *Config, v string) { c.Platforms.Microblog.Host = v }},
	{[]string{"BSKY_HANDLE"}, func(c *Config, v string) { c.Platforms.Microblog.Handle = v }},
	{[]string{"BSKY_APP_PASSWORD"}, func(c *Config, v string) { c.Platforms.Microblog.AppPassword = v }},

	{[]string{"REDDIT_CLIENT"}, func(c *Config, v string) { c.Platforms.Forum.ClientID = v }},
	{[]string{"REDDIT_SECRET"}, func(c *Config, v string) { c.Platforms.Forum.ClientSecret = v }},
	{[]string{"REDDIT_USER"}, func(c *Config, v string) { c.Platforms.Forum.Username = v }},
	{[]string{"REDDIT_PW"}, func(c *Config, v string) { c.Platforms.Forum.Password = v }},

	{[]string{"LINKEDIN_TOKEN"}, func(c *Config, v string) { c.Platforms.Professional.Token = v }},

	{[]string{"TELEGRAM_TOKEN"}, func(c *Config, v string) { c.Telegram.Token = v }},
	{[]string{"TELEGRAM_CHAT_ID"}, func(c *Config, v string) {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.ChatID = id
		}
	}},

	{[]string{"POSTPILOT_ADMIN_TOKEN"}, func(c *Config, v string) { c.Admin.Token = v }},
	{[]string{"POSTPILOT_DB"}, func(c *Config, v string) { c.Storage.Path = v }},
}

// ApplyEnv overlays credentials and the promoted link from the environment.
// Environment values win over the file. A nil lookup uses os.LookupEnv.
func ApplyEnv(c *Config, lookup LookupFunc) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	for _, b := range envBindings {
		for _, k := range b.keys {
			v, ok := lookup(k)
			if !ok || strings.TrimSpace(v) == "" {
				continue
			}
			b.set(c, strings.TrimSpace(v))
			break
		}
	}
}
