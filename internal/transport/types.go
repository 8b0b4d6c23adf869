package transport

import "context"

// ChatTarget addresses a chat (and optionally a forum topic thread) on an
// operator notification channel.
type ChatTarget struct {
	ChatID   int64
	ThreadID int // telegram forum topic thread id (0 if none)
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender delivers operator-facing text (log alerts, cycle summaries).
// It is never used to publish campaign content.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
}
