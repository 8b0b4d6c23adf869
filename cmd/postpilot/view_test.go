package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"postpilot/internal/app"
	"postpilot/internal/platform"
	"postpilot/internal/storage"
)

var now = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func TestScheduleStatus(t *testing.T) {
	cases := []struct {
		name string
		p    storage.Post
		want string
	}{
		{"posted", storage.Post{Posted: true, ScheduledAt: now.Add(time.Hour)}, "POSTED"},
		{"due at boundary", storage.Post{ScheduledAt: now}, "DUE NOW"},
		{"overdue", storage.Post{ScheduledAt: now.Add(-time.Hour)}, "DUE NOW"},
		{"minutes", storage.Post{ScheduledAt: now.Add(5 * time.Minute)}, "in 5m"},
		{"hours", storage.Post{ScheduledAt: now.Add(2*time.Hour + 7*time.Minute)}, "in 2h 7m"},
		{"days", storage.Post{ScheduledAt: now.Add(49 * time.Hour)}, "in 2d 1h"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, scheduleStatus(tc.p, now))
		})
	}
}

func TestPrintSchedule(t *testing.T) {
	var buf bytes.Buffer
	printSchedule(&buf, nil, now)
	assert.Contains(t, buf.String(), "No scheduled posts found")

	buf.Reset()
	printSchedule(&buf, []storage.Post{
		{ID: "forum_0", Platform: "forum", Text: "first\npost", ScheduledAt: now, Posted: true, Permalink: "https://forum.example/1"},
		{ID: "forum_1", Platform: "forum", Text: "second", ScheduledAt: now.Add(24 * time.Hour)},
	}, now)
	out := buf.String()
	assert.Contains(t, out, "https://forum.example/1")
	assert.Contains(t, out, "in 1d 0h")
	assert.Contains(t, out, "1 posted, 0 due now, 1 upcoming")
}

func TestPrintVerify(t *testing.T) {
	var buf bytes.Buffer
	printVerify(&buf, []app.VerifyResult{
		{Kind: platform.KindMicroblog, Configured: true, Report: &platform.Report{Account: "me", Recent: []platform.RecentItem{{Text: "hello", URL: "https://x/1"}}}},
		{Kind: platform.KindForum, Configured: true, Error: "bad password"},
		{Kind: platform.KindProfessional},
	})
	out := buf.String()
	assert.Contains(t, out, "microblog: account me, 1 recent")
	assert.Contains(t, out, "forum: error: bad password")
	assert.Contains(t, out, "professional-network: not configured")
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "a b", excerpt("a\n b", 10))
	assert.Equal(t, "héll...", excerpt("héllo", 4))
}

func TestUntil(t *testing.T) {
	assert.Equal(t, "45s", until(45*time.Second))
	assert.Equal(t, "1m", until(time.Minute+10*time.Second))
}
