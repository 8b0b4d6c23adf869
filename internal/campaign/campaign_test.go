package campaign

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postpilot/internal/activity"
	"postpilot/internal/config"
	"postpilot/internal/eventbus"
	"postpilot/internal/platform"
	"postpilot/internal/storage"
	"postpilot/internal/textgen"
	logx "postpilot/pkg/logx"
)

func TestDefaultCalendarMatrix(t *testing.T) {
	var cfg config.Config
	cfg.ApplyDefaults()

	cal, err := FromConfig(cfg.Campaign)
	require.NoError(t, err)
	require.Equal(t, 42, cal.Len())

	entries := cal.Entries()
	assert.Equal(t, "microblog_0", entries[0].ID)
	assert.Equal(t, "forum_0", entries[1].ID)
	assert.Equal(t, "professional-network_0", entries[2].ID)
	assert.Equal(t, "microblog_1", entries[3].ID)
	assert.Equal(t, "professional-network_13", entries[41].ID)

	e, ok := cal.Lookup("forum_7")
	require.True(t, ok)
	assert.Equal(t, "productivity", e.Community)
	assert.Equal(t, 7, e.Day)
}

func TestExpandExtraEntries(t *testing.T) {
	cal, err := Expand(
		[]Template{{Platform: platform.KindForum, Prompt: "p", Community: "c"}},
		2,
		[]Entry{
			{ID: "immediate_forum", Platform: platform.KindForum, Prompt: "now", Community: "test"},
			{Platform: platform.KindMicroblog, Prompt: "derived", Day: 3},
		},
	)
	require.NoError(t, err)
	ids := []string{}
	for _, e := range cal.Entries() {
		ids = append(ids, e.ID)
	}
	assert.Equal(t, []string{"forum_0", "forum_1", "immediate_forum", "microblog_3"}, ids)
}

func TestExpandRejectsDuplicates(t *testing.T) {
	_, err := Expand(
		[]Template{{Platform: platform.KindForum, Prompt: "p"}},
		1,
		[]Entry{{ID: "forum_0", Platform: platform.KindForum, Prompt: "again"}},
	)
	assert.ErrorContains(t, err, "duplicate")
}

func TestFromConfigRejectsUnknownPlatform(t *testing.T) {
	_, err := FromConfig(config.CampaignConfig{Days: 1, Templates: []config.TemplateConfig{{Platform: "myspace", Prompt: "p"}}})
	assert.Error(t, err)
}

// scriptGen returns canned text per entry prompt prefix.
type scriptGen struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) string
}

func (g *scriptGen) Generate(_ context.Context, prompt string, maxTokens int) string {
	g.mu.Lock()
	g.prompts = append(g.prompts, prompt)
	g.mu.Unlock()
	return g.reply(prompt)
}

func newPlanner(t *testing.T, cal *Calendar, gen textgen.Generator, now time.Time) (*Planner, storage.Store, *activity.Log) {
	t.Helper()
	st, err := storage.Open(storage.Config{Driver: "memory"}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	act := activity.New(10)
	p := NewPlanner(PlannerOptions{
		Store:        st,
		Generator:    gen,
		Calendar:     func() *Calendar { return cal },
		PromotedLink: func() string { return "https://bit.ly/qorganizer" },
		Activity:     act,
		Bus:          eventbus.New(),
		Now:          func() time.Time { return now },
	})
	return p, st, act
}

func TestGenerateAndSchedule(t *testing.T) {
	cal, err := Expand([]Template{
		{Platform: platform.KindMicroblog, Prompt: "tweet"},
		{Platform: platform.KindForum, Prompt: "reddit", Community: "productivity"},
	}, 2, nil)
	require.NoError(t, err)

	gen := &scriptGen{reply: func(p string) string {
		if strings.HasPrefix(p, "reddit") {
			return textgen.Unavailable
		}
		return "great tool https://bit.ly/qorganizer"
	}}
	now := time.Date(2025, 3, 1, 9, 30, 42, 0, time.UTC)
	p, st, act := newPlanner(t, cal, gen, now)

	rep, err := p.GenerateAndSchedule(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PlanReport{Entries: 4, Generated: 2, Inserted: 2, Skipped: 2}, rep)
	assert.Equal(t, "tweet\nEnd with link: https://bit.ly/qorganizer", gen.prompts[0])

	all, err := st.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "microblog_0", all[0].ID)
	assert.Equal(t, time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC), all[0].ScheduledAt)
	assert.Equal(t, "microblog_1", all[1].ID)
	assert.Equal(t, time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC), all[1].ScheduledAt)
	entries := act.Entries()
	require.Len(t, entries, 3)
	assert.Contains(t, entries[0], "Generation skipped for forum_0")
	assert.Contains(t, entries[1], "Generation skipped for forum_1")
}

func TestRegenerationKeepsOriginalSchedule(t *testing.T) {
	cal, err := Expand([]Template{{Platform: platform.KindMicroblog, Prompt: "tweet"}}, 1, nil)
	require.NoError(t, err)

	n := 0
	gen := &scriptGen{reply: func(string) string { n++; return "version " + string(rune('0'+n)) }}
	now := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	p, st, _ := newPlanner(t, cal, gen, now)

	_, err = p.GenerateAndSchedule(context.Background())
	require.NoError(t, err)

	p.opt.Now = func() time.Time { return now.Add(48 * time.Hour) }
	rep, err := p.GenerateAndSchedule(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Existing)
	assert.Equal(t, 0, rep.Inserted)

	got, err := st.Get(context.Background(), "microblog_0")
	require.NoError(t, err)
	assert.Equal(t, "version 1", got.Text)
	assert.Equal(t, now, got.ScheduledAt)
}

func TestEmptyGenerationIsSkipped(t *testing.T) {
	cal, err := Expand([]Template{{Platform: platform.KindProfessional, Prompt: "li"}}, 3, nil)
	require.NoError(t, err)
	p, st, _ := newPlanner(t, cal, &scriptGen{reply: func(string) string { return "  " }}, time.Now())

	rep, err := p.GenerateAndSchedule(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Skipped)

	all, err := st.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}
