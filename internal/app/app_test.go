package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postpilot/internal/config"
	"postpilot/internal/dispatch"
	"postpilot/internal/eventbus"
	"postpilot/internal/platform"
	kit "postpilot/internal/transport"
	logx "postpilot/pkg/logx"
)

var t0 = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

const testConfig = `{
  "storage": {"driver": "memory"},
  "campaign": {
    "promoted_link": "https://example.com/app",
    "days": 1,
    "templates": [
      {"platform": "microblog", "prompt": "short post"},
      {"platform": "forum", "prompt": "long post", "community": "productivity"},
      {"platform": "linkedin", "prompt": "pro post"}
    ]
  },
  "platforms": {"microblog": {"handle": "me.bsky.social"}}
}`

type fakeGen struct{}

func (fakeGen) Generate(_ context.Context, prompt string, _ int) string {
	return "generated: " + strings.SplitN(prompt, "\n", 2)[0]
}

type fakeMicroblog struct{}

func (fakeMicroblog) PublishStatus(context.Context, string) (platform.StatusRef, error) {
	return platform.StatusRef{URI: "at://did:plc:x/app.bsky.feed.post/abc", RecordKey: "abc"}, nil
}

type fakeForum struct{}

func (fakeForum) Submit(_ context.Context, s platform.Submission) (string, error) {
	return "https://forum.example/r/" + s.Community + "/1", nil
}

type fakePro struct{ err error }

func (f fakePro) Share(context.Context, string) error { return f.err }

type fakeVerifier struct {
	rep platform.Report
	err error
}

func (f fakeVerifier) Verify(context.Context) (platform.Report, error) { return f.rep, f.err }

func testPublishers() *platform.Publishers {
	return &platform.Publishers{
		Microblog:    func(context.Context) (platform.Microblog, error) { return fakeMicroblog{}, nil },
		Forum:        func(context.Context) (platform.Forum, error) { return fakeForum{}, nil },
		Professional: func(context.Context) (platform.Professional, error) { return fakePro{}, nil },
	}
}

func newTestApp(t *testing.T, raw string, pubs *platform.Publishers) *App {
	t.Helper()
	path := filepath.Join(t.TempDir(), "postpilot.json")
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfgm := config.NewConfigManager(path)
	cfgm.SetLookup(func(string) (string, bool) { return "", false })

	a, err := New(context.Background(), cfgm, Options{
		Generator:  fakeGen{},
		Publishers: pubs,
		Logger:     logx.Nop(),
		Now:        func() time.Time { return t0 },
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })
	return a
}

func TestApp_GenerateThenDispatch(t *testing.T) {
	a := newTestApp(t, testConfig, testPublishers())
	ctx := context.Background()

	rep, err := a.GenerateAndSchedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Inserted)

	// a second pass never reschedules
	rep, err = a.GenerateAndSchedule(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Inserted)
	assert.Equal(t, 3, rep.Existing)

	sum, err := a.RunDispatchCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Posted)
	assert.Equal(t, sum.String(), a.LastSummary())

	posts, err := a.AllPosts(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	links := map[string]string{}
	for _, p := range posts {
		assert.True(t, p.Posted, p.ID)
		links[p.ID] = p.Permalink
	}
	assert.Equal(t, "https://bsky.app/profile/me.bsky.social/post/abc", links["microblog_0"])
	assert.Equal(t, "https://forum.example/r/productivity/1", links["forum_0"])

	st, err := a.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Posted)
	assert.Equal(t, 0, st.Pending)

	sum, err = a.RunDispatchCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, "No scheduled posts to send right now.", sum.String())
}

func TestApp_DispatchFailureKeepsRow(t *testing.T) {
	pubs := testPublishers()
	pubs.Professional = func(context.Context) (platform.Professional, error) {
		return fakePro{err: errors.New("401 unauthorized")}, nil
	}
	a := newTestApp(t, testConfig, pubs)
	ctx := context.Background()

	_, err := a.GenerateAndSchedule(ctx)
	require.NoError(t, err)
	sum, err := a.RunDispatchCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Posted)
	assert.Equal(t, 1, sum.Failed)

	due, err := a.DuePosts(ctx)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "professional-network_0", due[0].ID)

	var found bool
	for _, l := range a.Logs() {
		if strings.Contains(l, "Error posting to professional-network") {
			found = true
		}
	}
	assert.True(t, found, a.Logs())
}

func TestApp_StartBackgroundLoopsOnce(t *testing.T) {
	a := newTestApp(t, testConfig, testPublishers())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := a.StartBackgroundLoops(ctx)
	require.ErrorIs(t, err, ErrNotStarted)

	require.NoError(t, a.Start(ctx))
	started, err := a.StartBackgroundLoops(ctx)
	require.NoError(t, err)
	assert.True(t, started)

	started, err = a.StartBackgroundLoops(ctx)
	require.NoError(t, err)
	assert.False(t, started)
	assert.True(t, a.LoopsStarted())

	logs := a.Logs()
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[len(logs)-1], "Scheduler is already running")

	snap := a.Scheduler()
	assert.True(t, snap.Started)
	require.Len(t, snap.Loops, 1, "comment loop needs replies.enabled and forum credentials")
	assert.Equal(t, loopDispatch, snap.Loops[0].Name)
}

func TestApp_Enqueue(t *testing.T) {
	a := newTestApp(t, testConfig, testPublishers())
	ctx := context.Background()

	p, ok, err := a.Enqueue(ctx, platform.KindForum, "hello", t0.Add(time.Minute+30*time.Second), "test_forum_immediate")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, t0.Add(time.Minute), p.ScheduledAt)

	_, ok, err = a.Enqueue(ctx, platform.KindForum, "again", t0, "test_forum_immediate")
	require.NoError(t, err)
	assert.False(t, ok)

	p, ok, err = a.Enqueue(ctx, platform.KindMicroblog, "auto id", t0, "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, strings.HasPrefix(p.ID, "adhoc_microblog_"))

	_, _, err = a.Enqueue(ctx, platform.Kind("fax"), "x", t0, "")
	require.Error(t, err)
	_, _, err = a.Enqueue(ctx, platform.KindForum, " ", t0, "")
	require.Error(t, err)
}

func TestApp_Verify(t *testing.T) {
	pubs := testPublishers()
	pubs.Verifiers = map[platform.Kind]func(context.Context) (platform.Verifier, error){
		platform.KindMicroblog: func(context.Context) (platform.Verifier, error) {
			return fakeVerifier{rep: platform.Report{Kind: platform.KindMicroblog, Account: "me.bsky.social"}}, nil
		},
		platform.KindForum: func(context.Context) (platform.Verifier, error) {
			return fakeVerifier{err: errors.New("bad password")}, nil
		},
	}
	a := newTestApp(t, testConfig, pubs)

	res := a.Verify(context.Background())
	require.Len(t, res, 3)

	assert.Equal(t, platform.KindMicroblog, res[0].Kind)
	require.NotNil(t, res[0].Report)
	assert.Equal(t, "me.bsky.social", res[0].Report.Account)

	assert.True(t, res[1].Configured)
	assert.Equal(t, "bad password", res[1].Error)

	assert.False(t, res[2].Configured)
	assert.Contains(t, res[2].Error, "not configured")
}

func TestApp_Status(t *testing.T) {
	a := newTestApp(t, testConfig, testPublishers())
	ctx := context.Background()
	_, err := a.GenerateAndSchedule(ctx)
	require.NoError(t, err)

	st, err := a.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/app", st.PromotedLink)
	assert.Equal(t, 3, st.CalendarEntries)
	assert.Equal(t, 3, st.Storage.Total)
	assert.Equal(t, 3, st.Storage.Due)
	assert.True(t, st.Credentials.Platforms[platform.KindForum])
	assert.False(t, st.Credentials.Telegram)
	assert.False(t, st.LoopsStarted)
}

func TestApp_ApplyConfigReloadsCalendar(t *testing.T) {
	a := newTestApp(t, testConfig, testPublishers())
	old := a.cfgm.Get()

	next := *old
	next.Campaign.Days = 2
	next.Scheduler.DispatchInterval = "5m"
	a.applyConfig(context.Background(), old, &next)

	assert.Equal(t, 6, a.calendar().Len())
	assert.Equal(t, 5*time.Minute, a.loops.Dispatch)
	snap := a.Scheduler()
	require.Len(t, snap.Loops, 1)
	assert.Equal(t, "@every 5m0s", snap.Loops[0].Spec)
}

func TestMapping(t *testing.T) {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	sc, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, 3, sc.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, sc.Retry.Backoff)

	cfg.Storage.Driver = "postgres"
	_, err = mapStorageConfig(cfg)
	require.Error(t, err)

	ls, err := mapLoopSettings(cfg)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ls.Dispatch)
	assert.Equal(t, 10*time.Minute, ls.Comments)
	assert.Equal(t, 60*time.Second, ls.Scheduler.Cooldown)

	cfg.Scheduler.Cooldown = "soon"
	_, err = mapLoopSettings(cfg)
	require.Error(t, err)

	// no credentials, no factories
	pubs := buildPublishers(cfg)
	assert.Nil(t, pubs.Microblog)
	assert.Empty(t, pubs.Verifiers)
	_, err = pubs.NewForum(context.Background())
	require.ErrorIs(t, err, platform.ErrNotConfigured)

	cfg.Platforms.Professional.Token = "tok"
	pubs = buildPublishers(cfg)
	require.NotNil(t, pubs.Professional)
	pro, err := pubs.NewProfessional(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, pro)
}

type recordingSender struct {
	mu    sync.Mutex
	texts []string
}

func (s *recordingSender) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return kit.MessageRef{}, nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts)
}

func TestAlerts(t *testing.T) {
	snd := &recordingSender{}
	n := newAlerts(snd, 42, logx.Nop())
	require.True(t, n.enabled())
	assert.False(t, newAlerts(nil, 42, logx.Nop()).enabled())
	assert.False(t, newAlerts(snd, 0, logx.Nop()).enabled())

	events := make(chan eventbus.Event, 8)
	failed := eventbus.Event{Type: eventbus.PostFailed, Data: dispatch.PostEvent{PostID: "forum_1", Platform: "forum", Error: "boom"}}
	events <- failed
	events <- failed // deduplicated
	events <- eventbus.Event{Type: eventbus.DispatchCycle, Data: dispatch.Summary{}}
	events <- eventbus.Event{Type: eventbus.DispatchCycle, Data: dispatch.Summary{Posted: 1, Platforms: []string{"forum"}}}
	events <- eventbus.Event{Type: eventbus.TaskFinished}
	close(events)

	n.run(context.Background(), events)
	require.Equal(t, 2, snd.count())
	assert.Contains(t, snd.texts[0], "Error posting to forum (forum_1): boom")
	assert.Contains(t, snd.texts[1], "Finished posting to: forum")
}
