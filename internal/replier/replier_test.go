package replier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postpilot/internal/activity"
	"postpilot/internal/platform"
	"postpilot/internal/textgen"
)

const link = "https://bit.ly/qorganizer"

type fakeAccount struct {
	mu       sync.Mutex
	me       string
	subs     []platform.SubmissionRef
	comments map[string][]platform.Comment
	replies  map[string]string
	replyAt  []time.Time
	failOn   map[string]bool
	listErr  error
}

func (a *fakeAccount) Me(context.Context) (string, error) { return a.me, nil }

func (a *fakeAccount) RecentSubmissions(_ context.Context, limit int) ([]platform.SubmissionRef, error) {
	if a.listErr != nil {
		return nil, a.listErr
	}
	if len(a.subs) > limit {
		return a.subs[:limit], nil
	}
	return a.subs, nil
}

func (a *fakeAccount) Comments(_ context.Context, id string) ([]platform.Comment, error) {
	if a.failOn[id] {
		return nil, errors.New("comments unavailable")
	}
	return a.comments[id], nil
}

func (a *fakeAccount) Reply(_ context.Context, id, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failOn[id] {
		return errors.New("rate limited")
	}
	if a.replies == nil {
		a.replies = map[string]string{}
	}
	a.replies[id] = text
	a.replyAt = append(a.replyAt, time.Now())
	return nil
}

type echoGen struct {
	prompts []string
	out     string
}

func (g *echoGen) Generate(_ context.Context, prompt string, _ int) string {
	g.prompts = append(g.prompts, prompt)
	return g.out
}

func newReplier(acct *fakeAccount, gen textgen.Generator, delay time.Duration) (*Replier, *activity.Log) {
	act := activity.New(10)
	return New(Options{
		Publishers: platform.Publishers{
			ForumAccount: func(context.Context) (platform.ForumAccount, error) { return acct, nil },
		},
		Generator:    gen,
		PromotedLink: func() string { return link },
		Delay:        delay,
		Activity:     act,
	}), act
}

func TestSuppression(t *testing.T) {
	acct := &fakeAccount{
		me:   "Pilot",
		subs: []platform.SubmissionRef{{ID: "s1"}},
		comments: map[string][]platform.Comment{"s1": {
			{ID: "t1_own", Author: "pilot", Body: "thanks all"},
			{ID: "t1_linked", Author: "alice", Body: "I use " + link + " already"},
			{ID: "t1_deleted", Author: "", Body: "[removed]"},
			{ID: "t1_ok", Author: "bob", Body: "how do I sort by type?"},
		}},
	}
	gen := &echoGen{out: "Glad you asked! Try " + link}
	r, act := newReplier(acct, gen, time.Millisecond)

	rep, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Submissions: 1, Comments: 4, Replied: 1, Suppressed: 3}, rep)

	assert.Equal(t, map[string]string{"t1_ok": "Glad you asked! Try " + link}, acct.replies)
	require.Len(t, gen.prompts, 1)
	assert.Equal(t, "Reply politely to forum comment: how do I sort by type?\nMention "+link+" in 1 sentence.", gen.prompts[0])
	assert.Len(t, act.Entries(), 1)
}

func TestReplyFailureDoesNotAbort(t *testing.T) {
	acct := &fakeAccount{
		me:   "pilot",
		subs: []platform.SubmissionRef{{ID: "s1"}, {ID: "s_bad"}, {ID: "s2"}},
		comments: map[string][]platform.Comment{
			"s1": {{ID: "t1_a", Author: "a", Body: "x"}, {ID: "t1_b", Author: "b", Body: "y"}},
			"s2": {{ID: "t1_c", Author: "c", Body: "z"}},
		},
		failOn: map[string]bool{"t1_a": true, "s_bad": true},
	}
	r, act := newReplier(acct, &echoGen{out: "reply"}, time.Millisecond)

	rep, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Replied)
	assert.Equal(t, 2, rep.Failed)
	assert.Contains(t, acct.replies, "t1_b")
	assert.Contains(t, acct.replies, "t1_c")

	assert.True(t, hasEntry(act, "Error replying to comment t1_a"), act.Entries())
	assert.True(t, hasEntry(act, "Error loading comments on s_bad: comments unavailable"), act.Entries())
}

func hasEntry(act *activity.Log, substr string) bool {
	for _, e := range act.Entries() {
		if strings.Contains(e, substr) {
			return true
		}
	}
	return false
}

func TestUnusableGenerationSkipped(t *testing.T) {
	acct := &fakeAccount{
		me:       "pilot",
		subs:     []platform.SubmissionRef{{ID: "s1"}},
		comments: map[string][]platform.Comment{"s1": {{ID: "t1_a", Author: "a", Body: "x"}}},
	}
	r, act := newReplier(acct, &echoGen{out: textgen.Unavailable}, time.Millisecond)

	rep, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)
	assert.Empty(t, acct.replies)
	assert.True(t, hasEntry(act, "Generation skipped for reply to t1_a"), act.Entries())
}

func TestRepliesArePaced(t *testing.T) {
	acct := &fakeAccount{
		me:   "pilot",
		subs: []platform.SubmissionRef{{ID: "s1"}},
		comments: map[string][]platform.Comment{"s1": {
			{ID: "t1_a", Author: "a", Body: "x"},
			{ID: "t1_b", Author: "b", Body: "y"},
			{ID: "t1_c", Author: "c", Body: "z"},
		}},
	}
	delay := 40 * time.Millisecond
	r, _ := newReplier(acct, &echoGen{out: "reply"}, delay)

	_, err := r.RunCycle(context.Background())
	require.NoError(t, err)
	require.Len(t, acct.replyAt, 3)
	for i := 1; i < len(acct.replyAt); i++ {
		// Allow scheduler jitter below the nominal spacing.
		assert.GreaterOrEqual(t, acct.replyAt[i].Sub(acct.replyAt[i-1]), delay-10*time.Millisecond)
	}
}

func TestListingFailureIsCycleError(t *testing.T) {
	acct := &fakeAccount{me: "pilot", listErr: errors.New("503")}
	r, act := newReplier(acct, &echoGen{out: "reply"}, time.Millisecond)

	_, err := r.RunCycle(context.Background())
	assert.Error(t, err)
	assert.True(t, hasEntry(act, "Error loading recent submissions: 503"), act.Entries())
}

func TestNotConfigured(t *testing.T) {
	r := New(Options{Generator: &echoGen{}})
	_, err := r.RunCycle(context.Background())
	assert.ErrorIs(t, err, platform.ErrNotConfigured)
}
