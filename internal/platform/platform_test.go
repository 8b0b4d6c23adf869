package platform

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKindAliases(t *testing.T) {
	cases := map[string]Kind{
		"x":                    KindMicroblog,
		"Twitter":              KindMicroblog,
		" bluesky ":            KindMicroblog,
		"microblog":            KindMicroblog,
		"reddit":               KindForum,
		"forum":                KindForum,
		"LinkedIn":             KindProfessional,
		"professional-network": KindProfessional,
	}
	for in, want := range cases {
		got, err := ParseKind(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseKind("myspace")
	assert.Error(t, err)
}

func TestPublishersNotConfigured(t *testing.T) {
	var p Publishers
	ctx := context.Background()

	_, err := p.NewMicroblog(ctx)
	assert.True(t, errors.Is(err, ErrNotConfigured))
	_, err = p.NewForum(ctx)
	assert.True(t, errors.Is(err, ErrNotConfigured))
	_, err = p.NewProfessional(ctx)
	assert.True(t, errors.Is(err, ErrNotConfigured))
	_, err = p.NewForumAccount(ctx)
	assert.True(t, errors.Is(err, ErrNotConfigured))
}

func TestStatusError(t *testing.T) {
	err := &StatusError{Kind: KindProfessional, Op: "share", Code: 403, Body: "denied"}
	assert.Equal(t, "professional-network share: unexpected status 403: denied", err.Error())
	assert.Len(t, []rune(Snippet([]byte(string(make([]byte, 400))))), 301)
}
