// Package bluesky publishes microblog statuses over AT Protocol.
package bluesky

import (
	"context"
	"net/http"
	"strings"
	"time"

	comatproto "github.com/bluesky-social/indigo/api/atproto"
	appbsky "github.com/bluesky-social/indigo/api/bsky"
	"github.com/bluesky-social/indigo/atproto/syntax"
	"github.com/bluesky-social/indigo/lex/util"
	"github.com/bluesky-social/indigo/xrpc"
	"github.com/cockroachdb/errors"

	"postpilot/internal/platform"
)

const postCollection = "app.bsky.feed.post"

type Config struct {
	Host        string
	Handle      string
	AppPassword string
	Timeout     time.Duration
	HTTPClient  *http.Client
}

// Client is a session-scoped AT Protocol client. Construct one per use.
type Client struct {
	cfg Config
	now func() time.Time
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Handle) == "" || strings.TrimSpace(cfg.AppPassword) == "" {
		return nil, platform.NotConfigured(platform.KindMicroblog)
	}
	if cfg.Host == "" {
		cfg.Host = "https://bsky.social"
	}
	cfg.Host = strings.TrimRight(cfg.Host, "/")
	if cfg.HTTPClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		cfg.HTTPClient = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, now: time.Now}, nil
}

// createSession authenticates with the PDS and returns an authenticated client.
func (c *Client) createSession(ctx context.Context) (*xrpc.Client, error) {
	client := &xrpc.Client{
		Client: c.cfg.HTTPClient,
		Host:   c.cfg.Host,
	}
	session, err := comatproto.ServerCreateSession(ctx, client, &comatproto.ServerCreateSession_Input{
		Identifier: c.cfg.Handle,
		Password:   c.cfg.AppPassword,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "create session with %s for %s", c.cfg.Host, c.cfg.Handle)
	}
	client.Auth = &xrpc.AuthInfo{
		AccessJwt:  session.AccessJwt,
		RefreshJwt: session.RefreshJwt,
		Handle:     session.Handle,
		Did:        session.Did,
	}
	return client, nil
}

func (c *Client) PublishStatus(ctx context.Context, text string) (platform.StatusRef, error) {
	client, err := c.createSession(ctx)
	if err != nil {
		return platform.StatusRef{}, err
	}

	post := &appbsky.FeedPost{
		Text:      text,
		CreatedAt: c.now().UTC().Format(time.RFC3339),
	}
	resp, err := comatproto.RepoCreateRecord(ctx, client, &comatproto.RepoCreateRecord_Input{
		Collection: postCollection,
		Repo:       client.Auth.Did,
		Record:     &util.LexiconTypeDecoder{Val: post},
	})
	if err != nil {
		return platform.StatusRef{}, errors.Wrap(err, "create post record")
	}

	ref := platform.StatusRef{URI: resp.Uri, CID: resp.Cid}
	if u, perr := syntax.ParseATURI(resp.Uri); perr == nil {
		ref.RecordKey = u.RecordKey().String()
	} else if i := strings.LastIndex(resp.Uri, "/"); i >= 0 {
		ref.RecordKey = resp.Uri[i+1:]
	}
	return ref, nil
}

func (c *Client) Verify(ctx context.Context) (platform.Report, error) {
	client, err := c.createSession(ctx)
	if err != nil {
		return platform.Report{}, err
	}
	rep := platform.Report{Kind: platform.KindMicroblog, Account: client.Auth.Handle}

	feed, err := appbsky.FeedGetAuthorFeed(ctx, client, client.Auth.Did, "", "", false, 10)
	if err != nil {
		return rep, errors.Wrapf(err, "get author feed for %s", client.Auth.Handle)
	}
	for _, item := range feed.Feed {
		if item == nil || item.Post == nil {
			continue
		}
		it := platform.RecentItem{ID: item.Post.Uri}
		if fp, ok := item.Post.Record.Val.(*appbsky.FeedPost); ok {
			it.Text = fp.Text
		}
		if u, perr := syntax.ParseATURI(item.Post.Uri); perr == nil {
			it.URL = Permalink("", client.Auth.Handle, u.RecordKey().String())
		}
		rep.Recent = append(rep.Recent, it)
	}
	return rep, nil
}

// DefaultPermalinkTemplate builds the public URL of a post.
const DefaultPermalinkTemplate = "https://bsky.app/profile/{handle}/post/{id}"

// Permalink expands tmpl (or the default) with handle and record key.
func Permalink(tmpl, handle, rkey string) string {
	if strings.TrimSpace(tmpl) == "" {
		tmpl = DefaultPermalinkTemplate
	}
	return strings.NewReplacer("{handle}", handle, "{id}", rkey).Replace(tmpl)
}
