// Package reddit implements the forum capabilities against the Reddit API
// using a script-app OAuth password grant.
package reddit

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"postpilot/internal/platform"
)

type Config struct {
	ClientID     string
	ClientSecret string
	Username     string
	Password     string
	UserAgent    string
	AuthURL      string // default https://www.reddit.com
	BaseURL      string // default https://oauth.reddit.com
	Timeout      time.Duration
	HTTPClient   *http.Client
}

type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time

	mu      sync.Mutex
	token   string
	expires time.Time
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" ||
		strings.TrimSpace(cfg.Username) == "" || cfg.Password == "" {
		return nil, platform.NotConfigured(platform.KindForum)
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = "https://www.reddit.com"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://oauth.reddit.com"
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "postpilot/1.0"
	}
	cfg.AuthURL = strings.TrimRight(cfg.AuthURL, "/")
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, http: hc, now: time.Now}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
	Error       string `json:"error"`
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expires) {
		return c.token, nil
	}

	form := url.Values{
		"grant_type": {"password"},
		"username":   {c.cfg.Username},
		"password":   {c.cfg.Password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL+"/api/v1/access_token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	var tr tokenResponse
	if err := c.send(req, "authorize", &tr); err != nil {
		return "", err
	}
	if tr.Error != "" || tr.AccessToken == "" {
		return "", errors.Newf("reddit authorize: %s", nonEmpty(tr.Error, "no access token"))
	}
	c.token = tr.AccessToken
	ttl := time.Duration(tr.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	// Refresh a minute early.
	c.expires = c.now().Add(ttl - time.Minute)
	return c.token, nil
}

func (c *Client) call(ctx context.Context, method, path string, form url.Values, op string, out any) error {
	token, err := c.accessToken(ctx)
	if err != nil {
		return err
	}
	var body io.Reader
	target := c.cfg.BaseURL + path
	if method == http.MethodGet && len(form) > 0 {
		target += "?" + form.Encode()
	} else if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "bearer "+token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return c.send(req, op, out)
}

func (c *Client) send(req *http.Request, op string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "reddit %s", op)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return errors.Wrapf(err, "reddit %s: read body", op)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &platform.StatusError{Kind: platform.KindForum, Op: op, Code: resp.StatusCode, Body: platform.Snippet(b)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return errors.Wrapf(err, "reddit %s: decode response", op)
	}
	return nil
}

type apiResponse struct {
	JSON struct {
		Errors [][]any `json:"errors"`
		Data   struct {
			URL    string `json:"url"`
			ID     string `json:"id"`
			Name   string `json:"name"`
			Things []struct {
				Data struct {
					ID   string `json:"id"`
					Name string `json:"name"`
				} `json:"data"`
			} `json:"things"`
		} `json:"data"`
	} `json:"json"`
}

func (r apiResponse) err(op string) error {
	if len(r.JSON.Errors) == 0 {
		return nil
	}
	parts := make([]string, 0, len(r.JSON.Errors))
	for _, e := range r.JSON.Errors {
		s := make([]string, 0, len(e))
		for _, v := range e {
			if v != nil {
				s = append(s, strings.TrimSpace(toString(v)))
			}
		}
		parts = append(parts, strings.Join(s, ": "))
	}
	return errors.Newf("reddit %s: %s", op, strings.Join(parts, "; "))
}

func (c *Client) Submit(ctx context.Context, s platform.Submission) (string, error) {
	community := strings.TrimPrefix(strings.TrimSpace(s.Community), "r/")
	if community == "" {
		return "", errors.New("reddit submit: community is empty")
	}
	form := url.Values{
		"api_type": {"json"},
		"kind":     {"self"},
		"sr":       {community},
		"title":    {s.Title},
		"text":     {s.Body},
	}
	var out apiResponse
	if err := c.call(ctx, http.MethodPost, "/api/submit", form, "submit", &out); err != nil {
		return "", err
	}
	if err := out.err("submit"); err != nil {
		return "", err
	}
	if out.JSON.Data.URL == "" {
		return "", errors.New("reddit submit: response has no url")
	}
	return out.JSON.Data.URL, nil
}

func (c *Client) Me(ctx context.Context) (string, error) {
	var out struct {
		Name string `json:"name"`
	}
	if err := c.call(ctx, http.MethodGet, "/api/v1/me", nil, "me", &out); err != nil {
		return "", err
	}
	if out.Name == "" {
		return "", errors.New("reddit me: empty account name")
	}
	return out.Name, nil
}

type listing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string    `json:"kind"`
	Data thingData `json:"data"`
}

type thingData struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	URL       string `json:"url"`
	Permalink string `json:"permalink"`
	Author    string `json:"author"`
	Body      string `json:"body"`
}

func (c *Client) RecentSubmissions(ctx context.Context, limit int) ([]platform.SubmissionRef, error) {
	me, err := c.Me(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	form := url.Values{"sort": {"new"}, "limit": {strconv.Itoa(limit)}, "raw_json": {"1"}}
	var out listing
	if err := c.call(ctx, http.MethodGet, "/user/"+url.PathEscape(me)+"/submitted", form, "submissions", &out); err != nil {
		return nil, err
	}
	refs := make([]platform.SubmissionRef, 0, len(out.Data.Children))
	for _, ch := range out.Data.Children {
		if ch.Kind != "t3" {
			continue
		}
		refs = append(refs, platform.SubmissionRef{ID: ch.Data.ID, Title: ch.Data.Title, URL: ch.Data.URL})
	}
	return refs, nil
}

// Comments returns the top-level comments of a submission. Replies to
// comments are not returned, so the bot never answers inside a thread.
func (c *Client) Comments(ctx context.Context, submissionID string) ([]platform.Comment, error) {
	id := strings.TrimPrefix(submissionID, "t3_")
	form := url.Values{"limit": {"100"}, "depth": {"1"}, "raw_json": {"1"}}
	var out []listing
	if err := c.call(ctx, http.MethodGet, "/comments/"+url.PathEscape(id), form, "comments", &out); err != nil {
		return nil, err
	}
	if len(out) < 2 {
		return nil, nil
	}
	var comments []platform.Comment
	for _, ch := range out[1].Data.Children {
		if ch.Kind != "t1" {
			continue
		}
		author := ch.Data.Author
		if author == "[deleted]" {
			author = ""
		}
		comments = append(comments, platform.Comment{ID: ch.Data.Name, Author: author, Body: ch.Data.Body})
	}
	return comments, nil
}

func (c *Client) Reply(ctx context.Context, commentID, text string) error {
	form := url.Values{
		"api_type": {"json"},
		"thing_id": {commentID},
		"text":     {text},
	}
	var out apiResponse
	if err := c.call(ctx, http.MethodPost, "/api/comment", form, "reply", &out); err != nil {
		return err
	}
	return out.err("reply")
}

func (c *Client) Verify(ctx context.Context) (platform.Report, error) {
	me, err := c.Me(ctx)
	if err != nil {
		return platform.Report{}, err
	}
	rep := platform.Report{Kind: platform.KindForum, Account: "u/" + me}
	subs, err := c.RecentSubmissions(ctx, 10)
	if err != nil {
		return rep, err
	}
	for _, s := range subs {
		rep.Recent = append(rep.Recent, platform.RecentItem{ID: s.ID, Text: s.Title, URL: s.URL})
	}
	return rep, nil
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func nonEmpty(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
