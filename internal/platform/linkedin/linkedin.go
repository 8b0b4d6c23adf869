// Package linkedin shares text posts through the UGC Posts API.
package linkedin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"postpilot/internal/platform"
)

type Config struct {
	Token      string
	Author     string // default urn:li:person:me
	BaseURL    string // default https://api.linkedin.com
	Timeout    time.Duration
	HTTPClient *http.Client
}

type Client struct {
	cfg  Config
	http *http.Client
}

func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, platform.NotConfigured(platform.KindProfessional)
	}
	if cfg.Author == "" {
		cfg.Author = "urn:li:person:me"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.linkedin.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 20 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{cfg: cfg, http: hc}, nil
}

type ugcPost struct {
	Author          string            `json:"author"`
	LifecycleState  string            `json:"lifecycleState"`
	SpecificContent specificContent   `json:"specificContent"`
	Visibility      map[string]string `json:"visibility"`
}

type specificContent struct {
	ShareContent shareContent `json:"com.linkedin.ugc.ShareContent"`
}

type shareContent struct {
	ShareCommentary    text   `json:"shareCommentary"`
	ShareMediaCategory string `json:"shareMediaCategory"`
}

type text struct {
	Text string `json:"text"`
}

// Share publishes body. Only HTTP 201 counts as success.
func (c *Client) Share(ctx context.Context, body string) error {
	payload := ugcPost{
		Author:         c.cfg.Author,
		LifecycleState: "PUBLISHED",
		SpecificContent: specificContent{ShareContent: shareContent{
			ShareCommentary:    text{Text: body},
			ShareMediaCategory: "NONE",
		}},
		Visibility: map[string]string{"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC"},
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v2/ugcPosts", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Restli-Protocol-Version", "2.0.0")
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "linkedin share")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		rb, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &platform.StatusError{Kind: platform.KindProfessional, Op: "share", Code: resp.StatusCode, Body: platform.Snippet(rb)}
	}
	return nil
}

// Verify reads the OpenID userinfo of the token owner.
func (c *Client) Verify(ctx context.Context) (platform.Report, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/v2/userinfo", nil)
	if err != nil {
		return platform.Report{}, err
	}
	c.authorize(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return platform.Report{}, errors.Wrap(err, "linkedin userinfo")
	}
	defer resp.Body.Close()
	rb, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode != http.StatusOK {
		return platform.Report{}, &platform.StatusError{Kind: platform.KindProfessional, Op: "userinfo", Code: resp.StatusCode, Body: platform.Snippet(rb)}
	}
	var info struct {
		Sub  string `json:"sub"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(rb, &info); err != nil {
		return platform.Report{}, errors.Wrap(err, "linkedin userinfo: decode")
	}
	account := info.Name
	if account == "" {
		account = info.Sub
	}
	return platform.Report{Kind: platform.KindProfessional, Account: account}, nil
}

func (c *Client) authorize(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
}
