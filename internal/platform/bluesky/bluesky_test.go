package bluesky

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postpilot/internal/platform"
)

type fakePDS struct {
	records []map[string]any
}

func (f *fakePDS) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/xrpc/com.atproto.server.createSession", func(w http.ResponseWriter, r *http.Request) {
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in["password"] != "app-pass" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"AuthenticationRequired","message":"Invalid identifier or password"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"accessJwt":  "access",
			"refreshJwt": "refresh",
			"handle":     in["identifier"],
			"did":        "did:plc:abc123",
		})
	})
	mux.HandleFunc("/xrpc/com.atproto.repo.createRecord", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		var in map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		f.records = append(f.records, in)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"uri": "at://did:plc:abc123/app.bsky.feed.post/3kxyz",
			"cid": "bafyrei",
		})
	})
	return mux
}

func TestPublishStatus(t *testing.T) {
	pds := &fakePDS{}
	srv := httptest.NewServer(pds.handler(t))
	defer srv.Close()

	c, err := New(Config{Host: srv.URL, Handle: "me.bsky.social", AppPassword: "app-pass"})
	require.NoError(t, err)
	c.now = func() time.Time { return time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC) }

	ref, err := c.PublishStatus(context.Background(), "hello https://bit.ly/qorganizer")
	require.NoError(t, err)
	assert.Equal(t, "3kxyz", ref.RecordKey)
	assert.Equal(t, "bafyrei", ref.CID)

	require.Len(t, pds.records, 1)
	assert.Equal(t, "app.bsky.feed.post", pds.records[0]["collection"])
	assert.Equal(t, "did:plc:abc123", pds.records[0]["repo"])
	rec := pds.records[0]["record"].(map[string]any)
	assert.Equal(t, "hello https://bit.ly/qorganizer", rec["text"])
	assert.Equal(t, "2025-03-01T09:30:00Z", rec["createdAt"])
}

func TestPublishStatusBadCredentials(t *testing.T) {
	srv := httptest.NewServer((&fakePDS{}).handler(t))
	defer srv.Close()

	c, err := New(Config{Host: srv.URL, Handle: "me", AppPassword: "wrong"})
	require.NoError(t, err)
	_, err = c.PublishStatus(context.Background(), "x")
	assert.Error(t, err)
}

func TestNewRequiresCredentials(t *testing.T) {
	_, err := New(Config{Handle: "me"})
	assert.True(t, errors.Is(err, platform.ErrNotConfigured))
}

func TestPermalink(t *testing.T) {
	assert.Equal(t, "https://bsky.app/profile/me.bsky.social/post/3kxyz", Permalink("", "me.bsky.social", "3kxyz"))
	assert.Equal(t, "https://x.example/3kxyz?u=me", Permalink("https://x.example/{id}?u={handle}", "me", "3kxyz"))
}
