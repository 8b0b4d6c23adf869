package platform

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var ErrNotConfigured = errors.New("platform not configured")

// NotConfigured returns an error matching ErrNotConfigured for kind.
func NotConfigured(kind Kind) error {
	return errors.Wrapf(ErrNotConfigured, "%s", kind)
}

// StatusError reports an unexpected HTTP status from a platform API.
type StatusError struct {
	Kind Kind
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Kind, e.Op, e.Code)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Kind, e.Op, e.Code, e.Body)
}

// Snippet trims an API response body for error messages.
func Snippet(b []byte) string {
	const maxN = 300
	r := []rune(string(b))
	if len(r) > maxN {
		return string(r[:maxN]) + "…"
	}
	return string(r)
}
