package platform

import (
	"fmt"
	"strings"
)

// Kind names a publishing destination class.
type Kind string

const (
	KindMicroblog    Kind = "microblog"
	KindForum        Kind = "forum"
	KindProfessional Kind = "professional-network"
)

// Kinds lists every supported kind in display order.
func Kinds() []Kind { return []Kind{KindMicroblog, KindForum, KindProfessional} }

func (k Kind) String() string { return string(k) }

func (k Kind) Valid() bool {
	switch k {
	case KindMicroblog, KindForum, KindProfessional:
		return true
	}
	return false
}

// ParseKind accepts canonical names and service aliases.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "microblog", "x", "twitter", "bluesky", "bsky":
		return KindMicroblog, nil
	case "forum", "reddit":
		return KindForum, nil
	case "professional-network", "professional", "linkedin":
		return KindProfessional, nil
	}
	return "", fmt.Errorf("unknown platform %q", s)
}
