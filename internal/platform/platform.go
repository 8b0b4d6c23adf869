// Package platform defines the publishing capabilities the campaign needs
// from external networks. Implementations live in subpackages.
package platform

import "context"

// StatusRef identifies a published microblog status.
type StatusRef struct {
	URI       string
	CID       string
	RecordKey string
}

type Microblog interface {
	PublishStatus(ctx context.Context, text string) (StatusRef, error)
}

type Submission struct {
	Community string
	Title     string
	Body      string
}

type Forum interface {
	// Submit creates a text submission and returns its URL.
	Submit(ctx context.Context, s Submission) (string, error)
}

type Professional interface {
	Share(ctx context.Context, body string) error
}

type SubmissionRef struct {
	ID    string
	Title string
	URL   string
}

// Comment is a forum comment. ID is the fullname accepted by Reply.
type Comment struct {
	ID     string
	Author string // empty when the author was deleted
	Body   string
}

// ForumAccount is the authenticated forum identity used by the reply loop.
type ForumAccount interface {
	Me(ctx context.Context) (string, error)
	RecentSubmissions(ctx context.Context, limit int) ([]SubmissionRef, error)
	Comments(ctx context.Context, submissionID string) ([]Comment, error)
	Reply(ctx context.Context, commentID, text string) error
}

// RecentItem is one entry of a verification report.
type RecentItem struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	URL  string `json:"url,omitempty"`
}

type Report struct {
	Kind    Kind         `json:"kind"`
	Account string       `json:"account"`
	Recent  []RecentItem `json:"recent,omitempty"`
}

// Verifier checks credentials with an authenticated read.
type Verifier interface {
	Verify(ctx context.Context) (Report, error)
}

// Publishers builds a fresh client per use. A nil factory means the
// platform is not configured.
type Publishers struct {
	Microblog    func(ctx context.Context) (Microblog, error)
	Forum        func(ctx context.Context) (Forum, error)
	Professional func(ctx context.Context) (Professional, error)
	ForumAccount func(ctx context.Context) (ForumAccount, error)
	Verifiers    map[Kind]func(ctx context.Context) (Verifier, error)
}

func (p Publishers) NewMicroblog(ctx context.Context) (Microblog, error) {
	if p.Microblog == nil {
		return nil, NotConfigured(KindMicroblog)
	}
	return p.Microblog(ctx)
}

func (p Publishers) NewForum(ctx context.Context) (Forum, error) {
	if p.Forum == nil {
		return nil, NotConfigured(KindForum)
	}
	return p.Forum(ctx)
}

func (p Publishers) NewProfessional(ctx context.Context) (Professional, error) {
	if p.Professional == nil {
		return nil, NotConfigured(KindProfessional)
	}
	return p.Professional(ctx)
}

func (p Publishers) NewForumAccount(ctx context.Context) (ForumAccount, error) {
	if p.ForumAccount == nil {
		return nil, NotConfigured(KindForum)
	}
	return p.ForumAccount(ctx)
}
