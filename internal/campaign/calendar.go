// Package campaign expands the declarative calendar and turns it into
// scheduled posts.
package campaign

import (
	"fmt"
	"strconv"
	"strings"

	"postpilot/internal/config"
	"postpilot/internal/platform"
)

// Entry is one calendar slot.
type Entry struct {
	ID        string
	Platform  platform.Kind
	Prompt    string
	Day       int
	Community string // forum only
}

// Template is a per-platform row repeated for every day of the campaign.
type Template struct {
	Platform  platform.Kind
	Prompt    string
	Community string
}

// Calendar is an immutable ordered list of entries.
type Calendar struct {
	entries []Entry
	byID    map[string]int
}

// EntryID is the stable id of a calendar slot.
func EntryID(kind platform.Kind, day int) string {
	return string(kind) + "_" + strconv.Itoa(day)
}

// Expand builds days x templates entries in day-major order, then appends
// extra. Extra entries without an id get the derived one.
func Expand(templates []Template, days int, extra []Entry) (*Calendar, error) {
	c := &Calendar{byID: map[string]int{}}
	add := func(e Entry) error {
		if !e.Platform.Valid() {
			return fmt.Errorf("entry %q: unknown platform %q", e.ID, e.Platform)
		}
		if strings.TrimSpace(e.Prompt) == "" {
			return fmt.Errorf("entry %q: prompt is empty", e.ID)
		}
		if e.Day < 0 {
			return fmt.Errorf("entry %q: negative day %d", e.ID, e.Day)
		}
		if _, dup := c.byID[e.ID]; dup {
			return fmt.Errorf("duplicate calendar id %q", e.ID)
		}
		c.byID[e.ID] = len(c.entries)
		c.entries = append(c.entries, e)
		return nil
	}

	for day := 0; day < days; day++ {
		for _, t := range templates {
			e := Entry{ID: EntryID(t.Platform, day), Platform: t.Platform, Prompt: t.Prompt, Day: day, Community: t.Community}
			if err := add(e); err != nil {
				return nil, err
			}
		}
	}
	for _, e := range extra {
		if strings.TrimSpace(e.ID) == "" {
			e.ID = EntryID(e.Platform, e.Day)
		}
		if err := add(e); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// FromConfig expands the campaign section.
func FromConfig(cc config.CampaignConfig) (*Calendar, error) {
	templates := make([]Template, 0, len(cc.Templates))
	for _, t := range cc.Templates {
		kind, err := platform.ParseKind(t.Platform)
		if err != nil {
			return nil, err
		}
		templates = append(templates, Template{Platform: kind, Prompt: t.Prompt, Community: t.Community})
	}
	extra := make([]Entry, 0, len(cc.Extra))
	for _, e := range cc.Extra {
		kind, err := platform.ParseKind(e.Platform)
		if err != nil {
			return nil, err
		}
		extra = append(extra, Entry{ID: strings.TrimSpace(e.ID), Platform: kind, Prompt: e.Prompt, Day: e.Day, Community: e.Community})
	}
	return Expand(templates, cc.Days, extra)
}

func (c *Calendar) Entries() []Entry {
	if c == nil {
		return nil
	}
	return append([]Entry(nil), c.entries...)
}

func (c *Calendar) Len() int {
	if c == nil {
		return 0
	}
	return len(c.entries)
}

func (c *Calendar) Lookup(id string) (Entry, bool) {
	if c == nil {
		return Entry{}, false
	}
	i, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i], true
}
