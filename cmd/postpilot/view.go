package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"postpilot/internal/app"
	"postpilot/internal/platform"
	"postpilot/internal/storage"
)

// scheduleStatus is POSTED, DUE NOW or the time left until the post is due.
func scheduleStatus(p storage.Post, now time.Time) string {
	switch {
	case p.Posted:
		return "POSTED"
	case p.Due(now):
		return "DUE NOW"
	}
	return "in " + until(p.ScheduledAt.Sub(now))
}

func until(d time.Duration) string {
	d = d.Truncate(time.Second)
	days := int(d / (24 * time.Hour))
	h := int(d/time.Hour) % 24
	m := int(d/time.Minute) % 60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, h)
	case h > 0:
		return fmt.Sprintf("%dh %dm", h, m)
	case m > 0:
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%ds", int(d/time.Second))
}

func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func printSchedule(w io.Writer, posts []storage.Post, now time.Time) {
	if len(posts) == 0 {
		fmt.Fprintln(w, "No scheduled posts found. Run `postpilot generate` first.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPLATFORM\tSCHEDULED (UTC)\tSTATUS\tTEXT")
	var posted, due, future int
	for _, p := range posts {
		st := scheduleStatus(p, now)
		switch st {
		case "POSTED":
			posted++
		case "DUE NOW":
			due++
		default:
			future++
		}
		text := excerpt(p.Text, 60)
		if p.Permalink != "" {
			text = p.Permalink
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.ID, p.Platform, p.ScheduledAt.UTC().Format("2006-01-02 15:04"), st, text)
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%d posted, %d due now, %d upcoming\n", posted, due, future)
}

func yesNo(b bool) string {
	if b {
		return "ok"
	}
	return "missing"
}

func printStatus(w io.Writer, st app.Status) {
	fmt.Fprintln(w, "Credentials")
	for _, k := range platform.Kinds() {
		fmt.Fprintf(w, "  %-22s %s\n", k, yesNo(st.Credentials.Platforms[k]))
	}
	backends := "none"
	if len(st.Credentials.Backends) > 0 {
		backends = strings.Join(st.Credentials.Backends, " -> ")
	}
	fmt.Fprintf(w, "  %-22s %s\n", "text generation", backends)
	fmt.Fprintf(w, "  %-22s %s\n", "telegram alerts", yesNo(st.Credentials.Telegram))

	fmt.Fprintf(w, "\nCampaign\n  promoted link: %s\n  calendar entries: %d\n", st.PromotedLink, st.CalendarEntries)

	s := st.Storage
	fmt.Fprintf(w, "\nPosts\n  total %d, posted %d, pending %d, due %d\n", s.Total, s.Posted, s.Pending, s.Due)
	for _, k := range platform.Kinds() {
		if ps, ok := s.ByPlatform[k.String()]; ok {
			fmt.Fprintf(w, "  %-22s total %d, posted %d, pending %d\n", k, ps.Total, ps.Posted, ps.Pending)
		}
	}
}

func printVerify(w io.Writer, res []app.VerifyResult) {
	for _, r := range res {
		switch {
		case !r.Configured:
			fmt.Fprintf(w, "%s: not configured\n", r.Kind)
		case r.Error != "":
			fmt.Fprintf(w, "%s: error: %s\n", r.Kind, r.Error)
		default:
			fmt.Fprintf(w, "%s: account %s, %d recent\n", r.Kind, r.Report.Account, len(r.Report.Recent))
			for i, it := range r.Report.Recent {
				fmt.Fprintf(w, "  %d. %s\n", i+1, excerpt(it.Text, 80))
				if it.URL != "" {
					fmt.Fprintf(w, "     %s\n", it.URL)
				}
			}
		}
	}
}

func printLogs(cmd *cobra.Command, logs []string) {
	for _, l := range logs {
		fmt.Fprintln(cmd.ErrOrStderr(), l)
	}
}
