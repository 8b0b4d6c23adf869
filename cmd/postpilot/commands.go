package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"postpilot/internal/app"
	"postpilot/internal/platform"
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate text for the calendar and schedule new posts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rep, err := a.GenerateAndSchedule(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), rep.String())
			return nil
		})
	},
}

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Publish every post that is due now",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			sum, err := a.RunDispatchCycle(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), sum.String())
			printLogs(cmd, a.Logs())
			return nil
		})
	},
}

var repliesCmd = &cobra.Command{
	Use:   "replies",
	Short: "Answer comments on recent forum submissions once",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			rep, err := a.RunReplyCycle(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Replied to %d of %d comments (%d failed)\n", rep.Replied, rep.Comments, rep.Failed)
			return nil
		})
	},
}

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show configured credentials and store counts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			st, err := a.Status(ctx)
			if err != nil {
				return err
			}
			if statusJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		})
	},
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "List planned posts with their publication status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			posts, err := a.AllPosts(ctx)
			if err != nil {
				return err
			}
			printSchedule(cmd.OutOrStdout(), posts, time.Now())
			return nil
		})
	},
}

var (
	enqueuePlatform string
	enqueueText     string
	enqueueIn       time.Duration
	enqueueID       string
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Schedule an ad-hoc post",
	Long: `Schedule an ad-hoc post with explicit text.

Forum posts resolve their community through the calendar, so an ad-hoc forum
post needs an --id that matches a calendar entry (for example an extra entry
in the config).`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		kind, err := platform.ParseKind(enqueuePlatform)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			p, ok, err := a.Enqueue(ctx, kind, enqueueText, time.Now().Add(enqueueIn), enqueueID)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("post %s already exists", p.ID)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scheduled %s post %s for %s UTC\n", kind, p.ID, p.ScheduledAt.Format("2006-01-02 15:04"))
			return nil
		})
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check platform credentials and list recent posts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res := a.Verify(ctx)
			printVerify(cmd.OutOrStdout(), res)
			for _, r := range res {
				if r.Configured && r.Error != "" {
					return fmt.Errorf("verification failed for %s", r.Kind)
				}
			}
			return nil
		})
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print JSON")

	enqueueCmd.Flags().StringVarP(&enqueuePlatform, "platform", "p", "", "microblog, forum or professional-network (aliases accepted)")
	enqueueCmd.Flags().StringVarP(&enqueueText, "text", "t", "", "post text")
	enqueueCmd.Flags().DurationVar(&enqueueIn, "in", time.Minute, "delay before the post is due")
	enqueueCmd.Flags().StringVar(&enqueueID, "id", "", "post id (generated when empty)")
	_ = enqueueCmd.MarkFlagRequired("platform")
	_ = enqueueCmd.MarkFlagRequired("text")
}
