package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"postpilot/internal/app"
	"postpilot/internal/config"
	"postpilot/pkg/systemd"
	logx "postpilot/pkg/logx"
)

const defaultConfigPath = "./postpilot.yaml"

var (
	cfgPath        string
	generateOnBoot bool
)

var rootCmd = &cobra.Command{
	Use:   "postpilot",
	Short: "Scheduled multi-platform promotion campaigns",
	Long: `postpilot plans a promotion campaign with generated text, publishes due
posts to the microblog, forum and professional network accounts, and answers
comments on recent forum submissions.

Examples:
  postpilot                         # run the background loops until signaled
  postpilot generate                # plan the calendar once
  postpilot dispatch                # publish everything due now
  postpilot schedule                # list planned posts
  postpilot enqueue --platform forum --text "hi" --in 1m --id test_forum`,
	SilenceUsage: true,
	RunE:         runDaemon,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the dispatch and comment loops until SIGINT/SIGTERM",
	RunE:  runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", defaultConfigPath, "config file (json, yaml or toml)")
	for _, c := range []*cobra.Command{rootCmd, runCmd} {
		c.Flags().BoolVar(&generateOnBoot, "generate", false, "plan the calendar before starting the loops")
	}
	rootCmd.AddCommand(runCmd, generateCmd, dispatchCmd, repliesCmd, statusCmd, scheduleCmd, enqueueCmd, verifyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configPath drops the default path when that file does not exist, so a
// bare environment-only setup works.
func configPath(cmd *cobra.Command) string {
	if cmd.Flags().Changed("config") {
		return cfgPath
	}
	if _, err := os.Stat(cfgPath); errors.Is(err, os.ErrNotExist) {
		return ""
	}
	return cfgPath
}

func openApp(cmd *cobra.Command) (*app.App, error) {
	cfgm := config.NewConfigManager(configPath(cmd))
	if _, err := cfgm.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return app.New(cmd.Context(), cfgm, app.Options{})
}

// withApp runs fn against a one-shot app and closes it afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.Stop(ctx)
	}()
	return fn(cmd.Context(), a)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	cmd.SetContext(ctx)

	a, err := openApp(cmd)
	if err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		return err
	}
	if generateOnBoot {
		if rep, err := a.GenerateAndSchedule(ctx); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "generate:", err)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), rep.String())
		}
	}
	if _, err := a.StartBackgroundLoops(ctx); err != nil {
		return err
	}

	if _, err := systemd.Ready(); err != nil {
		logx.NewConsole("warn").Warn("sd_notify ready failed", logx.Err(err))
	}
	go systemd.Watchdog(ctx)
	snap := a.Scheduler()
	_, _ = systemd.Status(fmt.Sprintf("%d loops running", len(snap.Loops)))

	select {
	case <-ctx.Done():
	case <-a.Done():
	}
	_, _ = systemd.Stopping()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)
	return a.Err()
}
