package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gradewatch/gradewatch/internal/api"
	"github.com/gradewatch/gradewatch/internal/config"
	"github.com/gradewatch/gradewatch/internal/differ"
	"github.com/gradewatch/gradewatch/internal/journal"
	"github.com/gradewatch/gradewatch/internal/notify"
	"github.com/gradewatch/gradewatch/internal/pipeline"
	"github.com/gradewatch/gradewatch/internal/schedule"
	"github.com/gradewatch/gradewatch/internal/storage"
	"github.com/gradewatch/gradewatch/internal/storage/sqlite"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a change-detection cycle",
	Long: `Run the fetch-diff-notify-persist pipeline.

Without flags, runs a single cycle and exits. With --daemon, stays
resident and runs a cycle at each scheduled time.

Examples:
  gradewatch run                          # One cycle now
  gradewatch run --daemon                 # Daemon on configured times
  gradewatch run --daemon --times 07:30,15:30
`,
	Run: func(cmd *cobra.Command, args []string) {
		daemon, _ := cmd.Flags().GetBool("daemon")
		timesFlag, _ := cmd.Flags().GetStringSlice("times")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		os.Exit(runPipeline(ctx, daemon, timesFlag))
	},
}

func init() {
	runCmd.Flags().Bool("daemon", false, "Stay resident and run on the configured schedule")
	runCmd.Flags().StringSlice("times", nil, "Override scheduled times (HH:MM, comma-separated)")
	rootCmd.AddCommand(runCmd)
}

func runPipeline(ctx context.Context, daemon bool, timesFlag []string) int {
	log := slog.Default()

	orch, store, err := buildOrchestrator(ctx, log)
	if err != nil {
		if errors.Is(err, storage.ErrLocked) {
			fmt.Fprintln(os.Stderr, "Error: another gradewatch instance holds the store lock")
			return 2
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer store.Close()

	if !daemon {
		result := orch.RunCycle(ctx)
		if result.OK() {
			return 0
		}
		return 1
	}

	specs := timesFlag
	if len(specs) == 0 {
		specs = config.GetStringSlice("scrape_times")
	}
	times, err := schedule.ParseTimes(specs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	log.Info("daemon started", "schedule", fmt.Sprint(times), "store", store.Path())
	runner := schedule.NewRunner(times, log)
	if err := runner.Run(ctx, func(ctx context.Context) {
		orch.RunCycle(ctx)
	}); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	log.Info("daemon stopped")
	return 0
}

// buildOrchestrator assembles the pipeline from configuration. The
// returned store must be closed by the caller.
func buildOrchestrator(ctx context.Context, log *slog.Logger) (*pipeline.Orchestrator, storage.Store, error) {
	client, err := api.NewClient(
		config.GetString("api.key"),
		config.GetString("api.secret"),
		config.GetString("api.domain"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("api: %w", err)
	}

	store, err := sqlite.NewWithTimeout(ctx, config.GetString("storage.path"), config.GetMilliseconds("storage.timeout_ms"))
	if err != nil {
		return nil, nil, fmt.Errorf("storage: %w", err)
	}

	providers := []notify.Provider{
		notify.NewPushover(notify.PushoverConfig{
			APIToken: config.GetString("notifications.pushover.token"),
			UserKey:  config.GetString("notifications.pushover.user"),
			Device:   config.GetString("notifications.pushover.device"),
		}, log),
		notify.NewEmail(notify.EmailConfig{
			Host:       config.GetString("notifications.email.host"),
			Port:       config.GetInt("notifications.email.port"),
			Username:   config.GetString("notifications.email.username"),
			Password:   config.GetString("notifications.email.password"),
			From:       config.GetString("notifications.email.from"),
			Recipients: config.GetString("notifications.email.recipients"),
		}, log),
		notify.NewClaude(notify.ClaudeConfig{
			APIKey: config.GetString("notifications.claude.api_key"),
			Model:  config.GetString("notifications.claude.model"),
		}, log),
	}
	manager := notify.NewManager(providers, config.GetMilliseconds("notifications.timeout_ms"), log)

	orch := &pipeline.Orchestrator{
		Fetcher:    api.NewFetcher(client, log),
		Store:      store,
		Differ:     differ.New(store, log),
		Journal:    journal.New(config.GetString("journal.path"), config.GetInt("journal.retention_days")),
		Notifier:   manager,
		HealthURL:  config.GetString("healthcheck.url"),
		MaxRetries: config.GetInt("retry.max_attempts"),
		RetryDelay: config.GetMilliseconds("retry.delay_ms"),
		Logger:     log,
	}
	return orch, store, nil
}
