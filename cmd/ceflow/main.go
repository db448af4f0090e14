// Command ceflow runs cost-effectiveness analysis pipelines from the
// terminal: start a run, resume a suspended one with a decision, inspect
// runs, or expire stale checkpoints.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/healtheconlab/ceflow/internal/engine"
	"github.com/healtheconlab/ceflow/internal/logging"
	"github.com/healtheconlab/ceflow/internal/step"
	"github.com/healtheconlab/ceflow/internal/store"
	"github.com/healtheconlab/ceflow/pkg/schema"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := loadConfig()
	logger := newLogger(cfg.LogLevel)

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(cfg, logger, os.Args[2:])
	case "resume":
		err = cmdResume(cfg, logger, os.Args[2:])
	case "runs":
		err = cmdRuns(cfg, logger, os.Args[2:])
	case "sweep":
		err = cmdSweep(cfg, logger, os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage: ceflow <command> [flags]

commands:
  run     -mode <assisted|augmented|automated> "<request>"   start an analysis run
  resume  -approve|-reject [-comment <text>] <checkpoint-id> resume a suspended run
  runs    [-status <status>] [-limit <n>]                    list runs
  sweep   [-ttl <duration>]                                  expire stale checkpoints
`)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	inner := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	return slog.New(logging.NewCorrelationHandler(inner))
}

func openStore(cfg Config) (*store.LibSQLStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	s, err := store.NewLibSQLStore("file:" + cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(context.Background()); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func newEngine(s *store.LibSQLStore, logger *slog.Logger) (*engine.Engine, error) {
	registry, err := step.DefaultRegistry()
	if err != nil {
		return nil, err
	}
	return engine.New(s, registry, logger), nil
}

func cmdRun(cfg Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	mode := fs.String("mode", string(schema.ModeAssisted), "operating mode: assisted, augmented or automated")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("run requires a request, e.g. ceflow run -mode automated %q", "markov model for diabetes, drug A vs standard of care")
	}
	request := strings.Join(fs.Args(), " ")

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	eng, err := newEngine(s, logger)
	if err != nil {
		return err
	}

	result, err := eng.Start(context.Background(), request, schema.Mode(*mode))
	if err != nil {
		return err
	}
	return printResult(result)
}

func cmdResume(cfg Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("resume", flag.ExitOnError)
	approve := fs.Bool("approve", false, "approve the pending decision")
	reject := fs.Bool("reject", false, "reject the pending decision")
	comment := fs.String("comment", "", "optional decision commentary")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("resume requires exactly one checkpoint id")
	}
	if *approve == *reject {
		return fmt.Errorf("resume requires exactly one of -approve or -reject")
	}

	decision, err := json.Marshal(schema.Decision{Approved: *approve, Comment: *comment})
	if err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	eng, err := newEngine(s, logger)
	if err != nil {
		return err
	}

	result, err := eng.Resume(context.Background(), fs.Arg(0), decision)
	if err != nil {
		return err
	}
	return printResult(result)
}

func cmdRuns(cfg Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	status := fs.String("status", "", "filter by status")
	limit := fs.Int("limit", 20, "maximum runs to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	filter := store.RunFilter{Limit: *limit}
	if *status != "" {
		st := schema.RunStatus(*status)
		filter.Status = &st
	}
	runs, err := s.ListRuns(context.Background(), filter)
	if err != nil {
		return err
	}

	for _, r := range runs {
		fmt.Printf("%s  %-9s  %-9s  %s\n", r.ID, r.Status, r.Mode, truncate(r.Request, 60))
	}
	return nil
}

func cmdSweep(cfg Config, logger *slog.Logger, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	ttl := fs.Duration("ttl", cfg.checkpointTTL(), "pending checkpoint age before expiry")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	sweeper, err := engine.NewSweeper(s, cfg.SweepSchedule, *ttl, logger)
	if err != nil {
		return err
	}
	sweeper.Sweep(context.Background())
	return nil
}

func printResult(result *engine.RunResult) error {
	switch result.Status {
	case schema.RunStatusSuspended:
		fmt.Printf("run %s suspended awaiting decision\n", result.RunID)
		fmt.Printf("checkpoint: %s\n", result.CheckpointID)
		fmt.Printf("resume with: ceflow resume -approve %s\n", result.CheckpointID)
	case schema.RunStatusCompleted:
		var report string
		if result.State.Has(step.KeyReport) {
			if err := result.State.Output(step.KeyReport, &report); err == nil {
				fmt.Println(report)
			}
		} else {
			fmt.Printf("run %s completed with no report\n", result.RunID)
		}
	case schema.RunStatusFailed:
		fmt.Printf("run %s failed: %s\n", result.RunID, result.Err.Error())
		for _, w := range result.State.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
