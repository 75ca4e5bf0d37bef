// Command compliance runs the building compliance engine against a building
// portfolio and prints dashboard snapshots, building summaries, and upcoming
// deadlines. Raw agency rows are read from a local data directory, so the
// engine can run against exported open-data extracts without network access.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/opsforge/buildingcompliance/pkg/buildings"
	"github.com/opsforge/buildingcompliance/pkg/compliance"
	"github.com/opsforge/buildingcompliance/pkg/compliance/refresh"
	"github.com/opsforge/buildingcompliance/pkg/compliance/snapshot"
	"github.com/opsforge/buildingcompliance/pkg/config"
	"github.com/opsforge/buildingcompliance/pkg/observability"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "dashboard":
		return runDashboard(args[2:], stdout, stderr)
	case "summary":
		return runSummary(args[2:], stdout, stderr)
	case "deadlines":
		return runDeadlines(args[2:], stdout, stderr)
	case "doctor":
		return runDoctor(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n", args[1])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, `Usage: compliance <command> [flags]

Commands:
  dashboard   build the full dashboard snapshot for the portfolio
  summary     print one building's compliance summary (-building <id>)
  deadlines   list critical compliance deadlines across the portfolio
  doctor      check source data and configuration health`)
}

func setupLogging(cfg *config.Config, stderr io.Writer) {
	level := slog.LevelInfo
	switch strings.ToUpper(cfg.LogLevel) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level})))
}

// buildService assembles the engine from environment configuration plus the
// data directory the fixture clients read from.
func buildService(ctx context.Context, cfg *config.Config, dataDir string) (*compliance.Service, func(), error) {
	registry, err := buildings.LoadPortfolio(cfg.PortfolioPath)
	if err != nil {
		return nil, nil, err
	}

	opts := compliance.Options{
		Concurrency: cfg.Concurrency,
		RecentLimit: cfg.RecentLimit,
		HorizonDays: cfg.HorizonDays,
	}

	var cleanup []func()
	if cfg.ProfilePath != "" {
		profile, err := config.LoadProfile(cfg.ProfilePath)
		if err != nil {
			return nil, nil, err
		}
		opts.Scoring = profile.Scoring
		opts.TTLs = profile.TTLs()
	}

	store, err := snapshot.OpenSQLiteStore(cfg.SnapshotDBPath)
	if err != nil {
		return nil, nil, err
	}
	opts.Snapshots = store
	cleanup = append(cleanup, func() { _ = store.Close() })

	if cfg.RedisAddr != "" {
		shared := refresh.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		opts.SharedCache = shared
		cleanup = append(cleanup, func() { _ = shared.Close() })
	}

	if cfg.OTLPEndpoint != "" {
		obsCfg := observability.DefaultConfig()
		obsCfg.OTLPEndpoint = cfg.OTLPEndpoint
		obsCfg.Enabled = true
		obs, err := observability.New(ctx, obsCfg)
		if err != nil {
			return nil, nil, err
		}
		opts.Observability = obs
		cleanup = append(cleanup, func() { _ = obs.Shutdown(context.Background()) })
	}

	client := newFileClient(dataDir)
	svc := compliance.NewService(registry, compliance.Clients{
		HPD:  client,
		DOB:  client,
		DSNY: client,
		LL97: client,
	}, opts)

	return svc, func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			cleanup[i]()
		}
	}, nil
}

func runDashboard(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataDir := fs.String("data", "data", "directory of raw agency extracts")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	setupLogging(cfg, stderr)
	ctx := context.Background()

	svc, done, err := buildService(ctx, cfg, *dataDir)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer done()

	data, err := svc.LoadComplianceData(ctx, nil)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return printJSON(stdout, stderr, data)
}

func runSummary(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataDir := fs.String("data", "data", "directory of raw agency extracts")
	buildingID := fs.String("building", "", "building ID to summarize")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *buildingID == "" {
		_, _ = fmt.Fprintln(stderr, "summary requires -building <id>")
		return 2
	}

	cfg := config.Load()
	setupLogging(cfg, stderr)
	ctx := context.Background()

	svc, done, err := buildService(ctx, cfg, *dataDir)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer done()

	summary, err := svc.GetBuildingComplianceSummary(ctx, *buildingID)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return printJSON(stdout, stderr, summary)
}

func runDeadlines(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("deadlines", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataDir := fs.String("data", "data", "directory of raw agency extracts")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	setupLogging(cfg, stderr)
	ctx := context.Background()

	svc, done, err := buildService(ctx, cfg, *dataDir)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer done()

	data, err := svc.LoadComplianceData(ctx, nil)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return printJSON(stdout, stderr, data.CriticalDeadlines)
}

// runDoctor checks that the portfolio loads, the data directory is readable,
// and each source adapter reports healthy after a probe fetch.
func runDoctor(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("doctor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dataDir := fs.String("data", "data", "directory of raw agency extracts")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg := config.Load()
	setupLogging(cfg, stderr)
	ctx := context.Background()

	ok := true
	registry, err := buildings.LoadPortfolio(cfg.PortfolioPath)
	if err != nil {
		_, _ = fmt.Fprintf(stdout, "portfolio: FAIL (%v)\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(stdout, "portfolio: OK (%d buildings)\n", len(registry.List()))

	if _, err := os.Stat(*dataDir); err != nil {
		_, _ = fmt.Fprintf(stdout, "data dir: FAIL (%v)\n", err)
		return 1
	}
	_, _ = fmt.Fprintln(stdout, "data dir: OK")

	svc, done, err := buildService(ctx, cfg, *dataDir)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	defer done()

	if bs := registry.List(); len(bs) > 0 {
		if _, err := svc.LoadComplianceData(ctx, []string{bs[0].ID}); err != nil {
			_, _ = fmt.Fprintf(stdout, "probe fetch: FAIL (%v)\n", err)
			ok = false
		}
	}
	for source, healthy := range svc.SourceHealth(ctx) {
		status := "OK"
		if !healthy {
			status = "FAIL"
			ok = false
		}
		_, _ = fmt.Fprintf(stdout, "source %s: %s\n", source, status)
	}
	if !ok {
		return 1
	}
	return 0
}

func printJSON(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_, _ = fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}
