// Package main provides the CLI entry point for the load generator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shopops/automator/tools/loadgen/internal/config"
	"github.com/shopops/automator/tools/loadgen/internal/runner"
)

// Version information (populated at build time)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// CLI flags
var (
	configPath  string
	duration    time.Duration
	qps         float64
	workers     int
	seed        int64
	validate    bool
	verbose     bool
	showVersion bool
)

func init() {
	flag.StringVar(&configPath, "config", "", "Path to the YAML configuration file")
	flag.StringVar(&configPath, "c", "", "Path to the YAML configuration file (shorthand)")

	flag.DurationVar(&duration, "duration", 0, "Override run duration (e.g., 5m, 1h)")
	flag.DurationVar(&duration, "d", 0, "Override run duration (shorthand)")
	flag.Float64Var(&qps, "qps", 0, "Override target QPS")
	flag.IntVar(&workers, "workers", 0, "Override worker count")
	flag.Int64Var(&seed, "seed", 0, "Override parameter generator seed")

	flag.BoolVar(&validate, "validate", false, "Validate configuration and exit")
	flag.BoolVar(&verbose, "verbose", false, "Enable verbose output")
	flag.BoolVar(&verbose, "v", false, "Enable verbose output (shorthand)")
	flag.BoolVar(&showVersion, "version", false, "Show version information")

	flag.Usage = printUsage
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Load Generator - Automation Engine Load Testing Tool

USAGE:
    loadgen -config <path> [options]

DESCRIPTION:
    Generates plan submissions, status reads and approval traffic against a
    running automator deployment. Agent parameters are faked per agent type,
    and plan IDs returned by the API are fed back into later read requests.

CONFIGURATION:
    -config, -c <path>    Path to the YAML configuration file

OVERRIDE OPTIONS:
    -duration, -d <dur>   Override run duration (e.g., "5m", "1h30m")
    -qps <n>              Override target QPS
    -workers <n>          Override worker count
    -seed <n>             Override parameter generator seed

UTILITY OPTIONS:
    -validate             Validate configuration and exit
    -verbose, -v          Enable verbose output
    -version              Show version information
    -help, -h             Show this help message

EXAMPLES:
    # Run with the example configuration
    loadgen -config configs/automator.yaml

    # Run with overridden duration and QPS
    loadgen -config configs/automator.yaml -duration 10m -qps 50

    # Reproduce a run's parameters exactly
    loadgen -config configs/automator.yaml -seed 42

    # Validate configuration
    loadgen -config configs/automator.yaml -validate

CONFIGURATION FILE FORMAT:
    The configuration file is in YAML format and supports:
    - Target settings (baseURL, timeout, headers)
    - Rate limiting (qps, burst) and worker count
    - Agent mix with per-agent weights and dry-run fractions
    - Operation mix (submit, status, result)
    - Approval of parked plans
    - Prometheus metrics endpoint

    See configs/automator.yaml for a complete example.
`)
}

func main() {
	flag.Parse()

	if showVersion {
		printVersion()
		os.Exit(0)
	}

	if configPath == "" {
		fmt.Fprintln(os.Stderr, "Error: -config flag is required")
		fmt.Fprintln(os.Stderr, "")
		printUsage()
		os.Exit(1)
	}

	absConfigPath, err := filepath.Abs(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving config path: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadFromFile(absConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	applyOverrides(cfg)

	if validate {
		fmt.Printf("Configuration '%s' is valid.\n", cfg.Name)
		printConfigSummary(cfg)
		os.Exit(0)
	}

	if err := runLoad(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error running load: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("loadgen version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

func applyOverrides(cfg *config.Config) {
	if duration > 0 {
		cfg.Duration = duration
		if verbose {
			fmt.Printf("Override: duration = %v\n", duration)
		}
	}

	if qps > 0 {
		cfg.Rate.QPS = qps
		// Let the limiter derive a matching burst from the new rate.
		cfg.Rate.Burst = 0
		if verbose {
			fmt.Printf("Override: qps = %.1f\n", qps)
		}
	}

	if workers > 0 {
		cfg.Workers = workers
		if verbose {
			fmt.Printf("Override: workers = %d\n", workers)
		}
	}

	if seed != 0 {
		cfg.Seed = seed
		if verbose {
			fmt.Printf("Override: seed = %d\n", seed)
		}
	}

	if verbose {
		cfg.Verbose = true
	}
}

func printConfigSummary(cfg *config.Config) {
	fmt.Println()
	fmt.Println("Configuration Summary:")
	fmt.Printf("  Name:     %s\n", cfg.Name)
	fmt.Printf("  Target:   %s\n", cfg.Target.BaseURL)
	fmt.Printf("  Duration: %v\n", cfg.Duration)
	fmt.Printf("  QPS:      %.1f\n", cfg.Rate.QPS)
	fmt.Printf("  Workers:  %d\n", cfg.Workers)
	fmt.Printf("  Seed:     %d\n", cfg.Seed)
	fmt.Printf("  Agents:   %d (total weight %d)\n", len(cfg.Agents), cfg.TotalAgentWeight())
	for _, a := range cfg.Agents {
		fmt.Printf("    - %-12s weight %-3d dryRun %.0f%%\n",
			a.Type, a.Weight, a.DryRunFraction()*100)
	}
	fmt.Printf("  Approve parked: %v\n", cfg.ApproveParked)
	if cfg.Prometheus.Enabled {
		fmt.Printf("  Prometheus:     %s%s\n", cfg.Prometheus.Addr, cfg.Prometheus.Path)
	}
}

func runLoad(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r, err := runner.New(cfg)
	if err != nil {
		return err
	}
	return r.Run(ctx)
}
