// Package main provides tests for the CLI entry point.
package main

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopops/automator/tools/loadgen/internal/config"
)

// buildLoadgen builds the CLI binary for testing.
func buildLoadgen(t *testing.T) string {
	t.Helper()

	cmdDir, err := os.Getwd()
	require.NoError(t, err)

	binPath := filepath.Join(t.TempDir(), "loadgen")
	cmd := exec.Command("go", "build", "-o", binPath, ".")
	cmd.Dir = cmdDir
	output, err := cmd.CombinedOutput()
	require.NoError(t, err, "Failed to build loadgen: %s", string(output))

	return binPath
}

// runLoadgen executes the loadgen binary with the given args.
func runLoadgen(t *testing.T, binPath string, args ...string) (string, string, int) {
	t.Helper()

	cmd := exec.Command(binPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
		}
	}

	return stdout.String(), stderr.String(), exitCode
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "loadgen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfigYAML = `name: cli-test
target:
  baseURL: http://localhost:8080
duration: 5s
rate:
  qps: 5
agents:
  - type: orders
  - type: support
    autoApply: true
`

func TestCLI_Help(t *testing.T) {
	binPath := buildLoadgen(t)

	stdout, stderr, exitCode := runLoadgen(t, binPath, "--help")

	// Help goes to stderr per Go's flag package
	helpOutput := stderr + stdout
	assert.Contains(t, helpOutput, "Load Generator - Automation Engine Load Testing Tool")
	assert.Contains(t, helpOutput, "-config")
	assert.Contains(t, helpOutput, "-duration")
	assert.Contains(t, helpOutput, "-qps")
	assert.Contains(t, helpOutput, "-validate")
	assert.Contains(t, helpOutput, "EXAMPLES:")
	assert.Equal(t, 0, exitCode)
}

func TestCLI_Version(t *testing.T) {
	binPath := buildLoadgen(t)

	stdout, _, exitCode := runLoadgen(t, binPath, "-version")

	assert.Contains(t, stdout, "loadgen version")
	assert.Equal(t, 0, exitCode)
}

func TestCLI_NoConfigError(t *testing.T) {
	binPath := buildLoadgen(t)

	_, stderr, exitCode := runLoadgen(t, binPath)

	assert.Contains(t, stderr, "-config flag is required")
	assert.Equal(t, 1, exitCode)
}

func TestCLI_ConfigNotFound(t *testing.T) {
	binPath := buildLoadgen(t)

	_, stderr, exitCode := runLoadgen(t, binPath, "-config", "/does/not/exist.yaml")

	assert.Contains(t, stderr, "Error loading configuration")
	assert.Equal(t, 1, exitCode)
}

func TestCLI_Validate(t *testing.T) {
	binPath := buildLoadgen(t)
	cfgPath := writeConfig(t, validConfigYAML)

	stdout, _, exitCode := runLoadgen(t, binPath, "-config", cfgPath, "-validate")

	assert.Contains(t, stdout, "Configuration 'cli-test' is valid.")
	assert.Contains(t, stdout, "orders")
	assert.Contains(t, stdout, "support")
	assert.Equal(t, 0, exitCode)
}

func TestCLI_InvalidConfig(t *testing.T) {
	binPath := buildLoadgen(t)
	cfgPath := writeConfig(t, `name: bad
target:
  baseURL: http://localhost:8080
agents:
  - type: shipping
`)

	_, stderr, exitCode := runLoadgen(t, binPath, "-config", cfgPath, "-validate")

	assert.Contains(t, stderr, "unknown agent type")
	assert.Equal(t, 1, exitCode)
}

func TestApplyOverrides(t *testing.T) {
	// Save and restore the flag globals.
	origDuration, origQPS, origWorkers, origSeed, origVerbose := duration, qps, workers, seed, verbose
	defer func() {
		duration, qps, workers, seed, verbose = origDuration, origQPS, origWorkers, origSeed, origVerbose
	}()

	duration = 2 * time.Minute
	qps = 75
	workers = 16
	seed = 99
	verbose = false

	cfg := &config.Config{
		Duration: 10 * time.Second,
		Rate:     config.RateConfig{QPS: 10, Burst: 10},
		Workers:  4,
		Seed:     1,
	}
	applyOverrides(cfg)

	assert.Equal(t, 2*time.Minute, cfg.Duration)
	assert.Equal(t, 75.0, cfg.Rate.QPS)
	assert.Equal(t, 0, cfg.Rate.Burst, "burst is rederived from the overridden rate")
	assert.Equal(t, 16, cfg.Workers)
	assert.Equal(t, int64(99), cfg.Seed)
	assert.False(t, cfg.Verbose)
}
