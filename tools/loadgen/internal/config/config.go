// Package config loads and validates the YAML configuration of the load
// generator.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Agent types the automator exposes. The generator owns one parameter
// recipe per entry.
var knownAgents = map[string]bool{
	"sourcing":    true,
	"orders":      true,
	"inventory":   true,
	"marketing":   true,
	"advertising": true,
	"support":     true,
}

// Config is the root configuration for a load run.
type Config struct {
	// Name labels the run in output.
	Name string `yaml:"name"`

	// Target is the automator deployment under test.
	Target TargetConfig `yaml:"target"`

	// Duration is how long the run lasts. Zero means run until interrupted.
	Duration time.Duration `yaml:"duration"`

	// Rate caps the request rate across all workers.
	Rate RateConfig `yaml:"rate"`

	// Workers is the number of concurrent request workers.
	Workers int `yaml:"workers"`

	// Seed makes generated parameters reproducible between runs.
	Seed int64 `yaml:"seed"`

	// Agents is the weighted set of agent types to submit plans for.
	Agents []AgentConfig `yaml:"agents"`

	// Operations weights the request mix.
	Operations OperationsConfig `yaml:"operations"`

	// ApproveParked lets the runner approve and apply plans that park
	// for approval. Off by default: parked plans are only counted.
	ApproveParked bool `yaml:"approveParked"`

	// Approver names the operator recorded on approvals.
	Approver string `yaml:"approver"`

	// Prometheus optionally exposes live run metrics for scraping.
	Prometheus PrometheusConfig `yaml:"prometheus"`

	// Verbose enables per-request output.
	Verbose bool `yaml:"verbose"`
}

// TargetConfig points at the automator API.
type TargetConfig struct {
	BaseURL string            `yaml:"baseURL"`
	Timeout time.Duration     `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`
}

// RateConfig configures the token bucket limiter.
type RateConfig struct {
	QPS   float64 `yaml:"qps"`
	Burst int     `yaml:"burst"`
}

// AgentConfig weights one agent type in the submission mix.
type AgentConfig struct {
	// Type is the agent type, e.g. "inventory".
	Type string `yaml:"type"`

	// Weight is the relative share of submissions. Default 1.
	Weight int `yaml:"weight"`

	// DryRun is the fraction of submissions sent as dry runs, 0.0 to 1.0.
	// Defaults to 1.0 so a bare config never mutates the target.
	DryRun *float64 `yaml:"dryRun"`

	// AutoApply is passed through as the auto_apply parameter. Submissions
	// with it set can trip the approval gate and park.
	AutoApply bool `yaml:"autoApply"`
}

// OperationsConfig weights the request mix beyond submissions.
type OperationsConfig struct {
	// Submit posts new plans. Default 6.
	Submit int `yaml:"submit"`

	// Status reads a previously submitted plan. Default 3.
	Status int `yaml:"status"`

	// Result reads the execution result of a previously run plan. Default 1.
	Result int `yaml:"result"`
}

// PrometheusConfig configures the optional metrics endpoint.
type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// DryRunFraction returns the configured dry-run share with its default.
func (a AgentConfig) DryRunFraction() float64 {
	if a.DryRun == nil {
		return 1.0
	}
	return *a.DryRun
}

// LoadFromFile reads, defaults and validates a configuration file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "automator-load"
	}
	if c.Target.Timeout <= 0 {
		c.Target.Timeout = 10 * time.Second
	}
	if c.Rate.QPS <= 0 {
		c.Rate.QPS = 10
	}
	if c.Rate.Burst <= 0 {
		c.Rate.Burst = max(1, int(c.Rate.QPS))
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.Seed == 0 {
		c.Seed = time.Now().UnixNano()
	}
	if c.Approver == "" {
		c.Approver = "loadgen@localhost"
	}
	for i := range c.Agents {
		if c.Agents[i].Weight <= 0 {
			c.Agents[i].Weight = 1
		}
	}
	if c.Operations.Submit <= 0 {
		c.Operations.Submit = 6
	}
	if c.Operations.Status < 0 {
		c.Operations.Status = 0
	}
	if c.Operations.Status == 0 && c.Operations.Result == 0 {
		c.Operations.Status = 3
		c.Operations.Result = 1
	}
	if c.Prometheus.Enabled {
		if c.Prometheus.Addr == "" {
			c.Prometheus.Addr = ":9090"
		}
		if c.Prometheus.Path == "" {
			c.Prometheus.Path = "/metrics"
		}
	}
}

// Validate rejects configurations the runner cannot execute.
func (c *Config) Validate() error {
	if c.Target.BaseURL == "" {
		return fmt.Errorf("target.baseURL is required")
	}
	if len(c.Agents) == 0 {
		return fmt.Errorf("at least one agent is required")
	}
	for _, a := range c.Agents {
		if !knownAgents[a.Type] {
			return fmt.Errorf("unknown agent type %q", a.Type)
		}
		if f := a.DryRunFraction(); f < 0 || f > 1 {
			return fmt.Errorf("agent %s: dryRun must be between 0 and 1, got %v", a.Type, f)
		}
	}
	if c.Duration < 0 {
		return fmt.Errorf("duration must not be negative")
	}
	return nil
}

// TotalAgentWeight sums the submission weights.
func (c *Config) TotalAgentWeight() int {
	total := 0
	for _, a := range c.Agents {
		total += a.Weight
	}
	return total
}
