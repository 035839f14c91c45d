package telemetry

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/grafana/pyroscope-go"
	"go.uber.org/zap"
)

// ProfilerConfig holds continuous profiling configuration.
type ProfilerConfig struct {
	Enabled           bool
	ServerAddress     string
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string

	// Profile type toggles. Mutex and block profiling cover both the
	// count and duration series and require the matching runtime rates.
	ProfileCPU          bool
	ProfileAllocObjects bool
	ProfileAllocSpace   bool
	ProfileInuseObjects bool
	ProfileInuseSpace   bool
	ProfileGoroutines   bool
	ProfileMutex        bool
	ProfileBlock        bool

	MutexProfileFraction int
	BlockProfileRate     int

	DisableGCRuns bool
}

// DefaultProfilerConfig returns a disabled configuration with the usual
// heap and CPU profiles selected for when it is switched on.
func DefaultProfilerConfig() ProfilerConfig {
	return ProfilerConfig{
		Enabled:             false,
		ApplicationName:     "automator",
		ProfileCPU:          true,
		ProfileAllocObjects: true,
		ProfileAllocSpace:   true,
		ProfileInuseObjects: true,
		ProfileInuseSpace:   true,
		ProfileGoroutines:   true,

		MutexProfileFraction: 5,
		BlockProfileRate:     5,
	}
}

// Profiler manages the Pyroscope continuous profiling session.
type Profiler struct {
	profiler *pyroscope.Profiler
	logger   *zap.Logger
	config   ProfilerConfig

	mu       sync.Mutex
	stopOnce sync.Once
}

// NewProfiler starts continuous profiling when enabled. A disabled config
// returns a no-op profiler so callers can Stop it unconditionally.
func NewProfiler(cfg ProfilerConfig, logger *zap.Logger) (*Profiler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if !cfg.Enabled {
		logger.Info("continuous profiling is disabled")
		return &Profiler{logger: logger, config: cfg}, nil
	}

	if cfg.ServerAddress == "" {
		return nil, fmt.Errorf("profiler server address is required when profiling is enabled")
	}
	if cfg.ApplicationName == "" {
		cfg.ApplicationName = "automator"
	}

	types := profileTypes(cfg)
	if len(types) == 0 {
		return nil, fmt.Errorf("at least one profile type must be enabled")
	}

	if cfg.ProfileMutex {
		fraction := cfg.MutexProfileFraction
		if fraction <= 0 {
			fraction = 5
		}
		runtime.SetMutexProfileFraction(fraction)
	}
	if cfg.ProfileBlock {
		rate := cfg.BlockProfileRate
		if rate <= 0 {
			rate = 5
		}
		runtime.SetBlockProfileRate(rate)
	}

	session, err := pyroscope.Start(pyroscope.Config{
		ApplicationName:   cfg.ApplicationName,
		ServerAddress:     cfg.ServerAddress,
		BasicAuthUser:     cfg.BasicAuthUser,
		BasicAuthPassword: cfg.BasicAuthPassword,
		Logger:            &pyroscopeLogger{logger: logger},
		ProfileTypes:      types,
		DisableGCRuns:     cfg.DisableGCRuns,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start profiler: %w", err)
	}

	logger.Info("continuous profiling started",
		zap.String("server_address", cfg.ServerAddress),
		zap.String("application_name", cfg.ApplicationName),
		zap.Int("profile_types", len(types)),
	)

	return &Profiler{
		profiler: session,
		logger:   logger,
		config:   cfg,
	}, nil
}

func profileTypes(cfg ProfilerConfig) []pyroscope.ProfileType {
	var types []pyroscope.ProfileType
	if cfg.ProfileCPU {
		types = append(types, pyroscope.ProfileCPU)
	}
	if cfg.ProfileAllocObjects {
		types = append(types, pyroscope.ProfileAllocObjects)
	}
	if cfg.ProfileAllocSpace {
		types = append(types, pyroscope.ProfileAllocSpace)
	}
	if cfg.ProfileInuseObjects {
		types = append(types, pyroscope.ProfileInuseObjects)
	}
	if cfg.ProfileInuseSpace {
		types = append(types, pyroscope.ProfileInuseSpace)
	}
	if cfg.ProfileGoroutines {
		types = append(types, pyroscope.ProfileGoroutines)
	}
	if cfg.ProfileMutex {
		types = append(types, pyroscope.ProfileMutexCount, pyroscope.ProfileMutexDuration)
	}
	if cfg.ProfileBlock {
		types = append(types, pyroscope.ProfileBlockCount, pyroscope.ProfileBlockDuration)
	}
	return types
}

// Stop flushes and terminates the profiling session. Safe to call on a
// disabled profiler and safe to call more than once.
func (p *Profiler) Stop() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	p.stopOnce.Do(func() {
		if p.profiler == nil {
			return
		}
		if stopErr := p.profiler.Stop(); stopErr != nil {
			err = fmt.Errorf("failed to stop profiler: %w", stopErr)
			return
		}
		p.logger.Info("continuous profiling stopped")
	})
	return err
}

// IsEnabled reports whether a profiling session is running.
func (p *Profiler) IsEnabled() bool {
	return p != nil && p.profiler != nil
}

// GetConfig returns the profiler configuration.
func (p *Profiler) GetConfig() ProfilerConfig {
	return p.config
}

// pyroscopeLogger adapts zap to the pyroscope logging interface.
type pyroscopeLogger struct {
	logger *zap.Logger
}

func (l *pyroscopeLogger) Infof(format string, args ...interface{}) {
	l.logger.Sugar().Infof(format, args...)
}

func (l *pyroscopeLogger) Debugf(format string, args ...interface{}) {
	l.logger.Sugar().Debugf(format, args...)
}

func (l *pyroscopeLogger) Errorf(format string, args ...interface{}) {
	l.logger.Sugar().Errorf(format, args...)
}
