package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	AssetDir string `toml:"asset_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Workers contains configuration for the pipeline worker pool.
type Workers struct {
	Count              int `toml:"count"`
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Queue contains admission-control settings for the job queue.
type Queue struct {
	// MaxDepthPerTier rejects new submissions for a tier once its pending
	// count reaches this threshold.
	MaxDepthPerTier int `toml:"max_depth_per_tier"`
	// AverageStageSeconds seeds wait-time estimates before any job has run.
	AverageStageSeconds int `toml:"average_stage_seconds"`
}

// Stages contains per-stage execution budgets in seconds.
type Stages struct {
	UploadConfirmTimeout int `toml:"upload_confirm_timeout"`
	AnalysisTimeout      int `toml:"analysis_timeout"`
	PlanningTimeout      int `toml:"planning_timeout"`
	GenerationTimeout    int `toml:"generation_timeout"`
	CompositionTimeout   int `toml:"composition_timeout"`
}

// Retry contains the backoff policy applied to retryable stage failures.
type Retry struct {
	MaxAttempts  int     `toml:"max_attempts"`
	InitialDelay int     `toml:"initial_delay"`
	Multiplier   float64 `toml:"multiplier"`
	MaxDelay     int     `toml:"max_delay"`
}

// Progress controls how aggressively progress events are emitted.
type Progress struct {
	// MinPercentDelta suppresses events smaller than this progress change.
	MinPercentDelta float64 `toml:"min_percent_delta"`
	// MinIntervalSeconds forces an event once this much time has elapsed.
	MinIntervalSeconds int `toml:"min_interval_seconds"`
	// SubscriberBuffer is the per-subscriber channel depth before drops.
	SubscriberBuffer int `toml:"subscriber_buffer"`
}

// Health contains dependency probing and circuit breaker settings.
type Health struct {
	ProbeInterval   int     `toml:"probe_interval"`
	ProbeTimeout    int     `toml:"probe_timeout"`
	BreakerFailures uint32  `toml:"breaker_failures"`
	BreakerCooldown int     `toml:"breaker_cooldown"`
	ErrorRateLimit  float64 `toml:"error_rate_limit"`
}

// Provider contains connection settings for the enhancement AI provider.
type Provider struct {
	Name           string `toml:"name"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Telemetry contains distributed tracing exporter settings.
type Telemetry struct {
	Enabled      bool   `toml:"enabled"`
	Exporter     string `toml:"exporter"` // "stdout" or "otlp"
	OTLPEndpoint string `toml:"otlp_endpoint"`
	ServiceName  string `toml:"service_name"`
}

// Redis contains optional settings for distributed progress fan-out.
type Redis struct {
	Enabled       bool   `toml:"enabled"`
	Addr          string `toml:"addr"`
	Password      string `toml:"password"`
	DB            int    `toml:"db"`
	ChannelPrefix string `toml:"channel_prefix"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	BatchFinished  bool   `toml:"batch_finished"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for docforge.
//
// Configuration sections by subsystem:
//   - Paths: state directories and API bind address
//   - Workers: worker pool size, polling, and heartbeat timing
//   - Queue: per-tier admission control and wait estimation
//   - Stages: per-stage execution budgets
//   - Retry: backoff policy for retryable stage failures
//   - Progress: event emission thresholds and subscriber buffering
//   - Health: dependency probing and circuit breaker thresholds
//   - Provider: enhancement AI provider connection
//   - Telemetry: trace exporter selection
//   - Redis: optional distributed progress fan-out
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workers       Workers       `toml:"workers"`
	Queue         Queue         `toml:"queue"`
	Stages        Stages        `toml:"stages"`
	Retry         Retry         `toml:"retry"`
	Progress      Progress      `toml:"progress"`
	Health        Health        `toml:"health"`
	Provider      Provider      `toml:"provider"`
	Telemetry     Telemetry     `toml:"telemetry"`
	Redis         Redis         `toml:"redis"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/docforge/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("docforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// WriteSample writes the embedded sample configuration to the given path.
func WriteSample(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if _, err := os.Stat(expanded); err == nil {
		return fmt.Errorf("config file already exists at %s", expanded)
	}
	return os.WriteFile(expanded, []byte(sampleConfig), 0o644)
}

// EnsureDirectories creates the directories the daemon needs to operate.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.AssetDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
