package testsupport

import (
	"path/filepath"
	"testing"

	"docforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// The provider base URL is left empty so the stub provider is used, and the
// API listener binds an ephemeral port.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.AssetDir = filepath.Join(base, "assets")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Paths.APIToken = ""
	cfgVal.Provider.BaseURL = ""
	cfgVal.Redis.Enabled = false
	cfgVal.Telemetry.Enabled = false
	cfgVal.Notifications.NtfyTopic = ""

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := cfgVal.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}

	return builder.cfg
}

// WithAPIToken sets the bearer token required by the HTTP API.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Paths.APIToken = token
	}
}

// WithQueueDepth caps per-tier pending depth on the test config.
func WithQueueDepth(depth int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Queue.MaxDepthPerTier = depth
	}
}

// WithWorkers overrides the pipeline worker count.
func WithWorkers(count int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workers.Count = count
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
