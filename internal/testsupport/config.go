package testsupport

import (
	"path/filepath"
	"testing"

	"boletodesk/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.PreviewDir = filepath.Join(base, "previews")
	cfgVal.Backend.BaseURL = "http://127.0.0.1:0/api/v1"
	cfgVal.Console.ConfirmDestructive = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	return builder.cfg
}

// WithBackendURL points the config at a running backend.
func WithBackendURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backend.BaseURL = url
	}
}

// WithToken sets the bearer token on the test config.
func WithToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Backend.Token = token
	}
}

// WithConfirmDestructive toggles the destructive-action confirmation.
func WithConfirmDestructive(enabled bool) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Console.ConfirmDestructive = enabled
	}
}

// WithMaxSessions overrides the session cap.
func WithMaxSessions(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Console.MaxSessions = n
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
