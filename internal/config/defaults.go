package config

const (
	defaultConfigPath     = "~/.config/boletodesk/config.toml"
	projectConfigName     = "boletodesk.toml"
	defaultStateDir       = "~/.local/share/boletodesk/state"
	defaultLogDir         = "~/.local/share/boletodesk/logs"
	defaultPreviewDir     = "~/.cache/boletodesk/previews"
	defaultBaseURL        = "http://127.0.0.1:8000/api/v1"
	defaultTimeoutSeconds = 30
	defaultMaxSessions    = 10
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
	defaultLogMaxSizeMB   = 10
	defaultLogMaxBackups  = 5
	defaultLogMaxAgeDays  = 30

	// EnvBaseURL overrides backend.base_url when the file leaves it unset.
	EnvBaseURL = "BOLETODESK_API_URL"
	// EnvToken supplies backend.token when the file leaves it unset.
	EnvToken = "BOLETODESK_TOKEN"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			PreviewDir: defaultPreviewDir,
		},
		Backend: Backend{
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Console: Console{
			MaxSessions:        defaultMaxSessions,
			ConfirmDestructive: true,
		},
		Logging: Logging{
			Format:     defaultLogFormat,
			Level:      defaultLogLevel,
			MaxSizeMB:  defaultLogMaxSizeMB,
			MaxBackups: defaultLogMaxBackups,
			MaxAgeDays: defaultLogMaxAgeDays,
		},
	}
}
