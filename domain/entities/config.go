package entities

// DefaultMaxResultSize bounds the number of bytes the host copies out of a
// module for a single tool result.
const DefaultMaxResultSize = 16 * 1024 * 1024 // 16 MB

// HostConfig is the host configuration file: which modules to activate and
// how the host evaluates them.
type HostConfig struct {
	// LogLevel is the logging verbosity level ("debug", "info", "warn", "error").
	LogLevel string `yaml:"log_level,omitempty" json:"log_level,omitempty" validate:"omitempty,oneof=debug info warn error"`

	// HostVersion overrides the API version plugins are evaluated against.
	HostVersion *Version `yaml:"host_version,omitempty" json:"host_version,omitempty"`

	// MaxResultSize caps tool result buffers. Zero means DefaultMaxResultSize.
	MaxResultSize uint32 `yaml:"max_result_size,omitempty" json:"max_result_size,omitempty"`

	// LoadConcurrency bounds how many modules load at once. Zero uses the
	// host default.
	LoadConcurrency int `yaml:"load_concurrency,omitempty" json:"load_concurrency,omitempty" validate:"min=0"`

	// Modules lists the plugin modules to load, in order.
	Modules []ModuleConfig `yaml:"modules" json:"modules" validate:"dive"`
}

// ModuleConfig describes one plugin module to activate.
type ModuleConfig struct {
	// Path is the module location handed to the module opener.
	Path string `yaml:"path" json:"path" validate:"required"`

	// Config is passed, JSON encoded, to the module's optional configure entry.
	Config map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// DefaultHostConfig returns the default host configuration.
func DefaultHostConfig() HostConfig {
	return HostConfig{
		LogLevel:      "info",
		MaxResultSize: DefaultMaxResultSize,
	}
}

// ConfigOption is a functional option for configuring host settings.
type ConfigOption func(*HostConfig)

// WithLogLevel sets the log level.
func WithLogLevel(level string) ConfigOption {
	return func(c *HostConfig) {
		if level != "" {
			c.LogLevel = level
		}
	}
}

// WithModule appends a module to activate.
func WithModule(path string, config map[string]any) ConfigOption {
	return func(c *HostConfig) {
		c.Modules = append(c.Modules, ModuleConfig{Path: path, Config: config})
	}
}

// NewHostConfig creates a HostConfig with the given options applied to the defaults.
func NewHostConfig(opts ...ConfigOption) HostConfig {
	cfg := DefaultHostConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
