package host

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/reglet-dev/toolhost/abi"
	"github.com/reglet-dev/toolhost/domain/entities"
	"github.com/reglet-dev/toolhost/domain/ports"
	"github.com/reglet-dev/toolhost/host/registry"
)

// config holds settings shared by the Host, its Loader and its Bridge.
type config struct {
	opener          ports.ModuleOpener
	registry        *registry.Registry
	logger          *slog.Logger
	meter           metric.Meter
	observer        *Observer
	hostVersion     entities.Version
	maxResultSize   uint32
	loadConcurrency int // negative means unbounded
}

// DefaultLoadConcurrency is the number of modules LoadAll opens at once.
const DefaultLoadConcurrency = 4

func defaultConfig() config {
	return config{
		logger:          slog.Default(),
		hostVersion:     abi.HostVersion,
		maxResultSize:   entities.DefaultMaxResultSize,
		loadConcurrency: DefaultLoadConcurrency,
	}
}

func newConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.observer == nil {
		if cfg.meter == nil {
			cfg.observer = defaultObserver()
		} else if obs, err := NewObserver(cfg.meter); err != nil {
			cfg.logger.Warn("metrics disabled", "error", err)
		} else {
			cfg.observer = obs
		}
	}
	return cfg
}

// Option defines a functional option for configuring the host components.
type Option func(*config)

// WithOpener sets the backend used to open modules.
func WithOpener(o ports.ModuleOpener) Option {
	return func(c *config) {
		c.opener = o
	}
}

// WithRegistry shares an existing registry instead of creating one.
func WithRegistry(r *registry.Registry) Option {
	return func(c *config) {
		c.registry = r
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHostVersion overrides the API version plugins are evaluated against.
func WithHostVersion(v entities.Version) Option {
	return func(c *config) {
		c.hostVersion = v
	}
}

// WithMaxResultSize caps the size of a tool result. Zero disables the cap.
func WithMaxResultSize(n uint32) Option {
	return func(c *config) {
		c.maxResultSize = n
	}
}

// WithLoadConcurrency bounds how many modules LoadAll loads at once.
// Zero keeps DefaultLoadConcurrency; a negative n removes the bound.
func WithLoadConcurrency(n int) Option {
	return func(c *config) {
		if n != 0 {
			c.loadConcurrency = n
		}
	}
}

// WithMeter records metrics through instruments created from meter.
func WithMeter(m metric.Meter) Option {
	return func(c *config) {
		c.meter = m
	}
}

// WithObserver sets a pre-built metrics observer.
func WithObserver(o *Observer) Option {
	return func(c *config) {
		c.observer = o
	}
}

// LoadOption configures a single module load.
type LoadOption func(*loadRequest)

type loadRequest struct {
	moduleConfig []byte
}

// WithModuleConfig passes raw JSON to the module's configure entry.
func WithModuleConfig(raw []byte) LoadOption {
	return func(r *loadRequest) {
		r.moduleConfig = raw
	}
}
