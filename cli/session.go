package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/reglet-dev/toolhost/domain/entities"
	"github.com/reglet-dev/toolhost/host"
	"github.com/reglet-dev/toolhost/infrastructure/parser"
	"github.com/reglet-dev/toolhost/infrastructure/wazero"
	hostlog "github.com/reglet-dev/toolhost/log"
)

// session is a host with every configured module loaded.
type session struct {
	host    *host.Host
	opener  *wazero.Opener
	logger  *slog.Logger
	handles []*host.PluginHandle
	// loadErr joins the failures of modules that did not load.
	loadErr error
}

// resolveConfig reads --config, applies --log-level and appends --module
// entries. A missing default config file is treated as an empty
// configuration.
func resolveConfig(cmd *cobra.Command) (*entities.HostConfig, error) {
	path, _ := cmd.Flags().GetString("config")
	modules, _ := cmd.Flags().GetStringArray("module")

	cfg, err := parser.LoadFile(path)
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist) && !cmd.Flags().Changed("config"):
		c := entities.NewHostConfig()
		cfg = &c
	case errors.Is(err, fs.ErrNotExist):
		return nil, exitError(exitValidation, "config file not found: %s", path)
	default:
		return nil, exitError(exitValidation, "%v", err)
	}

	levelFlag, _ := cmd.Flags().GetString("log-level")
	entities.WithLogLevel(levelFlag)(cfg)
	for _, m := range modules {
		entities.WithModule(m, nil)(cfg)
	}
	return cfg, nil
}

// newLogger builds the process logger from the resolved level and the
// --log-format flag.
func newLogger(cmd *cobra.Command, cfg *entities.HostConfig) (*slog.Logger, error) {
	formatFlag, _ := cmd.Flags().GetString("log-format")

	level, err := hostlog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, exitError(exitValidation, "%v", err)
	}
	format, err := hostlog.ParseFormat(formatFlag)
	if err != nil {
		return nil, exitError(exitValidation, "%v", err)
	}
	return slog.New(hostlog.NewHandler(cmd.ErrOrStderr(), hostlog.WithLevel(level), hostlog.WithFormat(format))), nil
}

// openSession creates the wazero opener and host, then loads every
// configured module. Individual load failures are logged and kept in
// loadErr; the session stays usable with the modules that loaded.
func openSession(cmd *cobra.Command) (*session, error) {
	ctx := cmd.Context()

	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	opener, err := wazero.NewOpener(ctx, wazero.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("creating wasm runtime: %w", err)
	}

	opts := []host.Option{
		host.WithOpener(opener),
		host.WithLogger(logger),
		host.WithMaxResultSize(cfg.MaxResultSize),
		host.WithLoadConcurrency(cfg.LoadConcurrency),
	}
	if cfg.HostVersion != nil {
		opts = append(opts, host.WithHostVersion(*cfg.HostVersion))
	}
	h, err := host.New(opts...)
	if err != nil {
		_ = opener.Close(ctx)
		return nil, err
	}

	s := &session{host: h, opener: opener, logger: logger}
	s.handles, s.loadErr = h.LoadAll(ctx, cfg.Modules)
	if s.loadErr != nil {
		logger.ErrorContext(ctx, "some modules failed to load", "error", s.loadErr)
	}
	return s, nil
}

// close unloads every module and shuts down the runtime.
func (s *session) close(ctx context.Context) {
	if err := s.host.Close(ctx); err != nil {
		s.logger.WarnContext(ctx, "closing host", "error", err)
	}
	if err := s.opener.Close(ctx); err != nil {
		s.logger.WarnContext(ctx, "closing wasm runtime", "error", err)
	}
}

// withSession runs fn against an open session and closes it afterwards.
func withSession(cmd *cobra.Command, fn func(*session) error) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.close(context.WithoutCancel(cmd.Context()))
	return fn(s)
}
