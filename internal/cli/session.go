package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/goalclock/internal/compiler"
	"github.com/roach88/goalclock/internal/config"
	"github.com/roach88/goalclock/internal/engine"
	"github.com/roach88/goalclock/internal/store"
)

const memoryDatabase = ":memory:"

func (o *RootOptions) settings() *config.Config {
	if o.Config == nil {
		return config.Default()
	}
	return o.Config
}

// databasePath returns --db when set, otherwise database.path.
func (o *RootOptions) databasePath() string {
	if o.Database != "" {
		return o.Database
	}
	return o.settings().Database.Path
}

func (o *RootOptions) wallClock() engine.WallClock {
	if o.Clock == nil {
		return engine.SystemClock{}
	}
	return o.Clock
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// session is one open store and the engine over it.
type session struct {
	store  *store.Store
	engine *engine.Engine
}

func (s *session) Close() {
	if err := s.store.Close(); err != nil {
		slog.Warn("failed to close database", "error", err)
	}
}

// openSession opens the configured database, creating its directory on
// first use, and builds an engine with the configured draft lead time.
func openSession(ctx context.Context, opts *RootOptions) (*session, error) {
	path := opts.databasePath()
	if path != memoryDatabase {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to create data directory", err)
		}
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}

	engineOpts := []engine.Option{
		engine.WithWallClock(opts.wallClock()),
		engine.WithDraftLead(opts.settings().Drafts.LeadTime),
	}
	if opts.IDs != nil {
		engineOpts = append(engineOpts, engine.WithIDGenerator(opts.IDs))
	}
	eng, err := engine.New(ctx, st, engineOpts...)
	if err != nil {
		_ = st.Close()
		return nil, WrapExitError(ExitCommandError, "failed to start engine", err)
	}
	slog.Debug("opened database", "path", path)
	return &session{store: st, engine: eng}, nil
}

// withSession runs fn against an open session and reports its error.
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	s, err := openSession(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()
	return reportError(opts.formatter(cmd), fn(ctx, s))
}

// reportError prints engine errors in the configured format and maps them
// to ExitFailure. Other errors pass through unchanged.
func reportError(f *OutputFormatter, err error) error {
	if err == nil {
		return nil
	}
	var engErr *engine.Error
	if !errors.As(err, &engErr) {
		return err
	}
	var details any
	if engErr.GoalID != "" || engErr.Invariant != "" {
		details = map[string]any{
			"goal_id":   engErr.GoalID,
			"invariant": engErr.Invariant,
			"fields":    engErr.Fields,
		}
	}
	if printErr := f.Error(string(engErr.Code), engErr.Message, details); printErr != nil {
		return printErr
	}
	return WrapExitError(ExitFailure, string(engErr.Code), err)
}

// parseTimeFlag parses an optional time flag. Empty returns nil.
func parseTimeFlag(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := compiler.ParseTime(value)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --%s", name), err)
	}
	return &t, nil
}
