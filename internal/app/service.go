// Package app wires configuration into a ready-to-use query service.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"sqlrunner/internal/browser"
	"sqlrunner/internal/config"
	"sqlrunner/internal/credentials"
	"sqlrunner/internal/engine"
	"sqlrunner/internal/history"
	"sqlrunner/internal/library"
	"sqlrunner/internal/logging"
	"sqlrunner/internal/reach"
	"sqlrunner/internal/recorder"
	"sqlrunner/internal/session"

	"github.com/rs/zerolog"
)

// Runner executes one SQL statement against the remote workspace.
type Runner interface {
	Execute(ctx context.Context, target, sql string) engine.Result
}

// Deps are the parts a Service is assembled from. History is optional.
type Deps struct {
	Runner      Runner
	Library     *library.Library
	Credentials *credentials.Store
	History     *history.Store
	Logger      zerolog.Logger
}

// Service is what the CLI and the MCP server talk to.
type Service struct {
	runner  Runner
	lib     *library.Library
	creds   *credentials.Store
	history *history.Store
	log     zerolog.Logger
	closers []io.Closer
}

// NewService assembles a service from already constructed parts.
func NewService(deps Deps) *Service {
	return &Service{
		runner:  deps.Runner,
		lib:     deps.Library,
		creds:   deps.Credentials,
		history: deps.History,
		log:     deps.Logger.With().Str("component", "app").Logger(),
	}
}

// New builds the full stack described by cfg.
func New(cfg config.Config, log zerolog.Logger) (*Service, error) {
	ring, err := credentials.OpenRing(credentials.RingOptions{
		Backend: cfg.Storage.KeyringBackend,
		FileDir: cfg.Storage.KeyringDir,
	})
	if err != nil {
		return nil, err
	}

	credsPath := cfg.Storage.CredentialsFile
	if credsPath == "" {
		credsPath = filepath.Join(cfg.Storage.SessionDir, "credentials.json")
	}
	creds := credentials.NewStore(credsPath, ring)

	deps := engine.Deps{
		Credentials: creds,
		Sessions:    session.NewStore(cfg.Storage.SessionDir),
		Prober:      reach.NewChecker(cfg.Superset.ProbeWait()),
		Driver:      browser.NewDriver(cfg.Browser, cfg.Superset.TabSettleDelay(), log),
		Logger:      log,
	}

	svc := &Service{
		lib:   library.New(cfg.Storage.SQLDir),
		creds: creds,
		log:   log.With().Str("component", "app").Logger(),
	}

	if cfg.Storage.TraceDir != "" {
		rec, err := recorder.NewRecorder(cfg.Storage.TraceDir, cfg.Storage.GetTraceKeep())
		if err != nil {
			return nil, err
		}
		deps.Tracer = rec
		svc.closers = append(svc.closers, rec)
	}

	if cfg.Storage.HistoryDSN != "" {
		hist, err := history.Open(cfg.Storage.HistoryDSN, logging.NewGormLogger(log))
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.history = hist
		svc.closers = append(svc.closers, hist)
	}

	svc.runner = engine.New(deps, EngineOptions(cfg.Superset))
	return svc, nil
}

// EngineOptions translates the superset section into engine options.
func EngineOptions(s config.SupersetConfig) engine.Options {
	return engine.Options{
		LoginURL:      s.LoginURL(),
		WorkspaceURL:  s.WorkspaceURL(),
		QueryEndpoint: s.QueryEndpoint,
		LoggedIn:      s.LoggedInRegexp(),
		RowLimitLabel: s.RowLimitLabel,
		Timeouts: engine.Timeouts{
			Navigation: s.NavigationWait(),
			Login:      s.LoginWait(),
			RowLimit:   s.LimitWait(),
			RunButton:  s.RunButtonWait(),
			Query:      s.QueryWait(),
		},
	}
}

// Close releases the history database and any open trace.
func (s *Service) Close() error {
	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// RunQuery executes sql for brand and journals the outcome. file only labels
// the history row.
func (s *Service) RunQuery(ctx context.Context, brand, file, sql string) engine.Result {
	res := s.runner.Execute(ctx, brand, sql)
	s.record(ctx, brand, file, res)
	return res
}

// RunTemplate renders a library file with values and runs it. Placeholders
// with no value are returned so callers can warn about them.
func (s *Service) RunTemplate(ctx context.Context, brand, file string, values map[string]string) (engine.Result, []string, error) {
	content, err := s.lib.Content(brand, file)
	if err != nil {
		return engine.Result{}, nil, err
	}
	sql, unresolved := library.Render(content, values)
	if len(unresolved) > 0 {
		s.log.Warn().Str("brand", brand).Str("file", file).Strs("placeholders", unresolved).Msg("unresolved placeholders")
	}
	return s.RunQuery(ctx, brand, file, sql), unresolved, nil
}

func (s *Service) record(ctx context.Context, brand, file string, res engine.Result) {
	if s.history == nil {
		return
	}
	row := &history.Run{
		RunID:      res.RunID,
		Brand:      brand,
		File:       file,
		Username:   res.Username,
		Outcome:    res.Outcome(),
		Rows:       res.RowCount(),
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Failure != nil {
		row.Message = logging.Mask(res.Failure.Message)
	}
	// The run already happened; a cancelled caller should not lose its row.
	if err := s.history.Record(context.WithoutCancel(ctx), row); err != nil {
		s.log.Warn().Err(err).Str("run_id", res.RunID).Msg("history not recorded")
	}
}

// History returns the most recent runs, newest first.
func (s *Service) History(ctx context.Context, limit int) ([]history.Run, error) {
	if s.history == nil {
		return []history.Run{}, nil
	}
	return s.history.Recent(ctx, limit)
}

// HistoryEnabled reports whether runs are journaled.
func (s *Service) HistoryEnabled() bool { return s.history != nil }

func (s *Service) Brands() ([]string, error) { return s.lib.Brands() }

func (s *Service) Files(brand string) ([]string, error) { return s.lib.Files(brand) }

func (s *Service) Content(brand, file string) (string, error) { return s.lib.Content(brand, file) }

func (s *Service) Save(brand, file, content string) error { return s.lib.Save(brand, file, content) }

// Placeholders lists the template markers in a library file.
func (s *Service) Placeholders(brand, file string) ([]string, error) {
	content, err := s.lib.Content(brand, file)
	if err != nil {
		return nil, err
	}
	return library.Placeholders(content), nil
}

// Credentials lists stored accounts without their passwords.
func (s *Service) Credentials() ([]credentials.Credential, error) {
	return s.creds.Entries()
}

func (s *Service) AddCredential(username, password string, activate bool) error {
	if err := s.creds.Add(username, password, activate); err != nil {
		return fmt.Errorf("add credential: %w", err)
	}
	s.log.Info().Str("username", username).Bool("activate", activate).Msg("credential saved")
	return nil
}

func (s *Service) ActivateCredential(username string) error {
	if err := s.creds.Activate(username); err != nil {
		return fmt.Errorf("activate credential: %w", err)
	}
	s.log.Info().Str("username", username).Msg("credential activated")
	return nil
}

func (s *Service) RemoveCredential(username string) error {
	if err := s.creds.Remove(username); err != nil {
		return fmt.Errorf("remove credential: %w", err)
	}
	s.log.Info().Str("username", username).Msg("credential removed")
	return nil
}
