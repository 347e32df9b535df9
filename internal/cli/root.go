// Package cli implements the sqlrunner command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"sqlrunner/internal/app"
	"sqlrunner/internal/config"
	"sqlrunner/internal/logging"

	"github.com/pterm/pterm"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is stamped at build time with -ldflags "-X sqlrunner/internal/cli.Version=...".
var Version = "dev"

type globalOptions struct {
	configPath   string
	noWorkspace  bool
	workspaceDir string
	verbose      bool
}

// loadConfig applies the config layers and returns the workspace root in use.
func (o *globalOptions) loadConfig() (config.Config, string, error) {
	cfg, wsDir, err := config.LoadWithWorkspace(o.configPath, config.WorkspaceOptions{
		Disable:     o.noWorkspace,
		ExplicitDir: o.workspaceDir,
	})
	if err != nil {
		return cfg, wsDir, fmt.Errorf("load config: %w", err)
	}
	if o.verbose {
		cfg.Server.LogLevel = "debug"
	}
	return cfg, wsDir, nil
}

// session bundles what a command needs to talk to the service.
type session struct {
	cfg     config.Config
	log     zerolog.Logger
	svc     *app.Service
	closers []io.Closer
}

func (s *session) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i].Close()
	}
}

// open loads config, builds the logger, and wires the service. Console logging
// stays off unless --verbose so it does not interleave with command output.
func (o *globalOptions) open(quiet bool) (*session, error) {
	cfg, _, err := o.loadConfig()
	if err != nil {
		return nil, err
	}
	return o.build(cfg, quiet)
}

func (o *globalOptions) build(cfg config.Config, quiet bool) (*session, error) {
	log, logCloser, err := logging.Setup(cfg.Server, logging.Options{Quiet: quiet && !o.verbose})
	if err != nil {
		return nil, err
	}
	svc, err := app.New(cfg, log)
	if err != nil {
		_ = logCloser.Close()
		return nil, err
	}
	return &session{cfg: cfg, log: log, svc: svc, closers: []io.Closer{logCloser, svc}}, nil
}

// NewRootCommand builds the full command tree.
func NewRootCommand() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "sqlrunner",
		Short: "Run SQL against Superset SQL Lab from the terminal or an MCP client",
		Long: `sqlrunner drives Superset SQL Lab in a private headless browser. It signs in
with the active stored credential, reuses the saved login when possible, runs
one statement, and reports the rows or a classified failure.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "Path to a config file layered over the workspace config")
	flags.BoolVar(&opts.noWorkspace, "no-workspace", false, "Skip .sqlrunner/ workspace discovery")
	flags.StringVar(&opts.workspaceDir, "workspace-dir", "", "Use this directory as the workspace root")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "Log at debug level to stderr")

	root.AddCommand(
		newServeCommand(opts),
		newRunCommand(opts),
		newBrandsCommand(opts),
		newFilesCommand(opts),
		newShowCommand(opts),
		newCredsCommand(opts),
		newHistoryCommand(opts),
		newInitCommand(),
		newVersionCommand(),
	)
	return root
}

// exitCode maps a command error to a process exit status. A rendered query
// failure exits 2 so scripts can tell it from usage errors.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errRunFailed):
		return 2
	default:
		return 1
	}
}

// Execute runs the command tree until it finishes or the process is signalled.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := NewRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil && !errors.Is(err, errRunFailed) {
		pterm.Error.Println(err)
	}
	os.Exit(exitCode(err))
}
