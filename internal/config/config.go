package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// WorkspaceDirName is the directory name for project-level sqlrunner config.
	WorkspaceDirName = ".sqlrunner"
	// WorkspaceConfigFile is the config file name inside the workspace directory.
	WorkspaceConfigFile = "config.yaml"
	// MaxSearchDepth limits how many parent directories to walk when discovering a workspace.
	MaxSearchDepth = 10
)

// WorkspaceOptions controls workspace discovery behavior.
type WorkspaceOptions struct {
	// Disable skips workspace discovery entirely (--no-workspace flag).
	Disable bool
	// ExplicitDir uses this directory as workspace root instead of walking up (--workspace-dir flag).
	ExplicitDir string
}

// Config captures all tunable settings for sqlrunner.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Superset SupersetConfig `yaml:"superset"`
	Browser  BrowserConfig  `yaml:"browser"`
	Storage  StorageConfig  `yaml:"storage"`
	MCP      MCPConfig      `yaml:"mcp"`
}

type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	LogFile string `yaml:"log_file"`
	// LogLevel is one of debug | info | warn | error.
	LogLevel string `yaml:"log_level"`
	// LogWriters selects sinks: "console" (stderr) and/or "file" (rotated LogFile).
	LogWriters []string `yaml:"log_writers"`
}

// SupersetConfig describes the remote SQL Lab deployment the engine drives.
type SupersetConfig struct {
	// BaseURL of the Superset instance, e.g. https://superset.example.com.
	BaseURL       string `yaml:"base_url"`
	LoginPath     string `yaml:"login_path"`
	WorkspacePath string `yaml:"workspace_path"`
	// QueryEndpoint is the URL substring identifying the query submission response.
	QueryEndpoint string `yaml:"query_endpoint"`
	// LoggedInPattern is a regexp matched against the page URL after a successful login.
	LoggedInPattern string `yaml:"logged_in_pattern"`
	// RowLimitLabel is the text of the LIMIT dropdown entry to select (empty disables the step).
	RowLimitLabel string `yaml:"row_limit_label"`

	LoginTimeout     string `yaml:"login_timeout"`
	LimitTimeout     string `yaml:"limit_timeout"`
	RunButtonTimeout string `yaml:"run_button_timeout"`
	QueryTimeout     string `yaml:"query_timeout"`
	TabSettle        string `yaml:"tab_settle"`
	// NavigationTimeout bounds page loads and the remaining UI steps.
	NavigationTimeout string `yaml:"navigation_timeout"`
	// ProbeTimeout bounds the reachability probe. Empty leaves it to the network stack.
	ProbeTimeout string `yaml:"probe_timeout"`
}

// BrowserConfig configures how Chrome is launched for Rod.
type BrowserConfig struct {
	// Bin is the Chrome/Chromium executable. Empty lets Rod resolve or download one.
	Bin string `yaml:"bin"`
	// Flags are extra Chrome switches, e.g. ["--no-sandbox", "--disable-gpu"].
	Flags []string `yaml:"flags"`
	// Headless controls whether Chrome runs in headless mode (default: true).
	Headless *bool `yaml:"headless"`
	// Viewport width for new pages (default: 1920).
	ViewportWidth int `yaml:"viewport_width"`
	// Viewport height for new pages (default: 1080).
	ViewportHeight int `yaml:"viewport_height"`
}

// StorageConfig locates everything sqlrunner persists on disk.
type StorageConfig struct {
	// SessionDir holds auth.json and auth_meta.json.
	SessionDir string `yaml:"session_dir"`
	// SQLDir holds one sub-directory per brand with *.sql templates.
	SQLDir string `yaml:"sql_dir"`
	// CredentialsFile lists known Superset usernames and which one is active.
	CredentialsFile string `yaml:"credentials_file"`
	// HistoryDSN is the SQLite database for the run journal. Empty disables history.
	HistoryDSN string `yaml:"history_dsn"`
	// TraceDir receives per-run step traces. Empty disables tracing.
	TraceDir string `yaml:"trace_dir"`
	// TraceKeep is how many trace files are retained.
	TraceKeep int `yaml:"trace_keep"`
	// KeyringBackend forces a keyring backend (keychain, wincred, secret-service, kwallet, pass, file).
	KeyringBackend string `yaml:"keyring_backend"`
	// KeyringDir is used by the file backend.
	KeyringDir string `yaml:"keyring_dir"`
}

type MCPConfig struct {
	// When set, starts an SSE server on this port instead of stdio-only.
	SSEPort int `yaml:"sse_port"`
}

// DefaultConfig provides reasonable defaults for local use.
func DefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:       "sqlrunner",
			Version:    "0.3.0",
			LogFile:    "data/sqlrunner.log",
			LogLevel:   "info",
			LogWriters: []string{"console", "file"},
		},
		Superset: SupersetConfig{
			LoginPath:         "/login",
			WorkspacePath:     "/superset/sqllab",
			QueryEndpoint:     "/superset/sql_json/",
			LoggedInPattern:   `.*/superset/(welcome|dashboard).*`,
			RowLimitLabel:     "1 000",
			LoginTimeout:      "15s",
			LimitTimeout:      "5s",
			RunButtonTimeout:  "10s",
			QueryTimeout:      "60s",
			NavigationTimeout: "30s",
			TabSettle:         "2s",
		},
		Browser: BrowserConfig{
			Flags: []string{
				"--no-sandbox",
				"--disable-setuid-sandbox",
				"--disable-dev-shm-usage",
				"--disable-gpu",
			},
			ViewportWidth:  1920,
			ViewportHeight: 1080,
		},
		Storage: StorageConfig{
			SessionDir:      "data/session",
			SQLDir:          "sql",
			CredentialsFile: "data/session/credentials.json",
			HistoryDSN:      "data/history.db",
			TraceDir:        "data/traces",
			TraceKeep:       5,
			KeyringDir:      "data/keyring",
		},
	}
}

// Load reads YAML config from disk and overlays defaults.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, errors.New("config path is required")
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

// DiscoverWorkspace walks up from startDir looking for a .sqlrunner/config.yaml file.
// Returns the workspace root directory (parent of .sqlrunner/) or empty string if not found.
func DiscoverWorkspace(startDir string) (string, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("resolving start directory: %w", err)
	}

	for i := 0; i < MaxSearchDepth; i++ {
		candidate := filepath.Join(dir, WorkspaceDirName, WorkspaceConfigFile)
		if _, err := os.Stat(candidate); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", nil
}

// LoadWithWorkspace implements multi-layer config merge:
//
//	DefaultConfig() <- .sqlrunner/config.yaml <- explicit --config <- CLI flags
//
// Returns the merged config and the workspace directory (empty if none found).
func LoadWithWorkspace(explicitConfig string, opts WorkspaceOptions) (Config, string, error) {
	cfg := DefaultConfig()
	wsDir := ""

	if !opts.Disable {
		var err error
		if opts.ExplicitDir != "" {
			candidate := filepath.Join(opts.ExplicitDir, WorkspaceDirName, WorkspaceConfigFile)
			if _, statErr := os.Stat(candidate); statErr == nil {
				wsDir = opts.ExplicitDir
			}
		} else {
			cwd, cwdErr := os.Getwd()
			if cwdErr != nil {
				return cfg, "", fmt.Errorf("getting working directory: %w", cwdErr)
			}
			wsDir, err = DiscoverWorkspace(cwd)
			if err != nil {
				return cfg, "", fmt.Errorf("discovering workspace: %w", err)
			}
		}

		if wsDir != "" {
			wsConfigPath := filepath.Join(wsDir, WorkspaceDirName, WorkspaceConfigFile)
			raw, err := os.ReadFile(wsConfigPath)
			if err != nil {
				return cfg, "", fmt.Errorf("reading workspace config %s: %w", wsConfigPath, err)
			}
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, "", fmt.Errorf("parsing workspace config %s: %w", wsConfigPath, err)
			}
			cfg = resolveWorkspacePaths(cfg, filepath.Join(wsDir, WorkspaceDirName))
		}
	}

	if explicitConfig != "" {
		raw, err := os.ReadFile(explicitConfig)
		if err != nil {
			return cfg, wsDir, fmt.Errorf("reading explicit config %s: %w", explicitConfig, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, wsDir, fmt.Errorf("parsing explicit config %s: %w", explicitConfig, err)
		}
	}

	return cfg, wsDir, cfg.Validate()
}

// InitWorkspace creates a .sqlrunner/ directory with template files at root.
func InitWorkspace(root string) error {
	wsDir := filepath.Join(root, WorkspaceDirName)

	if _, err := os.Stat(wsDir); err == nil {
		return fmt.Errorf("workspace directory already exists: %s", wsDir)
	}

	dirs := []string{
		wsDir,
		filepath.Join(wsDir, "sql"),
		filepath.Join(wsDir, "data"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("creating directory %s: %w", d, err)
		}
	}

	templateConfig := `# sqlrunner project-level configuration
# Values here override defaults but are overridden by --config and CLI flags.
# Relative storage paths resolve against this directory.

superset:
  base_url: "https://superset.example.com"
#  row_limit_label: "1 000"
#  query_timeout: "60s"

# browser:
#   bin: "/usr/bin/chromium"
#   headless: true

# storage:
#   sql_dir: "sql"
#   keyring_backend: "file"
`
	configPath := filepath.Join(wsDir, WorkspaceConfigFile)
	if err := os.WriteFile(configPath, []byte(templateConfig), 0o644); err != nil {
		return fmt.Errorf("writing config template: %w", err)
	}

	// Session snapshots and the keyring file hold secrets.
	gitignoreContent := "# Runtime data (sessions, history, traces) - do not version control\ndata/\n"
	gitignorePath := filepath.Join(wsDir, ".gitignore")
	if err := os.WriteFile(gitignorePath, []byte(gitignoreContent), 0o644); err != nil {
		return fmt.Errorf("writing .gitignore: %w", err)
	}

	return nil
}

// resolveWorkspacePaths resolves relative paths in the config against the workspace directory.
func resolveWorkspacePaths(cfg Config, base string) Config {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(base, p)
	}

	cfg.Server.LogFile = resolve(cfg.Server.LogFile)
	cfg.Storage.SessionDir = resolve(cfg.Storage.SessionDir)
	cfg.Storage.SQLDir = resolve(cfg.Storage.SQLDir)
	cfg.Storage.CredentialsFile = resolve(cfg.Storage.CredentialsFile)
	cfg.Storage.HistoryDSN = resolve(cfg.Storage.HistoryDSN)
	cfg.Storage.TraceDir = resolve(cfg.Storage.TraceDir)
	cfg.Storage.KeyringDir = resolve(cfg.Storage.KeyringDir)
	return cfg
}

// Validate ensures required fields exist so runs behave deterministically.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return errors.New("server.name is required")
	}
	if c.Superset.BaseURL == "" {
		return errors.New("superset.base_url is required")
	}
	u, err := url.Parse(c.Superset.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("superset.base_url %q is not an absolute URL", c.Superset.BaseURL)
	}
	if c.Superset.QueryEndpoint == "" {
		return errors.New("superset.query_endpoint is required")
	}
	if _, err := regexp.Compile(c.Superset.LoggedInPattern); err != nil {
		return fmt.Errorf("superset.logged_in_pattern: %w", err)
	}
	if c.Storage.SessionDir == "" {
		return errors.New("storage.session_dir is required")
	}
	for _, w := range c.Server.LogWriters {
		if w != "console" && w != "file" {
			return fmt.Errorf("server.log_writers: unknown writer %q", w)
		}
	}
	return nil
}

// LoginURL returns the absolute login page URL.
func (s SupersetConfig) LoginURL() string {
	return joinURL(s.BaseURL, s.LoginPath)
}

// WorkspaceURL returns the absolute SQL Lab URL.
func (s SupersetConfig) WorkspaceURL() string {
	return joinURL(s.BaseURL, s.WorkspacePath)
}

// LoggedInRegexp compiles LoggedInPattern. Validate guarantees it compiles.
func (s SupersetConfig) LoggedInRegexp() *regexp.Regexp {
	re, err := regexp.Compile(s.LoggedInPattern)
	if err != nil {
		return regexp.MustCompile(DefaultConfig().Superset.LoggedInPattern)
	}
	return re
}

func (s SupersetConfig) LoginWait() time.Duration {
	return parseDuration(s.LoginTimeout, 15*time.Second)
}

func (s SupersetConfig) LimitWait() time.Duration {
	return parseDuration(s.LimitTimeout, 5*time.Second)
}

func (s SupersetConfig) RunButtonWait() time.Duration {
	return parseDuration(s.RunButtonTimeout, 10*time.Second)
}

// QueryWait bounds how long the engine waits for the query response.
func (s SupersetConfig) QueryWait() time.Duration {
	return parseDuration(s.QueryTimeout, 60*time.Second)
}

// NavigationWait bounds navigation, tab, and editor steps.
func (s SupersetConfig) NavigationWait() time.Duration {
	return parseDuration(s.NavigationTimeout, 30*time.Second)
}

// TabSettleDelay is the pause after opening a query tab while SQL Lab renders it.
func (s SupersetConfig) TabSettleDelay() time.Duration {
	return parseDuration(s.TabSettle, 2*time.Second)
}

// ProbeWait returns 0 when the probe should rely on the network stack's default.
func (s SupersetConfig) ProbeWait() time.Duration {
	return parseDuration(s.ProbeTimeout, 0)
}

// IsHeadless returns whether Chrome should run in headless mode (default: true).
func (b BrowserConfig) IsHeadless() bool {
	if b.Headless == nil {
		return true
	}
	return *b.Headless
}

// GetViewportWidth returns the viewport width with a sane default.
func (b BrowserConfig) GetViewportWidth() int {
	if b.ViewportWidth <= 0 {
		return 1920
	}
	return b.ViewportWidth
}

// GetViewportHeight returns the viewport height with a sane default.
func (b BrowserConfig) GetViewportHeight() int {
	if b.ViewportHeight <= 0 {
		return 1080
	}
	return b.ViewportHeight
}

// GetTraceKeep returns the number of traces to retain with a sane default.
func (s StorageConfig) GetTraceKeep() int {
	if s.TraceKeep <= 0 {
		return 5
	}
	return s.TraceKeep
}

// HasWriter reports whether the named log writer is enabled.
func (s ServerConfig) HasWriter(name string) bool {
	for _, w := range s.LogWriters {
		if strings.EqualFold(w, name) {
			return true
		}
	}
	return false
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
