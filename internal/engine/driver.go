package engine

import (
	"context"
	"regexp"

	"sqlrunner/internal/credentials"
	"sqlrunner/internal/session"
)

// Driver launches browsers. Each Execute call launches exactly one.
type Driver interface {
	Launch(ctx context.Context) (Browser, error)
}

// Browser owns one browser process and its isolated context.
type Browser interface {
	// NewPage opens a page, replaying state when it is non-nil.
	NewPage(ctx context.Context, state *session.StorageState) (Page, error)
	Close() error
}

// Page is the Superset UI seen through one browser tab. Every method honours
// the deadline on ctx.
type Page interface {
	Navigate(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	// Login fills and submits the login form, then waits for a URL matching loggedIn.
	Login(ctx context.Context, username, password string, loggedIn *regexp.Regexp) error
	StorageState(ctx context.Context) (session.StorageState, error)

	OpenQueryTab(ctx context.Context) (Tab, error)
	ReplaceSQL(ctx context.Context, sql string) error
	SelectRowLimit(ctx context.Context, label string) error
	WaitRunButton(ctx context.Context) error
	ClickRun(ctx context.Context) error

	// OnResponse calls fn for every finished response whose URL contains
	// substr until stop is called.
	OnResponse(ctx context.Context, substr string, fn func(Response)) (stop func(), err error)
}

// Tab is the SQL Lab query tab opened for a run.
type Tab interface {
	Close(ctx context.Context) error
}

// Response is an intercepted network response.
type Response struct {
	URL     string
	Status  int
	Headers map[string]string
	Body    []byte
}

// CredentialSource lists stored credentials.
type CredentialSource interface {
	ListCredentials(ctx context.Context) ([]credentials.Credential, error)
}

// SessionCache loads and saves the reusable login.
type SessionCache interface {
	Load() (*session.Record, error)
	Save(state session.StorageState, username string) error
}

// Prober answers whether a URL is reachable.
type Prober interface {
	Check(ctx context.Context, url string) bool
}

// Tracer receives one event per step of a run.
type Tracer interface {
	Start(runID string) error
	Log(step string, data interface{})
	Close() error
}
