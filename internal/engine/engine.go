// Package engine runs one SQL statement through Superset SQL Lab in a
// throwaway browser and turns whatever comes back into a Result.
package engine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"sqlrunner/internal/correlation"
	"sqlrunner/internal/credentials"
	"sqlrunner/internal/logging"
	"sqlrunner/internal/session"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const cleanupTimeout = 5 * time.Second

// Timeouts bound every suspending step of a run.
type Timeouts struct {
	Navigation time.Duration
	Login      time.Duration
	RowLimit   time.Duration
	RunButton  time.Duration
	Query      time.Duration
}

// Options describe the Superset deployment.
type Options struct {
	LoginURL      string
	WorkspaceURL  string
	QueryEndpoint string
	LoggedIn      *regexp.Regexp
	RowLimitLabel string
	Timeouts      Timeouts
}

// Deps are the collaborators of an Engine. Tracer is optional.
type Deps struct {
	Credentials CredentialSource
	Sessions    SessionCache
	Prober      Prober
	Driver      Driver
	Tracer      Tracer
	Logger      zerolog.Logger
}

// Engine executes queries one at a time.
type Engine struct {
	mu    sync.Mutex
	deps  Deps
	opts  Options
	log   zerolog.Logger
	newID func() string
	after func(time.Duration) <-chan time.Time
}

var templateMarkers = strings.NewReplacer("{{", "", "}}", "")

// New builds an engine. Zero timeouts fall back to the SQL Lab defaults.
func New(deps Deps, opts Options) *Engine {
	t := &opts.Timeouts
	if t.Navigation <= 0 {
		t.Navigation = 30 * time.Second
	}
	if t.Login <= 0 {
		t.Login = 15 * time.Second
	}
	if t.RowLimit <= 0 {
		t.RowLimit = 5 * time.Second
	}
	if t.RunButton <= 0 {
		t.RunButton = 10 * time.Second
	}
	if t.Query <= 0 {
		t.Query = 60 * time.Second
	}
	return &Engine{
		deps:  deps,
		opts:  opts,
		log:   deps.Logger.With().Str("component", "engine").Logger(),
		newID: uuid.NewString,
		after: time.After,
	}
}

// Execute runs sql for target and always returns a Result. Calls are serialized.
func (e *Engine) Execute(ctx context.Context, target, sql string) (res Result) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r := &run{e: e, id: e.newID(), target: target}
	r.log = e.log.With().Str("run_id", r.id).Str("target", target).Logger()
	start := time.Now()

	if e.deps.Tracer != nil {
		if err := e.deps.Tracer.Start(r.id); err != nil {
			r.log.Warn().Err(err).Msg("trace unavailable")
		}
	}

	defer func() {
		if p := recover(); p != nil {
			r.log.Error().Interface("panic", p).Msg("run aborted")
			res = fail(UnknownError, fmt.Sprintf("unexpected failure: %v", p))
		}
		res.RunID = r.id
		res.Username = r.username
		res.Duration = time.Since(start)

		if res.Failure != nil {
			ev := r.log.Warn().
				Str("kind", res.Failure.Kind.String()).
				Str("error", logging.Mask(res.Failure.Message)).
				Dur("elapsed", res.Duration)
			if len(res.Correlation) > 0 {
				ev = ev.Interface("correlation", res.Correlation)
			}
			ev.Msg("run failed")
		} else {
			r.log.Info().Int("rows", res.RowCount()).Dur("elapsed", res.Duration).Msg("run finished")
		}

		r.trace("result", map[string]interface{}{"outcome": res.Outcome(), "rows": res.RowCount(), "correlation": res.Correlation})
		if e.deps.Tracer != nil {
			_ = e.deps.Tracer.Close()
		}
	}()

	return r.execute(ctx, sql)
}

type run struct {
	e        *Engine
	id       string
	target   string
	username string
	log      zerolog.Logger
	warnings []string
}

func (r *run) trace(step string, data interface{}) {
	if r.e.deps.Tracer != nil {
		r.e.deps.Tracer.Log(step, data)
	}
}

func (r *run) execute(ctx context.Context, sql string) Result {
	e := r.e

	cred, failure := r.activeCredential(ctx)
	if failure != nil {
		return *failure
	}
	r.username = cred.Username

	reachable := e.deps.Prober.Check(ctx, e.opts.LoginURL)
	r.trace("probe", map[string]interface{}{"url": e.opts.LoginURL, "reachable": reachable})
	if !reachable {
		return fail(VpnUnreachable, "Site not reachable.")
	}

	reuse := r.reusableSession(cred.Username)

	r.trace("launch", nil)
	browser, err := e.deps.Driver.Launch(ctx)
	if err != nil {
		return r.stepFailure("launch browser", err)
	}

	var tab Tab
	defer func() { r.cleanup(ctx, tab, browser) }()

	var state *session.StorageState
	if reuse != nil {
		state = &reuse.State
	}
	page, err := browser.NewPage(ctx, state)
	if err != nil {
		return r.stepFailure("open page", err)
	}

	if err := r.step(ctx, "navigate_login", e.opts.Timeouts.Navigation, func(c context.Context) error {
		return page.Navigate(c, e.opts.LoginURL)
	}); err != nil {
		return r.stepFailure("open login page", err)
	}

	if reuse != nil && !r.stillLoggedIn(ctx, page) {
		r.log.Info().Str("username", cred.Username).Msg("saved session expired")
		reuse = nil
	}

	if reuse == nil {
		if res := r.login(ctx, page, cred); res != nil {
			return *res
		}
	} else {
		r.log.Info().Str("username", cred.Username).Msg("reusing saved session")
	}

	if err := r.step(ctx, "navigate_workspace", e.opts.Timeouts.Navigation, func(c context.Context) error {
		return page.Navigate(c, e.opts.WorkspaceURL)
	}); err != nil {
		return r.stepFailure("open SQL Lab", err)
	}

	if err := r.step(ctx, "open_tab", e.opts.Timeouts.Navigation, func(c context.Context) error {
		var err error
		tab, err = page.OpenQueryTab(c)
		return err
	}); err != nil {
		return r.stepFailure("open query tab", err)
	}

	sanitized := templateMarkers.Replace(sql)
	if err := r.step(ctx, "inject_sql", e.opts.Timeouts.Navigation, func(c context.Context) error {
		return page.ReplaceSQL(c, sanitized)
	}); err != nil {
		return r.stepFailure("fill SQL editor", err)
	}

	r.applyRowLimit(ctx, page)

	if err := r.step(ctx, "wait_run_button", e.opts.Timeouts.RunButton, page.WaitRunButton); err != nil {
		return r.stepFailure("wait for run button", err)
	}

	waiter := newResponseWaiter()
	stop, err := page.OnResponse(ctx, e.opts.QueryEndpoint, waiter.deliver)
	if err != nil {
		return r.stepFailure("listen for query response", err)
	}
	defer stop()

	// The query timer starts before the click so a slow click counts against it.
	timeout := e.after(e.opts.Timeouts.Query)
	if err := r.step(ctx, "click_run", e.opts.Timeouts.Navigation, page.ClickRun); err != nil {
		return r.stepFailure("run query", err)
	}

	resp, timedOut := waiter.wait(ctx, timeout)
	if timedOut != nil {
		r.trace("response", map[string]interface{}{"timeout": true})
		return *timedOut
	}
	r.trace("response", map[string]interface{}{"url": resp.URL, "status": resp.Status, "ignored": waiter.ignoredCount()})

	res := classify(resp)
	res.Correlation = responseIDs(resp, res)
	if res.Success != nil && len(r.warnings) > 0 {
		res.Success.Warnings = append(res.Success.Warnings, r.warnings...)
	}
	return res
}

func (r *run) activeCredential(ctx context.Context) (credentials.Credential, *Result) {
	list, err := r.e.deps.Credentials.ListCredentials(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("credential store unavailable")
		res := fail(CredentialsMissing, "Could not read stored credentials")
		return credentials.Credential{}, &res
	}
	cred, err := credentials.Active(list)
	if err != nil {
		res := fail(CredentialsMissing, "No active Superset credential found")
		return credentials.Credential{}, &res
	}
	if cred.Password == "" {
		res := fail(CredentialsMissing, fmt.Sprintf("No password stored for %s", cred.Username))
		return credentials.Credential{}, &res
	}
	r.trace("credentials", map[string]string{"username": cred.Username})
	return cred, nil
}

// reusableSession returns the saved record only when it belongs to username.
func (r *run) reusableSession(username string) *session.Record {
	rec, err := r.e.deps.Sessions.Load()
	switch {
	case errors.Is(err, session.ErrNoSession):
		r.trace("session", map[string]interface{}{"reuse": false, "reason": "none"})
		return nil
	case err != nil:
		r.log.Warn().Err(err).Msg("saved session unreadable")
		r.trace("session", map[string]interface{}{"reuse": false, "reason": "unreadable"})
		return nil
	case rec.Owner != username:
		r.trace("session", map[string]interface{}{"reuse": false, "reason": "owner mismatch", "owner": rec.Owner})
		return nil
	}
	r.trace("session", map[string]interface{}{"reuse": true})
	return rec
}

func (r *run) stillLoggedIn(ctx context.Context, page Page) bool {
	if r.e.opts.LoggedIn == nil {
		return true
	}
	url, err := page.URL(ctx)
	ok := err == nil && r.e.opts.LoggedIn.MatchString(url)
	r.trace("session_check", map[string]interface{}{"url": url, "logged_in": ok})
	return ok
}

func (r *run) login(ctx context.Context, page Page, cred credentials.Credential) *Result {
	r.log.Info().Str("username", cred.Username).Msg("logging in")
	err := r.step(ctx, "login", r.e.opts.Timeouts.Login, func(c context.Context) error {
		return page.Login(c, cred.Username, cred.Password, r.e.opts.LoggedIn)
	})
	if err != nil {
		msg := "Login failed"
		if errors.Is(err, context.DeadlineExceeded) {
			msg = fmt.Sprintf("Login did not complete within %s", r.e.opts.Timeouts.Login)
		}
		r.log.Warn().Err(err).Str("username", cred.Username).Msg("login failed")
		res := fail(AuthFailed, msg)
		return &res
	}

	state, err := page.StorageState(ctx)
	if err != nil {
		r.log.Warn().Err(err).Msg("could not capture session")
		return nil
	}
	if err := r.e.deps.Sessions.Save(state, cred.Username); err != nil {
		r.log.Warn().Err(err).Msg("could not save session")
		return nil
	}
	r.trace("session_saved", map[string]string{"username": cred.Username})
	return nil
}

func (r *run) applyRowLimit(ctx context.Context, page Page) {
	label := r.e.opts.RowLimitLabel
	if label == "" {
		return
	}
	err := r.step(ctx, "row_limit", r.e.opts.Timeouts.RowLimit, func(c context.Context) error {
		return page.SelectRowLimit(c, label)
	})
	if err != nil {
		r.log.Warn().Err(err).Str("label", label).Msg("row limit not applied")
		r.warnings = append(r.warnings, "row limit not applied")
	}
}

// step runs fn under its own deadline and records it in the trace.
func (r *run) step(ctx context.Context, name string, timeout time.Duration, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	err := fn(c)
	data := map[string]interface{}{"elapsed_ms": time.Since(started).Milliseconds()}
	if err != nil {
		data["error"] = logging.Mask(err.Error())
	}
	r.trace(name, data)
	return err
}

func (r *run) stepFailure(what string, err error) Result {
	if errors.Is(err, context.DeadlineExceeded) {
		return fail(Timeout, fmt.Sprintf("Timed out trying to %s", what))
	}
	r.log.Error().Err(err).Str("step", what).Msg("step failed")
	return fail(UnknownError, fmt.Sprintf("Failed to %s: %s", what, logging.Mask(err.Error())))
}

// cleanup closes the tab then the browser. Errors and panics are logged, never returned.
func (r *run) cleanup(ctx context.Context, tab Tab, browser Browser) {
	c, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if tab != nil {
		r.release("close query tab", func() error { return tab.Close(c) })
	}
	r.release("close browser", browser.Close)
	r.trace("cleanup", map[string]bool{"tab": tab != nil})
}

// release runs one cleanup action. Errors and panics are logged and dropped
// so the next action still runs and the decided result stands.
func (r *run) release(what string, fn func() error) {
	defer func() {
		if p := recover(); p != nil {
			r.log.Warn().Interface("panic", p).Msg(what)
		}
	}()
	if err := fn(); err != nil {
		r.log.Warn().Err(err).Msg(what)
	}
}

func responseIDs(resp Response, res Result) []correlation.ID {
	ids := correlation.FromHeaders(resp.Headers)
	if res.Failure != nil {
		ids = correlation.Merge(ids, correlation.FromText(res.Failure.Message))
	}
	return ids
}
