package browser

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"sqlrunner/internal/engine"
	"sqlrunner/internal/session"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

const urlPollInterval = 200 * time.Millisecond

// Page is a SQL Lab page inside a launched Instance.
type Page struct {
	page      *rod.Page
	settle    time.Duration
	log       zerolog.Logger
	runButton *rod.Element
}

func (p *Page) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("load %s: %w", url, err)
	}
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, nil
}

// Login submits the Superset login form and waits until the URL matches loggedIn.
func (p *Page) Login(ctx context.Context, username, password string, loggedIn *regexp.Regexp) error {
	pg := p.page.Context(ctx)

	user, err := pg.Element(SelUsername)
	if err != nil {
		return fmt.Errorf("username field: %w", err)
	}
	if err := user.Input(username); err != nil {
		return fmt.Errorf("fill username: %w", err)
	}

	pass, err := pg.Element(SelPassword)
	if err != nil {
		return fmt.Errorf("password field: %w", err)
	}
	if err := pass.Input(password); err != nil {
		return fmt.Errorf("fill password: %w", err)
	}

	submit, err := pg.Element(SelSignIn)
	if err != nil {
		return fmt.Errorf("sign in button: %w", err)
	}
	if err := submit.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("submit login: %w", err)
	}

	if loggedIn == nil {
		return pg.WaitLoad()
	}
	return p.waitURL(ctx, loggedIn)
}

func (p *Page) waitURL(ctx context.Context, re *regexp.Regexp) error {
	ticker := time.NewTicker(urlPollInterval)
	defer ticker.Stop()
	for {
		if url, err := p.URL(ctx); err == nil && re.MatchString(url) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// StorageState captures cookies and the current origin's localStorage.
func (p *Page) StorageState(ctx context.Context) (session.StorageState, error) {
	pg := p.page.Context(ctx)
	res, err := proto.NetworkGetCookies{}.Call(pg)
	if err != nil {
		return session.StorageState{}, fmt.Errorf("get cookies: %w", err)
	}
	state := session.StorageState{Cookies: fromCookies(res.Cookies)}

	origin, err := snapshotLocalStorage(pg)
	if err != nil {
		p.log.Debug().Err(err).Msg("local storage not captured")
	} else if origin.Origin != "" && len(origin.LocalStorage) > 0 {
		state.Origins = []session.OriginState{origin}
	}
	return state, nil
}

// OpenQueryTab adds a SQL Lab tab and returns the newly active one.
func (p *Page) OpenQueryTab(ctx context.Context) (engine.Tab, error) {
	pg := p.page.Context(ctx)

	add, err := pg.Element(SelAddTab)
	if err != nil {
		return nil, fmt.Errorf("add tab button: %w", err)
	}
	// The button sits under an overlay in some layouts; click through JS.
	if _, err := add.Eval(`() => this.click()`); err != nil {
		return nil, fmt.Errorf("click add tab: %w", err)
	}

	if p.settle > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.settle):
		}
	}

	tab, err := pg.Element(SelActiveTab)
	if err != nil {
		return nil, fmt.Errorf("active tab: %w", err)
	}
	return &QueryTab{el: tab}, nil
}

// ReplaceSQL clears the Ace editor and sets its content to sql.
func (p *Page) ReplaceSQL(ctx context.Context, sql string) error {
	pg := p.page.Context(ctx)

	editor, err := pg.Element(SelEditor)
	if err != nil {
		return fmt.Errorf("sql editor: %w", err)
	}
	if err := editor.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("focus editor: %w", err)
	}
	if err := pg.KeyActions().Press(input.ControlLeft).Type(input.KeyA).Do(); err != nil {
		return fmt.Errorf("select editor text: %w", err)
	}
	if err := pg.Keyboard.Type(input.Backspace); err != nil {
		return fmt.Errorf("clear editor: %w", err)
	}

	_, err = pg.Evaluate(&rod.EvalOptions{
		JS:      `(id, sql) => { window.ace.edit(id).setValue(sql, -1); }`,
		JSArgs:  []interface{}{AceEditorID, sql},
		ByValue: true,
	})
	if err != nil {
		return fmt.Errorf("set editor value: %w", err)
	}
	return nil
}

// SelectRowLimit picks label from the LIMIT dropdown.
func (p *Page) SelectRowLimit(ctx context.Context, label string) error {
	pg := p.page.Context(ctx)

	trigger, err := pg.Element(SelLimitTrigger)
	if err != nil {
		return fmt.Errorf("limit dropdown: %w", err)
	}
	if err := trigger.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("open limit dropdown: %w", err)
	}

	item, err := pg.ElementR(SelLimitItem, "/"+regexp.QuoteMeta(label)+"/")
	if err != nil {
		return fmt.Errorf("limit option %q: %w", label, err)
	}
	if err := item.WaitVisible(); err != nil {
		return fmt.Errorf("limit option %q: %w", label, err)
	}
	if err := item.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("select limit %q: %w", label, err)
	}
	return nil
}

// WaitRunButton waits for a visible Run button.
func (p *Page) WaitRunButton(ctx context.Context) error {
	btn, err := p.page.Context(ctx).ElementR(SelRunButton, RunButtonText)
	if err != nil {
		return fmt.Errorf("run button: %w", err)
	}
	if err := btn.WaitVisible(); err != nil {
		return fmt.Errorf("run button visible: %w", err)
	}
	p.runButton = btn
	return nil
}

// ClickRun clicks the button found by WaitRunButton.
func (p *Page) ClickRun(ctx context.Context) error {
	if p.runButton == nil {
		return errors.New("run button not located")
	}
	if _, err := p.runButton.Context(ctx).Eval(`() => this.click()`); err != nil {
		return fmt.Errorf("click run: %w", err)
	}
	return nil
}

// OnResponse reports finished responses whose URL contains substr. The body is
// fetched once loading finishes.
func (p *Page) OnResponse(ctx context.Context, substr string, fn func(engine.Response)) (func(), error) {
	if err := (proto.NetworkEnable{}).Call(p.page.Context(ctx)); err != nil {
		return nil, fmt.Errorf("enable network events: %w", err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	var mu sync.Mutex
	pending := map[proto.NetworkRequestID]engine.Response{}

	take := func(id proto.NetworkRequestID) (engine.Response, bool) {
		mu.Lock()
		defer mu.Unlock()
		resp, ok := pending[id]
		delete(pending, id)
		return resp, ok
	}

	wait := p.page.Context(listenCtx).EachEvent(
		func(ev *proto.NetworkResponseReceived) {
			if ev.Response == nil || !strings.Contains(ev.Response.URL, substr) {
				return
			}
			mu.Lock()
			pending[ev.RequestID] = engine.Response{
				URL:     ev.Response.URL,
				Status:  ev.Response.Status,
				Headers: responseHeaders(ev.Response.Headers),
			}
			mu.Unlock()
		},
		func(ev *proto.NetworkLoadingFinished) {
			resp, ok := take(ev.RequestID)
			if !ok {
				return
			}
			// Fetching the body from inside the event loop would block it.
			go func() {
				body, err := proto.NetworkGetResponseBody{RequestID: ev.RequestID}.Call(p.page.Context(listenCtx))
				if err != nil {
					p.log.Debug().Err(err).Str("url", resp.URL).Msg("response body unavailable")
				} else {
					resp.Body = decodeBody(body)
				}
				fn(resp)
			}()
		},
		func(ev *proto.NetworkLoadingFailed) {
			if resp, ok := take(ev.RequestID); ok {
				go fn(resp)
			}
		},
	)
	go wait()

	return cancel, nil
}

// QueryTab is the SQL Lab tab opened for a run.
type QueryTab struct {
	el *rod.Element
}

// Close clicks the tab's remove button.
func (t *QueryTab) Close(ctx context.Context) error {
	btn, err := t.el.Context(ctx).Element(SelCloseTab)
	if err != nil {
		return fmt.Errorf("tab close button: %w", err)
	}
	return btn.Click(proto.InputMouseButtonLeft, 1)
}

func responseHeaders(h proto.NetworkHeaders) map[string]string {
	if len(h) == 0 {
		return nil
	}
	out := make(map[string]string, len(h))
	for k, v := range h {
		out[k] = v.Str()
	}
	return out
}
