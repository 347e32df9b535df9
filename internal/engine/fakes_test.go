package engine

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sqlrunner/internal/credentials"
	"sqlrunner/internal/session"

	"github.com/rs/zerolog"
)

const (
	testLoginURL     = "https://superset.example.com/login"
	testWorkspaceURL = "https://superset.example.com/superset/sqllab"
	testWelcomeURL   = "https://superset.example.com/superset/welcome/"
	testEndpoint     = "/superset/sql_json/"
)

type fakeCreds struct {
	mu    sync.Mutex
	list  []credentials.Credential
	err   error
	calls int
}

func (f *fakeCreds) ListCredentials(context.Context) ([]credentials.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.list, f.err
}

type fakeSessions struct {
	mu    sync.Mutex
	rec   *session.Record
	err   error
	saves []string
}

func (f *fakeSessions) Load() (*session.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.rec == nil {
		return nil, session.ErrNoSession
	}
	cp := *f.rec
	return &cp, nil
}

func (f *fakeSessions) Save(state session.StorageState, username string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, username)
	f.rec = &session.Record{State: state, Owner: username}
	return nil
}

type fakeProber struct {
	reachable bool
	calls     int32
	url       string
}

func (f *fakeProber) Check(_ context.Context, url string) bool {
	atomic.AddInt32(&f.calls, 1)
	f.url = url
	return f.reachable
}

type fakeDriver struct {
	browser  *fakeBrowser
	err      error
	launches int32

	inflight    int32
	maxInflight int32
	hold        time.Duration
}

func (f *fakeDriver) Launch(ctx context.Context) (Browser, error) {
	atomic.AddInt32(&f.launches, 1)
	if f.err != nil {
		return nil, f.err
	}
	n := atomic.AddInt32(&f.inflight, 1)
	for {
		cur := atomic.LoadInt32(&f.maxInflight)
		if n <= cur || atomic.CompareAndSwapInt32(&f.maxInflight, cur, n) {
			break
		}
	}
	if f.hold > 0 {
		time.Sleep(f.hold)
	}
	f.browser.driver = f
	return f.browser, nil
}

type fakeBrowser struct {
	driver   *fakeDriver
	page     *fakePage
	closes   int32
	closeErr error
	state    *session.StorageState
	pageErr  error
}

func (b *fakeBrowser) NewPage(_ context.Context, state *session.StorageState) (Page, error) {
	b.page.enter("new_page")
	if b.pageErr != nil {
		return nil, b.pageErr
	}
	b.state = state
	b.page.state = state
	return b.page, nil
}

func (b *fakeBrowser) Close() error {
	atomic.AddInt32(&b.closes, 1)
	if b.driver != nil {
		atomic.AddInt32(&b.driver.inflight, -1)
	}
	return b.closeErr
}

type fakeTab struct {
	closes int32
	err    error
	panics bool
}

func (t *fakeTab) Close(context.Context) error {
	atomic.AddInt32(&t.closes, 1)
	if t.panics {
		panic("tab close failed")
	}
	return t.err
}

// fakePage simulates SQL Lab. Steps named in fail return that error; panicAt
// panics inside the named step; block makes the named step wait for its deadline.
type fakePage struct {
	mu sync.Mutex

	url          string
	state        *session.StorageState
	sessionValid bool
	calls        []string
	fail         map[string]error
	panicAt      string
	block        map[string]bool

	tab       *fakeTab
	sql       string
	rowLabel  string
	responses []Response
	async     bool

	listener func(Response)
	stopped  bool
}

func newFakePage() *fakePage {
	return &fakePage{
		sessionValid: true,
		fail:         map[string]error{},
		block:        map[string]bool{},
		tab:          &fakeTab{},
	}
}

func (p *fakePage) enter(name string) error {
	p.mu.Lock()
	p.calls = append(p.calls, name)
	err := p.fail[name]
	panicNow := p.panicAt == name
	p.mu.Unlock()
	if panicNow {
		panic("injected panic in " + name)
	}
	return err
}

func (p *fakePage) called(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c == name {
			return true
		}
	}
	return false
}

func (p *fakePage) wait(ctx context.Context, name string) error {
	if p.block[name] {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (p *fakePage) Navigate(ctx context.Context, url string) error {
	if err := p.enter("navigate"); err != nil {
		return err
	}
	if err := p.wait(ctx, "navigate"); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if url == testLoginURL && p.state != nil && p.sessionValid {
		p.url = testWelcomeURL
		return nil
	}
	p.url = url
	return nil
}

func (p *fakePage) URL(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url, nil
}

func (p *fakePage) Login(ctx context.Context, username, password string, loggedIn *regexp.Regexp) error {
	if err := p.enter("login"); err != nil {
		return err
	}
	if err := p.wait(ctx, "login"); err != nil {
		return err
	}
	if username == "" || password == "" {
		return errors.New("empty credentials")
	}
	p.mu.Lock()
	p.url = testWelcomeURL
	p.mu.Unlock()
	if loggedIn != nil && !loggedIn.MatchString(testWelcomeURL) {
		return errors.New("pattern mismatch")
	}
	return nil
}

func (p *fakePage) StorageState(context.Context) (session.StorageState, error) {
	if err := p.enter("storage_state"); err != nil {
		return session.StorageState{}, err
	}
	return session.StorageState{Cookies: []session.Cookie{{Name: "session", Value: "fresh"}}}, nil
}

func (p *fakePage) OpenQueryTab(ctx context.Context) (Tab, error) {
	if err := p.enter("open_tab"); err != nil {
		return nil, err
	}
	if err := p.wait(ctx, "open_tab"); err != nil {
		return nil, err
	}
	return p.tab, nil
}

func (p *fakePage) ReplaceSQL(_ context.Context, sql string) error {
	if err := p.enter("replace_sql"); err != nil {
		return err
	}
	p.mu.Lock()
	p.sql = sql
	p.mu.Unlock()
	return nil
}

func (p *fakePage) SelectRowLimit(ctx context.Context, label string) error {
	if err := p.enter("row_limit"); err != nil {
		return err
	}
	if err := p.wait(ctx, "row_limit"); err != nil {
		return err
	}
	p.mu.Lock()
	p.rowLabel = label
	p.mu.Unlock()
	return nil
}

func (p *fakePage) WaitRunButton(ctx context.Context) error {
	if err := p.enter("wait_run_button"); err != nil {
		return err
	}
	return p.wait(ctx, "wait_run_button")
}

func (p *fakePage) OnResponse(_ context.Context, substr string, fn func(Response)) (func(), error) {
	if err := p.enter("on_response"); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.listener = func(r Response) {
		if strings.Contains(r.URL, substr) {
			fn(r)
		}
	}
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
	}, nil
}

func (p *fakePage) ClickRun(context.Context) error {
	if err := p.enter("click_run"); err != nil {
		return err
	}
	p.mu.Lock()
	listener := p.listener
	responses := append([]Response(nil), p.responses...)
	async := p.async
	p.mu.Unlock()

	if listener == nil {
		return errors.New("clicked before listening")
	}
	deliver := func() {
		for _, r := range responses {
			listener(r)
		}
	}
	if async {
		go deliver()
	} else {
		deliver()
	}
	return nil
}

type fakeTracer struct {
	mu     sync.Mutex
	runs   []string
	steps  []string
	closed int
}

func (f *fakeTracer) Start(runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, runID)
	return nil
}

func (f *fakeTracer) Log(step string, _ interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.steps = append(f.steps, step)
}

func (f *fakeTracer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeTracer) has(step string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.steps {
		if s == step {
			return true
		}
	}
	return false
}

// harness wires an engine to fakes that succeed by default.
type harness struct {
	creds    *fakeCreds
	sessions *fakeSessions
	prober   *fakeProber
	driver   *fakeDriver
	browser  *fakeBrowser
	page     *fakePage
	tracer   *fakeTracer
	timeout  chan time.Time
}

func newHarness() *harness {
	page := newFakePage()
	page.responses = []Response{{
		URL:    "https://superset.example.com/superset/sql_json/",
		Status: 200,
		Body:   []byte(`{"data":[{"a":1}],"columns":["a"],"query":{"db":"main"}}`),
	}}
	browser := &fakeBrowser{page: page}
	return &harness{
		creds:    &fakeCreds{list: []credentials.Credential{{Username: "ops", Password: "x", Active: true}}},
		sessions: &fakeSessions{},
		prober:   &fakeProber{reachable: true},
		driver:   &fakeDriver{browser: browser},
		browser:  browser,
		page:     page,
		tracer:   &fakeTracer{},
		timeout:  make(chan time.Time, 1),
	}
}

func (h *harness) engine() *Engine {
	e := New(Deps{
		Credentials: h.creds,
		Sessions:    h.sessions,
		Prober:      h.prober,
		Driver:      h.driver,
		Tracer:      h.tracer,
		Logger:      zerolog.Nop(),
	}, Options{
		LoginURL:      testLoginURL,
		WorkspaceURL:  testWorkspaceURL,
		QueryEndpoint: testEndpoint,
		LoggedIn:      regexp.MustCompile(`.*/superset/(welcome|dashboard).*`),
		RowLimitLabel: "1 000",
		Timeouts: Timeouts{
			Navigation: time.Second,
			Login:      50 * time.Millisecond,
			RowLimit:   50 * time.Millisecond,
			RunButton:  50 * time.Millisecond,
			Query:      time.Minute,
		},
	})
	e.after = func(time.Duration) <-chan time.Time { return h.timeout }
	return e
}

func (h *harness) closes() int32 { return atomic.LoadInt32(&h.browser.closes) }
func (h *harness) launches() int32 { return atomic.LoadInt32(&h.driver.launches) }
