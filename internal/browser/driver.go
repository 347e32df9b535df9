// Package browser drives Superset SQL Lab through Chrome using Rod.
package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"sqlrunner/internal/config"
	"sqlrunner/internal/engine"
	"sqlrunner/internal/session"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// Driver launches a private Chrome per query run.
type Driver struct {
	cfg    config.BrowserConfig
	settle time.Duration
	log    zerolog.Logger
}

// NewDriver returns a driver. settle is the pause after opening a query tab.
func NewDriver(cfg config.BrowserConfig, settle time.Duration, log zerolog.Logger) *Driver {
	return &Driver{
		cfg:    cfg,
		settle: settle,
		log:    log.With().Str("component", "browser").Logger(),
	}
}

// newLauncher applies the configured binary and flags. Flags are given as
// "--name" or "--name=value".
func (d *Driver) newLauncher(ctx context.Context) *launcher.Launcher {
	l := launcher.New().Context(ctx).Headless(d.cfg.IsHeadless())
	if d.cfg.Bin != "" {
		l = l.Bin(d.cfg.Bin)
	}
	for _, raw := range d.cfg.Flags {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if name == "" {
			continue
		}
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}
	return l
}

// Launch starts Chrome and opens an isolated browser context.
func (d *Driver) Launch(ctx context.Context) (engine.Browser, error) {
	l := d.newLauncher(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	root := rod.New().ControlURL(controlURL).Context(ctx)
	if err := root.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	incognito, err := root.Incognito()
	if err != nil {
		_ = root.Close()
		l.Kill()
		return nil, fmt.Errorf("incognito context: %w", err)
	}

	d.log.Debug().Str("control_url", controlURL).Msg("browser launched")
	return &Instance{
		driver:    d,
		launcher:  l,
		root:      root,
		incognito: incognito,
	}, nil
}

// Instance is one running Chrome process.
type Instance struct {
	driver    *Driver
	launcher  *launcher.Launcher
	root      *rod.Browser
	incognito *rod.Browser

	closeOnce sync.Once
	closeErr  error
}

// NewPage opens a blank page, seeding cookies and localStorage from state.
func (b *Instance) NewPage(ctx context.Context, state *session.StorageState) (engine.Page, error) {
	page, err := b.incognito.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("create page: %w", err)
	}
	page = page.Context(ctx)

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             b.driver.cfg.GetViewportWidth(),
		Height:            b.driver.cfg.GetViewportHeight(),
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		b.driver.log.Warn().Err(err).Msg("failed to set viewport")
	}

	if state != nil {
		if err := restoreState(page, *state); err != nil {
			return nil, err
		}
	}

	return &Page{page: page, settle: b.driver.settle, log: b.driver.log}, nil
}

// Close shuts the browser down and removes its profile. Safe to call twice.
func (b *Instance) Close() error {
	b.closeOnce.Do(func() {
		b.closeErr = b.root.Close()
		b.launcher.Kill()
		b.launcher.Cleanup()
	})
	return b.closeErr
}
