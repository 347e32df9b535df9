package browser

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"sqlrunner/internal/config"
	"sqlrunner/internal/session"

	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

func boolPtr(b bool) *bool { return &b }

func TestNewLauncherFlags(t *testing.T) {
	d := NewDriver(config.BrowserConfig{
		Headless: boolPtr(true),
		Flags:    []string{"--no-sandbox", "--window-size=800,600", "--", ""},
	}, 0, zerolog.Nop())

	l := d.newLauncher(context.Background())
	if !l.Has(flags.Flag("no-sandbox")) {
		t.Error("expected no-sandbox flag")
	}
	if got := l.Get(flags.Flag("window-size")); got != "800,600" {
		t.Errorf("expected window-size 800,600, got %q", got)
	}
	if !l.Has(flags.Headless) {
		t.Error("expected headless flag")
	}
}

func TestNewLauncherHeadful(t *testing.T) {
	d := NewDriver(config.BrowserConfig{Headless: boolPtr(false)}, 0, zerolog.Nop())
	if d.newLauncher(context.Background()).Has(flags.Headless) {
		t.Error("expected headless flag to be removed")
	}
}

func TestCookieRoundTrip(t *testing.T) {
	in := []session.Cookie{
		{Name: "session", Value: "abc", Domain: "superset.example.com", Path: "/", Expires: -1, HTTPOnly: true, Secure: true, SameSite: "Lax"},
		{Name: "csrf", Value: "t", Domain: "superset.example.com", Path: "/", Expires: 1893456000},
	}

	params := toCookieParams(in)
	if len(params) != 2 {
		t.Fatalf("expected 2 params, got %d", len(params))
	}
	if params[0].Expires != 0 {
		t.Errorf("session cookie should not carry an expiry, got %v", params[0].Expires)
	}
	if params[1].Expires != proto.TimeSinceEpoch(1893456000) {
		t.Errorf("expected expiry preserved, got %v", params[1].Expires)
	}
	if params[0].SameSite != proto.NetworkCookieSameSiteLax || !params[0].HTTPOnly || !params[0].Secure {
		t.Errorf("cookie attributes lost: %+v", params[0])
	}

	back := fromCookies([]*proto.NetworkCookie{{
		Name: "session", Value: "abc", Domain: "superset.example.com", Path: "/",
		Expires: proto.TimeSinceEpoch(-1), HTTPOnly: true, SameSite: proto.NetworkCookieSameSiteStrict,
	}})
	if back[0].Name != "session" || back[0].Expires != -1 || back[0].SameSite != "Strict" || !back[0].HTTPOnly {
		t.Errorf("unexpected cookie: %+v", back[0])
	}
}

func TestDecodeBody(t *testing.T) {
	tests := []struct {
		name string
		res  *proto.NetworkGetResponseBodyResult
		want string
	}{
		{"nil", nil, ""},
		{"plain", &proto.NetworkGetResponseBodyResult{Body: `{"a":1}`}, `{"a":1}`},
		{"base64", &proto.NetworkGetResponseBodyResult{Body: base64.StdEncoding.EncodeToString([]byte(`{"b":2}`)), Base64Encoded: true}, `{"b":2}`},
		{"bad base64", &proto.NetworkGetResponseBodyResult{Body: "%%%", Base64Encoded: true}, "%%%"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := string(decodeBody(tt.res)); got != tt.want {
				t.Errorf("decodeBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestClickRunWithoutButton(t *testing.T) {
	p := &Page{}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.ClickRun(ctx); err == nil {
		t.Error("expected error when the run button was never located")
	}
}
