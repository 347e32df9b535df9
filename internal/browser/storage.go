package browser

import (
	"encoding/json"
	"fmt"

	"sqlrunner/internal/session"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

func toCookieParams(cookies []session.Cookie) []*proto.NetworkCookieParam {
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		var expires proto.TimeSinceEpoch
		// Session cookies are stored with -1; leaving expires unset keeps them session-scoped.
		if c.Expires > 0 {
			expires = proto.TimeSinceEpoch(c.Expires)
		}
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: proto.NetworkCookieSameSite(c.SameSite),
		})
	}
	return params
}

func fromCookies(cookies []*proto.NetworkCookie) []session.Cookie {
	out := make([]session.Cookie, 0, len(cookies))
	for _, c := range cookies {
		out = append(out, session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  float64(c.Expires),
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		})
	}
	return out
}

// restoreState installs cookies now and localStorage on the first document of
// each matching origin.
func restoreState(page *rod.Page, state session.StorageState) error {
	if params := toCookieParams(state.Cookies); len(params) > 0 {
		if err := page.SetCookies(params); err != nil {
			return fmt.Errorf("restore cookies: %w", err)
		}
	}
	if len(state.Origins) == 0 {
		return nil
	}

	origins, err := json.Marshal(state.Origins)
	if err != nil {
		return fmt.Errorf("encode local storage: %w", err)
	}
	script := fmt.Sprintf(`(() => {
		try {
			if (sessionStorage.getItem("__sqlrunner_restored")) return;
			const origin = (%s).find((o) => o.origin === location.origin);
			if (!origin) return;
			for (const item of origin.localStorage || []) localStorage.setItem(item.name, item.value);
			sessionStorage.setItem("__sqlrunner_restored", "1");
		} catch (e) {}
	})();`, origins)

	if _, err := page.EvalOnNewDocument(script); err != nil {
		return fmt.Errorf("restore local storage: %w", err)
	}
	return nil
}

// snapshotLocalStorage reads the current origin's localStorage.
func snapshotLocalStorage(page *rod.Page) (session.OriginState, error) {
	res, err := page.Evaluate(&rod.EvalOptions{
		JS: `() => {
			const out = { origin: location.origin, localStorage: [] };
			try {
				for (let i = 0; i < localStorage.length; i++) {
					const name = localStorage.key(i);
					out.localStorage.push({ name, value: localStorage.getItem(name) });
				}
			} catch (e) {}
			return out;
		}`,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return session.OriginState{}, fmt.Errorf("read local storage: %w", err)
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return session.OriginState{}, fmt.Errorf("read local storage: %w", err)
	}
	var origin session.OriginState
	if err := json.Unmarshal(raw, &origin); err != nil {
		return session.OriginState{}, fmt.Errorf("decode local storage: %w", err)
	}
	return origin, nil
}
