package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// responseWaiter accepts the first matching response and drops the rest.
type responseWaiter struct {
	once    sync.Once
	ch      chan Response
	mu      sync.Mutex
	ignored int
}

func newResponseWaiter() *responseWaiter {
	return &responseWaiter{ch: make(chan Response, 1)}
}

// deliver is safe to call from any goroutine, any number of times.
func (w *responseWaiter) deliver(r Response) {
	accepted := false
	w.once.Do(func() {
		w.ch <- r
		accepted = true
	})
	if !accepted {
		w.mu.Lock()
		w.ignored++
		w.mu.Unlock()
	}
}

func (w *responseWaiter) ignoredCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ignored
}

// wait blocks until a response arrives, timeout fires, or ctx ends.
func (w *responseWaiter) wait(ctx context.Context, timeout <-chan time.Time) (Response, *Result) {
	select {
	case r := <-w.ch:
		return r, nil
	case <-timeout:
		res := fail(Timeout, "SQL query timed out")
		return Response{}, &res
	case <-ctx.Done():
		res := fail(Timeout, fmt.Sprintf("SQL query interrupted: %v", ctx.Err()))
		return Response{}, &res
	}
}

// classify maps the intercepted sql_json response to a result.
func classify(resp Response) Result {
	switch resp.Status {
	case http.StatusOK:
		return classifyOK(resp.Body)
	case http.StatusForbidden:
		res := fail(RemotePermissionDenied, "Superset denied the query (403)")
		res.Failure.RawBody = rawJSON(resp.Body)
		return res
	default:
		return fail(UnknownError, fmt.Sprintf("SQL request failed with status %d", resp.Status))
	}
}

func classifyOK(body []byte) Result {
	if !gjson.ValidBytes(body) {
		return fail(UnknownError, "SQL endpoint returned an unreadable response")
	}
	parsed := gjson.ParseBytes(body)

	// A null or empty error field is not an error.
	if e := parsed.Get("error"); e.Exists() && e.Type != gjson.Null && e.String() != "" {
		return fail(RemoteQueryError, "Query Error: "+e.String())
	}

	title := parsed.Get("query.db").String()
	if title == "" {
		title = "No Database"
	}

	rows := []map[string]interface{}{}
	var warnings []string
	if data := parsed.Get("data"); data.IsArray() {
		var decoded []interface{}
		if err := decodeNumbers(data.Raw, &decoded); err != nil {
			return fail(UnknownError, "SQL endpoint returned malformed rows")
		}
		skipped := 0
		for _, item := range decoded {
			if row, ok := item.(map[string]interface{}); ok {
				rows = append(rows, row)
			} else {
				skipped++
			}
		}
		if skipped > 0 {
			warnings = append(warnings, fmt.Sprintf("%d non-object rows skipped", skipped))
		}
	}

	columns := []interface{}{}
	if cols := parsed.Get("columns"); cols.IsArray() {
		if err := decodeNumbers(cols.Raw, &columns); err != nil {
			return fail(UnknownError, "SQL endpoint returned malformed columns")
		}
	}

	return succeed(Success{Title: title, Rows: rows, Columns: columns, Warnings: warnings})
}

// decodeNumbers keeps numeric cells as json.Number so large ids survive.
func decodeNumbers(raw string, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()
	return dec.Decode(v)
}

func rawJSON(body []byte) json.RawMessage {
	if len(body) > 0 && json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}
