package engine

import (
	"encoding/json"
	"sort"
	"time"

	"sqlrunner/internal/correlation"
)

// Kind classifies a failed run.
type Kind int

const (
	UnknownError Kind = iota
	VpnUnreachable
	CredentialsMissing
	AuthFailed
	RemoteQueryError
	RemotePermissionDenied
	Timeout
)

func (k Kind) String() string {
	switch k {
	case VpnUnreachable:
		return "vpn_unreachable"
	case CredentialsMissing:
		return "credentials_missing"
	case AuthFailed:
		return "auth_failed"
	case RemoteQueryError:
		return "remote_query_error"
	case RemotePermissionDenied:
		return "remote_permission_denied"
	case Timeout:
		return "timeout"
	default:
		return "unknown_error"
	}
}

// PayloadType is the wire "type" a client switches on.
func (k Kind) PayloadType() string {
	switch k {
	case VpnUnreachable:
		return "vpn_error"
	case CredentialsMissing:
		return "credentials_required"
	case AuthFailed:
		return "auth_error"
	case RemoteQueryError:
		return "sql_error"
	default:
		return "superset_error"
	}
}

// Success is a completed query.
type Success struct {
	Title    string
	Rows     []map[string]interface{}
	Columns  []interface{}
	Warnings []string
}

// ColumnNames returns the result's column headers. Superset sends columns as
// names or as objects with "name" or "column_name"; when none resolve, the
// first row's keys are used in sorted order.
func (s *Success) ColumnNames() []string {
	names := make([]string, 0, len(s.Columns))
	for _, c := range s.Columns {
		switch v := c.(type) {
		case string:
			names = append(names, v)
		case map[string]interface{}:
			for _, key := range []string{"name", "column_name"} {
				if n, ok := v[key].(string); ok && n != "" {
					names = append(names, n)
					break
				}
			}
		}
	}
	if len(names) > 0 || len(s.Rows) == 0 {
		return names
	}
	for k := range s.Rows[0] {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Failure is a classified error. RawBody carries the Superset response for
// permission errors.
type Failure struct {
	Kind    Kind
	Message string
	RawBody json.RawMessage
}

func (f *Failure) Error() string { return f.Kind.String() + ": " + f.Message }

// Title is the short heading shown to the operator.
func (f *Failure) Title() string {
	switch f.Kind {
	case VpnUnreachable:
		return "VPN Required"
	case CredentialsMissing, AuthFailed:
		return "Credential Error"
	case RemoteQueryError:
		return "Query Error"
	case RemotePermissionDenied:
		return "Permission Error"
	default:
		return "Unexpected Error"
	}
}

// Text is the operator-facing explanation. Expected failures get fixed prose;
// remote errors pass the server message through.
func (f *Failure) Text() string {
	switch f.Kind {
	case VpnUnreachable:
		return "To access this service, please connect to a VPN and try again."
	case CredentialsMissing:
		return "Your username or password is required. Please check and try again."
	case AuthFailed:
		return "Your username or password is incorrect. Please check and try again."
	case RemotePermissionDenied:
		return "Superset denied access to this query. Check that your account can use the selected database."
	}
	if f.Message != "" {
		return f.Message
	}
	return "Something went wrong. Please try again later."
}

// Result is the outcome of one Execute call. Exactly one of Success and
// Failure is set.
type Result struct {
	RunID    string
	Username string
	Duration time.Duration

	Success *Success
	Failure *Failure

	// Correlation holds request and trace ids Superset sent with the query
	// response, for matching a run against server logs.
	Correlation []correlation.ID
}

// OK reports whether the run succeeded.
func (r Result) OK() bool { return r.Success != nil }

// Outcome is "success" or the failure's payload type.
func (r Result) Outcome() string {
	if r.Success != nil {
		return "success"
	}
	if r.Failure != nil {
		return r.Failure.Kind.PayloadType()
	}
	return "superset_error"
}

// RowCount is the number of rows returned, zero on failure.
func (r Result) RowCount() int {
	if r.Success == nil {
		return 0
	}
	return len(r.Success.Rows)
}

// Payload renders the result in the shape clients expect:
// {success, type, title, data, columns} or {success, type, error}.
func (r Result) Payload() map[string]interface{} {
	if r.Success != nil {
		rows := r.Success.Rows
		if rows == nil {
			rows = []map[string]interface{}{}
		}
		cols := r.Success.Columns
		if cols == nil {
			cols = []interface{}{}
		}
		out := map[string]interface{}{
			"success": true,
			"type":    "success",
			"title":   r.Success.Title,
			"data":    rows,
			"columns": cols,
		}
		if len(r.Success.Warnings) > 0 {
			out["warnings"] = r.Success.Warnings
		}
		return out
	}

	f := r.Failure
	if f == nil {
		f = &Failure{Kind: UnknownError, Message: "no result"}
	}
	var errValue interface{} = f.Message
	if f.Kind == RemotePermissionDenied && len(f.RawBody) > 0 {
		errValue = f.RawBody
	}
	return map[string]interface{}{
		"success": false,
		"type":    f.Kind.PayloadType(),
		"title":   f.Title(),
		"error":   errValue,
	}
}

func succeed(s Success) Result {
	return Result{Success: &s}
}

func fail(kind Kind, msg string) Result {
	return Result{Failure: &Failure{Kind: kind, Message: msg}}
}
