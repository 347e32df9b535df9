// Package correlation pulls request and trace identifiers out of Superset
// responses so a run can be matched with the server's own logs.
package correlation

import (
	"regexp"
	"sort"
	"strings"
)

// Kinds of identifier.
const (
	RequestID     = "request_id"
	CorrelationID = "correlation_id"
	TraceID       = "trace_id"
)

// ID is one normalized identifier.
type ID struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

var (
	traceparentRe = regexp.MustCompile(`^([0-9a-f]{2})-([0-9a-f]{32})-([0-9a-f]{16})-([0-9a-f]{2})$`)
	cloudTraceRe  = regexp.MustCompile(`^([0-9a-f]{32})(?:/[0-9]+)?(?:;o=\d+)?$`)
	b3Re          = regexp.MustCompile(`^([0-9a-f]{16,32})-[0-9a-f]{16}(?:-[01d](?:-[0-9a-f]{16})?)?$`)

	// Superset error bodies and proxy pages mention ids as key=value or "key": "value".
	textRe = regexp.MustCompile(`(?i)\b(x-request-id|request[_-]?id|x-correlation-id|correlation[_-]?id|x-trace-id|trace[_-]?id)\b["']?\s*[=:]\s*["']?([a-z0-9][a-z0-9._:/\-]{5,127})`)
)

// headerKinds maps plain id headers to their kind. Trace context headers are
// parsed separately.
var headerKinds = map[string]string{
	"x-request-id":     RequestID,
	"request-id":       RequestID,
	"x-amzn-requestid": RequestID,
	"x-correlation-id": CorrelationID,
	"correlation-id":   CorrelationID,
	"x-trace-id":       TraceID,
	"x-b3-traceid":     TraceID,
}

// FromHeaders extracts ids from response headers. Header names are matched
// case-insensitively; results are sorted by kind then value.
func FromHeaders(headers map[string]string) []ID {
	var ids []ID
	for name, raw := range headers {
		value := normalize(raw)
		if value == "" {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		if kind, ok := headerKinds[name]; ok {
			ids = append(ids, ID{Kind: kind, Value: value})
			continue
		}
		var re *regexp.Regexp
		group := 1
		switch name {
		case "traceparent":
			re, group = traceparentRe, 2
		case "x-cloud-trace-context":
			re = cloudTraceRe
		case "b3":
			re = b3Re
		default:
			continue
		}
		if m := re.FindStringSubmatch(value); m != nil {
			ids = append(ids, ID{Kind: TraceID, Value: m[group]})
		}
	}
	return unique(ids)
}

// FromText finds ids mentioned in free text such as an error message.
func FromText(text string) []ID {
	var ids []ID
	for _, m := range textRe.FindAllStringSubmatch(text, -1) {
		value := normalize(m[2])
		if value == "" {
			continue
		}
		key := strings.ToLower(m[1])
		kind := RequestID
		switch {
		case strings.Contains(key, "correlation"):
			kind = CorrelationID
		case strings.Contains(key, "trace"):
			kind = TraceID
		}
		ids = append(ids, ID{Kind: kind, Value: value})
	}
	return unique(ids)
}

// Merge combines id lists without duplicates.
func Merge(lists ...[]ID) []ID {
	var all []ID
	for _, l := range lists {
		all = append(all, l...)
	}
	return unique(all)
}

func normalize(value string) string {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.Trim(v, "\"'`")
	return strings.TrimRight(v, ".,;:)]}")
}

func unique(ids []ID) []ID {
	if len(ids) == 0 {
		return nil
	}
	seen := make(map[ID]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if id.Kind == "" || id.Value == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Value < out[j].Value
	})
	return out
}
