package mcp

import (
	"fmt"
	"strings"

	"sqlrunner/internal/engine"
)

func getStringArg(args map[string]interface{}, key string) string {
	return getStringFromMap(args, key)
}

func getStringFromMap(args map[string]interface{}, key string) string {
	val, ok := args[key]
	if !ok || val == nil {
		return ""
	}
	switch v := val.(type) {
	case string:
		return v
	default:
		return fmt.Sprintf("%v", v)
	}
}

func getIntArg(args map[string]interface{}, key string, fallback int) int {
	val, ok := args[key]
	if !ok {
		return fallback
	}
	switch v := val.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return fallback
	}
}

// getStringMapArg reads an object argument as string values. Non-string
// values are formatted with %v.
func getStringMapArg(args map[string]interface{}, key string) map[string]string {
	out := map[string]string{}
	raw, ok := args[key].(map[string]interface{})
	if !ok {
		return out
	}
	for k := range raw {
		out[k] = getStringFromMap(raw, k)
	}
	return out
}

// requireArgs returns an error naming the first missing string argument.
func requireArgs(args map[string]interface{}, keys ...string) error {
	for _, k := range keys {
		if strings.TrimSpace(getStringArg(args, k)) == "" {
			return fmt.Errorf("%s is required", k)
		}
	}
	return nil
}

// resultPayload is the client-facing shape of a run plus its bookkeeping.
func resultPayload(res engine.Result) map[string]interface{} {
	out := res.Payload()
	out["run_id"] = res.RunID
	out["duration_ms"] = res.Duration.Milliseconds()
	if res.Username != "" {
		out["username"] = res.Username
	}
	if res.Failure != nil {
		out["text"] = res.Failure.Text()
	}
	if len(res.Correlation) > 0 {
		out["correlation"] = res.Correlation
	}
	return out
}
