package mcp

import (
	"context"
)

type ListCredentialsTool struct {
	backend Backend
}

func (t *ListCredentialsTool) Name() string { return "list-credentials" }
func (t *ListCredentialsTool) Description() string {
	return `List stored Superset accounts. Passwords are never returned.

Returns: {credentials: [{username, active}], active: username or ""}`
}
func (t *ListCredentialsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListCredentialsTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	list, err := t.backend.Credentials()
	if err != nil {
		return nil, err
	}
	out := make([]map[string]interface{}, 0, len(list))
	active := ""
	for _, c := range list {
		out = append(out, map[string]interface{}{"username": c.Username, "active": c.Active})
		if c.Active {
			active = c.Username
		}
	}
	return map[string]interface{}{"credentials": out, "active": active}, nil
}

type QueryHistoryTool struct {
	backend Backend
}

func (t *QueryHistoryTool) Name() string { return "query-history" }
func (t *QueryHistoryTool) Description() string {
	return `List recent query runs, newest first.

Returns: {runs: [{run_id, brand, file, username, outcome, message, rows, duration_ms, created_at}]}`
}
func (t *QueryHistoryTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"limit": map[string]interface{}{
				"type":        "integer",
				"description": "Maximum runs to return (default 20, max 200)",
			},
		},
	}
}
func (t *QueryHistoryTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	limit := getIntArg(args, "limit", 20)
	if limit > 200 {
		limit = 200
	}
	runs, err := t.backend.History(ctx, limit)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"runs": runs}, nil
}
