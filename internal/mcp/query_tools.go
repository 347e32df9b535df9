package mcp

import (
	"context"
)

type RunQueryTool struct {
	backend Backend
}

func (t *RunQueryTool) Name() string { return "run-query" }
func (t *RunQueryTool) Description() string {
	return `Run a SQL statement in Superset SQL Lab through a private headless browser.

The active stored credential is used. A saved login is reused when it belongs
to that account; otherwise the runner signs in and saves the new session.

Returns on success: {success: true, type: "success", title, data, columns}
Returns on failure: {success: false, type, title, error, text}
  type is one of vpn_error, credentials_required, auth_error, sql_error, superset_error.`
}
func (t *RunQueryTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"brand": map[string]interface{}{
				"type":        "string",
				"description": "Target brand the query belongs to",
			},
			"sql": map[string]interface{}{
				"type":        "string",
				"description": "SQL to execute. Leftover {{ }} markers are stripped.",
			},
			"file": map[string]interface{}{
				"type":        "string",
				"description": "Optional library file name recorded in history",
			},
		},
		"required": []string{"brand", "sql"},
	}
}
func (t *RunQueryTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if err := requireArgs(args, "brand", "sql"); err != nil {
		return nil, err
	}
	res := t.backend.RunQuery(ctx, getStringArg(args, "brand"), getStringArg(args, "file"), getStringArg(args, "sql"))
	return resultPayload(res), nil
}

type RunTemplateTool struct {
	backend Backend
}

func (t *RunTemplateTool) Name() string { return "run-template" }
func (t *RunTemplateTool) Description() string {
	return `Render a SQL file from the library with placeholder values and run it.

Placeholders are written {{name}}. Date and datetime values such as
2024-01-02T10:30 are normalized to "2024-01-02 10:30:00".

Returns the run-query payload plus "unresolved": placeholders with no value.`
}
func (t *RunTemplateTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"brand": map[string]interface{}{"type": "string"},
			"file":  map[string]interface{}{"type": "string"},
			"values": map[string]interface{}{
				"type":                 "object",
				"description":          "Placeholder values keyed by name",
				"additionalProperties": map[string]interface{}{"type": "string"},
			},
		},
		"required": []string{"brand", "file"},
	}
}
func (t *RunTemplateTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	if err := requireArgs(args, "brand", "file"); err != nil {
		return nil, err
	}
	res, unresolved, err := t.backend.RunTemplate(ctx, getStringArg(args, "brand"), getStringArg(args, "file"), getStringMapArg(args, "values"))
	if err != nil {
		return nil, err
	}
	out := resultPayload(res)
	out["unresolved"] = unresolved
	return out, nil
}
