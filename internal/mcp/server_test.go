package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"testing"

	"sqlrunner/internal/config"
	"sqlrunner/internal/credentials"
	"sqlrunner/internal/engine"
	"sqlrunner/internal/history"
	"sqlrunner/internal/library"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog"
)

type fakeBackend struct {
	lastBrand  string
	lastFile   string
	lastSQL    string
	lastValues map[string]string
	lastLimit  int
	saved      map[string]string
	result     engine.Result
}

func (f *fakeBackend) RunQuery(_ context.Context, brand, file, sql string) engine.Result {
	f.lastBrand, f.lastFile, f.lastSQL = brand, file, sql
	return f.result
}

func (f *fakeBackend) RunTemplate(_ context.Context, brand, file string, values map[string]string) (engine.Result, []string, error) {
	if file != "orders.sql" {
		return engine.Result{}, nil, library.ErrNotFound
	}
	f.lastBrand, f.lastFile, f.lastValues = brand, file, values
	return f.result, []string{"shop"}, nil
}

func (f *fakeBackend) Brands() ([]string, error) { return []string{"acme", "globex"}, nil }

func (f *fakeBackend) Files(brand string) ([]string, error) {
	if brand != "acme" {
		return nil, library.ErrNotFound
	}
	return []string{"orders.sql"}, nil
}

func (f *fakeBackend) Content(brand, file string) (string, error) {
	if brand != "acme" || file != "orders.sql" {
		return "", library.ErrNotFound
	}
	return "SELECT * FROM orders WHERE day = '{{day}}'", nil
}

func (f *fakeBackend) Save(brand, file, content string) error {
	if f.saved == nil {
		f.saved = map[string]string{}
	}
	f.saved[brand+"/"+file] = content
	return nil
}

func (f *fakeBackend) Placeholders(string, string) ([]string, error) { return []string{"day"}, nil }

func (f *fakeBackend) Credentials() ([]credentials.Credential, error) {
	return []credentials.Credential{{Username: "ops", Password: "secret"}, {Username: "analyst", Active: true}}, nil
}

func (f *fakeBackend) History(_ context.Context, limit int) ([]history.Run, error) {
	f.lastLimit = limit
	return []history.Run{{RunID: "r1", Outcome: "success"}}, nil
}

func setupTestServerConfig() config.Config {
	cfg := config.DefaultConfig()
	cfg.Server.Name = "test-server"
	cfg.Server.Version = "1.0.0"
	cfg.Superset.BaseURL = "https://superset.example.com"
	return cfg
}

func newTestServer(t *testing.T) (*Server, *fakeBackend) {
	t.Helper()
	backend := &fakeBackend{result: engine.Result{
		RunID:   "run-1",
		Success: &engine.Success{Title: "examples", Rows: []map[string]interface{}{{"a": 1}}},
	}}
	server, err := NewServer(setupTestServerConfig(), backend, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return server, backend
}

func TestNewServer(t *testing.T) {
	t.Run("registers every tool", func(t *testing.T) {
		server, _ := newTestServer(t)
		want := []string{
			"run-query", "run-template",
			"list-brands", "list-files", "get-file-content", "save-file-content",
			"list-credentials", "query-history",
		}
		if len(server.tools) != len(want) {
			t.Errorf("expected %d tools, got %d", len(want), len(server.tools))
		}
		for _, name := range want {
			if _, ok := server.tools[name]; !ok {
				t.Errorf("tool %s not registered", name)
			}
		}
	})

	t.Run("nil backend", func(t *testing.T) {
		if _, err := NewServer(setupTestServerConfig(), nil, zerolog.Nop()); err == nil {
			t.Error("expected error for nil backend")
		}
	})
}

func TestToolInterface(t *testing.T) {
	server, _ := newTestServer(t)
	for name, tool := range server.tools {
		t.Run(name, func(t *testing.T) {
			if tool.Description() == "" {
				t.Error("empty description")
			}
			schema := tool.InputSchema()
			if schema["type"] != "object" {
				t.Errorf("schema type = %v", schema["type"])
			}
			if _, err := json.Marshal(schema); err != nil {
				t.Errorf("schema not serializable: %v", err)
			}
		})
	}
}

func TestRunQueryTool(t *testing.T) {
	server, backend := newTestServer(t)
	ctx := context.Background()

	t.Run("requires brand and sql", func(t *testing.T) {
		if _, err := server.ExecuteTool(ctx, "run-query", map[string]interface{}{"brand": "acme"}); err == nil {
			t.Error("expected error without sql")
		}
	})

	t.Run("passes arguments through", func(t *testing.T) {
		out, err := server.ExecuteTool(ctx, "run-query", map[string]interface{}{
			"brand": "acme", "sql": "SELECT 1", "file": "adhoc.sql",
		})
		if err != nil {
			t.Fatalf("ExecuteTool: %v", err)
		}
		if backend.lastBrand != "acme" || backend.lastSQL != "SELECT 1" || backend.lastFile != "adhoc.sql" {
			t.Errorf("unexpected backend call: %+v", backend)
		}
		payload := out.(map[string]interface{})
		if payload["success"] != true || payload["title"] != "examples" || payload["run_id"] != "run-1" {
			t.Errorf("unexpected payload: %v", payload)
		}
	})

	t.Run("failure is a payload not an error", func(t *testing.T) {
		backend.result = engine.Result{Failure: &engine.Failure{Kind: engine.AuthFailed, Message: "login failed"}}
		out, err := server.ExecuteTool(ctx, "run-query", map[string]interface{}{"brand": "acme", "sql": "SELECT 1"})
		if err != nil {
			t.Fatalf("ExecuteTool: %v", err)
		}
		payload := out.(map[string]interface{})
		if payload["success"] != false || payload["type"] != "auth_error" {
			t.Errorf("unexpected payload: %v", payload)
		}
	})
}

func TestRunTemplateTool(t *testing.T) {
	server, backend := newTestServer(t)
	ctx := context.Background()

	out, err := server.ExecuteTool(ctx, "run-template", map[string]interface{}{
		"brand":  "acme",
		"file":   "orders.sql",
		"values": map[string]interface{}{"day": "2024-01-02"},
	})
	if err != nil {
		t.Fatalf("ExecuteTool: %v", err)
	}
	if backend.lastValues["day"] != "2024-01-02" {
		t.Errorf("values not forwarded: %v", backend.lastValues)
	}
	unresolved, _ := out.(map[string]interface{})["unresolved"].([]string)
	if len(unresolved) != 1 || unresolved[0] != "shop" {
		t.Errorf("unexpected unresolved: %v", unresolved)
	}

	_, err = server.ExecuteTool(ctx, "run-template", map[string]interface{}{"brand": "acme", "file": "nope.sql"})
	if !errors.Is(err, library.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestLibraryTools(t *testing.T) {
	server, backend := newTestServer(t)
	ctx := context.Background()

	out, err := server.ExecuteTool(ctx, "list-brands", nil)
	if err != nil {
		t.Fatal(err)
	}
	if brands := out.(map[string]interface{})["brands"].([]string); len(brands) != 2 {
		t.Errorf("unexpected brands: %v", brands)
	}

	if _, err := server.ExecuteTool(ctx, "list-files", map[string]interface{}{}); err == nil {
		t.Error("expected error without brand")
	}

	out, err = server.ExecuteTool(ctx, "get-file-content", map[string]interface{}{"brand": "acme", "file": "orders.sql"})
	if err != nil {
		t.Fatal(err)
	}
	payload := out.(map[string]interface{})
	if payload["content"] == "" || len(payload["placeholders"].([]string)) != 1 {
		t.Errorf("unexpected payload: %v", payload)
	}

	if _, err := server.ExecuteTool(ctx, "save-file-content", map[string]interface{}{"brand": "acme", "file": "orders.sql"}); err == nil {
		t.Error("expected error without content")
	}
	if _, err := server.ExecuteTool(ctx, "save-file-content", map[string]interface{}{
		"brand": "acme", "file": "orders.sql", "content": "",
	}); err != nil {
		t.Errorf("empty content is a valid save: %v", err)
	}
	if got, ok := backend.saved["acme/orders.sql"]; !ok || got != "" {
		t.Errorf("expected empty save recorded, got %q, %v", got, ok)
	}
}

func TestAccountTools(t *testing.T) {
	server, backend := newTestServer(t)
	ctx := context.Background()

	out, err := server.ExecuteTool(ctx, "list-credentials", nil)
	if err != nil {
		t.Fatal(err)
	}
	raw, _ := json.Marshal(out)
	var decoded struct {
		Credentials []map[string]interface{} `json:"credentials"`
		Active      string                   `json:"active"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Active != "analyst" || len(decoded.Credentials) != 2 {
		t.Errorf("unexpected credentials payload: %s", raw)
	}
	for _, c := range decoded.Credentials {
		if _, ok := c["password"]; ok {
			t.Errorf("password leaked: %s", raw)
		}
	}

	if _, err := server.ExecuteTool(ctx, "query-history", map[string]interface{}{"limit": float64(1000)}); err != nil {
		t.Fatal(err)
	}
	if backend.lastLimit != 200 {
		t.Errorf("expected limit capped at 200, got %d", backend.lastLimit)
	}
}

func TestExecuteToolUnknown(t *testing.T) {
	server, _ := newTestServer(t)
	if _, err := server.ExecuteTool(context.Background(), "nope", nil); err == nil {
		t.Error("expected error for unknown tool")
	}
}

func TestWrapTool(t *testing.T) {
	server, _ := newTestServer(t)
	handler := server.wrapTool(server.tools["list-files"])

	t.Run("success", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Name = "list-files"
		req.Params.Arguments = map[string]interface{}{"brand": "acme"}

		res, err := handler(context.Background(), req)
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
		if res.IsError {
			t.Fatalf("unexpected error result: %+v", res)
		}
		text, ok := res.Content[0].(mcp.TextContent)
		if !ok {
			t.Fatalf("expected text content, got %T", res.Content[0])
		}
		var payload map[string]interface{}
		if err := json.Unmarshal([]byte(text.Text), &payload); err != nil {
			t.Fatalf("invalid JSON payload: %v", err)
		}
		if payload["brand"] != "acme" {
			t.Errorf("unexpected payload: %v", payload)
		}
	})

	t.Run("tool error becomes error result", func(t *testing.T) {
		req := mcp.CallToolRequest{}
		req.Params.Name = "list-files"

		res, err := handler(context.Background(), req)
		if err != nil {
			t.Fatalf("handler: %v", err)
		}
		if !res.IsError {
			t.Error("expected IsError for missing brand")
		}
	})
}

func TestSQLFileResource(t *testing.T) {
	server, _ := newTestServer(t)

	req := mcp.ReadResourceRequest{}
	req.Params.URI = "sqlrunner://sql/acme/orders.sql"
	req.Params.Arguments = map[string]interface{}{"brand": []string{"acme"}, "file": []string{"orders.sql"}}

	contents, err := server.handleSQLFileResource(context.Background(), req)
	if err != nil {
		t.Fatalf("handleSQLFileResource: %v", err)
	}
	text, ok := contents[0].(mcp.TextResourceContents)
	if !ok || text.MIMEType != resourceMIMESQL || text.Text == "" {
		t.Errorf("unexpected contents: %+v", contents)
	}

	req.Params.Arguments = map[string]interface{}{}
	if _, err := server.handleSQLFileResource(context.Background(), req); err == nil {
		t.Error("expected error without brand and file")
	}
}

func TestMarshalToolPayloadFallback(t *testing.T) {
	payload := marshalToolPayload("test-tool", map[string]interface{}{
		"bad": math.NaN(),
	})
	if len(payload) == 0 {
		t.Fatal("expected non-empty payload")
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("payload should always be valid JSON: %v", err)
	}
	if success, _ := decoded["success"].(bool); success {
		t.Fatalf("expected success=false fallback payload, got %v", decoded)
	}
	if decoded["error"] == nil {
		t.Fatalf("expected fallback payload to include error, got %v", decoded)
	}
}
