package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	resourceMIMEJSON = "application/json"
	resourceMIMESQL  = "application/sql"
)

func (s *Server) registerAllResources() {
	if s == nil || s.mcpServer == nil {
		return
	}

	s.mcpServer.AddResource(
		mcp.NewResource(
			"sqlrunner://about",
			"sqlrunner About",
			mcp.WithMIMEType(resourceMIMEJSON),
			mcp.WithResourceDescription("Server info and the Superset deployment queries run against."),
		),
		s.handleAboutResource,
	)

	s.mcpServer.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"sqlrunner://sql/{brand}/{file}",
			"SQL File",
			mcp.WithTemplateMIMEType(resourceMIMESQL),
			mcp.WithTemplateDescription("Raw text of a SQL file in the library."),
		),
		s.handleSQLFileResource,
	)
}

func (s *Server) handleAboutResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	payload := map[string]interface{}{
		"name":      s.cfg.Server.Name,
		"version":   s.cfg.Server.Version,
		"superset":  s.cfg.Superset.BaseURL,
		"workspace": s.cfg.Superset.WorkspaceURL(),
		"notes": []string{
			"Resources are read-only; use tools to run queries or save files.",
			"Queries run one at a time; concurrent run-query calls wait their turn.",
		},
		"timestamp_ms": time.Now().UnixMilli(),
	}

	text, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMEJSON,
			Text:     string(text),
		},
	}, nil
}

func (s *Server) handleSQLFileResource(_ context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	brand := argString(request.Params.Arguments["brand"])
	file := argString(request.Params.Arguments["file"])
	if brand == "" || file == "" {
		return nil, fmt.Errorf("missing brand or file")
	}

	content, err := s.backend.Content(brand, file)
	if err != nil {
		return nil, err
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      request.Params.URI,
			MIMEType: resourceMIMESQL,
			Text:     content,
		},
	}, nil
}

func argString(v any) string {
	switch value := v.(type) {
	case nil:
		return ""
	case string:
		return value
	case []string:
		if len(value) == 0 {
			return ""
		}
		return value[0]
	default:
		return fmt.Sprintf("%v", value)
	}
}
