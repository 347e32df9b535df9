package mcp

import (
	"context"
	"errors"
)

var errContentRequired = errors.New("content is required")

type ListBrandsTool struct {
	backend Backend
}

func (t *ListBrandsTool) Name() string { return "list-brands" }
func (t *ListBrandsTool) Description() string {
	return `List the brands in the SQL library (one directory per brand).

Returns: {brands: [name, ...]}`
}
func (t *ListBrandsTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *ListBrandsTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	brands, err := t.backend.Brands()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"brands": brands}, nil
}

type ListFilesTool struct {
	backend Backend
}

func (t *ListFilesTool) Name() string { return "list-files" }
func (t *ListFilesTool) Description() string {
	return `List the .sql files of a brand.

Returns: {brand, files: [name, ...]}`
}
func (t *ListFilesTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"brand": map[string]interface{}{"type": "string"},
		},
		"required": []string{"brand"},
	}
}
func (t *ListFilesTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	if err := requireArgs(args, "brand"); err != nil {
		return nil, err
	}
	brand := getStringArg(args, "brand")
	files, err := t.backend.Files(brand)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"brand": brand, "files": files}, nil
}

type GetFileContentTool struct {
	backend Backend
}

func (t *GetFileContentTool) Name() string { return "get-file-content" }
func (t *GetFileContentTool) Description() string {
	return `Read a SQL file from the library.

Returns: {brand, file, content, placeholders: [name, ...]}`
}
func (t *GetFileContentTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"brand": map[string]interface{}{"type": "string"},
			"file":  map[string]interface{}{"type": "string"},
		},
		"required": []string{"brand", "file"},
	}
}
func (t *GetFileContentTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	if err := requireArgs(args, "brand", "file"); err != nil {
		return nil, err
	}
	brand, file := getStringArg(args, "brand"), getStringArg(args, "file")
	content, err := t.backend.Content(brand, file)
	if err != nil {
		return nil, err
	}
	names, err := t.backend.Placeholders(brand, file)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"brand":        brand,
		"file":         file,
		"content":      content,
		"placeholders": names,
	}, nil
}

type SaveFileContentTool struct {
	backend Backend
}

func (t *SaveFileContentTool) Name() string { return "save-file-content" }
func (t *SaveFileContentTool) Description() string {
	return `Overwrite an existing SQL file in the library. New files cannot be created.

Returns: {success: true, brand, file}`
}
func (t *SaveFileContentTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"brand":   map[string]interface{}{"type": "string"},
			"file":    map[string]interface{}{"type": "string"},
			"content": map[string]interface{}{"type": "string"},
		},
		"required": []string{"brand", "file", "content"},
	}
}
func (t *SaveFileContentTool) Execute(_ context.Context, args map[string]interface{}) (interface{}, error) {
	if err := requireArgs(args, "brand", "file"); err != nil {
		return nil, err
	}
	if _, ok := args["content"].(string); !ok {
		return nil, errContentRequired
	}
	brand, file := getStringArg(args, "brand"), getStringArg(args, "file")
	if err := t.backend.Save(brand, file, getStringArg(args, "content")); err != nil {
		return nil, err
	}
	return map[string]interface{}{"success": true, "brand": brand, "file": file}, nil
}
