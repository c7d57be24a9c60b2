package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

type writeFileArgs struct {
	Path    string `json:"path" jsonschema:"Path of the file to write"`
	Content string `json:"content" jsonschema:"Full content of the file"`
}

// WriteFile creates or overwrites a file, creating parent directories.
func WriteFile() Registration {
	return Define(Definition[writeFileArgs]{
		Name:          "write_file",
		Description:   "Write content to a file, creating it and any parent directories if needed. Overwrites existing files.",
		Category:      CategoryFilesystem,
		FileOperation: true,
		New: func(d Deps) (Handler[writeFileArgs], error) {
			return func(_ context.Context, p writeFileArgs) (ToolResult, error) {
				if p.Path == "" {
					return ToolResult{}, fmt.Errorf("path is required")
				}
				path := resolvePath(d.WorkDir, p.Path)
				_, statErr := os.Stat(path)
				isNew := os.IsNotExist(statErr)

				if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
					return ToolResult{}, fmt.Errorf("failed to create directory: %w", err)
				}
				if err := os.WriteFile(path, []byte(p.Content), 0o644); err != nil {
					return ToolResult{}, fmt.Errorf("failed to write file: %w", err)
				}

				op := "modified"
				if isNew {
					op = "created"
				}
				d.Changes.Record(p.Path, op, "write_file")
				return ToolResult{Content: fmt.Sprintf("wrote %d bytes to %s", len(p.Content), p.Path)}, nil
			}, nil
		},
	})
}
