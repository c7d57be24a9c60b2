package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultReadLimit = 2000

type readFileArgs struct {
	Path   string `json:"path" jsonschema:"Path of the file to read, absolute or relative to the project root"`
	Offset int    `json:"offset,omitempty" jsonschema:"Line number to start reading from (0-based)"`
	Limit  int    `json:"limit,omitempty" jsonschema:"Maximum number of lines to read (default 2000)"`
}

// ReadFile reads a file with line numbers. Content over the file token
// limit is truncated by the session's FileTruncator.
func ReadFile() Registration {
	return Define(Definition[readFileArgs]{
		Name: "read_file",
		Description: "Read the contents of a file at the given path. " +
			"Use offset and limit to read specific line ranges for large files.",
		Category:      CategoryFilesystem,
		FileOperation: true,
		ReadOnly:      true,
		New: func(d Deps) (Handler[readFileArgs], error) {
			return func(_ context.Context, p readFileArgs) (ToolResult, error) {
				return readFile(d, p)
			}, nil
		},
	})
}

func readFile(d Deps, p readFileArgs) (ToolResult, error) {
	if p.Path == "" {
		return ToolResult{}, fmt.Errorf("path is required")
	}
	if p.Limit <= 0 {
		p.Limit = defaultReadLimit
	}

	data, err := os.ReadFile(resolvePath(d.WorkDir, p.Path))
	if err != nil {
		return ToolResult{}, fmt.Errorf("failed to read file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	totalLines := len(lines)

	if p.Offset > 0 {
		if p.Offset >= totalLines {
			return ToolResult{Content: fmt.Sprintf("[File has %d lines, offset %d is beyond end]", totalLines, p.Offset)}, nil
		}
		lines = lines[p.Offset:]
	}

	truncated := false
	if len(lines) > p.Limit {
		lines = lines[:p.Limit]
		truncated = true
	}

	var sb strings.Builder
	for i, line := range lines {
		fmt.Fprintf(&sb, "%6d\t%s\n", p.Offset+i+1, line)
	}
	content := sb.String()

	if d.Files != nil {
		if cut := d.Files.TruncateFileContent(content, 0); cut != content {
			content = cut
			truncated = true
		}
	}
	if truncated {
		content += fmt.Sprintf("\n[Truncated: %d total lines. Use offset/limit to read more.]", totalLines)
	}

	return ToolResult{Content: content, Truncated: truncated}, nil
}

// resolvePath joins a relative path onto the working directory.
func resolvePath(workDir, p string) string {
	if filepath.IsAbs(p) || workDir == "" {
		return p
	}
	return filepath.Join(workDir, p)
}
