package tools

import (
	"context"
	"fmt"
	"os"
	"strings"
)

type listDirArgs struct {
	Path string `json:"path,omitempty" jsonschema:"Directory to list (default: project root)"`
}

// ListDir lists a directory with file sizes.
func ListDir() Registration {
	return Define(Definition[listDirArgs]{
		Name:        "list_dir",
		Description: "List the contents of a directory, showing files and subdirectories with their sizes.",
		Category:    CategoryFilesystem,
		ReadOnly:    true,
		New: func(d Deps) (Handler[listDirArgs], error) {
			return func(_ context.Context, p listDirArgs) (ToolResult, error) {
				dir := p.Path
				if dir == "" {
					dir = "."
				}
				entries, err := os.ReadDir(resolvePath(d.WorkDir, dir))
				if err != nil {
					return ToolResult{}, fmt.Errorf("failed to read directory: %w", err)
				}
				if len(entries) == 0 {
					return ToolResult{Content: "(empty directory)"}, nil
				}

				var sb strings.Builder
				for _, entry := range entries {
					if entry.IsDir() {
						fmt.Fprintf(&sb, "[DIR]  %s\n", entry.Name())
						continue
					}
					info, err := entry.Info()
					if err != nil {
						continue
					}
					fmt.Fprintf(&sb, "[FILE] %s (%s)\n", entry.Name(), formatSize(info.Size()))
				}
				return ToolResult{Content: sb.String()}, nil
			}, nil
		},
	})
}

func formatSize(bytes int64) string {
	switch {
	case bytes >= 1024*1024:
		return fmt.Sprintf("%.1f MB", float64(bytes)/(1024*1024))
	case bytes >= 1024:
		return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
