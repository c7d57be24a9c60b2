package tools

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"path/filepath"
	"strings"
)

const maxGlobResults = 500

type globArgs struct {
	Pattern string `json:"pattern" jsonschema:"Glob pattern, e.g. '**/*.go' or 'src/*.ts'"`
	Path    string `json:"path,omitempty" jsonschema:"Base directory to search in (default: project root)"`
}

// Glob finds files by pattern. "**" matches any number of directories.
func Glob() Registration {
	return Define(Definition[globArgs]{
		Name:        "glob",
		Description: "Find files matching a glob pattern. Supports ** for recursive matching. Returns matching file paths.",
		Category:    CategoryFilesystem,
		ReadOnly:    true,
		New: func(d Deps) (Handler[globArgs], error) {
			return func(ctx context.Context, p globArgs) (ToolResult, error) {
				return glob(ctx, d, p)
			}, nil
		},
	})
}

func glob(ctx context.Context, d Deps, p globArgs) (ToolResult, error) {
	if p.Pattern == "" {
		return ToolResult{}, fmt.Errorf("pattern is required")
	}
	if _, err := path.Match(strings.ReplaceAll(p.Pattern, "**", "*"), ""); err != nil {
		return ToolResult{}, fmt.Errorf("invalid glob pattern: %w", err)
	}
	base := p.Path
	if base == "" {
		base = "."
	}
	root := resolvePath(d.WorkDir, base)
	pattern := strings.Split(filepath.ToSlash(p.Pattern), "/")

	var matches []string
	err := filepath.WalkDir(root, func(name string, e fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if name == root {
			return nil
		}
		if e.IsDir() && SkipDir(e.Name()) {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(root, name)
		if err != nil {
			return nil
		}
		if matchSegments(pattern, strings.Split(filepath.ToSlash(rel), "/")) {
			matches = append(matches, filepath.Join(base, rel))
			if len(matches) >= maxGlobResults {
				return fs.SkipAll
			}
		}
		return nil
	})
	if err != nil {
		return ToolResult{}, err
	}

	if len(matches) == 0 {
		return ToolResult{Content: "no files matched"}, nil
	}
	content := strings.Join(matches, "\n")
	truncated := len(matches) >= maxGlobResults
	if truncated {
		content += fmt.Sprintf("\n[Truncated: showing first %d matches]", maxGlobResults)
	}
	return ToolResult{Content: content, Truncated: truncated}, nil
}

// matchSegments matches path segments against pattern segments, where a
// "**" segment matches zero or more path segments.
func matchSegments(pattern, segs []string) bool {
	if len(pattern) == 0 {
		return len(segs) == 0
	}
	if pattern[0] == "**" {
		for i := 0; i <= len(segs); i++ {
			if matchSegments(pattern[1:], segs[i:]) {
				return true
			}
		}
		return false
	}
	if len(segs) == 0 {
		return false
	}
	ok, err := path.Match(pattern[0], segs[0])
	return err == nil && ok && matchSegments(pattern[1:], segs[1:])
}

var skippedDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	".idea":        true,
}

// SkipDir reports directories that searches and project trees skip.
func SkipDir(name string) bool {
	return skippedDirs[name]
}
