package tools

import (
	"bufio"
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const maxGrepResults = 50

type grepArgs struct {
	Pattern         string `json:"pattern" jsonschema:"Regular expression to search for"`
	Path            string `json:"path,omitempty" jsonschema:"Directory or file to search in (default: project root)"`
	Glob            string `json:"glob,omitempty" jsonschema:"File name filter, e.g. '*.go'"`
	CaseInsensitive bool   `json:"case_insensitive,omitempty" jsonschema:"Ignore case"`
}

// Grep searches file contents by regular expression.
func Grep() Registration {
	return Define(Definition[grepArgs]{
		Name: "grep",
		Description: "Recursively search file contents using a regex pattern. " +
			"Returns matching lines in 'file:line:content' format (max 50 results).",
		Category: CategoryFilesystem,
		ReadOnly: true,
		New: func(d Deps) (Handler[grepArgs], error) {
			return func(ctx context.Context, p grepArgs) (ToolResult, error) {
				return grep(ctx, d, p)
			}, nil
		},
	})
}

func grep(ctx context.Context, d Deps, p grepArgs) (ToolResult, error) {
	if p.Pattern == "" {
		return ToolResult{}, fmt.Errorf("pattern is required")
	}
	expr := p.Pattern
	if p.CaseInsensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return ToolResult{}, fmt.Errorf("invalid regex pattern: %w", err)
	}
	base := p.Path
	if base == "" {
		base = "."
	}
	root := resolvePath(d.WorkDir, base)

	var results []string
	err = filepath.WalkDir(root, func(name string, e fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if e.IsDir() {
			if name != root && SkipDir(e.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if p.Glob != "" {
			if ok, _ := filepath.Match(p.Glob, e.Name()); !ok {
				return nil
			}
		}
		shown := name
		if rel, err := filepath.Rel(root, name); err == nil && rel != "." {
			shown = filepath.Join(base, rel)
		}
		searchFile(name, shown, re, &results)
		if len(results) >= maxGrepResults {
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		return ToolResult{}, fmt.Errorf("search failed: %w", err)
	}

	if len(results) == 0 {
		return ToolResult{Content: "no matches found"}, nil
	}
	content := strings.Join(results, "\n")
	truncated := len(results) >= maxGrepResults
	if truncated {
		content += fmt.Sprintf("\n[Truncated: showing first %d results]", maxGrepResults)
	}
	return ToolResult{Content: content, Truncated: truncated}, nil
}

// searchFile appends "file:line:text" for each matching line. Files that
// cannot be read, and binary files, are skipped.
func searchFile(path, shown string, re *regexp.Regexp, results *[]string) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.IndexByte(line, 0) >= 0 {
			return
		}
		if re.MatchString(line) {
			*results = append(*results, fmt.Sprintf("%s:%d:%s", shown, lineNum, line))
			if len(*results) >= maxGrepResults {
				return
			}
		}
	}
}
