package tools

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
)

type editFileArgs struct {
	Path       string `json:"path" jsonschema:"Path of the file to edit"`
	OldString  string `json:"old_string" jsonschema:"Exact text to replace; must occur exactly once"`
	NewString  string `json:"new_string" jsonschema:"Replacement text"`
	ReplaceAll bool   `json:"replace_all,omitempty" jsonschema:"Replace every occurrence instead of requiring a unique match"`
}

// EditFile replaces a unique occurrence of old_string. When the exact text
// is absent it retries ignoring trailing whitespace, then indentation
// style, then runs of blank lines.
func EditFile() Registration {
	return Define(Definition[editFileArgs]{
		Name: "edit_file",
		Description: "Edit a file by replacing an exact string match. " +
			"The old_string must appear exactly once in the file unless replace_all is set.",
		Category:      CategoryFilesystem,
		FileOperation: true,
		New: func(d Deps) (Handler[editFileArgs], error) {
			return func(_ context.Context, p editFileArgs) (ToolResult, error) {
				return editFile(d, p)
			}, nil
		},
	})
}

func editFile(d Deps, p editFileArgs) (ToolResult, error) {
	if p.Path == "" {
		return ToolResult{}, fmt.Errorf("path is required")
	}
	if p.OldString == "" {
		return ToolResult{}, fmt.Errorf("old_string is required")
	}
	path := resolvePath(d.WorkDir, p.Path)
	data, err := os.ReadFile(path)
	if err != nil {
		return ToolResult{}, fmt.Errorf("failed to read file: %w", err)
	}
	content := string(data)

	var updated, note string
	switch count := strings.Count(content, p.OldString); {
	case count == 1 || (count > 1 && p.ReplaceAll):
		updated = strings.ReplaceAll(content, p.OldString, p.NewString)
		if count > 1 {
			note = fmt.Sprintf(" (%d occurrences)", count)
		}
	case count > 1:
		return ToolResult{
			Content: fmt.Sprintf("found %d occurrences, provide more context to make the match unique", count),
			IsError: true,
		}, nil
	default:
		var ok bool
		if updated, ok = fuzzyReplace(content, p.OldString, p.NewString); !ok {
			return ToolResult{Content: "text not found in file", IsError: true}, nil
		}
		note = " (whitespace-tolerant match)"
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return ToolResult{}, fmt.Errorf("failed to write file: %w", err)
	}
	d.Changes.Record(p.Path, "modified", "edit_file")
	return ToolResult{Content: "file edited successfully" + note}, nil
}

// fuzzyReplace finds a unique match under progressively looser
// normalization. The first two layers compare line by line and keep the
// rest of the file byte-identical; the last one rewrites the whole file in
// normalized form.
func fuzzyReplace(content, oldString, newString string) (string, bool) {
	contentLines := strings.Split(content, "\n")
	oldLines := strings.Split(oldString, "\n")

	trimWS := func(s string) string { return strings.TrimRight(s, " \t") }
	if start, ok := uniqueLineMatch(contentLines, oldLines, trimWS); ok {
		return replaceLines(contentLines, start, len(oldLines), newString), true
	}

	normIndent := func(s string) string {
		return strings.ReplaceAll(strings.TrimRight(s, " \t"), "\t", "    ")
	}
	if start, ok := uniqueLineMatch(contentLines, oldLines, normIndent); ok {
		return replaceLines(contentLines, start, len(oldLines), newString), true
	}

	normAll := func(s string) string {
		lines := strings.Split(s, "\n")
		for i, l := range lines {
			lines[i] = normIndent(l)
		}
		return blankRun.ReplaceAllString(strings.Join(lines, "\n"), "\n\n")
	}
	nc, no := normAll(content), normAll(oldString)
	if strings.Count(nc, no) == 1 {
		return strings.Replace(nc, no, newString, 1), true
	}
	return "", false
}

// uniqueLineMatch slides oldLines over lines and returns the start of the
// only window that matches after normalize.
func uniqueLineMatch(lines, oldLines []string, normalize func(string) string) (int, bool) {
	want := make([]string, len(oldLines))
	for i, l := range oldLines {
		want[i] = normalize(l)
	}
	start, matches := -1, 0
	for i := 0; i+len(want) <= len(lines); i++ {
		hit := true
		for j, w := range want {
			if normalize(lines[i+j]) != w {
				hit = false
				break
			}
		}
		if hit {
			matches++
			start = i
			if matches > 1 {
				return -1, false
			}
		}
	}
	return start, matches == 1
}

func replaceLines(lines []string, start, count int, newString string) string {
	out := make([]string, 0, len(lines))
	out = append(out, lines[:start]...)
	out = append(out, strings.Split(newString, "\n")...)
	out = append(out, lines[start+count:]...)
	return strings.Join(out, "\n")
}

var blankRun = regexp.MustCompile(`\n[ \t]*\n([ \t]*\n)*`)
