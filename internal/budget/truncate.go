package budget

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// markerReserve is the token headroom TruncateFileContent keeps for its marker.
const markerReserve = 100

// TruncateFileContent keeps the longest line prefix of content that fits in
// maxTokens minus a marker reserve, and appends a marker naming what was
// cut. maxTokens <= 0 uses the configured file limit. Content within budget
// is returned unchanged.
func (t *Tracker) TruncateFileContent(content string, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = t.cfg.Limits.MaxFileTokens
	}
	tokens := CountTokens(content)
	if tokens <= maxTokens {
		return content
	}

	lines := strings.Split(content, "\n")
	ends := lineEnds(lines)
	limit := maxTokens - markerReserve

	// Largest k with CountTokens(prefix of k lines) <= limit; prefix
	// length grows with k, so the predicate is monotonic.
	lo, hi := 0, len(lines)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if prefixLen(ends, mid)/3 <= limit {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	kept := content[:prefixLen(ends, lo)]
	removedTokens := tokens - CountTokens(kept)
	return kept + fmt.Sprintf("\n\n[... truncated %d lines, %d tokens ...]", len(lines)-lo, removedTokens)
}

// TruncateToolResult keeps the beginning and the end of content so the
// result fits in maxTokens: the number of kept lines starts at the
// budget's share of all lines and shrinks until the output fits; the head
// gets the smaller half. Output with fewer than two lines to keep falls
// back to a character split. maxTokens <= 0 uses the configured tool
// result limit.
func (t *Tracker) TruncateToolResult(content string, maxTokens int) string {
	if maxTokens <= 0 {
		maxTokens = t.cfg.Limits.MaxToolResultTokens
	}
	tokens := CountTokens(content)
	if tokens <= maxTokens {
		return content
	}

	lines := strings.Split(content, "\n")
	ends := lineEnds(lines)
	n := len(lines)

	keep := int(float64(n) * float64(maxTokens) / float64(tokens))
	for ; keep >= 2; keep-- {
		head := keep / 2
		tail := keep - head
		marker := toolMarker(n - keep)
		size := prefixLen(ends, head) + len(marker) + suffixLen(ends, tail)
		if size/3 <= maxTokens {
			return content[:prefixLen(ends, head)] + marker + content[len(content)-suffixLen(ends, tail):]
		}
	}
	return truncateChars(content, maxTokens)
}

func toolMarker(removed int) string {
	return fmt.Sprintf("\n\n[... truncated %d lines ...]\n\n", removed)
}

// truncateChars splits content by characters when there are too few lines
// to keep a head and a tail.
func truncateChars(content string, maxTokens int) string {
	// The marker length depends on the number it prints; size it for the
	// worst case, the whole content.
	marker := fmt.Sprintf("\n\n[... truncated %d characters ...]\n\n", len(content))
	budget := maxTokens*3 - len(marker)
	if budget <= 0 {
		return strings.TrimSpace(marker)
	}
	headN := runeFloor(content, budget/2)
	tailStart := runeCeil(content, len(content)-(budget-budget/2))
	head := content[:headN]
	tail := content[tailStart:]
	removed := len(content) - len(head) - len(tail)
	return head + fmt.Sprintf("\n\n[... truncated %d characters ...]\n\n", removed) + tail
}

// lineEnds returns, for each line, the byte offset just past it in the
// joined content (excluding the newline).
func lineEnds(lines []string) []int {
	ends := make([]int, len(lines))
	off := 0
	for i, l := range lines {
		if i > 0 {
			off++ // newline
		}
		off += len(l)
		ends[i] = off
	}
	return ends
}

// prefixLen is the byte length of the first k lines joined by newlines.
func prefixLen(ends []int, k int) int {
	if k <= 0 {
		return 0
	}
	return ends[k-1]
}

// suffixLen is the byte length of the last k lines joined by newlines.
func suffixLen(ends []int, k int) int {
	n := len(ends)
	if k <= 0 {
		return 0
	}
	total := ends[n-1]
	if k >= n {
		return total
	}
	// Everything after the newline that follows line n-k-1.
	return total - ends[n-k-1] - 1
}

// runeFloor moves i back to the nearest rune boundary.
func runeFloor(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

// runeCeil moves i forward to the nearest rune boundary.
func runeCeil(s string, i int) int {
	if i <= 0 {
		return 0
	}
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return i
}
