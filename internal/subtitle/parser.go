package subtitle

import (
	"regexp"
	"strings"
)

// minBlockLines is label + timing + at least one text line.
const minBlockLines = 3

var blockSeparator = regexp.MustCompile(`\n\s*\n`)

// Parse splits content on blank lines and turns every block with at least
// three lines into an Entry. Shorter blocks are dropped silently, so the
// result may hold fewer entries than the input has blocks. Lines are kept
// verbatim apart from their line endings.
func Parse(content string) []Entry {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	blocks := blockSeparator.Split(content, -1)
	entries := make([]Entry, 0, len(blocks))
	for _, block := range blocks {
		lines := blockLines(block)
		if len(lines) < minBlockLines {
			continue
		}
		entries = append(entries, Entry{
			Label:  lines[0],
			Timing: lines[1],
			Text:   strings.Join(lines[2:], " "),
		})
	}
	return entries
}

func blockLines(block string) []string {
	lines := strings.Split(block, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

// Serialize renders entries as label, timing and text lines, separating
// entries with a single blank line. There is no trailing newline.
func Serialize(entries []Entry) string {
	var sb strings.Builder
	for i, e := range entries {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(e.Label)
		sb.WriteByte('\n')
		sb.WriteString(e.Timing)
		sb.WriteByte('\n')
		sb.WriteString(e.Text)
	}
	return sb.String()
}
