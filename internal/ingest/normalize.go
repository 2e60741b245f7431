// Package ingest turns raw uploaded text into embedded, indexed chunks.
//
// The flow is normalize → chunk → embed → upsert, orchestrated by [Pipeline]
// with the document status lifecycle (uploading → processing → completed or
// failed) recorded in the docstore at each stage.
package ingest

import "strings"

// Normalize canonicalizes raw document text before chunking: line endings
// become a single \n, runs of spaces and tabs collapse to one space, every
// line is trimmed, runs of blank lines collapse to a single blank line, and
// the result carries no leading or trailing whitespace.
//
// Normalize is a pure function and total on any input, including empty.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(collapseSpaces(line))
	}

	// Rebuild, letting at most one blank line survive between paragraphs.
	// Leading and trailing blank runs disappear entirely.
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		if line == "" {
			blanks++
			continue
		}
		if len(out) > 0 && blanks > 0 {
			out = append(out, "")
		}
		out = append(out, line)
		blanks = 0
	}
	return strings.Join(out, "\n")
}

// collapseSpaces reduces every run of spaces and tabs to a single space.
func collapseSpaces(line string) string {
	if !strings.ContainsAny(line, " \t") {
		return line
	}
	var b strings.Builder
	b.Grow(len(line))
	pending := false
	for _, r := range line {
		if r == ' ' || r == '\t' {
			pending = b.Len() > 0
			continue
		}
		if pending {
			b.WriteByte(' ')
			pending = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
