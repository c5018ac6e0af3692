// Package document splits generated Markdown into header sections so a single
// section can be swapped out without touching the text around it.
package document

import (
	"strings"
)

// Section is one header and everything up to the next header. The preamble
// before the first header has an empty Header.
type Section struct {
	Header string
	Level  int
	Raw    string
}

// Document is an ordered list of sections. Concatenating every Raw gives back
// the source text.
type Document struct {
	Sections []Section
}

// Parse splits markdown on ATX headers. Lines inside fenced code blocks are
// never treated as headers.
func Parse(markdown string) Document {
	var (
		doc     Document
		current strings.Builder
		header  string
		level   int
		inFence bool
		fence   string
	)

	flush := func() {
		if current.Len() == 0 && header == "" {
			return
		}
		doc.Sections = append(doc.Sections, Section{Header: header, Level: level, Raw: current.String()})
		current.Reset()
	}

	for _, line := range strings.SplitAfter(markdown, "\n") {
		if line == "" {
			continue
		}
		trimmed := strings.TrimSpace(line)

		if marker := fenceMarker(trimmed); marker != "" {
			switch {
			case !inFence:
				inFence, fence = true, marker
			case strings.HasPrefix(trimmed, fence) && strings.TrimLeft(trimmed, fence[:1]) == "":
				inFence, fence = false, ""
			}
		}

		if !inFence {
			if lvl, ok := headerLevel(line); ok {
				flush()
				header, level = trimmed, lvl
			}
		}
		current.WriteString(line)
	}
	flush()

	return doc
}

// String reassembles the document.
func (d Document) String() string {
	var b strings.Builder
	for _, s := range d.Sections {
		b.WriteString(s.Raw)
	}
	return b.String()
}

// Index returns the position of the first section at or after from whose
// header mentions the text of header, or -1. The '#' markers are ignored on
// both sides, so "## Next" matches "### Next" and "## Next: GPT-3".
func (d Document) Index(header string, from int) int {
	want := headerText(header)
	if want == "" {
		return -1
	}
	for i := max(from, 0); i < len(d.Sections); i++ {
		h := d.Sections[i].Header
		if h != "" && strings.Contains(headerText(h), want) {
			return i
		}
	}
	return -1
}

// headerText strips an emphasis wrapper and the '#' markers from a header.
func headerText(h string) string {
	h = unwrapEmphasis(strings.TrimSpace(h))
	return strings.TrimSpace(strings.TrimLeft(h, "#"))
}

func unwrapEmphasis(s string) string {
	for _, m := range []string{"**", "__"} {
		if len(s) > 2*len(m) && strings.HasPrefix(s, m) && strings.HasSuffix(s, m) {
			return strings.TrimSpace(s[len(m) : len(s)-len(m)])
		}
	}
	return s
}

// ReplaceSection swaps the section headed target for replacement. Everything
// from the first keepFrom header after target to the end of the document is
// kept verbatim; sections between the two are dropped. When target does not
// exist the document is returned unchanged with false.
func (d Document) ReplaceSection(target, replacement, keepFrom string) (string, bool) {
	i := d.Index(target, 0)
	if i < 0 {
		return d.String(), false
	}

	base := strings.TrimSpace(Document{Sections: d.Sections[:i]}.String())

	var footer string
	if keepFrom != "" {
		if j := d.Index(keepFrom, i+1); j >= 0 {
			footer = Document{Sections: d.Sections[j:]}.String()
		}
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\n")
	b.WriteString(strings.TrimSpace(replacement))
	b.WriteString("\n\n")
	b.WriteString(footer)
	return b.String(), true
}

// SplitTitle returns the first line with leading '#' removed, and the rest of
// the text trimmed.
func SplitTitle(content string) (title, body string) {
	content = strings.TrimSpace(content)
	first, rest, _ := strings.Cut(content, "\n")
	title = strings.TrimSpace(strings.ReplaceAll(first, "#", ""))
	return title, strings.TrimSpace(rest)
}

// FirstHeading returns the text of the first level-1 header, or "".
func FirstHeading(markdown string) string {
	for _, s := range Parse(markdown).Sections {
		if s.Level == 1 {
			return headerText(s.Header)
		}
	}
	return ""
}

func headerLevel(line string) (int, bool) {
	// up to three spaces of indentation
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return 0, false
	}
	// a header wrapped in bold, as in "**## Next**"
	if text := strings.TrimRight(trimmed, "\r\n"); unwrapEmphasis(text) != text {
		trimmed = unwrapEmphasis(text)
	}
	n := 0
	for n < len(trimmed) && trimmed[n] == '#' {
		n++
	}
	if n == 0 || n > 6 {
		return 0, false
	}
	rest := trimmed[n:]
	if rest == "" || rest == "\n" || rest == "\r\n" {
		return n, true
	}
	if rest[0] != ' ' && rest[0] != '\t' {
		return 0, false
	}
	return n, true
}

func fenceMarker(trimmed string) string {
	for _, m := range []string{"```", "~~~"} {
		if strings.HasPrefix(trimmed, m) {
			return m
		}
	}
	return ""
}
