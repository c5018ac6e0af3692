// Package citation turns grounding sources into stable, readable references.
package citation

import (
	"strings"
)

// DefaultTitle is used for a source whose title is still unknown after
// resolution.
const DefaultTitle = "Reference"

// Kind tells which grounding tool produced a source.
type Kind string

const (
	Web  Kind = "web"
	Maps Kind = "maps"
)

// Source is one grounding reference. Used reports whether a grounding support
// in the response pointed at it.
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
	Kind  Kind   `json:"kind"`
	Used  bool   `json:"used"`
}

// Dedupe merges sources with the same kind and URI, keeping first-seen order.
// A merged source is used if any duplicate was used and keeps the first
// non-empty title.
func Dedupe(sources []Source) []Source {
	type key struct {
		kind Kind
		uri  string
	}
	seen := make(map[key]int, len(sources))
	out := make([]Source, 0, len(sources))
	for _, s := range sources {
		if s.URI == "" {
			continue
		}
		k := key{s.Kind, s.URI}
		if i, ok := seen[k]; ok {
			out[i].Used = out[i].Used || s.Used
			if out[i].Title == "" {
				out[i].Title = s.Title
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, s)
	}
	return out
}

// Filter returns the sources of the given kind and usage.
func Filter(sources []Source, kind Kind, used bool) []Source {
	var out []Source
	for _, s := range sources {
		if s.Kind == kind && s.Used == used {
			out = append(out, s)
		}
	}
	return out
}

// HasKind reports whether any source has the given kind.
func HasKind(sources []Source, kind Kind) bool {
	for _, s := range sources {
		if s.Kind == kind {
			return true
		}
	}
	return false
}

// Markdown renders one "* [title](url)" line per source.
func Markdown(sources []Source) string {
	var b strings.Builder
	for _, s := range sources {
		title := strings.Join(strings.Fields(s.Title), " ")
		if title == "" {
			title = DefaultTitle
		}
		b.WriteString("* [")
		b.WriteString(title)
		b.WriteString("](")
		b.WriteString(s.URI)
		b.WriteString(")\n")
	}
	return b.String()
}
