package chat

import (
	"strings"

	"github.com/docassist/docassist/internal/assist"
)

const (
	snippetMaxChars = 240
	quoteDedupLen   = 80
)

// Source attributes one retrieval citation in an answer.
type Source struct {
	FileID   string `json:"fileId"`
	Filename string `json:"filename,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Title    string `json:"title,omitempty"`
	Section  string `json:"section,omitempty"`
	Snippet  string `json:"snippet,omitempty"`
}

// sourceMeta is what the resolver can recover about a cited file.
type sourceMeta struct {
	Filename string
	Kind     string
	Title    string
}

// extractSources converts citations into deduplicated sources. resolve
// maps a file ID to local metadata; it may return ok=false when the file
// is unknown, in which case the annotation's own filename is used.
func extractSources(annotations []assist.Annotation, resolve func(fileID string) (sourceMeta, bool)) []Source {
	var sources []Source
	seen := make(map[string]bool)
	for _, a := range annotations {
		if a.FileID == "" {
			continue
		}
		key := a.FileID + "\x00" + clip(a.Quote, quoteDedupLen)
		if seen[key] {
			continue
		}
		seen[key] = true

		src := Source{
			FileID:   a.FileID,
			Filename: a.Filename,
			Section:  sectionFromQuote(a.Quote),
			Snippet:  snippet(a.Quote),
		}
		if meta, ok := resolve(a.FileID); ok {
			if meta.Filename != "" {
				src.Filename = meta.Filename
			}
			src.Kind = meta.Kind
			src.Title = meta.Title
		}
		sources = append(sources, src)
	}
	return sources
}

// sectionFromQuote recovers the section header a chunk was built with.
func sectionFromQuote(quote string) string {
	for _, line := range strings.Split(quote, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, "Section: "); ok {
			if rest == "(no heading)" {
				return ""
			}
			return rest
		}
	}
	return ""
}

// snippet clips a quote for display, dropping the section header line.
func snippet(quote string) string {
	quote = strings.TrimSpace(quote)
	if strings.HasPrefix(quote, "Section: ") {
		if _, body, ok := strings.Cut(quote, "\n"); ok {
			quote = strings.TrimSpace(body)
		} else {
			return ""
		}
	}
	if len(quote) <= snippetMaxChars {
		return quote
	}
	return strings.TrimSpace(quote[:snippetMaxChars]) + "…"
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
