package chunk

import "strings"

// charsPerToken is the fixed character-per-token ratio used to estimate
// token counts. A real tokenizer would be more precise, but the budgets
// only bound retrieval chunk sizes, so the heuristic is kept deliberately.
const charsPerToken = 4

// Options controls chunk construction.
type Options struct {
	// MaxTokens is the estimated-token budget per chunk.
	MaxTokens int
	// OverlapTokens is the trailing overlap carried between consecutive
	// chunks, in the same estimated-token unit. Zero disables overlap.
	OverlapTokens int
}

// Chunk is one retrieval-sized piece of a document. Text starts with a
// one-line "Section: …" header naming the heading path, followed by a blank
// line and the packed body.
type Chunk struct {
	SectionPath string
	Text        string
}

// EstimateTokens estimates the token count of text using the fixed
// characters-per-token ratio. Always returns at least 1.
func EstimateTokens(text string) int {
	n := (len(text) + charsPerToken - 1) / charsPerToken
	if n < 1 {
		return 1
	}
	return n
}

// Build segments normalized text and packs it into chunks. Paragraphs
// (blank-line-delimited) accumulate greedily until adding the next one would
// exceed opts.MaxTokens; the buffer is then flushed and reseeded with the
// trailing OverlapTokens worth of characters. A single paragraph that alone
// exceeds the budget is hard-split into fixed character windows with
// character overlap, bypassing the buffer. Empty chunks are never emitted.
func Build(text string, opts Options) []Chunk {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}

	overlapChars := 0
	if opts.OverlapTokens > 0 {
		overlapChars = opts.OverlapTokens * charsPerToken
	}

	var chunks []Chunk
	for _, section := range SplitSections(normalized) {
		chunks = appendSectionChunks(chunks, section, opts.MaxTokens, overlapChars)
	}
	return chunks
}

// appendSectionChunks packs one section's paragraphs into chunks.
func appendSectionChunks(chunks []Chunk, section Section, maxTokens, overlapChars int) []Chunk {
	sectionPath := strings.Join(section.Path, " > ")
	header := "Section: (no heading)"
	if sectionPath != "" {
		header = "Section: " + sectionPath
	}

	body := strings.TrimSpace(section.Body)
	if body == "" {
		return chunks
	}

	paragraphs := splitParagraphs(body)

	var buffer string
	flush := func() {
		if strings.TrimSpace(buffer) == "" {
			return
		}
		chunks = append(chunks, Chunk{
			SectionPath: sectionPath,
			Text:        header + "\n\n" + strings.TrimSpace(buffer),
		})
		buffer = ""
	}

	for _, p := range paragraphs {
		candidate := p
		if buffer != "" {
			candidate = buffer + "\n\n" + p
		}
		if EstimateTokens(candidate) <= maxTokens {
			buffer = candidate
			continue
		}

		if buffer != "" {
			flushed := buffer
			flush()
			if overlapChars > 0 {
				// Seed the next buffer with the tail of the flushed chunk.
				tail := flushed
				if len(tail) > overlapChars {
					tail = tail[len(tail)-overlapChars:]
				}
				buffer = tail
			}
		}

		if EstimateTokens(p) > maxTokens {
			// Hard split: fixed character windows with character overlap.
			window := maxTokens * charsPerToken
			step := window - overlapChars
			if step < 1 {
				step = window
			}
			for start := 0; start < len(p); start += step {
				end := start + window
				if end > len(p) {
					end = len(p)
				}
				part := strings.TrimSpace(p[start:end])
				if part != "" {
					chunks = append(chunks, Chunk{
						SectionPath: sectionPath,
						Text:        header + "\n\n" + part,
					})
				}
			}
			buffer = ""
			continue
		}

		if buffer != "" {
			buffer = buffer + "\n\n" + p
		} else {
			buffer = p
		}
	}

	flush()
	return chunks
}

// splitParagraphs splits body text on blank-line boundaries.
func splitParagraphs(body string) []string {
	var (
		paragraphs []string
		cur        []string
	)
	for _, line := range strings.Split(body, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(cur) > 0 {
				paragraphs = append(paragraphs, strings.Join(cur, "\n"))
				cur = nil
			}
			continue
		}
		cur = append(cur, line)
	}
	if len(cur) > 0 {
		paragraphs = append(paragraphs, strings.Join(cur, "\n"))
	}
	return paragraphs
}
