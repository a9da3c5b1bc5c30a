package chunk

import "strings"

// Normalize canonicalizes raw text into a stable form:
//   - CRLF and bare CR become LF
//   - non-breaking spaces become ordinary spaces
//   - trailing spaces and tabs before a newline are stripped
//   - runs of three or more newlines collapse to one blank line
//   - leading and trailing whitespace is trimmed
//
// Normalize is pure and idempotent; content digests are computed over its
// output, so two sources that differ only in formatting quirks dedup to the
// same unit.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))

	// Pass 1: line ending and NBSP canonicalization.
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '\r':
			if i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			b.WriteByte('\n')
		case c == 0xC2 && i+1 < len(text) && text[i+1] == 0xA0:
			// U+00A0 no-break space (UTF-8 C2 A0)
			b.WriteByte(' ')
			i++
		default:
			b.WriteByte(c)
		}
	}

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	// Pass 2: collapse blank-line runs. A run of 2+ empty lines becomes one.
	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		if line == "" {
			blanks++
			continue
		}
		if blanks > 0 && len(out) > 0 {
			out = append(out, "")
		}
		blanks = 0
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
