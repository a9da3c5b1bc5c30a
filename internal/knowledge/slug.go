package knowledge

import "strings"

const maxSlugLen = 64

// slugify reduces an identifier or filename to a safe ASCII form for use
// in uploaded file names. Preserves a single extension dot.
func slugify(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	lastDash := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '_':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash && b.Len() > 0 {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}

	s := strings.Trim(b.String(), "-.")
	if len(s) > maxSlugLen {
		s = s[:maxSlugLen]
		s = strings.Trim(s, "-.")
	}
	if s == "" {
		return "file"
	}
	return s
}
