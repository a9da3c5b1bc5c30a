package chunk

import (
	"regexp"
	"strings"
)

// maxHeadingLevel is the deepest heading marker recognized (######).
const maxHeadingLevel = 6

// headingRe matches a markup-style heading line: 1-6 marker characters,
// whitespace, then the title.
var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)

// Section is a contiguous run of lines under one heading path.
// Path holds the ancestor heading titles in order, outermost first; an
// empty Path means the text carried no heading markers above this section.
// Body includes the heading line itself.
type Section struct {
	Path []string
	Body string
}

// SplitSections walks normalized text and emits sections in document order.
// A heading at level N truncates the heading-path stack to N-1 entries and
// records its title at position N-1; deeper levels inherit the full path.
// Text with no headings at all becomes a single section with an empty path.
func SplitSections(text string) []Section {
	lines := strings.Split(text, "\n")

	var (
		sections []Section
		path     []string
		curPath  []string
		curLines []string
	)

	flush := func() {
		if len(curLines) == 0 {
			return
		}
		body := strings.TrimSpace(strings.Join(curLines, "\n"))
		if body != "" {
			sections = append(sections, Section{
				Path: append([]string(nil), curPath...),
				Body: body,
			})
		}
		curPath = append([]string(nil), path...)
		curLines = nil
	}

	for _, line := range lines {
		if m := headingRe.FindStringSubmatch(line); m != nil {
			flush()
			level := len(m[1])
			title := strings.TrimSpace(m[2])
			if level > len(path) {
				// Grow the stack; skipped levels stay empty.
				grown := make([]string, level)
				copy(grown, path)
				path = grown
			} else {
				path = path[:level]
			}
			path[level-1] = title
			curPath = append([]string(nil), path...)
			curLines = []string{line}
			continue
		}
		curLines = append(curLines, line)
	}
	flush()

	if len(sections) == 0 && strings.TrimSpace(text) != "" {
		sections = append(sections, Section{Body: strings.TrimSpace(text)})
	}

	return sections
}
