package chunk

import (
	"strings"
	"testing"
)

func TestBuildTwoSections(t *testing.T) {
	chunks := Build("# A\n\nfoo\n\n# B\n\nbar", Options{MaxTokens: 100})
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %+v", len(chunks), chunks)
	}
	if !strings.HasPrefix(chunks[0].Text, "Section: A\n\n") {
		t.Errorf("chunk 0 header = %q, want Section: A", firstLine(chunks[0].Text))
	}
	if !strings.HasPrefix(chunks[1].Text, "Section: B\n\n") {
		t.Errorf("chunk 1 header = %q, want Section: B", firstLine(chunks[1].Text))
	}
}

func TestBuildNoHeadingHeader(t *testing.T) {
	chunks := Build("plain text without headings", Options{MaxTokens: 100})
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if firstLine(chunks[0].Text) != "Section: (no heading)" {
		t.Errorf("header = %q, want Section: (no heading)", firstLine(chunks[0].Text))
	}
	if chunks[0].SectionPath != "" {
		t.Errorf("section path = %q, want empty", chunks[0].SectionPath)
	}
}

func TestBuildNestedPathHeader(t *testing.T) {
	chunks := Build("# A\n\n## B\n\ncontent here", Options{MaxTokens: 100})
	last := chunks[len(chunks)-1]
	if firstLine(last.Text) != "Section: A > B" {
		t.Errorf("header = %q, want Section: A > B", firstLine(last.Text))
	}
}

func TestBuildGreedyPacking(t *testing.T) {
	// Three short paragraphs, budget holds two of them at a time.
	p := strings.Repeat("x", 40) // ~10 tokens
	text := p + "\n\n" + p + "\n\n" + p
	chunks := Build(text, Options{MaxTokens: 22})
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2: %+v", len(chunks), chunks)
	}
}

func TestBuildOverlapSeeding(t *testing.T) {
	p1 := strings.Repeat("a", 80)
	p2 := strings.Repeat("b", 80)
	chunks := Build(p1+"\n\n"+p2, Options{MaxTokens: 25, OverlapTokens: 5})
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	// Second chunk starts with the 20-char tail of the first chunk's content.
	body := chunkBody(chunks[1].Text)
	if !strings.HasPrefix(body, strings.Repeat("a", 20)) {
		t.Errorf("second chunk does not carry overlap: %q", body[:30])
	}
	if !strings.HasSuffix(body, p2) {
		t.Errorf("second chunk missing its own paragraph")
	}
}

func TestBuildHardSplit(t *testing.T) {
	// One paragraph far over budget: fixed windows of maxTokens*4 chars.
	p := strings.Repeat("z", 1000)
	chunks := Build(p, Options{MaxTokens: 50, OverlapTokens: 10})
	if len(chunks) < 5 {
		t.Fatalf("got %d chunks, want several hard-split windows", len(chunks))
	}
	for i, c := range chunks {
		body := chunkBody(c.Text)
		if len(body) > 50*4 {
			t.Errorf("chunk %d body %d chars, exceeds window", i, len(body))
		}
		if body == "" {
			t.Errorf("chunk %d is empty", i)
		}
	}
	// Windows advance by window-overlap = 160 chars over 1000 chars,
	// so starts are 0,160,…,960: seven windows.
	if len(chunks) != 7 {
		t.Errorf("got %d chunks, want 7", len(chunks))
	}
}

func TestBuildLosslessOrder(t *testing.T) {
	// Without overlap, de-headered chunk bodies concatenate back to the
	// section bodies in order.
	text := "# A\n\nfirst paragraph\n\nsecond paragraph\n\n# B\n\nthird paragraph"
	chunks := Build(text, Options{MaxTokens: 8})
	var got []string
	for _, c := range chunks {
		got = append(got, chunkBody(c.Text))
	}
	joined := strings.Join(got, "\n\n")
	for _, want := range []string{"first paragraph", "second paragraph", "third paragraph"} {
		if !strings.Contains(joined, want) {
			t.Errorf("lost %q in %q", want, joined)
		}
	}
	if strings.Index(joined, "first") > strings.Index(joined, "second") ||
		strings.Index(joined, "second") > strings.Index(joined, "third") {
		t.Errorf("paragraph order not preserved: %q", joined)
	}
}

func TestBuildEmptyInput(t *testing.T) {
	if chunks := Build("   \n\n  ", Options{MaxTokens: 100}); chunks != nil {
		t.Errorf("Build on blank input = %+v, want nil", chunks)
	}
}

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"", 1},
		{"abc", 1},
		{"abcd", 1},
		{"abcde", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tt := range tests {
		if got := EstimateTokens(tt.input); got != tt.want {
			t.Errorf("EstimateTokens(%d chars) = %d, want %d", len(tt.input), got, tt.want)
		}
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// chunkBody strips the "Section: …" header and its blank line.
func chunkBody(s string) string {
	_, body, ok := strings.Cut(s, "\n\n")
	if !ok {
		return s
	}
	return body
}
