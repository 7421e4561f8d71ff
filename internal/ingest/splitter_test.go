package ingest

import (
	"strings"
	"testing"
)

func TestSplitterShortText(t *testing.T) {
	s := NewSplitter(1024, 100)

	got := s.Split("a short paragraph")
	if len(got) != 1 || got[0] != "a short paragraph" {
		t.Errorf("Split(short) = %v, want single chunk", got)
	}
}

func TestSplitterEmptyInput(t *testing.T) {
	s := NewSplitter(1024, 100)

	for _, in := range []string{"", "   ", "\n\n\n"} {
		if got := s.Split(in); got != nil {
			t.Errorf("Split(%q) = %v, want nil", in, got)
		}
	}
}

func TestSplitterRespectsChunkSize(t *testing.T) {
	s := NewSplitter(100, 20)

	var b strings.Builder
	for i := 0; i < 50; i++ {
		b.WriteString("some words in a paragraph.\n\n")
	}

	chunks := s.Split(b.String())
	if len(chunks) < 2 {
		t.Fatalf("Split() produced %d chunks, want several", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 100 {
			t.Errorf("chunk %d has length %d, exceeds chunk size", i, len(c))
		}
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is blank", i)
		}
	}
}

func TestSplitterPrefersParagraphBoundaries(t *testing.T) {
	s := NewSplitter(40, 0)

	text := "first paragraph here.\n\nsecond paragraph here.\n\nthird one."
	chunks := s.Split(text)

	for i, c := range chunks {
		if strings.Contains(c, "\n\n") && len(c) > 40 {
			t.Errorf("chunk %d spans paragraphs beyond the size limit: %q", i, c)
		}
	}
	joined := strings.Join(chunks, " ")
	for _, want := range []string{"first paragraph", "second paragraph", "third one"} {
		if !strings.Contains(joined, want) {
			t.Errorf("chunks lost text %q", want)
		}
	}
}

func TestSplitterOverlapCarriesText(t *testing.T) {
	s := NewSplitter(30, 15)

	text := "aaaa bbbb cccc dddd eeee ffff gggg hhhh iiii jjjj"
	chunks := s.Split(text)
	if len(chunks) < 2 {
		t.Fatalf("Split() produced %d chunks, want several", len(chunks))
	}

	// each chunk starts with trailing words of its predecessor
	for i := 1; i < len(chunks); i++ {
		prev := strings.Fields(chunks[i-1])
		if len(prev) == 0 {
			continue
		}
		last := prev[len(prev)-1]
		if !strings.Contains(chunks[i], last) {
			t.Errorf("chunk %d does not carry overlap from chunk %d: %q | %q",
				i, i-1, chunks[i-1], chunks[i])
		}
	}
}

func TestSplitterHardSplitNoSeparators(t *testing.T) {
	s := NewSplitter(10, 2)

	text := strings.Repeat("x", 35)
	chunks := s.Split(text)
	if len(chunks) < 3 {
		t.Fatalf("Split() produced %d chunks, want at least 3", len(chunks))
	}
	for i, c := range chunks {
		if len(c) > 10 {
			t.Errorf("chunk %d has length %d, exceeds chunk size", i, len(c))
		}
	}
}

func TestNewSplitterFallbacks(t *testing.T) {
	tests := []struct {
		name               string
		size, overlap      int
		wantSize, wantOver int
	}{
		{"defaults", 0, -1, 1024, 100},
		{"overlap at least size", 50, 60, 50, 12},
		{"valid passthrough", 200, 20, 200, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSplitter(tt.size, tt.overlap)
			if s.chunkSize != tt.wantSize || s.overlap != tt.wantOver {
				t.Errorf("NewSplitter(%d, %d) = {%d, %d}, want {%d, %d}",
					tt.size, tt.overlap, s.chunkSize, s.overlap, tt.wantSize, tt.wantOver)
			}
		})
	}
}
