package document

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestIdentityHash(t *testing.T) {
	t.Run("stable across calls", func(t *testing.T) {
		a := IdentityHash(TypePDF, "report.pdf")
		b := IdentityHash(TypePDF, "report.pdf")
		if a != b {
			t.Errorf("IdentityHash() not stable: %q vs %q", a, b)
		}
	})

	t.Run("type participates in identity", func(t *testing.T) {
		if IdentityHash(TypePDF, "notes") == IdentityHash(TypeMarkdown, "notes") {
			t.Error("IdentityHash() collides across document types")
		}
	})

	t.Run("matches sha256 of type:source", func(t *testing.T) {
		sum := sha256.Sum256([]byte("pdf:report.pdf"))
		want := hex.EncodeToString(sum[:])
		if got := IdentityHash(TypePDF, "report.pdf"); got != want {
			t.Errorf("IdentityHash() = %q, want %q", got, want)
		}
	})
}

func TestContentHash(t *testing.T) {
	if ContentHash("hello") == ContentHash("hello world") {
		t.Error("ContentHash() collides for different content")
	}
	if ContentHash("hello") != ContentHash("hello") {
		t.Error("ContentHash() not stable")
	}
}

func TestTypeValid(t *testing.T) {
	tests := []struct {
		in   Type
		want bool
	}{
		{TypePDF, true},
		{TypeMarkdown, true},
		{Type("docx"), false},
		{Type(""), false},
	}
	for _, tt := range tests {
		if got := tt.in.Valid(); got != tt.want {
			t.Errorf("Type(%q).Valid() = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestListOptionsOffset(t *testing.T) {
	tests := []struct {
		name string
		opts ListOptions
		want int
	}{
		{"zero value", ListOptions{}, 0},
		{"explicit offset wins", ListOptions{Offset: 7, Page: 3, PageSize: 10}, 7},
		{"page with explicit size", ListOptions{Page: 3, PageSize: 10}, 30},
		{"page with default size", ListOptions{Page: 2}, 2 * DefaultPageSize},
		{"unbounded size ignores page math", ListOptions{Page: 2, PageSize: UnboundedPageSize}, 2 * DefaultPageSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.opts.offset(); got != tt.want {
				t.Errorf("offset() = %d, want %d", got, tt.want)
			}
		})
	}
}
