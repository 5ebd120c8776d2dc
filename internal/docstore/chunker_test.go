package docstore

import (
	"strings"
	"testing"
)

func TestChunkParagraphs_Empty(t *testing.T) {
	if got := ChunkParagraphs("", 1200); got != nil {
		t.Errorf("empty text should chunk to nothing, got %v", got)
	}
	if got := ChunkParagraphs("   \n\n  \n ", 1200); got != nil {
		t.Errorf("whitespace-only text should chunk to nothing, got %v", got)
	}
}

func TestChunkParagraphs_SingleShortText(t *testing.T) {
	got := ChunkParagraphs("just one paragraph", 1200)
	if len(got) != 1 || got[0] != "just one paragraph" {
		t.Fatalf("unexpected chunks %v", got)
	}
}

func TestChunkParagraphs_PacksUntilBudget(t *testing.T) {
	a := strings.Repeat("a", 500)
	b := strings.Repeat("b", 500)
	c := strings.Repeat("c", 500)
	text := a + "\n\n" + b + "\n\n" + c

	got := ChunkParagraphs(text, 1200)
	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(got))
	}
	if got[0] != a+"\n\n"+b {
		t.Error("first chunk should pack two paragraphs")
	}
	if got[1] != c {
		t.Error("third paragraph should start a new chunk")
	}
}

func TestChunkParagraphs_NeverSplitsAParagraph(t *testing.T) {
	long := strings.Repeat("x", 3000)
	got := ChunkParagraphs("short\n\n"+long+"\n\nend", 1200)

	found := false
	for _, chunk := range got {
		if chunk == long {
			found = true
		}
	}
	if !found {
		t.Fatalf("oversized paragraph must stay whole, got %d chunks", len(got))
	}
}

func TestChunkParagraphs_ContentSurvives(t *testing.T) {
	text := "alpha\n\nbeta\n\ngamma\n\ndelta"
	got := ChunkParagraphs(text, 12)

	rejoined := strings.Join(got, "\n\n")
	for _, para := range []string{"alpha", "beta", "gamma", "delta"} {
		if !strings.Contains(rejoined, para) {
			t.Errorf("paragraph %q lost during chunking", para)
		}
	}
	for _, chunk := range got {
		if chunk != strings.TrimSpace(chunk) {
			t.Errorf("chunk has stray whitespace: %q", chunk)
		}
	}
}
