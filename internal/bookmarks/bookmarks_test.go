package bookmarks

import (
	"strings"
	"testing"
)

func testLibrary() *Library {
	return NewLibrary([]Bookmark{
		{Title: "The Go Blog", URL: "https://go.dev/blog", Description: "Official Go project news", Tags: []string{"go", "programming"}},
		{Title: "Rust Book", URL: "https://doc.rust-lang.org/book", Description: "Learn Rust", Tags: []string{"rust"}},
		{Title: "Effective Go", URL: "https://go.dev/doc/effective_go", Description: "Tips for writing clear, idiomatic Go code", Tags: []string{"go", "style"}},
		{Title: "Sourdough Basics", URL: "https://example.com/bread", Description: "Baking with a starter", Tags: []string{"baking"}},
	})
}

// TestSearchRanking verifies title hits outrank description-only hits
// and unrelated entries are excluded.
func TestSearchRanking(t *testing.T) {
	got := testLibrary().Search(Query{Query: "go", MaxResults: 10})
	if len(got) != 2 {
		t.Fatalf("result count: got %d, want 2", len(got))
	}
	for _, r := range got {
		if strings.Contains(r.Title, "Sourdough") || strings.Contains(r.Title, "Rust") {
			t.Errorf("unrelated bookmark matched: %q", r.Title)
		}
		if r.Kind != "bookmark" {
			t.Errorf("result kind: got %q, want bookmark", r.Kind)
		}
		if r.Score <= 0 {
			t.Errorf("result %q has non-positive score %v", r.Title, r.Score)
		}
	}
	// Both title-match; stable order preserves library order.
	if got[0].Title != "The Go Blog" || got[1].Title != "Effective Go" {
		t.Errorf("order: got %q, %q", got[0].Title, got[1].Title)
	}
}

// TestSearchExactTitleWins verifies an exact title match beats partial
// matches regardless of library order.
func TestSearchExactTitleWins(t *testing.T) {
	got := testLibrary().Search(Query{Query: "effective go", MaxResults: 3})
	if len(got) == 0 {
		t.Fatal("no results")
	}
	if got[0].Title != "Effective Go" {
		t.Errorf("top result: got %q, want %q", got[0].Title, "Effective Go")
	}
}

func TestSearchMaxResults(t *testing.T) {
	got := testLibrary().Search(Query{Query: "go", MaxResults: 1})
	if len(got) != 1 {
		t.Errorf("result count: got %d, want 1", len(got))
	}
}

func TestSearchNoMatches(t *testing.T) {
	if got := testLibrary().Search(Query{Query: "quantum chromodynamics", MaxResults: 5}); len(got) != 0 {
		t.Errorf("results for unmatched query: got %d, want 0", len(got))
	}
}

// TestParseArguments covers the accepted and rejected argument shapes.
func TestParseArguments(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Query
		wantErr bool
	}{
		{name: "basic", raw: `{"query":"go blog"}`, want: Query{Query: "go blog", MaxResults: DefaultLimit}},
		{name: "with max", raw: `{"query":"go","maxResults":3}`, want: Query{Query: "go", MaxResults: 3}},
		{name: "max clamped", raw: `{"query":"go","maxResults":999}`, want: Query{Query: "go", MaxResults: MaxLimit}},
		{name: "negative max", raw: `{"query":"go","maxResults":-1}`, want: Query{Query: "go", MaxResults: DefaultLimit}},
		{name: "empty arguments", raw: ``, wantErr: true},
		{name: "not json", raw: `find go stuff`, wantErr: true},
		{name: "missing query", raw: `{"maxResults":3}`, wantErr: true},
		{name: "blank query", raw: `{"query":"   "}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseArguments(tt.raw)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseArguments(%q): expected error, got %+v", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseArguments(%q): %v", tt.raw, err)
			}
			if got != tt.want {
				t.Errorf("ParseArguments(%q): got %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestToolDefinition(t *testing.T) {
	def := ToolDefinition()
	if def.Name != ToolName {
		t.Errorf("tool name: got %q, want %q", def.Name, ToolName)
	}
	props, ok := def.Parameters["properties"].(map[string]any)
	if !ok {
		t.Fatal("tool parameters missing properties object")
	}
	if _, ok := props["query"]; !ok {
		t.Error("tool parameters missing query property")
	}
	if _, ok := props["maxResults"]; !ok {
		t.Error("tool parameters missing maxResults property")
	}
}

func TestResultsJSON(t *testing.T) {
	if got := ResultsJSON(nil); got != "[]" {
		t.Errorf("empty results: got %q, want []", got)
	}
	got := ResultsJSON([]Result{{Title: "T", URL: "https://t"}})
	want := `[{"title":"T","url":"https://t"}]`
	if got != want {
		t.Errorf("results json: got %s, want %s", got, want)
	}
}
