package render

import (
	"strings"
	"testing"

	"github.com/linkmind/linkmind/internal/bookmarks"
)

func oneResult() []bookmarks.Result {
	return []bookmarks.Result{{Title: "T", URL: "/u"}}
}

// TestFinalReplacesMutatedLink verifies a hallucinated target is
// replaced by the deterministic summary and never survives.
func TestFinalReplacesMutatedLink(t *testing.T) {
	model := "I found this: [T](/mutated)"
	got := Final(model, oneResult())
	if !strings.Contains(got, Header) {
		t.Errorf("final text missing header: %q", got)
	}
	if !strings.Contains(got, "[T](/u)") {
		t.Errorf("final text missing authoritative link: %q", got)
	}
	if strings.Contains(got, "/mutated") {
		t.Errorf("mutated link survived: %q", got)
	}
}

// TestFinalKeepsVerifiedText verifies prose whose links all match the
// authoritative set is returned unchanged.
func TestFinalKeepsVerifiedText(t *testing.T) {
	model := "Your best match is [T](/u), saved a while ago."
	if got := Final(model, oneResult()); got != model {
		t.Errorf("verified text replaced: got %q", got)
	}
}

// TestFinalReplacesLinklessProse verifies prose without any links is
// replaced when the search produced results.
func TestFinalReplacesLinklessProse(t *testing.T) {
	got := Final("I found one great bookmark for you!", oneResult())
	if !strings.Contains(got, "[T](/u)") {
		t.Errorf("deterministic link missing: %q", got)
	}
}

// TestFinalEmptyResults covers both empty-search branches: plain prose
// stands, fabricated links do not.
func TestFinalEmptyResults(t *testing.T) {
	prose := "I couldn't find anything saved about that topic."
	if got := Final(prose, nil); got != prose {
		t.Errorf("plain prose replaced: got %q", got)
	}
	got := Final("Try [Docs](https://invented.example)", nil)
	if strings.Contains(got, "invented.example") {
		t.Errorf("fabricated link survived empty search: %q", got)
	}
}

// TestVerbatimTitleMutation verifies a matching URL under a changed
// title still fails the allowlist, since pairs match as a whole.
func TestVerbatimTitleMutation(t *testing.T) {
	if Verbatim("See [Totally Different](/u)", oneResult()) {
		t.Error("title mutation passed the allowlist")
	}
}

func TestVerbatimEmptyText(t *testing.T) {
	if Verbatim("   ", oneResult()) {
		t.Error("blank text passed the allowlist")
	}
}

func TestDeterministicFormat(t *testing.T) {
	got := Deterministic([]bookmarks.Result{
		{Title: "A", URL: "https://a"},
		{Title: "B", URL: "https://b"},
	})
	want := "Here are the best matches I found:\n\n- [A](https://a)\n- [B](https://b)"
	if got != want {
		t.Errorf("deterministic rendering:\ngot  %q\nwant %q", got, want)
	}
}

func TestLinks(t *testing.T) {
	got := Links("pre [A](https://a) mid [B](https://b) post")
	if len(got) != 2 {
		t.Fatalf("link count: got %d, want 2", len(got))
	}
	if got[0] != (Link{Title: "A", URL: "https://a"}) {
		t.Errorf("first link: got %+v", got[0])
	}
	if got[1] != (Link{Title: "B", URL: "https://b"}) {
		t.Errorf("second link: got %+v", got[1])
	}
	if Links("no markdown here") != nil {
		t.Error("links found in plain text")
	}
}
