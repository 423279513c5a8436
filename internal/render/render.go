// Package render decides the final reply text after a bookmark search
// ran. Model prose is only trusted when every link in it points at an
// authoritative result; otherwise a deterministic summary built from
// the results replaces it, so the caller never sees mutated or
// invented URLs.
package render

import (
	"regexp"
	"strings"

	"github.com/linkmind/linkmind/internal/bookmarks"
)

// Header opens every deterministic summary.
const Header = "Here are the best matches I found:"

// noMatches is the deterministic text when the search came back empty
// but the model still fabricated links.
const noMatches = "I couldn't find any bookmarks matching that search."

var linkPattern = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)

// Link is one Markdown link extracted from model text.
type Link struct {
	Title string
	URL   string
}

// Links extracts every Markdown link from text in order.
func Links(text string) []Link {
	matches := linkPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	out := make([]Link, 0, len(matches))
	for _, m := range matches {
		out = append(out, Link{Title: m[1], URL: m[2]})
	}
	return out
}

// Verbatim reports whether the model's own text may stand. It may only
// when the text carries at least one link and every link matches an
// authoritative title+URL pair exactly. Text without any links is kept
// only when the search itself found nothing, since prose about
// results must carry the results' own links.
func Verbatim(text string, results []bookmarks.Result) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}
	links := Links(text)
	if len(results) == 0 {
		return len(links) == 0
	}
	if len(links) == 0 {
		return false
	}
	allowed := make(map[Link]bool, len(results))
	for _, r := range results {
		allowed[Link{Title: r.Title, URL: r.URL}] = true
	}
	for _, l := range links {
		if !allowed[l] {
			return false
		}
	}
	return true
}

// Deterministic builds the summary from authoritative results: the
// header followed by one Markdown link per result, best match first.
func Deterministic(results []bookmarks.Result) string {
	if len(results) == 0 {
		return noMatches
	}
	var b strings.Builder
	b.WriteString(Header)
	b.WriteString("\n")
	for _, r := range results {
		b.WriteString("\n- [")
		b.WriteString(r.Title)
		b.WriteString("](")
		b.WriteString(r.URL)
		b.WriteString(")")
	}
	return b.String()
}

// Final resolves the deterministic-vs-verbatim decision.
func Final(modelText string, results []bookmarks.Result) string {
	if Verbatim(modelText, results) {
		return modelText
	}
	return Deterministic(results)
}
