// Package bookmarks implements the search tool the chat feature offers
// to the model: keyword search over the caller-supplied library.
package bookmarks

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/linkmind/linkmind/internal/llm"
)

// ToolName is the function name advertised to the model.
const ToolName = "search_bookmarks"

const (
	// DefaultLimit is the result count when the model asks for none.
	DefaultLimit = 5
	// MaxLimit caps model-requested result counts.
	MaxLimit = 20
)

// Bookmark is one entry of the caller-supplied library.
type Bookmark struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	URL         string   `json:"url"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// Result is one search hit, ordered best first. The same records feed
// the tool-result turn and the deterministic rendering.
type Result struct {
	ID          string  `json:"id,omitempty"`
	Kind        string  `json:"kind,omitempty"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	Description string  `json:"description,omitempty"`
	Score       float64 `json:"score,omitempty"`
}

// ToolDefinition returns the function tool offered on chat requests
// that carry a library.
func ToolDefinition() llm.Tool {
	return llm.Tool{
		Name:        ToolName,
		Description: "Search the user's saved bookmarks by keyword and return the best matches.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "Keywords describing what to look for.",
				},
				"maxResults": map[string]any{
					"type":        "integer",
					"description": "Maximum number of results to return.",
					"minimum":     1,
					"maximum":     MaxLimit,
				},
			},
			"required": []string{"query"},
		},
	}
}

// Query is a parsed search_bookmarks invocation.
type Query struct {
	Query      string
	MaxResults int
}

// ParseArguments decodes the raw tool-call arguments. Errors here are
// fed back to the model as the tool result, never surfaced as request
// failures.
func ParseArguments(raw string) (Query, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Query{}, errors.New("tool arguments are empty")
	}
	if !gjson.Valid(trimmed) {
		return Query{}, fmt.Errorf("tool arguments are not valid JSON: %s", preview(trimmed))
	}
	q := strings.TrimSpace(gjson.Get(trimmed, "query").String())
	if q == "" {
		return Query{}, errors.New("tool arguments are missing a query")
	}
	max := int(gjson.Get(trimmed, "maxResults").Int())
	if max <= 0 {
		max = DefaultLimit
	}
	if max > MaxLimit {
		max = MaxLimit
	}
	return Query{Query: q, MaxResults: max}, nil
}

func preview(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}

// Library is an in-memory bookmark collection with keyword search.
type Library struct {
	items []Bookmark
}

// NewLibrary wraps the caller-supplied bookmarks.
func NewLibrary(items []Bookmark) *Library {
	return &Library{items: items}
}

// Len reports the number of bookmarks.
func (l *Library) Len() int { return len(l.items) }

// Search scores every bookmark against the query tokens and returns
// the top matches, best first. Ties keep library order.
func (l *Library) Search(q Query) []Result {
	tokens := strings.Fields(strings.ToLower(q.Query))
	if len(tokens) == 0 {
		return nil
	}

	var hits []Result
	for _, b := range l.items {
		score := relevance(b, q.Query, tokens)
		if score <= 0 {
			continue
		}
		hits = append(hits, Result{
			ID:          b.ID,
			Kind:        "bookmark",
			Title:       b.Title,
			URL:         b.URL,
			Description: b.Description,
			Score:       score,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	limit := q.MaxResults
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

func relevance(b Bookmark, query string, tokens []string) float64 {
	var score float64
	if strings.EqualFold(strings.TrimSpace(b.Title), strings.TrimSpace(query)) {
		score += 100
	}

	title := strings.ToLower(b.Title)
	desc := strings.ToLower(b.Description)
	url := strings.ToLower(b.URL)
	for _, tok := range tokens {
		if strings.Contains(title, tok) {
			score += 30
		}
		for _, tag := range b.Tags {
			tag = strings.ToLower(tag)
			if tag == tok {
				score += 25
			} else if strings.Contains(tag, tok) {
				score += 10
			}
		}
		if strings.Contains(desc, tok) {
			score += 10
		}
		if strings.Contains(url, tok) {
			score += 5
		}
	}
	return score
}

// ResultsJSON renders search hits as the JSON array fed back to the
// model in the tool result message.
func ResultsJSON(results []Result) string {
	if len(results) == 0 {
		return "[]"
	}
	data, err := json.Marshal(results)
	if err != nil {
		return "[]"
	}
	return string(data)
}
