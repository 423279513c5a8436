package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/linkmind/linkmind/internal/analysis"
	"github.com/linkmind/linkmind/internal/bookmarks"
	"github.com/linkmind/linkmind/internal/config"
	"github.com/linkmind/linkmind/internal/llm"
)

// maxExcerptChars caps how much page text rides along with an analysis
// request; anything longer is cut to keep the prompt inside small local
// context windows.
const maxExcerptChars = 6000

// AnalyzeRequest asks for a structured description of one bookmark.
type AnalyzeRequest struct {
	Bookmark bookmarks.Bookmark
	// Content is an optional page excerpt supplied by the client.
	Content string
}

// Analyze produces a schema-conformant analysis of one bookmark. The
// upstream call is buffered and tool-free; invalid model output is
// retried with the identical request up to the attempt ceiling, and
// exhausting it surfaces the last validation error unchanged.
func (d *Driver) Analyze(ctx context.Context, req AnalyzeRequest) (*analysis.Payload, error) {
	if strings.TrimSpace(req.Bookmark.Title) == "" && strings.TrimSpace(req.Bookmark.URL) == "" {
		return nil, fmt.Errorf("analyze: bookmark needs a title or url")
	}
	fc, err := d.Config.Feature(config.FeatureAnalysis)
	if err != nil {
		return nil, err
	}
	mode := resolveMode(fc, "")
	caller := d.caller(fc, mode)

	prompt := strings.TrimSpace(d.AnalysisPrompt)
	if prompt == "" {
		prompt = strings.TrimSpace(defaultAnalysisPrompt)
	}
	msgs := []llm.Message{
		llm.SystemMessage(prompt),
		llm.UserMessage(analyzeSubject(req)),
	}
	params := llm.DefaultParams(fc.Model)

	var lastInvalid error
	for attempt := 1; attempt <= analysis.DefaultMaxAttempts; attempt++ {
		var reply *llm.Reply
		err := d.withSlot(ctx, fc, mode, params.Model, func(ctx context.Context) error {
			var callErr error
			reply, callErr = caller.Complete(ctx, params, msgs)
			return callErr
		})
		if err != nil {
			return nil, classified(err)
		}

		payload, verr := analysis.Validate(reply.Text)
		if verr == nil {
			return payload, nil
		}
		lastInvalid = verr
		slog.Debug("analysis output rejected",
			"attempt", attempt,
			"model", params.Model,
			"error", verr,
		)
	}
	return nil, lastInvalid
}

// analyzeSubject renders the bookmark into the user message.
func analyzeSubject(req AnalyzeRequest) string {
	var b strings.Builder
	b.WriteString("Analyze this bookmark.\n")
	if v := strings.TrimSpace(req.Bookmark.Title); v != "" {
		fmt.Fprintf(&b, "Title: %s\n", v)
	}
	if v := strings.TrimSpace(req.Bookmark.URL); v != "" {
		fmt.Fprintf(&b, "URL: %s\n", v)
	}
	if v := strings.TrimSpace(req.Bookmark.Description); v != "" {
		fmt.Fprintf(&b, "Description: %s\n", v)
	}
	if len(req.Bookmark.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(req.Bookmark.Tags, ", "))
	}
	if content := strings.TrimSpace(req.Content); content != "" {
		if len(content) > maxExcerptChars {
			content = content[:maxExcerptChars]
		}
		b.WriteString("\nPage excerpt:\n")
		b.WriteString(content)
		b.WriteString("\n")
	}
	return b.String()
}
