// Package pipeline drives assistant requests through admission control,
// the upstream adapter, the bounded tool loop, and reply rendering.
package pipeline

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/linkmind/linkmind/internal/admission"
	"github.com/linkmind/linkmind/internal/bookmarks"
	"github.com/linkmind/linkmind/internal/classify"
	"github.com/linkmind/linkmind/internal/config"
	"github.com/linkmind/linkmind/internal/convo"
	"github.com/linkmind/linkmind/internal/events"
	"github.com/linkmind/linkmind/internal/llm"
	"github.com/linkmind/linkmind/internal/models"
	"github.com/linkmind/linkmind/internal/render"
)

//go:embed prompts/chat.md
var defaultChatPrompt string

//go:embed prompts/analysis.md
var defaultAnalysisPrompt string

// CallerFactory builds the upstream caller for a resolved feature.
// Overridable so tests can substitute a scripted upstream.
type CallerFactory func(feature config.FeatureConfig, mode llm.APIMode) llm.Caller

// Driver orchestrates chat and analysis invocations. All fields except
// Config are optional; a nil Convo disables history, a nil Queue is
// created on demand, and nil prompts fall back to the embedded ones.
type Driver struct {
	Config  *config.ServerConfig
	Convo   *convo.Store
	Queue   *admission.Queue
	Callers CallerFactory
	// HTTPClient carries gateway credentials when the upstream sits
	// behind an OAuth2 token endpoint.
	HTTPClient     *http.Client
	ChatPrompt     string
	AnalysisPrompt string

	queueOnce sync.Once
}

// ChatRequest is one user turn against the chat feature.
type ChatRequest struct {
	ConversationID string
	Message        string
	// APIMode overrides the feature's configured API mode for this
	// request; unrecognized values fall back to the configured one.
	APIMode     string
	Temperature *float64
	Bookmarks   []bookmarks.Bookmark
	// Addendum is extra client-supplied context appended to the system
	// prompt, e.g. the page the user is currently on.
	Addendum string
}

// ChatResult is the resolved reply for one chat invocation.
type ChatResult struct {
	ConversationID string  `json:"conversationId"`
	ID             string  `json:"id"`
	Model          string  `json:"model"`
	APIMode        string  `json:"apiMode"`
	Message        string  `json:"message"`
	ToolTurns      int     `json:"toolTurns"`
	Outcome        Outcome `json:"outcome"`
}

// Chat runs one user turn. When sink is non-nil the first upstream call
// streams and forwards message_start/message_delta events; the terminal
// message_done is always emitted by this method, exactly once, after
// rendering. Errors are classified; callers decide whether a cancelled
// outcome is worth reporting.
func (d *Driver) Chat(ctx context.Context, req ChatRequest, sink events.Sink) (*ChatResult, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, fmt.Errorf("chat: empty message")
	}
	fc, err := d.Config.Feature(config.FeatureChat)
	if err != nil {
		return nil, err
	}
	mode := resolveMode(fc, req.APIMode)

	params := llm.DefaultParams(fc.Model)
	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}

	library := bookmarks.NewLibrary(req.Bookmarks)
	caps := models.Lookup(fc.Model)
	if caps.SupportsTools {
		params.Tools = []llm.Tool{bookmarks.ToolDefinition()}
		params.ParallelToolCalls = false
	}

	st := &turnState{
		driver:   d,
		feature:  fc,
		mode:     mode,
		caller:   d.caller(fc, mode),
		library:  library,
		caps:     caps,
		params:   params,
		messages: d.chatMessages(req),
		maxTurns: d.maxToolTurns(),
	}
	if sink != nil {
		st.sink = &countingSink{sink: sink}
	}

	d.logChatRequest(req, fc, mode, st)

	if err := st.run(ctx); err != nil {
		return nil, err
	}

	final := st.reply.Text
	if st.turn > 0 {
		final = render.Final(st.reply.Text, st.results)
	}

	// A reply that produced no deltas still reaches stream consumers as
	// one delta carrying the whole text, so every stream ends with the
	// same delta-then-done shape. Post-tool turns skip the delta: their
	// text was withheld on purpose.
	if sink != nil {
		if st.turn == 0 && st.sink.deltas == 0 && final != "" {
			_ = sink.Send(ctx, events.DeltaEvent(final))
		}
		_ = sink.Send(ctx, events.DoneEvent(final))
	}

	convID := d.persist(req, st, final)

	model := st.reply.Model
	if model == "" {
		model = fc.Model
	}
	return &ChatResult{
		ConversationID: convID,
		ID:             st.reply.ID,
		Model:          model,
		APIMode:        string(mode),
		Message:        final,
		ToolTurns:      st.turn,
		Outcome:        st.outcome,
	}, nil
}

// caller builds the upstream client for a resolved feature.
func (d *Driver) caller(fc config.FeatureConfig, mode llm.APIMode) llm.Caller {
	if d.Callers != nil {
		return d.Callers(fc, mode)
	}
	return llm.New(llm.Options{
		BaseURL:        fc.BaseURL,
		APIKey:         d.Config.Upstream.APIKey,
		Mode:           mode,
		HTTPClient:     d.HTTPClient,
		RequestTimeout: d.Config.RequestTimeout(),
	})
}

// withSlot runs one upstream call under the feature's admission gate.
func (d *Driver) withSlot(ctx context.Context, fc config.FeatureConfig, mode llm.APIMode, model string, fn func(context.Context) error) error {
	key := admission.Key{BaseURL: fc.BaseURL, Model: model, Mode: string(mode)}
	return d.queue().WithSlot(ctx, key, fc.MaxParallel, fn)
}

func (d *Driver) queue() *admission.Queue {
	d.queueOnce.Do(func() {
		if d.Queue == nil {
			d.Queue = admission.NewQueue()
		}
	})
	return d.Queue
}

func (d *Driver) maxToolTurns() int {
	if d.Config != nil && d.Config.MaxToolTurns > 0 {
		return d.Config.MaxToolTurns
	}
	return config.DefaultMaxToolTurns
}

// chatMessages assembles system prompt, stored history, and the new
// user turn into the outbound conversation.
func (d *Driver) chatMessages(req ChatRequest) []llm.Message {
	system := strings.TrimSpace(d.ChatPrompt)
	if system == "" {
		system = strings.TrimSpace(defaultChatPrompt)
	}
	if addendum := strings.TrimSpace(req.Addendum); addendum != "" {
		system += "\n\n" + addendum
	}

	msgs := []llm.Message{llm.SystemMessage(system)}
	if d.Convo != nil && req.ConversationID != "" {
		if history, ok := d.Convo.History(req.ConversationID); ok {
			msgs = append(msgs, history...)
		}
	}
	return append(msgs, llm.UserMessage(req.Message))
}

// persist appends this turn's traffic to the conversation store and
// returns the conversation id, minting one for new conversations.
func (d *Driver) persist(req ChatRequest, st *turnState, final string) string {
	if d.Convo == nil {
		return req.ConversationID
	}
	turn := []llm.Message{llm.UserMessage(req.Message)}
	turn = append(turn, st.transcript()...)
	turn = append(turn, llm.AssistantMessage(final))
	return d.Convo.Append(req.ConversationID, turn...)
}

func (d *Driver) logChatRequest(req ChatRequest, fc config.FeatureConfig, mode llm.APIMode, st *turnState) {
	if d.Config == nil || !d.Config.Verbose {
		return
	}
	slog.Info("chat.request",
		"model", fc.Model,
		"api_mode", string(mode),
		"stream", st.sink != nil,
		"conversation", req.ConversationID != "",
		"messages", len(st.messages),
		"bookmarks", st.library.Len(),
		"tools", len(st.params.Tools),
		"max_tool_turns", st.maxTurns,
	)
}

// --- helpers ---

// resolveMode layers the per-request override over the feature config.
func resolveMode(fc config.FeatureConfig, override string) llm.APIMode {
	mode, _ := llm.ParseAPIMode(fc.APIMode, llm.APIModeChatCompletions)
	mode, _ = llm.ParseAPIMode(override, mode)
	return mode
}

// classified wraps upstream-call failures once; already-classified
// errors pass through unchanged.
func classified(err error) error {
	if err == nil {
		return nil
	}
	var c *classify.Classified
	if errors.As(err, &c) {
		return err
	}
	return classify.Classify(err)
}

// countingSink forwards events while counting forwarded deltas, so the
// driver knows whether a stream needs the synthesized single delta.
type countingSink struct {
	sink   events.Sink
	deltas int
}

func (c *countingSink) Send(ctx context.Context, evt events.Event) error {
	if evt.Type == events.TypeMessageDelta {
		c.deltas++
	}
	return c.sink.Send(ctx, evt)
}
