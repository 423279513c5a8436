package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/linkmind/linkmind/internal/bookmarks"
	"github.com/linkmind/linkmind/internal/config"
	"github.com/linkmind/linkmind/internal/events"
	"github.com/linkmind/linkmind/internal/llm"
	"github.com/linkmind/linkmind/internal/models"
)

// Outcome is the terminal state of a turn transition.
type Outcome string

const (
	// OutcomeDone ends the loop with a textual reply.
	OutcomeDone Outcome = "done"
	// OutcomeToolCall hands control to tool execution and another turn.
	OutcomeToolCall Outcome = "tool_call"
	// OutcomeBudgetExhausted ends the loop because tool calls persisted
	// past the turn budget. The pending calls are not executed and the
	// last text stands, possibly empty.
	OutcomeBudgetExhausted Outcome = "turn_budget_exhausted"
)

// turnState carries one chat invocation through the bounded tool loop.
// turn counts completed tool executions; the first upstream call runs
// at turn 0.
type turnState struct {
	driver   *Driver
	feature  config.FeatureConfig
	mode     llm.APIMode
	caller   llm.Caller
	library  *bookmarks.Library
	caps     models.Capabilities
	params   llm.Params
	messages []llm.Message
	maxTurns int
	sink     *countingSink // nil for buffered invocations

	baseLen int
	turn    int
	results []bookmarks.Result
	reply   *llm.Reply
	outcome Outcome
}

// run advances the loop until a terminal outcome: done when the model
// answers in text, turn_budget_exhausted when tool calls outlast the
// budget. Each upstream call holds an admission slot only for its own
// duration.
func (s *turnState) run(ctx context.Context) error {
	s.baseLen = len(s.messages)
	for {
		reply, err := s.call(ctx)
		if err != nil {
			return err
		}
		s.reply = reply

		switch out := s.step(reply); out {
		case OutcomeToolCall:
			s.execute(reply)
			s.turn++
		default:
			s.outcome = out
			return nil
		}
	}
}

// step is the transition function for one resolved turn.
func (s *turnState) step(reply *llm.Reply) Outcome {
	if len(reply.ToolCalls) == 0 {
		return OutcomeDone
	}
	if s.turn >= s.maxTurns {
		return OutcomeBudgetExhausted
	}
	return OutcomeToolCall
}

// call issues one upstream turn under admission. Only the first turn of
// a streaming invocation streams: follow-up text after a tool call is
// withheld until the verbatim-vs-deterministic decision is made, so
// per-token deltas from those turns would leak text the caller may
// never see.
func (s *turnState) call(ctx context.Context) (*llm.Reply, error) {
	params := s.params
	params.ToolChoice = s.toolChoice()

	var reply *llm.Reply
	err := s.driver.withSlot(ctx, s.feature, s.mode, params.Model, func(ctx context.Context) error {
		var callErr error
		if s.sink != nil && s.turn == 0 {
			reply, callErr = s.caller.Stream(ctx, params, s.messages, s.sink)
		} else {
			reply, callErr = s.caller.Complete(ctx, params, s.messages)
		}
		return callErr
	})
	if err != nil {
		return nil, classified(err)
	}
	return reply, nil
}

// toolChoice applies the per-turn policy: the first turn forces the
// search when the library has anything to find and the model family
// honors a required tool choice; every later turn is auto, so the
// model can stop calling tools and answer.
func (s *turnState) toolChoice() llm.ToolChoice {
	if len(s.params.Tools) == 0 {
		return ""
	}
	if s.turn > 0 {
		return llm.ToolChoiceAuto
	}
	if s.library.Len() > 0 && s.caps.SupportsRequiredToolChoice {
		return llm.ToolChoiceRequired
	}
	return llm.ToolChoiceAuto
}

// execute runs the turn's tool calls and appends the call/result pairs
// to the conversation for the follow-up turn.
func (s *turnState) execute(reply *llm.Reply) {
	s.messages = append(s.messages, llm.Message{
		Role:      llm.RoleAssistant,
		Content:   reply.Text,
		ToolCalls: reply.ToolCalls,
	})
	for _, call := range reply.ToolCalls {
		s.messages = append(s.messages, llm.ToolResultMessage(call.ID, s.runTool(call)))
	}
}

// runTool executes a single tool call. Argument problems are reported
// back to the model as the tool result, not as request failures, so the
// follow-up turn can correct itself.
func (s *turnState) runTool(call llm.ToolCall) string {
	if call.Name != bookmarks.ToolName {
		return toolErrorJSON(fmt.Sprintf("unknown tool %s", call.Name))
	}
	q, err := bookmarks.ParseArguments(call.Arguments)
	if err != nil {
		slog.Debug("tool arguments rejected", "call_id", call.ID, "error", err)
		return toolErrorJSON(err.Error())
	}
	results := s.library.Search(q)
	s.results = append(s.results, results...)
	return bookmarks.ResultsJSON(results)
}

// transcript returns the tool traffic this invocation appended beyond
// the initial conversation, for persistence.
func (s *turnState) transcript() []llm.Message {
	return s.messages[s.baseLen:]
}

func toolErrorJSON(msg string) string {
	b, err := json.Marshal(map[string]string{"error": msg})
	if err != nil {
		return `{"error":"tool failed"}`
	}
	return string(b)
}

var _ events.Sink = (*countingSink)(nil)
