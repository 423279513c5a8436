// Package llm normalizes the two supported upstream wire protocols,
// chat-completions style and responses style, behind one message and
// event vocabulary.
package llm

import (
	"context"

	"github.com/linkmind/linkmind/internal/events"
)

// APIMode selects which upstream wire protocol a call uses.
type APIMode string

const (
	APIModeChatCompletions APIMode = "chat_completions"
	APIModeResponses       APIMode = "responses"
)

// ParseAPIMode normalizes a caller-supplied mode string. Empty input
// returns the fallback; anything unrecognized returns false.
func ParseAPIMode(s string, fallback APIMode) (APIMode, bool) {
	switch APIMode(s) {
	case "":
		return fallback, true
	case APIModeChatCompletions:
		return APIModeChatCompletions, true
	case APIModeResponses:
		return APIModeResponses, true
	default:
		return fallback, false
	}
}

// Message roles in the canonical conversation representation.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of the outbound conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// ToolCalls is set on assistant messages that requested tool calls.
	ToolCalls []ToolCall `json:"toolCalls,omitempty"`
	// ToolCallID is set on tool messages and names the call being answered.
	ToolCallID string `json:"toolCallId,omitempty"`
}

// SystemMessage builds a system message.
func SystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// UserMessage builds a user message.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// AssistantMessage builds a plain assistant message.
func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolResultMessage builds a tool message answering one tool call.
func ToolResultMessage(callID, content string) Message {
	return Message{Role: RoleTool, Content: content, ToolCallID: callID}
}

// ToolCall is a model-requested invocation of a tool.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON payload
}

// Tool describes a callable tool offered to the upstream.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolChoice is the tool-choice policy sent upstream. The empty value
// means tool calling is disabled entirely (no tools are sent).
type ToolChoice string

const (
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceRequired ToolChoice = "required"
)

// Default request parameter values applied when the caller does not
// override them.
const (
	DefaultTemperature     = 0.7
	DefaultTopP            = 1.0
	DefaultMaxOutputTokens = 8192
	DefaultReasoningEffort = "low"
)

// Params are the fully-resolved upstream request parameters for one
// turn. The driver rebuilds them every turn; turn >= 1 always relaxes
// ToolChoice to auto.
type Params struct {
	Model             string
	Temperature       float64
	TopP              float64
	MaxOutputTokens   int64
	ReasoningEffort   string
	Tools             []Tool
	ToolChoice        ToolChoice
	ParallelToolCalls bool
}

// DefaultParams returns Params for model with every default applied and
// tool calling disabled.
func DefaultParams(model string) Params {
	return Params{
		Model:           model,
		Temperature:     DefaultTemperature,
		TopP:            DefaultTopP,
		MaxOutputTokens: DefaultMaxOutputTokens,
		ReasoningEffort: DefaultReasoningEffort,
	}
}

// Reply is the normalized final message of one upstream call,
// independent of API mode and of whether the call was streamed.
// Refusals are already folded into Text (refusal-as-content).
type Reply struct {
	ID         string
	Model      string
	Text       string
	StopReason string
	ToolCalls  []ToolCall
}

// Caller exposes the two upstream call primitives. Implemented by
// Adapter; the pipeline depends on this interface so tests can
// substitute a fake upstream.
type Caller interface {
	// Complete issues one buffered call and returns the normalized reply.
	Complete(ctx context.Context, p Params, msgs []Message) (*Reply, error)
	// Stream issues one streaming call, sending message_start and
	// message_delta events to sink as they arrive. It never sends
	// message_done; the terminal event belongs to the turn loop.
	Stream(ctx context.Context, p Params, msgs []Message, sink events.Sink) (*Reply, error)
}
