package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/responses"
	"github.com/openai/openai-go/v3/shared"

	"github.com/linkmind/linkmind/internal/events"
)

func responsesParams(p Params, msgs []Message) responses.ResponseNewParams {
	items, instructions := responsesInput(msgs)
	params := responses.ResponseNewParams{
		Model:           shared.ResponsesModel(p.Model),
		Input:           responses.ResponseNewParamsInputUnion{OfInputItemList: items},
		Temperature:     openai.Float(p.Temperature),
		TopP:            openai.Float(p.TopP),
		MaxOutputTokens: openai.Int(p.MaxOutputTokens),
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	if p.ReasoningEffort != "" {
		params.Reasoning = shared.ReasoningParam{
			Effort: shared.ReasoningEffort(p.ReasoningEffort),
		}
	}
	if len(p.Tools) > 0 && p.ToolChoice != "" {
		params.Tools = responsesTools(p.Tools)
		params.ToolChoice = responsesToolChoice(p.ToolChoice)
		params.ParallelToolCalls = openai.Bool(p.ParallelToolCalls)
	}
	return params
}

// responsesInput converts the canonical conversation to responses-API
// input items. System messages become the instructions field, which
// the responses API expects instead of inline system entries.
func responsesInput(msgs []Message) (responses.ResponseInputParam, string) {
	items := make(responses.ResponseInputParam, 0, len(msgs))
	var instructions []string
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			if m.Content != "" {
				instructions = append(instructions, m.Content)
			}
		case RoleAssistant:
			if m.Content != "" {
				items = append(items, assistantOutputItem(m.Content))
			}
			for _, tc := range m.ToolCalls {
				items = append(items, responses.ResponseInputItemParamOfFunctionCall(tc.Arguments, tc.ID, tc.Name))
			}
		case RoleTool:
			items = append(items, responses.ResponseInputItemParamOfFunctionCallOutput(m.ToolCallID, m.Content))
		default:
			content := responses.ResponseInputMessageContentListParam{
				responses.ResponseInputContentParamOfInputText(m.Content),
			}
			items = append(items, responses.ResponseInputItemParamOfMessage(content, responses.EasyInputMessageRole(m.Role)))
		}
	}
	return items, strings.Join(instructions, "\n\n")
}

// assistantOutputItem wraps prior assistant text as an output message.
// The responses API rejects assistant turns submitted as input_text.
func assistantOutputItem(text string) responses.ResponseInputItemUnionParam {
	content := []responses.ResponseOutputMessageContentUnionParam{
		{OfOutputText: &responses.ResponseOutputTextParam{Text: text}},
	}
	return responses.ResponseInputItemParamOfOutputMessage(content, "", responses.ResponseOutputMessageStatusCompleted)
}

func responsesTools(tools []Tool) []responses.ToolUnionParam {
	out := make([]responses.ToolUnionParam, 0, len(tools))
	for _, t := range tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		ft := responses.FunctionToolParam{
			Name:       t.Name,
			Parameters: params,
			Strict:     openai.Bool(false),
		}
		if t.Description != "" {
			ft.Description = openai.String(t.Description)
		}
		out = append(out, responses.ToolUnionParam{OfFunction: &ft})
	}
	return out
}

func responsesToolChoice(tc ToolChoice) responses.ResponseNewParamsToolChoiceUnion {
	switch tc {
	case ToolChoiceNone:
		return responses.ResponseNewParamsToolChoiceUnion{
			OfToolChoiceMode: openai.Opt(responses.ToolChoiceOptionsNone),
		}
	case ToolChoiceRequired:
		return responses.ResponseNewParamsToolChoiceUnion{
			OfToolChoiceMode: openai.Opt(responses.ToolChoiceOptionsRequired),
		}
	default:
		return responses.ResponseNewParamsToolChoiceUnion{
			OfToolChoiceMode: openai.Opt(responses.ToolChoiceOptionsAuto),
		}
	}
}

// responsesStopReason maps a response status to the chat-style stop
// reason vocabulary the rest of the pipeline consumes.
func responsesStopReason(status string, hasToolCalls bool) string {
	if hasToolCalls {
		return "tool_calls"
	}
	switch status {
	case "completed":
		return "stop"
	case "incomplete":
		return "length"
	default:
		return status
	}
}

func (a *Adapter) completeResponses(ctx context.Context, p Params, msgs []Message) (*Reply, error) {
	resp, err := a.client.Responses.New(ctx, responsesParams(p, msgs), a.callOpts()...)
	if err != nil {
		return nil, fmt.Errorf("responses completion: %w", err)
	}

	var (
		text    strings.Builder
		refusal strings.Builder
		calls   []ToolCall
	)
	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			for _, c := range item.Content {
				switch c.Type {
				case "output_text":
					text.WriteString(c.Text)
				case "refusal":
					refusal.WriteString(c.Refusal)
				}
			}
		case "function_call":
			calls = append(calls, responsesToolCall(item.CallID, item.ID, item.Name, item.Arguments))
		}
	}

	reply := &Reply{
		ID:         resp.ID,
		Model:      string(resp.Model),
		Text:       text.String(),
		StopReason: responsesStopReason(string(resp.Status), len(calls) > 0),
		ToolCalls:  calls,
	}
	if reply.Text == "" && refusal.Len() > 0 {
		reply.Text = refusal.String()
	}
	return reply, nil
}

func (a *Adapter) streamResponses(ctx context.Context, p Params, msgs []Message, sink events.Sink) (*Reply, error) {
	stream := a.client.Responses.NewStreaming(ctx, responsesParams(p, msgs), a.callOpts()...)
	defer stream.Close()

	var (
		started bool
		buf     strings.Builder
		refusal strings.Builder
		calls   []ToolCall
		id      string
		model   string
		status  string
	)
	for stream.Next() {
		evt := stream.Current()
		switch evt.Type {
		case "response.created":
			id = evt.Response.ID
			model = string(evt.Response.Model)
			if model == "" {
				model = p.Model
			}
			if !started {
				if err := a.sendStart(ctx, sink, id, model); err != nil {
					return nil, err
				}
				started = true
			}
		case "response.output_text.delta":
			if evt.Delta == "" {
				continue
			}
			if !started {
				if err := a.sendStart(ctx, sink, id, p.Model); err != nil {
					return nil, err
				}
				started = true
			}
			if err := sink.Send(ctx, events.DeltaEvent(evt.Delta)); err != nil {
				return nil, err
			}
			buf.WriteString(evt.Delta)
		case "response.output_item.done":
			item := evt.Item
			switch item.Type {
			case "function_call":
				calls = append(calls, responsesToolCall(item.CallID, item.ID, item.Name, item.Arguments))
			case "message":
				// Text already arrived through deltas; only refusal
				// parts carry new information here.
				for _, c := range item.Content {
					if c.Type == "refusal" {
						refusal.WriteString(c.Refusal)
					}
				}
			}
		case "response.completed", "response.incomplete":
			if evt.Response.ID != "" {
				id = evt.Response.ID
			}
			status = string(evt.Response.Status)
		case "response.failed":
			msg := evt.Response.Error.Message
			if msg == "" {
				msg = "response stream reported failure"
			}
			return nil, fmt.Errorf("responses stream: %s", msg)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("responses stream: %w", err)
	}

	reply := &Reply{
		ID:         id,
		Model:      model,
		Text:       buf.String(),
		StopReason: responsesStopReason(status, len(calls) > 0),
		ToolCalls:  calls,
	}
	if reply.Model == "" {
		reply.Model = p.Model
	}
	if reply.Text == "" && refusal.Len() > 0 {
		reply.Text = refusal.String()
	}
	return reply, nil
}

func responsesToolCall(callID, itemID, name, arguments string) ToolCall {
	id := callID
	if id == "" {
		id = itemID
	}
	if id == "" {
		id = syntheticID("call")
	}
	return ToolCall{ID: id, Name: name, Arguments: arguments}
}
