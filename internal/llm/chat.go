package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	"github.com/linkmind/linkmind/internal/events"
)

func chatParams(p Params, msgs []Message) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(p.Model),
		Messages:    chatMessages(msgs),
		Temperature: openai.Float(p.Temperature),
		TopP:        openai.Float(p.TopP),
		MaxTokens:   openai.Int(p.MaxOutputTokens),
	}
	if p.ReasoningEffort != "" {
		params.ReasoningEffort = shared.ReasoningEffort(p.ReasoningEffort)
	}
	if len(p.Tools) > 0 && p.ToolChoice != "" {
		params.Tools = chatTools(p.Tools)
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(string(p.ToolChoice)),
		}
		params.ParallelToolCalls = openai.Bool(p.ParallelToolCalls)
	}
	return params
}

func chatMessages(msgs []Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case RoleAssistant:
			if len(m.ToolCalls) > 0 {
				out = append(out, assistantToolCallMessage(m))
			} else {
				out = append(out, openai.AssistantMessage(m.Content))
			}
		case RoleTool:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func assistantToolCallMessage(m Message) openai.ChatCompletionMessageParamUnion {
	calls := make([]openai.ChatCompletionMessageToolCallUnionParam, 0, len(m.ToolCalls))
	for _, tc := range m.ToolCalls {
		fn := openai.ChatCompletionMessageFunctionToolCallParam{
			ID: tc.ID,
			Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
				Name:      tc.Name,
				Arguments: tc.Arguments,
			},
		}
		calls = append(calls, openai.ChatCompletionMessageToolCallUnionParam{OfFunction: &fn})
	}
	msg := openai.ChatCompletionAssistantMessageParam{ToolCalls: calls}
	if m.Content != "" {
		msg.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(m.Content),
		}
	}
	return openai.ChatCompletionMessageParamUnion{OfAssistant: &msg}
}

func chatTools(tools []Tool) []openai.ChatCompletionToolUnionParam {
	out := make([]openai.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		fn := shared.FunctionDefinitionParam{
			Name:       t.Name,
			Parameters: shared.FunctionParameters(t.Parameters),
		}
		if t.Description != "" {
			fn.Description = openai.String(t.Description)
		}
		out = append(out, openai.ChatCompletionFunctionTool(fn))
	}
	return out
}

func chatToolCalls(calls []openai.ChatCompletionMessageToolCallUnion) []ToolCall {
	var out []ToolCall
	for _, tc := range calls {
		if tc.Function.Name == "" {
			continue
		}
		id := tc.ID
		if id == "" {
			id = syntheticID("call")
		}
		out = append(out, ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

func (a *Adapter) completeChat(ctx context.Context, p Params, msgs []Message) (*Reply, error) {
	resp, err := a.client.Chat.Completions.New(ctx, chatParams(p, msgs), a.callOpts()...)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion: upstream returned no choices")
	}
	choice := resp.Choices[0]
	text := choice.Message.Content
	if text == "" && choice.Message.Refusal != "" {
		text = choice.Message.Refusal
	}
	return &Reply{
		ID:         resp.ID,
		Model:      resp.Model,
		Text:       text,
		StopReason: choice.FinishReason,
		ToolCalls:  chatToolCalls(choice.Message.ToolCalls),
	}, nil
}

func (a *Adapter) streamChat(ctx context.Context, p Params, msgs []Message, sink events.Sink) (*Reply, error) {
	stream := a.client.Chat.Completions.NewStreaming(ctx, chatParams(p, msgs), a.callOpts()...)
	defer stream.Close()

	var (
		acc     openai.ChatCompletionAccumulator
		buf     strings.Builder
		started bool
	)
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)
		if !started {
			model := chunk.Model
			if model == "" {
				model = p.Model
			}
			if err := a.sendStart(ctx, sink, chunk.ID, model); err != nil {
				return nil, err
			}
			started = true
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		// Refusal fragments are not forwarded as deltas; the
		// accumulated refusal surfaces once in the final reply.
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			if err := sink.Send(ctx, events.DeltaEvent(delta)); err != nil {
				return nil, err
			}
			buf.WriteString(delta)
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("chat stream: %w", err)
	}

	reply := &Reply{ID: acc.ID, Model: acc.Model, Text: buf.String()}
	if reply.Model == "" {
		reply.Model = p.Model
	}
	if len(acc.Choices) > 0 {
		choice := acc.Choices[0]
		reply.StopReason = choice.FinishReason
		reply.ToolCalls = chatToolCalls(choice.Message.ToolCalls)
		if reply.Text == "" && choice.Message.Refusal != "" {
			reply.Text = choice.Message.Refusal
		}
	}
	return reply, nil
}
