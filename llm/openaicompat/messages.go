package openaicompat

import (
	"fmt"

	oa "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/shared"

	base "github.com/black-roland/homeassistant-yandexgpt/llm"
)

// toOAMessages maps provider messages. Tool results without a call id take
// the id of the call at the same position in the preceding tool-call event.
func toOAMessages(in []base.ProviderMessage) ([]oa.ChatCompletionMessageParamUnion, error) {
	out := make([]oa.ChatCompletionMessageParamUnion, 0, len(in))
	var lastCalls []base.ToolCall
	for _, m := range in {
		switch {
		case m.ToolCallEvent != nil:
			alt, ok := m.ToolCallEvent.First()
			if !ok {
				return nil, fmt.Errorf("openaicompat: tool call event without alternatives: %w", base.ErrPrecondition)
			}
			lastCalls = alt.ToolCalls
			asst := oa.ChatCompletionAssistantMessageParam{}
			if alt.Text != "" {
				asst.Content.OfString = oa.String(alt.Text)
			}
			for _, tc := range alt.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, oa.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &oa.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: oa.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: tc.Arguments,
						},
					},
				})
			}
			out = append(out, oa.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case m.IsToolResults():
			for i, r := range m.ToolResults {
				id := r.CallID
				if id == "" && i < len(lastCalls) {
					id = lastCalls[i].ID
				}
				out = append(out, oa.ToolMessage(r.Content, id))
			}
		case m.Role == base.RoleSystem:
			out = append(out, oa.SystemMessage(m.Text))
		case m.Role == base.RoleAssistant:
			out = append(out, oa.AssistantMessage(m.Text))
		case m.Role == base.RoleUser:
			out = append(out, oa.UserMessage(m.Text))
		default:
			return nil, fmt.Errorf("openaicompat: role %q: %w", m.Role, base.ErrUnsupportedContent)
		}
	}
	return out, nil
}

func toOATools(tools []base.FunctionTool) []oa.ChatCompletionToolUnionParam {
	out := make([]oa.ChatCompletionToolUnionParam, 0, len(tools))
	for _, t := range tools {
		fn := shared.FunctionDefinitionParam{Name: t.Name}
		if t.Description != "" {
			fn.Description = oa.String(t.Description)
		}
		if t.Parameters != nil {
			fn.Parameters = shared.FunctionParameters(t.Parameters)
		}
		out = append(out, oa.ChatCompletionFunctionTool(fn))
	}
	return out
}
