package foundation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"

	base "github.com/black-roland/homeassistant-yandexgpt/llm"
)

type completionRequest struct {
	ModelURI          string            `json:"modelUri"`
	CompletionOptions completionOptions `json:"completionOptions"`
	Messages          []json.RawMessage `json:"messages"`
	Tools             []wireTool        `json:"tools,omitempty"`
}

type completionOptions struct {
	Stream      bool     `json:"stream"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   string   `json:"maxTokens,omitempty"`
}

type wireMessage struct {
	Role           string          `json:"role"`
	Text           string          `json:"text,omitempty"`
	ToolCallList   *toolCallList   `json:"toolCallList,omitempty"`
	ToolResultList *toolResultList `json:"toolResultList,omitempty"`
}

type toolCallList struct {
	ToolCalls []wireToolCall `json:"toolCalls"`
}

type wireToolCall struct {
	FunctionCall functionCall `json:"functionCall"`
}

type functionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type toolResultList struct {
	ToolResults []wireToolResult `json:"toolResults"`
}

type wireToolResult struct {
	FunctionResult functionResult `json:"functionResult"`
}

type functionResult struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

type wireTool struct {
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type completionResult struct {
	Alternatives []wireAlternative `json:"alternatives"`
	Usage        *wireUsage        `json:"usage,omitempty"`
	ModelVersion string            `json:"modelVersion,omitempty"`
}

type wireAlternative struct {
	Message json.RawMessage `json:"message"`
	Status  string          `json:"status"`
}

type wireUsage struct {
	InputTextTokens  flexInt `json:"inputTextTokens"`
	CompletionTokens flexInt `json:"completionTokens"`
	TotalTokens      flexInt `json:"totalTokens"`
}

// flexInt accepts int64 values encoded either as numbers or strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseInt(string(b), 10, 64)
	if err != nil {
		return err
	}
	*f = flexInt(v)
	return nil
}

type rpcError struct {
	GRPCCode   int    `json:"grpcCode,omitempty"`
	HTTPCode   int    `json:"httpCode,omitempty"`
	Code       int    `json:"code,omitempty"`
	Message    string `json:"message"`
	HTTPStatus string `json:"httpStatus,omitempty"`
}

type streamLine struct {
	Result *completionResult `json:"result,omitempty"`
	Error  *rpcError         `json:"error,omitempty"`
}

func encodeMessages(msgs []base.ProviderMessage) ([]json.RawMessage, error) {
	out := make([]json.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		raw, err := encodeMessage(m)
		if err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, nil
}

func encodeMessage(m base.ProviderMessage) (json.RawMessage, error) {
	switch {
	case m.ToolCallEvent != nil:
		alt, ok := m.ToolCallEvent.First()
		if !ok {
			return nil, fmt.Errorf("tool call event without alternatives: %w", base.ErrPrecondition)
		}
		if len(alt.Raw) > 0 {
			return alt.Raw, nil
		}
		calls := make([]wireToolCall, 0, len(alt.ToolCalls))
		for _, c := range alt.ToolCalls {
			calls = append(calls, wireToolCall{FunctionCall: functionCall{Name: c.Name, Arguments: rawArguments(c.Arguments)}})
		}
		return json.Marshal(wireMessage{Role: string(base.RoleAssistant), ToolCallList: &toolCallList{ToolCalls: calls}})
	case m.IsToolResults():
		results := make([]wireToolResult, 0, len(m.ToolResults))
		for _, r := range m.ToolResults {
			results = append(results, wireToolResult{FunctionResult: functionResult{Name: r.Name, Content: r.Content}})
		}
		return json.Marshal(wireMessage{Role: string(m.Role), ToolResultList: &toolResultList{ToolResults: results}})
	default:
		return json.Marshal(wireMessage{Role: string(m.Role), Text: m.Text})
	}
}

// rawArguments keeps valid JSON as-is and quotes anything else.
func rawArguments(s string) json.RawMessage {
	if s == "" {
		return nil
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

func encodeTools(tools []base.FunctionTool) []wireTool {
	if len(tools) == 0 {
		return nil
	}
	out := make([]wireTool, 0, len(tools))
	for _, t := range tools {
		out = append(out, wireTool{Function: wireFunction{Name: t.Name, Description: t.Description, Parameters: t.Parameters}})
	}
	return out
}

func decodeResult(r *completionResult) (*base.PartialResult, error) {
	out := &base.PartialResult{ModelVersion: r.ModelVersion}
	if r.Usage != nil {
		out.Usage = &base.Usage{
			InputTokens:  int(r.Usage.InputTextTokens),
			OutputTokens: int(r.Usage.CompletionTokens),
			TotalTokens:  int(r.Usage.TotalTokens),
		}
	}
	for _, a := range r.Alternatives {
		var msg wireMessage
		if len(a.Message) > 0 {
			if err := json.Unmarshal(a.Message, &msg); err != nil {
				return nil, fmt.Errorf("decode alternative message: %w", err)
			}
		}
		alt := base.Alternative{
			Role:   base.Role(msg.Role),
			Text:   msg.Text,
			Status: base.Status(a.Status),
			Raw:    a.Message,
		}
		if msg.ToolCallList != nil {
			for _, c := range msg.ToolCallList.ToolCalls {
				alt.ToolCalls = append(alt.ToolCalls, base.ToolCall{
					Name:      c.FunctionCall.Name,
					Arguments: string(c.FunctionCall.Arguments),
				})
			}
		}
		out.Alternatives = append(out.Alternatives, alt)
	}
	return out, nil
}
