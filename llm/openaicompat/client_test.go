package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	oa "github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	base "github.com/black-roland/homeassistant-yandexgpt/llm"
)

type fakeCore struct {
	chunks []oa.ChatCompletionChunk
	pos    int
	err    error
	closed bool
}

func (f *fakeCore) Next() bool {
	if f.pos >= len(f.chunks) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeCore) Current() oa.ChatCompletionChunk { return f.chunks[f.pos-1] }
func (f *fakeCore) Err() error                      { return f.err }
func (f *fakeCore) Close() error                    { f.closed = true; return nil }

func chunk(t *testing.T, raw string) oa.ChatCompletionChunk {
	t.Helper()
	var c oa.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	return c
}

func drain(t *testing.T, s base.Stream) []*base.PartialResult {
	t.Helper()
	var out []*base.PartialResult
	for {
		r, err := s.Recv(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, r)
	}
}

func TestChunkStreamAccumulatesText(t *testing.T) {
	core := &fakeCore{chunks: []oa.ChatCompletionChunk{
		chunk(t, `{"id":"1","model":"m","choices":[{"index":0,"delta":{"role":"assistant"}}]}`),
		chunk(t, `{"id":"1","model":"m","choices":[{"index":0,"delta":{"content":"При"}}]}`),
		chunk(t, `{"id":"1","model":"m","choices":[{"index":0,"delta":{"content":"вет"}}]}`),
		chunk(t, `{"id":"1","model":"m","choices":[{"index":0,"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`),
	}}
	s := &chunkStream{inner: core, calls: map[int64]*base.ToolCall{}}

	got := drain(t, s)
	require.Len(t, got, 3)
	assert.Equal(t, "При", got[0].Alternatives[0].Text)
	assert.Equal(t, base.StatusPartial, got[0].Alternatives[0].Status)
	assert.Equal(t, "Привет", got[1].Alternatives[0].Text)
	assert.Equal(t, "Привет", got[2].Alternatives[0].Text)
	assert.Equal(t, base.StatusFinal, got[2].Alternatives[0].Status)
	assert.Equal(t, &base.Usage{InputTokens: 5, OutputTokens: 2, TotalTokens: 7}, got[2].Usage)

	require.NoError(t, s.Close())
	assert.True(t, core.closed)
	_, err := s.Recv(context.Background())
	assert.ErrorIs(t, err, base.ErrStreamClosed)
}

func TestChunkStreamMergesToolCalls(t *testing.T) {
	core := &fakeCore{chunks: []oa.ChatCompletionChunk{
		chunk(t, `{"choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"id":"call_b","function":{"name":"calculator","arguments":"{\"expr"}}]}}]}`),
		chunk(t, `{"choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_a","function":{"name":"get_time","arguments":"{}"}}]}}]}`),
		chunk(t, `{"choices":[{"index":0,"delta":{"tool_calls":[{"index":1,"function":{"arguments":"ession\":\"1+1\"}"}}]}}]}`),
		chunk(t, `{"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}`),
	}}
	s := &chunkStream{inner: core, calls: map[int64]*base.ToolCall{}}

	got := drain(t, s)
	require.Len(t, got, 1)
	alt := got[0].Alternatives[0]
	assert.Equal(t, base.StatusToolCalls, alt.Status)
	assert.Equal(t, []base.ToolCall{
		{ID: "call_a", Name: "get_time", Arguments: "{}"},
		{ID: "call_b", Name: "calculator", Arguments: `{"expression":"1+1"}`},
	}, alt.ToolCalls)
}

func TestChunkStreamFinishReasons(t *testing.T) {
	tests := []struct {
		reason string
		want   base.Status
	}{
		{"stop", base.StatusFinal},
		{"length", base.StatusTruncatedFinal},
		{"content_filter", base.StatusContentFilter},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			core := &fakeCore{chunks: []oa.ChatCompletionChunk{
				chunk(t, `{"choices":[{"index":0,"delta":{"content":"x"},"finish_reason":"`+tt.reason+`"}]}`),
			}}
			got := drain(t, &chunkStream{inner: core, calls: map[int64]*base.ToolCall{}})
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Alternatives[0].Status)
		})
	}
}

func TestChunkStreamEndsWithoutFinishReason(t *testing.T) {
	core := &fakeCore{chunks: []oa.ChatCompletionChunk{
		chunk(t, `{"choices":[{"index":0,"delta":{"content":"abc"}}]}`),
	}}
	got := drain(t, &chunkStream{inner: core, calls: map[int64]*base.ToolCall{}})
	require.Len(t, got, 2)
	assert.Equal(t, base.StatusFinal, got[1].Alternatives[0].Status)
	assert.Equal(t, "abc", got[1].Alternatives[0].Text)
}

func TestChunkStreamError(t *testing.T) {
	var reported error
	core := &fakeCore{err: errors.New("connection reset")}
	s := &chunkStream{inner: core, calls: map[int64]*base.ToolCall{}, onDone: func(err error) { reported = err }}
	_, err := s.Recv(context.Background())
	assert.True(t, base.IsTransport(err))
	assert.EqualError(t, reported, "connection reset")
}

func TestToOAMessagesCorrelatesToolResults(t *testing.T) {
	ev := &base.PartialResult{Alternatives: []base.Alternative{{
		Status:    base.StatusToolCalls,
		ToolCalls: []base.ToolCall{{ID: "call_1", Name: "get_time", Arguments: "{}"}},
	}}}
	msgs, err := toOAMessages([]base.ProviderMessage{
		{Role: base.RoleSystem, Text: "sys"},
		{Role: base.RoleUser, Text: "time?"},
		{Role: base.RoleAssistant, ToolCallEvent: ev},
		{Role: base.RoleAssistant, ToolResults: []base.ToolResult{{Name: "get_time", Content: `{"time":"noon"}`}}},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 4)

	raw, err := json.Marshal(msgs)
	require.NoError(t, err)
	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "system", decoded[0]["role"])
	assert.Equal(t, "user", decoded[1]["role"])
	calls := decoded[2]["tool_calls"].([]any)
	assert.Equal(t, "call_1", calls[0].(map[string]any)["id"])
	assert.Equal(t, "tool", decoded[3]["role"])
	assert.Equal(t, "call_1", decoded[3]["tool_call_id"])

	_, err = toOAMessages([]base.ProviderMessage{{Role: "narrator", Text: "x"}})
	assert.ErrorIs(t, err, base.ErrUnsupportedContent)
}

func TestRunStreamOverHTTP(t *testing.T) {
	var body map[string]any
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		headers = r.Header.Clone()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":\"Hi\"},\"finish_reason\":null}]}\n\n")
		_, _ = io.WriteString(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n")
		_, _ = io.WriteString(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c, err := NewClient(Config{FolderID: "b1g", APIKey: "key", BaseURL: srv.URL + "/v1", HTTPClient: srv.Client()})
	require.NoError(t, err)
	s, err := c.RunStream(context.Background(), &base.Request{
		Messages: []base.ProviderMessage{{Role: base.RoleUser, Text: "hello"}},
		Options: base.CompletionOptions{MaxTokens: 64, Tools: []base.FunctionTool{{
			Name: "get_time", Description: "Current time", Parameters: map[string]any{"type": "object"},
		}}},
	})
	require.NoError(t, err)
	got := drain(t, s)
	require.NoError(t, s.Close())

	require.Len(t, got, 2)
	assert.Equal(t, "Hi", got[1].Alternatives[0].Text)
	assert.Equal(t, base.StatusFinal, got[1].Alternatives[0].Status)

	assert.Equal(t, "Api-Key key", headers.Get("Authorization"))
	assert.Equal(t, "b1g", headers.Get("OpenAI-Project"))
	assert.Equal(t, "gpt://b1g/yandexgpt-lite/latest", body["model"])
	assert.EqualValues(t, 64, body["max_tokens"])
	tools := body["tools"].([]any)
	fn := tools[0].(map[string]any)["function"].(map[string]any)
	assert.Equal(t, "get_time", fn["name"])
}

func TestRunDeferredOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"cmpl-1","object":"chat.completion","created":1,"model":"m","choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"get_time","arguments":"{}"}}]}}],"usage":{"prompt_tokens":3,"completion_tokens":4,"total_tokens":7}}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{FolderID: "b1g", APIKey: "key", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	op, err := c.RunDeferred(context.Background(), &base.Request{Messages: []base.ProviderMessage{{Role: base.RoleUser, Text: "time?"}}})
	require.NoError(t, err)
	assert.Equal(t, "cmpl-1", op.ID())

	res, err := op.Wait(context.Background(), 0, 0)
	require.NoError(t, err)
	alt := res.Alternatives[0]
	assert.Equal(t, base.StatusToolCalls, alt.Status)
	assert.Equal(t, []base.ToolCall{{ID: "call_1", Name: "get_time", Arguments: "{}"}}, alt.ToolCalls)
	assert.Equal(t, 7, res.Usage.TotalTokens)
}

func TestRunDeferredAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"error":{"message":"permission denied","type":"forbidden"}}`)
	}))
	defer srv.Close()

	c, err := NewClient(Config{FolderID: "b1g", APIKey: "key", BaseURL: srv.URL, HTTPClient: srv.Client()})
	require.NoError(t, err)
	_, err = c.RunDeferred(context.Background(), &base.Request{Messages: []base.ProviderMessage{{Role: base.RoleUser, Text: "x"}}})
	var te *base.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusForbidden, te.StatusCode)
}

func TestParamsTemperature(t *testing.T) {
	c, err := NewClient(Config{FolderID: "b1g", APIKey: "key"})
	require.NoError(t, err)
	msgs := []base.ProviderMessage{{Role: base.RoleUser, Text: "hi"}}

	p, err := c.params(&base.Request{Messages: msgs, Options: base.CompletionOptions{Temperature: base.Float(0)}})
	require.NoError(t, err)
	raw, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"temperature":0`)

	p, err = c.params(&base.Request{Messages: msgs})
	require.NoError(t, err)
	raw, err = json.Marshal(p)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "temperature")
}
