package openaicompat

import (
	"context"
	"io"
	"slices"
	"strings"

	oa "github.com/openai/openai-go/v3"

	base "github.com/black-roland/homeassistant-yandexgpt/llm"
)

// oaStreamCore matches the subset of the OpenAI stream API we use.
type oaStreamCore interface {
	Next() bool
	Current() oa.ChatCompletionChunk
	Err() error
	Close() error
}

// chunkStream turns true deltas into cumulative snapshots.
type chunkStream struct {
	inner oaStreamCore
	model string

	text   strings.Builder
	calls  map[int64]*base.ToolCall
	usage  *base.Usage
	done   bool
	closed bool

	onDone   func(error)
	reported bool
}

func (s *chunkStream) Recv(ctx context.Context) (*base.PartialResult, error) {
	if s.closed {
		return nil, base.ErrStreamClosed
	}
	if s.done {
		return nil, io.EOF
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !s.inner.Next() {
			if err := s.inner.Err(); err != nil {
				s.report(err)
				return nil, transportError("chat.completions", err)
			}
			// The stream ended without a finish reason.
			s.done = true
			s.report(nil)
			status := base.StatusFinal
			if len(s.calls) > 0 {
				status = base.StatusToolCalls
			}
			return s.snapshot(status), nil
		}
		chunk := s.inner.Current()
		if chunk.Model != "" {
			s.model = chunk.Model
		}
		if chunk.Usage.TotalTokens > 0 {
			s.usage = &base.Usage{
				InputTokens:  int(chunk.Usage.PromptTokens),
				OutputTokens: int(chunk.Usage.CompletionTokens),
				TotalTokens:  int(chunk.Usage.TotalTokens),
			}
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		ch := chunk.Choices[0]
		s.text.WriteString(ch.Delta.Content)
		for _, tc := range ch.Delta.ToolCalls {
			acc, ok := s.calls[tc.Index]
			if !ok {
				acc = &base.ToolCall{}
				s.calls[tc.Index] = acc
			}
			if tc.ID != "" {
				acc.ID = tc.ID
			}
			if tc.Function.Name != "" {
				acc.Name = tc.Function.Name
			}
			acc.Arguments += tc.Function.Arguments
		}
		if ch.FinishReason != "" {
			s.done = true
			s.report(nil)
			status := finishStatus(string(ch.FinishReason))
			if status == base.StatusFinal && len(s.calls) > 0 {
				status = base.StatusToolCalls
			}
			return s.snapshot(status), nil
		}
		if ch.Delta.Content != "" {
			return s.snapshot(base.StatusPartial), nil
		}
	}
}

func (s *chunkStream) snapshot(status base.Status) *base.PartialResult {
	alt := base.Alternative{Role: base.RoleAssistant, Text: s.text.String(), Status: status}
	if status == base.StatusToolCalls {
		idx := make([]int64, 0, len(s.calls))
		for i := range s.calls {
			idx = append(idx, i)
		}
		slices.Sort(idx)
		for _, i := range idx {
			alt.ToolCalls = append(alt.ToolCalls, *s.calls[i])
		}
	}
	return &base.PartialResult{Alternatives: []base.Alternative{alt}, Usage: s.usage, ModelVersion: s.model}
}

func (s *chunkStream) report(err error) {
	if s.reported || s.onDone == nil {
		return
	}
	s.reported = true
	s.onDone(err)
}

func (s *chunkStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.inner.Close()
}
