package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"sync"

	"github.com/google/uuid"

	"github.com/black-roland/homeassistant-yandexgpt/llm"
)

// ErrNoToolExecutor is returned when the model calls tools but none are active.
var ErrNoToolExecutor = errors.New("conversation: tool calls received without an active tool set")

// ToolExecutor runs a tool call requested by the model and returns a
// JSON-serializable result.
type ToolExecutor interface {
	CallTool(ctx context.Context, name string, args json.RawMessage) any
}

// ChatLog is the ordered content of one conversation. Rounds for the same
// conversation must not run concurrently; the mutex only guards readers.
type ChatLog struct {
	ConversationID string

	mu       sync.Mutex
	content  []Content
	executor ToolExecutor
	// OnDelta, when set, observes every delta as it is consumed.
	OnDelta func(DeltaEvent)
}

// NewChatLog creates an empty log. An empty id gets a generated one.
func NewChatLog(conversationID string) *ChatLog {
	if conversationID == "" {
		conversationID = newID()
	}
	return &ChatLog{ConversationID: conversationID}
}

// SetExecutor sets the tool set used for tool calls; nil disables tools.
func (l *ChatLog) SetExecutor(e ToolExecutor) {
	l.mu.Lock()
	l.executor = e
	l.mu.Unlock()
}

// Content returns a snapshot of the log.
func (l *ChatLog) Content() []Content {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Content, len(l.content))
	copy(out, l.content)
	return out
}

// Append adds entries at the end of the log.
func (l *ChatLog) Append(entries ...Content) {
	l.mu.Lock()
	l.content = append(l.content, entries...)
	l.mu.Unlock()
}

// ReplaceSystem sets the leading system entry, inserting it if missing.
func (l *ChatLog) ReplaceSystem(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.content) > 0 {
		if _, ok := l.content[0].(SystemContent); ok {
			l.content[0] = SystemContent{Content: text}
			return
		}
	}
	l.content = append([]Content{SystemContent{Content: text}}, l.content...)
}

// UnrespondedToolResults reports whether the model has not yet answered the
// latest tool results.
func (l *ChatLog) UnrespondedToolResults() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.content) == 0 {
		return false
	}
	_, ok := l.content[len(l.content)-1].(ToolResultContent)
	return ok
}

// LastAssistant returns the most recent assistant entry.
func (l *ChatLog) LastAssistant() (AssistantContent, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.content) - 1; i >= 0; i-- {
		if a, ok := l.content[i].(AssistantContent); ok {
			return a, true
		}
	}
	return AssistantContent{}, false
}

// AddDeltaStream consumes deltas, appending assistant entries and the results
// of any tool calls they request. It returns the entries added. On error the
// entries added so far stay in the log; the message in progress is dropped.
func (l *ChatLog) AddDeltaStream(ctx context.Context, agentID string, deltas iter.Seq2[DeltaEvent, error]) ([]Content, error) {
	var (
		added   []Content
		current *AssistantContent
	)
	flush := func() error {
		if current == nil || (current.Content == "" && len(current.ToolCalls) == 0) {
			current = nil
			return nil
		}
		msg := *current
		current = nil
		l.Append(msg)
		added = append(added, msg)
		results, err := l.runTools(ctx, agentID, msg.ToolCalls)
		if err != nil {
			return err
		}
		l.Append(results...)
		added = append(added, results...)
		return nil
	}

	for d, err := range deltas {
		if err != nil {
			return added, err
		}
		if l.OnDelta != nil {
			l.OnDelta(d)
		}
		switch d.Kind {
		case RoleAnnounce:
			if err := flush(); err != nil {
				return added, err
			}
			current = &AssistantContent{AgentID: agentID}
		case TextDelta:
			if current == nil {
				current = &AssistantContent{AgentID: agentID}
			}
			current.Content += d.Content
		case ToolCallBatch:
			if current == nil {
				current = &AssistantContent{AgentID: agentID}
			}
			for _, c := range d.ToolCalls {
				if c.ID == "" {
					c.ID = newID()
				}
				current.ToolCalls = append(current.ToolCalls, c)
			}
		}
	}
	return added, flush()
}

func (l *ChatLog) runTools(ctx context.Context, agentID string, calls []llm.ToolCall) ([]Content, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	l.mu.Lock()
	exec := l.executor
	l.mu.Unlock()
	if exec == nil {
		return nil, ErrNoToolExecutor
	}
	out := make([]Content, 0, len(calls))
	for _, c := range calls {
		res := exec.CallTool(ctx, c.Name, json.RawMessage(c.Arguments))
		out = append(out, ToolResultContent{
			AgentID:    agentID,
			ToolCallID: c.ID,
			ToolName:   c.Name,
			ToolResult: res,
		})
	}
	return out, nil
}

func newID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return uuid.NewString()
}
