package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"unicode/utf8"

	"github.com/black-roland/homeassistant-yandexgpt/llm"
	"github.com/black-roland/homeassistant-yandexgpt/observability"
)

// cursor tracks how much of the cumulative text has been handed out.
// Offsets are counted in code points.
type cursor struct {
	streamed  string
	prev      string
	announced bool
}

func (c *cursor) reset() { *c = cursor{} }

// Reconciler turns a stream of cumulative partial results into delta events.
// It is bound to one stream and may be iterated once.
type Reconciler struct {
	stream   llm.Stream
	hooks    *observability.Hooks
	cur      cursor
	toolCall *llm.PartialResult
	consumed bool
}

// NewReconciler binds a reconciler to stream. hooks may be nil.
func NewReconciler(stream llm.Stream, hooks *observability.Hooks) *Reconciler {
	return &Reconciler{stream: stream, hooks: hooks}
}

// Deltas returns the lazy delta sequence. The sequence ends when the stream is
// exhausted or fails; a failure is yielded once as the final element.
func (r *Reconciler) Deltas(ctx context.Context) iter.Seq2[DeltaEvent, error] {
	return func(yield func(DeltaEvent, error) bool) {
		if r.consumed {
			yield(DeltaEvent{}, llm.ErrStreamClosed)
			return
		}
		r.consumed = true
		defer r.stream.Close()

		for {
			ev, err := r.stream.Recv(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(DeltaEvent{}, err)
				return
			}
			out, err := r.Step(ctx, ev)
			for _, d := range out {
				if !yield(d, nil) {
					return
				}
			}
			if err != nil {
				yield(DeltaEvent{}, err)
				return
			}
		}
	}
}

// Step feeds one partial result through the state machine.
func (r *Reconciler) Step(ctx context.Context, ev *llm.PartialResult) ([]DeltaEvent, error) {
	alt, ok := ev.First()
	if !ok {
		return nil, nil
	}
	r.hooks.SafeLog(ctx, "debug", "received partial result", map[string]any{
		"status": string(alt.Status),
		"text":   alt.Text,
	})

	switch {
	case alt.Status.Terminal():
		if alt.Status == llm.StatusTruncatedFinal {
			r.hooks.SafeLog(ctx, "warn", "response was truncated by the model", nil)
			r.hooks.SafeTruncated(ctx, alt.Text)
		}
		delta := runeSlice(alt.Text, utf8.RuneCountInString(r.cur.streamed), -1)
		r.cur.reset()
		return []DeltaEvent{{Kind: TextDelta, Content: delta}}, nil

	case alt.Status == llm.StatusContentFilter:
		r.hooks.SafeLog(ctx, "warn", "the message got blocked by the ethics filter", nil)
		return nil, llm.ErrEthicsFilter

	case alt.Status == llm.StatusToolCalls && len(alt.ToolCalls) > 0:
		calls := make([]llm.ToolCall, len(alt.ToolCalls))
		copy(calls, alt.ToolCalls)
		r.toolCall = ev
		return []DeltaEvent{{Kind: ToolCallBatch, ToolCalls: calls}}, nil

	case r.cur.prev == "":
		r.cur.prev = alt.Text
		if r.cur.announced {
			return nil, nil
		}
		r.cur.announced = true
		return []DeltaEvent{{Kind: RoleAnnounce, Role: llm.RoleAssistant}}, nil

	case alt.Status != llm.StatusPartial:
		return nil, nil
	}

	// The emitted window ends at the previous snapshot: a character split
	// across snapshots is only handed out once the next snapshot fixes it.
	delta := runeSlice(alt.Text, utf8.RuneCountInString(r.cur.streamed), utf8.RuneCountInString(r.cur.prev))
	r.cur.streamed = r.cur.prev
	r.cur.prev = alt.Text
	return []DeltaEvent{{Kind: TextDelta, Content: delta}}, nil
}

// ToolCallEvent returns the retained TOOL_CALLS event.
func (r *Reconciler) ToolCallEvent() (*llm.PartialResult, error) {
	if r.toolCall == nil {
		return nil, fmt.Errorf("tool call event requested before one was received: %w", llm.ErrPrecondition)
	}
	return r.toolCall, nil
}

// MustToolCallEvent is like ToolCallEvent but panics on a missing event.
func (r *Reconciler) MustToolCallEvent() *llm.PartialResult {
	ev, err := r.ToolCallEvent()
	if err != nil {
		panic(err)
	}
	return ev
}

// runeSlice returns s[from:to] with offsets in code points, clamped to the
// bounds of s. A negative to means the end of s.
func runeSlice(s string, from, to int) string {
	if to >= 0 && to <= from {
		return ""
	}
	start, end := len(s), len(s)
	n := 0
	for off := range s {
		if n == from {
			start = off
		}
		if to >= 0 && n == to {
			end = off
			break
		}
		n++
	}
	if start > end {
		return ""
	}
	return s[start:end]
}
