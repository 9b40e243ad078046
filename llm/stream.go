package llm

import (
	"context"
	"errors"
	"io"
	"iter"
)

// Stream provides a pull-based API over provider event streams.
// Recv returns io.EOF when the stream is exhausted.
type Stream interface {
	Recv(ctx context.Context) (*PartialResult, error)
	Close() error
}

// ErrStreamClosed indicates Recv was called after Close.
var ErrStreamClosed = errors.New("stream closed")

type sliceStream struct {
	items  []*PartialResult
	pos    int
	closed bool
}

// NewSliceStream presents already known results through the Stream interface.
func NewSliceStream(items ...*PartialResult) Stream {
	return &sliceStream{items: items}
}

// SingleResultStream wraps the result of a deferred operation.
func SingleResultStream(r *PartialResult) Stream { return NewSliceStream(r) }

func (s *sliceStream) Recv(ctx context.Context) (*PartialResult, error) {
	if s.closed {
		return nil, ErrStreamClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.items) {
		return nil, io.EOF
	}
	r := s.items[s.pos]
	s.pos++
	return r, nil
}

func (s *sliceStream) Close() error {
	s.closed = true
	return nil
}

// Events adapts a Stream to a single-pass iterator. The stream is closed when
// iteration ends.
func Events(ctx context.Context, s Stream) iter.Seq2[*PartialResult, error] {
	return func(yield func(*PartialResult, error) bool) {
		defer s.Close()
		for {
			r, err := s.Recv(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(r, nil) {
				return
			}
		}
	}
}
