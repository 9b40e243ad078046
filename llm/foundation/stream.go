package foundation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	base "github.com/black-roland/homeassistant-yandexgpt/llm"
)

const maxLineSize = 1 << 20

// stream reads newline-delimited JSON results from a completion response.
type stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    func(error)
	closed  bool
	once    sync.Once
}

func newStream(body io.ReadCloser, done func(error)) *stream {
	sc := bufio.NewScanner(body)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &stream{body: body, scanner: sc, done: done}
}

func (s *stream) Recv(ctx context.Context) (*base.PartialResult, error) {
	if s.closed {
		return nil, base.ErrStreamClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var l streamLine
		if err := json.Unmarshal(line, &l); err != nil {
			return nil, s.fail(&base.TransportError{Op: "completion", Err: fmt.Errorf("decode stream line: %w", err)})
		}
		if l.Error != nil {
			return nil, s.fail(&base.TransportError{Op: "completion", StatusCode: l.Error.HTTPCode, Details: l.Error.Message})
		}
		if l.Result == nil {
			continue
		}
		res, err := decodeResult(l.Result)
		if err != nil {
			return nil, s.fail(&base.TransportError{Op: "completion", Err: err})
		}
		return res, nil
	}
	if err := s.scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil, s.fail(ctx.Err())
		}
		return nil, s.fail(&base.TransportError{Op: "completion", Err: err})
	}
	s.finish(nil)
	return nil, io.EOF
}

func (s *stream) fail(err error) error {
	s.finish(err)
	return err
}

func (s *stream) finish(err error) {
	s.once.Do(func() {
		if s.done != nil {
			s.done(err)
		}
	})
}

func (s *stream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.finish(nil)
	return s.body.Close()
}
