package llm

import (
	"errors"
	"fmt"
)

var (
	// ErrEthicsFilter indicates the provider blocked the answer.
	ErrEthicsFilter = errors.New("llm: message blocked by the ethics filter")
	// ErrUnsupportedContent indicates a content kind that has no provider mapping.
	ErrUnsupportedContent = errors.New("llm: unsupported content kind")
	// ErrTimeout indicates a polling ceiling was exceeded.
	ErrTimeout = errors.New("llm: operation timed out")
	// ErrPrecondition indicates a call made before its required state existed.
	ErrPrecondition = errors.New("llm: precondition violated")
)

// TransportError wraps a network or RPC failure talking to the provider.
type TransportError struct {
	Op         string
	StatusCode int
	Details    string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Details != "":
		return fmt.Sprintf("llm: %s: status %d: %s", e.Op, e.StatusCode, e.Details)
	case e.StatusCode != 0:
		return fmt.Sprintf("llm: %s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("llm: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("llm: %s: %s", e.Op, e.Details)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
