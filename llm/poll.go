package llm

import (
	"context"
	"errors"
	"time"
)

// PollConfig controls deferred operation polling.
type PollConfig struct {
	Interval time.Duration `json:"interval"`
	Timeout  time.Duration `json:"timeout"`
}

// DefaultPollConfig returns the completion polling defaults.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval: 500 * time.Millisecond,
		Timeout:  300 * time.Second,
	}
}

// Poller calls a check function on a fixed interval until it reports done.
type Poller struct {
	cfg PollConfig
}

// NewPoller creates a Poller with the given config (or defaults if zero values).
func NewPoller(cfg PollConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPollConfig().Timeout
	}
	return &Poller{cfg: cfg}
}

// Do runs check until it returns done or an error. Exceeding the timeout
// yields ErrTimeout; cancellation of ctx yields ctx.Err().
func (p *Poller) Do(ctx context.Context, check func(ctx context.Context) (bool, error)) error {
	pctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()
	for {
		done, err := check(pctx)
		if err != nil {
			if pctx.Err() != nil && ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				return ErrTimeout
			}
			return err
		}
		if done {
			return nil
		}
		t := time.NewTimer(p.cfg.Interval)
		select {
		case <-pctx.Done():
			t.Stop()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return ErrTimeout
		case <-t.C:
		}
	}
}
