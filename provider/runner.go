package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
	"gopkg.in/tomb.v2"
)

type (
	// Runner supervises a single Provider on its own worker routine. A
	// failed Provider is logged for the operator and restarted after a
	// backoff; the table it feeds simply retains its last-known-good
	// state in the interim
	Runner struct {
		name    string
		p       Provider
		clk     clock.Clock
		log     *slog.Logger
		backoff time.Duration
		t       tomb.Tomb
	}

	// Option applies an option to a Runner before it starts
	Option func(*Runner) error
)

// DefaultBackoff is how long a Runner waits before restarting a failed
// Provider unless configured otherwise
const DefaultBackoff = time.Second

// WithClock sets the clock used to schedule restart backoff
func WithClock(c clock.Clock) Option {
	return func(r *Runner) error {
		r.clk = c
		return nil
	}
}

// WithBackoff sets the delay before a failed Provider is restarted
func WithBackoff(d time.Duration) Option {
	return func(r *Runner) error {
		r.backoff = d
		return nil
	}
}

// WithLogger sets the logger that receives provider failures
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) error {
		r.log = l
		return nil
	}
}

// StartRunner starts supervising the provided Provider
func StartRunner(name string, p Provider, o ...Option) (*Runner, error) {
	r := &Runner{
		name:    name,
		p:       p,
		clk:     clock.New(),
		log:     slog.Default(),
		backoff: DefaultBackoff,
	}
	for _, opt := range o {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	r.t.Go(r.run)
	return r, nil
}

// Alive returns whether the Runner's worker is still running
func (r *Runner) Alive() bool {
	return r.t.Alive()
}

// Stop terminates the Runner's worker and waits for it to finish
func (r *Runner) Stop() error {
	r.t.Kill(nil)
	return r.t.Wait()
}

func (r *Runner) run() error {
	ctx := r.t.Context(context.Background())
	for {
		err := r.p.Run(ctx)
		select {
		case <-r.t.Dying():
			return nil
		default:
		}
		if err == nil {
			// feed finished cleanly
			return nil
		}
		r.log.Error("provider failed, restarting",
			"provider", r.name,
			"backoff", r.backoff,
			"error", err,
		)
		t := r.clk.Timer(r.backoff)
		select {
		case <-r.t.Dying():
			t.Stop()
			return nil
		case <-t.C:
		}
	}
}
