package provider

import "context"

type (
	// Provider is an external feed that mutates a single table for as
	// long as it runs. Run blocks until the feed is exhausted, the
	// context is canceled, or the feed fails. A Provider must tolerate
	// being restarted after a failure without corrupting table state
	Provider interface {
		Run(context.Context) error
	}

	// Func adapts a plain function into a Provider
	Func func(context.Context) error
)

func (f Func) Run(ctx context.Context) error {
	return f(ctx)
}
