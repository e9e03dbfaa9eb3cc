package rpc

import (
	"context"
	"errors"
	"fmt"
)

type (
	// Request names an action to perform out-of-band of any viewport,
	// along with its parameters
	Request struct {
		Action string
		Params map[string]any
	}

	// Response carries the result of a successfully dispatched Request
	Response struct {
		Action string
		Body   any
	}

	// Handler resolves a Request to a Response or an error. Handler
	// failures are reported to the calling client and never disturb
	// other subscriptions or tables
	Handler interface {
		Dispatch(context.Context, Request) (Response, error)
	}

	// HandlerFunc adapts a plain function into a Handler
	HandlerFunc func(context.Context, Request) (Response, error)

	// Error is the structured failure payload returned to a caller when
	// a Handler rejects or fails a Request
	Error struct {
		Action  string
		Message string
	}
)

// Error messages
var (
	ErrUnknownAction = errors.New("no handler registered for action")
)

func (f HandlerFunc) Dispatch(
	ctx context.Context, req Request,
) (Response, error) {
	return f(ctx, req)
}

// Fail constructs a structured Error for the provided Request
func Fail(req Request, format string, args ...any) *Error {
	return &Error{
		Action:  req.Action,
		Message: fmt.Sprintf(format, args...),
	}
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc %s failed: %s", e.Action, e.Message)
}
