package closer

import "sync"

type (
	// Closer is a type that is capable of being closed, and of reporting
	// that fact over a channel that can participate in a select
	Closer interface {
		// Close closes this instance. Calling Close more than once is
		// harmless
		Close()

		// IsClosed returns a channel that is closed once this instance
		// has been closed
		IsClosed() <-chan struct{}
	}
)

type simple struct {
	closed  chan struct{}
	onClose func()
	once    sync.Once
}

// Make returns a basic Closer that invokes the provided callback exactly
// once, upon first Close
func Make(onClose func()) Closer {
	return &simple{
		closed:  make(chan struct{}),
		onClose: onClose,
	}
}

func (c *simple) Close() {
	c.once.Do(func() {
		close(c.closed)
		if c.onClose != nil {
			c.onClose()
		}
	})
}

func (c *simple) IsClosed() <-chan struct{} {
	return c.closed
}

// IsClosed returns whether the provided Closer has already been closed
func IsClosed(c Closer) bool {
	select {
	case <-c.IsClosed():
		return true
	default:
		return false
	}
}
