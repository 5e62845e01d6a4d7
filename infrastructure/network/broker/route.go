package broker

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

const defaultRouteCapacity = 100

// ErrTimeout signifies that a Dequeue call timed out.
var ErrTimeout = errors.New("timeout expired")

// ErrRouteClosed indicates that a route was closed while reading or writing.
var ErrRouteClosed = errors.New("route is closed")

// Route is a single-command channel between a BrokerHandler and its
// transport, grounded on netadapter/router/route.go's Route type.
type Route struct {
	channel chan Payload

	closeLock sync.Mutex
	closed    bool
}

// NewRoute creates a Route with the default capacity.
func NewRoute() *Route {
	return &Route{channel: make(chan Payload, defaultRouteCapacity)}
}

// Enqueue enqueues payload onto the route. Returns ErrRouteClosed if the
// route was already closed.
func (r *Route) Enqueue(payload Payload) error {
	r.closeLock.Lock()
	defer r.closeLock.Unlock()

	if r.closed {
		return errors.WithStack(ErrRouteClosed)
	}
	r.channel <- payload
	return nil
}

// Dequeue blocks until a payload is available or the route is closed.
func (r *Route) Dequeue() (Payload, error) {
	payload, isOpen := <-r.channel
	if !isOpen {
		return nil, errors.WithStack(ErrRouteClosed)
	}
	return payload, nil
}

// DequeueWithTimeout is Dequeue bounded by timeout.
func (r *Route) DequeueWithTimeout(timeout time.Duration) (Payload, error) {
	select {
	case <-time.After(timeout):
		return nil, errors.Wrapf(ErrTimeout, "got timeout after %s", timeout)
	case payload, isOpen := <-r.channel:
		if !isOpen {
			return nil, errors.WithStack(ErrRouteClosed)
		}
		return payload, nil
	}
}

// Chan exposes the route's receive side directly, for callers that need to
// select on it alongside other channels (e.g. a ticker).
func (r *Route) Chan() <-chan Payload {
	return r.channel
}

// Close closes the route. Safe to call more than once.
func (r *Route) Close() error {
	r.closeLock.Lock()
	defer r.closeLock.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	close(r.channel)
	return nil
}
