package broker

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrNoRoute is returned by RouteIncoming for a command no currently
// registered route listens for -- a payload received outside the set the
// handler's current state expects.
var ErrNoRoute = errors.New("no route for command")

// Router dispatches inbound Payloads to the incoming Route registered for
// their Command, and exposes a single outgoing Route for everything this
// session sends, grounded on protocol/handshake.go's
// AddIncomingRoute/OutgoingRoute/RemoveRoute usage.
type Router struct {
	mtx      sync.Mutex
	incoming map[Command]*Route
	outgoing *Route
}

// NewRouter constructs an empty Router.
func NewRouter() *Router {
	return &Router{
		incoming: make(map[Command]*Route),
		outgoing: NewRoute(),
	}
}

// AddIncomingRoute registers a new Route for cmds. Returns an error if any
// of cmds already has a route.
func (r *Router) AddIncomingRoute(cmds ...Command) (*Route, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for _, cmd := range cmds {
		if _, exists := r.incoming[cmd]; exists {
			return nil, errors.Errorf("route for command %s already exists", cmd)
		}
	}

	route := NewRoute()
	for _, cmd := range cmds {
		r.incoming[cmd] = route
	}
	return route, nil
}

// RemoveRoute closes and unregisters the routes for cmds.
func (r *Router) RemoveRoute(cmds ...Command) error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for _, cmd := range cmds {
		route, ok := r.incoming[cmd]
		if !ok {
			continue
		}
		delete(r.incoming, cmd)
		if err := route.Close(); err != nil {
			return err
		}
	}
	return nil
}

// OutgoingRoute returns the single Route used to send payloads out.
func (r *Router) OutgoingRoute() *Route {
	return r.outgoing
}

// RouteIncoming dispatches payload to the incoming route registered for its
// Command. Returns ErrNoRoute if nothing is currently listening for it --
// the caller treats this as a Spam/Protocol error (spec.md §7).
func (r *Router) RouteIncoming(payload Payload) error {
	r.mtx.Lock()
	route, ok := r.incoming[payload.Command()]
	r.mtx.Unlock()

	if !ok {
		return errors.Wrapf(ErrNoRoute, "command %s", payload.Command())
	}
	return route.Enqueue(payload)
}

// Close closes every registered incoming route plus the outgoing route.
func (r *Router) Close() error {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	for cmd, route := range r.incoming {
		delete(r.incoming, cmd)
		if err := route.Close(); err != nil {
			return err
		}
	}
	return r.outgoing.Close()
}
