package relay

import (
	"context"

	"webuibot/internal/domain"
)

// Predicate decides whether a route accepts a message.
type Predicate func(msg domain.InboundMessage) bool

// HandlerFunc processes one accepted message.
type HandlerFunc func(ctx context.Context, msg domain.InboundMessage)

type route struct {
	match  Predicate
	handle HandlerFunc
}

// Dispatcher routes each message to the first handler whose predicate
// accepts it. Routes are tried in registration order, so the catch-all
// goes last.
type Dispatcher struct {
	routes []route
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Handle registers a route at the end of the table.
func (d *Dispatcher) Handle(match Predicate, handle HandlerFunc) {
	d.routes = append(d.routes, route{match: match, handle: handle})
}

// Dispatch runs the first matching handler and reports whether one matched.
func (d *Dispatcher) Dispatch(ctx context.Context, msg domain.InboundMessage) bool {
	for _, r := range d.routes {
		if r.match(msg) {
			r.handle(ctx, msg)
			return true
		}
	}
	return false
}
