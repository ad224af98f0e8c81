package telegrambot

import (
	"context"
	"fmt"
	"log/slog"
)

// Predicate decides whether a route handles an update.
type Predicate func(Update) bool

// Action processes an update once its route has matched.
type Action func(ctx context.Context, update Update) error

// Route pairs a predicate with an action. Routes are evaluated in the order
// they were given to NewDispatcher.
type Route struct {
	Name   string
	Match  Predicate
	Action Action
}

// Outcome is the tagged result of a dispatch: either a matched route or no match.
type Outcome struct {
	route   string
	matched bool
}

// NoMatch is returned when no route accepted the update.
var NoMatch = Outcome{}

// Matched returns the outcome for a route that accepted the update.
func Matched(route string) Outcome {
	return Outcome{route: route, matched: true}
}

// Matched reports whether some route accepted the update.
func (o Outcome) Matched() bool { return o.matched }

// Route returns the name of the matched route, or "" for NoMatch.
func (o Outcome) Route() string { return o.route }

func (o Outcome) String() string {
	if !o.matched {
		return "no_match"
	}
	return "matched:" + o.route
}

// Dispatcher routes an update to the first matching route.
// Its route table is fixed at construction and safe for concurrent reads.
type Dispatcher struct {
	routes []Route
	logger *slog.Logger
}

// NewDispatcher builds a dispatcher over a copy of routes.
func NewDispatcher(logger *slog.Logger, routes ...Route) (*Dispatcher, error) {
	seen := make(map[string]struct{}, len(routes))
	for i, r := range routes {
		switch {
		case r.Name == "":
			return nil, fmt.Errorf("route %d: name is required", i)
		case r.Match == nil || r.Action == nil:
			return nil, fmt.Errorf("route %q: predicate and action are required", r.Name)
		}
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("route %q registered twice", r.Name)
		}
		seen[r.Name] = struct{}{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Dispatcher{
		routes: append([]Route(nil), routes...),
		logger: logger,
	}, nil
}

// Dispatch runs the first route whose predicate matches. A panic inside a
// predicate or action is converted into an error wrapping ErrHandlerPanic.
func (d *Dispatcher) Dispatch(ctx context.Context, update Update) (out Outcome, err error) {
	current := ""
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("route %q: %w: %v", current, ErrHandlerPanic, rec)
		}
	}()

	for _, r := range d.routes {
		current = r.Name
		if !r.Match(update) {
			continue
		}
		if err := r.Action(ctx, update); err != nil {
			return Matched(r.Name), fmt.Errorf("route %q: %w", r.Name, err)
		}
		return Matched(r.Name), nil
	}

	d.logger.Debug("no route matched", "update_id", update.ID(), "kind", update.Kind())
	return NoMatch, nil
}

// RouteNames lists the registered routes in evaluation order.
func (d *Dispatcher) RouteNames() []string {
	names := make([]string, len(d.routes))
	for i, r := range d.routes {
		names[i] = r.Name
	}
	return names
}

