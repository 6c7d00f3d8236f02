package ai

import (
	"context"
	"fmt"
)

// Route binds an abstract tier to a provider backend and a concrete model.
type Route struct {
	Backend Backend
	Model   string
}

// Registry maps tiers to routes and owns the fallback tier used when a
// primary attempt fails. Built once at startup, read-only afterwards.
type Registry struct {
	routes   map[Tier]Route
	fallback Tier
}

// NewRegistry creates a registry with the given fallback tier.
func NewRegistry(fallback Tier) *Registry {
	return &Registry{
		routes:   make(map[Tier]Route),
		fallback: fallback,
	}
}

// Register binds a tier to a backend and concrete model name.
func (r *Registry) Register(t Tier, backend Backend, model string) {
	r.routes[t] = Route{Backend: backend, Model: model}
}

// Fallback returns the registry's fallback tier.
func (r *Registry) Fallback() Tier {
	return r.fallback
}

// Resolve returns the route for a tier. Unknown tiers resolve to the
// fallback route so a selector policy change cannot strand a turn.
func (r *Registry) Resolve(t Tier) (Route, error) {
	if route, ok := r.routes[t]; ok {
		return route, nil
	}
	if route, ok := r.routes[r.fallback]; ok {
		return route, nil
	}
	return Route{}, fmt.Errorf("no backend registered for tier %q", t)
}

// Generate resolves a tier and invokes its backend.
func (r *Registry) Generate(ctx context.Context, t Tier, req *Request) (*Response, error) {
	route, err := r.Resolve(t)
	if err != nil {
		return nil, err
	}
	return route.Backend.Generate(ctx, route.Model, req)
}
