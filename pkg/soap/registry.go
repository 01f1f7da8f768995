package soap

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrNoEndpoints        = errors.New("soap: no version endpoints are registered")
	ErrDuplicateNamespace = errors.New("soap: namespace registered twice")
	ErrMissingNamespace   = errors.New("soap: endpoint namespace is required")
	ErrNilObserver        = errors.New("soap: endpoint observer is nil")
)

// Endpoint is one registered service, typically one OCPP version.
type Endpoint struct {
	Address   string
	Namespace string
	Observer  Observer
}

// Registry maps payload namespaces to observers. It is never modified after
// NewRegistry returns; build a new one and Swap it into the Router instead.
type Registry struct {
	targets   map[string]Endpoint
	namespace []string
}

// NewRegistry indexes endpoints by namespace, leaving out the endpoint that
// lives at routerAddress (the router itself is never a target).
func NewRegistry(endpoints []Endpoint, routerAddress string) (*Registry, error) {
	targets := make(map[string]Endpoint, len(endpoints))
	for _, ep := range endpoints {
		if routerAddress != "" && ep.Address == routerAddress {
			continue
		}

		ns := strings.TrimSpace(ep.Namespace)
		if ns == "" {
			return nil, fmt.Errorf("%w: address %q", ErrMissingNamespace, ep.Address)
		}
		if ep.Observer == nil {
			return nil, fmt.Errorf("%w: namespace %q", ErrNilObserver, ns)
		}
		if prev, ok := targets[ns]; ok {
			return nil, fmt.Errorf("%w: %q at %q and %q", ErrDuplicateNamespace, ns, prev.Address, ep.Address)
		}
		ep.Namespace = ns
		targets[ns] = ep
	}
	if len(targets) == 0 {
		return nil, ErrNoEndpoints
	}

	names := make([]string, 0, len(targets))
	for ns := range targets {
		names = append(names, ns)
	}
	sort.Strings(names)

	return &Registry{targets: targets, namespace: names}, nil
}

// Lookup returns the observer registered for ns.
func (r *Registry) Lookup(ns string) (Observer, bool) {
	if r == nil {
		return nil, false
	}
	ep, ok := r.targets[ns]
	if !ok {
		return nil, false
	}
	return ep.Observer, true
}

// Endpoint returns the full registration for ns.
func (r *Registry) Endpoint(ns string) (Endpoint, bool) {
	if r == nil {
		return Endpoint{}, false
	}
	ep, ok := r.targets[ns]
	return ep, ok
}

// Namespaces returns the registered keys in sorted order.
func (r *Registry) Namespaces() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.namespace...)
}

func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.targets)
}
