package soap

import (
	"errors"
	"log/slog"
	"sync/atomic"
)

// DefaultLookaheadLimit bounds how much of an envelope the router keeps in
// memory while looking for the payload element.
const DefaultLookaheadLimit = 1 << 20

// Router dispatches inbound envelopes by payload namespace.
type Router struct {
	registry atomic.Pointer[Registry]
	log      *slog.Logger
	limit    int
}

// Option configures a Router.
type Option func(*Router)

func WithLogger(log *slog.Logger) Option {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}

// WithLookaheadLimit sets the number of bytes the router may buffer. Zero or
// less disables the limit.
func WithLookaheadLimit(limit int) Option {
	return func(r *Router) {
		r.limit = limit
	}
}

// NewRouter returns a router over reg. reg must come from NewRegistry.
func NewRouter(reg *Registry, opts ...Option) (*Router, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, ErrNoEndpoints
	}

	r := &Router{
		log:   slog.Default(),
		limit: DefaultLookaheadLimit,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.log = r.log.With("component", "soap.router")
	r.registry.Store(reg)
	return r, nil
}

// Swap atomically replaces the registry used by subsequent Route calls.
func (r *Router) Swap(reg *Registry) error {
	if reg == nil || reg.Len() == 0 {
		return ErrNoEndpoints
	}
	r.registry.Store(reg)
	r.log.Info("Routing registry replaced", "namespaces", reg.Namespaces())
	return nil
}

// Registry returns the registry currently in use.
func (r *Router) Registry() *Registry {
	return r.registry.Load()
}

// Route hands msg to the observer registered for its payload namespace. When
// no observer matches, or the envelope cannot be scanned, nothing is
// delivered. The message chain is aborted in every case.
func (r *Router) Route(msg *Message) {
	if msg == nil {
		return
	}
	if msg.Chain != nil {
		defer msg.Chain.Abort()
	}
	if msg.Content == nil {
		r.log.Error("Message has no content", "address", msg.Address)
		return
	}

	namespace := r.scanNamespace(msg)

	observer, ok := r.registry.Load().Lookup(namespace)
	if !ok {
		r.log.Warn("No endpoint for payload namespace", "namespace", namespace, "address", msg.Address)
		return
	}

	r.log.Debug("Forwarding message", "namespace", namespace, "address", msg.Address)
	observer.OnMessage(msg)
}

// scanNamespace returns the payload namespace of msg, or "" when it cannot
// be determined. On return msg.Content reads from the original first byte,
// unless the rewind itself failed, in which case "" is returned so that the
// message is not handed over half consumed.
func (r *Router) scanNamespace(msg *Message) string {
	rw := NewRewinder(msg.Content, r.limit)
	rw.Mark()
	msg.Content = rw

	scan, scanErr := ScanEnvelope(rw, msg.Encoding)
	if err := rw.Reset(); err != nil {
		if errors.Is(err, ErrMarkInvalid) {
			r.log.Error("Envelope exceeds lookahead limit", "limit", r.limit, "address", msg.Address)
		} else {
			r.log.Error("Failed to rewind message", "error", err, "address", msg.Address)
		}
		return ""
	}
	if scanErr != nil {
		r.log.Error("Failed to scan envelope", "error", scanErr, "address", msg.Address)
		return ""
	}
	return scan.Payload.Space
}
