// Package soap routes inbound SOAP envelopes to the service that implements
// the OCPP version named by the payload namespace.
//
// The router is a pure lookahead: it scans the envelope through a Rewinder,
// rewinds it and hands the same Message to the resolved Observer, which then
// owns parsing and answering it.
package soap

import (
	"io"
	"net/http"
)

// Message is one inbound SOAP exchange.
type Message struct {
	// Content is the raw envelope. Routing replaces it with a rewound
	// reader positioned at the first byte of the original content.
	Content io.Reader
	// Encoding is the charset declared by the transport, if any.
	Encoding string
	// Address is the path the message arrived on.
	Address string
	// Reply receives the response written by the resolved observer.
	Reply http.ResponseWriter
	// Chain is the generic processing chain the router aborts.
	Chain Chain
}

// Chain is the generic processing that would otherwise run on a message.
type Chain interface {
	Abort()
}

// Observer consumes a routed message and is responsible for answering it.
type Observer interface {
	OnMessage(*Message)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(*Message)

func (f ObserverFunc) OnMessage(msg *Message) {
	f(msg)
}
