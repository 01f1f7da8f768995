package channel

import "context"

// InboundMessage is one text frame received from a charge box over the JSON
// transport.
type InboundMessage struct {
	Channel     string `json:"channel"`
	ChargeBoxID string `json:"charge_box_id"`
	// SubProtocol is the negotiated OCPP-J sub-protocol, e.g. "ocpp1.6".
	SubProtocol string `json:"sub_protocol,omitempty"`
	Content     string `json:"content"`
}

// Handler processes one inbound frame. A non-empty reply must be written back
// to the same charge box.
type Handler func(context.Context, InboundMessage) (reply string, err error)

// Adapter bridges one JSON transport (for example a WebSocket listener) into
// the gateway. Adapters also drain the gateway's outbound queue for the
// connections they own.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}
