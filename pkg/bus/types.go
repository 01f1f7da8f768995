package bus

// OutboundMessage is one serialized frame waiting for the transport adapter
// that owns the charge box connection.
type OutboundMessage struct {
	Channel     string `json:"channel,omitempty"`
	ChargeBoxID string `json:"charge_box_id"`
	MessageID   string `json:"message_id"`
	Content     string `json:"content"`
}
