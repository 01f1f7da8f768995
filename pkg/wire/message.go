// Package wire encodes outgoing OCPP-J messages into their array form and
// decodes inbound ones.
//
//	CALL        [2, id, action, payload]
//	CALLRESULT  [3, id, payload]
//	CALLERROR   [4, id, code, description, details]
package wire

import (
	"fmt"

	"ocppgate/pkg/ocpp"
)

// Message is one of Call, CallResult or CallError. The set is closed: the
// unexported method keeps other packages from adding variants, and every
// variant has to implement its own encoding.
type Message interface {
	MessageID() string
	MessageType() ocpp.MessageType
	encode(s *Serializer) ([]any, error)
}

// Call is a request. Payload is any value that has a JSON representation.
type Call struct {
	ID      string
	Action  string
	Payload any
}

// CallResult answers the Call with the same ID.
type CallResult struct {
	ID      string
	Payload any
}

// CallError answers the Call with the same ID with a failure. An empty
// Description is sent as "". A nil Details is sent as {}; anything else is
// sent as {"errorMsg": <string form of Details>}.
type CallError struct {
	ID          string
	Code        ocpp.ErrorCode
	Description string
	Details     any
}

func (m Call) MessageID() string       { return m.ID }
func (m CallResult) MessageID() string { return m.ID }
func (m CallError) MessageID() string  { return m.ID }

func (Call) MessageType() ocpp.MessageType       { return ocpp.Call }
func (CallResult) MessageType() ocpp.MessageType { return ocpp.CallResult }
func (CallError) MessageType() ocpp.MessageType  { return ocpp.CallError }

// Error lets handlers return a CallError to answer a call with it.
func (m CallError) Error() string {
	if m.Description == "" {
		return string(m.Code)
	}
	return fmt.Sprintf("%s: %s", m.Code, m.Description)
}
