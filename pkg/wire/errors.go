package wire

import (
	"fmt"

	"ocppgate/pkg/ocpp"
)

// PayloadSerializeError answers a call whose result payload could not be
// encoded.
func PayloadSerializeError(id string, details string) CallError {
	return CallError{
		ID:          id,
		Code:        ocpp.InternalError,
		Description: "The payload for the response could not be serialized",
		Details:     details,
	}
}

// PayloadDeserializeError answers a call whose payload could not be read.
func PayloadDeserializeError(id string, details string) CallError {
	return CallError{
		ID:          id,
		Code:        ocpp.FormationViolation,
		Description: "The payload for the request could not be deserialized",
		Details:     details,
	}
}

// NotImplemented answers a call for an action the server does not handle.
func NotImplemented(id string, action string) CallError {
	return CallError{
		ID:          id,
		Code:        ocpp.NotImplemented,
		Description: fmt.Sprintf("The action %q is not implemented", action),
	}
}

// GenericError answers a call whose handler failed for an unclassified
// reason.
func GenericError(id string, details string) CallError {
	return CallError{
		ID:          id,
		Code:        ocpp.GenericError,
		Description: "The request could not be processed",
		Details:     details,
	}
}
