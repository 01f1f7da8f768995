package ocpp

import "fmt"

// MessageType is the leading number of every JSON wire array.
type MessageType int

const (
	Call       MessageType = 2
	CallResult MessageType = 3
	CallError  MessageType = 4
)

func (t MessageType) String() string {
	switch t {
	case Call:
		return "CALL"
	case CallResult:
		return "CALLRESULT"
	case CallError:
		return "CALLERROR"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// MessageTypeFromNumber validates a type number read off the wire.
func MessageTypeFromNumber(n int) (MessageType, error) {
	switch t := MessageType(n); t {
	case Call, CallResult, CallError:
		return t, nil
	default:
		return 0, fmt.Errorf("unknown message type number %d", n)
	}
}

// ErrorCode is the fixed CALLERROR vocabulary. The wire form is the name.
type ErrorCode string

const (
	NotImplemented               ErrorCode = "NotImplemented"
	NotSupported                 ErrorCode = "NotSupported"
	InternalError                ErrorCode = "InternalError"
	ProtocolError                ErrorCode = "ProtocolError"
	SecurityError                ErrorCode = "SecurityError"
	FormationViolation           ErrorCode = "FormationViolation"
	PropertyConstraintViolation  ErrorCode = "PropertyConstraintViolation"
	OccurenceConstraintViolation ErrorCode = "OccurenceConstraintViolation"
	TypeConstraintViolation      ErrorCode = "TypeConstraintViolation"
	GenericError                 ErrorCode = "GenericError"
)

var errorCodes = map[ErrorCode]struct{}{
	NotImplemented:               {},
	NotSupported:                 {},
	InternalError:                {},
	ProtocolError:                {},
	SecurityError:                {},
	FormationViolation:           {},
	PropertyConstraintViolation:  {},
	OccurenceConstraintViolation: {},
	TypeConstraintViolation:      {},
	GenericError:                 {},
}

// Valid reports whether c is part of the protocol vocabulary.
func (c ErrorCode) Valid() bool {
	_, ok := errorCodes[c]
	return ok
}

// ParseErrorCode is case sensitive, like the wire format.
func ParseErrorCode(raw string) (ErrorCode, error) {
	code := ErrorCode(raw)
	if !code.Valid() {
		return "", fmt.Errorf("unknown error code %q", raw)
	}
	return code, nil
}
