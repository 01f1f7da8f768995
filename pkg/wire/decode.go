package wire

import (
	"errors"
	"fmt"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"ocppgate/pkg/ocpp"
)

var (
	ErrNotArray      = errors.New("wire: message is not a JSON array")
	ErrArity         = errors.New("wire: wrong number of array elements")
	ErrMessageType   = errors.New("wire: invalid message type")
	ErrMessageID     = errors.New("wire: invalid message id")
	ErrAction        = errors.New("wire: invalid action")
	ErrErrorCode     = errors.New("wire: invalid error code")
	ErrErrorFields   = errors.New("wire: invalid error description or details")
	ErrPayloadObject = errors.New("wire: payload is not a JSON object")
)

// DecodeError reports an inbound message that could not be decoded. ID and
// Type are set when they were read before the failure, so that the caller
// can still answer a broken CALL.
type DecodeError struct {
	ID   string
	Type ocpp.MessageType
	Err  error
}

func (e *DecodeError) Error() string {
	if e.ID == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (id=%s)", e.Err, e.ID)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decode parses one inbound message. Payloads are returned as raw
// jsontext.Value; CallError details are returned as the errorMsg string when
// present, nil when the object is empty and the raw object otherwise.
func Decode(text string) (Message, error) {
	var elems []jsontext.Value
	if err := json.Unmarshal([]byte(text), &elems); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrNotArray, err)}
	}
	if len(elems) < 3 {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %d", ErrArity, len(elems))}
	}

	var typeNr int
	if err := json.Unmarshal(elems[0], &typeNr); err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %s", ErrMessageType, elems[0])}
	}
	msgType, err := ocpp.MessageTypeFromNumber(typeNr)
	if err != nil {
		return nil, &DecodeError{Err: fmt.Errorf("%w: %v", ErrMessageType, err)}
	}

	var id string
	if err := json.Unmarshal(elems[1], &id); err != nil || id == "" {
		return nil, &DecodeError{Type: msgType, Err: fmt.Errorf("%w: %s", ErrMessageID, elems[1])}
	}

	fail := func(err error) (Message, error) {
		return nil, &DecodeError{ID: id, Type: msgType, Err: err}
	}

	switch msgType {
	case ocpp.Call:
		if len(elems) != 4 {
			return fail(fmt.Errorf("%w: call has %d", ErrArity, len(elems)))
		}
		var action string
		if err := json.Unmarshal(elems[2], &action); err != nil || action == "" {
			return fail(fmt.Errorf("%w: %s", ErrAction, elems[2]))
		}
		if elems[3].Kind() != '{' {
			return fail(ErrPayloadObject)
		}
		return Call{ID: id, Action: action, Payload: elems[3]}, nil

	case ocpp.CallResult:
		if len(elems) != 3 {
			return fail(fmt.Errorf("%w: result has %d", ErrArity, len(elems)))
		}
		if elems[2].Kind() != '{' {
			return fail(ErrPayloadObject)
		}
		return CallResult{ID: id, Payload: elems[2]}, nil

	default:
		if len(elems) != 5 {
			return fail(fmt.Errorf("%w: error has %d", ErrArity, len(elems)))
		}
		var rawCode string
		if err := json.Unmarshal(elems[2], &rawCode); err != nil {
			return fail(fmt.Errorf("%w: %s", ErrErrorCode, elems[2]))
		}
		code, err := ocpp.ParseErrorCode(rawCode)
		if err != nil {
			return fail(fmt.Errorf("%w: %v", ErrErrorCode, err))
		}
		var description string
		if err := json.Unmarshal(elems[3], &description); err != nil {
			return fail(fmt.Errorf("%w: description: %v", ErrErrorFields, err))
		}
		details, err := decodeDetails(elems[4])
		if err != nil {
			return fail(fmt.Errorf("%w: details: %v", ErrErrorFields, err))
		}
		return CallError{ID: id, Code: code, Description: description, Details: details}, nil
	}
}

func decodeDetails(raw jsontext.Value) (any, error) {
	if raw.Kind() != '{' {
		return nil, ErrPayloadObject
	}
	var fields map[string]jsontext.Value
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	if msg, ok := fields[detailsKey]; ok && len(fields) == 1 {
		var s string
		if err := json.Unmarshal(msg, &s); err == nil {
			return s, nil
		}
	}
	return raw, nil
}
