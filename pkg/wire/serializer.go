package wire

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"

	"ocppgate/pkg/ocpp"
)

// ErrCallPayload marks an outgoing call whose payload has no JSON form. The
// call must not be sent.
var ErrCallPayload = errors.New("wire: call payload could not be converted to JSON")

// detailsKey is the single field of a non-empty CALLERROR details object.
const detailsKey = "errorMsg"

// Serializer turns outgoing messages into wire text. It keeps no state
// besides its logger and may be shared between goroutines.
type Serializer struct {
	log *slog.Logger
}

func NewSerializer(log *slog.Logger) *Serializer {
	if log == nil {
		log = slog.Default()
	}
	return &Serializer{log: log.With("component", "wire.serializer")}
}

// Serialize returns the wire text of msg. Only a Call can fail; a CallResult
// whose payload cannot be encoded comes back as a CALLERROR for the same id.
func (s *Serializer) Serialize(msg Message) (string, error) {
	if msg == nil {
		return "", errors.New("wire: nil message")
	}
	arr, err := msg.encode(s)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(arr, arrayOptions...)
	if err != nil {
		return "", fmt.Errorf("wire: encode %s %s: %w", msg.MessageType(), msg.MessageID(), err)
	}
	return string(out), nil
}

var (
	payloadOptions = []json.Options{json.Deterministic(true)}
	// Array elements other than payloads are plain strings; replacing bad
	// UTF-8 instead of rejecting it keeps CALLERROR encoding infallible.
	arrayOptions = []json.Options{jsontext.AllowInvalidUTF8(true)}
)

// emptyPayload is sent for a nil payload; OCPP payloads are always objects.
var emptyPayload = jsontext.Value(`{}`)

func payloadJSON(payload any) (jsontext.Value, error) {
	if payload == nil {
		return emptyPayload, nil
	}
	raw, err := json.Marshal(payload, payloadOptions...)
	if err != nil {
		return nil, err
	}
	return jsontext.Value(raw), nil
}

func (m Call) encode(_ *Serializer) ([]any, error) {
	payload, err := payloadJSON(m.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: id=%s action=%s: %v", ErrCallPayload, m.ID, m.Action, err)
	}
	return []any{int(m.MessageType()), m.ID, m.Action, payload}, nil
}

func (m CallResult) encode(s *Serializer) ([]any, error) {
	payload, err := payloadJSON(m.Payload)
	if err != nil {
		s.log.Error("Response payload could not be serialized", "message_id", m.ID, "error", err)
		return PayloadSerializeError(m.ID, err.Error()).encode(s)
	}
	return []any{int(m.MessageType()), m.ID, payload}, nil
}

func (m CallError) encode(s *Serializer) ([]any, error) {
	code := m.Code
	if !code.Valid() {
		s.log.Warn("CallError with unknown error code sent as GenericError", "message_id", m.ID, "code", string(m.Code))
		code = ocpp.GenericError
	}
	details := map[string]string{}
	if m.Details != nil {
		details[detailsKey] = detailsString(m.Details)
	}
	return []any{int(m.MessageType()), m.ID, string(code), m.Description, details}, nil
}

func detailsString(details any) string {
	switch v := details.(type) {
	case string:
		return v
	case error:
		return v.Error()
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
