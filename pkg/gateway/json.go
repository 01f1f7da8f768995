package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"

	"ocppgate/pkg/bus"
	"ocppgate/pkg/channel"
	"ocppgate/pkg/ocpp"
	"ocppgate/pkg/wire"
)

// CallHandler answers one inbound call. The returned value becomes the
// CALLRESULT payload. Returning a wire.CallError (or a pointer to one) sends
// that error; any other error is sent as GenericError.
type CallHandler func(ctx context.Context, chargeBoxID string, payload jsontext.Value) (any, error)

// CallRequest is a server initiated call to one charge box.
type CallRequest struct {
	ChargeBoxID string
	Action      string
	Payload     any
	Origin      ocpp.TaskOrigin
}

var (
	ErrNotQueued   = errors.New("gateway: outbound message was not queued")
	ErrSubProtocol = errors.New("gateway: unsupported sub-protocol")
)

// SendCall serializes and queues a call, returning its message id. A payload
// without a JSON form is returned as an error and nothing is queued.
func (s *Service) SendCall(ctx context.Context, req CallRequest) (string, error) {
	if strings.TrimSpace(req.ChargeBoxID) == "" {
		return "", errors.New("charge box id is required")
	}
	if strings.TrimSpace(req.Action) == "" {
		return "", errors.New("action is required")
	}
	if req.Origin == "" {
		req.Origin = ocpp.OriginInternal
	}

	id := uuid.NewString()
	text, err := s.serializer.Serialize(wire.Call{ID: id, Action: req.Action, Payload: req.Payload})
	if err != nil {
		s.bus.PublishEvent(ctx, bus.Event{
			Type:        bus.EventSerializeFailed,
			ChargeBoxID: req.ChargeBoxID,
			MessageID:   id,
			Action:      req.Action,
			Origin:      req.Origin,
			Error:       err.Error(),
		})
		return "", err
	}

	if !s.bus.PublishOutbound(ctx, bus.OutboundMessage{ChargeBoxID: req.ChargeBoxID, MessageID: id, Content: text}) {
		return "", ErrNotQueued
	}

	s.bus.PublishEvent(ctx, bus.Event{
		Type:        bus.EventCallSent,
		ChargeBoxID: req.ChargeBoxID,
		MessageID:   id,
		Action:      req.Action,
		Origin:      req.Origin,
	})
	s.log.Debug("Call queued", "charge_box_id", req.ChargeBoxID, "message_id", id, "action", req.Action, "origin", req.Origin)
	return id, nil
}

// handleInbound is the channel.Handler for every JSON transport adapter.
func (s *Service) handleInbound(ctx context.Context, in channel.InboundMessage) (string, error) {
	if strings.TrimSpace(in.ChargeBoxID) == "" {
		return "", errors.New("inbound message without charge box id")
	}
	if !s.stations.Accepts(in.SubProtocol) {
		s.log.Warn("Rejecting frame on unsupported sub-protocol", "charge_box_id", in.ChargeBoxID, "sub_protocol", in.SubProtocol)
		return "", fmt.Errorf("%w: %q", ErrSubProtocol, in.SubProtocol)
	}

	msg, err := wire.Decode(in.Content)
	if err != nil {
		var decodeErr *wire.DecodeError
		if errors.As(err, &decodeErr) && decodeErr.ID != "" && decodeErr.Type == ocpp.Call {
			s.log.Warn("Malformed call", "charge_box_id", in.ChargeBoxID, "message_id", decodeErr.ID, "error", err)
			return s.serialize(wire.PayloadDeserializeError(decodeErr.ID, err.Error())), nil
		}
		s.log.Warn("Dropping undecodable message", "charge_box_id", in.ChargeBoxID, "channel", in.Channel, "error", err)
		return "", fmt.Errorf("decode inbound message: %w", err)
	}

	switch m := msg.(type) {
	case wire.Call:
		return s.stations.Serve(in.ChargeBoxID, in.SubProtocol, func() string {
			return s.handleCall(ctx, in, m)
		}), nil

	case wire.CallResult:
		s.stations.Touch(in.ChargeBoxID)
		s.bus.PublishEvent(ctx, bus.Event{
			Type:        bus.EventResultReceived,
			ChargeBoxID: in.ChargeBoxID,
			MessageID:   m.ID,
			Payload:     rawString(m.Payload),
		})
		return "", nil

	case wire.CallError:
		s.stations.Touch(in.ChargeBoxID)
		s.bus.PublishEvent(ctx, bus.Event{
			Type:        bus.EventErrorReceived,
			ChargeBoxID: in.ChargeBoxID,
			MessageID:   m.ID,
			ErrorCode:   m.Code,
			Error:       m.Description,
		})
		return "", nil

	default:
		return "", fmt.Errorf("unexpected message %T", msg)
	}
}

func (s *Service) handleCall(ctx context.Context, in channel.InboundMessage, call wire.Call) string {
	s.bus.PublishEvent(ctx, bus.Event{
		Type:        bus.EventCallReceived,
		ChargeBoxID: in.ChargeBoxID,
		MessageID:   call.ID,
		Action:      call.Action,
	})

	handler, ok := s.callHandlers[call.Action]
	if !ok {
		s.log.Info("Call for unhandled action", "charge_box_id", in.ChargeBoxID, "message_id", call.ID, "action", call.Action)
		return s.serialize(wire.NotImplemented(call.ID, call.Action))
	}

	payload, _ := call.Payload.(jsontext.Value)
	result, err := handler(ctx, in.ChargeBoxID, payload)
	if err != nil {
		if callErr, ok := asCallError(err); ok {
			callErr.ID = call.ID
			return s.serialize(callErr)
		}
		s.log.Error("Call handler failed", "charge_box_id", in.ChargeBoxID, "message_id", call.ID, "action", call.Action, "error", err)
		return s.serialize(wire.GenericError(call.ID, err.Error()))
	}

	return s.serialize(wire.CallResult{ID: call.ID, Payload: result})
}

// serialize is only used for responses, which never fail to encode.
func (s *Service) serialize(msg wire.Message) string {
	text, err := s.serializer.Serialize(msg)
	if err != nil {
		s.log.Error("Response could not be encoded", "message_id", msg.MessageID(), "error", err)
		return ""
	}
	return text
}

// asCallError finds a CallError in err's chain in value or pointer form.
func asCallError(err error) (wire.CallError, bool) {
	var callErr wire.CallError
	if errors.As(err, &callErr) {
		return callErr, true
	}
	var callErrPtr *wire.CallError
	if errors.As(err, &callErrPtr) && callErrPtr != nil {
		return *callErrPtr, true
	}
	return wire.CallError{}, false
}

func rawString(payload any) string {
	if raw, ok := payload.(jsontext.Value); ok {
		return string(raw)
	}
	return ""
}
