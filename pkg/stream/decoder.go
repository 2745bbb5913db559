package stream

import (
	"encoding/json"

	"github.com/quantfold/tickstream/pkg/errors"
)

// EventType identifies the shape of a decoded inbound message.
type EventType string

const (
	// EventTrade carries one or more batched ticks.
	EventTrade EventType = "trade"
	// EventAck acknowledges a subscribe or unsubscribe.
	EventAck EventType = "ack"
	// EventServerError is an error reported by the provider.
	EventServerError EventType = "error"
	// EventPing is a heartbeat; it only resets the liveness timer.
	EventPing EventType = "ping"
	// EventUnknown is a well-formed message of an unrecognized shape.
	EventUnknown EventType = "unknown"
)

// Event is a decoded inbound message.
type Event struct {
	Type EventType
	// Trades holds the batched ticks of an EventTrade.
	Trades []Tick
	// Message holds the text of an EventServerError, or the echoed symbol
	// of an EventAck.
	Message string
}

// inboundMessage is the superset wire shape of all inbound messages.
type inboundMessage struct {
	Type   string `json:"type"`
	Data   []Tick `json:"data,omitempty"`
	Msg    string `json:"msg,omitempty"`
	Symbol string `json:"symbol,omitempty"`
}

// DecodeMessage parses a raw inbound message into a typed event. It is a pure
// function with no state. Unrecognized but well-formed messages decode to
// EventUnknown; only non-parseable payloads return an error, which the caller
// counts without tearing down the stream.
func DecodeMessage(raw []byte) (Event, error) {
	var msg inboundMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		//nolint:exhaustruct // zero Event on error
		return Event{}, errors.Wrap(errors.ErrCodeMalformedMessage, "failed to decode inbound message", err)
	}

	switch msg.Type {
	case "trade":
		return Event{Type: EventTrade, Trades: msg.Data, Message: ""}, nil
	case "subscribe-ack", "unsubscribe-ack":
		return Event{Type: EventAck, Trades: nil, Message: msg.Symbol}, nil
	case "error":
		return Event{Type: EventServerError, Trades: nil, Message: msg.Msg}, nil
	case "ping":
		return Event{Type: EventPing, Trades: nil, Message: ""}, nil
	default:
		return Event{Type: EventUnknown, Trades: nil, Message: msg.Type}, nil
	}
}
