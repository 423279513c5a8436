package events

import (
	"encoding/json"
	"fmt"
)

// Type identifies the kind of a stream event.
type Type string

const (
	TypeMessageStart Type = "message_start"
	TypeMessageDelta Type = "message_delta"
	TypeMessageDone  Type = "message_done"
)

// Start is the message_start payload: the upstream-assigned response id,
// the resolved model name, and the API mode the reply is being produced with.
type Start struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	APIMode string `json:"apiMode"`
}

// Event is one entry in a normalized reply stream. A well-formed stream
// carries at most one message_start, zero or more message_delta, and exactly
// one terminal message_done, in that relative order.
type Event struct {
	Type    Type
	Start   *Start // message_start only
	Delta   string // message_delta only
	Message string // message_done only
}

// StartEvent builds a message_start event.
func StartEvent(id, model, apiMode string) Event {
	return Event{Type: TypeMessageStart, Start: &Start{ID: id, Model: model, APIMode: apiMode}}
}

// DeltaEvent builds a message_delta event carrying one raw text fragment.
func DeltaEvent(delta string) Event {
	return Event{Type: TypeMessageDelta, Delta: delta}
}

// DoneEvent builds the terminal message_done event carrying the full reply.
func DoneEvent(message string) Event {
	return Event{Type: TypeMessageDone, Message: message}
}

type wireEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type deltaData struct {
	Delta string `json:"delta"`
}

type doneData struct {
	Message string `json:"message"`
}

// MarshalJSON encodes the event in its wire shape: {"event": ..., "data": {...}}.
func (e Event) MarshalJSON() ([]byte, error) {
	var data any
	switch e.Type {
	case TypeMessageStart:
		start := e.Start
		if start == nil {
			start = &Start{}
		}
		data = start
	case TypeMessageDelta:
		data = deltaData{Delta: e.Delta}
	case TypeMessageDone:
		data = doneData{Message: e.Message}
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEvent{Event: string(e.Type), Data: raw})
}

// UnmarshalJSON decodes an event from its wire shape.
func (e *Event) UnmarshalJSON(b []byte) error {
	var we wireEvent
	if err := json.Unmarshal(b, &we); err != nil {
		return err
	}
	switch Type(we.Event) {
	case TypeMessageStart:
		var start Start
		if err := json.Unmarshal(we.Data, &start); err != nil {
			return err
		}
		*e = Event{Type: TypeMessageStart, Start: &start}
	case TypeMessageDelta:
		var d deltaData
		if err := json.Unmarshal(we.Data, &d); err != nil {
			return err
		}
		*e = Event{Type: TypeMessageDelta, Delta: d.Delta}
	case TypeMessageDone:
		var d doneData
		if err := json.Unmarshal(we.Data, &d); err != nil {
			return err
		}
		*e = Event{Type: TypeMessageDone, Message: d.Message}
	default:
		return fmt.Errorf("unknown event type %q", we.Event)
	}
	return nil
}
