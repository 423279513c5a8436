package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

// TestMarshalStart verifies the wire shape of a message_start event.
func TestMarshalStart(t *testing.T) {
	evt := StartEvent("resp_1", "gpt-4.1-mini", "chat_completions")
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"event":"message_start","data":{"id":"resp_1","model":"gpt-4.1-mini","apiMode":"chat_completions"}}`
	if string(data) != want {
		t.Errorf("wire shape: got %s, want %s", data, want)
	}
}

// TestMarshalDeltaAndDone verifies the wire shapes of delta and done events.
func TestMarshalDeltaAndDone(t *testing.T) {
	cases := []struct {
		evt  Event
		want string
	}{
		{DeltaEvent("o"), `{"event":"message_delta","data":{"delta":"o"}}`},
		{DoneEvent("ok"), `{"event":"message_done","data":{"message":"ok"}}`},
		{DoneEvent(""), `{"event":"message_done","data":{"message":""}}`},
	}
	for _, c := range cases {
		data, err := json.Marshal(c.evt)
		if err != nil {
			t.Fatalf("marshal %v failed: %v", c.evt.Type, err)
		}
		if string(data) != c.want {
			t.Errorf("wire shape: got %s, want %s", data, c.want)
		}
	}
}

// TestUnmarshalRoundTrip verifies that events survive encode/decode unchanged.
func TestUnmarshalRoundTrip(t *testing.T) {
	in := []Event{
		StartEvent("id1", "m1", "responses"),
		DeltaEvent("hello"),
		DoneEvent("hello world"),
	}
	for _, evt := range in {
		data, err := json.Marshal(evt)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		var out Event
		if err := json.Unmarshal(data, &out); err != nil {
			t.Fatalf("unmarshal failed: %v", err)
		}
		if out.Type != evt.Type || out.Delta != evt.Delta || out.Message != evt.Message {
			t.Errorf("round trip: got %+v, want %+v", out, evt)
		}
		if evt.Start != nil && (out.Start == nil || *out.Start != *evt.Start) {
			t.Errorf("round trip start: got %+v, want %+v", out.Start, evt.Start)
		}
	}
}

// TestUnmarshalUnknownType verifies that an unknown event name is an error.
func TestUnmarshalUnknownType(t *testing.T) {
	var evt Event
	err := json.Unmarshal([]byte(`{"event":"message_think","data":{}}`), &evt)
	if err == nil {
		t.Fatal("expected error for unknown event type")
	}
}

// TestChannelSinkDelivery verifies that a channel sink hands events to the consumer in order.
func TestChannelSinkDelivery(t *testing.T) {
	ch := NewChannel(4)
	go func() {
		ctx := context.Background()
		ch.Send(ctx, StartEvent("id", "m", "chat_completions"))
		ch.Send(ctx, DeltaEvent("a"))
		ch.Send(ctx, DoneEvent("a"))
		ch.Close()
	}()

	var got []Type
	for evt := range ch.Events() {
		got = append(got, evt.Type)
	}
	want := []Type{TypeMessageStart, TypeMessageDelta, TypeMessageDone}
	if len(got) != len(want) {
		t.Fatalf("event count: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d]: got %s, want %s", i, got[i], want[i])
		}
	}
}

// TestChannelSinkCancelledSend verifies that Send aborts when the context is done.
func TestChannelSinkCancelledSend(t *testing.T) {
	ch := NewChannel(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := ch.Send(ctx, DeltaEvent("x")); err == nil {
		t.Fatal("expected context error from Send with no consumer")
	}
}

// TestSSERoundTrip verifies that events written as SSE can be read back.
func TestSSERoundTrip(t *testing.T) {
	rec := httptest.NewRecorder()
	sw, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("NewSSEWriter failed: %v", err)
	}

	ctx := context.Background()
	sw.Send(ctx, StartEvent("resp_9", "gpt-4.1", "responses"))
	sw.Send(ctx, DeltaEvent("hi"))
	sw.Send(ctx, DoneEvent("hi"))
	sw.Done()

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type: got %q, want text/event-stream", ct)
	}

	reader := NewSSEReader(strings.NewReader(rec.Body.String()))
	var got []Event
	for {
		evt, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reader error: %v", err)
		}
		got = append(got, evt)
	}
	if len(got) != 3 {
		t.Fatalf("event count: got %d, want 3", len(got))
	}
	if got[0].Type != TypeMessageStart || got[0].Start == nil || got[0].Start.ID != "resp_9" {
		t.Errorf("start event: got %+v", got[0])
	}
	if got[1].Delta != "hi" {
		t.Errorf("delta: got %q, want %q", got[1].Delta, "hi")
	}
	if got[2].Message != "hi" {
		t.Errorf("done message: got %q, want %q", got[2].Message, "hi")
	}
}

// TestSSEReaderSkipsMalformed verifies that non-JSON data lines are skipped.
func TestSSEReaderSkipsMalformed(t *testing.T) {
	body := "data: not-json\n\ndata: {\"event\":\"message_delta\",\"data\":{\"delta\":\"ok\"}}\n\ndata: [DONE]\n\n"
	reader := NewSSEReader(strings.NewReader(body))

	evt, err := reader.Next()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if evt.Delta != "ok" {
		t.Errorf("delta: got %q, want %q", evt.Delta, "ok")
	}
	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("expected io.EOF at [DONE], got %v", err)
	}
}

// TestSSEErrorFrame verifies that a written error frame comes back out of the
// reader as a *StreamError.
func TestSSEErrorFrame(t *testing.T) {
	rec := httptest.NewRecorder()
	sw, err := NewSSEWriter(rec)
	if err != nil {
		t.Fatalf("NewSSEWriter failed: %v", err)
	}

	sw.Send(context.Background(), StartEvent("resp_1", "m", "chat_completions"))
	sw.SendError("upstream", "The language model request failed.")
	sw.Done()

	reader := NewSSEReader(strings.NewReader(rec.Body.String()))
	if evt, err := reader.Next(); err != nil || evt.Type != TypeMessageStart {
		t.Fatalf("first read: got %+v, %v", evt, err)
	}

	_, err = reader.Next()
	var se *StreamError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StreamError, got %v", err)
	}
	if se.Kind != "upstream" || se.Message != "The language model request failed." {
		t.Errorf("stream error: got %+v", se)
	}

	if _, err := reader.Next(); err != io.EOF {
		t.Errorf("expected io.EOF after error frame, got %v", err)
	}
}
