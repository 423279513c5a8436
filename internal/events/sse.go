package events

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrStreamingUnsupported is returned when the response writer cannot flush.
var ErrStreamingUnsupported = errors.New("response writer does not support streaming")

// SSEWriter writes events to an HTTP response as server-sent events,
// flushing after every event. It implements Sink.
type SSEWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewSSEWriter prepares w for SSE output and writes the stream headers.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// Send writes one event as a data: line and flushes.
func (s *SSEWriter) Send(ctx context.Context, evt Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Done writes the stream terminator.
func (s *SSEWriter) Done() {
	fmt.Fprint(s.w, "data: [DONE]\n\n")
	s.flusher.Flush()
}

// StreamError is the terminal frame written when a stream fails after its
// headers have already gone out. It travels in the same data: framing as
// events, so readers see it in stream order.
type StreamError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream error (%s): %s", e.Kind, e.Message)
}

// SendError writes a terminal error frame. The caller still finishes the
// stream with Done so clients reading until [DONE] do not hang.
func (s *SSEWriter) SendError(kind, message string) {
	frame := struct {
		Event string      `json:"event"`
		Data  StreamError `json:"data"`
	}{Event: "error", Data: StreamError{Kind: kind, Message: message}}
	b, err := json.Marshal(frame)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "data: %s\n\n", b)
	s.flusher.Flush()
}

// SSEReader reads events back out of an SSE stream.
type SSEReader struct {
	scanner *bufio.Scanner
}

// NewSSEReader creates a reader over an SSE body.
func NewSSEReader(r io.Reader) *SSEReader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), 1024*1024)
	return &SSEReader{scanner: scanner}
}

// Next returns the next event. Returns io.EOF at the [DONE] terminator or
// end of stream, and a *StreamError when the server reported a failure
// mid-stream; other malformed data lines are skipped.
func (r *SSEReader) Next() (Event, error) {
	for r.scanner.Scan() {
		line := r.scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		data := strings.TrimSpace(line[6:])
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			return Event{}, io.EOF
		}
		var evt Event
		if err := json.Unmarshal([]byte(data), &evt); err == nil {
			return evt, nil
		}
		var we wireEvent
		if err := json.Unmarshal([]byte(data), &we); err == nil && we.Event == "error" {
			var se StreamError
			if err := json.Unmarshal(we.Data, &se); err == nil {
				return Event{}, &se
			}
		}
	}
	if err := r.scanner.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}
