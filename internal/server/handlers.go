package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/linkmind/linkmind/internal/analysis"
	"github.com/linkmind/linkmind/internal/bookmarks"
	"github.com/linkmind/linkmind/internal/classify"
	"github.com/linkmind/linkmind/internal/events"
	"github.com/linkmind/linkmind/internal/llm"
	"github.com/linkmind/linkmind/internal/pipeline"
)

// chatPayload is the POST /v1/assistant/chat request body.
type chatPayload struct {
	ConversationID string               `json:"conversationId"`
	Message        string               `json:"message"`
	Stream         bool                 `json:"stream"`
	APIMode        string               `json:"apiMode"`
	Temperature    *float64             `json:"temperature"`
	Bookmarks      []bookmarks.Bookmark `json:"bookmarks"`
	// Context is extra page or selection text the client wants the
	// assistant to see alongside the library.
	Context string `json:"context"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var payload chatPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.Message) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "message is required")
		return
	}
	if payload.APIMode != "" {
		if _, ok := llm.ParseAPIMode(payload.APIMode, llm.APIModeChatCompletions); !ok {
			writeError(w, http.StatusBadRequest, "bad_request", "apiMode must be chat_completions or responses")
			return
		}
	}

	req := pipeline.ChatRequest{
		ConversationID: payload.ConversationID,
		Message:        payload.Message,
		APIMode:        payload.APIMode,
		Temperature:    payload.Temperature,
		Bookmarks:      payload.Bookmarks,
		Addendum:       payload.Context,
	}

	if payload.Stream {
		s.streamChat(w, r, req)
		return
	}

	res, err := s.Pipeline.Chat(r.Context(), req, nil)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// streamChat runs the chat invocation in a goroutine feeding an event
// channel while this handler drains it onto the SSE connection.
func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, req pipeline.ChatRequest) {
	sse, err := events.NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal", "Streaming is not supported on this connection")
		return
	}

	type outcome struct {
		res *pipeline.ChatResult
		err error
	}
	ch := events.NewChannel(16)
	done := make(chan outcome, 1)
	go func() {
		res, chatErr := s.Pipeline.Chat(r.Context(), req, ch)
		ch.Close()
		done <- outcome{res: res, err: chatErr}
	}()

	// Keep draining after a send failure so the producer is never
	// stuck on a dead connection.
	var sendErr error
	for evt := range ch.Events() {
		if sendErr != nil {
			continue
		}
		if err := sse.Send(r.Context(), evt); err != nil {
			sendErr = err
		}
	}

	out := <-done
	if out.err != nil {
		s.writeStreamFailure(sse, out.err)
	}
	sse.Done()
}

// writeStreamFailure reports a failure after SSE headers have gone out,
// as a terminal data frame carrying the outward error shape.
func (s *Server) writeStreamFailure(sse *events.SSEWriter, err error) {
	var c *classify.Classified
	if errors.As(err, &c) {
		if !c.Reportable() {
			return
		}
		slog.Error("chat stream failed", "kind", string(c.Kind), "detail", c.Detail)
		sse.SendError(string(c.Kind), c.OutwardMessage(s.Config.Production))
		return
	}
	slog.Error("chat stream failed", "error", err)
	sse.SendError("internal", "The assistant hit an unexpected error.")
}

// analyzePayload is the POST /v1/assistant/analyze request body.
type analyzePayload struct {
	Bookmark bookmarks.Bookmark `json:"bookmark"`
	Content  string             `json:"content"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	var payload analyzePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid JSON body")
		return
	}
	if strings.TrimSpace(payload.Bookmark.Title) == "" && strings.TrimSpace(payload.Bookmark.URL) == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "bookmark.title or bookmark.url is required")
		return
	}

	res, err := s.Pipeline.Analyze(r.Context(), pipeline.AnalyzeRequest{
		Bookmark: payload.Bookmark,
		Content:  payload.Content,
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleConversationGet(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.Convo.Snapshot(r.PathValue("id"))
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "No such conversation")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleConversationDelete(w http.ResponseWriter, r *http.Request) {
	if !s.Convo.Delete(r.PathValue("id")) {
		writeError(w, http.StatusNotFound, "not_found", "No such conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// writeFailure maps pipeline errors onto the outward error shape.
// Cancelled invocations write nothing: the client already hung up.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var c *classify.Classified
	if errors.As(err, &c) {
		if !c.Reportable() {
			return
		}
		slog.Error("request failed", "kind", string(c.Kind), "detail", c.Detail)
		writeError(w, c.HTTPStatus, string(c.Kind), c.OutwardMessage(s.Config.Production))
		return
	}
	var invalid *analysis.InvalidError
	if errors.As(err, &invalid) {
		slog.Error("analysis produced no valid output", "error", invalid)
		writeError(w, http.StatusBadGateway, "invalid_output", "The language model did not produce a valid analysis.")
		return
	}
	slog.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, "internal", "The assistant hit an unexpected error.")
}

type errorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Kind: kind, Message: message}})
}
