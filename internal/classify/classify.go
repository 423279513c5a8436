// Package classify maps upstream and transport failures onto the small
// closed set of error kinds the HTTP surface reports. Upstream status
// codes never pass through unchanged: auth and rate-limit responses
// from the model server are the sidecar's problem, not the caller's.
package classify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
)

// Kind is the classified error category.
type Kind string

const (
	// KindCancelled marks a caller disconnect. It is never reported
	// outward; the request simply ends.
	KindCancelled Kind = "cancelled"
	// KindTimeout marks an upstream call that exceeded its deadline.
	KindTimeout Kind = "timeout"
	// KindAuth marks upstream 401/403. Surfaces as 503 so credentials
	// trouble between sidecar and model server is not confused with
	// the caller's own auth.
	KindAuth Kind = "auth"
	// KindRateLimit marks upstream 429, surfaced as 503.
	KindRateLimit Kind = "rate_limit"
	// KindModelUnavailable marks a 400 whose message indicates the
	// model failed to load or is not present on the server.
	KindModelUnavailable Kind = "model_unavailable"
	// KindUpstream covers every other upstream failure.
	KindUpstream Kind = "upstream"
)

// Classified carries one classified failure: the outward HTTP status
// and safe message, plus the diagnostic detail for logs.
type Classified struct {
	Kind       Kind
	HTTPStatus int    // 0 when nothing should be written, i.e. cancelled
	Message    string // stable, safe for clients
	Detail     string // for logs; may contain upstream text
	Err        error
}

func (c *Classified) Error() string {
	if c.Detail != "" {
		return fmt.Sprintf("%s: %s", c.Kind, c.Detail)
	}
	return string(c.Kind)
}

func (c *Classified) Unwrap() error { return c.Err }

// Reportable reports whether the failure should be written to the
// client at all.
func (c *Classified) Reportable() bool { return c.Kind != KindCancelled }

// OutwardMessage is the client-facing text. In production mode it is
// the fixed per-kind message only; otherwise the diagnostic detail is
// appended for local debugging. The HTTP status is the same either way.
func (c *Classified) OutwardMessage(production bool) string {
	if production || c.Detail == "" {
		return c.Message
	}
	return fmt.Sprintf("%s (%s)", c.Message, c.Detail)
}

// Stable outward messages. These deliberately say nothing about the
// upstream configuration or its response bodies.
const (
	msgTimeout          = "The language model took too long to respond."
	msgAuth             = "The assistant is temporarily unable to reach its language model."
	msgRateLimit        = "The assistant is handling too many requests right now. Please retry shortly."
	msgModelUnavailable = "The requested model is loading or unavailable. Please retry shortly."
	msgUpstream         = "The assistant's language model returned an error."
)

// Classify assigns err to exactly one Kind.
func Classify(err error) *Classified {
	if errors.Is(err, context.Canceled) {
		return &Classified{Kind: KindCancelled, Detail: "request cancelled by caller", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Classified{
			Kind:       KindTimeout,
			HTTPStatus: http.StatusGatewayTimeout,
			Message:    msgTimeout,
			Detail:     "upstream call exceeded its deadline",
			Err:        err,
		}
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(apiErr.StatusCode, apiErr.Message, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Classified{
			Kind:       KindTimeout,
			HTTPStatus: http.StatusGatewayTimeout,
			Message:    msgTimeout,
			Detail:     "network timeout talking to upstream",
			Err:        err,
		}
	}

	return &Classified{
		Kind:       KindUpstream,
		HTTPStatus: http.StatusBadGateway,
		Message:    msgUpstream,
		Detail:     err.Error(),
		Err:        err,
	}
}

func classifyStatus(status int, message string, err error) *Classified {
	detail := upstreamDetail(status, message)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Classified{Kind: KindAuth, HTTPStatus: http.StatusServiceUnavailable, Message: msgAuth, Detail: detail, Err: err}
	case status == http.StatusTooManyRequests:
		return &Classified{Kind: KindRateLimit, HTTPStatus: http.StatusServiceUnavailable, Message: msgRateLimit, Detail: detail, Err: err}
	case status == http.StatusBadRequest && modelLoadMessage(message):
		return &Classified{Kind: KindModelUnavailable, HTTPStatus: http.StatusServiceUnavailable, Message: msgModelUnavailable, Detail: detail, Err: err}
	default:
		return &Classified{Kind: KindUpstream, HTTPStatus: http.StatusBadGateway, Message: msgUpstream, Detail: detail, Err: err}
	}
}

func upstreamDetail(status int, message string) string {
	label := fmt.Sprintf("%d", status)
	if text := http.StatusText(status); text != "" {
		label = fmt.Sprintf("%d %s", status, text)
	}
	if msg := strings.TrimSpace(message); msg != "" {
		return fmt.Sprintf("upstream HTTP %s: %s", label, msg)
	}
	return fmt.Sprintf("upstream HTTP %s with empty error body", label)
}

// modelLoadMessage recognizes the error bodies local inference servers
// return while a model is still loading or missing from disk.
func modelLoadMessage(message string) bool {
	m := strings.ToLower(message)
	if !strings.Contains(m, "model") {
		return false
	}
	return strings.Contains(m, "load") ||
		strings.Contains(m, "not found") ||
		strings.Contains(m, "unavailable")
}
