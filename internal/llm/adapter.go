package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/linkmind/linkmind/internal/events"
)

// Options configure an Adapter.
type Options struct {
	// BaseURL is the upstream root without the /v1 suffix, e.g.
	// "http://localhost:11434". The adapter appends /v1 itself.
	BaseURL string
	// APIKey is sent as a bearer token. Local inference servers accept
	// any value, so an empty key is still forwarded as-is.
	APIKey string
	// Mode selects the wire protocol for every call made through this
	// adapter.
	Mode APIMode
	// HTTPClient overrides the transport, mainly for authenticated
	// clients. Nil uses the default.
	HTTPClient *http.Client
	// RequestTimeout bounds each upstream call. Zero means no limit.
	RequestTimeout time.Duration
}

// Adapter speaks one of the upstream protocols through the OpenAI
// client and normalizes replies and stream events.
type Adapter struct {
	client  openai.Client
	mode    APIMode
	timeout time.Duration
}

// New builds an Adapter for the given upstream.
func New(opts Options) *Adapter {
	clientOpts := []option.RequestOption{
		option.WithBaseURL(opts.BaseURL + "/v1/"),
		option.WithAPIKey(opts.APIKey),
	}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.HTTPClient))
	}
	mode := opts.Mode
	if mode == "" {
		mode = APIModeChatCompletions
	}
	return &Adapter{
		client:  openai.NewClient(clientOpts...),
		mode:    mode,
		timeout: opts.RequestTimeout,
	}
}

// Mode reports the wire protocol this adapter speaks.
func (a *Adapter) Mode() APIMode { return a.mode }

// Complete issues one buffered upstream call.
func (a *Adapter) Complete(ctx context.Context, p Params, msgs []Message) (*Reply, error) {
	switch a.mode {
	case APIModeResponses:
		return a.completeResponses(ctx, p, msgs)
	default:
		return a.completeChat(ctx, p, msgs)
	}
}

// Stream issues one streaming upstream call, forwarding normalized
// message_start and message_delta events to sink.
func (a *Adapter) Stream(ctx context.Context, p Params, msgs []Message, sink events.Sink) (*Reply, error) {
	switch a.mode {
	case APIModeResponses:
		return a.streamResponses(ctx, p, msgs, sink)
	default:
		return a.streamChat(ctx, p, msgs, sink)
	}
}

func (a *Adapter) callOpts() []option.RequestOption {
	if a.timeout <= 0 {
		return nil
	}
	return []option.RequestOption{option.WithRequestTimeout(a.timeout)}
}

func (a *Adapter) sendStart(ctx context.Context, sink events.Sink, id, model string) error {
	if id == "" {
		id = syntheticID("msg")
	}
	return sink.Send(ctx, events.StartEvent(id, model, string(a.mode)))
}

func syntheticID(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, uuid.NewString())
}

var _ Caller = (*Adapter)(nil)
