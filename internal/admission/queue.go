// Package admission bounds the number of concurrent upstream calls per
// (endpoint, model, API mode) target. Each target gets a lazily-created
// gate sized to the feature's configured limit; callers block in arrival
// order when the gate is saturated.
package admission

import (
	"context"
	"sync"
)

// Key identifies one upstream admission target.
type Key struct {
	BaseURL string
	Model   string
	Mode    string // "chat_completions" or "responses"
}

// String renders the key in its canonical form:
// "{baseUrl}/v1/{route}::{model}".
func (k Key) String() string {
	base := k.BaseURL
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	route := "chat/completions"
	if k.Mode == "responses" {
		route = "responses"
	}
	return base + "/v1/" + route + "::" + k.Model
}

// Queue hands out admission slots. The zero value is not usable; create
// one with NewQueue and share it across the process.
type Queue struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
}

// NewQueue creates an empty admission queue.
func NewQueue() *Queue {
	return &Queue{gates: make(map[string]chan struct{})}
}

// WithSlot runs fn while holding an admission slot for key. At most limit
// invocations share a key at any instant; the slot is released on every
// return path and fn's error is propagated unchanged. Waiting for a slot
// aborts with ctx.Err() when ctx is cancelled first. The first use of a
// key fixes its gate size; later calls reuse the existing gate.
func (q *Queue) WithSlot(ctx context.Context, key Key, limit int, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	gate := q.gate(key.String(), limit)
	select {
	case gate <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-gate }()

	return fn(ctx)
}

func (q *Queue) gate(key string, limit int) chan struct{} {
	if limit < 1 {
		limit = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	gate, ok := q.gates[key]
	if !ok {
		gate = make(chan struct{}, limit)
		q.gates[key] = gate
	}
	return gate
}
