package convo

import (
	"fmt"
	"testing"
	"time"

	"github.com/linkmind/linkmind/internal/llm"
)

// TestAppendCreatesAndContinues verifies an empty id mints a new
// conversation and a known id extends it.
func TestAppendCreatesAndContinues(t *testing.T) {
	s := NewStore(time.Minute, 10)
	defer s.Close()

	id := s.Append("", llm.UserMessage("hi"))
	if id == "" {
		t.Fatal("Append returned empty id")
	}
	got := s.Append(id, llm.AssistantMessage("hello"))
	if got != id {
		t.Errorf("Append id: got %q, want %q", got, id)
	}

	msgs, ok := s.History(id)
	if !ok {
		t.Fatal("History: conversation missing")
	}
	if len(msgs) != 2 {
		t.Fatalf("message count: got %d, want 2", len(msgs))
	}
	if msgs[0].Content != "hi" || msgs[1].Content != "hello" {
		t.Errorf("messages: got %+v", msgs)
	}
}

// TestHistoryReturnsCopy verifies mutating a returned slice does not
// corrupt the stored conversation.
func TestHistoryReturnsCopy(t *testing.T) {
	s := NewStore(time.Minute, 10)
	defer s.Close()

	id := s.Append("", llm.UserMessage("original"))
	msgs, _ := s.History(id)
	msgs[0].Content = "mutated"

	again, _ := s.History(id)
	if again[0].Content != "original" {
		t.Errorf("stored message mutated: got %q", again[0].Content)
	}
}

// TestExpiry verifies idle conversations read as absent after the TTL
// without waiting for the background sweep.
func TestExpiry(t *testing.T) {
	s := NewStore(30*time.Millisecond, 10)
	defer s.Close()

	id := s.Append("", llm.UserMessage("hi"))
	time.Sleep(60 * time.Millisecond)

	if _, ok := s.History(id); ok {
		t.Error("expired conversation still readable")
	}
	if s.Len() != 0 {
		t.Errorf("store len after expiry read: got %d, want 0", s.Len())
	}
}

// TestCapacityEviction verifies the least recently used conversation
// is evicted first and reads refresh recency.
func TestCapacityEviction(t *testing.T) {
	s := NewStore(time.Minute, 2)
	defer s.Close()

	a := s.Append("", llm.UserMessage("a"))
	b := s.Append("", llm.UserMessage("b"))
	if _, ok := s.History(a); !ok {
		t.Fatal("conversation a missing before eviction")
	}

	// a was just touched, so adding a third must evict b.
	c := s.Append("", llm.UserMessage("c"))
	if s.Len() != 2 {
		t.Fatalf("store len: got %d, want 2", s.Len())
	}
	if _, ok := s.History(b); ok {
		t.Error("least recently used conversation survived eviction")
	}
	for _, id := range []string{a, c} {
		if _, ok := s.History(id); !ok {
			t.Errorf("conversation %q evicted unexpectedly", id)
		}
	}
}

func TestSnapshot(t *testing.T) {
	s := NewStore(time.Minute, 10)
	defer s.Close()

	id := s.Append("", llm.UserMessage("hi"))
	snap, ok := s.Snapshot(id)
	if !ok {
		t.Fatal("Snapshot: conversation missing")
	}
	if snap.ID != id || len(snap.Messages) != 1 {
		t.Errorf("snapshot: got %+v", snap)
	}
	if snap.Updated.IsZero() {
		t.Error("snapshot missing updated time")
	}
	if _, ok := s.Snapshot("missing"); ok {
		t.Error("Snapshot returned a conversation for unknown id")
	}
}

func TestUniqueIDs(t *testing.T) {
	s := NewStore(time.Minute, 100)
	defer s.Close()

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		id := s.Append("", llm.UserMessage(fmt.Sprintf("m%d", i)))
		if seen[id] {
			t.Fatalf("duplicate conversation id %q", id)
		}
		seen[id] = true
	}
}

func TestDelete(t *testing.T) {
	s := NewStore(time.Minute, 100)
	defer s.Close()

	id := s.Append("", llm.UserMessage("hi"))
	if !s.Delete(id) {
		t.Error("Delete reported missing for a stored conversation")
	}
	if _, ok := s.History(id); ok {
		t.Error("conversation still readable after delete")
	}
	if s.Delete(id) {
		t.Error("second delete should report missing")
	}
	if got := s.Len(); got != 0 {
		t.Errorf("Len() = %d after delete", got)
	}
}
