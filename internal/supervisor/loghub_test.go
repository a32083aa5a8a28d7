package supervisor

import (
	"fmt"
	"testing"
)

func collect(t *testing.T, ch <-chan string, n int) []string {
	t.Helper()
	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		select {
		case line, ok := <-ch:
			if !ok {
				t.Fatalf("channel closed after %d lines, want %d", i, n)
			}
			out = append(out, line)
		default:
			t.Fatalf("only %d lines buffered, want %d", i, n)
		}
	}
	return out
}

func TestSubscribeReplaysHistoryThenLive(t *testing.T) {
	h := NewLogHub()
	ch := h.Open(1)
	for i := 0; i < 5; i++ {
		ch.Push(fmt.Sprintf("line-%d", i))
	}
	sub, cancel, ok := h.Subscribe(1)
	if !ok {
		t.Fatalf("subscribe failed")
	}
	defer cancel()
	got := collect(t, sub, 5)
	for i, line := range got {
		if want := fmt.Sprintf("line-%d", i); line != want {
			t.Fatalf("replay[%d]=%q want %q", i, line, want)
		}
	}
	ch.Push("live-1")
	ch.Push("live-2")
	live := collect(t, sub, 2)
	if live[0] != "live-1" || live[1] != "live-2" {
		t.Fatalf("live lines: %v", live)
	}
}

func TestReplayEvictsOldestBeyondCapacity(t *testing.T) {
	h := NewLogHub()
	ch := h.Open(1)
	total := logBufferLines + 50
	for i := 0; i < total; i++ {
		ch.Push(fmt.Sprintf("line-%d", i))
	}
	sub, cancel, _ := h.Subscribe(1)
	defer cancel()
	got := collect(t, sub, logBufferLines)
	if first := got[0]; first != fmt.Sprintf("line-%d", total-logBufferLines) {
		t.Fatalf("first replayed=%q", first)
	}
	if last := got[len(got)-1]; last != fmt.Sprintf("line-%d", total-1) {
		t.Fatalf("last replayed=%q", last)
	}
	select {
	case extra := <-sub:
		t.Fatalf("unexpected extra line %q", extra)
	default:
	}
}

func TestSlowSubscriberIsPrunedNotBlocking(t *testing.T) {
	h := NewLogHub()
	ch := h.Open(1)
	slow, _, _ := h.Subscribe(1)
	fast, cancelFast, _ := h.Subscribe(1)
	defer cancelFast()
	// Overflow the slow subscriber's buffer without draining it.
	for i := 0; i < subscriberBuffer+10; i++ {
		ch.Push("x")
	}
	// The fast subscriber was pruned too since nothing drained it; what
	// matters is Push never blocked and both channels are closed.
	drainClosed := func(c <-chan string) bool {
		for {
			if _, ok := <-c; !ok {
				return true
			}
		}
	}
	if !drainClosed(slow) || !drainClosed(fast) {
		t.Fatalf("expected pruned subscribers to observe close")
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	h := NewLogHub()
	ch := h.Open(1)
	_, cancel, _ := h.Subscribe(1)
	cancel()
	cancel() // second call must not panic or double close
	ch.Push("after")
}

func TestCloseDropsSubscribersAndBuffer(t *testing.T) {
	h := NewLogHub()
	ch := h.Open(1)
	ch.Push("one")
	sub, _, _ := h.Subscribe(1)
	h.Close(1)
	// drain replay then observe close
	if line, ok := <-sub; !ok || line != "one" {
		t.Fatalf("replay line=%q ok=%v", line, ok)
	}
	if _, ok := <-sub; ok {
		t.Fatalf("expected closed subscriber channel")
	}
	if _, _, ok := h.Subscribe(1); ok {
		t.Fatalf("subscribe must fail after close")
	}
	ch.Push("ignored") // push after close is a no-op
}

func TestOpenIsIdempotentPerModel(t *testing.T) {
	h := NewLogHub()
	a := h.Open(7)
	b := h.Open(7)
	if a != b {
		t.Fatalf("expected same channel for one model")
	}
}
