package conn

import (
	"context"
	"testing"
	"time"

	"github.com/fitclash/battle-backend/pkg/types"
	"go.uber.org/zap"
)

func recvEvent(t *testing.T, ch <-chan types.ServerEvent, within time.Duration) types.ServerEvent {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatalf("outbox closed unexpectedly")
		}
		return ev
	case <-time.After(within):
		t.Fatalf("timed out waiting for event")
		return types.ServerEvent{}
	}
}

func recvClosed(t *testing.T, ch <-chan types.ServerEvent, within time.Duration) {
	t.Helper()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed outbox, got event")
		}
	case <-time.After(within):
		t.Fatalf("outbox not closed")
	}
}

func TestHub_SendReachesBoundUser(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, zap.NewNop())

	out := make(chan types.ServerEvent, 4)
	h.Inbox() <- Bind{UserID: "u1", Outbox: out}
	h.Send("u1", types.NewError("x", "y"))

	ev := recvEvent(t, out, time.Second)
	if ev.ReceiverID != "u1" {
		t.Fatalf("want receiver u1, got %q", ev.ReceiverID)
	}
}

func TestHub_SendToUnboundUserIsDropped(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, zap.NewNop())

	// Must not block or panic; the store stays authoritative.
	h.Send("ghost", types.NewError("x", "y"))
	if ids := h.ConnectedIDs(); len(ids) != 0 {
		t.Fatalf("want no sessions, got %v", ids)
	}
}

func TestHub_RebindSupersedesOldConnection(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, zap.NewNop())

	old := make(chan types.ServerEvent, 4)
	h.Inbox() <- Bind{UserID: "u1", Outbox: old}
	fresh := make(chan types.ServerEvent, 4)
	h.Inbox() <- Bind{UserID: "u1", Outbox: fresh}

	recvClosed(t, old, time.Second)

	h.Send("u1", types.NewError("x", "y"))
	recvEvent(t, fresh, time.Second)

	// Unbind carrying the superseded outbox must not tear down the fresh one.
	h.Inbox() <- Unbind{UserID: "u1", Outbox: old}
	h.Send("u1", types.NewError("x", "y"))
	recvEvent(t, fresh, time.Second)
}

func TestHub_BroadcastAndConnectedIDs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, zap.NewNop())

	outA := make(chan types.ServerEvent, 4)
	outB := make(chan types.ServerEvent, 4)
	h.Inbox() <- Bind{UserID: "a", Outbox: outA}
	h.Inbox() <- Bind{UserID: "b", Outbox: outB}

	h.Broadcast([]string{"a", "b", "missing"}, types.NewError("x", "y"))
	if ev := recvEvent(t, outA, time.Second); ev.ReceiverID != "a" {
		t.Fatalf("a got %q", ev.ReceiverID)
	}
	if ev := recvEvent(t, outB, time.Second); ev.ReceiverID != "b" {
		t.Fatalf("b got %q", ev.ReceiverID)
	}

	ids := h.ConnectedIDs()
	if len(ids) != 2 {
		t.Fatalf("want 2 connected, got %v", ids)
	}
}

func TestHub_UnbindClosesOutbox(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := NewHub(ctx, zap.NewNop())

	out := make(chan types.ServerEvent, 4)
	h.Inbox() <- Bind{UserID: "u1", Outbox: out}
	h.Inbox() <- Unbind{UserID: "u1", Outbox: out}
	recvClosed(t, out, time.Second)

	if ids := h.ConnectedIDs(); len(ids) != 0 {
		t.Fatalf("want no sessions after unbind, got %v", ids)
	}
}
