// Package conn maintains the ephemeral binding of user ids to live
// connections. One hub goroutine owns the session table; delivery is
// best-effort because the store stays authoritative for battle state.
package conn

import (
	"context"

	"github.com/fitclash/battle-backend/pkg/types"
	"go.uber.org/zap"
)

type Msg interface{ isHubMsg() }

type Bind struct {
	UserID string
	Outbox chan types.ServerEvent
}

type Unbind struct {
	UserID string
	Outbox chan types.ServerEvent // only unbinds if still the active session
}

type Send struct {
	UserID string
	Event  types.ServerEvent
}

type Broadcast struct {
	UserIDs []string
	Event   types.ServerEvent
}

type Connected struct {
	Reply chan []string
}

type Shutdown struct{}

func (Bind) isHubMsg()      {}
func (Unbind) isHubMsg()    {}
func (Send) isHubMsg()      {}
func (Broadcast) isHubMsg() {}
func (Connected) isHubMsg() {}
func (Shutdown) isHubMsg()  {}

type Hub struct {
	inbox    chan Msg
	sessions map[string]chan types.ServerEvent
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc
}

func NewHub(parent context.Context, log *zap.Logger) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:    make(chan Msg, 64),
		sessions: make(map[string]chan types.ServerEvent),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- Msg { return h.inbox }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case Bind:
				// A new connection supersedes the old one.
				if old, ok := h.sessions[msg.UserID]; ok && old != msg.Outbox {
					close(old)
				}
				h.sessions[msg.UserID] = msg.Outbox
				h.log.Debug("session bound", zap.String("user", msg.UserID))

			case Unbind:
				if h.sessions[msg.UserID] == msg.Outbox {
					delete(h.sessions, msg.UserID)
					close(msg.Outbox)
					h.log.Debug("session unbound", zap.String("user", msg.UserID))
				}

			case Send:
				h.deliver(msg.UserID, msg.Event)

			case Broadcast:
				for _, id := range msg.UserIDs {
					h.deliver(id, msg.Event)
				}

			case Connected:
				ids := make([]string, 0, len(h.sessions))
				for id := range h.sessions {
					ids = append(ids, id)
				}
				msg.Reply <- ids

			case Shutdown:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) deliver(userID string, ev types.ServerEvent) {
	ch, ok := h.sessions[userID]
	if !ok {
		return // nobody bound; the store remains authoritative
	}
	ev.ReceiverID = userID
	select {
	case ch <- ev:
	default:
		// Slow consumer: drop the event, keep the session.
		h.log.Warn("outbox full, event dropped",
			zap.String("user", userID), zap.String("type", ev.Type))
	}
}

func (h *Hub) shutdown() {
	for id, ch := range h.sessions {
		close(ch)
		delete(h.sessions, id)
	}
	h.cancel()
}

// Send delivers an event to one user, dropping it if no session is bound.
func (h *Hub) Send(userID string, ev types.ServerEvent) {
	select {
	case h.inbox <- Send{UserID: userID, Event: ev}:
	case <-h.ctx.Done():
	}
}

// Broadcast delivers an event to each listed user, best-effort.
func (h *Hub) Broadcast(userIDs []string, ev types.ServerEvent) {
	select {
	case h.inbox <- Broadcast{UserIDs: userIDs, Event: ev}:
	case <-h.ctx.Done():
	}
}

// ConnectedIDs returns the ids of every currently bound user.
func (h *Hub) ConnectedIDs() []string {
	reply := make(chan []string, 1)
	select {
	case h.inbox <- Connected{Reply: reply}:
	case <-h.ctx.Done():
		return nil
	}
	select {
	case ids := <-reply:
		return ids
	case <-h.ctx.Done():
		return nil
	}
}
