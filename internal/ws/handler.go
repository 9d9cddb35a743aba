// Package ws binds a websocket to the connection hub and translates inbound
// frames into coordinator commands. The transport stays dumb: every guard is
// re-validated inside the coordinator regardless of what the client claims.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/fitclash/battle-backend/internal/battle"
	"github.com/fitclash/battle-backend/internal/conn"
	"github.com/fitclash/battle-backend/internal/coordinator"
	"github.com/fitclash/battle-backend/internal/store"
	"github.com/fitclash/battle-backend/pkg/types"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

func Handler(h *conn.Hub, svc *coordinator.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			userID = r.URL.Query().Get("user_id")
		}
		if userID == "" {
			http.Error(w, "missing user id", http.StatusBadRequest)
			return
		}

		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.Close(websocket.StatusNormalClosure, "bye")

		out := make(chan types.ServerEvent, 16)
		h.Inbox() <- conn.Bind{UserID: userID, Outbox: out}
		defer func() { h.Inbox() <- conn.Unbind{UserID: userID, Outbox: out} }()

		writeCtx, writeCancel := context.WithCancel(r.Context())
		defer writeCancel()
		go func() {
			for ev := range out {
				payload, err := json.Marshal(ev)
				if err != nil {
					continue
				}
				ctx, cancel := context.WithTimeout(writeCtx, writeTimeout)
				_ = c.Write(ctx, websocket.MessageText, payload)
				cancel()
			}
		}()

		for {
			_, data, err := c.Read(r.Context())
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					return
				}
				// Anything else drops the session too; a reconnect simply
				// re-binds the user id and does not touch battle state.
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				h.Send(userID, types.NewError("bad_request", "malformed message"))
				continue
			}
			dispatch(r.Context(), svc, h, userID, cm, log)
		}
	}
}

func dispatch(ctx context.Context, svc *coordinator.Service, h *conn.Hub, userID string, cm types.ClientMessage, log *zap.Logger) {
	var err error
	switch cm.Type {
	case types.MsgCreateBattle:
		_, err = svc.CreateBattle(ctx, userID, cm.OpponentID, cm.Exercise, cm.Duration)
	case types.MsgCreateQuickChallenge:
		_, _, err = svc.CreateQuickChallenge(ctx, userID, cm.Exercise, cm.Duration)
	case types.MsgAcceptBattle:
		_, _, err = svc.Accept(ctx, cm.BattleID, userID)
	case types.MsgDeclineBattle:
		_, _, err = svc.Decline(ctx, cm.BattleID, userID)
	case types.MsgStartBattle:
		_, _, err = svc.Start(ctx, cm.BattleID, userID)
	case types.MsgSubmitReps:
		_, _, err = svc.SubmitReps(ctx, cm.BattleID, userID, cm.Reps)
	case types.MsgCancelBattle:
		_, _, err = svc.Cancel(ctx, cm.BattleID, userID)
	default:
		h.Send(userID, types.NewError("bad_request", "unknown message type"))
		return
	}
	if err != nil {
		h.Send(userID, types.NewError(ErrorCode(err), err.Error()))
		log.Debug("command rejected",
			zap.String("user", userID), zap.String("type", cm.Type), zap.Error(err))
	}
}

// ErrorCode maps core errors to wire codes so clients can show "already
// taken" instead of a generic failure.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, battle.ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, battle.ErrNotParticipant):
		return "not_participant"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, battle.ErrUnknownExercise), errors.Is(err, battle.ErrBadDuration):
		return "bad_request"
	case errors.Is(err, battle.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "internal"
	}
}
