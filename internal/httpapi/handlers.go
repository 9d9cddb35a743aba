package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fitclash/battle-backend/internal/battle"
	"github.com/fitclash/battle-backend/internal/coordinator"
	"github.com/fitclash/battle-backend/internal/store"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Handler exposes the battle command surface over REST. Identity comes from
// the X-User-ID header set by the upstream gateway; every guard is still
// enforced in the coordinator, so a forged header can only act as that user.
type Handler struct {
	Svc *coordinator.Service
	Log *zap.Logger
}

type createBattleRequest struct {
	OpponentID string `json:"opponentId"`
	Exercise   string `json:"exerciseType"`
	Duration   int    `json:"duration"`
}

type repsRequest struct {
	Reps int `json:"reps"`
}

type battleResponse struct {
	Battle       battle.Battle              `json:"battle"`
	Performances []battle.PerformanceRecord `json:"performances,omitempty"`
}

type quickChallengeResponse struct {
	Battle  battle.Battle `json:"battle"`
	Invited []string      `json:"invited"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) CreateBattle(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createBattleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
		return
	}
	b, err := h.Svc.CreateBattle(r.Context(), userID, req.OpponentID, req.Exercise, req.Duration)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, battleResponse{Battle: b})
}

func (h *Handler) CreateQuickChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req createBattleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
		return
	}
	b, invited, err := h.Svc.CreateQuickChallenge(r.Context(), userID, req.Exercise, req.Duration)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if invited == nil {
		invited = []string{}
	}
	writeJSON(w, http.StatusCreated, quickChallengeResponse{Battle: b, Invited: invited})
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.Svc.Accept)
}

func (h *Handler) Decline(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.Svc.Decline)
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.Svc.Start)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.command(w, r, h.Svc.Cancel)
}

func (h *Handler) SubmitReps(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	var req repsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "malformed body")
		return
	}
	b, records, err := h.Svc.SubmitReps(r.Context(), chi.URLParam(r, "battleID"), userID, req.Reps)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, battleResponse{Battle: b, Performances: records})
}

func (h *Handler) ListMyBattles(w http.ResponseWriter, r *http.Request) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	battles, err := h.Svc.ListMyBattles(r.Context(), userID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if battles == nil {
		battles = []battle.Battle{}
	}
	writeJSON(w, http.StatusOK, battles)
}

func (h *Handler) Performances(w http.ResponseWriter, r *http.Request) {
	records, err := h.Svc.Performances(r.Context(), chi.URLParam(r, "battleID"))
	if err != nil {
		h.writeErr(w, err)
		return
	}
	if records == nil {
		records = []battle.PerformanceRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (h *Handler) command(w http.ResponseWriter, r *http.Request,
	fn func(ctx context.Context, battleID, userID string) (battle.Battle, []battle.PerformanceRecord, error)) {
	userID, ok := callerID(w, r)
	if !ok {
		return
	}
	b, records, err := fn(r.Context(), chi.URLParam(r, "battleID"), userID)
	if err != nil {
		h.writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, battleResponse{Battle: b, Performances: records})
}

func callerID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing X-User-ID")
		return "", false
	}
	return userID, true
}

func (h *Handler) writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, battle.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, "already_claimed", err.Error())
	case errors.Is(err, battle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, battle.ErrNotParticipant):
		writeError(w, http.StatusForbidden, "not_participant", err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, battle.ErrUnknownExercise), errors.Is(err, battle.ErrBadDuration):
		writeError(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		h.Log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}
