package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fitclash/battle-backend/internal/battle"
	"github.com/fitclash/battle-backend/internal/conn"
	"github.com/fitclash/battle-backend/internal/coordinator"
	"github.com/fitclash/battle-backend/internal/directory"
	"github.com/fitclash/battle-backend/internal/notify"
	"github.com/fitclash/battle-backend/internal/proximity"
	"github.com/fitclash/battle-backend/internal/store"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestHandler(t *testing.T) (http.Handler, *store.MemoryStore) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mem := store.NewMemoryStore()
	mem.PutUser(directory.User{ID: "a", DisplayName: "Ana", Latitude: 40.0, Longitude: -70.0})
	mem.PutUser(directory.User{ID: "b", DisplayName: "Ben", Latitude: 40.001, Longitude: -70.0})

	log := zap.NewNop()
	hub := conn.NewHub(ctx, log)
	reg := coordinator.NewRegistry(ctx, coordinator.Deps{
		Store:          mem,
		Emitter:        hub,
		Sink:           notify.LogSink{Log: log},
		Log:            log,
		PersistRetries: 1,
		Tick:           10 * time.Millisecond,
	})
	svc := &coordinator.Service{
		Reg:  reg,
		St:   mem,
		Dir:  mem,
		Prox: &proximity.Broadcaster{Dir: mem, Conns: hub, RadiusKM: 5, Log: log},
		Hub:  hub,
		Log:  log,
	}
	return SetupRoutes(svc, hub, log), mem
}

func doJSON(t *testing.T, h http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	} else {
		buf.WriteString("{}")
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCreateBattle_RequiresIdentity(t *testing.T) {
	h, _ := newTestHandler(t)
	rr := doJSON(t, h, http.MethodPost, "/battles", "", createBattleRequest{
		OpponentID: "b", Exercise: "pushups", Duration: 60,
	})
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCreateBattle_HappyPath(t *testing.T) {
	h, _ := newTestHandler(t)
	rr := doJSON(t, h, http.MethodPost, "/battles", "a", createBattleRequest{
		OpponentID: "b", Exercise: "pushups", Duration: 60,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var resp battleResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, battle.StatusPending, resp.Battle.Status)
	require.Equal(t, "a", resp.Battle.CreatorID)
	require.Equal(t, "b", resp.Battle.OpponentID)
	require.False(t, resp.Battle.QuickChallenge)
}

func TestCreateBattle_UnknownOpponent(t *testing.T) {
	h, _ := newTestHandler(t)
	rr := doJSON(t, h, http.MethodPost, "/battles", "a", createBattleRequest{
		OpponentID: "ghost", Exercise: "pushups", Duration: 60,
	})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateBattle_RejectsBadExerciseAndDuration(t *testing.T) {
	h, _ := newTestHandler(t)
	rr := doJSON(t, h, http.MethodPost, "/battles", "a", createBattleRequest{
		OpponentID: "b", Exercise: "interpretive_dance", Duration: 60,
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/battles", "a", createBattleRequest{
		OpponentID: "b", Exercise: "pushups", Duration: 61,
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestAcceptDeclineFlow(t *testing.T) {
	h, _ := newTestHandler(t)
	rr := doJSON(t, h, http.MethodPost, "/battles", "a", createBattleRequest{
		OpponentID: "b", Exercise: "squats", Duration: 60,
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created battleResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	id := created.Battle.ID

	rr = doJSON(t, h, http.MethodPost, "/battles/"+id+"/accept", "z", nil)
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = doJSON(t, h, http.MethodPost, "/battles/"+id+"/accept", "b", nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	rr = doJSON(t, h, http.MethodPost, "/battles/"+id+"/decline", "b", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var declined battleResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &declined))
	require.Equal(t, battle.StatusCancelled, declined.Battle.Status)
}

func TestSubmitReps_BeforeStartIsConflict(t *testing.T) {
	h, _ := newTestHandler(t)
	rr := doJSON(t, h, http.MethodPost, "/battles", "a", createBattleRequest{
		OpponentID: "b", Exercise: "burpees", Duration: 60,
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created battleResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	rr = doJSON(t, h, http.MethodPost, "/battles/"+created.Battle.ID+"/reps", "a", repsRequest{Reps: 5})
	require.Equal(t, http.StatusConflict, rr.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "invalid_transition", resp.Code)
}

func TestCommand_UnknownBattleIsNotFound(t *testing.T) {
	h, _ := newTestHandler(t)
	rr := doJSON(t, h, http.MethodPost, "/battles/no-such-id/accept", "b", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestListMyBattlesAndPerformances(t *testing.T) {
	h, _ := newTestHandler(t)
	rr := doJSON(t, h, http.MethodPost, "/battles", "a", createBattleRequest{
		OpponentID: "b", Exercise: "pushups", Duration: 60,
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	var created battleResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))

	rr = doJSON(t, h, http.MethodGet, "/battles", "b", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var battles []battle.Battle
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &battles))
	require.Len(t, battles, 1)

	rr = doJSON(t, h, http.MethodGet, "/battles/"+created.Battle.ID+"/performances", "a", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = doJSON(t, h, http.MethodGet, "/battles/unknown/performances", "a", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCreateQuickChallenge_NoNearbyUsers(t *testing.T) {
	h, _ := newTestHandler(t)
	// Nobody is connected to the hub, so nobody can be invited.
	rr := doJSON(t, h, http.MethodPost, "/battles/quick", "a", createBattleRequest{
		Exercise: "pushups", Duration: 60,
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var resp quickChallengeResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, resp.Battle.QuickChallenge)
	require.Empty(t, resp.Invited)
	require.Empty(t, resp.Battle.OpponentID)
}
