package coordinator

import (
	"context"
	"errors"

	"github.com/fitclash/battle-backend/internal/battle"
	"github.com/fitclash/battle-backend/internal/directory"
	"github.com/fitclash/battle-backend/internal/proximity"
	"github.com/fitclash/battle-backend/internal/store"
	"github.com/fitclash/battle-backend/pkg/types"
	"go.uber.org/zap"
)

// Service is the command surface shared by the HTTP handlers and the
// websocket dispatcher. It owns nothing itself; it routes commands into the
// per-battle coordinators and reads through to the store.
type Service struct {
	Reg  *Registry
	St   store.Store
	Dir  directory.Directory
	Prox *proximity.Broadcaster
	Hub  Emitter
	Log  *zap.Logger
}

// CreateBattle creates a direct challenge against a known opponent and sends
// them an invitation.
func (s *Service) CreateBattle(ctx context.Context, creatorID, opponentID, exercise string, durationSec int) (battle.Battle, error) {
	if _, err := s.Dir.Lookup(ctx, opponentID); err != nil {
		return battle.Battle{}, err
	}
	b, err := battle.New(creatorID, opponentID, battle.Exercise(exercise), durationSec, false)
	if err != nil {
		return battle.Battle{}, err
	}
	if err := s.St.SaveBattle(ctx, b); err != nil {
		return battle.Battle{}, err
	}
	if _, err := s.Reg.SpawnBattle(ctx, b, nil); err != nil {
		return battle.Battle{}, err
	}
	s.Hub.Send(opponentID, types.NewBattleEvent(types.EvtBattleInvitation, creatorID, b))
	return b, nil
}

// CreateQuickChallenge creates an open battle and broadcasts it to nearby
// connected users; the first acceptor claims the opponent slot.
func (s *Service) CreateQuickChallenge(ctx context.Context, creatorID, exercise string, durationSec int) (battle.Battle, []string, error) {
	b, err := battle.New(creatorID, "", battle.Exercise(exercise), durationSec, true)
	if err != nil {
		return battle.Battle{}, nil, err
	}
	if err := s.St.SaveBattle(ctx, b); err != nil {
		return battle.Battle{}, nil, err
	}
	c, err := s.Reg.SpawnBattle(ctx, b, nil)
	if err != nil {
		return battle.Battle{}, nil, err
	}
	invited, err := s.Prox.Invite(ctx, b)
	if err != nil {
		return battle.Battle{}, nil, err
	}
	if len(invited) > 0 {
		select {
		case c.Inbox() <- AddCandidates{UserIDs: invited}:
		case <-ctx.Done():
			return battle.Battle{}, nil, ctx.Err()
		}
	}
	return b, invited, nil
}

func (s *Service) Accept(ctx context.Context, battleID, userID string) (battle.Battle, []battle.PerformanceRecord, error) {
	return s.command(ctx, battleID, func(reply chan Result) Msg {
		return Accept{UserID: userID, Reply: reply}
	})
}

func (s *Service) Decline(ctx context.Context, battleID, userID string) (battle.Battle, []battle.PerformanceRecord, error) {
	return s.command(ctx, battleID, func(reply chan Result) Msg {
		return Decline{UserID: userID, Reply: reply}
	})
}

func (s *Service) Start(ctx context.Context, battleID, userID string) (battle.Battle, []battle.PerformanceRecord, error) {
	return s.command(ctx, battleID, func(reply chan Result) Msg {
		return Start{UserID: userID, Reply: reply}
	})
}

func (s *Service) SubmitReps(ctx context.Context, battleID, userID string, reps int) (battle.Battle, []battle.PerformanceRecord, error) {
	return s.command(ctx, battleID, func(reply chan Result) Msg {
		return SubmitReps{UserID: userID, Reps: reps, Reply: reply}
	})
}

func (s *Service) Cancel(ctx context.Context, battleID, userID string) (battle.Battle, []battle.PerformanceRecord, error) {
	return s.command(ctx, battleID, func(reply chan Result) Msg {
		return Cancel{UserID: userID, Reply: reply}
	})
}

func (s *Service) ListMyBattles(ctx context.Context, userID string) ([]battle.Battle, error) {
	return s.St.ListByParticipant(ctx, userID)
}

func (s *Service) Performances(ctx context.Context, battleID string) ([]battle.PerformanceRecord, error) {
	if _, err := s.St.GetBattle(ctx, battleID); err != nil {
		return nil, err
	}
	return s.St.ListPerformances(ctx, battleID)
}

// command routes to the live coordinator, falling back to the store when no
// coordinator is registered: unknown ids are NotFound, finished battles are
// invalid transitions, and a live row without an actor (should not happen
// after rehydration) gets one spawned on demand.
func (s *Service) command(ctx context.Context, battleID string, build func(chan Result) Msg) (battle.Battle, []battle.PerformanceRecord, error) {
	c := s.Reg.Lookup(ctx, battleID)
	if c == nil {
		b, err := s.St.GetBattle(ctx, battleID)
		if err != nil {
			return battle.Battle{}, nil, err
		}
		if b.Terminal() {
			return b, nil, battle.ErrInvalidTransition
		}
		records, err := s.St.ListPerformances(ctx, battleID)
		if err != nil {
			return battle.Battle{}, nil, err
		}
		if c, err = s.Reg.SpawnBattle(ctx, b, records); err != nil {
			return battle.Battle{}, nil, err
		}
	}
	res := c.Ask(ctx, build)
	if errors.Is(res.Err, ErrStopped) {
		// Lost the race with a terminal transition.
		if b, err := s.St.GetBattle(ctx, battleID); err == nil {
			return b, nil, battle.ErrInvalidTransition
		}
		return battle.Battle{}, nil, battle.ErrInvalidTransition
	}
	return res.Battle, res.Records, res.Err
}
