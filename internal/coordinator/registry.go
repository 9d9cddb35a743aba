package coordinator

import (
	"context"
	"time"

	"github.com/fitclash/battle-backend/internal/battle"
	"github.com/fitclash/battle-backend/internal/store"
	"go.uber.org/zap"
)

type RegMsg interface{ isRegMsg() }

type Spawn struct {
	Battle  battle.Battle
	Records []battle.PerformanceRecord
	Reply   chan *Coordinator
}

type Get struct {
	ID    string
	Reply chan *Coordinator
}

type Remove struct {
	ID string
}

type ShutdownAll struct{}

func (Spawn) isRegMsg()       {}
func (Get) isRegMsg()         {}
func (Remove) isRegMsg()      {}
func (ShutdownAll) isRegMsg() {}

// Registry is the actor owning the battle-id -> coordinator table.
type Registry struct {
	inbox   chan RegMsg
	battles map[string]*Coordinator
	deps    Deps
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewRegistry(parent context.Context, deps Deps) *Registry {
	ctx, cancel := context.WithCancel(parent)
	r := &Registry{
		inbox:   make(chan RegMsg, 64),
		battles: make(map[string]*Coordinator),
		deps:    deps.withDefaults(),
		ctx:     ctx,
		cancel:  cancel,
	}
	// Finished coordinators unregister themselves via the inbox so the
	// table mutation stays inside this actor.
	r.deps.OnTerminal = func(battleID string) {
		select {
		case r.inbox <- Remove{ID: battleID}:
		case <-r.ctx.Done():
		}
	}
	go r.loop()
	return r
}

func (r *Registry) Inbox() chan<- RegMsg { return r.inbox }

func (r *Registry) loop() {
	for {
		select {
		case <-r.ctx.Done():
			return

		case m := <-r.inbox:
			switch msg := m.(type) {
			case Spawn:
				if c := r.battles[msg.Battle.ID]; c != nil {
					msg.Reply <- c
					break
				}
				c := NewCoordinator(r.ctx, msg.Battle, msg.Records, r.deps)
				r.battles[msg.Battle.ID] = c
				msg.Reply <- c

			case Get:
				msg.Reply <- r.battles[msg.ID] // may be nil

			case Remove:
				delete(r.battles, msg.ID)

			case ShutdownAll:
				for _, c := range r.battles {
					c.Inbox() <- Shutdown{}
				}
				clear(r.battles)
				r.cancel()
				return
			}
		}
	}
}

// SpawnBattle registers a coordinator for a battle, returning the existing
// one if the id is already live.
func (r *Registry) SpawnBattle(ctx context.Context, b battle.Battle, records []battle.PerformanceRecord) (*Coordinator, error) {
	reply := make(chan *Coordinator, 1)
	select {
	case r.inbox <- Spawn{Battle: b, Records: records, Reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case c := <-reply:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lookup returns the live coordinator for a battle id, or nil.
func (r *Registry) Lookup(ctx context.Context, battleID string) *Coordinator {
	reply := make(chan *Coordinator, 1)
	select {
	case r.inbox <- Get{ID: battleID, Reply: reply}:
	case <-ctx.Done():
		return nil
	}
	select {
	case c := <-reply:
		return c
	case <-ctx.Done():
		return nil
	}
}

// Rehydrate re-spawns coordinators for every non-terminal battle in the
// store. In-progress battles past their deadline are completed immediately
// with the reps on record; the rest pick up where they left off.
func (r *Registry) Rehydrate(ctx context.Context, st store.Store) error {
	active, err := st.ListActive(ctx)
	if err != nil {
		return err
	}
	for _, b := range active {
		records, err := st.ListPerformances(ctx, b.ID)
		if err != nil {
			return err
		}
		c, err := r.SpawnBattle(ctx, b, records)
		if err != nil {
			return err
		}
		if b.Status == battle.StatusInProgress && !b.Deadline().After(time.Now()) {
			select {
			case c.Inbox() <- ForceComplete{}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		r.deps.Log.Info("battle rehydrated",
			zap.String("battle", b.ID), zap.String("status", string(b.Status)))
	}
	return nil
}
