// Package coordinator owns battle state machines. Each battle gets one
// single-writer goroutine with a typed-message inbox; every mutation, client
// command or timer fire, is serialized through it, so accept/start/rep races
// resolve deterministically. Battles never block on each other.
package coordinator

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/fitclash/battle-backend/internal/battle"
	"github.com/fitclash/battle-backend/internal/notify"
	"github.com/fitclash/battle-backend/pkg/types"
	"go.uber.org/zap"
)

// ErrStopped is returned when a command reaches a coordinator whose battle
// already finished and whose goroutine has been torn down.
var ErrStopped = errors.New("battle coordinator stopped")

// Store is the slice of persistence the coordinator needs.
type Store interface {
	SaveBattle(ctx context.Context, b battle.Battle) error
	SavePerformance(ctx context.Context, rec battle.PerformanceRecord) error
}

// Emitter pushes events to connected users. A fake is injected in tests so
// the state machine runs without a network layer.
type Emitter interface {
	Send(userID string, ev types.ServerEvent)
	Broadcast(userIDs []string, ev types.ServerEvent)
}

type Msg interface{ isCoordMsg() }

type Result struct {
	Battle  battle.Battle
	Records []battle.PerformanceRecord
	Err     error
}

type Accept struct {
	UserID string
	Reply  chan Result
}

type Decline struct {
	UserID string
	Reply  chan Result
}

type Start struct {
	UserID string
	Reply  chan Result
}

type SubmitReps struct {
	UserID string
	Reps   int
	Reply  chan Result
}

type Cancel struct {
	UserID string
	Reply  chan Result
}

// AddCandidates records which users received a quick-challenge invitation so
// the losers can be sent a withdrawal once the slot is claimed.
type AddCandidates struct {
	UserIDs []string
}

// ForceComplete ends an in_progress battle immediately with whatever reps are
// recorded. Rehydration uses it for battles whose window elapsed while the
// server was down.
type ForceComplete struct{}

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

func (Accept) isCoordMsg()        {}
func (Decline) isCoordMsg()       {}
func (Start) isCoordMsg()         {}
func (SubmitReps) isCoordMsg()    {}
func (Cancel) isCoordMsg()        {}
func (AddCandidates) isCoordMsg() {}
func (ForceComplete) isCoordMsg() {}
func (GetState) isCoordMsg()      {}
func (Shutdown) isCoordMsg()      {}

// timer fires re-enter the inbox so they are serialized like any command; the
// generation tag lets the loop drop fires armed before a state change.
type countdownTick struct {
	gen       int
	remaining int
	startTime time.Time
}

type durationElapsed struct {
	gen int
}

func (countdownTick) isCoordMsg()   {}
func (durationElapsed) isCoordMsg() {}

// View reflects internal state for tests without data races.
type View struct {
	Battle        battle.Battle
	Records       []battle.PerformanceRecord
	NumCandidates int
}

// Deps carries collaborator handles and tuning knobs shared by every
// coordinator the registry spawns.
type Deps struct {
	Store          Store
	Emitter        Emitter
	Sink           notify.Sink
	Log            *zap.Logger
	CountdownFrom  int           // ticks before "GO", default 3
	PersistRetries int           // attempts per durable write, default 3
	Tick           time.Duration // length of one protocol second; tests shrink it
	OnTerminal     func(battleID string)
}

func (d Deps) withDefaults() Deps {
	if d.CountdownFrom <= 0 {
		d.CountdownFrom = 3
	}
	if d.PersistRetries <= 0 {
		d.PersistRetries = 3
	}
	if d.Tick <= 0 {
		d.Tick = time.Second
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return d
}

type Coordinator struct {
	inbox      chan Msg
	b          battle.Battle
	records    map[string]battle.PerformanceRecord
	candidates map[string]bool
	timerGen   int
	counting   bool
	deps       Deps
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewCoordinator spawns the actor. For an in_progress battle loaded from the
// store it re-arms the duration timer (or completes immediately if the window
// already elapsed).
func NewCoordinator(parent context.Context, b battle.Battle, records []battle.PerformanceRecord, deps Deps) *Coordinator {
	ctx, cancel := context.WithCancel(parent)
	c := &Coordinator{
		inbox:      make(chan Msg, 64),
		b:          b,
		records:    make(map[string]battle.PerformanceRecord),
		candidates: make(map[string]bool),
		deps:       deps.withDefaults(),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, rec := range records {
		c.records[rec.UserID] = rec
	}
	if b.Status == battle.StatusInProgress && b.StartedAt != nil {
		c.timerGen++
		deadline := b.StartedAt.Add(time.Duration(b.DurationSec) * c.deps.Tick)
		c.armDurationTimer(c.timerGen, time.Until(deadline))
	}
	go c.loop()
	return c
}

func (c *Coordinator) Inbox() chan<- Msg { return c.inbox }

func (c *Coordinator) BattleID() string { return c.b.ID }

// Ask sends a command and waits for its reply, giving up if either the caller
// or the coordinator goes away.
func (c *Coordinator) Ask(ctx context.Context, build func(reply chan Result) Msg) Result {
	reply := make(chan Result, 1)
	select {
	case c.inbox <- build(reply):
	case <-c.ctx.Done():
		return Result{Err: ErrStopped}
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
	select {
	case res := <-reply:
		return res
	case <-c.ctx.Done():
		// A terminal command cancels the coordinator right after replying;
		// prefer the reply if it landed.
		select {
		case res := <-reply:
			return res
		default:
			return Result{Err: ErrStopped}
		}
	case <-ctx.Done():
		return Result{Err: ctx.Err()}
	}
}

func (c *Coordinator) loop() {
	for {
		select {
		case <-c.ctx.Done():
			return

		case m := <-c.inbox:
			switch msg := m.(type) {
			case Accept:
				msg.Reply <- c.handleAccept(msg.UserID)
			case Decline:
				msg.Reply <- c.handleDecline(msg.UserID)
			case Start:
				msg.Reply <- c.handleStart(msg.UserID)
			case SubmitReps:
				msg.Reply <- c.handleSubmitReps(msg.UserID, msg.Reps)
			case Cancel:
				msg.Reply <- c.handleCancel(msg.UserID)
			case AddCandidates:
				for _, id := range msg.UserIDs {
					c.candidates[id] = true
				}
			case countdownTick:
				c.handleCountdownTick(msg)
			case durationElapsed:
				if msg.gen == c.timerGen && c.b.Status == battle.StatusInProgress {
					c.complete()
				}
			case ForceComplete:
				if c.b.Status == battle.StatusInProgress {
					c.complete()
				}
			case GetState:
				msg.Reply <- View{
					Battle:        c.b,
					Records:       c.sortedRecords(),
					NumCandidates: len(c.candidates),
				}
			case Shutdown:
				c.cancel()
				return
			}
		}
	}
}

func (c *Coordinator) handleAccept(userID string) Result {
	next, err := battle.Accept(c.b, userID)
	if err != nil {
		return c.fail(err)
	}
	prev := c.b
	c.b = next
	if err := c.persistBattle(prev); err != nil {
		return c.fail(err)
	}
	ev := types.NewBattleEvent(types.EvtBattleAccepted, userID, c.b)
	c.deps.Emitter.Broadcast(c.participants(), ev)
	c.withdrawCandidates(userID)
	return c.ok()
}

func (c *Coordinator) handleDecline(userID string) Result {
	next, err := battle.Decline(c.b, userID)
	if err != nil {
		return c.fail(err)
	}
	prev := c.b
	c.b = next
	if err := c.persistBattle(prev); err != nil {
		return c.fail(err)
	}
	c.timerGen++
	c.deps.Emitter.Send(c.b.CreatorID, types.NewBattleEvent(types.EvtBattleDeclined, userID, c.b))
	c.deps.Sink.BattleCancelled(c.b)
	c.terminate()
	return c.ok()
}

func (c *Coordinator) handleStart(userID string) Result {
	// Both sides press start; the second press lands mid-countdown or after
	// GO and is not an error.
	if c.counting || c.b.Status == battle.StatusInProgress {
		if !c.b.IsParticipant(userID) {
			return c.fail(battle.ErrNotParticipant)
		}
		return c.ok()
	}
	if err := battle.CanStart(c.b, userID); err != nil {
		return c.fail(err)
	}
	c.counting = true
	c.timerGen++
	gen := c.timerGen
	startTime := time.Now().Add(time.Duration(c.deps.CountdownFrom) * c.deps.Tick)
	for r := c.deps.CountdownFrom; r >= 0; r-- {
		remaining := r
		fireAt := startTime.Add(-time.Duration(remaining) * c.deps.Tick)
		time.AfterFunc(time.Until(fireAt), func() {
			select {
			case c.inbox <- countdownTick{gen: gen, remaining: remaining, startTime: startTime}:
			case <-c.ctx.Done():
			}
		})
	}
	return c.ok()
}

func (c *Coordinator) handleCountdownTick(msg countdownTick) {
	if msg.gen != c.timerGen || c.b.Status != battle.StatusPending {
		return
	}
	// Every tick carries the same wall-clock startTime so jittery delivery
	// cannot desynchronize the participants.
	c.deps.Emitter.Broadcast(c.participants(), types.NewCountdown(c.b.ID, msg.remaining, msg.startTime))
	if msg.remaining > 0 {
		return
	}
	c.counting = false
	next, err := battle.Begin(c.b, msg.startTime)
	if err != nil {
		c.deps.Log.Error("begin rejected", zap.String("battle", c.b.ID), zap.Error(err))
		return
	}
	prev := c.b
	c.b = next
	if err := c.persistBattle(prev); err != nil {
		// No caller to surface to; the battle runs on in memory and the
		// next successful write reconciles the store.
		c.deps.Log.Error("persist start failed", zap.String("battle", c.b.ID), zap.Error(err))
		c.b = next
	}
	for _, id := range c.participants() {
		rec := battle.PerformanceRecord{BattleID: c.b.ID, UserID: id, SubmittedAt: msg.startTime}
		c.records[id] = rec
		if err := c.persistRecord(rec); err != nil {
			c.deps.Log.Error("persist record failed", zap.String("battle", c.b.ID), zap.Error(err))
		}
	}
	c.deps.Emitter.Broadcast(c.participants(), types.NewBattleEvent(types.EvtBattleStarted, "", c.b))
	c.armDurationTimer(c.timerGen, time.Duration(c.b.DurationSec)*c.deps.Tick)
}

func (c *Coordinator) handleSubmitReps(userID string, reps int) Result {
	if c.b.Status != battle.StatusInProgress {
		return c.fail(battle.ErrInvalidTransition)
	}
	if !c.b.IsParticipant(userID) {
		return c.fail(battle.ErrNotParticipant)
	}
	rec := c.records[userID]
	if rec.BattleID == "" {
		rec = battle.PerformanceRecord{BattleID: c.b.ID, UserID: userID}
	}
	updated, accepted := battle.ApplyReps(rec, reps, time.Now())
	if !accepted {
		// Stale lower value from a reordered network; drop it silently.
		return c.ok()
	}
	prev := c.records[userID]
	c.records[userID] = updated
	if err := c.persistRecord(updated); err != nil {
		c.records[userID] = prev
		return c.fail(err)
	}
	if other := c.opponentOf(userID); other != "" {
		c.deps.Emitter.Send(other, types.NewRepUpdate(c.b.ID, userID, updated.Reps))
	}
	return c.ok()
}

func (c *Coordinator) handleCancel(userID string) Result {
	next, err := battle.Cancel(c.b, userID)
	if err != nil {
		return c.fail(err)
	}
	prev := c.b
	c.b = next
	if err := c.persistBattle(prev); err != nil {
		return c.fail(err)
	}
	c.timerGen++ // kill any countdown or duration timer in flight
	if other := c.opponentOf(userID); other != "" {
		c.deps.Emitter.Send(other, types.NewBattleEvent(types.EvtBattleCancelled, userID, c.b))
	}
	c.withdrawCandidates("")
	c.deps.Sink.BattleCancelled(c.b)
	c.terminate()
	return c.ok()
}

// complete runs on timer expiry (or ForceComplete): freeze records, resolve
// the winner, persist, notify. Never an error condition, even with zero
// connected clients.
func (c *Coordinator) complete() {
	winner := battle.ResolveWinner(c.b, c.records)
	next, err := battle.Complete(c.b, winner, time.Now())
	if err != nil {
		return
	}
	prev := c.b
	c.b = next
	if err := c.persistBattle(prev); err != nil {
		c.deps.Log.Error("persist completion failed", zap.String("battle", c.b.ID), zap.Error(err))
		c.b = next
	}
	c.timerGen++
	c.deps.Emitter.Broadcast(c.participants(), types.NewCompleted(c.b))
	c.deps.Sink.BattleCompleted(c.b, c.sortedRecords())
	c.terminate()
}

func (c *Coordinator) armDurationTimer(gen int, after time.Duration) {
	time.AfterFunc(after, func() {
		select {
		case c.inbox <- durationElapsed{gen: gen}:
		case <-c.ctx.Done():
		}
	})
}

// terminate tears the actor down after a terminal transition. The registry
// drops its reference; late Asks get ErrStopped and fall back to the store.
func (c *Coordinator) terminate() {
	if c.deps.OnTerminal != nil {
		c.deps.OnTerminal(c.b.ID)
	}
	c.cancel()
}

func (c *Coordinator) withdrawCandidates(claimant string) {
	for id := range c.candidates {
		if id != claimant {
			c.deps.Emitter.Send(id, types.NewWithdrawn(c.b.ID))
		}
	}
	clear(c.candidates)
}

func (c *Coordinator) persistBattle(prev battle.Battle) error {
	err := c.retry(func() error { return c.deps.Store.SaveBattle(c.ctx, c.b) })
	if err != nil {
		c.b = prev
		return err
	}
	return nil
}

func (c *Coordinator) persistRecord(rec battle.PerformanceRecord) error {
	return c.retry(func() error { return c.deps.Store.SavePerformance(c.ctx, rec) })
}

func (c *Coordinator) retry(op func() error) error {
	var err error
	for attempt := 0; attempt < c.deps.PersistRetries; attempt++ {
		if err = op(); err == nil {
			return nil
		}
		time.Sleep(time.Duration(attempt+1) * 25 * time.Millisecond)
	}
	return err
}

func (c *Coordinator) participants() []string {
	ids := []string{c.b.CreatorID}
	if c.b.OpponentID != "" {
		ids = append(ids, c.b.OpponentID)
	}
	return ids
}

func (c *Coordinator) opponentOf(userID string) string {
	if userID == c.b.CreatorID {
		return c.b.OpponentID
	}
	if userID == c.b.OpponentID {
		return c.b.CreatorID
	}
	return ""
}

func (c *Coordinator) sortedRecords() []battle.PerformanceRecord {
	out := make([]battle.PerformanceRecord, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (c *Coordinator) ok() Result {
	return Result{Battle: c.b, Records: c.sortedRecords()}
}

func (c *Coordinator) fail(err error) Result {
	return Result{Battle: c.b, Records: c.sortedRecords(), Err: err}
}
