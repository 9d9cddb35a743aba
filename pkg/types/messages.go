package types

import (
	"time"

	"github.com/fitclash/battle-backend/internal/battle"
)

// Client -> server intents.
const (
	MsgCreateBattle         = "create_battle"
	MsgCreateQuickChallenge = "create_quick_challenge"
	MsgAcceptBattle         = "accept_battle"
	MsgDeclineBattle        = "decline_battle"
	MsgStartBattle          = "start_battle"
	MsgSubmitReps           = "submit_reps"
	MsgCancelBattle         = "cancel_battle"
)

// Server -> client event types.
const (
	EvtBattleInvitation     = "battle_invitation"
	EvtBattleAccepted       = "battle_accepted"
	EvtBattleDeclined       = "battle_declined"
	EvtBattleStarted        = "battle_started"
	EvtBattleCountdown      = "battle_countdown"
	EvtBattleRepUpdate      = "battle_rep_update"
	EvtBattleCompleted      = "battle_completed"
	EvtBattleCancelled      = "battle_cancelled"
	EvtBattleWithdrawn      = "battle_withdrawn"
	EvtQuickChallengeNearby = "quick_challenge_nearby"
	EvtError                = "error"
)

// ClientMessage is the single inbound frame shape; Type selects which fields
// are meaningful.
type ClientMessage struct {
	Type       string `json:"type"`
	BattleID   string `json:"battleId,omitempty"`
	OpponentID string `json:"opponentId,omitempty"`
	Exercise   string `json:"exerciseType,omitempty"`
	Duration   int    `json:"duration,omitempty"`
	Reps       int    `json:"reps,omitempty"`
}

// ServerEvent is the outbound envelope. ReceiverID is filled by the hub when
// the event is addressed to a single user.
type ServerEvent struct {
	Type       string `json:"type"`
	SenderID   string `json:"senderId,omitempty"`
	ReceiverID string `json:"receiverId,omitempty"`
	Data       any    `json:"data,omitempty"`
}

type BattlePayload struct {
	Battle battle.Battle `json:"battle"`
}

type CountdownPayload struct {
	BattleID  string    `json:"battleId"`
	Countdown int       `json:"countdown"`
	StartTime time.Time `json:"startTime"`
}

type RepUpdatePayload struct {
	BattleID string `json:"battleId"`
	UserID   string `json:"userId"`
	Reps     int    `json:"reps"`
}

type CompletedPayload struct {
	Battle   battle.Battle `json:"battle"`
	WinnerID string        `json:"winnerId,omitempty"`
}

type WithdrawnPayload struct {
	BattleID string `json:"battleId"`
}

type NearbyUser struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

type NearbyPayload struct {
	Battle   battle.Battle `json:"battle"`
	Creator  NearbyUser    `json:"creator"`
	Distance float64       `json:"distance"` // km
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewBattleEvent(evtType, senderID string, b battle.Battle) ServerEvent {
	return ServerEvent{Type: evtType, SenderID: senderID, Data: BattlePayload{Battle: b}}
}

func NewCountdown(battleID string, countdown int, startTime time.Time) ServerEvent {
	return ServerEvent{Type: EvtBattleCountdown, Data: CountdownPayload{
		BattleID:  battleID,
		Countdown: countdown,
		StartTime: startTime,
	}}
}

func NewRepUpdate(battleID, userID string, reps int) ServerEvent {
	return ServerEvent{Type: EvtBattleRepUpdate, SenderID: userID, Data: RepUpdatePayload{
		BattleID: battleID,
		UserID:   userID,
		Reps:     reps,
	}}
}

func NewCompleted(b battle.Battle) ServerEvent {
	return ServerEvent{Type: EvtBattleCompleted, Data: CompletedPayload{Battle: b, WinnerID: b.WinnerID}}
}

func NewWithdrawn(battleID string) ServerEvent {
	return ServerEvent{Type: EvtBattleWithdrawn, Data: WithdrawnPayload{BattleID: battleID}}
}

func NewNearby(b battle.Battle, creator NearbyUser, distanceKM float64) ServerEvent {
	return ServerEvent{Type: EvtQuickChallengeNearby, SenderID: creator.ID, Data: NearbyPayload{
		Battle:   b,
		Creator:  creator,
		Distance: distanceKM,
	}}
}

func NewError(code, message string) ServerEvent {
	return ServerEvent{Type: EvtError, Data: ErrorPayload{Code: code, Message: message}}
}
