package battle

import (
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

var ErrInvalidTransition = errors.New("invalid battle transition")
var ErrNotParticipant = errors.New("not a participant")
var ErrAlreadyClaimed = errors.New("battle already claimed")
var ErrUnknownExercise = errors.New("unknown exercise type")
var ErrBadDuration = errors.New("duration not allowed")

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type Exercise string

const (
	ExercisePushups Exercise = "pushups"
	ExerciseSquats  Exercise = "squats"
	ExerciseSitups  Exercise = "situps"
	ExerciseBurpees Exercise = "burpees"
	ExercisePullups Exercise = "pullups"
)

var Exercises = []Exercise{
	ExercisePushups,
	ExerciseSquats,
	ExerciseSitups,
	ExerciseBurpees,
	ExercisePullups,
}

// Allowed contest lengths in seconds. Configuration, not protocol: the state
// machine never inspects the value beyond scheduling the duration timer.
var Durations = []int{30, 60, 90, 120}

type Battle struct {
	ID             string     `json:"id"`
	CreatorID      string     `json:"creatorId"`
	OpponentID     string     `json:"opponentId,omitempty"`
	Exercise       Exercise   `json:"exerciseType"`
	DurationSec    int        `json:"duration"`
	Status         Status     `json:"status"`
	QuickChallenge bool       `json:"isQuickChallenge"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	WinnerID       string     `json:"winnerId,omitempty"`
}

// PerformanceRecord is one participant's tally for one battle. Reps only ever
// grows while the battle is in progress and is frozen at a terminal state.
type PerformanceRecord struct {
	BattleID    string            `json:"battleId"`
	UserID      string            `json:"userId"`
	Reps        int               `json:"reps"`
	SubmittedAt time.Time         `json:"submittedAt"`
	Quality     map[string]string `json:"quality,omitempty"`
}

// New builds a pending battle. opponentID is empty for a quick challenge; the
// first claimant binds it via Accept.
func New(creatorID string, opponentID string, exercise Exercise, durationSec int, quick bool) (Battle, error) {
	if !slices.Contains(Exercises, exercise) {
		return Battle{}, ErrUnknownExercise
	}
	if !slices.Contains(Durations, durationSec) {
		return Battle{}, ErrBadDuration
	}
	return Battle{
		ID:             uuid.NewString(),
		CreatorID:      creatorID,
		OpponentID:     opponentID,
		Exercise:       exercise,
		DurationSec:    durationSec,
		Status:         StatusPending,
		QuickChallenge: quick,
	}, nil
}

func (b Battle) IsParticipant(userID string) bool {
	return userID == b.CreatorID || (b.OpponentID != "" && userID == b.OpponentID)
}

func (b Battle) Terminal() bool {
	return b.Status == StatusCompleted || b.Status == StatusCancelled
}

// Deadline is the instant the duration timer fires. Zero time until started.
func (b Battle) Deadline() time.Time {
	if b.StartedAt == nil {
		return time.Time{}
	}
	return b.StartedAt.Add(time.Duration(b.DurationSec) * time.Second)
}

// Accept binds userID as the opponent (quick challenge) or confirms the
// designated opponent (direct battle). The race loser on a quick challenge
// gets ErrAlreadyClaimed so callers can distinguish "taken" from "invalid".
func Accept(b Battle, userID string) (Battle, error) {
	if b.Status != StatusPending {
		return b, ErrInvalidTransition
	}
	if userID == b.CreatorID {
		return b, ErrInvalidTransition
	}
	switch {
	case b.OpponentID == "":
		b.OpponentID = userID
		return b, nil
	case b.OpponentID == userID:
		return b, nil
	case b.QuickChallenge:
		return b, ErrAlreadyClaimed
	default:
		return b, ErrNotParticipant
	}
}

// Decline is only valid for the bound opponent of a pending battle.
func Decline(b Battle, userID string) (Battle, error) {
	if b.Status != StatusPending {
		return b, ErrInvalidTransition
	}
	if b.OpponentID == "" || userID != b.OpponentID {
		return b, ErrNotParticipant
	}
	b.Status = StatusCancelled
	return b, nil
}

// Cancel covers both the creator withdrawing a pending battle and either
// participant forfeiting one in progress.
func Cancel(b Battle, userID string) (Battle, error) {
	switch b.Status {
	case StatusPending:
		if userID != b.CreatorID {
			return b, ErrNotParticipant
		}
	case StatusInProgress:
		if !b.IsParticipant(userID) {
			return b, ErrNotParticipant
		}
	default:
		return b, ErrInvalidTransition
	}
	b.Status = StatusCancelled
	return b, nil
}

// CanStart validates the start guard without mutating: caller must be a
// participant and an opponent must be bound.
func CanStart(b Battle, userID string) error {
	if b.Status != StatusPending {
		return ErrInvalidTransition
	}
	if !b.IsParticipant(userID) {
		return ErrNotParticipant
	}
	if b.OpponentID == "" {
		return ErrInvalidTransition
	}
	return nil
}

// Begin flips to in_progress anchored at the countdown's startTime, never at
// receipt time.
func Begin(b Battle, startTime time.Time) (Battle, error) {
	if b.Status != StatusPending || b.OpponentID == "" {
		return b, ErrInvalidTransition
	}
	b.Status = StatusInProgress
	b.StartedAt = &startTime
	return b, nil
}

func Complete(b Battle, winnerID string, at time.Time) (Battle, error) {
	if b.Status != StatusInProgress {
		return b, ErrInvalidTransition
	}
	b.Status = StatusCompleted
	b.WinnerID = winnerID
	b.CompletedAt = &at
	return b, nil
}

// ApplyReps folds a rep submission into a record. Lower values than the one
// already recorded are ignored without error to tolerate reordered delivery;
// the second return reports whether the update was accepted.
func ApplyReps(rec PerformanceRecord, reps int, at time.Time) (PerformanceRecord, bool) {
	if reps <= rec.Reps {
		return rec, false
	}
	rec.Reps = reps
	rec.SubmittedAt = at
	return rec, true
}
