package battle

import (
	"errors"
	"testing"
	"time"
)

func pendingQuick(creator string) Battle {
	return Battle{
		ID:             "b1",
		CreatorID:      creator,
		Exercise:       ExercisePushups,
		DurationSec:    60,
		Status:         StatusPending,
		QuickChallenge: true,
	}
}

func pendingDirect(creator, opponent string) Battle {
	return Battle{
		ID:          "b2",
		CreatorID:   creator,
		OpponentID:  opponent,
		Exercise:    ExerciseSquats,
		DurationSec: 60,
		Status:      StatusPending,
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New("a", "", "yoga", 60, true); !errors.Is(err, ErrUnknownExercise) {
		t.Fatalf("want ErrUnknownExercise, got %v", err)
	}
	if _, err := New("a", "", ExercisePushups, 45, true); !errors.Is(err, ErrBadDuration) {
		t.Fatalf("want ErrBadDuration, got %v", err)
	}
	b, err := New("a", "b", ExercisePushups, 60, false)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if b.Status != StatusPending || b.ID == "" {
		t.Fatalf("want pending battle with id, got %+v", b)
	}
}

func TestAccept(t *testing.T) {
	cases := []struct {
		name    string
		setup   Battle
		caller  string
		wantErr error
		wantOpp string
	}{
		{
			name:    "first claimant binds open quick challenge",
			setup:   pendingQuick("a"),
			caller:  "b",
			wantOpp: "b",
		},
		{
			name: "race loser gets already claimed",
			setup: func() Battle {
				b := pendingQuick("a")
				b.OpponentID = "b"
				return b
			}(),
			caller:  "c",
			wantErr: ErrAlreadyClaimed,
		},
		{
			name:    "designated opponent confirms direct battle",
			setup:   pendingDirect("a", "b"),
			caller:  "b",
			wantOpp: "b",
		},
		{
			name:    "third party cannot accept a direct battle",
			setup:   pendingDirect("a", "b"),
			caller:  "c",
			wantErr: ErrNotParticipant,
		},
		{
			name:    "creator cannot accept own battle",
			setup:   pendingQuick("a"),
			caller:  "a",
			wantErr: ErrInvalidTransition,
		},
		{
			name: "cannot accept a cancelled battle",
			setup: func() Battle {
				b := pendingQuick("a")
				b.Status = StatusCancelled
				return b
			}(),
			caller:  "b",
			wantErr: ErrInvalidTransition,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Accept(tc.setup, tc.caller)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("want %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if got.OpponentID != tc.wantOpp {
				t.Fatalf("want opponent %q, got %q", tc.wantOpp, got.OpponentID)
			}
		})
	}
}

func TestDecline(t *testing.T) {
	b := pendingDirect("a", "b")

	if _, err := Decline(b, "a"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("creator decline: want ErrNotParticipant, got %v", err)
	}
	got, err := Decline(b, "b")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("want cancelled, got %s", got.Status)
	}
	if _, err := Decline(got, "b"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("decline twice: want ErrInvalidTransition, got %v", err)
	}
}

func TestCancel(t *testing.T) {
	pending := pendingDirect("a", "b")
	if _, err := Cancel(pending, "b"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("pending cancel by opponent: want ErrNotParticipant, got %v", err)
	}
	got, err := Cancel(pending, "a")
	if err != nil || got.Status != StatusCancelled {
		t.Fatalf("creator cancel: got %s, err %v", got.Status, err)
	}

	started, err := Begin(pending, time.Now())
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	got, err = Cancel(started, "b")
	if err != nil || got.Status != StatusCancelled {
		t.Fatalf("forfeit by opponent: got %s, err %v", got.Status, err)
	}
	if _, err := Cancel(started, "c"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("forfeit by stranger: want ErrNotParticipant, got %v", err)
	}
	completed := started
	completed.Status = StatusCompleted
	if _, err := Cancel(completed, "a"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel completed: want ErrInvalidTransition, got %v", err)
	}
}

func TestCanStart(t *testing.T) {
	open := pendingQuick("a")
	if err := CanStart(open, "a"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("start with no opponent: want ErrInvalidTransition, got %v", err)
	}
	bound := pendingDirect("a", "b")
	if err := CanStart(bound, "c"); !errors.Is(err, ErrNotParticipant) {
		t.Fatalf("start by stranger: want ErrNotParticipant, got %v", err)
	}
	if err := CanStart(bound, "b"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
}

func TestBeginAnchorsStartedAt(t *testing.T) {
	startTime := time.Now().Add(3 * time.Second)
	got, err := Begin(pendingDirect("a", "b"), startTime)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got.Status != StatusInProgress || !got.StartedAt.Equal(startTime) {
		t.Fatalf("want in_progress at %v, got %s at %v", startTime, got.Status, got.StartedAt)
	}
}

func TestApplyReps_MonotonicMax(t *testing.T) {
	rec := PerformanceRecord{BattleID: "b1", UserID: "a"}
	order := []struct {
		reps       int
		accepted   bool
		storedReps int
	}{
		{5, true, 5},
		{3, false, 5}, // stale reordered update is ignored, not an error
		{8, true, 8},
		{8, false, 8},
	}
	for _, step := range order {
		var accepted bool
		rec, accepted = ApplyReps(rec, step.reps, time.Now())
		if accepted != step.accepted || rec.Reps != step.storedReps {
			t.Fatalf("submit %d: accepted=%v reps=%d, want accepted=%v reps=%d",
				step.reps, accepted, rec.Reps, step.accepted, step.storedReps)
		}
	}
}
