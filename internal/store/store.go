// Package store is the durable record of battles and performance entries:
// the single source of truth for state after a restart.
package store

import (
	"context"
	"errors"

	"github.com/fitclash/battle-backend/internal/battle"
)

var ErrNotFound = errors.New("record not found")

type Store interface {
	SaveBattle(ctx context.Context, b battle.Battle) error
	GetBattle(ctx context.Context, id string) (battle.Battle, error)
	ListByParticipant(ctx context.Context, userID string) ([]battle.Battle, error)
	// ListActive returns pending and in_progress battles, used to rebuild
	// coordinators after a crash.
	ListActive(ctx context.Context) ([]battle.Battle, error)
	SavePerformance(ctx context.Context, rec battle.PerformanceRecord) error
	ListPerformances(ctx context.Context, battleID string) ([]battle.PerformanceRecord, error)
}
