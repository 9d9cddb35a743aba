// Package notify is the outbound sink for cross-cutting domain events. The
// battle core only emits; consumers (achievements, activity feed) live
// elsewhere.
package notify

import (
	"github.com/fitclash/battle-backend/internal/battle"
	"go.uber.org/zap"
)

type Sink interface {
	BattleCompleted(b battle.Battle, records []battle.PerformanceRecord)
	BattleCancelled(b battle.Battle)
}

// LogSink is the default sink: structured log lines that downstream systems
// can tail until a real bus is attached.
type LogSink struct {
	Log *zap.Logger
}

func (s LogSink) BattleCompleted(b battle.Battle, records []battle.PerformanceRecord) {
	fields := []zap.Field{
		zap.String("battle", b.ID),
		zap.String("winner", b.WinnerID),
		zap.String("exercise", string(b.Exercise)),
	}
	for _, rec := range records {
		fields = append(fields, zap.Int("reps_"+rec.UserID, rec.Reps))
	}
	s.Log.Info("battle completed", fields...)
}

func (s LogSink) BattleCancelled(b battle.Battle) {
	s.Log.Info("battle cancelled", zap.String("battle", b.ID))
}
