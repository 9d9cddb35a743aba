package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/fitclash/battle-backend/internal/battle"
	"github.com/fitclash/battle-backend/internal/directory"
	"gorm.io/gorm"
)

// BattleRow is the persisted shape of a battle.
type BattleRow struct {
	ID             string  `gorm:"primaryKey;type:uuid"`
	CreatorID      string  `gorm:"index;not null"`
	OpponentID     *string `gorm:"index"`
	Exercise       string  `gorm:"type:varchar(32);not null"`
	DurationSec    int     `gorm:"not null"`
	Status         string  `gorm:"type:varchar(16);index;check:status IN ('pending','in_progress','completed','cancelled')"`
	QuickChallenge bool
	StartedAt      *time.Time
	CompletedAt    *time.Time
	WinnerID       *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (BattleRow) TableName() string { return "battles" }

// PerformanceRow holds one participant's tally; primary key is the pair, so
// exactly one row exists per (battle, participant).
type PerformanceRow struct {
	BattleID    string `gorm:"primaryKey;type:uuid"`
	UserID      string `gorm:"primaryKey"`
	Reps        int    `gorm:"not null;default:0"`
	SubmittedAt time.Time
	Quality     []byte `gorm:"type:jsonb"`
	UpdatedAt   time.Time
}

func (PerformanceRow) TableName() string { return "battle_performances" }

// UserRow mirrors the user directory columns the battle core reads. The
// profile system owns the rest of the table.
type UserRow struct {
	ID            string `gorm:"primaryKey"`
	DisplayName   string
	LastLatitude  float64
	LastLongitude float64
	UpdatedAt     time.Time
}

func (UserRow) TableName() string { return "users" }

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(&BattleRow{}, &PerformanceRow{}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) SaveBattle(ctx context.Context, b battle.Battle) error {
	return s.db.WithContext(ctx).Save(rowFromBattle(b)).Error
}

func (s *GormStore) GetBattle(ctx context.Context, id string) (battle.Battle, error) {
	var row BattleRow
	err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return battle.Battle{}, ErrNotFound
	}
	if err != nil {
		return battle.Battle{}, err
	}
	return battleFromRow(row), nil
}

func (s *GormStore) ListByParticipant(ctx context.Context, userID string) ([]battle.Battle, error) {
	var rows []BattleRow
	err := s.db.WithContext(ctx).
		Where("creator_id = ? OR opponent_id = ?", userID, userID).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return battlesFromRows(rows), nil
}

func (s *GormStore) ListActive(ctx context.Context) ([]battle.Battle, error) {
	var rows []BattleRow
	err := s.db.WithContext(ctx).
		Where("status IN ?", []string{string(battle.StatusPending), string(battle.StatusInProgress)}).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return battlesFromRows(rows), nil
}

func (s *GormStore) SavePerformance(ctx context.Context, rec battle.PerformanceRecord) error {
	row := PerformanceRow{
		BattleID:    rec.BattleID,
		UserID:      rec.UserID,
		Reps:        rec.Reps,
		SubmittedAt: rec.SubmittedAt,
	}
	if len(rec.Quality) > 0 {
		raw, err := json.Marshal(rec.Quality)
		if err != nil {
			return err
		}
		row.Quality = raw
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *GormStore) ListPerformances(ctx context.Context, battleID string) ([]battle.PerformanceRecord, error) {
	var rows []PerformanceRow
	err := s.db.WithContext(ctx).
		Where("battle_id = ?", battleID).
		Order("user_id").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]battle.PerformanceRecord, 0, len(rows))
	for _, row := range rows {
		rec := battle.PerformanceRecord{
			BattleID:    row.BattleID,
			UserID:      row.UserID,
			Reps:        row.Reps,
			SubmittedAt: row.SubmittedAt,
		}
		if len(row.Quality) > 0 {
			_ = json.Unmarshal(row.Quality, &rec.Quality)
		}
		out = append(out, rec)
	}
	return out, nil
}

// GormDirectory reads the user directory from the shared database.
type GormDirectory struct {
	db *gorm.DB
}

func NewGormDirectory(db *gorm.DB) *GormDirectory {
	return &GormDirectory{db: db}
}

func (d *GormDirectory) Lookup(ctx context.Context, userID string) (directory.User, error) {
	var row UserRow
	err := d.db.WithContext(ctx).First(&row, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return directory.User{}, ErrNotFound
	}
	if err != nil {
		return directory.User{}, err
	}
	return directory.User{
		ID:          row.ID,
		DisplayName: row.DisplayName,
		Latitude:    row.LastLatitude,
		Longitude:   row.LastLongitude,
	}, nil
}

func rowFromBattle(b battle.Battle) *BattleRow {
	row := &BattleRow{
		ID:             b.ID,
		CreatorID:      b.CreatorID,
		Exercise:       string(b.Exercise),
		DurationSec:    b.DurationSec,
		Status:         string(b.Status),
		QuickChallenge: b.QuickChallenge,
		StartedAt:      b.StartedAt,
		CompletedAt:    b.CompletedAt,
	}
	if b.OpponentID != "" {
		row.OpponentID = &b.OpponentID
	}
	if b.WinnerID != "" {
		row.WinnerID = &b.WinnerID
	}
	return row
}

func battleFromRow(row BattleRow) battle.Battle {
	b := battle.Battle{
		ID:             row.ID,
		CreatorID:      row.CreatorID,
		Exercise:       battle.Exercise(row.Exercise),
		DurationSec:    row.DurationSec,
		Status:         battle.Status(row.Status),
		QuickChallenge: row.QuickChallenge,
		StartedAt:      row.StartedAt,
		CompletedAt:    row.CompletedAt,
	}
	if row.OpponentID != nil {
		b.OpponentID = *row.OpponentID
	}
	if row.WinnerID != nil {
		b.WinnerID = *row.WinnerID
	}
	return b
}

func battlesFromRows(rows []BattleRow) []battle.Battle {
	out := make([]battle.Battle, 0, len(rows))
	for _, row := range rows {
		out = append(out, battleFromRow(row))
	}
	return out
}
