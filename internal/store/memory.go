package store

import (
	"context"
	"sort"
	"sync"

	"github.com/fitclash/battle-backend/internal/battle"
	"github.com/fitclash/battle-backend/internal/directory"
)

// MemoryStore keeps everything in maps, for tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	battles map[string]battle.Battle
	perfs   map[string]map[string]battle.PerformanceRecord
	users   map[string]directory.User
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		battles: make(map[string]battle.Battle),
		perfs:   make(map[string]map[string]battle.PerformanceRecord),
		users:   make(map[string]directory.User),
	}
}

func (s *MemoryStore) SaveBattle(ctx context.Context, b battle.Battle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.battles[b.ID] = b
	return nil
}

func (s *MemoryStore) GetBattle(ctx context.Context, id string) (battle.Battle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.battles[id]
	if !ok {
		return battle.Battle{}, ErrNotFound
	}
	return b, nil
}

func (s *MemoryStore) ListByParticipant(ctx context.Context, userID string) ([]battle.Battle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []battle.Battle
	for _, b := range s.battles {
		if b.IsParticipant(userID) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListActive(ctx context.Context) ([]battle.Battle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []battle.Battle
	for _, b := range s.battles {
		if !b.Terminal() {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) SavePerformance(ctx context.Context, rec battle.PerformanceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byUser, ok := s.perfs[rec.BattleID]
	if !ok {
		byUser = make(map[string]battle.PerformanceRecord)
		s.perfs[rec.BattleID] = byUser
	}
	byUser[rec.UserID] = rec
	return nil
}

func (s *MemoryStore) ListPerformances(ctx context.Context, battleID string) ([]battle.PerformanceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []battle.PerformanceRecord
	for _, rec := range s.perfs[battleID] {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

// PutUser seeds the embedded directory.
func (s *MemoryStore) PutUser(u directory.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

// Lookup implements directory.Directory.
func (s *MemoryStore) Lookup(ctx context.Context, userID string) (directory.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return directory.User{}, ErrNotFound
	}
	return u, nil
}
