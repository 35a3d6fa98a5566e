package store

import (
	"context"
	"sort"
	"sync"

	"github.com/rflorenc/mailbox-move-workbench/internal/models"
)

// MemoryStore is an in-memory thread-safe store for sessions.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*models.MigrationSession
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*models.MigrationSession)}
}

func (s *MemoryStore) Create(_ context.Context, sess *models.MigrationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sess.ID]; ok {
		return ErrExists
	}
	c := sess.Clone()
	c.RecomputeStats()
	s.sessions[sess.ID] = c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.MigrationSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return sess.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn MutateFunc) (*models.MigrationSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	next := cur.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	next.RecomputeStats()
	s.sessions[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*models.MigrationSession, error) {
	s.mu.RLock()
	result := make([]*models.MigrationSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		result = append(result, sess.Clone())
	}
	s.mu.RUnlock()
	sortNewestFirst(result)
	return result, nil
}

func (s *MemoryStore) Close() error { return nil }

func sortNewestFirst(list []*models.MigrationSession) {
	sort.Slice(list, func(i, j int) bool {
		return list[i].StartTime.After(list[j].StartTime)
	})
}
