package credentials

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophclass/internal/common"
)

// MemoryStore keeps the record in process memory. It is used when no
// database path is configured and in tests.
type MemoryStore struct {
	mu  sync.RWMutex
	rec *Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(ctx context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = &rec
	return nil
}

func (s *MemoryStore) Load(ctx context.Context) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.rec == nil {
		return Record{}, false
	}
	return *s.rec, true
}

func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rec = nil
	return nil
}

func (s *MemoryStore) UpdateAccessToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrIncompleteRecord
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rec == nil {
		return common.ErrNoCredentials
	}
	s.rec.AccessToken = token
	return nil
}
