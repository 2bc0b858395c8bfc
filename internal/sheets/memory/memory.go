package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"fintrack/internal/core"
	ports "fintrack/internal/sheets"
)

var _ ports.TransactionMirror = (*Store)(nil)

// Store is an in-process mirror, used when no spreadsheet is configured.
type Store struct {
	mu    sync.Mutex
	items []core.Transaction
}

func New() *Store {
	return &Store{}
}

// Append stores the transaction and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, t core.Transaction) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOf(t.ID) < 0 {
		s.items = append(s.items, t)
	}
	return fmt.Sprintf("mem:%d", t.ID), nil
}

func (s *Store) Delete(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOf(id)
	if i < 0 {
		return false, nil
	}
	s.items = slices.Delete(s.items, i, i+1)
	return true, nil
}

func (s *Store) IDs(_ context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.items))
	for _, t := range s.items {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// List returns the mirrored rows in append order.
func (s *Store) List() []core.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

func (s *Store) indexOf(id int64) int {
	return slices.IndexFunc(s.items, func(t core.Transaction) bool { return t.ID == id })
}
