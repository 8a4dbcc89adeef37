// Package memory keeps game snapshots in process memory. It is the default store for
// local play and tests; everything is lost on restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/sagebattle/sage-server-go/internal/game"
)

type record struct {
	data []byte
	hash string
}

// Store is a game.Store backed by a map. Snapshots are kept in their JSON form so a
// caller cannot mutate what was saved.
type Store struct {
	mu      sync.RWMutex
	records map[string]record
}

// New creates an empty store.
func New() *Store {
	return &Store{records: make(map[string]record)}
}

// Save stores the latest snapshot of a game, replacing any earlier one.
func (s *Store) Save(ctx context.Context, snap *game.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, sum, err := snap.EncodeJSON()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[snap.GameID] = record{data: data, hash: sum.Hash}
	return nil
}

// Load returns the latest snapshot of a game.
func (s *Store) Load(ctx context.Context, gameID string) (*game.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	rec, ok := s.records[gameID]
	s.mu.RUnlock()
	if !ok {
		return nil, game.ErrStoreMiss
	}
	return game.DecodeJSON(rec.data, rec.hash)
}

// Delete removes a game. Unknown IDs are ignored.
func (s *Store) Delete(ctx context.Context, gameID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, gameID)
	return nil
}

// List returns the stored game IDs, sorted.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Close is a no-op.
func (s *Store) Close() error { return nil }
