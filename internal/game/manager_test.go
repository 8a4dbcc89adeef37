package game

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sagebattle/sage-server-go/internal/game/cards"
	"github.com/sagebattle/sage-server-go/internal/game/gameerr"
	"github.com/sagebattle/sage-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeStore struct {
	mu    sync.Mutex
	snaps map[string]*Snapshot
	sums  map[string]string
	saves int
}

func newFakeStore() *fakeStore {
	return &fakeStore{snaps: make(map[string]*Snapshot), sums: make(map[string]string)}
}

func (s *fakeStore) Save(_ context.Context, snap *Snapshot) error {
	sum, err := snap.ComputeChecksum()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.GameID] = snap
	s.sums[snap.GameID] = sum.Hash
	s.saves++
	return nil
}

func (s *fakeStore) Load(_ context.Context, gameID string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[gameID]
	if !ok {
		return nil, ErrStoreMiss
	}
	return snap, nil
}

func (s *fakeStore) Delete(_ context.Context, gameID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, gameID)
	return nil
}

func (s *fakeStore) List(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.snaps))
	for id := range s.snaps {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *fakeStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func newTestManager(t *testing.T, store Store) *Manager {
	t.Helper()
	catalog, err := cards.DefaultCatalog()
	require.NoError(t, err)
	return NewManager(catalog, store, nil, zaptest.NewLogger(t), ManagerOptions{
		Shuffle:   noShuffle,
		ReplayDir: t.TempDir(),
	})
}

func runManager(t *testing.T, m *Manager) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, m.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func TestManagerRegistry(t *testing.T) {
	m := newTestManager(t, nil)
	ctx := context.Background()

	g, err := m.CreateGame(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, rules.PhaseJoiningGame, g.Phase())

	got, err := m.Get(g.ID())
	require.NoError(t, err)
	assert.Same(t, g, got)
	assert.Equal(t, []string{g.ID()}, m.List())

	_, err = m.CreateGame(ctx, 3)
	assert.True(t, errors.Is(err, gameerr.ErrValidation))

	_, err = m.Get("nope")
	assert.True(t, errors.Is(err, gameerr.ErrGameNotFound))
	_, err = m.AttemptAction(ctx, "nope", "alice", rules.ActionPlayerJoined, Payload{})
	assert.True(t, errors.Is(err, gameerr.ErrGameNotFound))

	require.NoError(t, m.Delete(ctx, g.ID()))
	assert.Empty(t, m.List())
	assert.True(t, errors.Is(m.Delete(ctx, g.ID()), gameerr.ErrGameNotFound))
}

func TestManagerPersistsSnapshots(t *testing.T) {
	store := newFakeStore()
	m := newTestManager(t, store)
	runManager(t, m)
	ctx := context.Background()

	g, err := m.CreateGame(ctx, 1)
	require.NoError(t, err)
	_, err = m.AttemptAction(ctx, g.ID(), "alice", rules.ActionPlayerJoined, Payload{})
	require.NoError(t, err)
	_, err = m.AttemptAction(ctx, g.ID(), "alice", rules.ActionPlayerJoined, Payload{})
	require.Error(t, err)

	require.Eventually(t, func() bool { return store.saveCount() == 2 }, time.Second, 10*time.Millisecond)

	snap, err := store.Load(ctx, g.ID())
	require.NoError(t, err)
	require.Len(t, snap.Players, 1)
	assert.Equal(t, "alice", snap.Players[0].ID)

	replay, ok := m.Recorder().Replay(g.ID())
	require.True(t, ok)
	assert.Equal(t, 2, replay.Len())
}

func TestManagerLoadFromStore(t *testing.T) {
	store := newFakeStore()
	source := newTestManager(t, store)
	ctx := context.Background()

	g, err := source.CreateGame(ctx, 1)
	require.NoError(t, err)
	_, err = source.AttemptAction(ctx, g.ID(), "alice", rules.ActionPlayerJoined, Payload{})
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, g.Snapshot()))

	m := newTestManager(t, store)
	restored, err := m.Load(ctx, g.ID())
	require.NoError(t, err)
	assert.Equal(t, g.ID(), restored.ID())

	again, err := m.Load(ctx, g.ID())
	require.NoError(t, err)
	assert.Same(t, restored, again)

	_, err = m.AttemptAction(ctx, g.ID(), "bob", rules.ActionPlayerJoined, Payload{})
	require.NoError(t, err)

	_, err = m.Load(ctx, "missing")
	assert.True(t, errors.Is(err, gameerr.ErrGameNotFound))
}

func TestManagerSavesReplayWhenGameEnds(t *testing.T) {
	m := newTestManager(t, newFakeStore())
	runManager(t, m)
	ctx := context.Background()

	created, err := m.CreateGame(ctx, 1)
	require.NoError(t, err)
	id := created.ID()
	steps := []struct {
		player  string
		action  rules.Action
		payload Payload
	}{
		{"alice", rules.ActionPlayerJoined, Payload{}},
		{"bob", rules.ActionPlayerJoined, Payload{}},
		{"alice", rules.ActionPlayerSelectedSage, Payload{Sage: "Twig Sage"}},
		{"bob", rules.ActionPlayerSelectedSage, Payload{Sage: "Pebble Sage"}},
		{"alice", rules.ActionPlayerJoinedTeam, Payload{Team: 0}},
		{"bob", rules.ActionPlayerJoinedTeam, Payload{Team: 1}},
		{"alice", rules.ActionToggleReadyStatus, Payload{}},
		{"bob", rules.ActionToggleReadyStatus, Payload{}},
		{"alice", rules.ActionChooseWarriors, Payload{Warriors: [2]string{"Bramble Knight", "Thorn Archer"}}},
		{"bob", rules.ActionChooseWarriors, Payload{Warriors: [2]string{"Cobble Brute", "Slate Sentinel"}}},
		{"alice", rules.ActionPlayerFinishedSetup, Payload{}},
		{"bob", rules.ActionPlayerFinishedSetup, Payload{}},
		{"alice", rules.ActionNextPhase, Payload{}},
	}
	for _, s := range steps {
		_, err := m.AttemptAction(ctx, id, s.player, s.action, s.payload)
		require.NoError(t, err, "%s by %s", s.action, s.player)
	}

	g, err := m.Get(id)
	require.NoError(t, err)
	_, err = g.teams[1].Battlefield().Damage(5, 11)
	require.NoError(t, err)

	res, err := m.AttemptAction(ctx, id, "alice", rules.ActionAttack, Payload{Slot: 6, Targets: []int{5}})
	require.NoError(t, err)
	assert.Equal(t, rules.PhaseGameFinished, res.Phase)

	require.Eventually(t, func() bool {
		_, err := m.Recorder().Load(id)
		return err == nil
	}, time.Second, 10*time.Millisecond)

	replay, err := m.Recorder().Load(id)
	require.NoError(t, err)
	assert.Equal(t, len(steps)+2, replay.Len())
	assert.Equal(t, rules.PhaseGameFinished, replay.At(replay.Len()-1).Phase)
}

func TestManagerDropsSnapshotsWhenQueueIsFull(t *testing.T) {
	catalog, err := cards.DefaultCatalog()
	require.NoError(t, err)
	store := newFakeStore()
	m := NewManager(catalog, store, nil, zaptest.NewLogger(t), ManagerOptions{
		Shuffle:   noShuffle,
		ReplayDir: t.TempDir(),
		QueueSize: 1,
	})
	ctx := context.Background()

	g, err := m.CreateGame(ctx, 1)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		for _, id := range []string{"alice", "bob"} {
			if _, err := m.AttemptAction(ctx, g.ID(), id, rules.ActionPlayerJoined, Payload{}); err != nil {
				done <- err
				return
			}
		}
		done <- nil
	}()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("actions blocked on a full persistence queue")
	}

	runManager(t, m)
	require.Eventually(t, func() bool { return store.saveCount() == 1 }, time.Second, 10*time.Millisecond)

	_, err = m.AttemptAction(ctx, g.ID(), "alice", rules.ActionPlayerSelectedSage, Payload{Sage: "Twig Sage"})
	require.NoError(t, err)
	require.Eventually(t, func() bool { return store.saveCount() == 2 }, time.Second, 10*time.Millisecond)

	snap, err := store.Load(ctx, g.ID())
	require.NoError(t, err)
	assert.Len(t, snap.Players, 2)
}
