// Package storetest is a conformance suite shared by the game.Store implementations.
package storetest

import (
	"context"
	"errors"
	"testing"

	"github.com/sagebattle/sage-server-go/internal/game"
	"github.com/sagebattle/sage-server-go/internal/game/cards"
	"github.com/sagebattle/sage-server-go/internal/game/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// NewGame returns a one-versus-one game with the given players joined.
func NewGame(t *testing.T, id string, players ...string) *game.Game {
	t.Helper()
	catalog, err := cards.DefaultCatalog()
	require.NoError(t, err)
	g, err := game.New(id, catalog, game.Options{TeamSize: 1}, rules.NewEventBus(), zaptest.NewLogger(t))
	require.NoError(t, err)
	for _, p := range players {
		_, err := g.AttemptAction(p, rules.ActionPlayerJoined, game.Payload{})
		require.NoError(t, err)
	}
	return g
}

// Run exercises save, load, overwrite, list and delete against an empty store.
func Run(t *testing.T, store game.Store) {
	ctx := context.Background()

	t.Run("load missing", func(t *testing.T) {
		_, err := store.Load(ctx, "missing")
		assert.True(t, errors.Is(err, game.ErrStoreMiss), "got %v", err)
	})

	t.Run("save and load", func(t *testing.T) {
		g := NewGame(t, "game-a", "alice")
		snap := g.Snapshot()
		require.NoError(t, store.Save(ctx, snap))

		loaded, err := store.Load(ctx, "game-a")
		require.NoError(t, err)
		want, err := snap.ComputeChecksum()
		require.NoError(t, err)
		ok, err := loaded.VerifyChecksum(want)
		require.NoError(t, err)
		assert.True(t, ok)
		require.Len(t, loaded.Players, 1)
		assert.Equal(t, "alice", loaded.Players[0].ID)
	})

	t.Run("save overwrites", func(t *testing.T) {
		g := NewGame(t, "game-a", "alice", "bob")
		require.NoError(t, store.Save(ctx, g.Snapshot()))

		loaded, err := store.Load(ctx, "game-a")
		require.NoError(t, err)
		assert.Len(t, loaded.Players, 2)
	})

	t.Run("list and delete", func(t *testing.T) {
		require.NoError(t, store.Save(ctx, NewGame(t, "game-b").Snapshot()))

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"game-a", "game-b"}, ids)

		require.NoError(t, store.Delete(ctx, "game-a"))
		require.NoError(t, store.Delete(ctx, "game-a"))
		_, err = store.Load(ctx, "game-a")
		assert.True(t, errors.Is(err, game.ErrStoreMiss))

		ids, err = store.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"game-b"}, ids)
	})

	t.Run("restores into a playable game", func(t *testing.T) {
		catalog, err := cards.DefaultCatalog()
		require.NoError(t, err)
		snap, err := store.Load(ctx, "game-b")
		require.NoError(t, err)
		g, err := game.Restore(snap, catalog, nil, nil, zaptest.NewLogger(t))
		require.NoError(t, err)
		_, err = g.AttemptAction("carol", rules.ActionPlayerJoined, game.Payload{})
		assert.NoError(t, err)
	})
}
