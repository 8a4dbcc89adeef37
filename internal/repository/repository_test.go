package repository

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sagebattle/sage-server-go/internal/config"
	"github.com/sagebattle/sage-server-go/internal/repository/memory"
	"github.com/sagebattle/sage-server-go/internal/repository/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	store, err := Open(ctx, config.StorageConfig{Driver: config.DriverMemory}, logger)
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, store)

	path := filepath.Join(t.TempDir(), "nested", "sage.db")
	store, err = Open(ctx, config.StorageConfig{Driver: config.DriverSQLite, SQLite: config.SQLiteConfig{Path: path}}, logger)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, store)
	require.NoError(t, store.Close())

	_, err = Open(ctx, config.StorageConfig{Driver: "mongo"}, logger)
	assert.Error(t, err)
}
