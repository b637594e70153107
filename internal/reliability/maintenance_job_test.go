package reliability

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/advisor/internal/database"
)

func newCacheDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCacheMaintenanceJob(t *testing.T) {
	db := newCacheDB(t)
	job := NewCacheMaintenanceJob(db, t.TempDir(), zerolog.Nop())
	job.free = func(string) (uint64, error) { return 50 * 1024 * 1024 * 1024, nil }

	assert.Equal(t, "cache_maintenance", job.Name())
	assert.NoError(t, job.Run())
}

func TestCacheMaintenanceJob_DiskSpace(t *testing.T) {
	db := newCacheDB(t)
	job := NewCacheMaintenanceJob(db, t.TempDir(), zerolog.Nop())

	job.free = func(string) (uint64, error) { return 100 * 1024 * 1024, nil }
	assert.Error(t, job.Run(), "below the critical threshold")

	job.free = func(string) (uint64, error) { return 2 * 1024 * 1024 * 1024, nil }
	assert.NoError(t, job.Run(), "low space only warns")

	job.free = func(string) (uint64, error) { return 0, errors.New("unsupported") }
	assert.NoError(t, job.Run(), "unknown usage is not fatal")
}

func TestCacheMaintenanceJob_ClosedDatabase(t *testing.T) {
	db := newCacheDB(t)
	require.NoError(t, db.Close())

	job := NewCacheMaintenanceJob(db, t.TempDir(), zerolog.Nop())
	assert.Error(t, job.Run())
}

func TestDiskFree(t *testing.T) {
	free, err := diskFree(t.TempDir())
	require.NoError(t, err)
	assert.Greater(t, free, uint64(0))
}
