package clientdata

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanupJobName(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	job := NewCleanupJob(NewRepository(db), zerolog.Nop())
	assert.Equal(t, "client_data_cleanup", job.Name())
}

func TestCleanupJobRun(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	job := NewCleanupJob(repo, zerolog.Nop())

	require.NoError(t, repo.Store(TablePriceHistory, "expired", testSeries(), -time.Hour))
	require.NoError(t, repo.Store(TablePriceHistory, "fresh", testSeries(), time.Hour))
	require.NoError(t, repo.Store(TableFundMetadata, "expired", map[string]string{"a": "b"}, -time.Hour))

	require.NoError(t, job.Run())

	var count int
	require.NoError(t, db.QueryRow("SELECT (SELECT COUNT(*) FROM price_history) + (SELECT COUNT(*) FROM fund_metadata)").Scan(&count))
	assert.Equal(t, 1, count)

	var fund string
	require.NoError(t, db.QueryRow("SELECT fund FROM price_history").Scan(&fund))
	assert.Equal(t, "fresh", fund)
}

func TestCleanupJobRun_MissingTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	_, err := db.Exec("DROP TABLE fund_metadata")
	require.NoError(t, err)

	job := NewCleanupJob(NewRepository(db), zerolog.Nop())
	assert.Error(t, job.Run())
}
