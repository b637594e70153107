package clientdata

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/advisor/internal/domain"
)

// testSchema creates all tables needed for testing
const testSchema = `
CREATE TABLE price_history (fund TEXT PRIMARY KEY, data BLOB NOT NULL, fetched_at INTEGER NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE fund_metadata (fund TEXT PRIMARY KEY, data BLOB NOT NULL, fetched_at INTEGER NOT NULL, expires_at INTEGER NOT NULL);
CREATE INDEX idx_price_history_expires ON price_history(expires_at);
`

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// a second connection would see a different in-memory database
	db.SetMaxOpenConns(1)

	_, err = db.Exec(testSchema)
	require.NoError(t, err)

	return db
}

func testSeries() domain.PriceSeries {
	day := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	return domain.PriceSeries{
		Fund:   "Global Equity",
		Source: domain.SourceLive,
		Points: []domain.PricePoint{
			{Time: day, Price: 101.5},
			{Time: day.AddDate(0, 0, 1), Price: 102.25},
		},
	}
}

func TestNewRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	assert.NotNil(t, repo)
}

func TestStore(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	err := repo.Store(TablePriceHistory, "Global Equity", testSeries(), 7*24*time.Hour)
	require.NoError(t, err)

	var blob []byte
	var expiresAt int64
	err = db.QueryRow("SELECT data, expires_at FROM price_history WHERE fund = ?", "Global Equity").Scan(&blob, &expiresAt)
	require.NoError(t, err)

	var decoded domain.PriceSeries
	require.NoError(t, msgpack.Unmarshal(blob, &decoded))
	assert.Equal(t, "Global Equity", decoded.Fund)
	assert.Len(t, decoded.Points, 2)

	expectedExpires := time.Now().Add(7 * 24 * time.Hour).Unix()
	assert.InDelta(t, expectedExpires, expiresAt, 5)
}

func TestStoreUpsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	first := testSeries()
	require.NoError(t, repo.Store(TablePriceHistory, first.Fund, first, time.Hour))

	second := testSeries()
	second.Points = append(second.Points, domain.PricePoint{Time: second.Points[1].Time.AddDate(0, 0, 1), Price: 99})
	require.NoError(t, repo.Store(TablePriceHistory, second.Fund, second, time.Hour))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM price_history").Scan(&count))
	assert.Equal(t, 1, count)

	var got domain.PriceSeries
	ok, err := repo.GetIfFresh(TablePriceHistory, second.Fund, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Len(t, got.Points, 3)
}

func TestGetIfFresh_RoundTripsSeries(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	want := testSeries()
	require.NoError(t, repo.Store(TablePriceHistory, want.Fund, want, time.Hour))

	var got domain.PriceSeries
	ok, err := repo.GetIfFresh(TablePriceHistory, want.Fund, &got)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, want.Source, got.Source)
	require.Len(t, got.Points, len(want.Points))
	for i := range want.Points {
		assert.True(t, want.Points[i].Time.Equal(got.Points[i].Time))
		assert.Equal(t, want.Points[i].Price, got.Points[i].Price)
	}
}

func TestGetIfFresh_Expired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.Store(TablePriceHistory, "A", testSeries(), -time.Hour))

	var got domain.PriceSeries
	ok, err := repo.GetIfFresh(TablePriceHistory, "A", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	// Get still serves stale data
	ok, err = repo.Get(TablePriceHistory, "A", &got)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, got.Points, 2)
}

func TestGet_Missing(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	var got domain.PriceSeries
	ok, err := repo.Get(TablePriceHistory, "missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)

	fetched, err := repo.FetchedAt(TablePriceHistory, "missing")
	require.NoError(t, err)
	assert.True(t, fetched.IsZero())
}

func TestFetchedAt(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	fixed := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	require.NoError(t, repo.Store(TableFundMetadata, "A", domain.FundMetadata{ExpenseRatio: 0.002}, TTLFundMetadata))

	fetched, err := repo.FetchedAt(TableFundMetadata, "A")
	require.NoError(t, err)
	assert.True(t, fetched.Equal(fixed))
}

func TestInvalidTable(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	var out domain.PriceSeries

	assert.Error(t, repo.Store("users; DROP TABLE price_history", "k", 1, time.Hour))
	_, err := repo.GetIfFresh("nope", "k", &out)
	assert.Error(t, err)
	_, err = repo.Get("nope", "k", &out)
	assert.Error(t, err)
	assert.Error(t, repo.Delete("nope", "k"))
	_, err = repo.DeleteExpired("nope")
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.Store(TablePriceHistory, "A", testSeries(), time.Hour))
	require.NoError(t, repo.Delete(TablePriceHistory, "A"))

	var got domain.PriceSeries
	ok, err := repo.Get(TablePriceHistory, "A", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteExpiredAndStats(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	require.NoError(t, repo.Store(TablePriceHistory, "fresh", testSeries(), time.Hour))
	require.NoError(t, repo.Store(TablePriceHistory, "stale", testSeries(), -time.Hour))
	require.NoError(t, repo.Store(TableFundMetadata, "stale", domain.FundMetadata{}, -time.Hour))

	stats, err := repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, TableStats{Entries: 2, Fresh: 1, Expired: 1}, stats[TablePriceHistory])
	assert.Equal(t, TableStats{Entries: 1, Fresh: 0, Expired: 1}, stats[TableFundMetadata])

	results, err := repo.DeleteAllExpired()
	require.NoError(t, err)
	assert.Equal(t, int64(1), results[TablePriceHistory])
	assert.Equal(t, int64(1), results[TableFundMetadata])

	stats, err = repo.Stats()
	require.NoError(t, err)
	assert.Equal(t, TableStats{Entries: 1, Fresh: 1}, stats[TablePriceHistory])
}
