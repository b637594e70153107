package marketdata

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/advisor/internal/clientdata"
	"github.com/aristath/advisor/internal/domain"
)

var reit = domain.Fund{Name: "REIT", Ticker: "IWDP.AS", Category: "real_estate"}

func TestGetUniverseHistory_ExcludesMissingFunds(t *testing.T) {
	live := &fakeSource{name: "live", series: map[string]domain.PriceSeries{
		equity.Name: dailySeries(equity.Name, asOf, 60, 50),
		bonds.Name:  dailySeries(bonds.Name, asOf, 60, 20),
	}}
	p := newTestProvider(nil, live)

	series, warnings, err := p.GetUniverseHistory(context.Background(), []domain.Fund{equity, bonds, reit}, asOf)
	require.NoError(t, err)

	assert.Len(t, series, 2)
	assert.Contains(t, series, equity.Name)
	assert.Contains(t, series, bonds.Name)
	assert.NotContains(t, series, reit.Name)

	require.Len(t, warnings, 1)
	assert.Equal(t, reit.Name, warnings[0].Fund)
	assert.Equal(t, domain.KindDataUnavailable, warnings[0].Kind)
}

func TestGetUniverseHistory_AllFail(t *testing.T) {
	live := &fakeSource{name: "live", err: errors.New("dns failure")}
	backup := &fakeSource{name: "backup", err: ErrNoSnapshot}
	p := newTestProvider(nil, live, backup)

	series, warnings, err := p.GetUniverseHistory(context.Background(), []domain.Fund{equity, bonds}, asOf)
	require.Error(t, err)
	assert.Nil(t, series)
	assert.Len(t, warnings, 2)
	assert.Equal(t, domain.KindDataUnavailable, domain.KindOf(err))
}

func seedFS(t *testing.T, series ...domain.PriceSeries) fstest.MapFS {
	t.Helper()
	seed := fstest.MapFS{}
	for _, s := range series {
		var buf bytes.Buffer
		require.NoError(t, WriteCSV(&buf, s))
		seed[SnapshotFile(domain.Fund{Name: s.Fund})] = &fstest.MapFile{Data: buf.Bytes()}
	}
	return seed
}

func TestGetUniverseHistory_FlagsSeedSnapshots(t *testing.T) {
	seed := seedFS(t, dailySeries(equity.Name, asOf, 60, 50), dailySeries(bonds.Name, asOf, 60, 20))
	store := NewSnapshotStore(t.TempDir(), seed, zerolog.Nop())
	live := &fakeSource{name: "live", err: errors.New("offline")}
	p := newTestProvider(nil, live, store)

	series, warnings, err := p.GetUniverseHistory(context.Background(), []domain.Fund{equity, bonds}, asOf)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, domain.SourceSeed, series[equity.Name].Source)

	require.Len(t, warnings, 2)
	for _, w := range warnings {
		assert.Equal(t, domain.KindDataUnavailable, w.Kind)
		assert.Contains(t, w.Message, "seed snapshot")
	}

	res, err := p.Warm(context.Background(), []domain.Fund{equity, bonds})
	require.NoError(t, err)
	assert.Equal(t, WarmResult{Funds: 2, Seed: 2}, res)
}

func TestGetUniverseHistory_RefreshedSnapshotsCarryNoWarning(t *testing.T) {
	store := NewSnapshotStore(t.TempDir(), nil, zerolog.Nop())
	require.NoError(t, store.Save(equity, dailySeries(equity.Name, asOf, 60, 50)))
	live := &fakeSource{name: "live", err: errors.New("offline")}
	p := newTestProvider(nil, live, store)

	series, warnings, err := p.GetUniverseHistory(context.Background(), []domain.Fund{equity}, asOf)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceBackup, series[equity.Name].Source)
	assert.Empty(t, warnings)
}

func TestGetUniverseHistory_NoFunds(t *testing.T) {
	p := newTestProvider(nil, &fakeSource{name: "live"})
	_, _, err := p.GetUniverseHistory(context.Background(), nil, asOf)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestWarm(t *testing.T) {
	cache := newMemCache()
	cache.put(clientdata.TablePriceHistory, bonds.Name, dailySeries(bonds.Name, asOf, 60, 20), true)
	live := &fakeSource{name: "live", series: map[string]domain.PriceSeries{
		equity.Name: dailySeries(equity.Name, asOf, 60, 50),
	}}
	backup := &fakeSource{name: "backup", err: ErrNoSnapshot}
	p := newTestProvider(cache, live, backup)

	res, err := p.Warm(context.Background(), []domain.Fund{equity, bonds, reit})
	require.NoError(t, err)
	assert.Equal(t, WarmResult{Funds: 3, Live: 1, Cached: 1, Missing: []string{reit.Name}}, res)
}

func TestWarmCacheJob(t *testing.T) {
	live := &fakeSource{name: "live", err: errors.New("offline")}
	p := newTestProvider(nil, live)

	job := NewWarmCacheJob(p, []domain.Fund{equity}, zerolog.Nop())
	assert.Equal(t, "price_cache_warm", job.Name())
	assert.Error(t, job.Run())

	live.err = nil
	live.series = map[string]domain.PriceSeries{equity.Name: dailySeries(equity.Name, asOf, 60, 50)}
	assert.NoError(t, job.Run())
}

func TestProvider_WithSQLiteCache(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()
	db.SetMaxOpenConns(1)
	_, err = db.Exec(`CREATE TABLE price_history (fund TEXT PRIMARY KEY, data BLOB NOT NULL, fetched_at INTEGER NOT NULL, expires_at INTEGER NOT NULL);
CREATE TABLE fund_metadata (fund TEXT PRIMARY KEY, data BLOB NOT NULL, fetched_at INTEGER NOT NULL, expires_at INTEGER NOT NULL);`)
	require.NoError(t, err)

	repo := clientdata.NewRepository(db)
	live := &fakeSource{name: "live", series: map[string]domain.PriceSeries{
		equity.Name: dailySeries(equity.Name, asOf, 60, 50),
	}}
	p := newTestProvider(repo, live)

	first, err := p.GetPriceHistory(context.Background(), equity, asOf)
	require.NoError(t, err)
	second, err := p.GetPriceHistory(context.Background(), equity, asOf)
	require.NoError(t, err)

	assert.Equal(t, domain.SourceLive, first.Source)
	assert.Equal(t, domain.SourceCache, second.Source)
	assert.Equal(t, first.Prices(), second.Prices())
	assert.Equal(t, 1, live.Calls())
}
