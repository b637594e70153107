package marketdata

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/advisor/internal/domain"
)

func TestReadCSV_TolerantColumns(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"standard", "Date,Close\n2025-01-02,100.5\n2025-01-03,101\n"},
		{"extra columns", "Date,Open,High,Low,Close,Volume\n2025-01-02,1,2,0.5,100.5,10\n2025-01-03,1,2,0.5,101,12\n"},
		{"lowercase price", "date,price\n2025-01-03,101\n2025-01-02,100.5\n"},
		{"adj close and rfc3339", "timestamp,Adj Close\n2025-01-02T16:00:00Z,100.5\n2025-01-03T16:00:00Z,101\n"},
		{"bad rows skipped", "Date,Close\n2025-01-02,100.5\nnot-a-date,5\n2025-01-03,101\n2025-01-04,\n2025-01-05,-3\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			series, err := ReadCSV(strings.NewReader(tt.data), "Bonds")
			require.NoError(t, err)
			assert.Equal(t, "Bonds", series.Fund)
			assert.Equal(t, domain.SourceBackup, series.Source)
			assert.Equal(t, []float64{100.5, 101}, series.Prices())
			assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), series.Points[0].Time)
		})
	}
}

func TestReadCSV_Errors(t *testing.T) {
	_, err := ReadCSV(strings.NewReader(""), "Bonds")
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = ReadCSV(strings.NewReader("Day,Value\n2025-01-02,1\n"), "Bonds")
	assert.Error(t, err)

	_, err = ReadCSV(strings.NewReader("Date,Close\n"), "Bonds")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestWriteCSV_RoundTrip(t *testing.T) {
	want := dailySeries("Bonds", asOf, 10, 20)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, want))
	assert.True(t, strings.HasPrefix(buf.String(), "Date,Close\n"))

	got, err := ReadCSV(&buf, "Bonds")
	require.NoError(t, err)
	assert.Equal(t, want.Prices(), got.Prices())
}

func TestSnapshotFile(t *testing.T) {
	assert.Equal(t, "data/bonds.csv", SnapshotFile(domain.Fund{Name: "Bonds", BackupFile: "data/bonds.csv"}))
	assert.Equal(t, "global_equity__acc_.csv", SnapshotFile(domain.Fund{Name: "Global Equity (Acc)"}))
}

func TestSnapshotStore_SaveAndFetch(t *testing.T) {
	dir := t.TempDir()
	store := NewSnapshotStore(dir, nil, zerolog.Nop())
	fund := domain.Fund{Name: "Bonds", BackupFile: "bonds.csv"}

	require.NoError(t, store.Save(fund, dailySeries("Bonds", asOf, 30, 20)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1, "temp file must not be left behind")
	assert.Equal(t, "bonds.csv", entries[0].Name())

	series, err := store.FetchHistory(context.Background(), fund, asOf.AddDate(0, 0, -9), asOf)
	require.NoError(t, err)
	assert.Equal(t, 10, series.Len())
	assert.Equal(t, domain.SourceBackup, series.Source)

	// outside the snapshot's range
	_, err = store.FetchHistory(context.Background(), fund, asOf.AddDate(1, 0, 0), asOf.AddDate(2, 0, 0))
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSnapshotStore_SaveReplaces(t *testing.T) {
	dir := t.TempDir()
	store := NewSnapshotStore(dir, nil, zerolog.Nop())
	fund := domain.Fund{Name: "Bonds"}

	require.NoError(t, store.Save(fund, dailySeries("Bonds", asOf, 30, 20)))
	require.NoError(t, store.Save(fund, dailySeries("Bonds", asOf, 5, 40)))

	series, err := store.Load(fund)
	require.NoError(t, err)
	assert.Equal(t, 5, series.Len())
	assert.Equal(t, 40.0, series.Points[0].Price)
}

func TestSnapshotStore_RejectsEmpty(t *testing.T) {
	store := NewSnapshotStore(t.TempDir(), nil, zerolog.Nop())
	assert.Error(t, store.Save(domain.Fund{Name: "Bonds"}, domain.PriceSeries{Fund: "Bonds"}))

	noDir := NewSnapshotStore("", nil, zerolog.Nop())
	assert.Error(t, noDir.Save(domain.Fund{Name: "Bonds"}, dailySeries("Bonds", asOf, 3, 1)))
}

func TestSnapshotStore_SeedFallback(t *testing.T) {
	seed := fstest.MapFS{
		"snapshots/bonds.csv": &fstest.MapFile{Data: []byte("Date,Close\n2025-06-27,20\n2025-06-30,20.5\n")},
	}
	dir := t.TempDir()
	store := NewSnapshotStore(dir, seed, zerolog.Nop())
	fund := domain.Fund{Name: "Bonds", BackupFile: "snapshots/bonds.csv"}

	series, err := store.Load(fund)
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 20.5}, series.Prices())
	assert.Equal(t, domain.SourceSeed, series.Source)

	// a refreshed local copy wins over the seed
	require.NoError(t, store.Save(fund, dailySeries("Bonds", asOf, 3, 30)))
	_, err = os.Stat(filepath.Join(dir, "snapshots", "bonds.csv"))
	require.NoError(t, err)

	series, err = store.Load(fund)
	require.NoError(t, err)
	assert.Equal(t, 30.0, series.Points[0].Price)
	assert.Equal(t, domain.SourceBackup, series.Source)

	_, err = store.Load(domain.Fund{Name: "Missing"})
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestSnapshotStore_CancelledContext(t *testing.T) {
	store := NewSnapshotStore(t.TempDir(), nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.FetchHistory(ctx, domain.Fund{Name: "Bonds"}, asOf.AddDate(-1, 0, 0), asOf)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPriceValidator(t *testing.T) {
	v := NewPriceValidator(zerolog.Nop())
	history := []domain.PricePoint{{Price: 100}, {Price: 101}, {Price: 99}}

	tests := []struct {
		price  float64
		valid  bool
		reason string
	}{
		{100, true, ""},
		{0, false, "non_positive_price"},
		{1200, false, "spike_detected"},
		{5, false, "crash_detected"},
	}
	for _, tt := range tests {
		ok, reason := v.ValidatePrice(tt.price, history)
		assert.Equal(t, tt.valid, ok, "price %v", tt.price)
		assert.Equal(t, tt.reason, reason, "price %v", tt.price)
	}

	ok, _ := v.ValidatePrice(12345, nil)
	assert.True(t, ok, "first point has no context")
}
