package marketdata

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/domain"
)

// ErrNoSnapshot is returned when a fund has no snapshot file or the file has no rows in the window.
var ErrNoSnapshot = errors.New("no snapshot data")

const seedOrigin = "seed:"

var (
	dateColumns  = []string{"date", "timestamp", "time"}
	priceColumns = []string{"close", "adj close", "adj_close", "price"}
	dateLayouts  = []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04:05-07:00"}
)

// SnapshotStore keeps one CSV price snapshot per fund in a directory.
// Reads fall back to an optional read-only seed filesystem. Seed rows are
// labelled SourceSeed so results priced from them can be flagged.
type SnapshotStore struct {
	dir  string
	seed fs.FS
	log  zerolog.Logger
}

// NewSnapshotStore creates a store rooted at dir; seed may be nil.
func NewSnapshotStore(dir string, seed fs.FS, log zerolog.Logger) *SnapshotStore {
	return &SnapshotStore{
		dir:  dir,
		seed: seed,
		log:  log.With().Str("component", "snapshot_store").Logger(),
	}
}

// Name identifies the source in logs and warnings.
func (s *SnapshotStore) Name() string {
	return "local_snapshot"
}

// SnapshotFile is the file name used for a fund's snapshot.
func SnapshotFile(fund domain.Fund) string {
	if fund.BackupFile != "" {
		return fund.BackupFile
	}
	var b strings.Builder
	for _, r := range strings.ToLower(fund.Name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String() + ".csv"
}

// FetchHistory reads the fund's snapshot and keeps [from, to].
func (s *SnapshotStore) FetchHistory(ctx context.Context, fund domain.Fund, from, to time.Time) (domain.PriceSeries, error) {
	if err := ctx.Err(); err != nil {
		return domain.PriceSeries{}, err
	}

	series, err := s.Load(fund)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	series = series.Window(domain.Day(from), to)
	if series.Len() == 0 {
		return domain.PriceSeries{}, fmt.Errorf("snapshot for %s has no rows between %s and %s: %w",
			fund.Name, from.Format("2006-01-02"), to.Format("2006-01-02"), ErrNoSnapshot)
	}
	return series, nil
}

// Load reads the whole snapshot for a fund.
func (s *SnapshotStore) Load(fund domain.Fund) (domain.PriceSeries, error) {
	file := SnapshotFile(fund)

	r, origin, err := s.open(file)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	defer r.Close()

	series, err := ReadCSV(r, fund.Name)
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("read snapshot %s: %w", file, err)
	}
	series.Source = domain.SourceBackup
	if strings.HasPrefix(origin, seedOrigin) {
		series.Source = domain.SourceSeed
	}

	s.log.Debug().
		Str("fund", fund.Name).
		Str("origin", origin).
		Int("points", series.Len()).
		Msg("Loaded price snapshot")
	return series, nil
}

func (s *SnapshotStore) open(file string) (io.ReadCloser, string, error) {
	local := file
	if !filepath.IsAbs(local) && s.dir != "" {
		local = filepath.Join(s.dir, file)
	}
	f, err := os.Open(local)
	if err == nil {
		return f, local, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, "", fmt.Errorf("open snapshot %s: %w", local, err)
	}

	if s.seed != nil && !filepath.IsAbs(file) {
		name := path.Clean(filepath.ToSlash(file))
		seeded, seedErr := s.seed.Open(name)
		if seedErr == nil {
			return seeded, seedOrigin + name, nil
		}
	}
	return nil, "", fmt.Errorf("snapshot %s: %w", file, ErrNoSnapshot)
}

// Save replaces the fund's snapshot with series.
// The file is written to a temp file in the same directory and renamed into place.
func (s *SnapshotStore) Save(fund domain.Fund, series domain.PriceSeries) error {
	if series.Len() == 0 {
		return fmt.Errorf("refusing to write empty snapshot for %s", fund.Name)
	}
	if s.dir == "" {
		return errors.New("snapshot directory not configured")
	}

	target := SnapshotFile(fund)
	if !filepath.IsAbs(target) {
		target = filepath.Join(s.dir, target)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".snapshot-*.csv")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmpName)
	}()

	if err := WriteCSV(tmp, series); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}

	s.log.Debug().Str("fund", fund.Name).Str("file", target).Int("points", series.Len()).Msg("Snapshot refreshed")
	return nil
}

// ReadCSV parses a Date,Close snapshot. Extra columns are ignored and
// rows with unparseable or non-positive prices are skipped.
func ReadCSV(r io.Reader, fund string) (domain.PriceSeries, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return domain.PriceSeries{}, ErrNoSnapshot
		}
		return domain.PriceSeries{}, fmt.Errorf("failed to read header: %w", err)
	}
	dateCol, priceCol := findColumn(header, dateColumns), findColumn(header, priceColumns)
	if dateCol < 0 || priceCol < 0 {
		return domain.PriceSeries{}, fmt.Errorf("header %v needs a date and a close column", header)
	}

	byDay := map[time.Time]float64{}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return domain.PriceSeries{}, fmt.Errorf("failed to read row: %w", err)
		}
		if dateCol >= len(record) || priceCol >= len(record) {
			continue
		}
		day, ok := parseDate(record[dateCol])
		if !ok {
			continue
		}
		price, err := strconv.ParseFloat(strings.TrimSpace(record[priceCol]), 64)
		if err != nil || !validPrice(price) {
			continue
		}
		byDay[day] = price
	}

	series := domain.PriceSeries{Fund: fund, Source: domain.SourceBackup}
	for day, price := range byDay {
		series.Points = append(series.Points, domain.PricePoint{Time: day, Price: price})
	}
	sort.Slice(series.Points, func(i, j int) bool { return series.Points[i].Time.Before(series.Points[j].Time) })
	if series.Len() == 0 {
		return series, ErrNoSnapshot
	}
	return series, nil
}

// WriteCSV writes series as Date,Close rows.
func WriteCSV(w io.Writer, series domain.PriceSeries) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Date", "Close"}); err != nil {
		return err
	}
	for _, p := range series.Points {
		row := []string{
			p.Time.UTC().Format("2006-01-02"),
			strconv.FormatFloat(p.Price, 'f', -1, 64),
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func findColumn(header []string, names []string) int {
	for _, name := range names {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")), name) {
				return i
			}
		}
	}
	return -1
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return domain.Day(t), true
		}
	}
	return time.Time{}, false
}
