package reliability

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/marketdata"
)

// DefaultSnapshotPrefix is the key prefix for archived snapshots
const DefaultSnapshotPrefix = "snapshots"

const manifestName = "manifest.json"

// SnapshotInfo describes one archived snapshot
type SnapshotInfo struct {
	Fund      string `json:"fund"`
	Key       string `json:"key"`
	Points    int    `json:"points"`
	FirstDate string `json:"first_date"`
	LastDate  string `json:"last_date"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Manifest lists the snapshots of one publish run
type Manifest struct {
	Timestamp time.Time      `json:"timestamp"`
	Snapshots []SnapshotInfo `json:"snapshots"`
}

// SnapshotArchive stores fund snapshots as CSV objects in a bucket.
// It is also a domain.PriceSource, used as the last backup tier.
type SnapshotArchive struct {
	store  ObjectStore
	prefix string
	log    zerolog.Logger
	now    func() time.Time
}

// NewSnapshotArchive creates an archive under prefix
func NewSnapshotArchive(store ObjectStore, prefix string, log zerolog.Logger) *SnapshotArchive {
	if prefix == "" {
		prefix = DefaultSnapshotPrefix
	}
	return &SnapshotArchive{
		store:  store,
		prefix: strings.Trim(prefix, "/"),
		log:    log.With().Str("service", "snapshot_archive").Logger(),
		now:    time.Now,
	}
}

// Name identifies the source in logs and warnings
func (a *SnapshotArchive) Name() string {
	return "snapshot_archive"
}

// Key is the object key of a fund's snapshot
func (a *SnapshotArchive) Key(fund domain.Fund) string {
	return path.Join(a.prefix, path.Base(filepath.ToSlash(marketdata.SnapshotFile(fund))))
}

// Upload archives series as the fund's snapshot
func (a *SnapshotArchive) Upload(ctx context.Context, fund domain.Fund, series domain.PriceSeries) (SnapshotInfo, error) {
	if series.Len() == 0 {
		return SnapshotInfo{}, fmt.Errorf("refusing to archive empty snapshot for %s", fund.Name)
	}

	var buf bytes.Buffer
	if err := marketdata.WriteCSV(&buf, series); err != nil {
		return SnapshotInfo{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	sum := sha256.Sum256(buf.Bytes())

	info := SnapshotInfo{
		Fund:      fund.Name,
		Key:       a.Key(fund),
		Points:    series.Len(),
		FirstDate: series.Points[0].Time.Format("2006-01-02"),
		LastDate:  series.Points[series.Len()-1].Time.Format("2006-01-02"),
		SizeBytes: int64(buf.Len()),
		Checksum:  fmt.Sprintf("sha256:%x", sum),
	}

	if err := a.store.Upload(ctx, info.Key, &buf, "text/csv"); err != nil {
		return SnapshotInfo{}, err
	}
	a.log.Debug().Str("fund", fund.Name).Str("key", info.Key).Int("points", info.Points).Msg("Archived snapshot")
	return info, nil
}

// Download reads the fund's archived snapshot
func (a *SnapshotArchive) Download(ctx context.Context, fund domain.Fund) (domain.PriceSeries, error) {
	data, err := a.store.Download(ctx, a.Key(fund))
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return domain.PriceSeries{}, fmt.Errorf("%w: %w", err, marketdata.ErrNoSnapshot)
		}
		return domain.PriceSeries{}, err
	}

	series, err := marketdata.ReadCSV(bytes.NewReader(data), fund.Name)
	if err != nil {
		return domain.PriceSeries{}, fmt.Errorf("archived snapshot %s: %w", a.Key(fund), err)
	}
	series.Source = domain.SourceArchive
	return series, nil
}

// FetchHistory serves the archived snapshot restricted to [from, to]
func (a *SnapshotArchive) FetchHistory(ctx context.Context, fund domain.Fund, from, to time.Time) (domain.PriceSeries, error) {
	series, err := a.Download(ctx, fund)
	if err != nil {
		return domain.PriceSeries{}, err
	}
	series = series.Window(domain.Day(from), to)
	if series.Len() == 0 {
		return domain.PriceSeries{}, fmt.Errorf("archived snapshot for %s has no rows in window: %w", fund.Name, marketdata.ErrNoSnapshot)
	}
	return series, nil
}

// List returns the archived snapshot objects sorted by key
func (a *SnapshotArchive) List(ctx context.Context) ([]ObjectInfo, error) {
	objects, err := a.store.List(ctx, a.prefix+"/")
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	out := make([]ObjectInfo, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Key, ".csv") {
			out = append(out, obj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// WriteManifest records a publish run
func (a *SnapshotArchive) WriteManifest(ctx context.Context, snapshots []SnapshotInfo) error {
	manifest := Manifest{Timestamp: a.now().UTC(), Snapshots: snapshots}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	return a.store.Upload(ctx, path.Join(a.prefix, manifestName), bytes.NewReader(data), "application/json")
}

// ReadManifest returns the last publish run
func (a *SnapshotArchive) ReadManifest(ctx context.Context) (*Manifest, error) {
	data, err := a.store.Download(ctx, path.Join(a.prefix, manifestName))
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &manifest, nil
}
