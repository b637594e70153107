package reliability

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/advisor/internal/domain"
	"github.com/aristath/advisor/internal/modules/marketdata"
)

func TestPublishSnapshotsJob(t *testing.T) {
	local := marketdata.NewSnapshotStore(t.TempDir(), nil, zerolog.Nop())
	equity := domain.Fund{Name: "Global Equity"}
	missing := domain.Fund{Name: "REIT"}
	require.NoError(t, local.Save(bonds, series("Bonds", 10, 20)))
	require.NoError(t, local.Save(equity, series("Global Equity", 10, 50)))

	store := newMemStore()
	archive := NewSnapshotArchive(store, "", zerolog.Nop())
	job := NewPublishSnapshotsJob(archive, local, []domain.Fund{bonds, equity, missing}, zerolog.Nop())
	assert.Equal(t, "publish_snapshots", job.Name())

	require.NoError(t, job.Run())
	assert.Contains(t, store.objects, "snapshots/bonds.csv")
	assert.Contains(t, store.objects, "snapshots/global_equity.csv")

	manifest, err := archive.ReadManifest(context.Background())
	require.NoError(t, err)
	require.Len(t, manifest.Snapshots, 2)
	assert.Equal(t, "Bonds", manifest.Snapshots[0].Fund)
	assert.Equal(t, 10, manifest.Snapshots[0].Points)
}

func TestPublishSnapshotsJob_NothingToPublish(t *testing.T) {
	local := marketdata.NewSnapshotStore(t.TempDir(), nil, zerolog.Nop())
	archive := NewSnapshotArchive(newMemStore(), "", zerolog.Nop())

	job := NewPublishSnapshotsJob(archive, local, []domain.Fund{bonds}, zerolog.Nop())
	assert.Error(t, job.Run())
}

func TestPublishSnapshotsJob_UploadFailure(t *testing.T) {
	local := marketdata.NewSnapshotStore(t.TempDir(), nil, zerolog.Nop())
	require.NoError(t, local.Save(bonds, series("Bonds", 10, 20)))

	store := newMemStore()
	store.failPut = true
	job := NewPublishSnapshotsJob(NewSnapshotArchive(store, "", zerolog.Nop()), local, []domain.Fund{bonds}, zerolog.Nop())
	assert.Error(t, job.Run())
}
