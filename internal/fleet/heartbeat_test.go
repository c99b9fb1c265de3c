package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cafeworks/postbot/internal/domain/model"
	"github.com/cafeworks/postbot/internal/testutil"
)

func newTestStore(t *testing.T) (*HeartbeatStore, *time.Time) {
	t.Helper()
	client := testutil.SetupTestRedis(t)
	current := testutil.TestTime()
	store, err := NewHeartbeatStore(Options{
		Client: client,
		Now:    func() time.Time { return current },
	})
	require.NoError(t, err)
	return store, &current
}

func workerStatus(id string) model.WorkerStatus {
	return model.WorkerStatus{
		WorkerID:      id,
		Host:          "bench-1",
		PID:           4242,
		ProcessedJobs: 7,
		StartedAt:     testutil.TestTime(),
	}
}

func TestHeartbeatStore_BeatAndOnline(t *testing.T) {
	store, current := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Beat(ctx, workerStatus("w1")))

	// Ten minutes later only a fresh beat counts as online.
	*current = current.Add(10 * time.Minute)
	require.NoError(t, store.Beat(ctx, workerStatus("w2")))

	count, err := store.CountOnline(ctx, time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	online, err := store.Online(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, []string{"w2"}, online)

	// A wide enough threshold still sees both.
	count, err = store.CountOnline(ctx, time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestHeartbeatStore_DetailRoundtrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Beat(ctx, workerStatus("w1")))

	detail, err := store.Detail(ctx, "w1")
	require.NoError(t, err)
	require.NotNil(t, detail)
	assert.Equal(t, "w1", detail.WorkerID)
	assert.Equal(t, "bench-1", detail.Host)
	assert.EqualValues(t, 7, detail.ProcessedJobs)

	missing, err := store.Detail(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestHeartbeatStore_PruneStale(t *testing.T) {
	store, current := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Beat(ctx, workerStatus("w1")))
	*current = current.Add(10 * time.Minute)
	require.NoError(t, store.Beat(ctx, workerStatus("w2")))

	removed, err := store.PruneStale(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	online, err := store.Online(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"w2"}, online)
}

func TestHeartbeatStore_Deregister(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Beat(ctx, workerStatus("w1")))
	require.NoError(t, store.Deregister(ctx, "w1"))

	count, err := store.CountOnline(ctx, time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	detail, err := store.Detail(ctx, "w1")
	require.NoError(t, err)
	assert.Nil(t, detail)
}

func TestHeartbeatStore_BeatRequiresWorkerID(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Beat(context.Background(), model.WorkerStatus{})
	require.Error(t, err)
}
