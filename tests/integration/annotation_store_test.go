package integration

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/surgitrain/segmentation-service/internal/domain/entity"
	"github.com/surgitrain/segmentation-service/internal/infra/postgres"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func testSegments(label entity.TaskLabel, durationSec float64) []entity.Segment {
	return []entity.Segment{
		{StartSec: 0, EndSec: durationSec / 2, Label: entity.TaskIdle, MeanConfidence: 0.8},
		{StartSec: durationSec / 2, EndSec: durationSec, Label: label, MeanConfidence: 0.9, ParticipantID: "P12"},
	}
}

func startPostgres(t *testing.T, ctx context.Context) *pgxpool.Pool {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("annotations"),
		tcpostgres.WithUsername("seg_user"),
		tcpostgres.WithPassword("seg_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { pgContainer.Terminate(context.Background()) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, postgres.RunMigrations(connStr, "../../migrations"))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func TestAnnotationStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	pool := startPostgres(t, ctx)
	store := postgres.NewAnnotationStore(pool)

	t.Run("read your writes", func(t *testing.T) {
		videoID := uuid.NewString()

		saved, err := store.SaveNewVersion(ctx, videoID, testSegments(entity.TaskSuture, 120), false)
		require.NoError(t, err)
		assert.Equal(t, 1, saved.Version)
		assert.False(t, saved.IsManualEdit)

		latest, err := store.LoadLatest(ctx, videoID)
		require.NoError(t, err)
		assert.Equal(t, saved.Version, latest.Version)
		assert.Equal(t, saved.Segments, latest.Segments)
	})

	t.Run("versions are immutable and monotonic", func(t *testing.T) {
		videoID := uuid.NewString()

		v1, err := store.SaveNewVersion(ctx, videoID, testSegments(entity.TaskSuture, 120), false)
		require.NoError(t, err)
		v2, err := store.SaveNewVersion(ctx, videoID, testSegments(entity.TaskGloveCut, 120), true)
		require.NoError(t, err)
		assert.Equal(t, v1.Version+1, v2.Version)

		// The older version still reads back exactly as written.
		got, err := store.LoadVersion(ctx, videoID, v1.Version)
		require.NoError(t, err)
		assert.Equal(t, entity.TaskSuture, got.Segments[1].Label)
		assert.False(t, got.IsManualEdit)

		latest, err := store.LoadLatest(ctx, videoID)
		require.NoError(t, err)
		assert.Equal(t, v2.Version, latest.Version)
		assert.True(t, latest.IsManualEdit)
	})

	t.Run("unknown video and version", func(t *testing.T) {
		_, err := store.LoadLatest(ctx, uuid.NewString())
		assert.ErrorIs(t, err, entity.ErrAnnotationNotFound)

		videoID := uuid.NewString()
		_, err = store.SaveNewVersion(ctx, videoID, testSegments(entity.TaskSuture, 60), false)
		require.NoError(t, err)
		_, err = store.LoadVersion(ctx, videoID, 99)
		assert.ErrorIs(t, err, entity.ErrAnnotationNotFound)
	})

	t.Run("list versions", func(t *testing.T) {
		videoID := uuid.NewString()

		_, err := store.SaveNewVersion(ctx, videoID, testSegments(entity.TaskSuture, 120), false)
		require.NoError(t, err)
		_, err = store.SaveNewVersion(ctx, videoID, testSegments(entity.TaskGloveCut, 120), true)
		require.NoError(t, err)

		metas, err := store.ListVersions(ctx, videoID)
		require.NoError(t, err)
		require.Len(t, metas, 2)
		assert.Equal(t, 1, metas[0].Version)
		assert.Equal(t, 2, metas[1].Version)
		assert.Equal(t, 2, metas[0].SegmentCount)
		assert.False(t, metas[0].IsManualEdit)
		assert.True(t, metas[1].IsManualEdit)
	})

	t.Run("concurrent saves never share a version", func(t *testing.T) {
		videoID := uuid.NewString()
		const writers = 8

		// Each writer uses its own store so the in-process cache cannot
		// serialize them; only the database does.
		versions := make([]int, 0, writers)
		var mu sync.Mutex
		var wg sync.WaitGroup
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s := postgres.NewAnnotationStore(pool)
				v, err := s.SaveNewVersion(ctx, videoID, testSegments(entity.TaskSuture, 120), true)
				if err != nil {
					// Losing a race is acceptable; silent corruption is not.
					assert.ErrorIs(t, err, entity.ErrConcurrentSaveConflict)
					return
				}
				mu.Lock()
				versions = append(versions, v.Version)
				mu.Unlock()
			}()
		}
		wg.Wait()

		require.NotEmpty(t, versions)
		sort.Ints(versions)
		for i := 1; i < len(versions); i++ {
			assert.NotEqual(t, versions[i-1], versions[i], "two writers were handed the same version")
		}

		latest, err := store.LoadLatest(ctx, videoID)
		require.NoError(t, err)
		assert.Equal(t, versions[len(versions)-1], latest.Version)
	})
}
