package testutil

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukex/dailyreel/pkg/models"
	"github.com/dukex/dailyreel/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunStoreContract exercises the behaviour every persistence.RunStore backend must share.
// newStore must return an empty store.
func RunStoreContract(t *testing.T, newStore func(t *testing.T) persistence.RunStore) {
	t.Helper()

	ctx := context.Background()

	t.Run("load missing run", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Load(ctx, "2026-02-11")
		require.Error(t, err)
		assert.True(t, persistence.IsRunNotFound(err))
	})

	t.Run("save and load", func(t *testing.T) {
		store := newStore(t)
		record := CreateTestRun("2026-02-11", WithStatus(models.RunStatusFailed), WithSucceededSteps(2),
			WithFailedStep(models.StepSynthesizeVoice, "SynthesisFailed: voice service down"))

		require.NoError(t, store.Save(ctx, record))

		loaded, err := store.Load(ctx, "2026-02-11")
		require.NoError(t, err)
		assert.Equal(t, record.Status, loaded.Status)
		assert.Equal(t, record.Steps, loaded.Steps)
		assert.Equal(t, record.Error, loaded.Error)
		assert.True(t, record.CreatedAt.Equal(loaded.CreatedAt))

		record.Status = models.RunStatusSucceeded
		require.NoError(t, store.Save(ctx, record))

		loaded, err = store.Load(ctx, "2026-02-11")
		require.NoError(t, err)
		assert.Equal(t, models.RunStatusSucceeded, loaded.Status)
	})

	t.Run("update creates and modifies", func(t *testing.T) {
		store := newStore(t)

		created, err := store.Update(ctx, "2026-02-12", func(current *models.RunRecord) (*models.RunRecord, error) {
			assert.Nil(t, current)

			return CreateTestRun("2026-02-12"), nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, created.Attempts)

		updated, err := store.Update(ctx, "2026-02-12", func(current *models.RunRecord) (*models.RunRecord, error) {
			require.NotNil(t, current)
			current.Attempts++

			return current, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, updated.Attempts)

		loaded, err := store.Load(ctx, "2026-02-12")
		require.NoError(t, err)
		assert.Equal(t, 2, loaded.Attempts)
	})

	t.Run("update propagates callback errors", func(t *testing.T) {
		store := newStore(t)
		boom := errors.New("boom")

		_, err := store.Update(ctx, "2026-02-13", func(*models.RunRecord) (*models.RunRecord, error) {
			return nil, boom
		})
		require.ErrorIs(t, err, boom)

		_, err = store.Load(ctx, "2026-02-13")
		assert.True(t, persistence.IsRunNotFound(err))
	})

	t.Run("list filters and orders newest first", func(t *testing.T) {
		store := newStore(t)

		for _, date := range []string{"2026-02-09", "2026-02-11", "2026-02-10", "2026-03-01"} {
			require.NoError(t, store.Save(ctx, CreateTestRun(date)))
		}

		all, err := store.List(ctx, models.DateRange{})
		require.NoError(t, err)
		require.Len(t, all, 4)
		assert.Equal(t, "2026-03-01", all[0].Date)
		assert.Equal(t, "2026-02-09", all[3].Date)

		february, err := store.List(ctx, models.DateRange{From: "2026-02-10", To: "2026-02-28"})
		require.NoError(t, err)
		require.Len(t, february, 2)
		assert.Equal(t, "2026-02-11", february[0].Date)
		assert.Equal(t, "2026-02-10", february[1].Date)
	})

	t.Run("events append and replay", func(t *testing.T) {
		store := newStore(t)

		empty, err := store.Events(ctx, "2026-02-11", 0)
		require.NoError(t, err)
		assert.Empty(t, empty)

		for seq := int64(1); seq <= 3; seq++ {
			require.NoError(t, store.AppendEvent(ctx, CreateTestEvent("2026-02-11", seq, models.StepFetchNews, models.StepStatusRunning)))
		}

		require.NoError(t, store.AppendEvent(ctx, CreateTestEvent("2026-02-12", 1, models.StepFetchNews, models.StepStatusRunning)))

		events, err := store.Events(ctx, "2026-02-11", 0)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, int64(1), events[0].Seq)
		assert.Equal(t, int64(3), events[2].Seq)

		tail, err := store.Events(ctx, "2026-02-11", 2)
		require.NoError(t, err)
		require.Len(t, tail, 1)
		assert.Equal(t, int64(3), tail[0].Seq)
	})

	t.Run("active sentinel is exclusive", func(t *testing.T) {
		store := newStore(t)

		active, err := store.ActiveRun(ctx)
		require.NoError(t, err)
		assert.Nil(t, active)

		first := models.ActiveRun{RunID: "2026-02-11", Owner: "host:1"}
		require.NoError(t, store.AcquireActive(ctx, first))

		err = store.AcquireActive(ctx, models.ActiveRun{RunID: "2026-02-12", Owner: "host:2"})
		require.Error(t, err)
		assert.True(t, persistence.IsActiveRunExists(err))

		active, err = store.ActiveRun(ctx)
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, "2026-02-11", active.RunID)
		assert.Equal(t, "host:1", active.Owner)
		assert.False(t, active.StopRequested)

		err = store.RequestStop(ctx, "2026-02-12")
		assert.True(t, persistence.IsRunNotActive(err))

		require.NoError(t, store.RequestStop(ctx, "2026-02-11"))

		active, err = store.ActiveRun(ctx)
		require.NoError(t, err)
		assert.True(t, active.StopRequested)

		err = store.ReleaseActive(ctx, "2026-02-12")
		assert.True(t, persistence.IsRunNotActive(err))

		require.NoError(t, store.ReleaseActive(ctx, "2026-02-11"))

		active, err = store.ActiveRun(ctx)
		require.NoError(t, err)
		assert.Nil(t, active)

		require.NoError(t, store.AcquireActive(ctx, models.ActiveRun{RunID: "2026-02-12", Owner: "host:2"}))
	})

	t.Run("stop after release", func(t *testing.T) {
		store := newStore(t)

		acquired := time.Date(2026, 2, 11, 6, 0, 0, 0, time.UTC)
		require.NoError(t, store.AcquireActive(ctx, models.ActiveRun{RunID: "2026-02-11", Owner: "host:1", AcquiredAt: acquired}))
		require.NoError(t, store.RequestStop(ctx, "2026-02-11"))
		require.NoError(t, store.ReleaseActive(ctx, "2026-02-11"))

		err := store.RequestStop(ctx, "2026-02-11")
		assert.True(t, persistence.IsRunNotActive(err))

		active, err := store.ActiveRun(ctx)
		require.NoError(t, err)
		assert.Nil(t, active)

		require.NoError(t, store.AcquireActive(ctx, models.ActiveRun{RunID: "2026-02-11", Owner: "host:2", AcquiredAt: acquired.Add(time.Hour)}))

		active, err = store.ActiveRun(ctx)
		require.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, "host:2", active.Owner)
		assert.False(t, active.StopRequested)
	})

	t.Run("health check", func(t *testing.T) {
		store := newStore(t)

		assert.NoError(t, store.HealthCheck(ctx))
	})
}
