package database

import (
	"context"
	"testing"
	"time"

	"dispatchboard/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAssignmentLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	date := time.Now().Truncate(24 * time.Hour)

	a := &models.Assignment{
		JobID:        11,
		TruckID:      1,
		TimeSlotID:   2,
		SlotPosition: models.BlockAPosition,
		Date:         date,
	}
	require.NoError(t, db.CreateAssignment(ctx, a))
	require.NotZero(t, a.ID)

	got, err := db.GetAssignmentByJob(ctx, 11, date)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, models.BlockAPosition, got.SlotPosition)

	require.NoError(t, db.MoveAssignment(ctx, a.ID, 2, 4, models.BlockBPosition))

	moved, err := db.GetAssignmentByJob(ctx, 11, date)
	require.NoError(t, err)
	assert.Equal(t, int64(2), moved.TruckID)
	assert.Equal(t, int64(4), moved.TimeSlotID)
	assert.Equal(t, models.BlockBPosition, moved.SlotPosition)

	removed, err := db.DeleteAssignmentByJob(ctx, 11, date)
	require.NoError(t, err)
	assert.True(t, removed)

	// Second delete is an idempotent no-op.
	removed, err = db.DeleteAssignmentByJob(ctx, 11, date)
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = db.GetAssignmentByJob(ctx, 11, date)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListAssignmentsByDate_FiltersOtherDays(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	today := time.Now().Truncate(24 * time.Hour)
	tomorrow := today.AddDate(0, 0, 1)

	require.NoError(t, db.CreateAssignment(ctx, &models.Assignment{
		JobID: 1, TruckID: 1, TimeSlotID: 1, SlotPosition: models.BlockAPosition, Date: today,
	}))
	require.NoError(t, db.CreateAssignment(ctx, &models.Assignment{
		JobID: 2, TruckID: 1, TimeSlotID: 1, SlotPosition: models.BlockBPosition, Date: tomorrow,
	}))

	assignments, err := db.ListAssignmentsByDate(ctx, today)
	require.NoError(t, err)
	require.Len(t, assignments, 1)
	assert.Equal(t, int64(1), assignments[0].JobID)
}

func TestPlaceholderLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()
	date := time.Now().Truncate(24 * time.Hour)

	p := &models.Placeholder{
		TruckID:      1,
		TimeSlotID:   3,
		SlotPosition: models.BlockAPosition,
		Date:         date,
		Label:        "Maintenance hold",
		Color:        "#ffcc00",
	}
	require.NoError(t, db.CreatePlaceholder(ctx, p))
	require.NotZero(t, p.ID)

	got, err := db.GetPlaceholder(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Maintenance hold", got.Label)

	require.NoError(t, db.MovePlaceholder(ctx, p.ID, 2, 1, models.BlockBPosition))

	list, err := db.ListPlaceholdersByDate(ctx, date)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0].TruckID)
	assert.Equal(t, models.BlockBPosition, list[0].SlotPosition)

	require.NoError(t, db.DeletePlaceholder(ctx, p.ID))
	_, err = db.GetPlaceholder(ctx, p.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreatePlaceholder_RequiresLabel(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	err := db.CreatePlaceholder(context.Background(), &models.Placeholder{
		TruckID: 1, TimeSlotID: 1, Date: time.Now(),
	})
	assert.Error(t, err)
}

func TestMutationQueue(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	for i, kind := range []string{
		models.MutationStatusUpdate,
		models.MutationStatusUpdate,
		models.MutationPODSubmit,
	} {
		m := &models.PendingMutation{Kind: kind, JobID: int64(i + 1), Payload: "{}"}
		require.NoError(t, db.AppendMutation(ctx, m))
		require.NotZero(t, m.ID)
		assert.False(t, m.EnqueuedAt.IsZero())
	}

	statusMuts, err := db.ListMutations(ctx, models.MutationStatusUpdate)
	require.NoError(t, err)
	require.Len(t, statusMuts, 2)
	// FIFO: replay order is insertion order.
	assert.Equal(t, int64(1), statusMuts[0].JobID)
	assert.Equal(t, int64(2), statusMuts[1].JobID)

	count, err := db.CountMutations(ctx, models.MutationPODSubmit)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	require.NoError(t, db.ClearMutations(ctx))

	for _, kind := range []string{models.MutationStatusUpdate, models.MutationPODSubmit} {
		count, err = db.CountMutations(ctx, kind)
		require.NoError(t, err)
		assert.Zero(t, count)
	}
}

func TestSyncTaskLifecycle(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	ctx := context.Background()

	task := &models.SyncTask{
		TaskType:  "schedule_sync",
		BoardDate: "2026-09-01",
		Payload:   "{}",
		Status:    "pending",
	}
	require.NoError(t, db.CreateSyncTask(ctx, task))
	require.NotZero(t, task.ID)

	pending, err := db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	next := time.Now().Add(time.Hour)
	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, "retry", "sheets unavailable", &next))

	// Not due yet: next_retry_at is in the future.
	pending, err = db.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	require.NoError(t, db.UpdateSyncTaskStatus(ctx, task.ID, "failed", "gave up", nil))

	failed, err := db.GetFailedSyncTasks(ctx)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, 1, failed[0].RetryCount)
	require.NotNil(t, failed[0].ProcessedAt)
}
