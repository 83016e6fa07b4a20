package board

import (
	"context"
	"strconv"
	"testing"
	"time"

	"dispatchboard/internal/allocator"
	"dispatchboard/internal/config"
	"dispatchboard/internal/database"
	"dispatchboard/internal/domain"
	"dispatchboard/internal/events"
	"dispatchboard/internal/models"
	"dispatchboard/internal/repository"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSyncer struct {
	calls int
	dates []time.Time
}

func (s *stubSyncer) EnqueueScheduleSync(ctx context.Context, date time.Time) error {
	s.calls++
	s.dates = append(s.dates, date)
	return nil
}

type fixture struct {
	db     *database.DB
	state  domain.StateRepository
	bus    *events.EventBus
	syncer *stubSyncer
	board  *Board
	date   time.Time
}

func setupBoard(t *testing.T) *fixture {
	logger := zerolog.Nop()
	db, err := database.NewDB(":memory:", &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.BoardConfig{
		Trucks: []models.Truck{
			{ID: 1, Name: "Truck 1", Rego: "ABC123"},
			{ID: 2, Name: "Truck 2", Rego: "XYZ789"},
		},
		TimeSlots: models.DefaultTimeSlots,
	}

	f := &fixture{
		db:     db,
		state:  repository.NewMemoryStateRepository(),
		bus:    events.NewEventBus(),
		syncer: &stubSyncer{},
		date:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}

	c := NewController(db, f.state, f.bus, f.syncer, cfg, zerolog.Nop())
	board, err := c.Open(context.Background(), f.date)
	require.NoError(t, err)
	f.board = board
	return f
}

func (f *fixture) createJob(t *testing.T, status string) *models.Job {
	job := &models.Job{
		CustomerID:    1,
		CustomerName:  "Acme",
		RequestedDate: f.date,
		Status:        status,
		DriverStatus:  models.DriverNotStarted,
	}
	require.NoError(t, f.db.CreateJob(context.Background(), job))
	return job
}

func (f *fixture) drag(t *testing.T, entityID string, truckID, slotID int64, pos int) *View {
	view, err := f.board.HandleDragEnd(context.Background(), DragEndCommand{
		EntityID:          entityID,
		TruckID:           truckID,
		TimeSlotID:        slotID,
		RequestedPosition: pos,
	})
	require.NoError(t, err)
	return view
}

func TestOpen_RequiresDate(t *testing.T) {
	c := NewController(nil, nil, nil, nil, config.BoardConfig{}, zerolog.Nop())
	_, err := c.Open(context.Background(), time.Time{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestView_Partitioning(t *testing.T) {
	f := setupBoard(t)
	ctx := context.Background()

	poolJob := f.createJob(t, models.StatusApproved)
	pendingJob := f.createJob(t, models.StatusPendingApproval)
	transitJob := f.createJob(t, models.StatusInTransit)

	// A job requested for another date stays off this board's pool.
	otherDay := &models.Job{
		CustomerID: 1, CustomerName: "Later", Status: models.StatusApproved,
		RequestedDate: f.date.AddDate(0, 0, 1),
	}
	require.NoError(t, f.db.CreateJob(ctx, otherDay))

	// A scheduled job appears in its cell, not the pool.
	scheduledJob := f.createJob(t, models.StatusScheduled)
	require.NoError(t, f.db.CreateAssignment(ctx, &models.Assignment{
		JobID: scheduledJob.ID, TruckID: 1, TimeSlotID: 2,
		SlotPosition: models.BlockAPosition, Date: f.date,
	}))

	view, err := f.board.View(ctx)
	require.NoError(t, err)

	require.Len(t, view.Unscheduled, 2)
	ids := []int64{view.Unscheduled[0].Job.ID, view.Unscheduled[1].Job.ID}
	assert.Contains(t, ids, poolJob.ID)
	assert.Contains(t, ids, pendingJob.ID)
	assert.NotContains(t, ids, transitJob.ID)

	require.Len(t, view.Cells, 1)
	assert.Equal(t, int64(1), view.Cells[0].TruckID)
	assert.Equal(t, int64(2), view.Cells[0].TimeSlotID)
	require.Len(t, view.Cells[0].Entries, 1)
	assert.Equal(t, scheduledJob.ID, view.Cells[0].Entries[0].Job.ID)
}

func TestDragEnd_SchedulesJob(t *testing.T) {
	f := setupBoard(t)
	ctx := context.Background()

	var scheduled []int64
	f.bus.Subscribe(events.EventJobScheduled, func(e *events.Event) error {
		scheduled = append(scheduled, 1)
		return nil
	})

	job := f.createJob(t, models.StatusApproved)
	view := f.drag(t, "job:"+itoa(job.ID), 1, 1, 1)

	assert.Empty(t, view.Unscheduled)
	require.Len(t, view.Cells, 1)
	assert.Equal(t, 1, view.Cells[0].Entries[0].Position)

	got, err := f.db.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, got.Status)

	assert.Len(t, scheduled, 1)
	assert.Equal(t, 1, f.syncer.calls)
}

func TestDragEnd_CapacityScenario(t *testing.T) {
	f := setupBoard(t)
	ctx := context.Background()

	jobA := f.createJob(t, models.StatusApproved)
	jobB := f.createJob(t, models.StatusApproved)
	jobC := f.createJob(t, models.StatusApproved)

	// A at requested position 1 lands in block A.
	f.drag(t, "job:"+itoa(jobA.ID), 1, 1, 1)
	a, err := f.db.GetAssignmentByJob(ctx, jobA.ID, f.date)
	require.NoError(t, err)
	assert.Equal(t, 1, a.SlotPosition)

	// B at requested position 2 falls back to block B.
	f.drag(t, "job:"+itoa(jobB.ID), 1, 1, 2)
	bAssign, err := f.db.GetAssignmentByJob(ctx, jobB.ID, f.date)
	require.NoError(t, err)
	assert.Equal(t, 3, bAssign.SlotPosition)

	// C is rejected and nothing changes.
	var rejected int
	f.bus.Subscribe(events.EventCapacityRejected, func(*events.Event) error {
		rejected++
		return nil
	})

	_, err = f.board.HandleDragEnd(ctx, DragEndCommand{
		EntityID: "job:" + itoa(jobC.ID), TruckID: 1, TimeSlotID: 1, RequestedPosition: 1,
	})
	assert.ErrorIs(t, err, allocator.ErrCapacityExceeded)
	assert.Equal(t, 1, rejected)

	_, err = f.db.GetAssignmentByJob(ctx, jobC.ID, f.date)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	got, _ := f.db.GetJob(ctx, jobC.ID)
	assert.Equal(t, models.StatusApproved, got.Status)
}

func TestDragEnd_MoveBetweenCells(t *testing.T) {
	f := setupBoard(t)
	ctx := context.Background()

	job := f.createJob(t, models.StatusApproved)
	f.drag(t, "job:"+itoa(job.ID), 1, 1, 1)

	// Moving an already-scheduled card does not re-run the lifecycle.
	f.drag(t, "job:"+itoa(job.ID), 2, 3, 3)

	a, err := f.db.GetAssignmentByJob(ctx, job.ID, f.date)
	require.NoError(t, err)
	assert.Equal(t, int64(2), a.TruckID)
	assert.Equal(t, int64(3), a.TimeSlotID)
	assert.Equal(t, 3, a.SlotPosition)

	got, _ := f.db.GetJob(ctx, job.ID)
	assert.Equal(t, models.StatusScheduled, got.Status)
}

func TestDragEnd_UnscheduleIsIdempotent(t *testing.T) {
	f := setupBoard(t)
	ctx := context.Background()

	job := f.createJob(t, models.StatusApproved)
	f.drag(t, "job:"+itoa(job.ID), 1, 1, 1)

	cmd := DragEndCommand{EntityID: "job:" + itoa(job.ID), ToUnscheduled: true}

	view, err := f.board.HandleDragEnd(ctx, cmd)
	require.NoError(t, err)
	require.Len(t, view.Unscheduled, 1)
	assert.Empty(t, view.Cells)

	got, _ := f.db.GetJob(ctx, job.ID)
	assert.Equal(t, models.StatusApproved, got.Status)

	// Second drop to unscheduled is a no-op, not an error.
	_, err = f.board.HandleDragEnd(ctx, cmd)
	require.NoError(t, err)
}

func TestDragEnd_PlaceholderLifecycle(t *testing.T) {
	f := setupBoard(t)
	ctx := context.Background()

	p, err := f.board.CreatePlaceholder(ctx, 1, 1, 1, "Maintenance", "#ccc")
	require.NoError(t, err)
	assert.Equal(t, 1, p.SlotPosition)

	// A job dropped on the same cell falls back to block B.
	job := f.createJob(t, models.StatusApproved)
	f.drag(t, "job:"+itoa(job.ID), 1, 1, 1)
	a, err := f.db.GetAssignmentByJob(ctx, job.ID, f.date)
	require.NoError(t, err)
	assert.Equal(t, 3, a.SlotPosition)

	// Dropping the placeholder off the grid deletes it outright.
	_, err = f.board.HandleDragEnd(ctx, DragEndCommand{
		EntityID: "ph:" + itoa(p.ID), ToUnscheduled: true,
	})
	require.NoError(t, err)

	_, err = f.db.GetPlaceholder(ctx, p.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreatePlaceholder_Validation(t *testing.T) {
	f := setupBoard(t)

	_, err := f.board.CreatePlaceholder(context.Background(), 1, 1, 1, "", "")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestMarkRead_Partitioning(t *testing.T) {
	f := setupBoard(t)
	ctx := context.Background()

	job := f.createJob(t, models.StatusApproved)

	view, err := f.board.View(ctx)
	require.NoError(t, err)
	require.Len(t, view.Unscheduled, 1)
	assert.True(t, view.Unscheduled[0].IsNew)

	require.NoError(t, f.board.MarkRead(ctx, job.ID))
	// Idempotent re-mark.
	require.NoError(t, f.board.MarkRead(ctx, job.ID))

	view, err = f.board.View(ctx)
	require.NoError(t, err)
	assert.False(t, view.Unscheduled[0].IsNew)
}

func TestClosedBoardRefusesCommands(t *testing.T) {
	f := setupBoard(t)
	f.board.Close()

	_, err := f.board.View(context.Background())
	assert.Error(t, err)

	_, err = f.board.HandleDragEnd(context.Background(), DragEndCommand{EntityID: "job:1"})
	assert.Error(t, err)
}

func TestParseEntityID(t *testing.T) {
	kind, id, err := parseEntityID("job:42")
	require.NoError(t, err)
	assert.Equal(t, "job", kind)
	assert.Equal(t, int64(42), id)

	kind, id, err = parseEntityID("ph:7")
	require.NoError(t, err)
	assert.Equal(t, "ph", kind)
	assert.Equal(t, int64(7), id)

	for _, bad := range []string{"", "job:", "ph:abc", "42", "truck:1"} {
		_, _, err := parseEntityID(bad)
		assert.ErrorIs(t, err, domain.ErrValidation, bad)
	}
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
