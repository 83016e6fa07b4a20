// Package board orchestrates the scheduling grid for a single date: the
// unscheduled pool, the per-truck per-window cells and the drag-and-drop
// commands that move entries between them.
package board

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dispatchboard/internal/allocator"
	"dispatchboard/internal/config"
	"dispatchboard/internal/domain"
	"dispatchboard/internal/events"
	"dispatchboard/internal/lifecycle"
	"dispatchboard/internal/metrics"
	"dispatchboard/internal/models"

	"github.com/rs/zerolog"
)

// Controller owns the collaborators; Open scopes them to one date.
type Controller struct {
	store  domain.RecordStore
	state  domain.StateRepository
	events domain.EventPublisher
	syncer domain.SyncScheduler
	cfg    config.BoardConfig
	log    zerolog.Logger
}

func NewController(store domain.RecordStore, state domain.StateRepository, bus domain.EventPublisher, syncer domain.SyncScheduler, cfg config.BoardConfig, logger zerolog.Logger) *Controller {
	return &Controller{
		store:  store,
		state:  state,
		events: bus,
		syncer: syncer,
		cfg:    cfg,
		log:    logger.With().Str("component", "board").Logger(),
	}
}

// Board is one opened date. It holds no cached rows: every View call
// refetches, and cross-client races resolve as last full refetch wins.
type Board struct {
	c      *Controller
	date   time.Time
	closed bool
}

// Open starts a board session for a date.
func (c *Controller) Open(ctx context.Context, date time.Time) (*Board, error) {
	if date.IsZero() {
		return nil, fmt.Errorf("%w: board date is required", domain.ErrValidation)
	}
	c.log.Info().Str("date", date.Format(models.DateLayout)).Msg("board opened")
	return &Board{c: c, date: date}, nil
}

// Close ends the session. The board holds no background resources; this
// only fences off further use.
func (b *Board) Close() {
	b.closed = true
}

func (b *Board) guard() error {
	if b.closed {
		return fmt.Errorf("board for %s is closed", b.date.Format(models.DateLayout))
	}
	return nil
}

// Date returns the date this board is scoped to.
func (b *Board) Date() time.Time { return b.date }

// Entry is one occupant of a cell: a job card or a placeholder.
type Entry struct {
	ID          string              `json:"id"`
	Position    int                 `json:"position"`
	Job         *models.Job         `json:"job,omitempty"`
	Placeholder *models.Placeholder `json:"placeholder,omitempty"`
}

// Cell is one (truck, time window) intersection for the board's date.
type Cell struct {
	TruckID    int64   `json:"truck_id"`
	TimeSlotID int64   `json:"time_slot_id"`
	Entries    []Entry `json:"entries"`
}

// UnscheduledJob is a pool card plus its notification state.
type UnscheduledJob struct {
	Job   *models.Job `json:"job"`
	IsNew bool        `json:"is_new"`
}

// View is the full render model for one date.
type View struct {
	Date          string                `json:"date"`
	Trucks        []models.Truck        `json:"trucks"`
	TimeSlots     []models.TimeSlot     `json:"time_slots"`
	DeliveryTypes []models.DeliveryType `json:"delivery_types"`
	Unscheduled   []UnscheduledJob      `json:"unscheduled"`
	Cells         []Cell                `json:"cells"`
}

// View fetches and partitions the date's records.
func (b *Board) View(ctx context.Context) (*View, error) {
	if err := b.guard(); err != nil {
		return nil, err
	}

	jobs, err := b.c.store.ListJobsByStatus(ctx, models.ActiveStatuses)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch jobs: %w", err)
	}
	assignments, err := b.c.store.ListAssignmentsByDate(ctx, b.date)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assignments: %w", err)
	}
	placeholders, err := b.c.store.ListPlaceholdersByDate(ctx, b.date)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch placeholders: %w", err)
	}

	readMarkers := map[int64]bool{}
	if b.c.state != nil {
		readMarkers, err = b.c.state.GetReadMarkers(ctx, b.date)
		if err != nil {
			// Degrade to "everything new" rather than failing the render.
			b.c.log.Warn().Err(err).Msg("failed to fetch read markers")
			readMarkers = map[int64]bool{}
		}
	}

	jobByID := make(map[int64]*models.Job, len(jobs))
	for _, job := range jobs {
		jobByID[job.ID] = job
	}
	assignedJobs := make(map[int64]bool, len(assignments))
	for _, a := range assignments {
		assignedJobs[a.JobID] = true
	}

	view := &View{
		Date:          b.date.Format(models.DateLayout),
		Trucks:        b.c.cfg.Trucks,
		TimeSlots:     b.c.cfg.TimeSlots,
		DeliveryTypes: b.c.cfg.DeliveryTypes,
	}

	for _, job := range jobs {
		if assignedJobs[job.ID] {
			continue
		}
		if job.Status != models.StatusApproved && job.Status != models.StatusPendingApproval {
			continue
		}
		if job.RequestedDate.Format(models.DateLayout) != view.Date {
			continue
		}
		view.Unscheduled = append(view.Unscheduled, UnscheduledJob{
			Job:   job,
			IsNew: !readMarkers[job.ID],
		})
	}

	cells := make(map[[2]int64]*Cell)
	cellFor := func(truckID, slotID int64) *Cell {
		key := [2]int64{truckID, slotID}
		if c, ok := cells[key]; ok {
			return c
		}
		c := &Cell{TruckID: truckID, TimeSlotID: slotID}
		cells[key] = c
		return c
	}

	for _, a := range assignments {
		cell := cellFor(a.TruckID, a.TimeSlotID)
		cell.Entries = append(cell.Entries, Entry{
			ID:       models.JobIDPrefix + strconv.FormatInt(a.JobID, 10),
			Position: allocator.StartPosition(allocator.BlockOf(a.SlotPosition)),
			Job:      jobByID[a.JobID],
		})
	}
	for _, p := range placeholders {
		cell := cellFor(p.TruckID, p.TimeSlotID)
		cell.Entries = append(cell.Entries, Entry{
			ID:          models.PlaceholderIDPrefix + strconv.FormatInt(p.ID, 10),
			Position:    allocator.StartPosition(allocator.BlockOf(p.SlotPosition)),
			Placeholder: p,
		})
	}

	for _, truck := range b.c.cfg.Trucks {
		for _, slot := range b.c.cfg.TimeSlots {
			key := [2]int64{truck.ID, slot.ID}
			if cell, ok := cells[key]; ok {
				// Block A renders before block B.
				if len(cell.Entries) == 2 && cell.Entries[0].Position > cell.Entries[1].Position {
					cell.Entries[0], cell.Entries[1] = cell.Entries[1], cell.Entries[0]
				}
				view.Cells = append(view.Cells, *cell)
			}
		}
	}

	return view, nil
}

// DragEndCommand is one completed drag gesture.
type DragEndCommand struct {
	EntityID          string `json:"entity_id"`
	TruckID           int64  `json:"truck_id"`
	TimeSlotID        int64  `json:"time_slot_id"`
	RequestedPosition int    `json:"requested_position"`
	ToUnscheduled     bool   `json:"to_unscheduled"`
}

// HandleDragEnd applies one drag gesture and returns the refreshed view.
// Allocation failures leave every record untouched.
func (b *Board) HandleDragEnd(ctx context.Context, cmd DragEndCommand) (*View, error) {
	if err := b.guard(); err != nil {
		return nil, err
	}

	kind, id, err := parseEntityID(cmd.EntityID)
	if err != nil {
		return nil, err
	}

	if cmd.ToUnscheduled {
		err = b.dropToUnscheduled(ctx, kind, id)
	} else {
		err = b.dropToCell(ctx, kind, id, cmd)
	}
	if err != nil {
		return nil, err
	}

	b.scheduleSync(ctx)
	return b.View(ctx)
}

func (b *Board) dropToCell(ctx context.Context, kind string, id int64, cmd DragEndCommand) error {
	occupants, err := b.cellOccupants(ctx, cmd.TruckID, cmd.TimeSlotID)
	if err != nil {
		return err
	}

	position, err := allocator.Allocate(cmd.RequestedPosition, allocator.Occupant{Kind: kind, ID: id}, occupants)
	if errors.Is(err, allocator.ErrCapacityExceeded) {
		metrics.IncAllocation("rejected")
		b.publish(events.EventCapacityRejected, events.JobEventPayload{
			JobID:      id,
			TruckID:    cmd.TruckID,
			TimeSlotID: cmd.TimeSlotID,
			Date:       b.date,
		})
		return err
	}
	if err != nil {
		return err
	}
	metrics.IncAllocation("placed")

	switch kind {
	case "job":
		return b.placeJob(ctx, id, cmd.TruckID, cmd.TimeSlotID, position)
	case "ph":
		return b.placePlaceholder(ctx, id, cmd.TruckID, cmd.TimeSlotID, position)
	}
	return fmt.Errorf("%w: unknown entity kind %q", domain.ErrValidation, kind)
}

// cellOccupants collects every assignment and placeholder in the target
// cell. The allocator excludes the moved entity itself.
func (b *Board) cellOccupants(ctx context.Context, truckID, timeSlotID int64) ([]allocator.Occupant, error) {
	assignments, err := b.c.store.ListAssignmentsByDate(ctx, b.date)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assignments: %w", err)
	}
	placeholders, err := b.c.store.ListPlaceholdersByDate(ctx, b.date)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch placeholders: %w", err)
	}

	var occupants []allocator.Occupant
	for _, a := range assignments {
		if a.TruckID == truckID && a.TimeSlotID == timeSlotID {
			occupants = append(occupants, allocator.Occupant{Kind: "job", ID: a.JobID, Position: a.SlotPosition})
		}
	}
	for _, p := range placeholders {
		if p.TruckID == truckID && p.TimeSlotID == timeSlotID {
			occupants = append(occupants, allocator.Occupant{Kind: "ph", ID: p.ID, Position: p.SlotPosition})
		}
	}
	return occupants, nil
}

func (b *Board) placeJob(ctx context.Context, jobID, truckID, timeSlotID int64, position int) error {
	job, err := b.c.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job: %w", err)
	}

	existing, err := b.c.store.GetAssignmentByJob(ctx, jobID, b.date)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}

	if existing != nil {
		// Already on the board: just move the card.
		if err := b.c.store.MoveAssignment(ctx, existing.ID, truckID, timeSlotID, position); err != nil {
			return err
		}
	} else {
		newStatus, err := lifecycle.Schedule(job.Status)
		if err != nil {
			return err
		}
		if err := b.c.store.CreateAssignment(ctx, &models.Assignment{
			JobID:        jobID,
			TruckID:      truckID,
			TimeSlotID:   timeSlotID,
			SlotPosition: position,
			Date:         b.date,
		}); err != nil {
			return err
		}
		if err := b.c.store.UpdateJobStatus(ctx, jobID, newStatus); err != nil {
			return err
		}
		b.publish(events.EventJobScheduled, events.JobEventPayload{
			JobID:        jobID,
			CustomerName: job.CustomerName,
			TruckID:      truckID,
			TimeSlotID:   timeSlotID,
			Status:       newStatus,
			Date:         b.date,
		})
	}

	b.c.log.Info().Int64("job_id", jobID).Int64("truck_id", truckID).
		Int64("time_slot_id", timeSlotID).Int("position", position).Msg("job placed")
	return nil
}

func (b *Board) placePlaceholder(ctx context.Context, phID, truckID, timeSlotID int64, position int) error {
	if _, err := b.c.store.GetPlaceholder(ctx, phID); err != nil {
		return fmt.Errorf("failed to load placeholder: %w", err)
	}
	return b.c.store.MovePlaceholder(ctx, phID, truckID, timeSlotID, position)
}

func (b *Board) dropToUnscheduled(ctx context.Context, kind string, id int64) error {
	switch kind {
	case "job":
		removed, err := b.c.store.DeleteAssignmentByJob(ctx, id, b.date)
		if err != nil {
			return err
		}
		if !removed {
			// Already unscheduled; the whole operation is a no-op.
			return nil
		}

		job, err := b.c.store.GetJob(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load job: %w", err)
		}
		newStatus, err := lifecycle.Unschedule(job.Status)
		if err != nil {
			return err
		}
		if newStatus != job.Status {
			if err := b.c.store.UpdateJobStatus(ctx, id, newStatus); err != nil {
				return err
			}
		}
		b.publish(events.EventJobUnscheduled, events.JobEventPayload{
			JobID:        id,
			CustomerName: job.CustomerName,
			Status:       newStatus,
			Date:         b.date,
		})
		return nil

	case "ph":
		// Placeholders have no pool: dropping one off the grid deletes it.
		return b.c.store.DeletePlaceholder(ctx, id)
	}
	return fmt.Errorf("%w: unknown entity kind %q", domain.ErrValidation, kind)
}

// CreatePlaceholder adds an annotation card to a cell, allocated the same
// way a job drop is.
func (b *Board) CreatePlaceholder(ctx context.Context, truckID, timeSlotID int64, requestedPosition int, label, color string) (*models.Placeholder, error) {
	if err := b.guard(); err != nil {
		return nil, err
	}
	if label == "" {
		return nil, fmt.Errorf("%w: placeholder label is required", domain.ErrValidation)
	}

	occupants, err := b.cellOccupants(ctx, truckID, timeSlotID)
	if err != nil {
		return nil, err
	}
	position, err := allocator.Allocate(requestedPosition, allocator.Occupant{Kind: "ph", ID: -1}, occupants)
	if err != nil {
		if errors.Is(err, allocator.ErrCapacityExceeded) {
			metrics.IncAllocation("rejected")
		}
		return nil, err
	}
	metrics.IncAllocation("placed")

	p := &models.Placeholder{
		TruckID:      truckID,
		TimeSlotID:   timeSlotID,
		SlotPosition: position,
		Date:         b.date,
		Label:        label,
		Color:        color,
	}
	if err := b.c.store.CreatePlaceholder(ctx, p); err != nil {
		return nil, err
	}

	b.scheduleSync(ctx)
	return p, nil
}

// MarkRead records that a dispatcher has seen an unscheduled job's badge.
// Re-marking an already-read job is a no-op.
func (b *Board) MarkRead(ctx context.Context, jobID int64) error {
	if err := b.guard(); err != nil {
		return err
	}
	if b.c.state == nil {
		return nil
	}
	return b.c.state.MarkRead(ctx, b.date, jobID)
}

func (b *Board) publish(eventType string, payload events.JobEventPayload) {
	if b.c.events == nil {
		return
	}
	if err := b.c.events.PublishJSON(eventType, payload); err != nil {
		b.c.log.Warn().Err(err).Str("event", eventType).Msg("failed to publish event")
	}
}

func (b *Board) scheduleSync(ctx context.Context) {
	if b.c.syncer == nil {
		return
	}
	if err := b.c.syncer.EnqueueScheduleSync(ctx, b.date); err != nil {
		b.c.log.Warn().Err(err).Msg("failed to enqueue schedule sync")
	}
}

// parseEntityID splits a tagged drag payload id like "job:12" or "ph:5".
func parseEntityID(s string) (string, int64, error) {
	var kind, raw string
	switch {
	case strings.HasPrefix(s, models.JobIDPrefix):
		kind, raw = "job", strings.TrimPrefix(s, models.JobIDPrefix)
	case strings.HasPrefix(s, models.PlaceholderIDPrefix):
		kind, raw = "ph", strings.TrimPrefix(s, models.PlaceholderIDPrefix)
	default:
		return "", 0, fmt.Errorf("%w: malformed entity id %q", domain.ErrValidation, s)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("%w: malformed entity id %q", domain.ErrValidation, s)
	}
	return kind, id, nil
}
