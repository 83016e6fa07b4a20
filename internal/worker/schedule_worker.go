// Package worker mirrors each board date's schedule into a Google Sheet so
// warehouse staff without dashboard access can read the day's runs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dispatchboard/internal/config"
	"dispatchboard/internal/database"
	"dispatchboard/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// TaskSyncSchedule re-renders one date's rows in the schedule sheet.
const TaskSyncSchedule = "sync_schedule"

// ScheduleRow is one line of the mirrored schedule.
type ScheduleRow struct {
	TruckName    string `json:"truck_name"`
	TimeSlot     string `json:"time_slot"`
	Position     int    `json:"position"`
	CustomerName string `json:"customer_name"`
	Address      string `json:"address"`
	Status       string `json:"status"`
	Label        string `json:"label,omitempty"`
}

// ScheduleClient writes a date's rows to the external sheet.
type ScheduleClient interface {
	SyncSchedule(date string, rows []ScheduleRow) error
}

// ScheduleWorker consumes sync_tasks and applies them to the sheet. Tasks
// arrive through three paths, fastest first: the in-memory channel, the
// Redis list, and the sqlite poll that also picks up due retries after a
// restart. Exhausted tasks land in a Redis dead-letter list.
type ScheduleWorker struct {
	db            *database.DB
	client        ScheduleClient
	redis         *redis.Client
	cfg           config.BoardConfig
	retryPolicy   RetryPolicy
	queue         chan models.SyncTask
	redisQueueKey string
	deadLetterKey string
	pollInterval  time.Duration
	batchSize     int
	log           zerolog.Logger
}

func NewScheduleWorker(db *database.DB, client ScheduleClient, redisClient *redis.Client, cfg config.BoardConfig, retry RetryPolicy, logger zerolog.Logger) *ScheduleWorker {
	return &ScheduleWorker{
		db:            db,
		client:        client,
		redis:         redisClient,
		cfg:           cfg,
		retryPolicy:   retry.withDefaults(),
		queue:         make(chan models.SyncTask, models.WorkerQueueSize),
		redisQueueKey: "schedule:queue",
		deadLetterKey: "schedule:deadletter",
		pollInterval:  2 * time.Second,
		batchSize:     20,
		log:           logger.With().Str("component", "schedule_worker").Logger(),
	}
}

// EnqueueScheduleSync persists a sync task for the date and schedules it
// via Redis, falling back to the in-memory queue.
func (w *ScheduleWorker) EnqueueScheduleSync(ctx context.Context, date time.Time) error {
	if date.IsZero() {
		return errors.New("board date is required")
	}

	task := models.SyncTask{
		TaskType:  TaskSyncSchedule,
		BoardDate: date.Format(models.DateLayout),
		Payload:   "{}",
		Status:    "pending",
	}
	if err := w.db.CreateSyncTask(ctx, &task); err != nil {
		return fmt.Errorf("failed to persist sync task: %w", err)
	}

	if w.redis != nil {
		if err := w.pushRedis(ctx, task); err != nil {
			w.log.Warn().Err(err).Msg("redis push failed, falling back to memory queue")
		} else {
			return nil
		}
	}

	select {
	case w.queue <- task:
	default:
		w.log.Warn().Int64("task_id", task.ID).Msg("in-memory queue full, task left to polling")
	}

	return nil
}

// Start launches the main loop; stops when ctx is done.
func (w *ScheduleWorker) Start(ctx context.Context) {
	w.log.Info().Msg("schedule worker started")
	defer w.log.Info().Msg("schedule worker stopped")

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if t, ok := w.tryLocalQueue(); ok {
			w.processTask(ctx, &t)
			continue
		}

		if t, ok := w.tryRedis(ctx); ok {
			w.processTask(ctx, &t)
			continue
		}

		tasks, err := w.db.GetPendingSyncTasks(ctx, w.batchSize)
		if err != nil {
			w.log.Error().Err(err).Msg("failed to fetch pending tasks")
			time.Sleep(w.pollInterval)
			continue
		}
		if len(tasks) == 0 {
			time.Sleep(w.pollInterval)
			continue
		}

		for i := range tasks {
			w.processTask(ctx, &tasks[i])
		}
	}
}

func (w *ScheduleWorker) tryLocalQueue() (models.SyncTask, bool) {
	select {
	case t := <-w.queue:
		return t, true
	default:
		return models.SyncTask{}, false
	}
}

func (w *ScheduleWorker) tryRedis(ctx context.Context) (models.SyncTask, bool) {
	if w.redis == nil {
		return models.SyncTask{}, false
	}
	res, err := w.redis.BRPop(ctx, time.Second, w.redisQueueKey).Result()
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.Nil) {
			return models.SyncTask{}, false
		}
		w.log.Error().Err(err).Msg("redis BRPOP error")
		return models.SyncTask{}, false
	}
	if len(res) != 2 {
		return models.SyncTask{}, false
	}
	var task models.SyncTask
	if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
		w.log.Error().Err(err).Msg("failed to decode redis task")
		return models.SyncTask{}, false
	}
	return task, true
}

func (w *ScheduleWorker) processTask(ctx context.Context, task *models.SyncTask) {
	if task.TaskType != TaskSyncSchedule {
		w.failTask(ctx, task, fmt.Errorf("unknown task type: %s", task.TaskType))
		return
	}

	date, err := time.Parse(models.DateLayout, task.BoardDate)
	if err != nil {
		w.failTask(ctx, task, fmt.Errorf("malformed board date: %w", err))
		return
	}

	rows, err := w.buildRows(ctx, date)
	if err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}
	if err := w.client.SyncSchedule(task.BoardDate, rows); err != nil {
		w.retryOrFail(ctx, task, err)
		return
	}

	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, "completed", "", nil); err != nil {
		w.log.Error().Err(err).Int64("task_id", task.ID).Msg("failed to mark task completed")
	}
}

// buildRows renders the date's grid in truck-then-window order, the same
// order the board draws it.
func (w *ScheduleWorker) buildRows(ctx context.Context, date time.Time) ([]ScheduleRow, error) {
	assignments, err := w.db.ListAssignmentsByDate(ctx, date)
	if err != nil {
		return nil, err
	}
	placeholders, err := w.db.ListPlaceholdersByDate(ctx, date)
	if err != nil {
		return nil, err
	}

	truckNames := make(map[int64]string, len(w.cfg.Trucks))
	for _, t := range w.cfg.Trucks {
		truckNames[t.ID] = t.Name
	}
	slotLabels := make(map[int64]string, len(w.cfg.TimeSlots))
	for _, s := range w.cfg.TimeSlots {
		slotLabels[s.ID] = s.Label
	}

	var rows []ScheduleRow
	for _, a := range assignments {
		job, err := w.db.GetJob(ctx, a.JobID)
		if err != nil {
			return nil, fmt.Errorf("failed to load job %d: %w", a.JobID, err)
		}
		rows = append(rows, ScheduleRow{
			TruckName:    truckNames[a.TruckID],
			TimeSlot:     slotLabels[a.TimeSlotID],
			Position:     a.SlotPosition,
			CustomerName: job.CustomerName,
			Address:      job.DeliveryAddress,
			Status:       job.Status,
		})
	}
	for _, p := range placeholders {
		rows = append(rows, ScheduleRow{
			TruckName: truckNames[p.TruckID],
			TimeSlot:  slotLabels[p.TimeSlotID],
			Position:  p.SlotPosition,
			Label:     p.Label,
		})
	}
	return rows, nil
}

func (w *ScheduleWorker) retryOrFail(ctx context.Context, task *models.SyncTask, cause error) {
	attempt := task.RetryCount + 1
	if attempt >= w.retryPolicy.MaxRetries {
		if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
			w.log.Error().Err(err).Int64("task_id", task.ID).Msg("failed to mark task failed")
		}
		w.pushDeadLetter(ctx, task)
		return
	}

	nextDelay := w.retryPolicy.NextDelay(attempt)
	nextTime := time.Now().Add(nextDelay)
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, "retry", cause.Error(), &nextTime); err != nil {
		w.log.Error().Err(err).Int64("task_id", task.ID).Msg("failed to mark task for retry")
	}
}

func (w *ScheduleWorker) failTask(ctx context.Context, task *models.SyncTask, cause error) {
	if err := w.db.UpdateSyncTaskStatus(ctx, task.ID, "failed", cause.Error(), nil); err != nil {
		w.log.Error().Err(err).Int64("task_id", task.ID).Msg("failed to mark task failed")
	}
	w.pushDeadLetter(ctx, task)
}

func (w *ScheduleWorker) pushRedis(ctx context.Context, task models.SyncTask) error {
	if w.redis == nil {
		return errors.New("redis client is nil")
	}
	data, err := json.Marshal(task)
	if err != nil {
		return err
	}
	return w.redis.LPush(ctx, w.redisQueueKey, data).Err()
}

func (w *ScheduleWorker) pushDeadLetter(ctx context.Context, task *models.SyncTask) {
	if w.redis == nil {
		return
	}
	data, err := json.Marshal(task)
	if err != nil {
		w.log.Error().Err(err).Int64("task_id", task.ID).Msg("failed to encode dead letter")
		return
	}
	if err := w.redis.LPush(ctx, w.deadLetterKey, data).Err(); err != nil {
		w.log.Error().Err(err).Int64("task_id", task.ID).Msg("failed to push dead letter")
	}
}
