package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"dispatchboard/internal/allocator"
	"dispatchboard/internal/board"
	"dispatchboard/internal/domain"
	"dispatchboard/internal/events"
	"dispatchboard/internal/field"
	"dispatchboard/internal/lifecycle"
	"dispatchboard/internal/models"
)

func (s *Server) handleDriverJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID == 0 {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	truckID, err := strconv.ParseInt(r.URL.Query().Get("truck_id"), 10, 64)
	if err != nil || truckID == 0 {
		writeError(w, http.StatusBadRequest, "truck_id is required")
		return
	}

	// Drivers only ever see today's run.
	date := time.Now()
	if raw := r.URL.Query().Get("date"); raw != "" {
		date, err = time.Parse(models.DateLayout, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
			return
		}
	}

	jobs, err := s.db.ListDriverJobs(r.Context(), userID, truckID, date)
	if err != nil {
		s.log.Error().Err(err).Int64("user_id", userID).Msg("failed to list driver jobs")
		writeError(w, http.StatusInternalServerError, "failed to list jobs")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleDriverStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var u models.StatusUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if u.JobID == 0 {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	writeAck(w, s.applyStatusUpdate(r, u))
}

func (s *Server) applyStatusUpdate(r *http.Request, u models.StatusUpdate) error {
	ctx := r.Context()

	job, err := s.db.GetJob(ctx, u.JobID)
	if err != nil {
		return fmt.Errorf("job %d not found", u.JobID)
	}

	if u.DriverStatus != "" {
		if _, err := field.Transition(job, u.DriverStatus); err != nil {
			return err
		}
		if err := s.db.UpdateJobDriverStatus(ctx, job.ID, u.DriverStatus, u.ProblemDetails); err != nil {
			return fmt.Errorf("failed to update driver status: %w", err)
		}
	}

	if u.Status != "" && u.Status != job.Status {
		newStatus, err := lifecycle.Transition(job.Status, u.Status)
		if err != nil {
			return err
		}
		if err := s.db.UpdateJobStatus(ctx, job.ID, newStatus); err != nil {
			return fmt.Errorf("failed to update job status: %w", err)
		}
	}

	s.publishStatusEvent(job, u)
	return nil
}

func (s *Server) publishStatusEvent(job *models.Job, u models.StatusUpdate) {
	if s.events == nil {
		return
	}
	payload := events.JobEventPayload{
		JobID:        job.ID,
		CustomerName: job.CustomerName,
		DriverStatus: u.DriverStatus,
		Detail:       u.ProblemDetails,
		ChangedBy:    u.UserName,
		ChangedByID:  u.UserID,
	}
	switch u.DriverStatus {
	case models.DriverArrived:
		_ = s.events.PublishJSON(events.EventDriverArrived, payload)
	case models.DriverProblem:
		_ = s.events.PublishJSON(events.EventProblemReported, payload)
	}
}

func (s *Server) handleDriverPOD(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var p models.PODSubmission
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if p.JobID == 0 {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	writeAck(w, s.applyPOD(r, p))
}

func (s *Server) applyPOD(r *http.Request, p models.PODSubmission) error {
	ctx := r.Context()

	if !p.HasEvidence() {
		return fmt.Errorf("proof of delivery requires a photo or signature")
	}

	job, err := s.db.GetJob(ctx, p.JobID)
	if err != nil {
		return fmt.Errorf("job %d not found", p.JobID)
	}
	if err := field.CanComplete(job); err != nil {
		return err
	}
	if _, err := lifecycle.Deliver(job.Status); err != nil {
		return err
	}

	if err := s.db.MarkJobDelivered(ctx, job.ID, p); err != nil {
		return fmt.Errorf("failed to mark job delivered: %w", err)
	}

	if s.events != nil {
		_ = s.events.PublishJSON(events.EventJobDelivered, events.JobEventPayload{
			JobID:        job.ID,
			CustomerName: job.CustomerName,
			Status:       models.StatusDelivered,
			ChangedBy:    p.UserName,
			ChangedByID:  p.UserID,
		})
	}
	return nil
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var l models.DriverLocation
	if err := json.NewDecoder(r.Body).Decode(&l); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Fleet tracking is fire and forget; the latest fix is only logged.
	s.log.Debug().
		Int64("user_id", l.UserID).
		Int64("truck_id", l.TruckID).
		Float64("lat", l.Lat).
		Float64("lng", l.Lng).
		Msg("driver location")

	writeAck(w, nil)
}

func (s *Server) openBoard(r *http.Request, rawDate string) (*board.Board, error) {
	if rawDate == "" {
		return nil, fmt.Errorf("date is required")
	}
	date, err := time.Parse(models.DateLayout, rawDate)
	if err != nil {
		return nil, fmt.Errorf("invalid date format; expected YYYY-MM-DD")
	}
	return s.boards.Open(r.Context(), date)
}

func (s *Server) handleBoardView(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	b, err := s.openBoard(r, r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer b.Close()

	view, err := b.View(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("failed to render board")
		writeError(w, http.StatusInternalServerError, "failed to render board")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleBoardDragEnd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		Date string `json:"date"`
		board.DragEndCommand
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := s.openBoard(r, body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer b.Close()

	view, err := b.HandleDragEnd(r.Context(), body.DragEndCommand)
	if err != nil {
		s.writeBoardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleBoardPlaceholder(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		Date              string `json:"date"`
		TruckID           int64  `json:"truck_id"`
		TimeSlotID        int64  `json:"time_slot_id"`
		RequestedPosition int    `json:"requested_position"`
		Label             string `json:"label"`
		Color             string `json:"color"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := s.openBoard(r, body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer b.Close()

	p, err := b.CreatePlaceholder(r.Context(), body.TruckID, body.TimeSlotID, body.RequestedPosition, body.Label, body.Color)
	if err != nil {
		s.writeBoardError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleBoardMarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body struct {
		Date  string `json:"date"`
		JobID int64  `json:"job_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if body.JobID == 0 {
		writeError(w, http.StatusBadRequest, "job_id is required")
		return
	}

	b, err := s.openBoard(r, body.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer b.Close()

	if err := b.MarkRead(r.Context(), body.JobID); err != nil {
		s.log.Error().Err(err).Int64("job_id", body.JobID).Msg("failed to mark job read")
		writeError(w, http.StatusInternalServerError, "failed to mark read")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// writeBoardError maps board failures to HTTP statuses: a full cell is a
// conflict the client renders as a bounce-back, not a server fault.
func (s *Server) writeBoardError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, allocator.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error().Err(err).Msg("board command failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
