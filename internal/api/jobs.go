package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sourove-a/splaro/internal/metrics"
	"github.com/sourove-a/splaro/internal/models"
	"github.com/sourove-a/splaro/internal/runner"
)

// TriggerJobRequest is the request body for POST /campaigns/{id}/jobs.
// SCHEDULED_FIRE runs the campaign the way the scheduler would, under the
// same per-campaign lease.
type TriggerJobRequest struct {
	Mode            string `json:"mode" validate:"required,oneof=TEST SEND_NOW SCHEDULED_FIRE"`
	TestRecipientID string `json:"test_recipient_id" validate:"max=100"`
}

// JobResponse is a job together with its delivery counts
type JobResponse struct {
	models.Job
	Deliveries *models.DeliveryStats `json:"deliveries"`
}

// handleTriggerJob handles POST /api/v1/campaigns/{id}/jobs
func (s *Server) handleTriggerJob(w http.ResponseWriter, r *http.Request) {
	var req TriggerJobRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	job, err := s.deps.Runner.Start(r.Context(), chi.URLParam(r, "id"), models.JobMode(req.Mode), runner.Options{
		TestRecipientID: req.TestRecipientID,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	s.sendJSON(w, http.StatusAccepted, job)
}

// handleListJobs handles GET /api/v1/campaigns/{id}/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	page, size, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.deps.Campaigns.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	p := models.NewPagination(page, size)
	jobs, total, err := s.deps.Jobs.ListByCampaign(r.Context(), id, p.PageSize, p.Offset())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, models.NewPage(jobs, p, total))
}

// handleGetJob handles GET /api/v1/jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	job, err := s.deps.Jobs.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if job == nil {
		s.sendError(w, http.StatusNotFound, "NOT_FOUND", "job not found")
		return
	}

	stats, err := s.deps.Logs.CountByJob(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, JobResponse{Job: *job, Deliveries: stats})
}

// handleListDeliveryLogs handles GET /api/v1/delivery-logs
func (s *Server) handleListDeliveryLogs(w http.ResponseWriter, r *http.Request) {
	page, size, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	q := r.URL.Query()
	filter := models.DeliveryLogFilter{
		JobID:      q.Get("job_id"),
		CampaignID: q.Get("campaign_id"),
		Status:     models.DeliveryStatus(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		s.writeError(w, r, &models.ValidationError{Field: "status", Message: "must be one of: SENT FAILED CLICKED"})
		return
	}

	p := models.NewPagination(page, size)
	entries, total, err := s.deps.Logs.List(r.Context(), filter, p.PageSize, p.Offset())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, models.NewPage(entries, p, total))
}

// handleRecordClick handles POST /api/v1/delivery-logs/{id}/click
func (s *Server) handleRecordClick(w http.ResponseWriter, r *http.Request) {
	entry, err := s.markClicked(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, entry)
}

// handleTrackClick handles GET /t/{id}, the link embedded in sent messages
func (s *Server) handleTrackClick(w http.ResponseWriter, r *http.Request) {
	entry, err := s.markClicked(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.deps.Campaigns.Get(r.Context(), entry.CampaignID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.writeError(w, r, err)
		return
	}
	if c == nil || c.Message.TargetURL == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	http.Redirect(w, r, c.Message.TargetURL, http.StatusFound)
}

func (s *Server) markClicked(r *http.Request) (*models.DeliveryLogEntry, error) {
	id := chi.URLParam(r, "id")
	at := s.now()

	entry, err := s.deps.Logs.MarkClicked(r.Context(), id, at)
	if err != nil {
		return nil, err
	}
	if entry.ClickedAt != nil && entry.ClickedAt.Equal(at) {
		metrics.IncClicks()
		s.logger.Debug("delivery clicked", "delivery_id", id, "campaign_id", entry.CampaignID)
	}
	return entry, nil
}
