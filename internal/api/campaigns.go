package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sourove-a/splaro/internal/models"
)

type messageRequest struct {
	Title     string `json:"title" validate:"max=200"`
	Body      string `json:"body" validate:"required,max=4000"`
	ImageURL  string `json:"image_url" validate:"omitempty,url"`
	TargetURL string `json:"target_url" validate:"omitempty,url"`
}

func (m messageRequest) model() models.Message {
	return models.Message{Title: m.Title, Body: m.Body, ImageURL: m.ImageURL, TargetURL: m.TargetURL}
}

// CreateCampaignRequest is the request body for POST /campaigns
type CreateCampaignRequest struct {
	Name        string                 `json:"name" validate:"required,max=200"`
	Message     messageRequest         `json:"message"`
	Segment     models.AudienceSegment `json:"segment"`
	ScheduledAt *time.Time             `json:"scheduled_at"`
	Automated   bool                   `json:"automated"`
}

// UpdateCampaignRequest is the request body for PATCH /campaigns/{id}
type UpdateCampaignRequest struct {
	Name          *string                 `json:"name" validate:"omitempty,max=200"`
	Message       *messageRequest         `json:"message"`
	Segment       *models.AudienceSegment `json:"segment"`
	ScheduledAt   *time.Time              `json:"scheduled_at"`
	ClearSchedule bool                    `json:"clear_schedule"`
	Automated     *bool                   `json:"automated"`
}

// StatusRequest is the request body for PUT /campaigns/{id}/status
type StatusRequest struct {
	Status string `json:"status" validate:"required,oneof=draft active paused completed deleted"`
}

// ScheduleRequest is the request body for POST /campaigns/{id}/schedule
type ScheduleRequest struct {
	ScheduledAt *time.Time `json:"scheduled_at" validate:"required"`
}

// handlePreviewSegment handles POST /api/v1/segments/preview
func (s *Server) handlePreviewSegment(w http.ResponseWriter, r *http.Request) {
	var seg models.AudienceSegment
	if err := decode(r, &seg); err != nil {
		s.writeError(w, r, err)
		return
	}

	est, err := s.deps.Resolver.Estimate(r.Context(), seg)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, est)
}

// handleListCampaigns handles GET /api/v1/campaigns
func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, size, err := pageParams(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	filter := models.CampaignFilter{
		Query:  r.URL.Query().Get("query"),
		Status: models.CampaignStatus(r.URL.Query().Get("status")),
	}

	result, err := s.deps.Campaigns.List(r.Context(), filter, page, size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, result)
}

// handleCreateCampaign handles POST /api/v1/campaigns
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req CreateCampaignRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.deps.Campaigns.Create(r.Context(), models.CampaignInput{
		Name:        req.Name,
		Message:     req.Message.model(),
		Segment:     req.Segment,
		ScheduledAt: req.ScheduledAt,
		Automated:   req.Automated,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, c)
}

// handleGetCampaign handles GET /api/v1/campaigns/{id}
func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Campaigns.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// handleUpdateCampaign handles PATCH /api/v1/campaigns/{id}
func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	var req UpdateCampaignRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	patch := models.CampaignPatch{
		Name:          req.Name,
		Segment:       req.Segment,
		ScheduledAt:   req.ScheduledAt,
		ClearSchedule: req.ClearSchedule,
		Automated:     req.Automated,
	}
	if req.Message != nil {
		m := req.Message.model()
		patch.Message = &m
	}

	c, err := s.deps.Campaigns.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// handleDeleteCampaign handles DELETE /api/v1/campaigns/{id}
func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Campaigns.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleDuplicateCampaign handles POST /api/v1/campaigns/{id}/duplicate
func (s *Server) handleDuplicateCampaign(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Campaigns.Duplicate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusCreated, c)
}

// handleSetCampaignStatus handles PUT /api/v1/campaigns/{id}/status
func (s *Server) handleSetCampaignStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.deps.Campaigns.SetStatus(r.Context(), chi.URLParam(r, "id"), models.CampaignStatus(req.Status))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// handleScheduleCampaign handles POST /api/v1/campaigns/{id}/schedule
func (s *Server) handleScheduleCampaign(w http.ResponseWriter, r *http.Request) {
	var req ScheduleRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.deps.Campaigns.Schedule(r.Context(), chi.URLParam(r, "id"), *req.ScheduledAt)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, c)
}

// handleCampaignStats handles GET /api/v1/campaigns/{id}/stats
func (s *Server) handleCampaignStats(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Campaigns.Get(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}

	stats, err := s.deps.Logs.CountByStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.sendJSON(w, http.StatusOK, stats)
}
