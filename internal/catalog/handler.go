package catalog

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/bissquit/status-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the catalog module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new catalog handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers all HTTP routes for the catalog module.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/services", func(r chi.Router) {
		r.Get("/", h.ListServices)
		r.Post("/", h.CreateService)
		r.Get("/{id}", h.GetService)
		r.Patch("/{id}", h.UpdateService)
		r.Delete("/{id}", h.DeleteService)
		r.Patch("/{id}/status", h.SetServiceStatus)
	})
}

// CreateServiceRequest represents the request body for creating a service.
type CreateServiceRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=255"`
	Description string  `json:"description"`
	Status      string  `json:"status" validate:"omitempty,oneof=operational degraded partial_outage major_outage maintenance"`
	TeamID      *string `json:"team_id"`
}

// UpdateServiceRequest represents the request body for a partial service
// update. Absent fields keep their prior values.
type UpdateServiceRequest struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description"`
	Status      *string `json:"status" validate:"omitempty,oneof=operational degraded partial_outage major_outage maintenance"`
	TeamID      *string `json:"team_id"`
}

// SetServiceStatusRequest represents the request body for a status change.
type SetServiceStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=operational degraded partial_outage major_outage maintenance"`
}

// ListServices handles GET /services.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	services, err := h.service.ListServices(r.Context())
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusOK, services)
}

// GetService handles GET /services/{id}.
func (h *Handler) GetService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	service, err := h.service.GetService(r.Context(), id)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusOK, service)
}

// CreateService handles POST /services.
func (h *Handler) CreateService(w http.ResponseWriter, r *http.Request) {
	var req CreateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	service, err := h.service.CreateService(r.Context(), CreateServiceInput{
		Name:        req.Name,
		Description: req.Description,
		Status:      domain.ServiceStatus(req.Status),
		TeamID:      req.TeamID,
	})
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, service)
}

// UpdateService handles PATCH /services/{id}.
func (h *Handler) UpdateService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := UpdateServiceInput{
		Name:        req.Name,
		Description: req.Description,
		TeamID:      req.TeamID,
	}
	if req.Status != nil {
		status := domain.ServiceStatus(*req.Status)
		input.Status = &status
	}

	service, err := h.service.UpdateService(r.Context(), id, input)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusOK, service)
}

// SetServiceStatus handles PATCH /services/{id}/status.
func (h *Handler) SetServiceStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req SetServiceStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	service, err := h.service.SetServiceStatus(r.Context(), id, domain.ServiceStatus(req.Status))
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusOK, service)
}

// DeleteService handles DELETE /services/{id}.
func (h *Handler) DeleteService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteService(r.Context(), id); err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleServiceError(r *http.Request, w http.ResponseWriter, err error) {
	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrServiceNotFound, Status: http.StatusNotFound},
		{Error: ErrServiceHasIncidents, Status: http.StatusConflict},
		{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
	})
}
