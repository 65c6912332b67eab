package incidents

import (
	"encoding/json"
	"net/http"

	"github.com/bissquit/status-garden/internal/domain"
	"github.com/bissquit/status-garden/internal/pkg/httputil"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
}

// NewHandler creates a new incidents handler.
func NewHandler(service *Service) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
	}
}

// RegisterRoutes registers all HTTP routes for the incidents module.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Post("/", h.CreateIncident)
		r.Get("/{id}", h.GetIncident)
		r.Patch("/{id}", h.UpdateIncident)
		r.Delete("/{id}", h.DeleteIncident)
		r.Get("/{id}/updates", h.ListUpdates)
		r.Post("/{id}/updates", h.AddUpdate)
	})
}

// CreateIncidentRequest represents the request body for creating an incident.
type CreateIncidentRequest struct {
	Title       string   `json:"title" validate:"required,min=1,max=255"`
	Description string   `json:"description"`
	Type        string   `json:"type" validate:"required,oneof=incident maintenance"`
	Status      string   `json:"status" validate:"omitempty,oneof=investigating identified monitoring resolved scheduled in_progress completed"`
	Severity    *string  `json:"severity" validate:"omitempty,oneof=minor major critical"`
	ServiceIDs  []string `json:"service_ids" validate:"required,min=1,dive,required"`
}

// UpdateIncidentRequest represents the request body for a partial incident
// update. Absent fields keep their prior values.
type UpdateIncidentRequest struct {
	Title       *string  `json:"title" validate:"omitempty,min=1,max=255"`
	Description *string  `json:"description"`
	Status      *string  `json:"status" validate:"omitempty,oneof=investigating identified monitoring resolved scheduled in_progress completed"`
	Severity    *string  `json:"severity" validate:"omitempty,oneof=minor major critical"`
	ServiceIDs  []string `json:"service_ids" validate:"omitempty,min=1,dive,required"`
	Message     *string  `json:"message"`
}

// AddUpdateRequest represents the request body for posting an incident
// update.
type AddUpdateRequest struct {
	Message string  `json:"message" validate:"required,min=1"`
	Status  *string `json:"status" validate:"omitempty,oneof=investigating identified monitoring resolved scheduled in_progress completed"`
}

// ListIncidents handles GET /incidents.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	filters := IncidentFilters{}
	q := r.URL.Query()

	if v := q.Get("type"); v != "" {
		t := domain.IncidentType(v)
		if !t.IsValid() {
			httputil.Error(w, http.StatusBadRequest, "invalid type filter")
			return
		}
		filters.Type = &t
	}
	if v := q.Get("status"); v != "" {
		if v == "active" {
			filters.ActiveOnly = true
		} else {
			status := domain.IncidentStatus(v)
			filters.Status = &status
		}
	}
	if v := q.Get("service_id"); v != "" {
		filters.ServiceID = &v
	}
	includeUpdates := q.Get("include_updates") == "true"

	incidents, err := h.service.ListIncidents(r.Context(), filters, includeUpdates)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusOK, incidents)
}

// GetIncident handles GET /incidents/{id}.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	incident, err := h.service.GetIncident(r.Context(), id)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// CreateIncident handles POST /incidents.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	var req CreateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := CreateIncidentInput{
		Title:       req.Title,
		Description: req.Description,
		Type:        domain.IncidentType(req.Type),
		Status:      domain.IncidentStatus(req.Status),
		ServiceIDs:  req.ServiceIDs,
	}
	if req.Severity != nil {
		severity := domain.Severity(*req.Severity)
		input.Severity = &severity
	}

	incident, err := h.service.CreateIncident(r.Context(), input)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// UpdateIncident handles PATCH /incidents/{id}.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req UpdateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	input := UpdateIncidentInput{
		Title:       req.Title,
		Description: req.Description,
		ServiceIDs:  req.ServiceIDs,
		Message:     req.Message,
	}
	if req.Status != nil {
		status := domain.IncidentStatus(*req.Status)
		input.Status = &status
	}
	if req.Severity != nil {
		severity := domain.Severity(*req.Severity)
		input.Severity = &severity
	}

	incident, err := h.service.UpdateIncident(r.Context(), id, input)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// DeleteIncident handles DELETE /incidents/{id}.
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.service.DeleteIncident(r.Context(), id); err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListUpdates handles GET /incidents/{id}/updates.
func (h *Handler) ListUpdates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	updates, err := h.service.ListUpdates(r.Context(), id)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusOK, updates)
}

// AddUpdate handles POST /incidents/{id}/updates.
func (h *Handler) AddUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req AddUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	var status *domain.IncidentStatus
	if req.Status != nil {
		s := domain.IncidentStatus(*req.Status)
		status = &s
	}

	update, err := h.service.AddUpdate(r.Context(), id, req.Message, status)
	if err != nil {
		h.handleServiceError(r, w, err)
		return
	}

	httputil.Success(w, http.StatusCreated, update)
}

func (h *Handler) handleServiceError(r *http.Request, w http.ResponseWriter, err error) {
	httputil.HandleError(r.Context(), w, err, []httputil.ErrorMapping{
		{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
		{Error: ErrServiceNotFound, Status: http.StatusNotFound},
		{Error: ErrNoServices, Status: http.StatusBadRequest},
		{Error: ErrInvalidType, Status: http.StatusBadRequest},
		{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
		{Error: ErrInvalidSeverity, Status: http.StatusBadRequest},
		{Error: ErrEmptyMessage, Status: http.StatusBadRequest},
	})
}
