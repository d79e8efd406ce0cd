package appointments

import (
	"encoding/json"
	"net/http"

	"github.com/wolfman30/derma-voice-agent/pkg/logging"
)

// Handler exposes the appointment log over HTTP.
type Handler struct {
	store  Store
	logger *logging.Logger
}

// NewHandler creates a new appointments handler
func NewHandler(store Store, logger *logging.Logger) *Handler {
	if store == nil {
		panic("appointments: store required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{store: store, logger: logger}
}

// ListResponse is the body of GET /admin/appointments.
type ListResponse struct {
	Appointments []Appointment `json:"appointments"`
	Count        int           `json:"count"`
}

// List handles GET /admin/appointments
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.store.List(r.Context())
	if err != nil {
		h.logger.Error("failed to list appointments", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []Appointment{}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(ListResponse{Appointments: list, Count: len(list)})
}
