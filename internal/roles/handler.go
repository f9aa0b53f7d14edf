package roles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/peergrade-io/peergrade/internal/platform/httpx"
	"github.com/peergrade-io/peergrade/internal/shared"
)

// Handler serves role listing endpoints. Authorization gates are applied
// where the routes are mounted.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers role routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.listRoles)
	r.Get("/{id}/available", h.availableRoles)
}

type roleView struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_id,omitempty"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	g, err := h.service.Graph(r.Context())
	if err != nil {
		h.logger.Error("load role forest", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	views := make([]roleView, 0, g.Len())
	for _, rec := range g.Roles() {
		views = append(views, roleView{ID: rec.ID, Name: rec.Name, ParentID: rec.ParentID})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"roles": views})
}

// availableRoles returns the roles a holder of the requester's role may
// assign: the requested role plus everything below it in the forest. The
// id in the path must be the requester's own role.
func (h *Handler) availableRoles(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role id must be numeric")
		return
	}
	ids, err := h.service.AvailableRoleIDs(r.Context(), id)
	if err != nil {
		switch {
		case isNotFound(err):
			httpx.Problem(w, http.StatusNotFound, "Not Found", "role does not exist")
		default:
			h.logger.Error("available roles", slog.Int64("role_id", id), slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"role_ids": ids})
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrUnknownRole) || errors.Is(err, shared.ErrNotFound)
}
