package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/shoeshop/shoeshop/internal/platform/httpx"
	"github.com/shoeshop/shoeshop/internal/shared"
)

// PermissionsHandler reports the capabilities of the current actor.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.With(h.rbac.RequireActor).Get("/", h.current)
	r.With(h.rbac.RequireActor).Get("/catalog", h.catalog)
}

func (h *PermissionsHandler) catalog(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string][]string{"capabilities": shared.CoreScopes()})
}

func (h *PermissionsHandler) current(w http.ResponseWriter, r *http.Request) {
	userID, _ := shared.ActorIDFromContext(r.Context())
	grants, err := h.service.Grants(r.Context(), userID)
	if err != nil {
		if h.logger != nil {
			h.logger.Error("load grants", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, grants)
}
