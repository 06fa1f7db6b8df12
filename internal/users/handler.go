package users

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/shoeshop/shoeshop/internal/platform/httpx"
	"github.com/shoeshop/shoeshop/internal/rbac"
	"github.com/shoeshop/shoeshop/internal/roles"
	"github.com/shoeshop/shoeshop/internal/shared"
)

// Handler manages user and staff endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.rbac.RequireActor)
	r.Group(func(r chi.Router) {
		// Open to anyone while the first store owner seat is unclaimed.
		r.Use(h.rbac.RequireAny(shared.CapStoreOwner, shared.CapBootstrapStoreOwner))
		r.Post("/assign-store-owner", h.assign(roles.StoreOwner))
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.CapStoreOwner))
		r.Post("/assign-store-manager", h.assign(roles.StoreManager))
		r.Post("/dismiss-role", h.dismiss)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.CapStoreManager))
		r.Post("/assign-inventory-manager", h.assign(roles.InventoryManager))
		r.Post("/assign-sales-associate", h.assign(roles.SalesAssociate))
		r.Get("/staff-members", h.staffMembers)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.CapStoreManager, shared.CapStoreOwner))
		r.Post("/assign-customer-service", h.assign(roles.CustomerService))
		r.Post("/assign-cashier", h.assign(roles.Cashier))
		r.Get("/", h.listUsers)
		r.Get("/{id:[0-9]+}", h.getUser)
		r.Delete("/{id:[0-9]+}", h.deleteUser)
	})
	r.Patch("/{id:[0-9]+}", h.updateProfile)
}

// idList accepts user IDs as JSON strings or numbers.
type idList []string

func (l *idList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		out = append(out, string(bytes.TrimSpace(item)))
	}
	*l = out
	return nil
}

type batchRequest struct {
	UserIDs idList `json:"user_ids"`
}

func (h *Handler) decodeBatch(r *http.Request) ([]string, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		if err := r.ParseForm(); err != nil {
			return nil, errors.Join(httpx.ErrValidation, err)
		}
		return r.PostForm["user_ids"], nil
	}
	var req batchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return nil, err
	}
	return req.UserIDs, nil
}

func (h *Handler) assign(role roles.Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actorID, _ := shared.ActorIDFromContext(r.Context())
		ids, decodeErr := h.decodeBatch(r)
		// The store owner bootstrap ignores the body, so only the service can tell
		// whether a bad body matters.
		if decodeErr != nil && role != roles.StoreOwner {
			h.respondError(w, decodeErr)
			return
		}
		result, err := h.service.Assign(r.Context(), role, actorID, ids)
		if err != nil {
			if decodeErr != nil && errors.Is(err, ErrEmptyBatch) {
				err = decodeErr
			}
			h.respondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, result)
	}
}

func (h *Handler) dismiss(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.ActorIDFromContext(r.Context())
	ids, err := h.decodeBatch(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	result, err := h.service.Dismiss(r.Context(), actorID, ids)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) staffMembers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, pageSize := pageParams(r)
	result, err := h.service.ListStaff(r.Context(), StaffQuery{
		RoleKey:  query.Get("role_type"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.ActorIDFromContext(r.Context())
	page, pageSize := pageParams(r)
	result, err := h.service.ListUsers(r.Context(), actorID, page, pageSize)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.ActorIDFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var update ProfileUpdate
	if err := httpx.DecodeJSON(r, &update); err != nil {
		h.respondError(w, err)
		return
	}
	user, err := h.service.UpdateProfile(r.Context(), actorID, id, update)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	actorID, _ := shared.ActorIDFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	if err := h.service.DeleteUser(r.Context(), actorID, id); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pageParams reads page and page_size. A missing page means the first one; an
// unparsable page is treated as out of range.
func pageParams(r *http.Request) (int, int) {
	query := r.URL.Query()
	page := 1
	if raw := query.Get("page"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			parsed = 0
		}
		page = parsed
	}
	pageSize, err := strconv.Atoi(query.Get("page_size"))
	if err != nil {
		pageSize = 0
	}
	return page, pageSize
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, roles.ErrUnknownRole):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Role", err.Error())
		return
	case errors.Is(err, httpx.ErrValidation),
		errors.Is(err, httpx.ErrForbidden),
		errors.Is(err, httpx.ErrNotFound),
		errors.Is(err, httpx.ErrDuplicate):
	default:
		h.logger.Error("users handler", slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
