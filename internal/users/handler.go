package users

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rolodex-app/rolodex/internal/platform/httpx"
	"github.com/rolodex-app/rolodex/internal/platform/patch"
	"github.com/rolodex-app/rolodex/internal/shared"
)

// Handler wires HTTP endpoints for user records.
type Handler struct {
	logger    *slog.Logger
	service   Service
	validator *validator.Validate
	ttl       time.Duration
}

// NewHandler constructs a Handler instance. The TTL feeds the Cache-Control
// max-age on cacheable reads and should match the server-side cache TTL.
func NewHandler(logger *slog.Logger, service Service, ttl time.Duration) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		validator: validator.New(),
		ttl:       ttl,
	}
}

// MountRoutes registers the user routes. The static /me route must appear
// alongside /{id}; chi resolves the literal segment first.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/me", h.handleMe)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := shared.PageParams(r)
	filters := ListFilters{
		Username: strings.TrimSpace(q.Get("username")),
		Email:    strings.TrimSpace(q.Get("email")),
		Phone:    strings.TrimSpace(q.Get("phone")),
		City:     strings.TrimSpace(q.Get("city")),
		Country:  strings.TrimSpace(q.Get("country")),
		Limit:    limit,
		Offset:   offset,
	}

	list, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if links := httpx.PageLinks(r, limit, offset, len(list)); links != "" {
		w.Header().Set("Link", links)
	}

	principal := shared.PrincipalFromContext(r.Context())
	if principal != nil && principal.IsAdmin() {
		httpx.ServeCached(w, r, list, h.ttl)
		return
	}
	public := make([]PublicUser, 0, len(list))
	for _, u := range list {
		public = append(public, u.Public())
	}
	httpx.ServeCached(w, r, public, h.ttl)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	principal := shared.PrincipalFromContext(r.Context())
	if principal == nil {
		httpx.RespondError(w, httpx.ErrUnauthenticated)
		return
	}
	u, err := h.service.Get(r.Context(), principal.ID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.ServeCached(w, r, u, h.ttl)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	u, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	principal := shared.PrincipalFromContext(r.Context())
	if principal != nil && (principal.IsAdmin() || principal.ID == id) {
		httpx.ServeCached(w, r, u, h.ttl)
		return
	}
	httpx.ServeCached(w, r, u.Public(), h.ttl)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if err := shared.RequireSelfOrAdmin(principal, id); err != nil {
		httpx.RespondError(w, err)
		return
	}

	var p Patch
	if err := httpx.DecodeJSON(r, &p); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if p.IsAdmin.Present() && !principal.IsAdmin() {
		httpx.RespondError(w, fmt.Errorf("%w: only admins may change is_admin", httpx.ErrForbidden))
		return
	}
	if err := h.validatePresent(p); err != nil {
		httpx.RespondError(w, err)
		return
	}

	updated, err := h.service.Update(r.Context(), id, p)
	if err != nil {
		h.logger.Error("update user", slog.Any("error", err), slog.String("id", id.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.RequireAdmin(shared.PrincipalFromContext(r.Context())); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete user", slog.Any("error", err), slog.String("id", id.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

// validatePresent applies the value rules to whichever string fields the
// patch actually carries. Tri-state legality is the service's job.
func (h *Handler) validatePresent(p Patch) error {
	checks := []struct {
		name  string
		rule  string
		field patch.Field[string]
	}{
		{"username", "min=3,max=50", p.Username},
		{"email", "email,max=254", p.Email},
		{"phone", "max=20", p.Phone},
		{"password", "min=8,max=72", p.Password},
	}
	var bad []string
	for _, c := range checks {
		if v, ok := c.field.Get(); ok {
			if err := h.validator.Var(v, c.rule); err != nil {
				bad = append(bad, c.name)
			}
		}
	}
	if len(bad) > 0 {
		return fmt.Errorf("%w: invalid fields: %s", httpx.ErrValidation, strings.Join(bad, ", "))
	}
	return nil
}

func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: id must be a valid UUID", httpx.ErrValidation)
	}
	return id, nil
}
