package addresses

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
	"github.com/rolodex-app/rolodex/internal/shared"
)

// Handler wires HTTP endpoints for address records and the user links that
// attach them.
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

// MountRoutes registers the address collection routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Get("/{id}", h.handleGet)
	r.Patch("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
}

// MountUserRoutes registers the link management routes nested under a user.
func (h *Handler) MountUserRoutes(r chi.Router) {
	r.Post("/{id}/addresses", h.handleCreateForUser)
	r.Put("/{id}/addresses/{addressID}", h.handleLink)
	r.Delete("/{id}/addresses/{addressID}", h.handleUnlink)
}

type createAddressRequest struct {
	Street     string  `json:"street" validate:"required,max=200"`
	City       string  `json:"city" validate:"required,max=100"`
	State      *string `json:"state" validate:"omitempty,min=1,max=100"`
	PostalCode string  `json:"postal_code" validate:"required,max=20"`
	Country    string  `json:"country" validate:"required,max=100"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, offset := shared.PageParams(r)
	filters := ListFilters{
		Street:     strings.TrimSpace(q.Get("street")),
		City:       strings.TrimSpace(q.Get("city")),
		State:      strings.TrimSpace(q.Get("state")),
		PostalCode: strings.TrimSpace(q.Get("postal_code")),
		Country:    strings.TrimSpace(q.Get("country")),
		Limit:      limit,
		Offset:     offset,
	}

	list, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list addresses", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if links := httpx.PageLinks(r, limit, offset, len(list)); links != "" {
		w.Header().Set("Link", links)
	}
	httpx.ServeCached(w, r, list, h.ttl)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	a, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.ServeCached(w, r, a, h.ttl)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	principal := shared.PrincipalFromContext(r.Context())
	if err := h.requireLinkedOrAdmin(r, principal, id); err != nil {
		httpx.RespondError(w, err)
		return
	}

	var fields UpdateFields
	if err := httpx.DecodeJSON(r, &fields); err != nil {
		httpx.RespondError(w, err)
		return
	}
	updated, err := h.service.Update(r.Context(), id, fields)
	if err != nil {
		h.logger.Error("update address", slog.Any("error", err), slog.String("id", id.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.RequireAdmin(shared.PrincipalFromContext(r.Context())); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete address", slog.Any("error", err), slog.String("id", id.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleCreateForUser(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.RequireSelfOrAdmin(shared.PrincipalFromContext(r.Context()), userID); err != nil {
		httpx.RespondError(w, err)
		return
	}

	var req createAddressRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.RespondError(w, validationError(err))
		return
	}

	a, err := h.service.CreateForUser(r.Context(), userID, NewAddress{
		Street:     req.Street,
		City:       req.City,
		State:      req.State,
		PostalCode: req.PostalCode,
		Country:    req.Country,
	})
	if err != nil {
		h.logger.Error("create address", slog.Any("error", err), slog.String("user_id", userID.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, a)
}

func (h *Handler) handleLink(w http.ResponseWriter, r *http.Request) {
	userID, addressID, err := pathPair(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.RequireSelfOrAdmin(shared.PrincipalFromContext(r.Context()), userID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Link(r.Context(), userID, addressID); err != nil {
		h.logger.Error("link address", slog.Any("error", err), slog.String("address_id", addressID.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleUnlink(w http.ResponseWriter, r *http.Request) {
	userID, addressID, err := pathPair(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.RequireSelfOrAdmin(shared.PrincipalFromContext(r.Context()), userID); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Unlink(r.Context(), userID, addressID); err != nil {
		h.logger.Error("unlink address", slog.Any("error", err), slog.String("address_id", addressID.String()))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

// requireLinkedOrAdmin authorizes an address mutation: admins always pass,
// everyone else must currently hold a link to the address.
func (h *Handler) requireLinkedOrAdmin(r *http.Request, principal *shared.Principal, addressID uuid.UUID) error {
	if principal == nil {
		return httpx.ErrUnauthenticated
	}
	if principal.IsAdmin() {
		return nil
	}
	owners, err := h.service.Owners(r.Context(), addressID)
	if err != nil {
		return err
	}
	for _, owner := range owners {
		if owner == principal.ID {
			return nil
		}
	}
	return httpx.ErrForbidden
}

func pathID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: %s must be a valid UUID", httpx.ErrValidation, key)
	}
	return id, nil
}

func pathPair(r *http.Request) (uuid.UUID, uuid.UUID, error) {
	userID, err := pathID(r, "id")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	addressID, err := pathID(r, "addressID")
	if err != nil {
		return uuid.Nil, uuid.Nil, err
	}
	return userID, addressID, nil
}

func validationError(err error) error {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	names := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		names = append(names, fe.Field())
	}
	return fmt.Errorf("%w: invalid fields: %s", httpx.ErrValidation, strings.Join(names, ", "))
}
