package users

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/peergrade-io/peergrade/internal/authz"
	"github.com/peergrade-io/peergrade/internal/platform/httpx"
	"github.com/peergrade-io/peergrade/internal/shared"
)

// ViewToggler flips and reads the anonymized-view state for a client
// address.
type ViewToggler interface {
	Flip(ctx context.Context, addr string) (bool, error)
	IsActive(ctx context.Context, addr string) (bool, error)
}

// KeyIssuer generates a key pair for a user and returns the private key.
// Key generation lives outside this service; deployments without it leave
// the issuer nil.
type KeyIssuer interface {
	GenerateKeys(ctx context.Context, userID int64) (string, error)
}

// Handler manages user management endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	toggle  ViewToggler
	keys    KeyIssuer
	gate    authz.Gate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, toggle ViewToggler, keys KeyIssuer, gate authz.Gate) *Handler {
	return &Handler{logger: logger, service: service, toggle: toggle, keys: keys, gate: gate}
}

// MountRoutes registers user routes, each behind its action gate.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.gate.Require(authz.ActionIndex)).Get("/", h.index)
	r.With(h.gate.Require(authz.ActionListPendingRequested)).Get("/pending", h.listPending)
	r.With(h.gate.Require(authz.ActionNewUser)).Get("/new", h.newUser)
	r.With(h.gate.Require(authz.ActionCreateUser)).Post("/", h.create)
	r.With(h.gate.Require(authz.ActionSearchUsers)).Get("/search", h.search)
	r.With(h.gate.Require(authz.ActionAutocomplete)).Get("/autocomplete", h.autocomplete)
	r.With(h.gate.Require(authz.ActionShow)).Get("/{id}", h.show)
	r.With(h.gate.Require(authz.ActionUpdateUser)).Put("/{id}", h.update)
	r.With(h.gate.Require(authz.ActionDeleteUser)).Delete("/{id}", h.destroy)
	r.With(h.gate.Require(authz.ActionKeys)).Get("/{id}/keys", h.showKeys)
	r.With(h.gate.Require(authz.ActionImpersonate)).Post("/{id}/impersonate", h.impersonate)
}

// MountAnonymizedView registers the anonymized-view toggle endpoint.
func (h *Handler) MountAnonymizedView(r chi.Router) {
	r.With(h.gate.Require(authz.ActionSetAnonymizedView)).Post("/", h.setAnonymizedView)
}

// index lists users visible to the requester. Students are sent to their
// home page instead of the user list.
func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	requester, _ := authz.RequesterFromContext(r.Context())
	if requester.Role.IsStudent() {
		httpx.SeeOther(w, r, authz.HomeDestination(requester.Role))
		return
	}

	actor, err := h.service.GetUser(r.Context(), requester.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	list, err := h.service.VisibleUsers(r.Context(), actor)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": list})
}

func (h *Handler) listPending(w http.ResponseWriter, r *http.Request) {
	requests, err := h.service.ListPendingAccountRequests(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"requests": requests})
}

// newUser serves the account-creation entry point. Reachable without a
// session; authenticated callers additionally get the roles they may
// assign.
func (h *Handler) newUser(w http.ResponseWriter, r *http.Request) {
	requester, _ := authz.RequesterFromContext(r.Context())
	resp := map[string]any{"user": CreateUserRequest{}}
	if requester.LoggedIn {
		ids, err := h.service.roles.AvailableRoleIDs(r.Context(), requester.Role.ID)
		if err == nil {
			resp["assignable_role_ids"] = ids
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	requester, _ := authz.RequesterFromContext(r.Context())

	u, renamed, err := h.service.CreateUser(r.Context(), req, requester.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := map[string]any{"user": u}
	if renamed {
		resp["note"] = "That username already exists. Username has been set to the user's email address."
	}
	httpx.JSON(w, http.StatusCreated, resp)
}

// show renders a profile. A student may only view their own record; other
// requesters need sufficient privilege. Denied requesters are redirected
// home, not refused outright.
func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	requester, _ := authz.RequesterFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if !authz.CanViewOwnRecord(requester.Role, requester.UserID, id) {
		httpx.SeeOther(w, r, authz.HomeDestination(requester.Role))
		return
	}

	u, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	view, err := h.service.Present(r.Context(), u, clientAddr(r))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": view})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	var req UpdateUserRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	u, err := h.service.UpdateUser(r.Context(), id, req)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user": u})
}

func (h *Handler) destroy(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	requester, _ := authz.RequesterFromContext(r.Context())
	actor, err := h.service.GetUser(r.Context(), requester.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	field := SearchByName
	switch r.URL.Query().Get("by") {
	case "fullname":
		field = SearchByFullName
	case "email":
		field = SearchByEmail
	}
	list, err := h.service.SearchUsers(r.Context(), actor, r.URL.Query().Get("q"), field)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"users": list})
}

func (h *Handler) autocomplete(w http.ResponseWriter, r *http.Request) {
	requester, _ := authz.RequesterFromContext(r.Context())
	actor, err := h.service.GetUser(r.Context(), requester.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	list, err := h.service.VisibleUsersByPrefix(r.Context(), actor, r.URL.Query().Get("name"), 10)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	names := make([]string, 0, len(list))
	for _, u := range list {
		names = append(names, u.Name)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"names": names})
}

// showKeys returns a fresh private key for the account. Students may only
// request their own keys.
func (h *Handler) showKeys(w http.ResponseWriter, r *http.Request) {
	requester, _ := authz.RequesterFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if !authz.CanViewOwnRecord(requester.Role, requester.UserID, id) {
		httpx.SeeOther(w, r, authz.HomeDestination(requester.Role))
		return
	}
	if h.keys == nil {
		httpx.Problem(w, http.StatusNotImplemented, "Not Implemented", "key service is not configured")
		return
	}
	key, err := h.keys.GenerateKeys(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"private_key": key})
}

// impersonate switches the session to the target identity when the
// impersonation policy allows it.
func (h *Handler) impersonate(w http.ResponseWriter, r *http.Request) {
	requester, _ := authz.RequesterFromContext(r.Context())
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	actor, err := h.service.GetUser(r.Context(), requester.UserID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	target, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	allowed, err := h.service.CanImpersonate(r.Context(), actor, target)
	if err != nil {
		h.logger.Error("impersonation policy", slog.Int64("actor", actor.ID), slog.Int64("target", target.ID), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if !allowed {
		httpx.Problem(w, http.StatusForbidden, "Forbidden", "you may not impersonate this user")
		return
	}

	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.Set("impersonated_user_id", strconv.FormatInt(target.ID, 10))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"impersonating": target.ID})
}

// setAnonymizedView flips the anonymized display mode for the caller's
// client address and sends them back where they came from.
func (h *Handler) setAnonymizedView(w http.ResponseWriter, r *http.Request) {
	addr := clientAddr(r)
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.SetClientIP(addr)
	}
	active, err := h.toggle.Flip(r.Context(), addr)
	if err != nil {
		h.logger.Error("anonymized view toggle", slog.String("addr", addr), slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if actorID, ok := shared.CurrentUserID(r.Context()); ok {
		h.service.AuditAnonymizedViewFlip(r.Context(), actorID, addr, active)
	}
	location := r.Referer()
	if location == "" {
		location = "/"
	}
	httpx.SeeOther(w, r, location)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user id must be numeric")
		return 0, false
	}
	return id, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "the requested user does not exist")
	case errors.Is(err, ErrDuplicateName):
		httpx.Problem(w, http.StatusConflict, "Duplicate", "username already exists")
	case errors.Is(err, ErrUnmappedRole), errors.Is(err, ErrHierarchyCycle):
		h.logger.Error("configuration error", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	default:
		h.logger.Error("user handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

// clientAddr extracts the caller's address. RealIP middleware has already
// folded forwarding headers into RemoteAddr; the port is stripped here.
func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
