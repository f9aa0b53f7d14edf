package auth

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/peergrade-io/peergrade/internal/authz"
	"github.com/peergrade-io/peergrade/internal/platform/httpx"
	"github.com/peergrade-io/peergrade/internal/roles"
	"github.com/peergrade-io/peergrade/internal/shared"
)

// RoleResolver resolves the role a user holds, for the post-login redirect.
type RoleResolver interface {
	RequesterRole(ctx context.Context, userID int64) (roles.Role, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	roleResolver   RoleResolver
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, roleResolver RoleResolver, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	return &Handler{
		logger:         logger,
		service:        service,
		roleResolver:   roleResolver,
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.issueCSRF)
	r.Get("/session", h.sessionStatus)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

// sessionStatus reports whether the caller is logged in and drains any
// pending flash messages for display.
func (h *Handler) sessionStatus(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil || sess.User() == "" {
		httpx.JSON(w, http.StatusOK, map[string]any{"logged_in": false})
		return
	}
	flashes := []shared.FlashMessage{}
	for {
		flash := sess.PopFlash()
		if flash == nil {
			break
		}
		flashes = append(flashes, *flash)
	}
	userID, _ := strconv.ParseInt(sess.User(), 10, 64)
	home := "/"
	if role, err := h.roleResolver.RequesterRole(r.Context(), userID); err == nil {
		home = authz.HomeDestination(role)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"logged_in": true,
		"user_id":   userID,
		"home":      home,
		"flashes":   flashes,
	})
}

// issueCSRF hands the client the token it must echo in the CSRF header on
// mutating requests.
func (h *Handler) issueCSRF(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	token, err := h.csrfManager.EnsureToken(r.Context(), sess)
	if err != nil {
		h.logger.Error("issue csrf token", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

type loginRequest struct {
	Login    string `json:"login" validate:"required"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "login and password are required")
		return
	}

	cred, err := h.service.Authenticate(r.Context(), req.Login, req.Password)
	if err != nil {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", shared.UserSafeMessage(shared.ErrInvalidCredentials))
		return
	}

	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	sess.SetUser(strconv.FormatInt(cred.UserID, 10))
	sess.SetClientIP(clientAddr(r))

	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, cred.UserID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}

	home := "/"
	if role, err := h.roleResolver.RequesterRole(r.Context(), cred.UserID); err == nil {
		home = authz.HomeDestination(role)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"user_id": cred.UserID, "home": home})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"logged_out": true})
}

func clientAddr(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
