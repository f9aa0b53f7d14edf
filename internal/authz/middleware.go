package authz

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/peergrade-io/peergrade/internal/observability"
	"github.com/peergrade-io/peergrade/internal/platform/httpx"
	"github.com/peergrade-io/peergrade/internal/roles"
	"github.com/peergrade-io/peergrade/internal/shared"
)

// IdentityResolver resolves the role held by a session's user id.
type IdentityResolver interface {
	RequesterRole(ctx context.Context, userID int64) (roles.Role, error)
}

// Requester describes the authenticated (or anonymous) caller as seen by
// the gate.
type Requester struct {
	UserID   int64
	Role     roles.Role
	LoggedIn bool
}

type requesterContextKey struct{}

// RequesterFromContext returns the requester resolved by the gate.
func RequesterFromContext(ctx context.Context) (Requester, bool) {
	req, ok := ctx.Value(requesterContextKey{}).(Requester)
	return req, ok
}

// Gate wires the action table into the HTTP layer. A denied request is
// redirected to the requester's home destination, never left hanging.
type Gate struct {
	Identity IdentityResolver
	Logger   *slog.Logger
	Metrics  *observability.Metrics
}

// Require returns middleware admitting only requesters the action table
// allows.
func (g Gate) Require(action Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requester, err := g.resolve(r.Context())
			if err != nil {
				if g.Logger != nil {
					g.Logger.Error("resolve requester", slog.String("action", string(action)), slog.Any("error", err))
				}
				httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				return
			}

			allowed := IsActionAllowed(requester.Role, requester.LoggedIn, action)
			if g.Metrics != nil {
				g.Metrics.IncAuthzDecision(string(action), allowed)
			}
			if !allowed {
				if g.Logger != nil {
					g.Logger.Warn("action denied",
						slog.String("action", string(action)),
						slog.Int64("user_id", requester.UserID),
						slog.String("role", requester.Role.Name))
				}
				if sess := shared.SessionFromContext(r.Context()); sess != nil {
					sess.AddFlash(shared.FlashMessage{Kind: "error", Message: "You are not authorized to perform that action."})
				}
				httpx.SeeOther(w, r, HomeDestination(requester.Role))
				return
			}

			ctx := context.WithValue(r.Context(), requesterContextKey{}, requester)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (g Gate) resolve(ctx context.Context) (Requester, error) {
	userID, ok := shared.CurrentUserID(ctx)
	if !ok {
		return Requester{}, nil
	}
	role, err := g.Identity.RequesterRole(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			// Stale session pointing at a deleted account: anonymous.
			return Requester{}, nil
		}
		return Requester{}, err
	}
	return Requester{UserID: userID, Role: role, LoggedIn: true}, nil
}
