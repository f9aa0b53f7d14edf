package users

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/peergrade-io/peergrade/internal/roles"
	"github.com/peergrade-io/peergrade/internal/shared"
)

// ErrUnmappedRole indicates role-dependent branching hit a role the code
// does not know. Fatal for the call; surfaced as an internal error.
var ErrUnmappedRole = errors.New("users: role not mapped for this operation")

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Directory
	AssistantDirectory
	FindUserByName(ctx context.Context, name string) (*User, error)
	FindByLogin(ctx context.Context, login string) (*User, error)
	CreateUser(ctx context.Context, u User) (int64, error)
	UpdateUser(ctx context.Context, id int64, updates map[string]any) error
	DeleteUser(ctx context.Context, id int64) error
	CountUsers(ctx context.Context) (int64, error)
	SearchUsers(ctx context.Context, visibleRoleIDs []int64, requesterID int64, pattern string, field SearchField) ([]User, error)
	VisibleUsersByPrefix(ctx context.Context, visibleRoleIDs []int64, requesterID int64, prefix string, limit int) ([]User, error)
	ListUsersByRoles(ctx context.Context, roleIDs []int64) ([]User, error)
	ListPendingAccountRequests(ctx context.Context) ([]AccountRequest, error)
	InstructorIDForAssistant(ctx context.Context, assistantID int64) (int64, error)
}

// RoleGraphPort is the slice of the roles service the user service needs.
type RoleGraphPort interface {
	RoleDirectory
	AvailableRoleIDs(ctx context.Context, roleID int64) ([]int64, error)
}

// AnonymizedViewState reports whether the anonymized view is active for a
// client address.
type AnonymizedViewState interface {
	IsActive(ctx context.Context, addr string) (bool, error)
}

// WelcomeMailer enqueues the account-creation notification.
type WelcomeMailer interface {
	EnqueueWelcomeEmail(ctx context.Context, to, name string) error
}

// AuditRecorder persists authorization decisions worth keeping.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles user business logic and composes the hierarchy walker
// and impersonation policy.
type Service struct {
	logger   *slog.Logger
	repo     RepositoryPort
	roles    RoleGraphPort
	walker   *Walker
	policy   *Policy
	anonView AnonymizedViewState
	mailer   WelcomeMailer
	audit    AuditRecorder
	validate *validator.Validate
}

// NewService builds Service instance.
func NewService(logger *slog.Logger, repo RepositoryPort, roleGraph RoleGraphPort, anonView AnonymizedViewState, mailer WelcomeMailer, audit AuditRecorder) *Service {
	walker := NewWalker(repo, roleGraph)
	return &Service{
		logger:   logger,
		repo:     repo,
		roles:    roleGraph,
		walker:   walker,
		policy:   NewPolicy(walker, roleGraph, repo),
		anonView: anonView,
		mailer:   mailer,
		audit:    audit,
		validate: validator.New(),
	}
}

// GetUser fetches a user by id.
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.repo.FindUserByID(ctx, id)
}

// FindByLogin locates a user account from a login string.
func (s *Service) FindByLogin(ctx context.Context, login string) (*User, error) {
	return s.repo.FindByLogin(ctx, login)
}

// FindRoleByID exposes role resolution for callers holding only a user.
func (s *Service) FindRoleByID(ctx context.Context, id int64) (*roles.Role, error) {
	return s.roles.FindRoleByID(ctx, id)
}

// RequesterRole resolves the role held by the given user id. Used by the
// action gate.
func (s *Service) RequesterRole(ctx context.Context, userID int64) (roles.Role, error) {
	u, err := s.repo.FindUserByID(ctx, userID)
	if err != nil {
		return roles.Role{}, err
	}
	r, err := s.roles.FindRoleByID(ctx, u.RoleID)
	if err != nil {
		return roles.Role{}, err
	}
	return *r, nil
}

// CreateUser validates and creates an account owned by the creator. When
// the requested username is taken, the email address is used as the
// username instead, mirroring the legacy collision rule. The welcome
// notification is enqueued after the record exists.
func (s *Service) CreateUser(ctx context.Context, req CreateUserRequest, creatorID int64) (*User, bool, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, false, fmt.Errorf("users: validate: %w", err)
	}

	u := User{
		Name:     req.Name,
		FullName: req.FullName,
		Email:    req.Email,
		RoleID:   req.RoleID,
	}
	if creatorID > 0 {
		u.ParentID = &creatorID
	}

	renamed := false
	id, err := s.repo.CreateUser(ctx, u)
	if errors.Is(err, ErrDuplicateName) {
		u.Name = req.Email
		renamed = true
		id, err = s.repo.CreateUser(ctx, u)
	}
	if err != nil {
		return nil, false, err
	}
	u.ID = id

	if s.mailer != nil {
		if err := s.mailer.EnqueueWelcomeEmail(ctx, u.Email, u.Name); err != nil {
			s.logger.Warn("enqueue welcome email", slog.Int64("user_id", id), slog.Any("error", err))
		}
	}
	return &u, renamed, nil
}

// UpdateUser applies the changed fields of req to the user.
func (s *Service) UpdateUser(ctx context.Context, id int64, req UpdateUserRequest) (*User, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("users: validate: %w", err)
	}

	updates := make(map[string]any)
	if req.FullName != nil {
		updates["full_name"] = *req.FullName
	}
	if req.Email != nil {
		updates["email"] = *req.Email
	}
	if req.RoleID != nil {
		updates["role_id"] = *req.RoleID
	}
	if req.ParentID != nil {
		updates["parent_id"] = *req.ParentID
	}
	if len(updates) == 0 {
		return s.repo.FindUserByID(ctx, id)
	}
	if err := s.repo.UpdateUser(ctx, id, updates); err != nil {
		return nil, err
	}
	return s.repo.FindUserByID(ctx, id)
}

// DeleteUser removes an account.
func (s *Service) DeleteUser(ctx context.Context, id int64) error {
	return s.repo.DeleteUser(ctx, id)
}

// IsAncestorOf answers user ancestor queries for callers outside the
// package.
func (s *Service) IsAncestorOf(ctx context.Context, candidate, subject *User) (bool, error) {
	return s.walker.IsAncestorOf(ctx, candidate, subject)
}

// CanImpersonate applies the impersonation policy and records granted
// impersonations in the audit log.
func (s *Service) CanImpersonate(ctx context.Context, actor, target *User) (bool, error) {
	allowed, err := s.policy.CanImpersonate(ctx, actor, target)
	if err != nil {
		return false, err
	}
	if allowed && s.audit != nil && actor != nil && target != nil {
		auditErr := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "impersonate",
			Entity:   "user",
			EntityID: strconv.FormatInt(target.ID, 10),
		})
		if auditErr != nil {
			s.logger.Warn("audit impersonation", slog.Any("error", auditErr))
		}
	}
	return allowed, nil
}

// AuditAnonymizedViewFlip records a toggle of the anonymized display mode.
func (s *Service) AuditAnonymizedViewFlip(ctx context.Context, actorID int64, addr string, active bool) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "anonymized_view",
		Entity:   "client_ip",
		EntityID: addr,
		Meta:     map[string]any{"active": active},
	})
	if err != nil {
		s.logger.Warn("audit anonymized view", slog.Any("error", err))
	}
}

// SearchUsers searches within the requester's visible role set.
func (s *Service) SearchUsers(ctx context.Context, requester *User, pattern string, field SearchField) ([]User, error) {
	visible, err := s.visibleRoleIDs(ctx, requester)
	if err != nil {
		return nil, err
	}
	return s.repo.SearchUsers(ctx, visible, requester.ID, pattern, field)
}

// VisibleUsersByPrefix backs the username autocomplete, scoped the same
// way as search.
func (s *Service) VisibleUsersByPrefix(ctx context.Context, requester *User, prefix string, limit int) ([]User, error) {
	visible, err := s.visibleRoleIDs(ctx, requester)
	if err != nil {
		return nil, err
	}
	return s.repo.VisibleUsersByPrefix(ctx, visible, requester.ID, prefix, limit)
}

// VisibleUsers lists every user whose role sits at or below the
// requester's role.
func (s *Service) VisibleUsers(ctx context.Context, requester *User) ([]User, error) {
	visible, err := s.visibleRoleIDs(ctx, requester)
	if err != nil {
		return nil, err
	}
	return s.repo.ListUsersByRoles(ctx, visible)
}

func (s *Service) visibleRoleIDs(ctx context.Context, requester *User) ([]int64, error) {
	if requester == nil {
		return nil, shared.ErrNotFound
	}
	return s.roles.AvailableRoleIDs(ctx, requester.RoleID)
}

// ListPendingAccountRequests returns self-signups awaiting review.
func (s *Service) ListPendingAccountRequests(ctx context.Context) ([]AccountRequest, error) {
	return s.repo.ListPendingAccountRequests(ctx)
}

// InstructorID resolves the instructor responsible for the user. Admins
// and instructors are their own instructor; teaching assistants resolve
// through their assisted course. Any other role is an unmapped case.
func (s *Service) InstructorID(ctx context.Context, u *User) (int64, error) {
	role, err := s.roles.FindRoleByID(ctx, u.RoleID)
	if err != nil {
		return 0, err
	}
	switch role.Name {
	case roles.NameSuperAdministrator, roles.NameAdministrator, roles.NameInstructor:
		return u.ID, nil
	case roles.NameTeachingAssistant:
		return s.repo.InstructorIDForAssistant(ctx, u.ID)
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnmappedRole, role.Name)
	}
}

// UserView is the display form of a user, possibly anonymized.
type UserView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	FullName  string `json:"full_name"`
	FirstName string `json:"first_name"`
	Email     string `json:"email"`
	RoleID    int64  `json:"role_id"`
	RoleName  string `json:"role_name"`
}

// Present renders a user for display to the given client address,
// masking identity fields when the anonymized view is active for that
// address.
func (s *Service) Present(ctx context.Context, u *User, clientAddr string) (*UserView, error) {
	role, err := s.roles.FindRoleByID(ctx, u.RoleID)
	if err != nil {
		return nil, err
	}

	anonymized := false
	if s.anonView != nil && clientAddr != "" {
		anonymized, err = s.anonView.IsActive(ctx, clientAddr)
		if err != nil {
			// Masking is a demo affordance; losing it must not break
			// profile pages.
			s.logger.Warn("anonymized view lookup", slog.Any("error", err))
			anonymized = false
		}
	}

	return &UserView{
		ID:        u.ID,
		Name:      DisplayName(u, role, anonymized),
		FullName:  DisplayFullName(u, role, anonymized),
		FirstName: DisplayFirstName(u, role, anonymized),
		Email:     DisplayEmail(u, role, anonymized),
		RoleID:    role.ID,
		RoleName:  role.Name,
	}, nil
}
