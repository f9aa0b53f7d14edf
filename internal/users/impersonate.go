package users

import (
	"context"
	"fmt"

	"github.com/peergrade-io/peergrade/internal/roles"
)

// AssistantDirectory is the external relation linking teaching assistants
// to the courses they assist with. The policy treats it as an opaque
// predicate.
type AssistantDirectory interface {
	// IsAssistantFor reports whether any course the assistant is assigned
	// to has an assignment with studentID as a participant.
	IsAssistantFor(ctx context.Context, assistantID, studentID int64) (bool, error)
}

// Policy decides whether one user may impersonate another. The decision is
// pure; the only errors it can return are hierarchy configuration errors,
// which must surface so the caller logs and denies.
type Policy struct {
	walker     *Walker
	roles      RoleDirectory
	assistants AssistantDirectory
}

// NewPolicy constructs an impersonation Policy.
func NewPolicy(walker *Walker, roleDir RoleDirectory, assistants AssistantDirectory) *Policy {
	return &Policy{walker: walker, roles: roleDir, assistants: assistants}
}

// CanImpersonate reports whether actor may act as target. Any one of three
// rules grants access: actor is a super-admin; actor is a teaching
// assistant assigned to a course containing target, and target is a
// student; or actor is an ancestor of target in the account ownership
// chain.
func (p *Policy) CanImpersonate(ctx context.Context, actor, target *User) (bool, error) {
	if actor == nil || target == nil {
		return false, nil
	}

	actorRole, err := p.roles.FindRoleByID(ctx, actor.RoleID)
	if err != nil {
		return false, fmt.Errorf("users: resolve actor role: %w", err)
	}
	if actorRole.IsSuperAdmin() {
		return true, nil
	}

	ok, err := p.isAssistantForStudent(ctx, actorRole, actor, target)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	return p.walker.IsAncestorOf(ctx, actor, target)
}

// isAssistantForStudent evaluates the delegated-assistant rule. The
// assignment data is only consulted when the actor actually holds the
// teaching-assistant role and the target is a student.
func (p *Policy) isAssistantForStudent(ctx context.Context, actorRole *roles.Role, actor, target *User) (bool, error) {
	if !actorRole.IsTeachingAssistant() {
		return false, nil
	}
	targetRole, err := p.roles.FindRoleByID(ctx, target.RoleID)
	if err != nil {
		return false, fmt.Errorf("users: resolve target role: %w", err)
	}
	if !targetRole.IsStudent() {
		return false, nil
	}
	return p.assistants.IsAssistantFor(ctx, actor.ID, target.ID)
}
