package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/peergrade-io/peergrade/internal/roles"
	"github.com/peergrade-io/peergrade/internal/shared"
)

// ErrHierarchyCycle indicates a user parent chain loops back on itself or
// exceeds the depth cap. The caller must deny, never allow.
var ErrHierarchyCycle = errors.New("users: parent chain cycle detected")

// DefaultMaxDepth bounds the parent-chain walk. Real chains are a handful
// of levels deep; anything near the cap is corrupted data.
const DefaultMaxDepth = 64

// Directory resolves user records by id. Implemented by Repository and by
// map-backed fakes in tests.
type Directory interface {
	FindUserByID(ctx context.Context, id int64) (*User, error)
}

// RoleDirectory resolves role records by id.
type RoleDirectory interface {
	FindRoleByID(ctx context.Context, id int64) (*roles.Role, error)
}

// Walker answers ancestor queries over the user parent chain.
type Walker struct {
	users    Directory
	roles    RoleDirectory
	maxDepth int
}

// NewWalker constructs a Walker with the default depth cap.
func NewWalker(users Directory, roleDir RoleDirectory) *Walker {
	return &Walker{users: users, roles: roleDir, maxDepth: DefaultMaxDepth}
}

// IsAncestorOf reports whether candidate equals subject or is reached by
// repeatedly following subject's parent references.
//
// Super-admin accounts cap the walk: reaching a super-admin parent ends
// the chain, and the answer is true only when that super-admin is the
// candidate itself. A missing parent record denies quietly; a cycle or a
// chain past the depth cap returns ErrHierarchyCycle so the caller can
// log and deny instead of silently deciding either way.
func (w *Walker) IsAncestorOf(ctx context.Context, candidate, subject *User) (bool, error) {
	if candidate == nil || subject == nil {
		return false, nil
	}
	if candidate.ID == subject.ID {
		return true, nil
	}

	visited := map[int64]struct{}{subject.ID: {}}
	cur := subject
	for depth := 0; ; depth++ {
		if depth >= w.maxDepth {
			return false, fmt.Errorf("%w: chain from user %d exceeds %d levels", ErrHierarchyCycle, subject.ID, w.maxDepth)
		}
		if cur.ParentID == nil {
			return false, nil
		}

		parent, err := w.users.FindUserByID(ctx, *cur.ParentID)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				// Dangling parent reference: top of chain for our purposes.
				return false, nil
			}
			return false, fmt.Errorf("users: resolve parent %d: %w", *cur.ParentID, err)
		}
		if _, seen := visited[parent.ID]; seen {
			return false, fmt.Errorf("%w: user %d revisited", ErrHierarchyCycle, parent.ID)
		}
		visited[parent.ID] = struct{}{}

		parentRole, err := w.roles.FindRoleByID(ctx, parent.RoleID)
		if err != nil {
			return false, fmt.Errorf("users: resolve role %d: %w", parent.RoleID, err)
		}
		if parentRole.IsSuperAdmin() {
			// Super-admins have no parent for this check.
			return parent.ID == candidate.ID, nil
		}
		if parent.ID == candidate.ID {
			return true, nil
		}
		cur = parent
	}
}
