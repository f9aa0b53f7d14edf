package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peergrade-io/peergrade/internal/roles"
	"github.com/peergrade-io/peergrade/internal/shared"
)

type fakeDirectory struct {
	users map[int64]*User
	calls int
}

func (d *fakeDirectory) FindUserByID(_ context.Context, id int64) (*User, error) {
	d.calls++
	u, ok := d.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

type fakeRoleDirectory struct {
	roles map[int64]*roles.Role
}

func (d *fakeRoleDirectory) FindRoleByID(_ context.Context, id int64) (*roles.Role, error) {
	r, ok := d.roles[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return r, nil
}

func ptrID(id int64) *int64 { return &id }

func standardRoles() *fakeRoleDirectory {
	return &fakeRoleDirectory{roles: map[int64]*roles.Role{
		1: {ID: 1, Name: roles.NameStudent},
		2: {ID: 2, Name: roles.NameTeachingAssistant},
		3: {ID: 3, Name: roles.NameInstructor},
		4: {ID: 4, Name: roles.NameAdministrator},
		5: {ID: 5, Name: roles.NameSuperAdministrator},
	}}
}

// ownershipChain builds super-admin 100 -> admin 50 -> instructor 10 ->
// student 1, plus an unrelated instructor 20.
func ownershipChain() *fakeDirectory {
	return &fakeDirectory{users: map[int64]*User{
		100: {ID: 100, Name: "root", RoleID: 5},
		50:  {ID: 50, Name: "dean", RoleID: 4, ParentID: ptrID(100)},
		10:  {ID: 10, Name: "prof", RoleID: 3, ParentID: ptrID(50)},
		20:  {ID: 20, Name: "other_prof", RoleID: 3, ParentID: ptrID(50)},
		1:   {ID: 1, Name: "alice", RoleID: 1, ParentID: ptrID(10)},
	}}
}

func TestIsAncestorOfReflexive(t *testing.T) {
	dir := ownershipChain()
	w := NewWalker(dir, standardRoles())

	ok, err := w.IsAncestorOf(context.Background(), dir.users[1], dir.users[1])
	require.NoError(t, err)
	assert.True(t, ok, "every user is their own ancestor")
}

func TestIsAncestorOfFollowsParentChain(t *testing.T) {
	dir := ownershipChain()
	w := NewWalker(dir, standardRoles())
	ctx := context.Background()

	ok, err := w.IsAncestorOf(ctx, dir.users[10], dir.users[1])
	require.NoError(t, err)
	assert.True(t, ok, "direct parent")

	ok, err = w.IsAncestorOf(ctx, dir.users[50], dir.users[1])
	require.NoError(t, err)
	assert.True(t, ok, "grandparent")

	ok, err = w.IsAncestorOf(ctx, dir.users[20], dir.users[1])
	require.NoError(t, err)
	assert.False(t, ok, "sibling branch is not an ancestor")

	ok, err = w.IsAncestorOf(ctx, dir.users[1], dir.users[10])
	require.NoError(t, err)
	assert.False(t, ok, "ancestry is not symmetric")
}

func TestIsAncestorOfSuperAdminEndsChain(t *testing.T) {
	dir := ownershipChain()
	// Give the super-admin a parent of its own; the walk must never reach it.
	beyond := &User{ID: 200, Name: "shadow", RoleID: 4}
	dir.users[200] = beyond
	dir.users[100].ParentID = ptrID(200)

	w := NewWalker(dir, standardRoles())
	ctx := context.Background()

	ok, err := w.IsAncestorOf(ctx, dir.users[100], dir.users[1])
	require.NoError(t, err)
	assert.True(t, ok, "the super-admin at the top of the chain matches")

	ok, err = w.IsAncestorOf(ctx, beyond, dir.users[1])
	require.NoError(t, err)
	assert.False(t, ok, "nothing above a super-admin is reachable")
}

func TestIsAncestorOfDanglingParentDenies(t *testing.T) {
	dir := ownershipChain()
	dir.users[1].ParentID = ptrID(999)
	w := NewWalker(dir, standardRoles())

	ok, err := w.IsAncestorOf(context.Background(), dir.users[10], dir.users[1])
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestIsAncestorOfDetectsCycle(t *testing.T) {
	dir := &fakeDirectory{users: map[int64]*User{
		1: {ID: 1, RoleID: 3, ParentID: ptrID(2)},
		2: {ID: 2, RoleID: 3, ParentID: ptrID(3)},
		3: {ID: 3, RoleID: 3, ParentID: ptrID(1)},
	}}
	w := NewWalker(dir, standardRoles())

	ok, err := w.IsAncestorOf(context.Background(), &User{ID: 42, RoleID: 4}, dir.users[1])
	require.ErrorIs(t, err, ErrHierarchyCycle)
	assert.False(t, ok, "a corrupted chain must never grant")
}

func TestIsAncestorOfDepthCap(t *testing.T) {
	// A straight chain longer than the cap, no revisits.
	dir := &fakeDirectory{users: map[int64]*User{}}
	for i := int64(1); i <= DefaultMaxDepth+5; i++ {
		u := &User{ID: i, RoleID: 3}
		if i < DefaultMaxDepth+5 {
			u.ParentID = ptrID(i + 1)
		}
		dir.users[i] = u
	}
	w := NewWalker(dir, standardRoles())

	_, err := w.IsAncestorOf(context.Background(), &User{ID: 9999, RoleID: 4}, dir.users[1])
	require.ErrorIs(t, err, ErrHierarchyCycle)
}

func TestIsAncestorOfNilArguments(t *testing.T) {
	dir := ownershipChain()
	w := NewWalker(dir, standardRoles())
	ctx := context.Background()

	ok, err := w.IsAncestorOf(ctx, nil, dir.users[1])
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = w.IsAncestorOf(ctx, dir.users[1], nil)
	require.NoError(t, err)
	assert.False(t, ok)
}
