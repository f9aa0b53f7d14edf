package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peergrade-io/peergrade/internal/shared"
)

type fakeAssistants struct {
	pairs map[[2]int64]bool
	calls int
}

func (f *fakeAssistants) IsAssistantFor(_ context.Context, assistantID, studentID int64) (bool, error) {
	f.calls++
	return f.pairs[[2]int64{assistantID, studentID}], nil
}

func newPolicy(dir *fakeDirectory, assistants *fakeAssistants) *Policy {
	roleDir := standardRoles()
	return NewPolicy(NewWalker(dir, roleDir), roleDir, assistants)
}

func TestCanImpersonateSuperAdmin(t *testing.T) {
	dir := ownershipChain()
	p := newPolicy(dir, &fakeAssistants{})

	ok, err := p.CanImpersonate(context.Background(), dir.users[100], dir.users[20])
	require.NoError(t, err)
	assert.True(t, ok, "super-admins may impersonate anyone")
}

func TestCanImpersonateAssistantOverAssignedStudent(t *testing.T) {
	dir := ownershipChain()
	ta := &User{ID: 30, Name: "grader", RoleID: 2, ParentID: ptrID(20)}
	dir.users[30] = ta
	assistants := &fakeAssistants{pairs: map[[2]int64]bool{{30, 1}: true}}
	p := newPolicy(dir, assistants)
	ctx := context.Background()

	ok, err := p.CanImpersonate(ctx, ta, dir.users[1])
	require.NoError(t, err)
	assert.True(t, ok)

	// Same assistant, a student outside their courses.
	stranger := &User{ID: 2, Name: "bob", RoleID: 1, ParentID: ptrID(20)}
	dir.users[2] = stranger
	ok, err = p.CanImpersonate(ctx, ta, stranger)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCanImpersonateAssistantRuleSkipsNonStudents(t *testing.T) {
	dir := ownershipChain()
	ta := &User{ID: 30, Name: "grader", RoleID: 2, ParentID: ptrID(20)}
	dir.users[30] = ta
	assistants := &fakeAssistants{pairs: map[[2]int64]bool{{30, 10}: true}}
	p := newPolicy(dir, assistants)

	ok, err := p.CanImpersonate(context.Background(), ta, dir.users[10])
	require.NoError(t, err)
	assert.False(t, ok, "the assistant rule only covers student targets")
	assert.Zero(t, assistants.calls, "assignment data is not consulted for non-students")
}

func TestCanImpersonateAncestor(t *testing.T) {
	dir := ownershipChain()
	p := newPolicy(dir, &fakeAssistants{})
	ctx := context.Background()

	ok, err := p.CanImpersonate(ctx, dir.users[10], dir.users[1])
	require.NoError(t, err)
	assert.True(t, ok, "account owners may impersonate their subtree")

	ok, err = p.CanImpersonate(ctx, dir.users[20], dir.users[1])
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.CanImpersonate(ctx, dir.users[1], dir.users[10])
	require.NoError(t, err)
	assert.False(t, ok, "students cannot impersonate upward")
}

func TestCanImpersonateCyclePropagates(t *testing.T) {
	dir := &fakeDirectory{users: map[int64]*User{
		1: {ID: 1, RoleID: 3, ParentID: ptrID(2)},
		2: {ID: 2, RoleID: 3, ParentID: ptrID(1)},
	}}
	p := newPolicy(dir, &fakeAssistants{})

	ok, err := p.CanImpersonate(context.Background(), &User{ID: 9, RoleID: 4}, dir.users[1])
	require.ErrorIs(t, err, ErrHierarchyCycle)
	assert.False(t, ok, "configuration errors deny, never allow")
}

func TestCanImpersonateUnknownRoleFails(t *testing.T) {
	dir := ownershipChain()
	actor := &User{ID: 77, Name: "ghost", RoleID: 42}
	p := newPolicy(dir, &fakeAssistants{})

	ok, err := p.CanImpersonate(context.Background(), actor, dir.users[1])
	require.ErrorIs(t, err, shared.ErrNotFound)
	assert.False(t, ok)
}

func TestCanImpersonateNilArguments(t *testing.T) {
	dir := ownershipChain()
	p := newPolicy(dir, &fakeAssistants{})
	ctx := context.Background()

	ok, err := p.CanImpersonate(ctx, nil, dir.users[1])
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = p.CanImpersonate(ctx, dir.users[1], nil)
	require.NoError(t, err)
	assert.False(t, ok)
}
