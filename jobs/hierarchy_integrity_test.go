package jobs

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peergrade-io/peergrade/internal/shared"
	"github.com/peergrade-io/peergrade/internal/users"
)

type fakeScanner struct {
	users map[int64]*users.User
}

func (f *fakeScanner) ListUsersByRoles(ctx context.Context, roleIDs []int64) ([]users.User, error) {
	out := make([]users.User, 0, len(f.users))
	for _, u := range f.users {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeScanner) FindUserByID(ctx context.Context, id int64) (*users.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func parentOf(id int64) *int64 { return &id }

func newChecker(scanner *fakeScanner) *HierarchyIntegrityChecker {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewHierarchyIntegrityChecker(logger, nil, scanner)
}

func TestCheckChainHealthy(t *testing.T) {
	scanner := &fakeScanner{users: map[int64]*users.User{
		1:  {ID: 1, ParentID: parentOf(10)},
		10: {ID: 10, ParentID: parentOf(50)},
		50: {ID: 50},
	}}
	checker := newChecker(scanner)

	err := checker.checkChain(context.Background(), scanner.users[1])
	require.NoError(t, err)
}

func TestCheckChainCycle(t *testing.T) {
	scanner := &fakeScanner{users: map[int64]*users.User{
		1: {ID: 1, ParentID: parentOf(2)},
		2: {ID: 2, ParentID: parentOf(1)},
	}}
	checker := newChecker(scanner)

	err := checker.checkChain(context.Background(), scanner.users[1])
	assert.ErrorIs(t, err, errChainCycle)
}

func TestCheckChainSelfParent(t *testing.T) {
	scanner := &fakeScanner{users: map[int64]*users.User{
		1: {ID: 1, ParentID: parentOf(1)},
	}}
	checker := newChecker(scanner)

	err := checker.checkChain(context.Background(), scanner.users[1])
	assert.ErrorIs(t, err, errChainCycle)
}

func TestCheckChainDanglingParent(t *testing.T) {
	scanner := &fakeScanner{users: map[int64]*users.User{
		1: {ID: 1, ParentID: parentOf(999)},
	}}
	checker := newChecker(scanner)

	err := checker.checkChain(context.Background(), scanner.users[1])
	assert.ErrorIs(t, err, errDanglingParent)
}
