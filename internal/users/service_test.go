package users

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peergrade-io/peergrade/internal/shared"
)

type stubRepo struct {
	users        map[int64]*User
	byName       map[string]*User
	nextID       int64
	created      []User
	deleted      []int64
	updates      map[string]any
	pending      []AccountRequest
	assistantFor map[[2]int64]bool
	instructorOf map[int64]int64
	searched     struct {
		visible []int64
		pattern string
		field   SearchField
	}
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		users:        map[int64]*User{},
		byName:       map[string]*User{},
		nextID:       1000,
		assistantFor: map[[2]int64]bool{},
		instructorOf: map[int64]int64{},
	}
}

func (r *stubRepo) add(u *User) *User {
	r.users[u.ID] = u
	r.byName[u.Name] = u
	return u
}

func (r *stubRepo) FindUserByID(_ context.Context, id int64) (*User, error) {
	u, ok := r.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (r *stubRepo) FindUserByName(_ context.Context, name string) (*User, error) {
	u, ok := r.byName[name]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (r *stubRepo) FindByLogin(ctx context.Context, login string) (*User, error) {
	return r.FindUserByName(ctx, login)
}

func (r *stubRepo) CreateUser(_ context.Context, u User) (int64, error) {
	if _, taken := r.byName[u.Name]; taken {
		return 0, ErrDuplicateName
	}
	r.nextID++
	u.ID = r.nextID
	r.created = append(r.created, u)
	r.add(&u)
	return u.ID, nil
}

func (r *stubRepo) UpdateUser(_ context.Context, id int64, updates map[string]any) error {
	if _, ok := r.users[id]; !ok {
		return shared.ErrNotFound
	}
	r.updates = updates
	if v, ok := updates["full_name"].(string); ok {
		r.users[id].FullName = v
	}
	if v, ok := updates["email"].(string); ok {
		r.users[id].Email = v
	}
	return nil
}

func (r *stubRepo) DeleteUser(_ context.Context, id int64) error {
	if _, ok := r.users[id]; !ok {
		return shared.ErrNotFound
	}
	r.deleted = append(r.deleted, id)
	delete(r.users, id)
	return nil
}

func (r *stubRepo) CountUsers(context.Context) (int64, error) {
	return int64(len(r.users)), nil
}

func (r *stubRepo) SearchUsers(_ context.Context, visible []int64, _ int64, pattern string, field SearchField) ([]User, error) {
	r.searched.visible = visible
	r.searched.pattern = pattern
	r.searched.field = field
	return nil, nil
}

func (r *stubRepo) VisibleUsersByPrefix(_ context.Context, visible []int64, _ int64, _ string, _ int) ([]User, error) {
	r.searched.visible = visible
	return nil, nil
}

func (r *stubRepo) ListUsersByRoles(_ context.Context, roleIDs []int64) ([]User, error) {
	var out []User
	for _, u := range r.users {
		for _, id := range roleIDs {
			if u.RoleID == id {
				out = append(out, *u)
			}
		}
	}
	return out, nil
}

func (r *stubRepo) ListPendingAccountRequests(context.Context) ([]AccountRequest, error) {
	return r.pending, nil
}

func (r *stubRepo) IsAssistantFor(_ context.Context, assistantID, studentID int64) (bool, error) {
	return r.assistantFor[[2]int64{assistantID, studentID}], nil
}

func (r *stubRepo) InstructorIDForAssistant(_ context.Context, assistantID int64) (int64, error) {
	id, ok := r.instructorOf[assistantID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	return id, nil
}

type stubRoleGraph struct {
	*fakeRoleDirectory
	available map[int64][]int64
}

func (g *stubRoleGraph) AvailableRoleIDs(_ context.Context, roleID int64) ([]int64, error) {
	return g.available[roleID], nil
}

type stubMailer struct {
	sent []string
	err  error
}

func (m *stubMailer) EnqueueWelcomeEmail(_ context.Context, to, _ string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, to)
	return nil
}

type stubAudit struct{ logs []shared.AuditLog }

func (a *stubAudit) Record(_ context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

type stubAnonView struct{ active bool }

func (v *stubAnonView) IsActive(context.Context, string) (bool, error) {
	return v.active, nil
}

func testService(repo *stubRepo) (*Service, *stubMailer, *stubAudit, *stubAnonView) {
	graph := &stubRoleGraph{
		fakeRoleDirectory: standardRoles(),
		available: map[int64][]int64{
			1: {1},
			2: {1, 2},
			3: {1, 2, 3},
			4: {1, 2, 3, 4},
			5: {1, 2, 3, 4, 5},
		},
	}
	mailer := &stubMailer{}
	audit := &stubAudit{}
	anon := &stubAnonView{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, repo, graph, anon, mailer, audit), mailer, audit, anon
}

func TestCreateUserAssignsParentAndNotifies(t *testing.T) {
	repo := newStubRepo()
	svc, mailer, _, _ := testService(repo)

	u, renamed, err := svc.CreateUser(context.Background(), CreateUserRequest{
		Name:     "alice",
		FullName: "Liddell, Alice",
		Email:    "alice@example.edu",
		RoleID:   1,
	}, 10)
	require.NoError(t, err)
	assert.False(t, renamed)
	require.NotNil(t, u.ParentID)
	assert.Equal(t, int64(10), *u.ParentID, "creator owns the new account")
	assert.Equal(t, []string{"alice@example.edu"}, mailer.sent)
}

func TestCreateUserFallsBackToEmailOnCollision(t *testing.T) {
	repo := newStubRepo()
	repo.add(&User{ID: 1, Name: "alice", RoleID: 1})
	svc, _, _, _ := testService(repo)

	u, renamed, err := svc.CreateUser(context.Background(), CreateUserRequest{
		Name:     "alice",
		FullName: "Liddell, Alice",
		Email:    "alice@example.edu",
		RoleID:   1,
	}, 10)
	require.NoError(t, err)
	assert.True(t, renamed)
	assert.Equal(t, "alice@example.edu", u.Name, "email becomes the username")
}

func TestCreateUserValidation(t *testing.T) {
	repo := newStubRepo()
	svc, _, _, _ := testService(repo)

	_, _, err := svc.CreateUser(context.Background(), CreateUserRequest{
		Name:   "",
		Email:  "not-an-email",
		RoleID: 1,
	}, 10)
	require.Error(t, err)
	assert.Empty(t, repo.created)
}

func TestCreateUserMailerFailureIsNonFatal(t *testing.T) {
	repo := newStubRepo()
	svc, mailer, _, _ := testService(repo)
	mailer.err = context.DeadlineExceeded

	u, _, err := svc.CreateUser(context.Background(), CreateUserRequest{
		Name:     "bob",
		FullName: "Builder, Bob",
		Email:    "bob@example.edu",
		RoleID:   1,
	}, 10)
	require.NoError(t, err, "account creation survives a mailer outage")
	assert.NotZero(t, u.ID)
}

func TestUpdateUserAppliesChangedFields(t *testing.T) {
	repo := newStubRepo()
	repo.add(&User{ID: 1, Name: "alice", FullName: "Liddell, Alice", Email: "old@example.edu", RoleID: 1})
	svc, _, _, _ := testService(repo)

	email := "new@example.edu"
	u, err := svc.UpdateUser(context.Background(), 1, UpdateUserRequest{Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "new@example.edu", u.Email)
	assert.Equal(t, map[string]any{"email": "new@example.edu"}, repo.updates)
}

func TestCanImpersonateRecordsAudit(t *testing.T) {
	repo := newStubRepo()
	admin := repo.add(&User{ID: 1, Name: "root", RoleID: 5})
	student := repo.add(&User{ID: 2, Name: "alice", RoleID: 1})
	svc, _, audit, _ := testService(repo)

	ok, err := svc.CanImpersonate(context.Background(), admin, student)
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, "impersonate", audit.logs[0].Action)
	assert.Equal(t, int64(1), audit.logs[0].ActorID)
	assert.Equal(t, "2", audit.logs[0].EntityID)
}

func TestCanImpersonateDeniedNotAudited(t *testing.T) {
	repo := newStubRepo()
	a := repo.add(&User{ID: 1, Name: "prof_a", RoleID: 3})
	b := repo.add(&User{ID: 2, Name: "prof_b", RoleID: 3})
	svc, _, audit, _ := testService(repo)

	ok, err := svc.CanImpersonate(context.Background(), a, b)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, audit.logs)
}

func TestSearchUsersScopedToVisibleRoles(t *testing.T) {
	repo := newStubRepo()
	instructor := repo.add(&User{ID: 1, Name: "prof", RoleID: 3})
	svc, _, _, _ := testService(repo)

	_, err := svc.SearchUsers(context.Background(), instructor, "ali", SearchByName)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, repo.searched.visible, "instructors see their role and below")
	assert.Equal(t, "ali", repo.searched.pattern)
	assert.Equal(t, SearchByName, repo.searched.field)
}

func TestInstructorID(t *testing.T) {
	repo := newStubRepo()
	repo.instructorOf[30] = 10
	svc, _, _, _ := testService(repo)
	ctx := context.Background()

	id, err := svc.InstructorID(ctx, &User{ID: 10, RoleID: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(10), id, "instructors are their own instructor")

	id, err = svc.InstructorID(ctx, &User{ID: 4, RoleID: 4})
	require.NoError(t, err)
	assert.Equal(t, int64(4), id, "admins are their own instructor")

	id, err = svc.InstructorID(ctx, &User{ID: 30, RoleID: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(10), id, "assistants resolve through their course")

	_, err = svc.InstructorID(ctx, &User{ID: 2, RoleID: 1})
	require.ErrorIs(t, err, ErrUnmappedRole, "students have no instructor mapping")
}

func TestPresentMasksWhenAnonymized(t *testing.T) {
	repo := newStubRepo()
	u := repo.add(&User{ID: 42, Name: "alice", FullName: "Liddell, Alice", Email: "alice@example.edu", RoleID: 1})
	svc, _, _, anon := testService(repo)
	ctx := context.Background()

	view, err := svc.Present(ctx, u, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "alice", view.Name)
	assert.Equal(t, "Alice", view.FirstName)

	anon.active = true
	view, err = svc.Present(ctx, u, "10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Student 42", view.Name)
	assert.Equal(t, "Student, 42", view.FullName)
	assert.Equal(t, "Student", view.FirstName)
	assert.Equal(t, "Student_42@mailinator.com", view.Email)
	assert.Equal(t, "Student", view.RoleName)
}
