package users

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/text/cases"

	"github.com/peergrade-io/peergrade/internal/platform/db"
	"github.com/peergrade-io/peergrade/internal/shared"
)

// ErrDuplicateName indicates the username is already taken.
var ErrDuplicateName = errors.New("users: name already exists")

const uniqueViolation = "23505"

var searchFold = cases.Fold()

// Repository provides PostgreSQL backed persistence for users and the
// assistant-assignment relation.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const userColumns = `id, name, full_name, email, role_id, parent_id, created_at, updated_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Name, &u.FullName, &u.Email, &u.RoleID, &u.ParentID, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("users: scan: %w", err)
	}
	return &u, nil
}

// FindUserByID fetches a user by id.
func (r *Repository) FindUserByID(ctx context.Context, id int64) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// FindUserByName fetches a user by exact username.
func (r *Repository) FindUserByName(ctx context.Context, name string) (*User, error) {
	return scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE name = $1`, name))
}

// FindByLogin locates a user by email; when no account matches, the
// local part of the login is tried as a username, accepted only when it
// resolves to exactly one account.
func (r *Repository) FindByLogin(ctx context.Context, login string) (*User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, login))
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	short, _, _ := strings.Cut(login, "@")
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE name = $1 LIMIT 2`, short)
	if err != nil {
		return nil, fmt.Errorf("users: find by login: %w", err)
	}
	defer rows.Close()

	var matches []*User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.FullName, &u.Email, &u.RoleID, &u.ParentID, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		matches = append(matches, &u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: rows: %w", err)
	}
	if len(matches) != 1 {
		return nil, shared.ErrNotFound
	}
	return matches[0], nil
}

// CreateUser inserts a user record. A username collision is reported as
// ErrDuplicateName so the service can fall back to the email address.
func (r *Repository) CreateUser(ctx context.Context, u User) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO users (name, full_name, email, role_id, parent_id) VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		u.Name, u.FullName, u.Email, u.RoleID, u.ParentID,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return 0, ErrDuplicateName
		}
		return 0, fmt.Errorf("users: create: %w", err)
	}
	return id, nil
}

// UpdateUser applies the given column updates to a user.
func (r *Repository) UpdateUser(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	set := make([]string, 0, len(updates))
	args := make([]any, 0, len(updates)+1)
	i := 1
	for col, val := range updates {
		set = append(set, fmt.Sprintf("%s = $%d", col, i))
		args = append(args, val)
		i++
	}
	args = append(args, id)
	query := fmt.Sprintf(`UPDATE users SET %s, updated_at = NOW() WHERE id = $%d`, strings.Join(set, ", "), i)
	tag, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("users: update %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// DeleteUser removes a user record. Accounts owned by the deleted user
// are detached in the same transaction so their parent references never
// dangle.
func (r *Repository) DeleteUser(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `UPDATE users SET parent_id = NULL WHERE parent_id = $1`, id); err != nil {
			return fmt.Errorf("users: detach children of %d: %w", id, err)
		}
		tag, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("users: delete %d: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

// CountUsers returns the total number of accounts.
func (r *Repository) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("users: count: %w", err)
	}
	return n, nil
}

// SearchUsers returns users visible to the requester, matched against the
// selected field. Visibility is the requester's available role set plus
// their own record. The pattern is case-folded so matching is
// case-insensitive regardless of column collation.
func (r *Repository) SearchUsers(ctx context.Context, visibleRoleIDs []int64, requesterID int64, pattern string, field SearchField) ([]User, error) {
	column := "name"
	switch field {
	case SearchByFullName:
		column = "full_name"
	case SearchByEmail:
		column = "email"
	}
	folded := searchFold.String(pattern)
	query := fmt.Sprintf(
		`SELECT %s FROM users WHERE (role_id = ANY($1) OR id = $2) AND LOWER(%s) LIKE '%%' || $3 || '%%' ORDER BY name LIMIT 50`,
		userColumns, column,
	)
	return r.queryUsers(ctx, query, visibleRoleIDs, requesterID, folded)
}

// VisibleUsersByPrefix returns up to limit users whose name starts with
// prefix and whose role is in the requester's available role set. Backs
// the user autocomplete.
func (r *Repository) VisibleUsersByPrefix(ctx context.Context, visibleRoleIDs []int64, requesterID int64, prefix string, limit int) ([]User, error) {
	if limit <= 0 {
		limit = 10
	}
	query := fmt.Sprintf(
		`SELECT %s FROM users WHERE (role_id = ANY($1) OR id = $2) AND LOWER(name) LIKE $3 || '%%' ORDER BY name LIMIT %d`,
		userColumns, limit,
	)
	return r.queryUsers(ctx, query, visibleRoleIDs, requesterID, searchFold.String(prefix))
}

// ListUsersByRoles returns all users holding one of the given roles.
func (r *Repository) ListUsersByRoles(ctx context.Context, roleIDs []int64) ([]User, error) {
	return r.queryUsers(ctx, `SELECT `+userColumns+` FROM users WHERE role_id = ANY($1) ORDER BY name`, roleIDs)
}

func (r *Repository) queryUsers(ctx context.Context, query string, args ...any) ([]User, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("users: query: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.Name, &u.FullName, &u.Email, &u.RoleID, &u.ParentID, &u.CreatedAt, &u.UpdatedAt); err != nil {
			return nil, fmt.Errorf("users: scan: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: rows: %w", err)
	}
	return out, nil
}

// ListPendingAccountRequests returns self-signups awaiting review.
func (r *Repository) ListPendingAccountRequests(ctx context.Context) ([]AccountRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, name, full_name, email, role_id, status, requested_at FROM account_requests WHERE status = 'pending' ORDER BY requested_at`)
	if err != nil {
		return nil, fmt.Errorf("users: pending requests: %w", err)
	}
	defer rows.Close()

	var out []AccountRequest
	for rows.Next() {
		var req AccountRequest
		if err := rows.Scan(&req.ID, &req.Name, &req.FullName, &req.Email, &req.RoleID, &req.Status, &req.RequestedAt); err != nil {
			return nil, fmt.Errorf("users: scan request: %w", err)
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("users: rows: %w", err)
	}
	return out, nil
}

// IsAssistantFor reports whether the assistant is assigned to a course
// whose assignments include the student as a participant.
func (r *Repository) IsAssistantFor(ctx context.Context, assistantID, studentID int64) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM course_assistants ca
			JOIN assignments a ON a.course_id = ca.course_id
			JOIN participants p ON p.assignment_id = a.id
			WHERE ca.user_id = $1 AND p.user_id = $2
		)`, assistantID, studentID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("users: assistant lookup: %w", err)
	}
	return exists, nil
}

// InstructorIDForAssistant returns the instructor owning the first course
// the assistant is assigned to.
func (r *Repository) InstructorIDForAssistant(ctx context.Context, assistantID int64) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx, `
		SELECT c.instructor_id
		FROM course_assistants ca
		JOIN courses c ON c.id = ca.course_id
		WHERE ca.user_id = $1
		ORDER BY ca.course_id
		LIMIT 1`, assistantID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, shared.ErrNotFound
		}
		return 0, fmt.Errorf("users: instructor for assistant: %w", err)
	}
	return id, nil
}
