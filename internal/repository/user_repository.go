package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/studyroom-reservation/internal/model"
)

// UserRepo resolves usernames against the users table.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// GetByUsername fetches a user by trimmed username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (model.User, error) {
	var (
		u    model.User
		role string
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id,username,role FROM users WHERE username=? LIMIT 1",
		strings.TrimSpace(username)).Scan(&u.ID, &u.Username, &role)
	u.Role = model.ParseRole(role)
	return u, err
}

// ResolveOrCreateUser returns the id of username, inserting a STUDENT
// user on first sight.  Two callers racing on the same new name both
// end up with the row that won the unique key.
func (r *UserRepo) ResolveOrCreateUser(ctx context.Context, username string) (uint64, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return 0, model.ErrInvalidUsername
	}
	u, err := r.GetByUsername(ctx, username)
	if err == nil {
		return u.ID, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (username, role) VALUES (?,?)",
		username, string(model.RoleStudent))
	if err != nil {
		if isDuplicateKey(err) {
			u, err := r.GetByUsername(ctx, username)
			if err != nil {
				return 0, err
			}
			return u.ID, nil
		}
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return uint64(id), nil
}
