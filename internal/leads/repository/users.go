package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lead_protection_backend/internal/leads/ports"
)

// ErrUserNotFound is returned when a sales user does not exist or is inactive.
var ErrUserNotFound = errors.New("sales user not found")

// UserDirectory reads the sales_users projection of the identity system.
type UserDirectory struct {
	pool *pgxpool.Pool
}

var (
	_ ports.UserProvider         = (*UserDirectory)(nil)
	_ ports.UserExistenceChecker = (*UserDirectory)(nil)
)

func NewUserDirectory(pool *pgxpool.Pool) *UserDirectory {
	return &UserDirectory{pool: pool}
}

func (d *UserDirectory) GetUserByID(ctx context.Context, id uuid.UUID) (ports.UserInfo, error) {
	var u ports.UserInfo
	err := d.pool.QueryRow(ctx, `
		SELECT id, email, display_name FROM sales_users WHERE id = $1 AND active`, id,
	).Scan(&u.ID, &u.Email, &u.DisplayName)
	if errors.Is(err, pgx.ErrNoRows) {
		return ports.UserInfo{}, ErrUserNotFound
	}
	if err != nil {
		return ports.UserInfo{}, fmt.Errorf("get sales user: %w", err)
	}
	return u, nil
}

func (d *UserDirectory) UserExists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := d.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM sales_users WHERE id = $1 AND active)`, id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check sales user: %w", err)
	}
	return exists, nil
}
