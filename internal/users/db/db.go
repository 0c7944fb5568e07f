package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Refret28/microservice-booking/internal/apperr"
	"github.com/Refret28/microservice-booking/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// CreateUser inserts a user after checking username, email and phone
// uniqueness. The explicit check gives the caller a precise message
// instead of a raw constraint error.
func (d *DB) CreateUser(ctx context.Context, user *models.User) error {
	exists, err := d.Bun.NewSelect().
		Model((*models.User)(nil)).
		Where("username = ? OR email = ? OR (phone_number != '' AND phone_number = ?)", user.Username, user.Email, user.PhoneNumber).
		Exists(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Storage, "failed to check existing users", err)
	}
	if exists {
		return apperr.New(apperr.Conflict, "a user with this username, email or phone number already exists")
	}

	if _, err := d.Bun.NewInsert().Model(user).Exec(ctx); err != nil {
		return apperr.Wrap(apperr.Storage, "failed to create user", err)
	}
	return nil
}

func (d *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("email = ?", email).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, "user not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to load user", err)
	}
	return &user, nil
}

func (d *DB) GetUserByID(ctx context.Context, userID int64) (*models.User, error) {
	var user models.User
	err := d.Bun.NewSelect().
		Model(&user).
		Where("user_id = ?", userID).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.New(apperr.NotFound, fmt.Sprintf("user %d not found", userID))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to load user", err)
	}
	return &user, nil
}

// ListUsers returns every account, admin view.
func (d *DB) ListUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	err := d.Bun.NewSelect().
		Model(&users).
		Order("user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, apperr.Wrap(apperr.Storage, "failed to list users", err)
	}
	return users, nil
}

// SetUserStatus flips a user between the white and black lists.
func (d *DB) SetUserStatus(ctx context.Context, userID int64, status string) error {
	res, err := d.Bun.NewUpdate().
		Model((*models.User)(nil)).
		Set("status = ?", status).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return apperr.Wrap(apperr.Storage, "failed to update user status", err)
	}
	if rows, err := res.RowsAffected(); err == nil && rows == 0 {
		return apperr.New(apperr.NotFound, fmt.Sprintf("user %d not found", userID))
	}
	return nil
}
