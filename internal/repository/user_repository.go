package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"juraganbot/internal/entities"
)

// UserRepository stores the admin API accounts. Provisioning is
// upsert-style so startup can declare the admin account idempotently.
type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// GetByUsername returns the stored account, or nil when the username is
// unknown.
func (r *UserRepository) GetByUsername(username string) (*entities.User, error) {
	var user entities.User
	err := r.db.QueryRow(context.Background(),
		"SELECT id, username, password_hash, role FROM users WHERE username = $1",
		username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", username, err)
	}
	return &user, nil
}

// CreateIfAbsent inserts the account unless the username is already taken.
// An existing account keeps its password.
func (r *UserRepository) CreateIfAbsent(user *entities.User) error {
	_, err := r.db.Exec(context.Background(), `
		INSERT INTO users (username, password_hash, role)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO NOTHING
	`, user.Username, user.PasswordHash, user.Role)
	if err != nil {
		return fmt.Errorf("create user %s: %w", user.Username, err)
	}
	return nil
}
