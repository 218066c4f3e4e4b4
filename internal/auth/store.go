package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// User is one staff account row.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	RoleID       int64
	CreatedAt    time.Time
}

// Store reads and writes the users table.
type Store struct {
	db *sql.DB
}

// NewStore creates a user store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const userColumns = "user_id, username, email, password, role_id, created_at"

// FindByUsername returns the user with that username, or nil when absent.
func (s *Store) FindByUsername(ctx context.Context, username string) (*User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE username = $1", userColumns)
	return s.scanUser(s.db.QueryRowContext(ctx, query, username))
}

// FindByEmail returns the user with that email, or nil when absent.
func (s *Store) FindByEmail(ctx context.Context, email string) (*User, error) {
	query := fmt.Sprintf("SELECT %s FROM users WHERE email = $1", userColumns)
	return s.scanUser(s.db.QueryRowContext(ctx, query, email))
}

// Create inserts a new user and returns it with its assigned id.
func (s *Store) Create(ctx context.Context, username, passwordHash, email string, roleID int64) (*User, error) {
	now := time.Now()
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (username, password, email, role_id, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING user_id`,
		username, passwordHash, email, roleID, now,
	).Scan(&id)
	if err != nil {
		return nil, fmt.Errorf("auth: create user: %w", err)
	}
	return &User{
		ID:           id,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		RoleID:       roleID,
		CreatedAt:    now,
	}, nil
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.RoleID, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auth: scan user: %w", err)
	}
	return &u, nil
}
