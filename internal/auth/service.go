// Package auth holds the staff account store and the login/registration
// service backing the HTTP auth endpoints.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/cesasin/clinic-reminders/pkg/logging"
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUsernameTaken      = errors.New("auth: username already exists")
	ErrEmailTaken         = errors.New("auth: email already exists")
)

const bcryptCost = 10

// Claims is the JWT payload issued on login.
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Registration is the input of Register.
type Registration struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required,min=8"`
	Email    string `json:"email" validate:"required,email"`
	RoleID   int64  `json:"role_id"`
}

// Service signs staff in and registers new accounts.
type Service struct {
	store  *Store
	secret []byte
	expiry time.Duration
	logger *logging.Logger
}

// NewService creates an auth service signing tokens with secret.
func NewService(store *Store, secret string, expiry time.Duration, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: store, secret: []byte(secret), expiry: expiry, logger: logger}
}

// Login checks the credentials and returns a signed token plus the user. A
// missing user and a wrong password both come back as ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) (string, *User, error) {
	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return "", nil, fmt.Errorf("auth: look up user: %w", err)
	}
	if user == nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	now := time.Now()
	claims := Claims{
		Username: user.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.expiry)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("auth: sign token: %w", err)
	}
	s.logger.Info("user logged in", "username", user.Username, "user_id", user.ID)
	return token, user, nil
}

// Register creates a new staff account after checking the username and email
// are free. The password is stored bcrypt-hashed.
func (s *Service) Register(ctx context.Context, reg Registration) (*User, error) {
	existing, err := s.store.FindByUsername(ctx, reg.Username)
	if err != nil {
		return nil, fmt.Errorf("auth: check username: %w", err)
	}
	if existing != nil {
		return nil, ErrUsernameTaken
	}
	existing, err = s.store.FindByEmail(ctx, reg.Email)
	if err != nil {
		return nil, fmt.Errorf("auth: check email: %w", err)
	}
	if existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(reg.Password), bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("auth: hash password: %w", err)
	}
	user, err := s.store.Create(ctx, reg.Username, string(hash), reg.Email, reg.RoleID)
	if err != nil {
		return nil, err
	}
	s.logger.Info("user registered", "username", user.Username, "user_id", user.ID)
	return user, nil
}

// ParseToken validates a token string and returns its claims.
func (s *Service) ParseToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auth: parse token: %w", err)
	}
	if !token.Valid {
		return nil, ErrInvalidCredentials
	}
	return claims, nil
}
