package auth

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/cesasin/clinic-reminders/pkg/logging"
)

func newMockService(t *testing.T) (*Service, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewService(NewStore(db), "test-secret", time.Hour, logging.Default()), mock
}

func userRow(id int64, username, email, hash string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"user_id", "username", "email", "password", "role_id", "created_at"}).
		AddRow(id, username, email, hash, int64(1), time.Now())
}

func TestLoginIssuesToken(t *testing.T) {
	svc, mock := newMockService(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("secreta123"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .+ FROM users WHERE username").
		WithArgs("operador").
		WillReturnRows(userRow(3, "operador", "op@clinic.test", string(hash)))

	token, user, err := svc.Login(context.Background(), "operador", "secreta123")
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, int64(3), user.ID)

	claims, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operador", claims.Username)
	assert.Equal(t, "3", claims.Subject)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLoginWrongPassword(t *testing.T) {
	svc, mock := newMockService(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("correcta"), bcrypt.MinCost)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .+ FROM users WHERE username").
		WithArgs("operador").
		WillReturnRows(userRow(3, "operador", "op@clinic.test", string(hash)))

	_, _, err = svc.Login(context.Background(), "operador", "incorrecta")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginUnknownUser(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery("SELECT .+ FROM users WHERE username").
		WithArgs("nadie").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "username", "email", "password", "role_id", "created_at"}))

	_, _, err := svc.Login(context.Background(), "nadie", "whatever")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestRegisterCreatesUser(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery("SELECT .+ FROM users WHERE username").
		WithArgs("nueva").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "username", "email", "password", "role_id", "created_at"}))
	mock.ExpectQuery("SELECT .+ FROM users WHERE email").
		WithArgs("nueva@clinic.test").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "username", "email", "password", "role_id", "created_at"}))
	mock.ExpectQuery("INSERT INTO users").
		WithArgs("nueva", sqlmock.AnyArg(), "nueva@clinic.test", int64(2), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(int64(9)))

	user, err := svc.Register(context.Background(), Registration{
		Username: "nueva", Password: "muysecreta", Email: "nueva@clinic.test", RoleID: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(9), user.ID)
	// The stored hash must verify against the original password.
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("muysecreta")))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterDuplicateUsername(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery("SELECT .+ FROM users WHERE username").
		WithArgs("operador").
		WillReturnRows(userRow(3, "operador", "op@clinic.test", "hash"))

	_, err := svc.Register(context.Background(), Registration{
		Username: "operador", Password: "muysecreta", Email: "otra@clinic.test",
	})
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery("SELECT .+ FROM users WHERE username").
		WithArgs("nueva").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "username", "email", "password", "role_id", "created_at"}))
	mock.ExpectQuery("SELECT .+ FROM users WHERE email").
		WithArgs("op@clinic.test").
		WillReturnRows(userRow(3, "operador", "op@clinic.test", "hash"))

	_, err := svc.Register(context.Background(), Registration{
		Username: "nueva", Password: "muysecreta", Email: "op@clinic.test",
	})
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestParseTokenRejectsTampered(t *testing.T) {
	svc, _ := newMockService(t)
	other := NewService(nil, "other-secret", time.Hour, logging.Default())

	hashSvc, mock := newMockService(t)
	hash, err := bcrypt.GenerateFromPassword([]byte("secreta123"), bcrypt.MinCost)
	require.NoError(t, err)
	mock.ExpectQuery("SELECT .+ FROM users WHERE username").
		WithArgs("operador").
		WillReturnRows(userRow(3, "operador", "op@clinic.test", string(hash)))
	token, _, err := hashSvc.Login(context.Background(), "operador", "secreta123")
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	require.NoError(t, err)
	_, err = other.ParseToken(token)
	assert.Error(t, err)
}
