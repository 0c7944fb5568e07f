package users_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/Refret28/microservice-booking/internal/apperr"
	"github.com/Refret28/microservice-booking/internal/auth"
	"github.com/Refret28/microservice-booking/internal/logger"
	"github.com/Refret28/microservice-booking/internal/models"
	"github.com/Refret28/microservice-booking/internal/users"
	users_db "github.com/Refret28/microservice-booking/internal/users/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

type stubBookings struct {
	bookings []models.BookingDetails
}

func (s *stubBookings) UserBookings(ctx context.Context, userID int64) ([]models.BookingDetails, error) {
	return s.bookings, nil
}

func setupService(t *testing.T) (*users.Service, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	if _, err := bunDB.NewCreateTable().Model((*models.User)(nil)).Exec(context.Background()); err != nil {
		t.Fatalf("Failed to create users table: %v", err)
	}

	issuer := auth.NewTokenIssuer("test-secret", 30*time.Minute)
	service := users.NewService(
		&users_db.DB{Bun: bunDB},
		&stubBookings{bookings: []models.BookingDetails{}},
		issuer,
		auth.NewSessionCache(nil),
		30*time.Minute,
		logger.NewLogger(),
	)
	return service, bunDB
}

func registerRequest() models.RegisterRequest {
	return models.RegisterRequest{
		Username: "driver",
		Email:    "driver@example.com",
		Phone:    "+79991234567",
		Password: "secret1",
	}
}

func TestRegisterHashesPassword(t *testing.T) {
	service, bunDB := setupService(t)
	defer bunDB.Close()

	user, err := service.Register(context.Background(), registerRequest())
	require.NoError(t, err)
	assert.NotZero(t, user.UserID)
	assert.NotEqual(t, "secret1", user.Password)
	assert.Equal(t, models.UserStatusWhite, user.Status)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	service, bunDB := setupService(t)
	defer bunDB.Close()
	ctx := context.Background()

	_, err := service.Register(ctx, registerRequest())
	require.NoError(t, err)

	// Same email, different username.
	req := registerRequest()
	req.Username = "other"
	req.Phone = "+70000000000"
	_, err = service.Register(ctx, req)
	require.Error(t, err)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))

	// Same phone, everything else fresh.
	req = registerRequest()
	req.Username = "third"
	req.Email = "third@example.com"
	_, err = service.Register(ctx, req)
	require.Error(t, err)
	assert.Equal(t, apperr.Conflict, apperr.KindOf(err))
}

func TestRegisterValidation(t *testing.T) {
	service, bunDB := setupService(t)
	defer bunDB.Close()

	req := registerRequest()
	req.Email = "not-an-email"
	_, err := service.Register(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	req = registerRequest()
	req.Password = "short"
	_, err = service.Register(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestLoginIssuesToken(t *testing.T) {
	service, bunDB := setupService(t)
	defer bunDB.Close()
	ctx := context.Background()

	user, err := service.Register(ctx, registerRequest())
	require.NoError(t, err)

	token, err := service.Login(ctx, models.LoginRequest{Email: "driver@example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.NotEmpty(t, token.AccessToken)
	assert.Equal(t, "bearer", token.TokenType)
	assert.Equal(t, user.UserID, token.UserID)
	assert.Equal(t, "User", token.Role)
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	service, bunDB := setupService(t)
	defer bunDB.Close()
	ctx := context.Background()

	_, err := service.Register(ctx, registerRequest())
	require.NoError(t, err)

	_, err = service.Login(ctx, models.LoginRequest{Email: "driver@example.com", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))

	// Unknown email reads the same as a wrong password.
	_, err = service.Login(ctx, models.LoginRequest{Email: "nobody@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestLoginRefusesBlacklistedUser(t *testing.T) {
	service, bunDB := setupService(t)
	defer bunDB.Close()
	ctx := context.Background()

	user, err := service.Register(ctx, registerRequest())
	require.NoError(t, err)

	require.NoError(t, service.SetUserStatus(ctx, user.UserID, models.UserStatusBlack))

	_, err = service.Login(ctx, models.LoginRequest{Email: "driver@example.com", Password: "secret1"})
	require.Error(t, err)
	assert.Equal(t, apperr.PolicyViolation, apperr.KindOf(err))
}

func TestSetUserStatusValidatesValue(t *testing.T) {
	service, bunDB := setupService(t)
	defer bunDB.Close()

	err := service.SetUserStatus(context.Background(), 1, "Grey")
	require.Error(t, err)
	assert.Equal(t, apperr.Validation, apperr.KindOf(err))
}

func TestProfileIncludesBookings(t *testing.T) {
	service, bunDB := setupService(t)
	defer bunDB.Close()
	ctx := context.Background()

	user, err := service.Register(ctx, registerRequest())
	require.NoError(t, err)

	profile, err := service.Profile(ctx, user.UserID)
	require.NoError(t, err)
	assert.Equal(t, "driver", profile.Username)
	assert.Equal(t, "driver@example.com", profile.Email)
	assert.NotNil(t, profile.Bookings)
}
