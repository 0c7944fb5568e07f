package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Refret28/microservice-booking/internal/apperr"
	"github.com/Refret28/microservice-booking/internal/auth"
	"github.com/Refret28/microservice-booking/internal/logger"
	"github.com/Refret28/microservice-booking/internal/models"

	"golang.org/x/crypto/bcrypt"
)

// DBLayer is the storage surface of the user registry.
type DBLayer interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, userID int64) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetUserStatus(ctx context.Context, userID int64, status string) error
}

// BookingReader supplies the bookings shown on the account page.
type BookingReader interface {
	UserBookings(ctx context.Context, userID int64) ([]models.BookingDetails, error)
}

type Service struct {
	db       DBLayer
	bookings BookingReader
	issuer   *auth.TokenIssuer
	sessions *auth.SessionCache
	tokenTTL time.Duration
	log      *logger.Logger
}

func NewService(db DBLayer, bookings BookingReader, issuer *auth.TokenIssuer, sessions *auth.SessionCache, tokenTTL time.Duration, log *logger.Logger) *Service {
	return &Service{
		db:       db,
		bookings: bookings,
		issuer:   issuer,
		sessions: sessions,
		tokenTTL: tokenTTL,
		log:      log,
	}
}

// Register creates an account. Passwords are stored as bcrypt hashes.
func (s *Service) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if req.Username == "" || req.Email == "" || req.Password == "" {
		return nil, apperr.New(apperr.Validation, "username, email and password are required")
	}
	if !strings.Contains(req.Email, "@") {
		return nil, apperr.New(apperr.Validation, "email is invalid")
	}
	if len(req.Password) < 6 {
		return nil, apperr.New(apperr.Validation, "password must be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unexpected, "failed to hash password", err)
	}

	user := &models.User{
		Username:    req.Username,
		Password:    string(hash),
		Email:       req.Email,
		PhoneNumber: req.Phone,
		Status:      models.UserStatusWhite,
		Role:        string(auth.RoleUser),
		CreatedAt:   time.Now(),
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info("USERS", fmt.Sprintf("registered user %d (%s)", user.UserID, user.Username))
	return user, nil
}

// Login verifies credentials and issues a bearer token. Blacklisted
// users are refused even with a correct password.
func (s *Service) Login(ctx context.Context, req models.LoginRequest) (*models.TokenResponse, error) {
	user, err := s.db.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if apperr.KindOf(err) == apperr.NotFound {
			return nil, apperr.New(apperr.Validation, "invalid email or password")
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, apperr.New(apperr.Validation, "invalid email or password")
	}

	if user.Status == models.UserStatusBlack {
		return nil, apperr.New(apperr.PolicyViolation, "your account is blocked, contact support")
	}

	role := auth.ParseRole(user.Role)
	token, err := s.issuer.Issue(user.Email, user.UserID, role)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unexpected, "failed to issue token", err)
	}

	// Session tracking is best effort; auth works off the token alone.
	if err := s.sessions.Save(ctx, user.UserID, token, s.tokenTTL); err != nil {
		s.log.Warn("REDIS", fmt.Sprintf("failed to cache session for user %d: %v", user.UserID, err))
	}

	s.log.Info("USERS", fmt.Sprintf("user %d logged in", user.UserID))
	return &models.TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		UserID:      user.UserID,
		Role:        string(role),
	}, nil
}

// Logout revokes the cached session.
func (s *Service) Logout(ctx context.Context, userID int64) error {
	if err := s.sessions.Revoke(ctx, userID); err != nil {
		s.log.Warn("REDIS", fmt.Sprintf("failed to revoke session for user %d: %v", userID, err))
	}
	return nil
}

// Profile assembles the account page: user data plus bookings.
func (s *Service) Profile(ctx context.Context, userID int64) (*models.UserProfile, error) {
	user, err := s.db.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	bookings, err := s.bookings.UserBookings(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &models.UserProfile{
		Username: user.Username,
		Email:    user.Email,
		Phone:    user.PhoneNumber,
		Bookings: bookings,
	}, nil
}

// ListUsers is the admin user index.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.db.ListUsers(ctx)
}

// SetUserStatus moves a user onto or off the blacklist.
func (s *Service) SetUserStatus(ctx context.Context, userID int64, status string) error {
	if status != models.UserStatusWhite && status != models.UserStatusBlack {
		return apperr.New(apperr.Validation, "status must be White or Black")
	}
	if err := s.db.SetUserStatus(ctx, userID, status); err != nil {
		return err
	}
	s.log.Info("ADMIN", fmt.Sprintf("user %d status set to %s", userID, status))
	return nil
}
