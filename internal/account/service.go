// Package account owns registration, login, email verification and the
// profile data checkout depends on.
package account

import (
	"context"
	"database/sql"
	"net/mail"
	"strings"
	"time"

	"github.com/safar/go-shop/internal/apperr"
	"github.com/safar/go-shop/internal/auth"
	"github.com/safar/go-shop/internal/logging"
	"github.com/safar/go-shop/internal/models"
	"github.com/safar/go-shop/internal/notify"
	"github.com/safar/go-shop/internal/store"
	"go.uber.org/zap"
)

var (
	ErrInvalidEmail       = apperr.New(apperr.KindInvalid, "invalid_email", "invalid email address")
	ErrInvalidCredentials = apperr.New(apperr.KindUnauthorized, "invalid_credentials", "invalid email or password")
	ErrInvalidAddress     = apperr.New(apperr.KindInvalid, "invalid_address", "street, city, postal code and country are required")
)

type Notifier interface {
	Enqueue(msg notify.Message) bool
}

type Service struct {
	db       *sql.DB
	tokens   *auth.JWTService
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(db *sql.DB, tokens *auth.JWTService, notifier Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:       db,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger.Named("account"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// Register creates an unverified client account and queues the verification
// email. The account is usable for browsing and carts right away; ordering
// waits for verification.
func (s *Service) Register(ctx context.Context, req Registration) (*models.User, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(req.Email))
	if err != nil || addr.Name != "" {
		return nil, ErrInvalidEmail.With("email", req.Email)
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user, err := store.CreateUser(ctx, s.db, models.User{
		Email:        addr.Address,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(req.FullName),
		Phone:        strings.TrimSpace(req.Phone),
		Role:         models.RoleClient,
	})
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx, s.logger)
	log.Info("user registered", zap.Int64("user_id", user.ID))

	token, err := s.tokens.GenerateVerificationToken(user)
	if err != nil {
		log.Error("verification token not issued", zap.Int64("user_id", user.ID), zap.Error(err))
		return user, nil
	}
	if !s.notifier.Enqueue(notify.VerificationMessage(user.Email, user.ID, token, s.now())) {
		log.Warn("verification email not queued", zap.Int64("user_id", user.ID))
	}
	return user, nil
}

type Session struct {
	User      *models.User `json:"user"`
	Token     string       `json:"access_token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Login does not reveal whether the email exists.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := store.GetUserByEmail(ctx, s.db, email)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if user.PasswordHash == "" || !auth.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := s.tokens.GenerateAccessToken(user)
	if err != nil {
		return nil, apperr.Internal(err, "issue access token")
	}
	return &Session{User: user, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *Service) VerifyEmail(ctx context.Context, token string) (*models.User, error) {
	claims, err := s.tokens.ValidateVerificationToken(token)
	if err != nil {
		return nil, err
	}
	if err := store.MarkEmailVerified(ctx, s.db, claims.UserID); err != nil {
		return nil, err
	}
	return store.GetUser(ctx, s.db, claims.UserID)
}

func (s *Service) Profile(ctx context.Context, userID int64) (*models.User, error) {
	return store.GetUser(ctx, s.db, userID)
}

type ProfileUpdate struct {
	FullName *string `json:"full_name"`
	Phone    *string `json:"phone"`
}

func (s *Service) UpdateProfile(ctx context.Context, userID int64, u ProfileUpdate) (*models.User, error) {
	user, err := store.GetUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if u.FullName != nil {
		user.FullName = strings.TrimSpace(*u.FullName)
	}
	if u.Phone != nil {
		user.Phone = strings.TrimSpace(*u.Phone)
	}
	if err := store.UpdateProfile(ctx, s.db, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) AddAddress(ctx context.Context, userID int64, a models.Address) (*models.Address, error) {
	a.UserID = userID
	a.Street = strings.TrimSpace(a.Street)
	a.City = strings.TrimSpace(a.City)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.TrimSpace(a.Country)
	if a.Street == "" || a.City == "" || a.PostalCode == "" || a.Country == "" {
		return nil, ErrInvalidAddress
	}
	return store.CreateAddress(ctx, s.db, a)
}

func (s *Service) Addresses(ctx context.Context, userID int64) ([]models.Address, error) {
	return store.ListUserAddresses(ctx, s.db, userID)
}
