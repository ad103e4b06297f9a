package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/safar/go-shop/internal/apperr"
	"github.com/safar/go-shop/internal/models"
)

var (
	ErrInvalidToken = apperr.New(apperr.KindUnauthorized, "invalid_token", "invalid token")
	ErrExpiredToken = apperr.New(apperr.KindUnauthorized, "token_expired", "token has expired")
)

const (
	purposeAccess = "access"
	purposeVerify = "verify_email"

	verificationTokenTTL = 24 * time.Hour
)

type Claims struct {
	UserID  int64       `json:"user_id"`
	Email   string      `json:"email"`
	Role    models.Role `json:"role"`
	Purpose string      `json:"purpose"`
	jwt.RegisteredClaims
}

func (c *Claims) IsAdmin() bool { return c.Role == models.RoleAdmin }

type JWTService struct {
	secretKey         []byte
	accessTokenExpiry time.Duration
	now               func() time.Time
}

func NewJWTService(secretKey string, accessExpiry time.Duration) *JWTService {
	return &JWTService{
		secretKey:         []byte(secretKey),
		accessTokenExpiry: accessExpiry,
		now:               time.Now,
	}
}

func (s *JWTService) GenerateAccessToken(u *models.User) (string, time.Time, error) {
	expiresAt := s.now().Add(s.accessTokenExpiry)
	token, err := s.sign(Claims{UserID: u.ID, Email: u.Email, Role: u.Role, Purpose: purposeAccess}, expiresAt)
	return token, expiresAt, err
}

// GenerateVerificationToken issues the single-purpose token mailed to a new
// account. It cannot be used as an access token.
func (s *JWTService) GenerateVerificationToken(u *models.User) (string, error) {
	return s.sign(Claims{UserID: u.ID, Email: u.Email, Purpose: purposeVerify}, s.now().Add(verificationTokenTTL))
}

func (s *JWTService) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, purposeAccess)
}

func (s *JWTService) ValidateVerificationToken(tokenString string) (*Claims, error) {
	return s.validate(tokenString, purposeVerify)
}

func (s *JWTService) AccessTokenExpiry() time.Duration {
	return s.accessTokenExpiry
}

func (s *JWTService) sign(claims Claims, expiresAt time.Time) (string, error) {
	now := s.now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(now),
		Subject:   strconv.FormatInt(claims.UserID, 10),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secretKey)
}

func (s *JWTService) validate(tokenString, purpose string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secretKey, nil
	}, jwt.WithTimeFunc(s.now))

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Purpose != purpose || claims.UserID == 0 {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
