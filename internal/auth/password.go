package auth

import (
	"github.com/safar/go-shop/internal/apperr"
	"golang.org/x/crypto/bcrypt"
)

var ErrPasswordTooShort = apperr.New(apperr.KindInvalid, "password_too_short", "password must be at least 8 characters")

const minPasswordLength = 8

var bcryptCost = 12

func HashPassword(password string) (string, error) {
	if len(password) < minPasswordLength {
		return "", ErrPasswordTooShort
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

func CheckPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
