package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/safar/go-shop/internal/database"
	"github.com/safar/go-shop/internal/models"
)

const userColumns = `id, email, password_hash, full_name, phone, role, is_email_verified, created_at, updated_at, version`

func scanUser(row rowScanner, u *models.User) error {
	return row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FullName,
		&u.Phone,
		&u.Role,
		&u.IsEmailVerified,
		&u.CreatedAt,
		&u.UpdatedAt,
		&u.Version,
	)
}

// CreateUser stores emails lower-cased; lookups by email do the same.
func CreateUser(ctx context.Context, q database.Querier, u models.User) (*models.User, error) {
	if u.Role == "" {
		u.Role = models.RoleClient
	}
	user := &models.User{}

	query := `
		INSERT INTO users (email, password_hash, full_name, phone, role, is_email_verified, created_at, updated_at, version)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW(), 1)
		RETURNING ` + userColumns

	row := q.QueryRowContext(ctx, query, normalizeEmail(u.Email), u.PasswordHash, u.FullName, u.Phone, u.Role, u.IsEmailVerified)
	if err := scanUser(row, user); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return user, nil
}

func GetUser(ctx context.Context, q database.Querier, id int64) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	if err := scanUser(q.QueryRowContext(ctx, query, id), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}

	return user, nil
}

func GetUserByEmail(ctx context.Context, q database.Querier, email string) (*models.User, error) {
	user := &models.User{}

	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`

	if err := scanUser(q.QueryRowContext(ctx, query, normalizeEmail(email)), user); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}

	return user, nil
}

// UpdateProfile writes the name and phone of u.
func UpdateProfile(ctx context.Context, q database.Querier, u *models.User) error {
	query := `
		UPDATE users
		SET full_name = $1, phone = $2, updated_at = NOW(), version = version + 1
		WHERE id = $3
		RETURNING updated_at, version`

	err := q.QueryRowContext(ctx, query, u.FullName, u.Phone, u.ID).Scan(&u.UpdatedAt, &u.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

func MarkEmailVerified(ctx context.Context, q database.Querier, userID int64) error {
	result, err := q.ExecContext(ctx, `
		UPDATE users
		SET is_email_verified = TRUE, updated_at = NOW(), version = version + 1
		WHERE id = $1`, userID)
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark email verified: %w", err)
	}
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

const addressColumns = `id, user_id, street, city, state, postal_code, country, is_active, created_at`

func scanAddress(row rowScanner, a *models.Address) error {
	return row.Scan(
		&a.ID,
		&a.UserID,
		&a.Street,
		&a.City,
		&a.State,
		&a.PostalCode,
		&a.Country,
		&a.IsActive,
		&a.CreatedAt,
	)
}

func CreateAddress(ctx context.Context, q database.Querier, a models.Address) (*models.Address, error) {
	addr := &models.Address{}

	query := `
		INSERT INTO addresses (user_id, street, city, state, postal_code, country, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW())
		RETURNING ` + addressColumns

	row := q.QueryRowContext(ctx, query, a.UserID, a.Street, a.City, a.State, a.PostalCode, a.Country)
	if err := scanAddress(row, addr); err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("create address: %w", err)
	}

	return addr, nil
}

// GetUserAddress only returns active addresses owned by userID; anything else
// is reported as not found so callers cannot probe other users' addresses.
func GetUserAddress(ctx context.Context, q database.Querier, userID, addressID int64) (*models.Address, error) {
	addr := &models.Address{}

	query := `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE id = $1 AND user_id = $2 AND is_active`

	if err := scanAddress(q.QueryRowContext(ctx, query, addressID, userID), addr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAddressNotFound
		}
		return nil, fmt.Errorf("get address: %w", err)
	}

	return addr, nil
}

func ListUserAddresses(ctx context.Context, q database.Querier, userID int64) ([]models.Address, error) {
	query := `
		SELECT ` + addressColumns + `
		FROM addresses
		WHERE user_id = $1 AND is_active
		ORDER BY id`

	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}
	defer rows.Close()

	addrs := []models.Address{}
	for rows.Next() {
		var a models.Address
		if err := scanAddress(rows, &a); err != nil {
			return nil, fmt.Errorf("scan address: %w", err)
		}
		addrs = append(addrs, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return addrs, nil
}
