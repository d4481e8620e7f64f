// Package operators manages the administrator accounts allowed to see CTA
// diagnostics and statistics.
package operators

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/karloscodes/cartridge/crypto"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
)

type Operator struct {
	ID                uint   `gorm:"primaryKey"`
	Email             string `gorm:"uniqueIndex;not null"`
	EncryptedPassword string `gorm:"not null"`
	LastLoginAt       *time.Time
	CreatedAt         time.Time `gorm:"autoCreateTime"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime"`
}

var (
	// ErrOperatorExists is returned when the email is already registered.
	ErrOperatorExists = errors.New("operator already exists")
	// ErrOperatorNotFound is returned when a lookup fails.
	ErrOperatorNotFound = gorm.ErrRecordNotFound
	// ErrInvalidCredentials is returned by Authenticate for any mismatch.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// bcrypt hash of "dummy", compared against when the email is unknown so
// both failure paths take the same time.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// FindByEmail retrieves an operator by email.
func FindByEmail(db *gorm.DB, email string) (*Operator, error) {
	var op Operator
	if err := db.Where("email = ?", normalizeEmail(email)).First(&op).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

// FindByID retrieves an operator by ID.
func FindByID(db *gorm.DB, id uint) (*Operator, error) {
	var op Operator
	if err := db.Where("id = ?", id).First(&op).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

// Create registers an operator. It returns ErrOperatorExists if the email is taken.
func Create(db *gorm.DB, logger *slog.Logger, email, password string) (*Operator, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, errors.New("email cannot be empty")
	}
	if password == "" {
		return nil, errors.New("password cannot be empty")
	}

	if _, err := FindByEmail(db, email); err == nil {
		return nil, ErrOperatorExists
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	hashed, err := crypto.GeneratePasswordHash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	op := &Operator{Email: email, EncryptedPassword: string(hashed)}
	if err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Create(op).Error
	}); err != nil {
		return nil, err
	}
	logger.Info("Created operator", slog.String("email", email))
	return op, nil
}

// ChangePassword replaces the password of the operator with email.
func ChangePassword(db *gorm.DB, logger *slog.Logger, email, password string) error {
	if password == "" {
		return errors.New("password cannot be empty")
	}

	op, err := FindByEmail(db, email)
	if err != nil {
		return err
	}

	hashed, err := crypto.GeneratePasswordHash(password)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(op).Update("encrypted_password", string(hashed)).Error
	})
}

// Authenticate checks the credentials and records the login time.
func Authenticate(db *gorm.DB, logger *slog.Logger, email, password string) (*Operator, error) {
	op, err := FindByEmail(db, email)
	if err != nil {
		crypto.VerifyPassword(dummyHash, password)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !crypto.VerifyPassword(op.EncryptedPassword, password) {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := sqlite.PerformWrite(logger, db, func(tx *gorm.DB) error {
		return tx.Model(op).Update("last_login_at", now).Error
	}); err != nil {
		logger.Warn("Failed to record login time", slog.Uint64("operator_id", uint64(op.ID)), slog.Any("error", err))
	}
	op.LastLoginAt = &now
	return op, nil
}

// Count returns the number of operators.
func Count(db *gorm.DB) (int64, error) {
	var n int64
	err := db.Model(&Operator{}).Count(&n).Error
	return n, err
}
