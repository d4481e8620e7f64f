// Package visitors maps browsers to stable numeric visitor ids across
// sessions.
package visitors

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/karloscodes/cartridge/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ctabeacon/internal/requestctx"
)

const (
	// CookieName holds the long-lived visitor token.
	CookieName = "cta_visitor"
	cookieTTL  = 365 * 24 * time.Hour
)

// Visitor is a browser seen by the tracker. Only a salted hash of the
// cookie token is stored.
type Visitor struct {
	ID          uint      `gorm:"primaryKey"`
	Signature   string    `gorm:"uniqueIndex;size:64;not null"`
	FirstSeenAt time.Time `gorm:"not null"`
	LastSeenAt  time.Time `gorm:"index;not null"`
}

// BuildSignature hashes the visitor token with the installation salt.
func BuildSignature(token, salt string) string {
	hash := sha256.Sum256([]byte(salt + "." + token))
	return hex.EncodeToString(hash[:])
}

// Store resolves and persists visitors.
type Store struct {
	db     *gorm.DB
	salt   string
	logger *slog.Logger
	now    func() time.Time
}

// NewStore creates a store. salt should be the application private key.
func NewStore(db *gorm.DB, salt string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, salt: salt, logger: logger, now: time.Now}
}

var _ requestctx.VisitorStore = (*Store)(nil)

// ResolveVisitorID returns the visitor id for the browser behind r, issuing
// a visitor cookie on first contact. Failures are logged and yield nil.
func (s *Store) ResolveVisitorID(ctx context.Context, r requestctx.Request) *uint {
	token := r.Cookie(CookieName)
	if !validToken(token) {
		fresh, err := uuid.NewRandom()
		if err != nil {
			s.logger.Error("Failed to generate visitor token", slog.Any("error", err))
			return nil
		}
		token = fresh.String()
		r.SetCookie(requestctx.Cookie{
			Name:     CookieName,
			Value:    token,
			Path:     "/",
			MaxAge:   int(cookieTTL.Seconds()),
			HTTPOnly: true,
			Secure:   r.Secure(),
			SameSite: "Lax",
		})
	}

	id, err := s.FindOrCreate(ctx, BuildSignature(token, s.salt))
	if err != nil {
		s.logger.Error("Failed to resolve visitor", slog.Any("error", err))
		return nil
	}
	return &id
}

// FindOrCreate returns the id for signature, inserting a row when needed.
func (s *Store) FindOrCreate(ctx context.Context, signature string) (uint, error) {
	now := s.now().UTC()

	var visitor Visitor
	err := s.db.WithContext(ctx).Where("signature = ?", signature).First(&visitor).Error
	if err == nil {
		s.touch(ctx, &visitor, now)
		return visitor.ID, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("failed to query visitor: %w", err)
	}

	visitor = Visitor{Signature: signature, FirstSeenAt: now, LastSeenAt: now}
	err = sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&visitor).Error
	})
	if err != nil {
		return 0, fmt.Errorf("failed to create visitor: %w", err)
	}
	if visitor.ID != 0 {
		return visitor.ID, nil
	}

	// Lost an insert race; the row exists now.
	if err := s.db.WithContext(ctx).Where("signature = ?", signature).First(&visitor).Error; err != nil {
		return 0, fmt.Errorf("failed to reload visitor: %w", err)
	}
	return visitor.ID, nil
}

// touch refreshes last_seen_at at most once per hour.
func (s *Store) touch(ctx context.Context, v *Visitor, now time.Time) {
	if now.Sub(v.LastSeenAt) < time.Hour {
		return
	}
	err := sqlite.PerformWrite(s.logger, s.db.WithContext(ctx), func(tx *gorm.DB) error {
		return tx.Model(v).Update("last_seen_at", now).Error
	})
	if err != nil {
		s.logger.Warn("Failed to refresh visitor", slog.Uint64("visitor_id", uint64(v.ID)), slog.Any("error", err))
	}
}

func validToken(token string) bool {
	if token == "" {
		return false
	}
	_, err := uuid.Parse(token)
	return err == nil
}
