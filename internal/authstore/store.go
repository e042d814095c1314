// Package authstore is the gorm-backed store behind the Gateway's ingress
// API-key authentication: every inbound channel integration presents a
// bearer token that resolves to an APIKey row naming the sender role it
// is allowed to act as (spec.md §6 treats ingress auth as a Non-goal
// collaborator contract; this package is the concrete implementation
// SPEC_FULL.md's DOMAIN STACK commits to).
package authstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/shreya-uprety/medforce-gateway/gateway/events"
)

// ErrNotFound is returned when no matching, active API key exists.
var ErrNotFound = errors.New("authstore: not found")

// APIKey is the persisted record behind one issued bearer token. The
// plaintext token is never stored, only its SHA-256 hash.
type APIKey struct {
	ID         uint   `gorm:"primaryKey"`
	KeyHash    string `gorm:"uniqueIndex;size:64;not null"`
	Label      string `gorm:"size:255"`
	Role       string `gorm:"size:32;not null"`
	Enabled    bool   `gorm:"not null;default:true"`
	CreatedAt  time.Time
	LastUsedAt *time.Time
	RevokedAt  *time.Time
}

// TableName pins the table name regardless of gorm's pluralization rules,
// matching the migration's literal "api_keys".
func (APIKey) TableName() string { return "api_keys" }

// SenderRole returns the events.SenderRole this key authenticates as.
func (k APIKey) SenderRole() events.SenderRole { return events.SenderRole(k.Role) }

// Active reports whether the key can currently authenticate a request.
func (k APIKey) Active() bool { return k.Enabled && k.RevokedAt == nil }

// Store wraps a gorm.DB scoped to the api_keys table.
type Store struct {
	db *gorm.DB
}

// New wraps an existing gorm connection. Callers on Postgres should have
// already run internal/migration's migrator; callers on SQLite (local
// dev, tests) should call AutoMigrate instead.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates the api_keys table via gorm's schema inference. Only
// used for the SQLite driver path, where golang-migrate has no source
// driver wired (see internal/migration.DatabaseType).
func (s *Store) AutoMigrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&APIKey{})
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// newToken generates a URL-safe random bearer token. 32 bytes of entropy,
// base64-encoded.
func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("authstore: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Issue creates a new API key for role and returns the plaintext token
// exactly once; only its hash is persisted.
func (s *Store) Issue(ctx context.Context, label string, role events.SenderRole) (string, *APIKey, error) {
	token, err := newToken()
	if err != nil {
		return "", nil, err
	}

	rec := &APIKey{
		KeyHash: hashToken(token),
		Label:   label,
		Role:    string(role),
		Enabled: true,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return "", nil, fmt.Errorf("authstore: issue: %w", err)
	}
	return token, rec, nil
}

// Verify resolves a presented bearer token to its active APIKey record,
// stamping LastUsedAt. Returns ErrNotFound if the token is unknown,
// disabled, or revoked.
func (s *Store) Verify(ctx context.Context, token string) (*APIKey, error) {
	var rec APIKey
	err := s.db.WithContext(ctx).
		Where("key_hash = ? AND enabled = ? AND revoked_at IS NULL", hashToken(token), true).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("authstore: verify: %w", err)
	}

	now := time.Now().UTC()
	// Best-effort; a failed stamp must never block the caller's request.
	_ = s.db.WithContext(ctx).Model(&rec).Update("last_used_at", now).Error
	rec.LastUsedAt = &now
	return &rec, nil
}

// List returns every API key, most recently created first.
func (s *Store) List(ctx context.Context) ([]APIKey, error) {
	var recs []APIKey
	if err := s.db.WithContext(ctx).Order("id DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("authstore: list: %w", err)
	}
	return recs, nil
}

// Revoke disables id immediately. Revoking an unknown or already-revoked id
// returns ErrNotFound and changes nothing.
func (s *Store) Revoke(ctx context.Context, id uint) error {
	now := time.Now().UTC()
	res := s.db.WithContext(ctx).Model(&APIKey{}).
		Where("id = ? AND revoked_at IS NULL", id).
		Updates(map[string]any{"revoked_at": now, "enabled": false})
	if res.Error != nil {
		return fmt.Errorf("authstore: revoke: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
