package models

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

const (
	OperatorStatusActive   = "active"
	OperatorStatusDisabled = "disabled"

	apiKeyPrefix = "tfx_"
)

var apiKeyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Operator owns events and authenticates scanner devices and the management
// endpoints with an API key. Only the SHA-256 of the key is stored.
type Operator struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Name             string     `gorm:"type:varchar(100);not null" json:"name" validate:"required,min=2,max=100"`
	Email            string     `gorm:"type:varchar(191);uniqueIndex;not null" json:"email" validate:"required,email"`
	Status           string     `gorm:"type:varchar(20);not null;default:'active'" json:"status" validate:"oneof=active disabled"`
	APIKeyHash       string     `gorm:"type:char(64);uniqueIndex;not null" json:"-"`
	APIKeyPrefix     string     `gorm:"type:varchar(20);default:''" json:"api_key_prefix"`
	APIKeyCreatedAt  *time.Time `json:"api_key_created_at"`
	APIKeyLastUsedAt *time.Time `json:"api_key_last_used_at"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (o *Operator) IsActive() bool {
	return o != nil && o.Status == OperatorStatusActive && o.APIKeyHash != ""
}

// IssueAPIKey generates a new API key, stores its hash on the struct and
// returns the raw key. The caller shows it once and persists the struct.
func (o *Operator) IssueAPIKey() (string, error) {
	rawKey, prefix, hash, err := generateAPIKeyMaterial()
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	o.APIKeyHash = hash
	o.APIKeyPrefix = prefix
	o.APIKeyCreatedAt = &now
	o.APIKeyLastUsedAt = nil
	return rawKey, nil
}

// TouchAPIKeyUsage records the last use without bumping updated_at.
func (o *Operator) TouchAPIKeyUsage(db *gorm.DB) error {
	now := time.Now().UTC()
	o.APIKeyLastUsedAt = &now
	return db.Model(o).UpdateColumn("api_key_last_used_at", now).Error
}

// HashAPIKey returns the SHA-256 hash for the provided API key.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(raw)))
	return hex.EncodeToString(sum[:])
}

// FindOperatorByAPIKey resolves an active operator from a raw key.
func FindOperatorByAPIKey(db *gorm.DB, rawKey string) (*Operator, error) {
	rawKey = strings.TrimSpace(rawKey)
	if rawKey == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var op Operator
	if err := db.Where("api_key_hash = ? AND status = ?", HashAPIKey(rawKey), OperatorStatusActive).First(&op).Error; err != nil {
		return nil, err
	}
	return &op, nil
}

func generateAPIKeyMaterial() (string, string, string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", "", err
	}
	rawKey := apiKeyPrefix + strings.ToLower(apiKeyEncoding.EncodeToString(b))
	if len(rawKey) < 16 {
		return "", "", "", errors.New("api key generation failed: key too short")
	}
	return rawKey, rawKey[:16], HashAPIKey(rawKey), nil
}

// CreateOperator persists a new operator with a fresh key and returns the raw key.
func CreateOperator(db *gorm.DB, name, email string) (*Operator, string, error) {
	op := &Operator{Name: name, Email: strings.ToLower(strings.TrimSpace(email)), Status: OperatorStatusActive}
	rawKey, err := op.IssueAPIKey()
	if err != nil {
		return nil, "", err
	}
	if err := db.Create(op).Error; err != nil {
		return nil, "", fmt.Errorf("create operator: %w", err)
	}
	return op, rawKey, nil
}

// RotateOperatorAPIKey replaces the key of the operator with email. The old
// key stops working when the update commits.
func RotateOperatorAPIKey(db *gorm.DB, email string) (string, error) {
	var op Operator
	if err := db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&op).Error; err != nil {
		return "", err
	}
	rawKey, err := op.IssueAPIKey()
	if err != nil {
		return "", err
	}
	err = db.Model(&op).Updates(map[string]interface{}{
		"api_key_hash":         op.APIKeyHash,
		"api_key_prefix":       op.APIKeyPrefix,
		"api_key_created_at":   op.APIKeyCreatedAt,
		"api_key_last_used_at": nil,
	}).Error
	if err != nil {
		return "", fmt.Errorf("rotate api key: %w", err)
	}
	return rawKey, nil
}
