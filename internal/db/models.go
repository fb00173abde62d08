package db

import (
	"time"

	"github.com/dkeye/Tandem/internal/domain"
)

type UserRecord struct {
	ID        string `gorm:"primaryKey;size:64"`
	Name      string `gorm:"size:64;not null"`
	Avatar    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (UserRecord) TableName() string { return "users" }

// CredentialRecord holds one provider link; unlinking deletes the row.
type CredentialRecord struct {
	ID           uint   `gorm:"primaryKey"`
	UserID       string `gorm:"size:64;not null;uniqueIndex:idx_user_provider"`
	Provider     string `gorm:"size:32;not null;uniqueIndex:idx_user_provider"`
	ClientID     string
	Username     string
	Avatar       string
	AccessToken  string
	RefreshToken string
	Expiry       *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (CredentialRecord) TableName() string { return "credentials" }

func (r CredentialRecord) toDomain() domain.Credential {
	c := domain.Credential{
		ClientID:     r.ClientID,
		Username:     r.Username,
		Avatar:       r.Avatar,
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
	}
	if r.Expiry != nil {
		c.Expiry = r.Expiry.UTC()
	}
	return c
}

func (r *CredentialRecord) apply(c domain.Credential) {
	r.ClientID = c.ClientID
	r.Username = c.Username
	r.Avatar = c.Avatar
	r.AccessToken = c.AccessToken
	r.RefreshToken = c.RefreshToken
	r.Expiry = expiryPtr(c.Expiry)
}

func expiryPtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}
