package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dkeye/Tandem/internal/credential"
	"github.com/dkeye/Tandem/internal/domain"
)

// UserStore implements credential.Store on top of gorm.
type UserStore struct {
	db *gorm.DB
}

var _ credential.Store = (*UserStore)(nil)

func NewUserStore(c *Client) *UserStore { return &UserStore{db: c.DB} }

func (s *UserStore) Get(ctx context.Context, id domain.UserID) (*domain.User, error) {
	var rec UserRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", string(id)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, credential.ErrUnknownUser
		}
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}

	var creds []CredentialRecord
	if err := s.db.WithContext(ctx).Where("user_id = ?", rec.ID).Find(&creds).Error; err != nil {
		return nil, fmt.Errorf("get credentials %s: %w", id, err)
	}

	u := &domain.User{ID: domain.UserID(rec.ID), Name: rec.Name, Avatar: rec.Avatar}
	for _, cr := range creds {
		p, err := domain.ParseProvider(cr.Provider)
		if err != nil {
			continue
		}
		u.Link(p, cr.toDomain())
	}
	return u, nil
}

func (s *UserStore) Save(ctx context.Context, u *domain.User) error {
	rec := UserRecord{ID: string(u.ID), Name: u.Name, Avatar: u.Avatar}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "avatar", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("save user %s: %w", u.ID, err)
	}
	return nil
}

func (s *UserStore) Link(ctx context.Context, id domain.UserID, p domain.Provider, c domain.Credential) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := userExists(tx, id); err != nil {
			return err
		}
		var rec CredentialRecord
		err := tx.Where("user_id = ? AND provider = ?", string(id), string(p)).First(&rec).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			rec = CredentialRecord{UserID: string(id), Provider: string(p)}
		case err != nil:
			return fmt.Errorf("load credential: %w", err)
		}
		rec.apply(credential.Merge(rec.toDomain(), c))
		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("link %s: %w", p, err)
		}
		return nil
	})
}

func (s *UserStore) Unlink(ctx context.Context, id domain.UserID, p domain.Provider) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := userExists(tx, id); err != nil {
			return err
		}
		err := tx.Where("user_id = ? AND provider = ?", string(id), string(p)).Delete(&CredentialRecord{}).Error
		if err != nil {
			return fmt.Errorf("unlink %s: %w", p, err)
		}
		return nil
	})
}

func (s *UserStore) UpdateAccessToken(ctx context.Context, id domain.UserID, p domain.Provider, prev, next string, expiry time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&CredentialRecord{}).
		Where("user_id = ? AND provider = ? AND access_token = ? AND client_id <> ''", string(id), string(p), prev).
		Updates(map[string]any{"access_token": next, "expiry": expiryPtr(expiry), "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return false, fmt.Errorf("update token: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	if err := userExists(s.db.WithContext(ctx), id); err != nil {
		return false, err
	}
	return false, nil
}

func userExists(tx *gorm.DB, id domain.UserID) error {
	var n int64
	if err := tx.Model(&UserRecord{}).Where("id = ?", string(id)).Count(&n).Error; err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if n == 0 {
		return credential.ErrUnknownUser
	}
	return nil
}
