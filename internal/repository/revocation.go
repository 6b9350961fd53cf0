package repository

import (
	"context"
	"time"

	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/models"
	"github.com/ahmetcoskunkizilkaya/rsk-backend/internal/tokens"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TokenRevocations is a postgres-backed tokens.Blacklist, used when no
// redis is configured.
type TokenRevocations struct {
	db *gorm.DB
}

func NewTokenRevocations(db *gorm.DB) *TokenRevocations {
	return &TokenRevocations{db: db}
}

func (r *TokenRevocations) Add(ctx context.Context, entry tokens.BlacklistEntry) error {
	row := models.RevokedToken{
		JTI:       entry.JTI,
		ExpiresAt: entry.ExpiresAt,
		RevokedAt: entry.BlacklistedAt,
	}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	return translate(err, "failed to revoke token %s", entry.JTI)
}

func (r *TokenRevocations) Contains(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.RevokedToken{}).
		Where("jti = ? AND expires_at > ?", jti, time.Now()).
		Count(&count).Error
	if err != nil {
		return false, translate(err, "failed to check token %s", jti)
	}
	return count > 0, nil
}

// PurgeExpired drops rows for tokens that have expired on their own.
func (r *TokenRevocations) PurgeExpired(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Where("expires_at <= ?", time.Now()).Delete(&models.RevokedToken{})
	return res.RowsAffected, translate(res.Error, "failed to purge revoked tokens")
}
