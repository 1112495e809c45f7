package postgres

import (
	"context"
	"time"

	"github.com/yoockh/mockinterview/internal/models"
	"github.com/yoockh/mockinterview/internal/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuotaRepository owns the account_quotas table. Every mutation is a single
// conditional statement so concurrent callers cannot overdraw an account.
type QuotaRepository interface {
	Ensure(ctx context.Context, accountID string, defaultTotal int) error
	Get(ctx context.Context, accountID string) (*models.AccountQuota, error)
	// Reserve returns false when the account has fewer than minutes left.
	Reserve(ctx context.Context, accountID string, minutes int) (bool, error)
	Release(ctx context.Context, accountID string, minutes int) error
	// SetTotal returns false when total is below the minutes already used.
	SetTotal(ctx context.Context, accountID string, total int) (bool, error)
}

type quotaRepo struct {
	db *gorm.DB
}

func NewQuotaRepo(db *gorm.DB) QuotaRepository {
	return &quotaRepo{db: db}
}

func (r *quotaRepo) Ensure(ctx context.Context, accountID string, defaultTotal int) error {
	row := &models.AccountQuota{
		AccountID:    accountID,
		TotalMinutes: defaultTotal,
		UpdatedAt:    time.Now().UTC(),
	}
	err := conn(ctx, r.db).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "account_id"}}, DoNothing: true}).
		Create(row).Error
	return classify(err)
}

func (r *quotaRepo) Get(ctx context.Context, accountID string) (*models.AccountQuota, error) {
	var q models.AccountQuota
	err := conn(ctx, r.db).Where("account_id = ?", accountID).Take(&q).Error
	if err != nil {
		return nil, classify(err)
	}
	return &q, nil
}

func (r *quotaRepo) Reserve(ctx context.Context, accountID string, minutes int) (bool, error) {
	res := conn(ctx, r.db).
		Model(&models.AccountQuota{}).
		Where("account_id = ? AND total_minutes - used_minutes >= ?", accountID, minutes).
		Updates(map[string]any{
			"used_minutes": gorm.Expr("used_minutes + ?", minutes),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return false, classify(res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, accountID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *quotaRepo) Release(ctx context.Context, accountID string, minutes int) error {
	res := conn(ctx, r.db).
		Model(&models.AccountQuota{}).
		Where("account_id = ?", accountID).
		Updates(map[string]any{
			"used_minutes": gorm.Expr("CASE WHEN used_minutes > ? THEN used_minutes - ? ELSE 0 END", minutes, minutes),
			"updated_at":   time.Now().UTC(),
		})
	if res.Error != nil {
		return classify(res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.ErrNotFound
	}
	return nil
}

func (r *quotaRepo) SetTotal(ctx context.Context, accountID string, total int) (bool, error) {
	res := conn(ctx, r.db).
		Model(&models.AccountQuota{}).
		Where("account_id = ? AND used_minutes <= ?", accountID, total).
		Updates(map[string]any{
			"total_minutes": total,
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, classify(res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}
	if _, err := r.Get(ctx, accountID); err != nil {
		return false, err
	}
	return false, nil
}
