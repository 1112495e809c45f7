package models

import "time"

// AccountQuota is the conversation-minutes ledger row of one account.
// UsedMinutes is only changed through the ledger's conditional updates.
type AccountQuota struct {
	AccountID    string    `gorm:"column:account_id;type:uuid;primaryKey" json:"account_id"`
	TotalMinutes int       `gorm:"column:total_minutes;not null;default:0" json:"total_minutes"`
	UsedMinutes  int       `gorm:"column:used_minutes;not null;default:0" json:"used_minutes"`
	UpdatedAt    time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (AccountQuota) TableName() string { return "account_quotas" }

func (q AccountQuota) Remaining() int {
	if q.UsedMinutes >= q.TotalMinutes {
		return 0
	}
	return q.TotalMinutes - q.UsedMinutes
}

// QuotaSnapshot is the read model returned to callers.
type QuotaSnapshot struct {
	TotalMinutes     int `json:"total_minutes"`
	UsedMinutes      int `json:"used_minutes"`
	RemainingMinutes int `json:"remaining_minutes"`
}

func (q AccountQuota) Snapshot() QuotaSnapshot {
	return QuotaSnapshot{
		TotalMinutes:     q.TotalMinutes,
		UsedMinutes:      q.UsedMinutes,
		RemainingMinutes: q.Remaining(),
	}
}
