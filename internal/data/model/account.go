package model

import "time"

// Account 账户模型
type Account struct {
	UID                string     `gorm:"primaryKey;column:uid;type:varchar(36)"`
	SubscriptionStatus string     `gorm:"column:subscription_status"` // trial, active, inactive, past_due, expired
	SubscriptionID     string     `gorm:"column:subscription_id;index"`
	CustomerID         string     `gorm:"column:customer_id;index"`
	CurrentPeriodStart *time.Time `gorm:"column:current_period_start"`
	CurrentPeriodEnd   *time.Time `gorm:"column:current_period_end"`
	TrialEndDate       *time.Time `gorm:"column:trial_end_date"`
	CanceledAt         *time.Time `gorm:"column:canceled_at"`
	CreatedAt          time.Time  `gorm:"column:created_at"`
	UpdatedAt          time.Time  `gorm:"column:updated_at"`
}

func (Account) TableName() string { return "account" }
