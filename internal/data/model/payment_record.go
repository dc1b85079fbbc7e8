package model

import "time"

// PaymentRecord 支付记录模型, 只追加
type PaymentRecord struct {
	PaymentRecordID string    `gorm:"primaryKey;column:payment_record_id;type:varchar(36)"`
	UID             string    `gorm:"column:uid;type:varchar(36);index"`
	SubscriptionID  string    `gorm:"column:subscription_id"`
	InvoiceID       string    `gorm:"column:invoice_id;index"`
	ProviderEventID string    `gorm:"column:provider_event_id;uniqueIndex"` // 同一事件只记一笔
	Amount          int64     `gorm:"column:amount"`                        // 最小货币单位
	Currency        string    `gorm:"column:currency;type:varchar(8)"`
	Status          string    `gorm:"column:status"` // succeeded, failed
	CreatedAt       time.Time `gorm:"column:created_at"`
}

func (PaymentRecord) TableName() string { return "payment_record" }
