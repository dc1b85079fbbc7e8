package biz

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicatePaymentRecord 同一提供方事件的支付记录已存在
var ErrDuplicatePaymentRecord = errors.New("payment record already recorded")

// PaymentRecord 支付记录, 只追加从不修改
type PaymentRecord struct {
	PaymentRecordID string
	UID             string
	SubscriptionID  string
	InvoiceID       string
	ProviderEventID string
	Amount          int64 // 最小货币单位
	Currency        string
	Status          string // succeeded, failed
	CreatedAt       time.Time
}

// PaymentRecordRepo 支付记录仓库接口
type PaymentRecordRepo interface {
	AddPaymentRecord(ctx context.Context, rec *PaymentRecord) error
	GetPaymentHistory(ctx context.Context, uid string, page, pageSize int) ([]*PaymentRecord, int, error)
}
