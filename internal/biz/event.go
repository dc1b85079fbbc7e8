package biz

import (
	"context"
	"errors"
	"time"
)

// ErrDuplicateEvent 事件已被处理过 (按提供方事件 ID 去重)
var ErrDuplicateEvent = errors.New("webhook event already recorded")

// EventMeta 事件公共元数据
type EventMeta struct {
	ProviderEventID string
	EventType       string
	OccurredAt      time.Time
}

// Meta 返回事件元数据
func (m EventMeta) Meta() EventMeta { return m }

// Event 已验证的提供方事件, 封闭变体集合
// 每种事件类型携带强类型负载, 由 Reconciler 做穷举分发
type Event interface {
	Meta() EventMeta
	// lockKey 对账锁的键, 按受影响账户的查找键划分
	lockKey() string
	isEvent()
}

// CheckoutCompleted 结账完成事件
type CheckoutCompleted struct {
	EventMeta
	UID            string
	SubscriptionID string
	CustomerID     string
}

// SubscriptionCreated 订阅创建事件
type SubscriptionCreated struct {
	EventMeta
	CustomerID     string
	SubscriptionID string
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// SubscriptionUpdated 订阅更新事件
type SubscriptionUpdated struct {
	EventMeta
	SubscriptionID string
	ProviderStatus string
	PeriodStart    time.Time
	PeriodEnd      time.Time
}

// SubscriptionDeleted 订阅删除事件
type SubscriptionDeleted struct {
	EventMeta
	SubscriptionID string
	CanceledAt     time.Time
}

// PaymentSucceeded 支付成功事件, 金额为实际支付金额 (最小货币单位)
type PaymentSucceeded struct {
	EventMeta
	SubscriptionID string
	InvoiceID      string
	AmountPaid     int64
	Currency       string
}

// PaymentFailed 支付失败事件, 金额为应付金额 (最小货币单位)
type PaymentFailed struct {
	EventMeta
	SubscriptionID string
	InvoiceID      string
	AmountDue      int64
	Currency       string
}

func (e *CheckoutCompleted) lockKey() string   { return "uid:" + e.UID }
func (e *SubscriptionCreated) lockKey() string { return "customer:" + e.CustomerID }
func (e *SubscriptionUpdated) lockKey() string { return "subscription:" + e.SubscriptionID }
func (e *SubscriptionDeleted) lockKey() string { return "subscription:" + e.SubscriptionID }
func (e *PaymentSucceeded) lockKey() string    { return "subscription:" + e.SubscriptionID }
func (e *PaymentFailed) lockKey() string       { return "subscription:" + e.SubscriptionID }

func (*CheckoutCompleted) isEvent()   {}
func (*SubscriptionCreated) isEvent() {}
func (*SubscriptionUpdated) isEvent() {}
func (*SubscriptionDeleted) isEvent() {}
func (*PaymentSucceeded) isEvent()    {}
func (*PaymentFailed) isEvent()       {}

// WebhookEventRepo 已处理事件仓库接口 (去重与留存)
type WebhookEventRepo interface {
	RecordEvent(ctx context.Context, providerEventID, eventType string, payload []byte) error
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
