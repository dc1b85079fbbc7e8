package biz

import (
	"context"
	"time"
)

// Account 用户账户记录
// 账户由外部系统创建, 本服务只根据提供方事件变更订阅相关字段, 从不删除
type Account struct {
	UID                string
	SubscriptionStatus string // trial, active, inactive, past_due, expired
	SubscriptionID     string
	CustomerID         string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	TrialEndDate       *time.Time
	CanceledAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AccountRepo 账户仓库接口
// 查找未命中时返回 (nil, nil), 由调用方决定处理策略
type AccountRepo interface {
	GetAccount(ctx context.Context, uid string) (*Account, error)
	GetAccountByCustomerID(ctx context.Context, customerID string) (*Account, error)
	GetAccountBySubscriptionID(ctx context.Context, subscriptionID string) (*Account, error)
	SaveAccount(ctx context.Context, acct *Account) error
	// 批量操作（用于定时任务）
	ExpireLapsed(ctx context.Context, cutoff time.Time) (int, []string, error)
}

// ProviderClient 支付提供方客户端接口 (防腐层)
type ProviderClient interface {
	GetSubscription(ctx context.Context, subscriptionID string) (*ProviderSubscription, error)
}

// ProviderSubscription 提供方侧的订阅快照
type ProviderSubscription struct {
	SubscriptionID string
	Status         string
	PeriodStart    time.Time
	PeriodEnd      time.Time
}
