package constants

import "time"

// 缓存相关常量
const (
	// DefaultCacheExpiration 默认缓存过期时间
	DefaultCacheExpiration = time.Hour
	// NullCacheExpiration 空值缓存过期时间 (防止缓存穿透)
	NullCacheExpiration = 5 * time.Minute
)

// 分页相关常量
const (
	// DefaultPageSize 默认分页大小
	DefaultPageSize = 10
	// MaxPageSize 最大分页大小
	MaxPageSize = 100
)

// 订阅状态
const (
	StatusTrial    = "trial"
	StatusActive   = "active"
	StatusInactive = "inactive"
	StatusPastDue  = "past_due"
	StatusExpired  = "expired"
)

// 支付记录状态
const (
	PaymentStatusSucceeded = "succeeded"
	PaymentStatusFailed    = "failed"
)

// 支付提供方事件类型 (Stripe)
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventSubscriptionCreated = "customer.subscription.created"
	EventSubscriptionUpdated = "customer.subscription.updated"
	EventSubscriptionDeleted = "customer.subscription.deleted"
	EventPaymentSucceeded    = "invoice.payment_succeeded"
	EventPaymentFailed       = "invoice.payment_failed"
)

// 提供方订阅状态 (只有 active 视为已激活)
const (
	ProviderStatusActive = "active"
)

// 账户查找失败处理策略
const (
	// MissPolicyIgnore 未找到账户时记录日志并确认事件
	MissPolicyIgnore = "ignore"
	// MissPolicyRetry 未找到账户时返回错误, 由提供方重投
	MissPolicyRetry = "retry"
)

// Webhook 请求限制
const (
	// MaxWebhookBodyBytes webhook 请求体大小上限
	MaxWebhookBodyBytes = 1 << 20 // 1 MiB
)

// 分布式锁相关常量
const (
	// ReconcileLockExpiration 对账锁过期时间
	ReconcileLockExpiration = 30 * time.Second
	// ReconcileLockRetries 对账锁重试次数
	ReconcileLockRetries = 1
)

// 维护任务相关常量
const (
	// DefaultEventRetentionDays 已处理事件默认保留天数
	DefaultEventRetentionDays = 30
	// DefaultExpiryGraceDays 订阅周期结束后的宽限天数, 超过后标记为过期
	DefaultExpiryGraceDays = 3
)
