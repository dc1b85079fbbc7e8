package biz

import (
	"context"
	stdErrors "errors"
	"fmt"
	"time"

	"xinyuan_tech/billing-sync-service/internal/conf"
	"xinyuan_tech/billing-sync-service/internal/constants"
	"xinyuan_tech/billing-sync-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
	"github.com/google/uuid"
)

// ReconcilerUsecase 事件对账业务逻辑
// 将已验证的提供方事件映射为账户状态迁移和支付记录追加
type ReconcilerUsecase struct {
	accountRepo AccountRepo
	paymentRepo PaymentRecordRepo
	eventRepo   WebhookEventRepo
	provider    ProviderClient
	tx          Transaction
	rs          *redsync.Redsync
	config      *conf.Bootstrap
	log         *log.Helper
}

// NewReconcilerUsecase 创建事件对账业务用例
func NewReconcilerUsecase(
	accountRepo AccountRepo,
	paymentRepo PaymentRecordRepo,
	eventRepo WebhookEventRepo,
	provider ProviderClient,
	tx Transaction,
	rs *redsync.Redsync,
	config *conf.Bootstrap,
	logger log.Logger,
) *ReconcilerUsecase {
	return &ReconcilerUsecase{
		accountRepo: accountRepo,
		paymentRepo: paymentRepo,
		eventRepo:   eventRepo,
		provider:    provider,
		tx:          tx,
		rs:          rs,
		config:      config,
		log:         log.NewHelper(logger),
	}
}

// ProcessEvent 处理一个已验证的事件
// 返回值 duplicate=true 表示该事件 ID 已处理过, 本次未做任何变更
// 去重记录与状态迁移在同一事务中提交, 迁移失败时去重记录一并回滚,
// 提供方重投时可以重新处理
func (uc *ReconcilerUsecase) ProcessEvent(ctx context.Context, ev Event, payload []byte) (bool, error) {
	meta := ev.Meta()
	uc.log.Infof("ProcessEvent: id=%s, type=%s", meta.ProviderEventID, meta.EventType)

	// 按账户查找键加锁, 串行化同一账户的并发事件
	unlock, err := uc.lockEvent(ctx, ev.lockKey())
	if err != nil {
		return false, err
	}
	defer unlock()

	duplicate := false
	err = uc.tx.Exec(ctx, func(ctx context.Context) error {
		if err := uc.eventRepo.RecordEvent(ctx, meta.ProviderEventID, meta.EventType, payload); err != nil {
			if stdErrors.Is(err, ErrDuplicateEvent) {
				duplicate = true
				return nil
			}
			uc.log.Errorf("Failed to record event %s: %v", meta.ProviderEventID, err)
			return errors.New(errors.ErrCodeEventRecordFailed, "failed to record webhook event")
		}
		return uc.apply(ctx, ev)
	})
	if err != nil {
		return false, err
	}

	if duplicate {
		uc.log.Infof("Duplicate event %s ignored", meta.ProviderEventID)
	}
	return duplicate, nil
}

// apply 穷举分发事件变体
func (uc *ReconcilerUsecase) apply(ctx context.Context, ev Event) error {
	switch e := ev.(type) {
	case *CheckoutCompleted:
		return uc.applyCheckoutCompleted(ctx, e)
	case *SubscriptionCreated:
		return uc.applySubscriptionCreated(ctx, e)
	case *SubscriptionUpdated:
		return uc.applySubscriptionUpdated(ctx, e)
	case *SubscriptionDeleted:
		return uc.applySubscriptionDeleted(ctx, e)
	case *PaymentSucceeded:
		return uc.applyPaymentSucceeded(ctx, e)
	case *PaymentFailed:
		return uc.applyPaymentFailed(ctx, e)
	}
	return fmt.Errorf("unhandled event variant %T", ev)
}

// applyCheckoutCompleted 结账完成: 激活账户并挂接订阅/客户标识, 清除试用期
func (uc *ReconcilerUsecase) applyCheckoutCompleted(ctx context.Context, e *CheckoutCompleted) error {
	// 空查找键会等值匹配到从未订阅的账户, 一律按未命中处理
	if e.UID == "" {
		return uc.missAccount(ctx, e, "uid", e.UID)
	}
	acct, err := uc.accountRepo.GetAccount(ctx, e.UID)
	if err != nil {
		return err
	}
	if acct == nil {
		return uc.missAccount(ctx, e, "uid", e.UID)
	}

	now := time.Now().UTC()
	acct.SubscriptionStatus = constants.StatusActive
	acct.SubscriptionID = e.SubscriptionID
	acct.CustomerID = e.CustomerID
	acct.TrialEndDate = nil
	acct.UpdatedAt = now

	// 结账事件不带周期边界, 从提供方回查补齐; 回查失败不影响状态迁移
	if uc.provider != nil && e.SubscriptionID != "" {
		sub, err := uc.provider.GetSubscription(ctx, e.SubscriptionID)
		if err != nil {
			uc.log.Warnf("Failed to fetch subscription %s for period backfill: %v", e.SubscriptionID, err)
		} else if sub != nil {
			ps, pe := sub.PeriodStart, sub.PeriodEnd
			if !ps.IsZero() {
				acct.CurrentPeriodStart = &ps
			}
			if !pe.IsZero() {
				acct.CurrentPeriodEnd = &pe
			}
		}
	}

	if err := uc.accountRepo.SaveAccount(ctx, acct); err != nil {
		uc.log.Errorf("Failed to save account %s: %v", acct.UID, err)
		return errors.New(errors.ErrCodeAccountSaveFailed, "failed to save account state")
	}
	uc.log.Infof("Checkout completed for account %s: subscription=%s, customer=%s", acct.UID, e.SubscriptionID, e.CustomerID)
	return nil
}

// applySubscriptionCreated 订阅创建: 按客户 ID 匹配账户, 激活并设置周期边界
func (uc *ReconcilerUsecase) applySubscriptionCreated(ctx context.Context, e *SubscriptionCreated) error {
	if e.CustomerID == "" {
		return uc.missAccount(ctx, e, "customer_id", e.CustomerID)
	}
	acct, err := uc.accountRepo.GetAccountByCustomerID(ctx, e.CustomerID)
	if err != nil {
		return err
	}
	if acct == nil {
		return uc.missAccount(ctx, e, "customer_id", e.CustomerID)
	}

	now := time.Now().UTC()
	acct.SubscriptionStatus = constants.StatusActive
	acct.SubscriptionID = e.SubscriptionID
	uc.setPeriod(acct, e.PeriodStart, e.PeriodEnd)
	acct.UpdatedAt = now

	if err := uc.accountRepo.SaveAccount(ctx, acct); err != nil {
		uc.log.Errorf("Failed to save account %s: %v", acct.UID, err)
		return errors.New(errors.ErrCodeAccountSaveFailed, "failed to save account state")
	}
	uc.log.Infof("Subscription %s created for account %s", e.SubscriptionID, acct.UID)
	return nil
}

// applySubscriptionUpdated 订阅更新: 提供方状态为 active 时激活, 否则置为 inactive
func (uc *ReconcilerUsecase) applySubscriptionUpdated(ctx context.Context, e *SubscriptionUpdated) error {
	if e.SubscriptionID == "" {
		return uc.missAccount(ctx, e, "subscription_id", e.SubscriptionID)
	}
	acct, err := uc.accountRepo.GetAccountBySubscriptionID(ctx, e.SubscriptionID)
	if err != nil {
		return err
	}
	if acct == nil {
		return uc.missAccount(ctx, e, "subscription_id", e.SubscriptionID)
	}

	now := time.Now().UTC()
	if e.ProviderStatus == constants.ProviderStatusActive {
		acct.SubscriptionStatus = constants.StatusActive
	} else {
		acct.SubscriptionStatus = constants.StatusInactive
	}
	uc.setPeriod(acct, e.PeriodStart, e.PeriodEnd)
	acct.UpdatedAt = now

	if err := uc.accountRepo.SaveAccount(ctx, acct); err != nil {
		uc.log.Errorf("Failed to save account %s: %v", acct.UID, err)
		return errors.New(errors.ErrCodeAccountSaveFailed, "failed to save account state")
	}
	uc.log.Infof("Subscription %s updated for account %s: provider_status=%s -> %s",
		e.SubscriptionID, acct.UID, e.ProviderStatus, acct.SubscriptionStatus)
	return nil
}

// applySubscriptionDeleted 订阅删除: 置为 expired 并记录取消时间
func (uc *ReconcilerUsecase) applySubscriptionDeleted(ctx context.Context, e *SubscriptionDeleted) error {
	if e.SubscriptionID == "" {
		return uc.missAccount(ctx, e, "subscription_id", e.SubscriptionID)
	}
	acct, err := uc.accountRepo.GetAccountBySubscriptionID(ctx, e.SubscriptionID)
	if err != nil {
		return err
	}
	if acct == nil {
		return uc.missAccount(ctx, e, "subscription_id", e.SubscriptionID)
	}

	now := time.Now().UTC()
	acct.SubscriptionStatus = constants.StatusExpired
	canceledAt := e.CanceledAt
	if canceledAt.IsZero() {
		canceledAt = now
	}
	acct.CanceledAt = &canceledAt
	acct.UpdatedAt = now

	if err := uc.accountRepo.SaveAccount(ctx, acct); err != nil {
		uc.log.Errorf("Failed to save account %s: %v", acct.UID, err)
		return errors.New(errors.ErrCodeAccountSaveFailed, "failed to save account state")
	}
	uc.log.Infof("Subscription %s deleted for account %s", e.SubscriptionID, acct.UID)
	return nil
}

// applyPaymentSucceeded 支付成功: 追加成功支付记录并激活账户
func (uc *ReconcilerUsecase) applyPaymentSucceeded(ctx context.Context, e *PaymentSucceeded) error {
	// 一次性账单没有订阅 ID, 不能落到空键等值匹配上
	if e.SubscriptionID == "" {
		return uc.missAccount(ctx, e, "subscription_id", e.SubscriptionID)
	}
	acct, err := uc.accountRepo.GetAccountBySubscriptionID(ctx, e.SubscriptionID)
	if err != nil {
		return err
	}
	if acct == nil {
		return uc.missAccount(ctx, e, "subscription_id", e.SubscriptionID)
	}

	if err := uc.appendPaymentRecord(ctx, acct, e.EventMeta, e.SubscriptionID, e.InvoiceID,
		e.AmountPaid, e.Currency, constants.PaymentStatusSucceeded); err != nil {
		return err
	}

	acct.SubscriptionStatus = constants.StatusActive
	acct.UpdatedAt = time.Now().UTC()
	if err := uc.accountRepo.SaveAccount(ctx, acct); err != nil {
		uc.log.Errorf("Failed to save account %s: %v", acct.UID, err)
		return errors.New(errors.ErrCodeAccountSaveFailed, "failed to save account state")
	}
	uc.log.Infof("Payment succeeded for account %s: invoice=%s, amount=%d %s", acct.UID, e.InvoiceID, e.AmountPaid, e.Currency)
	return nil
}

// applyPaymentFailed 支付失败: 追加失败支付记录并置为 past_due
func (uc *ReconcilerUsecase) applyPaymentFailed(ctx context.Context, e *PaymentFailed) error {
	if e.SubscriptionID == "" {
		return uc.missAccount(ctx, e, "subscription_id", e.SubscriptionID)
	}
	acct, err := uc.accountRepo.GetAccountBySubscriptionID(ctx, e.SubscriptionID)
	if err != nil {
		return err
	}
	if acct == nil {
		return uc.missAccount(ctx, e, "subscription_id", e.SubscriptionID)
	}

	if err := uc.appendPaymentRecord(ctx, acct, e.EventMeta, e.SubscriptionID, e.InvoiceID,
		e.AmountDue, e.Currency, constants.PaymentStatusFailed); err != nil {
		return err
	}

	acct.SubscriptionStatus = constants.StatusPastDue
	acct.UpdatedAt = time.Now().UTC()
	if err := uc.accountRepo.SaveAccount(ctx, acct); err != nil {
		uc.log.Errorf("Failed to save account %s: %v", acct.UID, err)
		return errors.New(errors.ErrCodeAccountSaveFailed, "failed to save account state")
	}
	uc.log.Infof("Payment failed for account %s: invoice=%s, amount_due=%d %s", acct.UID, e.InvoiceID, e.AmountDue, e.Currency)
	return nil
}

// appendPaymentRecord 追加支付记录, 同一事件的重复追加按无操作处理
func (uc *ReconcilerUsecase) appendPaymentRecord(ctx context.Context, acct *Account, meta EventMeta,
	subscriptionID, invoiceID string, amount int64, currency, status string) error {
	rec := &PaymentRecord{
		PaymentRecordID: uuid.NewString(),
		UID:             acct.UID,
		SubscriptionID:  subscriptionID,
		InvoiceID:       invoiceID,
		ProviderEventID: meta.ProviderEventID,
		Amount:          amount,
		Currency:        currency,
		Status:          status,
		CreatedAt:       time.Now().UTC(),
	}
	if err := uc.paymentRepo.AddPaymentRecord(ctx, rec); err != nil {
		if stdErrors.Is(err, ErrDuplicatePaymentRecord) {
			uc.log.Warnf("Payment record for event %s already exists, skipping append", meta.ProviderEventID)
			return nil
		}
		uc.log.Errorf("Failed to add payment record for invoice %s: %v", invoiceID, err)
		return errors.New(errors.ErrCodePaymentRecordFailed, "failed to append payment record")
	}
	return nil
}

// missAccount 处理账户查找未命中, 策略由配置决定
func (uc *ReconcilerUsecase) missAccount(ctx context.Context, ev Event, keyName, key string) error {
	meta := ev.Meta()
	if uc.missPolicy() == constants.MissPolicyRetry {
		return errors.New(errors.ErrCodeAccountNotFound,
			fmt.Sprintf("no account matches %s=%s for event %s", keyName, key, meta.ProviderEventID))
	}
	uc.log.Warnf("No account matches %s=%s for event %s (%s), transition skipped", keyName, key, meta.ProviderEventID, meta.EventType)
	return nil
}

func (uc *ReconcilerUsecase) missPolicy() string {
	if uc.config == nil {
		return constants.MissPolicyIgnore
	}
	return uc.config.Webhook.MissPolicy()
}

// setPeriod 更新账户的订阅周期边界, 零值时间不覆盖已有值
func (uc *ReconcilerUsecase) setPeriod(acct *Account, start, end time.Time) {
	if !start.IsZero() {
		s := start
		acct.CurrentPeriodStart = &s
	}
	if !end.IsZero() {
		e := end
		acct.CurrentPeriodEnd = &e
	}
}

// lockEvent 获取对账分布式锁
func (uc *ReconcilerUsecase) lockEvent(ctx context.Context, key string) (func(), error) {
	if uc.rs == nil {
		return func() {}, nil
	}
	mutex := uc.rs.NewMutex(
		"reconcile_lock:"+key,
		redsync.WithExpiry(constants.ReconcileLockExpiration),
		redsync.WithTries(constants.ReconcileLockRetries),
	)
	if err := mutex.LockContext(ctx); err != nil {
		uc.log.Infof("Reconcile lock busy for %s: %v", key, err)
		return nil, errors.New(errors.ErrCodeReconcileBusy, "another event for this account is being processed")
	}
	return func() {
		if _, err := mutex.UnlockContext(ctx); err != nil {
			uc.log.Warnf("Failed to unlock %s: %v", key, err)
		}
	}, nil
}

// GetAccount 获取账户当前订阅状态
func (uc *ReconcilerUsecase) GetAccount(ctx context.Context, uid string) (*Account, error) {
	return uc.accountRepo.GetAccount(ctx, uid)
}

// GetPaymentHistory 获取账户支付历史, 支持分页
func (uc *ReconcilerUsecase) GetPaymentHistory(ctx context.Context, uid string, page, pageSize int) ([]*PaymentRecord, int, error) {
	uc.log.Infof("GetPaymentHistory: uid=%s, page=%d, pageSize=%d", uid, page, pageSize)

	// 参数验证
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > constants.MaxPageSize {
		pageSize = constants.DefaultPageSize
	}

	items, total, err := uc.paymentRepo.GetPaymentHistory(ctx, uid, page, pageSize)
	if err != nil {
		uc.log.Errorf("Failed to get payment history: %v", err)
		return nil, 0, err
	}

	return items, total, nil
}
