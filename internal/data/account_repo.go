package data

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"xinyuan_tech/billing-sync-service/internal/biz"
	"xinyuan_tech/billing-sync-service/internal/constants"
	"xinyuan_tech/billing-sync-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const (
	accountCachePrefix = "account:"
	// nullCacheValue 空值占位, 防止缓存穿透
	nullCacheValue = "null"
)

// accountRepo 账户仓库实现
type accountRepo struct {
	data *Data
	log  *log.Helper
}

// NewAccountRepo 创建账户仓库
func NewAccountRepo(data *Data, logger log.Logger) biz.AccountRepo {
	return &accountRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// GetAccount 按用户 ID 获取账户, 带缓存
func (r *accountRepo) GetAccount(ctx context.Context, uid string) (*biz.Account, error) {
	if acct, ok := r.getCached(ctx, uid); ok {
		return acct, nil
	}

	var m model.Account
	err := r.data.DB(ctx).Where("uid = ?", uid).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		r.setCached(ctx, uid, nil)
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get account %s: %v", uid, err)
		return nil, err
	}

	acct := toBizAccount(&m)
	r.setCached(ctx, uid, acct)
	return acct, nil
}

// GetAccountByCustomerID 按提供方客户 ID 等值匹配账户, 取第一条
func (r *accountRepo) GetAccountByCustomerID(ctx context.Context, customerID string) (*biz.Account, error) {
	return r.getBy(ctx, "customer_id = ?", customerID)
}

// GetAccountBySubscriptionID 按提供方订阅 ID 等值匹配账户, 取第一条
func (r *accountRepo) GetAccountBySubscriptionID(ctx context.Context, subscriptionID string) (*biz.Account, error) {
	return r.getBy(ctx, "subscription_id = ?", subscriptionID)
}

func (r *accountRepo) getBy(ctx context.Context, cond string, arg string) (*biz.Account, error) {
	var m model.Account
	err := r.data.DB(ctx).Where(cond, arg).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		r.log.Errorf("Failed to get account by %q %s: %v", cond, arg, err)
		return nil, err
	}
	return toBizAccount(&m), nil
}

// SaveAccount 保存账户并失效缓存
func (r *accountRepo) SaveAccount(ctx context.Context, acct *biz.Account) error {
	m := &model.Account{
		UID:                acct.UID,
		SubscriptionStatus: acct.SubscriptionStatus,
		SubscriptionID:     acct.SubscriptionID,
		CustomerID:         acct.CustomerID,
		CurrentPeriodStart: acct.CurrentPeriodStart,
		CurrentPeriodEnd:   acct.CurrentPeriodEnd,
		TrialEndDate:       acct.TrialEndDate,
		CanceledAt:         acct.CanceledAt,
		CreatedAt:          acct.CreatedAt,
		UpdatedAt:          acct.UpdatedAt,
	}
	if err := r.data.DB(ctx).Save(m).Error; err != nil {
		r.log.Errorf("Failed to save account %s: %v", acct.UID, err)
		return err
	}
	r.invalidateCache(ctx, acct.UID)
	return nil
}

// ExpireLapsed 批量将周期结束早于 cutoff 的 active/past_due 账户标记为过期
func (r *accountRepo) ExpireLapsed(ctx context.Context, cutoff time.Time) (int, []string, error) {
	var models []model.Account
	statuses := []string{constants.StatusActive, constants.StatusPastDue}
	if err := r.data.DB(ctx).
		Where("current_period_end < ? AND subscription_status IN ?", cutoff, statuses).
		Find(&models).Error; err != nil {
		r.log.Errorf("Failed to query lapsed accounts: %v", err)
		return 0, nil, err
	}

	if len(models) == 0 {
		return 0, []string{}, nil
	}

	uids := make([]string, len(models))
	for i, m := range models {
		uids[i] = m.UID
	}

	result := r.data.DB(ctx).Model(&model.Account{}).
		Where("current_period_end < ? AND subscription_status IN ?", cutoff, statuses).
		Updates(map[string]interface{}{
			"subscription_status": constants.StatusExpired,
			"updated_at":          time.Now().UTC(),
		})
	if result.Error != nil {
		r.log.Errorf("Failed to expire lapsed accounts: %v", result.Error)
		return 0, nil, result.Error
	}

	for _, uid := range uids {
		r.invalidateCache(ctx, uid)
	}
	return int(result.RowsAffected), uids, nil
}

func toBizAccount(m *model.Account) *biz.Account {
	return &biz.Account{
		UID:                m.UID,
		SubscriptionStatus: m.SubscriptionStatus,
		SubscriptionID:     m.SubscriptionID,
		CustomerID:         m.CustomerID,
		CurrentPeriodStart: m.CurrentPeriodStart,
		CurrentPeriodEnd:   m.CurrentPeriodEnd,
		TrialEndDate:       m.TrialEndDate,
		CanceledAt:         m.CanceledAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// getCached 读取账户缓存, 第二个返回值表示是否命中
func (r *accountRepo) getCached(ctx context.Context, uid string) (*biz.Account, bool) {
	if r.data.rdb == nil {
		return nil, false
	}
	val, err := r.data.rdb.Get(ctx, accountCachePrefix+uid).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		r.log.Warnf("Failed to read account cache for %s: %v", uid, err)
		return nil, false
	}
	if val == nullCacheValue {
		return nil, true
	}
	var acct biz.Account
	if err := json.Unmarshal([]byte(val), &acct); err != nil {
		r.log.Warnf("Failed to decode account cache for %s: %v", uid, err)
		return nil, false
	}
	return &acct, true
}

func (r *accountRepo) setCached(ctx context.Context, uid string, acct *biz.Account) {
	if r.data.rdb == nil {
		return
	}
	if acct == nil {
		if err := r.data.rdb.Set(ctx, accountCachePrefix+uid, nullCacheValue, constants.NullCacheExpiration).Err(); err != nil {
			r.log.Warnf("Failed to cache null account for %s: %v", uid, err)
		}
		return
	}
	raw, err := json.Marshal(acct)
	if err != nil {
		return
	}
	if err := r.data.rdb.Set(ctx, accountCachePrefix+uid, raw, constants.DefaultCacheExpiration).Err(); err != nil {
		r.log.Warnf("Failed to cache account %s: %v", uid, err)
	}
}

func (r *accountRepo) invalidateCache(ctx context.Context, uid string) {
	if r.data.rdb == nil {
		return
	}
	if err := r.data.rdb.Del(ctx, accountCachePrefix+uid).Err(); err != nil {
		r.log.Warnf("Failed to invalidate account cache for %s: %v", uid, err)
	}
}
