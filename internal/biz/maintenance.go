package biz

import (
	"context"
	"time"

	"xinyuan_tech/billing-sync-service/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
)

// MaintenanceUsecase 维护任务业务逻辑 (定时任务调用)
type MaintenanceUsecase struct {
	accountRepo AccountRepo
	eventRepo   WebhookEventRepo
	config      *conf.Bootstrap
	log         *log.Helper
}

// NewMaintenanceUsecase 创建维护任务业务用例
func NewMaintenanceUsecase(
	accountRepo AccountRepo,
	eventRepo WebhookEventRepo,
	config *conf.Bootstrap,
	logger log.Logger,
) *MaintenanceUsecase {
	return &MaintenanceUsecase{
		accountRepo: accountRepo,
		eventRepo:   eventRepo,
		config:      config,
		log:         log.NewHelper(logger),
	}
}

// ExpireLapsedAccounts 批量将周期结束超过宽限期且未再收到事件的账户标记为过期
// 兜底处理提供方删除事件丢失的情况
func (uc *MaintenanceUsecase) ExpireLapsedAccounts(ctx context.Context) (int, []string, error) {
	graceDays := uc.config.Webhook.GraceDays()
	cutoff := time.Now().UTC().AddDate(0, 0, -graceDays)
	uc.log.Infof("Starting to expire lapsed accounts (period ended before %s)", cutoff.Format(time.RFC3339))

	count, uids, err := uc.accountRepo.ExpireLapsed(ctx, cutoff)
	if err != nil {
		uc.log.Errorf("Failed to expire lapsed accounts: %v", err)
		return 0, nil, err
	}

	uc.log.Infof("Expired %d lapsed accounts", count)
	return count, uids, nil
}

// PruneWebhookEvents 清理超过保留期的事件去重记录
func (uc *MaintenanceUsecase) PruneWebhookEvents(ctx context.Context) (int64, error) {
	retentionDays := uc.config.Webhook.RetentionDays()
	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	uc.log.Infof("Pruning webhook events received before %s", cutoff.Format(time.RFC3339))

	count, err := uc.eventRepo.PruneBefore(ctx, cutoff)
	if err != nil {
		uc.log.Errorf("Failed to prune webhook events: %v", err)
		return 0, err
	}

	uc.log.Infof("Pruned %d webhook events", count)
	return count, nil
}
