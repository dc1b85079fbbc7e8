package data

import (
	"context"
	"errors"
	"time"

	"xinyuan_tech/billing-sync-service/internal/biz"
	"xinyuan_tech/billing-sync-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// webhookEventRepo 已处理事件仓库实现
type webhookEventRepo struct {
	data *Data
	log  *log.Helper
}

// NewWebhookEventRepo 创建已处理事件仓库
func NewWebhookEventRepo(data *Data, logger log.Logger) biz.WebhookEventRepo {
	return &webhookEventRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// RecordEvent 记录已处理事件
// provider_event_id 唯一索引冲突返回 biz.ErrDuplicateEvent
func (r *webhookEventRepo) RecordEvent(ctx context.Context, providerEventID, eventType string, payload []byte) error {
	m := &model.WebhookEvent{
		ProviderEventID: providerEventID,
		EventType:       eventType,
		Payload:         payload,
		ReceivedAt:      time.Now().UTC(),
	}
	if err := r.data.DB(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return biz.ErrDuplicateEvent
		}
		r.log.Errorf("Failed to record event %s: %v", providerEventID, err)
		return err
	}
	return nil
}

// PruneBefore 删除 cutoff 之前接收的事件记录
func (r *webhookEventRepo) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.data.DB(ctx).Where("received_at < ?", cutoff).Delete(&model.WebhookEvent{})
	if result.Error != nil {
		r.log.Errorf("Failed to prune webhook events: %v", result.Error)
		return 0, result.Error
	}
	return result.RowsAffected, nil
}
