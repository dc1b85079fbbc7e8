package data

import (
	"context"
	"errors"

	"xinyuan_tech/billing-sync-service/internal/biz"
	"xinyuan_tech/billing-sync-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// paymentRecordRepo 支付记录仓库实现
type paymentRecordRepo struct {
	data *Data
	log  *log.Helper
}

// NewPaymentRecordRepo 创建支付记录仓库
func NewPaymentRecordRepo(data *Data, logger log.Logger) biz.PaymentRecordRepo {
	return &paymentRecordRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// AddPaymentRecord 追加支付记录
// provider_event_id 唯一索引冲突返回 biz.ErrDuplicatePaymentRecord
func (r *paymentRecordRepo) AddPaymentRecord(ctx context.Context, rec *biz.PaymentRecord) error {
	m := &model.PaymentRecord{
		PaymentRecordID: rec.PaymentRecordID,
		UID:             rec.UID,
		SubscriptionID:  rec.SubscriptionID,
		InvoiceID:       rec.InvoiceID,
		ProviderEventID: rec.ProviderEventID,
		Amount:          rec.Amount,
		Currency:        rec.Currency,
		Status:          rec.Status,
		CreatedAt:       rec.CreatedAt,
	}
	if err := r.data.DB(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return biz.ErrDuplicatePaymentRecord
		}
		r.log.Errorf("Failed to add payment record for invoice %s: %v", rec.InvoiceID, err)
		return err
	}
	return nil
}

// GetPaymentHistory 获取账户支付历史
func (r *paymentRecordRepo) GetPaymentHistory(ctx context.Context, uid string, page, pageSize int) ([]*biz.PaymentRecord, int, error) {
	var models []model.PaymentRecord
	var total int64

	// 获取总数
	if err := r.data.DB(ctx).Model(&model.PaymentRecord{}).Where("uid = ?", uid).Count(&total).Error; err != nil {
		r.log.Errorf("Failed to count payment records for %s: %v", uid, err)
		return nil, 0, err
	}

	// 分页查询
	offset := (page - 1) * pageSize
	if err := r.data.DB(ctx).
		Where("uid = ?", uid).
		Order("created_at DESC").
		Limit(pageSize).
		Offset(offset).
		Find(&models).Error; err != nil {
		r.log.Errorf("Failed to get payment records for %s: %v", uid, err)
		return nil, 0, err
	}

	// 转换为业务对象
	items := make([]*biz.PaymentRecord, len(models))
	for i, m := range models {
		items[i] = &biz.PaymentRecord{
			PaymentRecordID: m.PaymentRecordID,
			UID:             m.UID,
			SubscriptionID:  m.SubscriptionID,
			InvoiceID:       m.InvoiceID,
			ProviderEventID: m.ProviderEventID,
			Amount:          m.Amount,
			Currency:        m.Currency,
			Status:          m.Status,
			CreatedAt:       m.CreatedAt,
		}
	}

	return items, int(total), nil
}
