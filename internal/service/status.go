package service

import (
	stdhttp "net/http"
	"strconv"
	"time"

	"xinyuan_tech/billing-sync-service/internal/constants"
	"xinyuan_tech/billing-sync-service/internal/errors"

	"github.com/go-kratos/kratos/v2/transport/http"
)

// SubscriptionStatusReply 订阅状态响应
type SubscriptionStatusReply struct {
	UID                string     `json:"uid"`
	SubscriptionStatus string     `json:"subscription_status"`
	SubscriptionID     string     `json:"subscription_id,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end"`
	TrialEndDate       *time.Time `json:"trial_end_date"`
}

// PaymentHistoryItem 支付历史条目
type PaymentHistoryItem struct {
	PaymentRecordID string    `json:"payment_record_id"`
	SubscriptionID  string    `json:"subscription_id"`
	InvoiceID       string    `json:"invoice_id"`
	Amount          int64     `json:"amount"`
	Currency        string    `json:"currency"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// PaymentHistoryReply 支付历史响应
type PaymentHistoryReply struct {
	Items    []*PaymentHistoryItem `json:"items"`
	Total    int                   `json:"total"`
	Page     int                   `json:"page"`
	PageSize int                   `json:"page_size"`
}

// GetSubscriptionStatus 查询账户当前订阅状态
func (s *WebhookService) GetSubscriptionStatus(ctx http.Context) error {
	uid := ctx.Vars().Get("uid")
	acct, err := s.rec.GetAccount(ctx.Request().Context(), uid)
	if err != nil {
		return err
	}
	if acct == nil {
		return errors.New(errors.ErrCodeAccountNotFound, "account not found: "+uid)
	}

	return ctx.Result(stdhttp.StatusOK, &SubscriptionStatusReply{
		UID:                acct.UID,
		SubscriptionStatus: acct.SubscriptionStatus,
		SubscriptionID:     acct.SubscriptionID,
		CurrentPeriodEnd:   acct.CurrentPeriodEnd,
		TrialEndDate:       acct.TrialEndDate,
	})
}

// GetPaymentHistory 查询账户支付历史, 支持分页
func (s *WebhookService) GetPaymentHistory(ctx http.Context) error {
	uid := ctx.Vars().Get("uid")

	page, _ := strconv.Atoi(ctx.Query().Get("page"))
	pageSize, _ := strconv.Atoi(ctx.Query().Get("page_size"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = constants.DefaultPageSize
	}
	if pageSize > constants.MaxPageSize {
		pageSize = constants.MaxPageSize
	}

	records, total, err := s.rec.GetPaymentHistory(ctx.Request().Context(), uid, page, pageSize)
	if err != nil {
		return err
	}

	items := make([]*PaymentHistoryItem, len(records))
	for i, rec := range records {
		items[i] = &PaymentHistoryItem{
			PaymentRecordID: rec.PaymentRecordID,
			SubscriptionID:  rec.SubscriptionID,
			InvoiceID:       rec.InvoiceID,
			Amount:          rec.Amount,
			Currency:        rec.Currency,
			Status:          rec.Status,
			CreatedAt:       rec.CreatedAt,
		}
	}

	return ctx.Result(stdhttp.StatusOK, &PaymentHistoryReply{
		Items:    items,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	})
}
