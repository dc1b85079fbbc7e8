package data

import (
	"context"
	"time"

	"xinyuan_tech/billing-sync-service/internal/biz"
	"xinyuan_tech/billing-sync-service/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// stripeClient 支付提供方客户端实现 (防腐层)
type stripeClient struct {
	api *client.API
	log *log.Helper
}

// NewProviderClient 创建支付提供方客户端
// 未配置 API 密钥时回查能力不可用, 订阅详情返回空
func NewProviderClient(c *conf.Bootstrap, logger log.Logger) biz.ProviderClient {
	helper := log.NewHelper(logger)
	apiKey := ""
	if c != nil && c.Stripe != nil {
		apiKey = c.Stripe.ApiKey
	}
	if apiKey == "" {
		helper.Warn("stripe api key not configured, subscription backfill disabled")
		return &stripeClient{log: helper}
	}

	api := &client.API{}
	api.Init(apiKey, nil)
	return &stripeClient{api: api, log: helper}
}

// GetSubscription 回查提供方订阅详情
func (c *stripeClient) GetSubscription(ctx context.Context, subscriptionID string) (*biz.ProviderSubscription, error) {
	if c.api == nil {
		return nil, nil
	}

	sub, err := c.api.Subscriptions.Get(subscriptionID, &stripe.SubscriptionParams{
		Params: stripe.Params{Context: ctx},
	})
	if err != nil {
		c.log.Warnf("Failed to fetch subscription %s from provider: %v", subscriptionID, err)
		return nil, err
	}

	ps := &biz.ProviderSubscription{
		SubscriptionID: sub.ID,
		Status:         string(sub.Status),
	}
	if sub.CurrentPeriodStart > 0 {
		ps.PeriodStart = time.Unix(sub.CurrentPeriodStart, 0).UTC()
	}
	if sub.CurrentPeriodEnd > 0 {
		ps.PeriodEnd = time.Unix(sub.CurrentPeriodEnd, 0).UTC()
	}
	return ps, nil
}
