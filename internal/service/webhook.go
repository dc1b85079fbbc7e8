package service

import (
	"io"
	stdhttp "net/http"
	"strings"

	"xinyuan_tech/billing-sync-service/internal/biz"
	"xinyuan_tech/billing-sync-service/internal/conf"
	"xinyuan_tech/billing-sync-service/internal/constants"
	"xinyuan_tech/billing-sync-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/stripe/stripe-go/v79/webhook"
)

// WebhookService 提供方事件接收服务
type WebhookService struct {
	rec    *biz.ReconcilerUsecase
	config *conf.Bootstrap
	log    *log.Helper
}

// NewWebhookService 创建事件接收服务实例
func NewWebhookService(rec *biz.ReconcilerUsecase, config *conf.Bootstrap, logger log.Logger) *WebhookService {
	return &WebhookService{
		rec:    rec,
		config: config,
		log:    log.NewHelper(logger),
	}
}

// WebhookReply webhook 确认响应
type WebhookReply struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// HandleWebhook 处理提供方 webhook 请求
// 签名验证即认证; 必须对原始字节做验证, 解析前的任何改写都会使签名失效
func (s *WebhookService) HandleWebhook(ctx http.Context) error {
	req := ctx.Request()

	sigHeader := req.Header.Get("Stripe-Signature")
	if strings.TrimSpace(sigHeader) == "" {
		return errors.New(errors.ErrCodeMissingSignature, "missing Stripe-Signature header")
	}

	req.Body = stdhttp.MaxBytesReader(ctx.Response(), req.Body, constants.MaxWebhookBodyBytes)
	payload, err := io.ReadAll(req.Body)
	if err != nil {
		return ctx.String(stdhttp.StatusBadRequest, "failed to read request body")
	}

	evt, err := webhook.ConstructEventWithTolerance(payload, sigHeader, s.webhookSecret(), s.config.Stripe.SignatureTolerance())
	if err != nil {
		s.log.Warnf("Webhook signature verification failed: %v", err)
		return errors.New(errors.ErrCodeInvalidSignature, "invalid signature")
	}

	s.log.Infof("Webhook event received: id=%s, type=%s", evt.ID, evt.Type)

	ev, err := decodeEvent(&evt)
	if err != nil {
		// 已验证事件的负载解析失败说明提供方 API 版本不兼容,
		// 重投不会有不同结果, 记录后确认
		s.log.Errorf("Failed to decode event %s (%s): %v", evt.ID, evt.Type, err)
		return ctx.Result(stdhttp.StatusOK, &WebhookReply{Received: true})
	}
	if ev == nil {
		s.log.Infof("Unhandled event type %s acknowledged", evt.Type)
		return ctx.Result(stdhttp.StatusOK, &WebhookReply{Received: true})
	}

	duplicate, err := s.rec.ProcessEvent(req.Context(), ev, payload)
	if err != nil {
		return err
	}
	return ctx.Result(stdhttp.StatusOK, &WebhookReply{Received: true, Duplicate: duplicate})
}

func (s *WebhookService) webhookSecret() string {
	if s.config == nil || s.config.Stripe == nil {
		return ""
	}
	return s.config.Stripe.WebhookSecret
}
