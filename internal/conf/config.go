package conf

import (
	"fmt"
	"time"

	"xinyuan_tech/billing-sync-service/internal/constants"
)

type Bootstrap struct {
	Server  *Server  `yaml:"server" json:"server"`
	Data    *Data    `yaml:"data" json:"data"`
	Stripe  *Stripe  `yaml:"stripe" json:"stripe"`
	Webhook *Webhook `yaml:"webhook" json:"webhook"`
	Cors    *Cors    `yaml:"cors" json:"cors"`
	Log     *Log     `yaml:"log" json:"log"`
}

type Server struct {
	Http struct {
		Addr    string `yaml:"addr" json:"addr"`
		Timeout string `yaml:"timeout" json:"timeout"`
	} `yaml:"http" json:"http"`
}

type Data struct {
	Database struct {
		Driver string `yaml:"driver" json:"driver"`
		Source string `yaml:"source" json:"source"`
	} `yaml:"database" json:"database"`
	Redis struct {
		Addr         string `yaml:"addr" json:"addr"`
		Password     string `yaml:"password" json:"password"`
		Db           int32  `yaml:"db" json:"db"`
		ReadTimeout  string `yaml:"read_timeout" json:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout" json:"write_timeout"`
	} `yaml:"redis" json:"redis"`
}

// Stripe 支付提供方配置
type Stripe struct {
	// ApiKey 服务端 API 密钥, 用于回查订阅详情, 可为空
	ApiKey string `yaml:"api_key" json:"api_key"`
	// WebhookSecret webhook 签名共享密钥
	WebhookSecret string `yaml:"webhook_secret" json:"webhook_secret"`
	// Tolerance 签名时间戳容差, 如 "300s"
	Tolerance string `yaml:"tolerance" json:"tolerance"`
}

// Webhook 事件处理策略配置
type Webhook struct {
	// MissingAccountPolicy 账户查找失败策略: ignore 或 retry
	MissingAccountPolicy string `yaml:"missing_account_policy" json:"missing_account_policy"`
	// EventRetentionDays 已处理事件去重记录保留天数
	EventRetentionDays int `yaml:"event_retention_days" json:"event_retention_days"`
	// ExpiryGraceDays 订阅周期结束后的宽限天数
	ExpiryGraceDays int `yaml:"expiry_grace_days" json:"expiry_grace_days"`
}

type Cors struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
}

type Log struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// SignatureTolerance 解析签名时间戳容差, 解析失败时返回默认值
func (s *Stripe) SignatureTolerance() time.Duration {
	if s == nil || s.Tolerance == "" {
		return 300 * time.Second
	}
	d, err := time.ParseDuration(s.Tolerance)
	if err != nil || d <= 0 {
		return 300 * time.Second
	}
	return d
}

// MissPolicy 返回生效的账户查找失败策略
func (w *Webhook) MissPolicy() string {
	if w == nil || w.MissingAccountPolicy == "" {
		return constants.MissPolicyIgnore
	}
	return w.MissingAccountPolicy
}

// RetentionDays 返回生效的事件保留天数
func (w *Webhook) RetentionDays() int {
	if w == nil || w.EventRetentionDays <= 0 {
		return constants.DefaultEventRetentionDays
	}
	return w.EventRetentionDays
}

// GraceDays 返回生效的过期宽限天数
func (w *Webhook) GraceDays() int {
	if w == nil || w.ExpiryGraceDays <= 0 {
		return constants.DefaultExpiryGraceDays
	}
	return w.ExpiryGraceDays
}

// Validate validates the configuration
func (b *Bootstrap) Validate() error {
	if b.Server == nil {
		return fmt.Errorf("server configuration is required")
	}
	if b.Server.Http.Addr == "" {
		return fmt.Errorf("server.http.addr is required")
	}
	if b.Data == nil {
		return fmt.Errorf("data configuration is required")
	}
	if b.Data.Database.Source == "" {
		return fmt.Errorf("data.database.source is required")
	}
	if b.Stripe == nil || b.Stripe.WebhookSecret == "" {
		return fmt.Errorf("stripe.webhook_secret is required")
	}
	if b.Webhook != nil && b.Webhook.MissingAccountPolicy != "" {
		switch b.Webhook.MissingAccountPolicy {
		case constants.MissPolicyIgnore, constants.MissPolicyRetry:
		default:
			return fmt.Errorf("webhook.missing_account_policy must be %q or %q",
				constants.MissPolicyIgnore, constants.MissPolicyRetry)
		}
	}
	if b.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	return nil
}
