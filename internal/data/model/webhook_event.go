package model

import "time"

// WebhookEvent 已处理事件模型 (按提供方事件 ID 去重)
type WebhookEvent struct {
	ID              uint64    `gorm:"primaryKey;column:webhook_event_id;autoIncrement"`
	ProviderEventID string    `gorm:"column:provider_event_id;uniqueIndex;type:varchar(64)"`
	EventType       string    `gorm:"column:event_type"`
	Payload         []byte    `gorm:"column:payload;type:mediumblob"`
	ReceivedAt      time.Time `gorm:"column:received_at;index"`
}

func (WebhookEvent) TableName() string { return "webhook_event" }
