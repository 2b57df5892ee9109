package models

import "time"

// NotificationEvent is what gets published to the notification sink.
// Delivery (email/SMS/push) happens in a downstream consumer; the core
// only enqueues.
type NotificationEvent struct {
	UserID    string    `json:"user_id"`
	Channel   string    `json:"channel"` // email | sms | push
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	OrderID   string    `json:"order_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
	ChannelPush  = "push"
)
