package domain

import "time"

// TimelineEvent — заметка в истории заказа (аналог order note платформы).
type TimelineEvent struct {
	OrderID  string
	Type     string
	Message  string
	Occurred time.Time
}
