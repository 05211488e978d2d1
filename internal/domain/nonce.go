package domain

import "time"

// Административные действия, для которых выдаются одноразовые токены.
const (
	NonceActionDeliver = "svea_deliver_sec"
	NonceActionCredit  = "svea_credit_sec"
	NonceActionCancel  = "svea_cancel_sec"
)

// Nonce — одноразовый токен, привязанный к действию.
type Nonce struct {
	Token     string
	Action    string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Usable сообщает, можно ли использовать токен для действия в момент now.
func (n Nonce) Usable(action string, now time.Time) bool {
	return n.UsedAt == nil && n.Action == action && now.Before(n.ExpiresAt)
}

// ValidNonceAction проверяет, что действие входит в поддерживаемый набор.
func ValidNonceAction(action string) bool {
	switch action {
	case NonceActionDeliver, NonceActionCredit, NonceActionCancel:
		return true
	default:
		return false
	}
}
