package reconcile

import (
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
)

// Kind классифицирует ошибку согласования.
type Kind int

const (
	// KindTransport — вызов провайдера не состоялся (сеть, таймаут, разомкнутый breaker).
	KindTransport Kind = iota + 1
	// KindVendorRejected — провайдер ответил, но accepted=false.
	KindVendorRejected
	// KindPrecondition — локальная проверка до обращения к провайдеру.
	KindPrecondition
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindVendorRejected:
		return "vendor_rejected"
	case KindPrecondition:
		return "precondition"
	default:
		return "unknown"
	}
}

// Error — результат неуспешной операции согласования.
type Error struct {
	Kind    Kind
	Op      domain.Operation
	OrderID string
	// ResultCode и VendorMessage заполняются из ответа провайдера.
	ResultCode    int
	VendorMessage string
	// Group — номер группы счёта (с 1), на которой остановился возврат; 0 вне групповых операций.
	Group int
	// Detail — сообщение для оператора магазина, если оно отличается от текста Err.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("reconcile %s order %s: %s", e.Op, e.OrderID, e.Kind)
	if e.Group > 0 {
		msg += fmt.Sprintf(" (invoice group %d)", e.Group)
	}
	if e.ResultCode != 0 {
		msg += fmt.Sprintf(" [%d]", e.ResultCode)
	}
	if e.VendorMessage != "" {
		return msg + ": " + e.VendorMessage
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// OperatorMessage — текст для админки: сырой ответ провайдера или локальная причина.
func (e *Error) OperatorMessage() string {
	switch {
	case e.VendorMessage != "":
		return e.VendorMessage
	case e.Detail != "":
		return e.Detail
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Kind.String()
	}
}

// AsError извлекает *Error из цепочки ошибок.
func AsError(err error) (*Error, bool) {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr, true
	}
	return nil, false
}

// IsKind сообщает, что err: ошибка согласования указанного вида.
func IsKind(err error, kind Kind) bool {
	rerr, ok := AsError(err)
	return ok && rerr.Kind == kind
}

func preconditionError(op domain.Operation, orderID string, err error, detail string) *Error {
	return &Error{Kind: KindPrecondition, Op: op, OrderID: orderID, Err: err, Detail: detail}
}

func transportError(op domain.Operation, orderID string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, OrderID: orderID, Err: err}
}

func rejectedError(op domain.Operation, orderID string, resp domain.VendorResponse) *Error {
	return &Error{
		Kind:          KindVendorRejected,
		Op:            op,
		OrderID:       orderID,
		ResultCode:    resp.ResultCode,
		VendorMessage: resp.ErrorMessage,
	}
}
