package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/service/reconcile"
)

// Тип уведомления админки.
const (
	noticeUpdated = "updated"
	noticeError   = "error"
)

type adminNotice struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type adminOperation struct {
	op     domain.Operation
	action string
}

var adminOperations = map[string]adminOperation{
	"deliver": {op: domain.OperationDeliver, action: domain.NonceActionDeliver},
	"credit":  {op: domain.OperationCredit, action: domain.NonceActionCredit},
	"cancel":  {op: domain.OperationCancel, action: domain.NonceActionCancel},
}

type nonceRequest struct {
	Action string `json:"action"`
}

type nonceResponse struct {
	Nonce     string    `json:"nonce"`
	Action    string    `json:"action"`
	ExpiresAt time.Time `json:"expires_at"`
}

// issueNonce выдаёт одноразовый токен для действия в админке.
func (a *API) issueNonce(w http.ResponseWriter, r *http.Request) {
	action := r.FormValue("action")
	if action == "" && r.Header.Get("Content-Type") == "application/json" {
		var req nonceRequest
		if err := decodeJSON(w, r, &req); err == nil {
			action = req.Action
		}
	}

	n, err := a.nonces.Issue(action)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, adminNotice{Type: noticeError, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, nonceResponse{Nonce: n.Token, Action: n.Action, ExpiresAt: n.ExpiresAt})
}

// adminAction выполняет доставку, возврат или отмену из админки.
// Оператор видит сырой текст провайдера.
func (a *API) adminAction(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")
	entry, ok := adminOperations[chi.URLParam(r, "action")]
	if !ok {
		writeJSON(w, http.StatusNotFound, adminNotice{Type: noticeError, Message: "unknown action"})
		return
	}

	if err := a.nonces.Consume(r.FormValue("nonce"), entry.action); err != nil {
		writeJSON(w, http.StatusForbidden, adminNotice{Type: noticeError, Message: err.Error()})
		return
	}

	out, err := a.engine.Reconcile(r.Context(), domain.Intent{
		Operation:   entry.op,
		OrderID:     orderID,
		LineItemIDs: splitList(r.FormValue("order_items")),
	})
	if err != nil {
		a.logger.WithError(err).WithFields(log.Fields{
			"order_id":  orderID,
			"operation": entry.op,
		}).Info("admin operation failed")
		writeJSON(w, http.StatusOK, adminNotice{Type: noticeError, Message: operatorMessage(err)})
		return
	}
	writeJSON(w, http.StatusOK, adminNotice{Type: noticeUpdated, Message: out.Message})
}

func operatorMessage(err error) string {
	var rerr *reconcile.Error
	if errors.As(err, &rerr) {
		return rerr.OperatorMessage()
	}
	return err.Error()
}
