package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/sveapay/internal/domain"
	"github.com/vladislavdragonenkov/sveapay/internal/platform"
	"github.com/vladislavdragonenkov/sveapay/internal/service/reconcile"
)

type orderResponse struct {
	OrderID       string             `json:"order_id"`
	Status        domain.OrderStatus `json:"status"`
	VendorOrderID string             `json:"vendor_order_id,omitempty"`
	Version       int64              `json:"version"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// putOrder создаёт заказ из записи платформы или обновляет сохранённый.
func (a *API) putOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var rec platform.Order
	if err := decodeJSON(w, r, &rec); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid order record"})
		return
	}
	if rec.ID == "" {
		rec.ID = orderID
	}
	if rec.ID != orderID {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "order id does not match the path"})
		return
	}

	fresh, err := platform.Translate(rec, a.now())
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}

	stored, err := a.orders.Get(orderID)
	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		if err := a.orders.Create(fresh); err != nil {
			a.storageFailure(w, orderID, err)
			return
		}
		writeJSON(w, http.StatusCreated, toOrderResponse(fresh))
		return
	case err != nil:
		a.storageFailure(w, orderID, err)
		return
	}

	merged, err := platform.Merge(stored, fresh)
	if err != nil {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	if err := a.orders.Save(merged); err != nil {
		a.storageFailure(w, orderID, err)
		return
	}
	merged.Version++
	writeJSON(w, http.StatusOK, toOrderResponse(merged))
}

type statusRequest struct {
	Status string `json:"status"`
}

type syncResponse struct {
	NoOp    bool               `json:"noop"`
	Message string             `json:"message"`
	Status  domain.OrderStatus `json:"status"`
}

// syncStatus переносит смену статуса на платформе в операцию у провайдера.
func (a *API) syncStatus(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderID")

	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid status request"})
		return
	}
	status, err := platform.ParseStatus(req.Status)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	out, err := a.engine.SyncStatus(r.Context(), orderID, status)
	if err != nil {
		code := http.StatusBadGateway
		message := err.Error()
		if rerr, ok := reconcile.AsError(err); ok {
			message = rerr.OperatorMessage()
			if rerr.Kind != reconcile.KindTransport {
				code = http.StatusUnprocessableEntity
			}
		}
		writeJSON(w, code, errorResponse{Error: message})
		return
	}
	writeJSON(w, http.StatusOK, syncResponse{NoOp: out.NoOp, Message: out.Message, Status: out.Status})
}

func (a *API) storageFailure(w http.ResponseWriter, orderID string, err error) {
	if domain.IsVersionConflict(err) || errors.Is(err, domain.ErrOrderAlreadyExists) {
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
		return
	}
	a.logger.WithError(err).WithField("order_id", orderID).Error("order storage failed")
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "storage failure"})
}

func toOrderResponse(o domain.Order) orderResponse {
	return orderResponse{
		OrderID:       o.ID,
		Status:        o.Status,
		VendorOrderID: o.Meta.VendorOrderID,
		Version:       o.Version,
	}
}
