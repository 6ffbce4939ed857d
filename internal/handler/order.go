package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/xenking/kart-store/internal/domain/order"
)

// CreateOrder converts the caller's cart into an order.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req createOrderRequest
	if err := h.bind(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := req.checkAmounts(); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Create(r.Context(), p, req.toDomain())
	if err != nil {
		writeError(w, r, errors.Wrap(err, "create order"))
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// ListMyOrders returns the caller's orders, newest first.
func (h *Handler) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	orders, err := h.orders.ListMine(r.Context(), p)
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list my orders"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrders(e, orders)
	})
}

// GetOrder serves both the owner route and the admin route; the order
// service decides visibility.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Get(r.Context(), p, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, errors.Wrap(err, "get order"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// CancelOrder cancels one of the caller's processing orders.
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.Cancel(r.Context(), p, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, errors.Wrap(err, "cancel order"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// ValidatePayment checks raw payment data and hands out a transaction id.
func (h *Handler) ValidatePayment(w http.ResponseWriter, r *http.Request) {
	var req validatePaymentRequest
	if err := h.bind(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	txID, err := h.orders.ValidatePayment(r.Context(), order.PaymentMethod(req.PaymentMethod), order.PaymentData{
		CardNumber:  req.PaymentData.CardNumber,
		ExpiryDate:  req.PaymentData.ExpiryDate,
		CVV:         req.PaymentData.CVV,
		BankName:    req.PaymentData.BankName,
		AccountName: req.PaymentData.AccountName,
	})
	if err != nil {
		var invalid *order.PaymentValidationError
		if errors.As(err, &invalid) {
			writeJSON(w, http.StatusBadRequest, func(e *jx.Encoder) {
				e.ObjStart()
				e.FieldStart("valid")
				e.Bool(false)
				e.FieldStart("code")
				e.Int(http.StatusBadRequest)
				e.FieldStart("message")
				e.Str(invalid.Message)
				e.ObjEnd()
			})
			return
		}
		writeError(w, r, errors.Wrap(err, "validate payment"))
		return
	}

	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("valid")
		e.Bool(true)
		e.FieldStart("message")
		e.Str("Payment information validated successfully")
		e.FieldStart("transactionId")
		e.Str(txID)
		e.ObjEnd()
	})
}

// ListAllOrders returns every order. Admin only.
func (h *Handler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	orders, err := h.orders.ListAll(r.Context(), p)
	if err != nil {
		writeError(w, r, errors.Wrap(err, "list orders"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrders(e, orders)
	})
}

// UpdateOrderStatus applies an admin order and/or payment status change.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	var req statusUpdateRequest
	if err := h.bind(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.OrderStatus == "" && req.PaymentStatus == "" {
		writeError(w, r, &apiError{
			status:  http.StatusUnprocessableEntity,
			message: "orderStatus or paymentStatus is required",
		})
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), p, chi.URLParam(r, "orderID"), order.StatusUpdate{
		OrderStatus:   order.Status(req.OrderStatus),
		PaymentStatus: order.PaymentStatus(req.PaymentStatus),
	})
	if err != nil {
		writeError(w, r, errors.Wrap(err, "update order status"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodeOrder(e, o)
	})
}

// GetPaymentDetails returns the payment view of an order. Admin only.
func (h *Handler) GetPaymentDetails(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	summary, err := h.orders.PaymentDetails(r.Context(), p, chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, r, errors.Wrap(err, "get payment details"))
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		encodePaymentSummary(e, summary)
	})
}
