package order

import (
	"time"

	"github.com/go-faster/errors"
)

// StatusUpdate is an admin change request. Empty fields are left untouched.
type StatusUpdate struct {
	OrderStatus   Status
	PaymentStatus PaymentStatus
}

// paymentTransitions lists the moves an admin may make. Failed and refunded
// payments are final.
var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:   {PaymentCompleted, PaymentFailed},
	PaymentCompleted: {PaymentRefunded},
}

func canChangePayment(from, to PaymentStatus) bool {
	for _, next := range paymentTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// applyAdminUpdate applies u to o in place and reports whether the order left
// a non-cancelled state, which means its stock has to be released.
func applyAdminUpdate(o *Order, u StatusUpdate, now time.Time) (restock bool, err error) {
	if u.OrderStatus != "" && !u.OrderStatus.Valid() {
		return false, errors.Wrapf(ErrInvalidStatus, "order status %q", u.OrderStatus)
	}
	if u.PaymentStatus != "" && !u.PaymentStatus.Valid() {
		return false, errors.Wrapf(ErrInvalidStatus, "payment status %q", u.PaymentStatus)
	}

	if u.OrderStatus != "" {
		if o.Status == StatusCancelled || o.Status == u.OrderStatus {
			return false, &InvalidTransitionError{
				Field: "orderStatus",
				From:  string(o.Status),
				To:    string(u.OrderStatus),
			}
		}
	}
	if u.PaymentStatus != "" && !canChangePayment(o.PaymentStatus, u.PaymentStatus) {
		return false, &InvalidTransitionError{
			Field: "paymentStatus",
			From:  string(o.PaymentStatus),
			To:    string(u.PaymentStatus),
		}
	}

	o.appendTimeline(TimelineAdminUpdate, "Status updated by admin", now)

	if u.OrderStatus != "" {
		o.Status = u.OrderStatus
		restock = u.OrderStatus == StatusCancelled

		if restock {
			o.appendTimeline("order_cancelled", "Order cancelled by admin", now)
			if o.PaymentStatus == PaymentCompleted && u.PaymentStatus == "" {
				o.PaymentStatus = PaymentRefunded
				o.appendTimeline(TimelinePaymentRefunded, "Payment refunded due to order cancellation by admin", now)
			}
		} else {
			o.appendTimeline("order_"+string(u.OrderStatus), "Order status updated to "+string(u.OrderStatus), now)
		}
	}

	if u.PaymentStatus != "" {
		o.PaymentStatus = u.PaymentStatus
		o.appendTimeline("payment_"+string(u.PaymentStatus), "Payment status updated to "+string(u.PaymentStatus), now)
	}

	return restock, nil
}

// applyCustomerCancel cancels a processing order on behalf of its owner.
func applyCustomerCancel(o *Order, now time.Time) error {
	if o.Status != StatusProcessing {
		return &InvalidTransitionError{
			Field: "orderStatus",
			From:  string(o.Status),
			To:    string(StatusCancelled),
		}
	}

	o.Status = StatusCancelled
	o.appendTimeline(TimelineCancelled, "Order cancelled by customer", now)
	if o.PaymentStatus == PaymentCompleted {
		o.PaymentStatus = PaymentRefunded
		o.appendTimeline(TimelinePaymentRefunded, "Payment refunded due to order cancellation", now)
	}
	return nil
}
