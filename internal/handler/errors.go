package handler

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xenking/kart-store/internal/domain"
	"github.com/xenking/kart-store/internal/domain/auth"
	"github.com/xenking/kart-store/internal/domain/cart"
	"github.com/xenking/kart-store/internal/domain/order"
	"github.com/xenking/kart-store/internal/domain/product"
)

// apiError is an error that already knows its HTTP status.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string { return e.message }

func badRequest(format string, args ...any) error {
	return &apiError{status: http.StatusBadRequest, message: fmt.Sprintf(format, args...)}
}

var (
	errRouteNotFound    = &apiError{status: http.StatusNotFound, message: "route not found"}
	errMethodNotAllowed = &apiError{status: http.StatusMethodNotAllowed, message: "method not allowed"}
	errMissingAPIKey    = &apiError{status: http.StatusUnauthorized, message: "missing api key"}
	errInvalidAPIKey    = &apiError{status: http.StatusUnauthorized, message: "invalid api key"}
)

// sentinels maps domain sentinel errors to statuses. The sentinel's own text
// is used as the message so wrapping context never leaks to clients.
var sentinels = []struct {
	err    error
	status int
}{
	{product.ErrNotFound, http.StatusNotFound},
	{order.ErrNotFound, http.StatusNotFound},
	{cart.ErrLineNotFound, http.StatusNotFound},
	{order.ErrEmptyCart, http.StatusBadRequest},
	{cart.ErrInvalidQuantity, http.StatusBadRequest},
	{order.ErrInvalidPaymentMethod, http.StatusBadRequest},
	{order.ErrInvalidStatus, http.StatusBadRequest},
	{order.ErrInvalidAddress, http.StatusBadRequest},
	{order.ErrConflict, http.StatusConflict},
	{auth.ErrUnauthenticated, http.StatusUnauthorized},
	{auth.ErrForbidden, http.StatusForbidden},
}

// classify returns the response status and client-facing message for err.
func classify(err error) (int, string) {
	var (
		apiErr      *apiError
		invalid     validator.ValidationErrors
		stockErr    *product.InsufficientStockError
		unavailable *order.ProductUnavailableError
		transition  *order.InvalidTransitionError
		payment     *order.PaymentValidationError
	)
	switch {
	case errors.As(err, &apiErr):
		return apiErr.status, apiErr.message
	case errors.As(err, &invalid):
		return http.StatusUnprocessableEntity, validationMessage(invalid)
	case errors.As(err, &stockErr):
		return http.StatusBadRequest, stockErr.Error()
	case errors.As(err, &unavailable):
		return http.StatusBadRequest, "One or more products in your cart are no longer available"
	case errors.As(err, &transition):
		return http.StatusBadRequest, transition.Error()
	case errors.As(err, &payment):
		return http.StatusBadRequest, payment.Error()
	case errors.Is(err, domain.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, "service temporarily unavailable"
	}
	for _, s := range sentinels {
		if errors.Is(err, s.err) {
			return s.status, s.err.Error()
		}
	}
	return http.StatusInternalServerError, "internal server error"
}

func validationMessage(errs validator.ValidationErrors) string {
	fields := make([]string, 0, len(errs))
	for _, fe := range errs {
		name := fe.Namespace()
		if _, rest, ok := strings.Cut(name, "."); ok {
			name = rest
		}
		fields = append(fields, fmt.Sprintf("%s (%s)", name, fe.Tag()))
	}
	return "invalid fields: " + strings.Join(fields, ", ")
}

// writeError maps err to a {"code", "message"} body. Server-side failures
// are logged; client errors only at debug level.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := classify(err)

	lg := zctx.From(r.Context())
	if status >= http.StatusInternalServerError {
		lg.Error("Request failed", zap.Int("status", status), zap.Error(err))
	} else {
		lg.Debug("Request rejected", zap.Int("status", status), zap.Error(err))
	}

	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	var stockErr *product.InsufficientStockError
	hasStock := errors.As(err, &stockErr)

	writeJSON(w, status, func(e *jx.Encoder) {
		e.ObjStart()
		e.FieldStart("code")
		e.Int(status)
		e.FieldStart("message")
		e.Str(message)
		if hasStock {
			e.FieldStart("productId")
			e.Str(stockErr.ProductID)
			e.FieldStart("available")
			e.Int(stockErr.Available)
		}
		e.ObjEnd()
	})
}
