package handler

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/xenking/kart-store/internal/domain/auth"
	"github.com/xenking/kart-store/internal/domain/cart"
	"github.com/xenking/kart-store/internal/domain/order"
	"github.com/xenking/kart-store/internal/domain/product"
)

// Carts is the cart aggregate as seen by the HTTP layer.
type Carts interface {
	AddItem(ctx context.Context, userID, productID string, qty int) error
	SetQuantity(ctx context.Context, userID, productID string, qty int) error
	RemoveItem(ctx context.Context, userID, productID string) error
	Clear(ctx context.Context, userID string) error
	Snapshot(ctx context.Context, userID string) (*cart.Snapshot, error)
}

var _ Carts = (*cart.Service)(nil)

// Orders is the order engine as seen by the HTTP layer.
type Orders interface {
	Create(ctx context.Context, p auth.Principal, req order.CreateRequest) (*order.Order, error)
	ListMine(ctx context.Context, p auth.Principal) ([]order.Order, error)
	Get(ctx context.Context, p auth.Principal, id string) (*order.Order, error)
	ListAll(ctx context.Context, p auth.Principal) ([]order.Order, error)
	PaymentDetails(ctx context.Context, p auth.Principal, id string) (*order.PaymentSummary, error)
	ValidatePayment(ctx context.Context, method order.PaymentMethod, data order.PaymentData) (string, error)
	UpdateStatus(ctx context.Context, p auth.Principal, id string, u order.StatusUpdate) (*order.Order, error)
	Cancel(ctx context.Context, p auth.Principal, id string) (*order.Order, error)
}

var _ Orders = (*order.Service)(nil)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to product image paths in responses.
	// When empty, image paths are returned as stored.
	ImageBaseURL string
}

// Handler serves the catalog, cart and order endpoints.
type Handler struct {
	products product.Repository
	carts    Carts
	orders   Orders

	validate     *validator.Validate
	imageBaseURL string
	now          func() time.Time
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(cfg Config, products product.Repository, carts Carts, orders Orders) *Handler {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Handler{
		products:     products,
		carts:        carts,
		orders:       orders,
		validate:     validate,
		imageBaseURL: cfg.ImageBaseURL,
		now:          time.Now,
	}
}

// Routes returns the API router. Everything except the catalog goes through
// authn, and the /orders/admin subtree additionally requires an admin.
func (h *Handler) Routes(authn func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errMethodNotAllowed)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/discounted-products", h.ListDiscountedProducts)
		r.Get("/category/{category}", h.ListCategoryProducts)
		r.Get("/{productID}", h.GetProduct)
	})

	r.Group(func(r chi.Router) {
		r.Use(authn)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Post("/add", h.AddToCart)
			r.Put("/update", h.UpdateCartItem)
			r.Delete("/remove/{productID}", h.RemoveCartItem)
			r.Delete("/clear", h.ClearCart)
		})

		r.Route("/orders", func(r chi.Router) {
			r.Post("/create", h.CreateOrder)
			r.Get("/my-orders", h.ListMyOrders)
			r.Post("/validate-payment", h.ValidatePayment)
			r.Get("/{orderID}", h.GetOrder)
			r.Patch("/{orderID}/cancel", h.CancelOrder)

			r.Route("/admin", func(r chi.Router) {
				r.Use(RequireAdmin)
				r.Get("/all", h.ListAllOrders)
				r.Get("/{orderID}", h.GetOrder)
				r.Patch("/{orderID}/status", h.UpdateOrderStatus)
				r.Get("/{orderID}/payment-details", h.GetPaymentDetails)
			})
		})
	})

	return r
}
