// Package order implements the order engine: checkout of a cart into an
// immutable order, stock reservation, and the order/payment state machine.
package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/kart-store/internal/domain/cart"
)

// Status is the fulfilment state of an order.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusShipped    Status = "shipped"
	StatusDelivered  Status = "delivered"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

// PaymentMethod is how the customer pays.
type PaymentMethod string

const (
	PaymentCard         PaymentMethod = "card"
	PaymentBankTransfer PaymentMethod = "bank_transfer"
	PaymentOnPickup     PaymentMethod = "pay_on_pickup"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCard, PaymentBankTransfer, PaymentOnPickup:
		return true
	}
	return false
}

// PaymentStatus is the payment axis of an order, independent of Status.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentCompleted, PaymentFailed, PaymentRefunded:
		return true
	}
	return false
}

// Timeline statuses that are not derived from a Status or PaymentStatus.
const (
	TimelineCreated         = "created"
	TimelineAdminUpdate     = "admin_update"
	TimelineCancelled       = "cancelled"
	TimelinePaymentRefunded = "payment_refunded"
)

// Item is a purchased line. UnitPrice is frozen at checkout.
type Item struct {
	ProductID string          `json:"product_id"`
	ModelNo   string          `json:"model_no"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// ShippingAddress is where the order is delivered.
type ShippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zip_code"`
	Country string `json:"country"`
}

// CardDetails is the non-sensitive subset of card data kept on an order.
type CardDetails struct {
	Last4       string `json:"last4"`
	Brand       string `json:"brand"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	HolderName  string `json:"holder_name"`
}

// BankTransferDetails identifies a bank transfer payment.
type BankTransferDetails struct {
	BankName        string `json:"bank_name"`
	AccountName     string `json:"account_name"`
	ReferenceNumber string `json:"reference_number"`
}

// PaymentDetails is captured once at checkout.
type PaymentDetails struct {
	TransactionID       string               `json:"transaction_id"`
	PaymentTime         time.Time            `json:"payment_time"`
	Method              PaymentMethod        `json:"method"`
	SecurityFingerprint string               `json:"security_fingerprint,omitempty"`
	Card                *CardDetails         `json:"card,omitempty"`
	BankTransfer        *BankTransferDetails `json:"bank_transfer,omitempty"`
}

// TimelineEntry is one record of the append-only order history.
type TimelineEntry struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Note      string    `json:"note"`
}

// Order is a placed order. Items and PaymentDetails never change after
// creation; Status, PaymentStatus and Timeline change only through the
// Service transitions.
type Order struct {
	ID              string
	UserID          string
	Items           []Item
	ShippingAddress ShippingAddress
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	Status          Status
	Subtotal        decimal.Decimal
	Tax             decimal.Decimal
	Shipping        decimal.Decimal
	Total           decimal.Decimal
	PaymentDetails  PaymentDetails
	Timeline        []TimelineEntry

	// Version is bumped by the repository on every successful Update.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (o *Order) clone() *Order {
	c := *o
	c.Items = append([]Item(nil), o.Items...)
	c.Timeline = append([]TimelineEntry(nil), o.Timeline...)
	if o.PaymentDetails.Card != nil {
		card := *o.PaymentDetails.Card
		c.PaymentDetails.Card = &card
	}
	if o.PaymentDetails.BankTransfer != nil {
		bank := *o.PaymentDetails.BankTransfer
		c.PaymentDetails.BankTransfer = &bank
	}
	return &c
}

func (o *Order) appendTimeline(status, note string, at time.Time) {
	o.Timeline = append(o.Timeline, TimelineEntry{Status: status, Timestamp: at, Note: note})
}

// Repository persists orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	// Get returns ErrNotFound when no order has the given id.
	Get(ctx context.Context, id string) (*Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// ListAll returns every order, newest first.
	ListAll(ctx context.Context) ([]Order, error)
	// Update stores o only if the stored version still equals o.Version,
	// then increments o.Version. A stale version yields ErrConflict.
	Update(ctx context.Context, o *Order) error
}

// Carts is the part of the cart aggregate the order engine consumes.
type Carts interface {
	Take(ctx context.Context, userID string) ([]cart.Line, error)
	Restore(ctx context.Context, userID string, lines []cart.Line) error
	Invalidate(ctx context.Context, userID string)
}

// Transactor runs fn inside a single store transaction. Repositories called
// with the context passed to fn take part in that transaction.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}
