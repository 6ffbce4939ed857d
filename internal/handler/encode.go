package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-store/internal/domain/cart"
	"github.com/xenking/kart-store/internal/domain/order"
	"github.com/xenking/kart-store/internal/domain/product"
)

// timeLayout is ISO-8601 with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Num(jx.Num(d.StringFixed(2)))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(timeLayout))
}

func encodeOptTime(e *jx.Encoder, t *time.Time) {
	if t == nil {
		e.Null()
		return
	}
	encodeTime(e, *t)
}

func (h *Handler) encodeProduct(e *jx.Encoder, p *product.Product, now time.Time) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(p.ID)
	e.FieldStart("modelNo")
	e.Str(p.ModelNo)
	e.FieldStart("description")
	e.Str(p.Description)
	e.FieldStart("category")
	e.Str(p.Category)
	e.FieldStart("brand")
	e.Str(p.Brand)
	e.FieldStart("color")
	e.Str(p.Color)
	e.FieldStart("image")
	if p.Image != "" {
		e.Str(h.imageBaseURL + p.Image)
	} else {
		e.Str("")
	}
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("stock")
	e.Int(p.Stock)
	e.FieldStart("onDiscount")
	e.Bool(p.OnDiscountAt(now))
	if p.OnDiscount {
		e.FieldStart("discountPrice")
		encodeMoney(e, p.DiscountPrice)
		e.FieldStart("discountStartDate")
		encodeOptTime(e, p.DiscountStart)
		e.FieldStart("discountEndDate")
		encodeOptTime(e, p.DiscountEnd)
	}
	e.FieldStart("effectivePrice")
	encodeMoney(e, p.EffectivePrice(now))
	e.ObjEnd()
}

func (h *Handler) encodeCart(e *jx.Encoder, s *cart.Snapshot, now time.Time) {
	e.ObjStart()
	e.FieldStart("items")
	e.ArrStart()
	for i := range s.Items {
		item := &s.Items[i]
		e.ObjStart()
		e.FieldStart("product")
		h.encodeProduct(e, &item.Product, now)
		e.FieldStart("quantity")
		e.Int(item.Quantity)
		e.FieldStart("unitPrice")
		encodeMoney(e, item.UnitPrice)
		e.FieldStart("lineTotal")
		encodeMoney(e, item.LineTotal)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("totalPrice")
	encodeMoney(e, s.TotalPrice)
	e.FieldStart("totalItems")
	e.Int(s.TotalItems)
	e.ObjEnd()
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("userId")
	e.Str(o.UserID)

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("productId")
		e.Str(it.ProductID)
		e.FieldStart("modelNo")
		e.Str(it.ModelNo)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("price")
		encodeMoney(e, it.UnitPrice)
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("shippingAddress")
	encodeAddress(e, o.ShippingAddress)
	e.FieldStart("paymentMethod")
	e.Str(string(o.PaymentMethod))
	e.FieldStart("paymentStatus")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("orderStatus")
	e.Str(string(o.Status))

	e.FieldStart("subtotal")
	encodeMoney(e, o.Subtotal)
	e.FieldStart("tax")
	encodeMoney(e, o.Tax)
	e.FieldStart("shipping")
	encodeMoney(e, o.Shipping)
	e.FieldStart("total")
	encodeMoney(e, o.Total)

	e.FieldStart("paymentDetails")
	encodePaymentDetails(e, &o.PaymentDetails)
	e.FieldStart("timeline")
	encodeTimeline(e, o.Timeline)

	e.FieldStart("createdAt")
	encodeTime(e, o.CreatedAt)
	e.FieldStart("updatedAt")
	encodeTime(e, o.UpdatedAt)
	e.ObjEnd()
}

func encodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for i := range orders {
		encodeOrder(e, &orders[i])
	}
	e.ArrEnd()
}

func encodeAddress(e *jx.Encoder, a order.ShippingAddress) {
	e.ObjStart()
	e.FieldStart("street")
	e.Str(a.Street)
	e.FieldStart("city")
	e.Str(a.City)
	e.FieldStart("state")
	e.Str(a.State)
	e.FieldStart("zipCode")
	e.Str(a.ZipCode)
	e.FieldStart("country")
	e.Str(a.Country)
	e.ObjEnd()
}

func encodePaymentDetails(e *jx.Encoder, d *order.PaymentDetails) {
	e.ObjStart()
	e.FieldStart("transactionId")
	e.Str(d.TransactionID)
	e.FieldStart("paymentTime")
	encodeTime(e, d.PaymentTime)
	e.FieldStart("method")
	e.Str(string(d.Method))
	if d.SecurityFingerprint != "" {
		e.FieldStart("securityFingerprint")
		e.Str(d.SecurityFingerprint)
	}
	if c := d.Card; c != nil {
		e.FieldStart("card")
		e.ObjStart()
		e.FieldStart("last4")
		e.Str(c.Last4)
		e.FieldStart("brand")
		e.Str(c.Brand)
		e.FieldStart("expiryMonth")
		e.Str(c.ExpiryMonth)
		e.FieldStart("expiryYear")
		e.Str(c.ExpiryYear)
		e.FieldStart("holderName")
		e.Str(c.HolderName)
		e.ObjEnd()
	}
	if b := d.BankTransfer; b != nil {
		e.FieldStart("bankTransfer")
		e.ObjStart()
		e.FieldStart("bankName")
		e.Str(b.BankName)
		e.FieldStart("accountName")
		e.Str(b.AccountName)
		e.FieldStart("referenceNumber")
		e.Str(b.ReferenceNumber)
		e.ObjEnd()
	}
	e.ObjEnd()
}

func encodeTimeline(e *jx.Encoder, timeline []order.TimelineEntry) {
	e.ArrStart()
	for _, t := range timeline {
		e.ObjStart()
		e.FieldStart("status")
		e.Str(t.Status)
		e.FieldStart("timestamp")
		encodeTime(e, t.Timestamp)
		if t.Note != "" {
			e.FieldStart("note")
			e.Str(t.Note)
		}
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodePaymentSummary(e *jx.Encoder, s *order.PaymentSummary) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(s.OrderID)
	e.FieldStart("userId")
	e.Str(s.UserID)
	e.FieldStart("paymentMethod")
	e.Str(string(s.PaymentMethod))
	e.FieldStart("paymentStatus")
	e.Str(string(s.PaymentStatus))
	e.FieldStart("paymentDetails")
	encodePaymentDetails(e, &s.Details)
	e.FieldStart("timeline")
	encodeTimeline(e, s.Timeline)
	e.ObjEnd()
}
