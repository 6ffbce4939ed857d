package handler

import (
	"bytes"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-store/internal/domain/order"
)

const maxBodySize = 1 << 20

// request is a JSON body decoded field by field.
type request interface {
	decodeField(d *jx.Decoder, key string) error
}

// bind decodes the body of r into req and validates it.
func (h *Handler) bind(r *http.Request, req request) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return badRequest("request body is required")
	}
	if err := jx.DecodeBytes(body).Obj(req.decodeField); err != nil {
		return badRequest("invalid JSON body: %v", err)
	}
	if err := h.validate.Struct(req); err != nil {
		return errors.Wrap(err, "validate")
	}
	return nil
}

func decodeStr(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func decodeMoney(d *jx.Decoder) (decimal.Decimal, error) {
	switch d.Next() {
	case jx.Null:
		return decimal.Zero, d.Null()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(s)
	default:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		return decimal.NewFromString(string(n))
	}
}

type cartItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	Quantity  int    `json:"quantity" validate:"min=1"`
}

func (req *cartItemRequest) decodeField(d *jx.Decoder, key string) (err error) {
	switch key {
	case "productId":
		req.ProductID, err = decodeStr(d)
	case "quantity":
		req.Quantity, err = d.Int()
	default:
		err = d.Skip()
	}
	return err
}

type addressRequest struct {
	Street  string `json:"street" validate:"required"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state" validate:"required"`
	ZipCode string `json:"zipCode" validate:"required"`
	Country string `json:"country"`
}

func (req *addressRequest) decodeField(d *jx.Decoder, key string) (err error) {
	switch key {
	case "street":
		req.Street, err = decodeStr(d)
	case "city":
		req.City, err = decodeStr(d)
	case "state":
		req.State, err = decodeStr(d)
	case "zipCode":
		req.ZipCode, err = decodeStr(d)
	case "country":
		req.Country, err = decodeStr(d)
	default:
		err = d.Skip()
	}
	return err
}

type cardRequest struct {
	Last4       string `json:"last4"`
	Brand       string `json:"brand"`
	ExpiryMonth string `json:"expiryMonth"`
	ExpiryYear  string `json:"expiryYear"`
	HolderName  string `json:"holderName"`
}

func (req *cardRequest) decodeField(d *jx.Decoder, key string) (err error) {
	switch key {
	case "last4", "cardNumber":
		req.Last4, err = decodeStr(d)
	case "brand", "cardType":
		req.Brand, err = decodeStr(d)
	case "expiryMonth":
		req.ExpiryMonth, err = decodeStr(d)
	case "expiryYear":
		req.ExpiryYear, err = decodeStr(d)
	case "holderName", "cardholderName":
		req.HolderName, err = decodeStr(d)
	default:
		err = d.Skip()
	}
	return err
}

type bankTransferRequest struct {
	BankName        string `json:"bankName"`
	AccountName     string `json:"accountName"`
	ReferenceNumber string `json:"referenceNumber"`
}

func (req *bankTransferRequest) decodeField(d *jx.Decoder, key string) (err error) {
	switch key {
	case "bankName":
		req.BankName, err = decodeStr(d)
	case "accountName":
		req.AccountName, err = decodeStr(d)
	case "referenceNumber":
		req.ReferenceNumber, err = decodeStr(d)
	default:
		err = d.Skip()
	}
	return err
}

type paymentDetailsRequest struct {
	SecurityFingerprint string               `json:"securityFingerprint"`
	Card                *cardRequest         `json:"card"`
	BankTransfer        *bankTransferRequest `json:"bankTransfer"`
}

func (req *paymentDetailsRequest) decodeField(d *jx.Decoder, key string) error {
	switch key {
	case "securityFingerprint":
		s, err := decodeStr(d)
		req.SecurityFingerprint = s
		return err
	case "card", "cardDetails":
		req.Card = new(cardRequest)
		return d.Obj(req.Card.decodeField)
	case "bankTransfer", "bankDetails":
		req.BankTransfer = new(bankTransferRequest)
		return d.Obj(req.BankTransfer.decodeField)
	default:
		return d.Skip()
	}
}

type createOrderRequest struct {
	ShippingAddress addressRequest        `json:"shippingAddress"`
	PaymentMethod   string                `json:"paymentMethod" validate:"required,oneof=card bank_transfer pay_on_pickup"`
	PaymentStatus   string                `json:"paymentStatus" validate:"omitempty,oneof=pending completed failed refunded"`
	PaymentDetails  paymentDetailsRequest `json:"paymentDetails"`

	Subtotal decimal.Decimal `json:"subtotal"`
	Tax      decimal.Decimal `json:"tax"`
	Shipping decimal.Decimal `json:"shipping"`
	Total    decimal.Decimal `json:"total"`
}

func (req *createOrderRequest) decodeField(d *jx.Decoder, key string) (err error) {
	switch key {
	case "shippingAddress":
		err = d.Obj(req.ShippingAddress.decodeField)
	case "paymentMethod":
		req.PaymentMethod, err = decodeStr(d)
	case "paymentStatus":
		req.PaymentStatus, err = decodeStr(d)
	case "paymentDetails":
		err = d.Obj(req.PaymentDetails.decodeField)
	case "subtotal":
		req.Subtotal, err = decodeMoney(d)
	case "tax":
		req.Tax, err = decodeMoney(d)
	case "shipping":
		req.Shipping, err = decodeMoney(d)
	case "total":
		req.Total, err = decodeMoney(d)
	default:
		err = d.Skip()
	}
	return err
}

// checkAmounts rejects negative monetary fields.
func (req *createOrderRequest) checkAmounts() error {
	for _, f := range []struct {
		name  string
		value decimal.Decimal
	}{
		{"subtotal", req.Subtotal},
		{"tax", req.Tax},
		{"shipping", req.Shipping},
		{"total", req.Total},
	} {
		if f.value.IsNegative() {
			return &apiError{status: http.StatusUnprocessableEntity, message: f.name + " must not be negative"}
		}
	}
	return nil
}

func (req *createOrderRequest) toDomain() order.CreateRequest {
	out := order.CreateRequest{
		ShippingAddress: order.ShippingAddress{
			Street:  req.ShippingAddress.Street,
			City:    req.ShippingAddress.City,
			State:   req.ShippingAddress.State,
			ZipCode: req.ShippingAddress.ZipCode,
			Country: req.ShippingAddress.Country,
		},
		PaymentMethod: order.PaymentMethod(req.PaymentMethod),
		PaymentStatus: order.PaymentStatus(req.PaymentStatus),
		Payment: order.PaymentInput{
			SecurityFingerprint: req.PaymentDetails.SecurityFingerprint,
		},
		Subtotal: req.Subtotal,
		Tax:      req.Tax,
		Shipping: req.Shipping,
		Total:    req.Total,
	}
	if c := req.PaymentDetails.Card; c != nil {
		out.Payment.Card = &order.CardDetails{
			Last4:       c.Last4,
			Brand:       c.Brand,
			ExpiryMonth: c.ExpiryMonth,
			ExpiryYear:  c.ExpiryYear,
			HolderName:  c.HolderName,
		}
	}
	if b := req.PaymentDetails.BankTransfer; b != nil {
		out.Payment.BankTransfer = &order.BankTransferDetails{
			BankName:        b.BankName,
			AccountName:     b.AccountName,
			ReferenceNumber: b.ReferenceNumber,
		}
	}
	return out
}

type statusUpdateRequest struct {
	OrderStatus   string `json:"orderStatus" validate:"omitempty,oneof=processing shipped delivered cancelled"`
	PaymentStatus string `json:"paymentStatus" validate:"omitempty,oneof=pending completed failed refunded"`
}

func (req *statusUpdateRequest) decodeField(d *jx.Decoder, key string) (err error) {
	switch key {
	case "orderStatus":
		req.OrderStatus, err = decodeStr(d)
	case "paymentStatus":
		req.PaymentStatus, err = decodeStr(d)
	default:
		err = d.Skip()
	}
	return err
}

type paymentDataRequest struct {
	CardNumber  string `json:"cardNumber"`
	ExpiryDate  string `json:"expiryDate"`
	CVV         string `json:"cvv"`
	BankName    string `json:"bankName"`
	AccountName string `json:"accountName"`
}

func (req *paymentDataRequest) decodeField(d *jx.Decoder, key string) (err error) {
	switch key {
	case "cardNumber":
		req.CardNumber, err = decodeStr(d)
	case "expiryDate":
		req.ExpiryDate, err = decodeStr(d)
	case "cvv":
		req.CVV, err = decodeStr(d)
	case "bankName":
		req.BankName, err = decodeStr(d)
	case "accountName":
		req.AccountName, err = decodeStr(d)
	default:
		err = d.Skip()
	}
	return err
}

type validatePaymentRequest struct {
	PaymentMethod string             `json:"paymentMethod"`
	PaymentData   paymentDataRequest `json:"paymentData"`
}

func (req *validatePaymentRequest) decodeField(d *jx.Decoder, key string) (err error) {
	switch key {
	case "paymentMethod":
		req.PaymentMethod, err = decodeStr(d)
	case "paymentData":
		err = d.Obj(req.PaymentData.decodeField)
	default:
		err = d.Skip()
	}
	return err
}
