package order

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// PaymentInput is the client-supplied payment metadata for checkout. Only the
// fields kept in PaymentDetails are accepted; Last4 is trimmed to its last
// four digits in case a full number slips through.
type PaymentInput struct {
	SecurityFingerprint string
	Card                *CardDetails
	BankTransfer        *BankTransferDetails
}

// PaymentData is the raw payment form submitted for validation. It is never
// stored.
type PaymentData struct {
	CardNumber  string
	ExpiryDate  string
	CVV         string
	BankName    string
	AccountName string
}

// paymentForm carries the format rules for PaymentData. Card fields are
// checked only for card payments and bank fields only for transfers.
type paymentForm struct {
	Method      PaymentMethod `validate:"oneof=card bank_transfer"`
	CardNumber  string        `validate:"required_if=Method card,omitempty,numeric,len=16"`
	ExpiryDate  string        `validate:"required_if=Method card,omitempty,datetime=01/06"`
	CVV         string        `validate:"required_if=Method card,omitempty,numeric,min=3,max=4"`
	BankName    string        `validate:"required_if=Method bank_transfer"`
	AccountName string        `validate:"required_if=Method bank_transfer"`
}

var paymentValidator = validator.New()

func newTransactionID(now time.Time) string {
	return fmt.Sprintf("TXN-%d-%s", now.UnixMilli(), strings.ToUpper(uuid.NewString()[:8]))
}

func initialPaymentStatus(method PaymentMethod, explicit PaymentStatus) PaymentStatus {
	if explicit != "" {
		return explicit
	}
	if method == PaymentOnPickup {
		return PaymentPending
	}
	return PaymentCompleted
}

func buildPaymentDetails(method PaymentMethod, in PaymentInput, now time.Time) PaymentDetails {
	d := PaymentDetails{
		TransactionID:       newTransactionID(now),
		PaymentTime:         now,
		Method:              method,
		SecurityFingerprint: in.SecurityFingerprint,
	}

	switch {
	case method == PaymentCard && in.Card != nil:
		d.Card = &CardDetails{
			Last4:       lastDigits(in.Card.Last4, 4),
			Brand:       in.Card.Brand,
			ExpiryMonth: in.Card.ExpiryMonth,
			ExpiryYear:  in.Card.ExpiryYear,
			HolderName:  in.Card.HolderName,
		}
	case method == PaymentBankTransfer && in.BankTransfer != nil:
		bank := *in.BankTransfer
		d.BankTransfer = &bank
	}
	return d
}

func lastDigits(s string, n int) string {
	var digits []byte
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			digits = append(digits, s[i])
		}
	}
	if len(digits) > n {
		digits = digits[len(digits)-n:]
	}
	return string(digits)
}

func validatePaymentData(method PaymentMethod, data PaymentData) error {
	form := paymentForm{Method: method}
	switch method {
	case PaymentCard:
		form.CardNumber = strings.Join(strings.Fields(data.CardNumber), "")
		form.ExpiryDate = data.ExpiryDate
		form.CVV = data.CVV
	case PaymentBankTransfer:
		form.BankName = data.BankName
		form.AccountName = data.AccountName
	}

	err := paymentValidator.Struct(form)
	if err == nil {
		return nil
	}
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	return paymentFormError(method, fieldErrs)
}

// paymentFormError reports missing fields ahead of malformed ones.
func paymentFormError(method PaymentMethod, errs validator.ValidationErrors) error {
	subject := "card"
	if method == PaymentBankTransfer {
		subject = "bank"
	}
	for _, fe := range errs {
		switch {
		case fe.Field() == "Method":
			return &PaymentValidationError{Message: "Invalid payment method"}
		case fe.Tag() == "required_if":
			return &PaymentValidationError{Message: "Missing required " + subject + " information"}
		}
	}
	return &PaymentValidationError{Message: "Invalid " + subject + " information"}
}
