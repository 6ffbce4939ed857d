// Package catalog decodes product records used by the seed and import tools.
package catalog

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-store/internal/domain/product"
)

// productNamespace derives stable product IDs from model numbers so repeated
// imports of the same feed keep the same IDs.
var productNamespace = uuid.MustParse("6f1c6a52-3b1e-4d0b-9a57-1d8a3c2e9f40")

// Record is one product as it appears in seed files and import feeds.
type Record struct {
	ID                string          `json:"id"`
	ModelNo           string          `json:"modelNo"`
	Description       string          `json:"description"`
	Category          string          `json:"category"`
	Brand             string          `json:"brand"`
	Color             string          `json:"color"`
	Image             string          `json:"image"`
	Price             decimal.Decimal `json:"price"`
	Stock             int             `json:"stock"`
	OnDiscount        bool            `json:"onDiscount"`
	DiscountPrice     decimal.Decimal `json:"discountPrice"`
	DiscountStartDate *time.Time      `json:"discountStartDate"`
	DiscountEndDate   *time.Time      `json:"discountEndDate"`
}

// Parse decodes a single JSON record.
func Parse(data []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, errors.Wrap(err, "decode record")
	}
	return rec, nil
}

// ParseAll decodes a JSON array of records.
func ParseAll(data []byte) ([]Record, error) {
	var recs []Record
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, errors.Wrap(err, "decode records")
	}
	return recs, nil
}

// Product validates the record and converts it to a catalog product.
func (r Record) Product() (product.Product, error) {
	modelNo := strings.TrimSpace(r.ModelNo)
	switch {
	case modelNo == "":
		return product.Product{}, errors.New("model number is required")
	case r.Price.IsNegative():
		return product.Product{}, errors.Errorf("%s: price must not be negative", modelNo)
	case r.Stock < 0:
		return product.Product{}, errors.Errorf("%s: stock must not be negative", modelNo)
	case r.OnDiscount && (r.DiscountPrice.IsNegative() || r.DiscountPrice.GreaterThan(r.Price)):
		return product.Product{}, errors.Errorf("%s: discount price must be between 0 and price", modelNo)
	case r.DiscountStartDate != nil && r.DiscountEndDate != nil && r.DiscountEndDate.Before(*r.DiscountStartDate):
		return product.Product{}, errors.Errorf("%s: discount ends before it starts", modelNo)
	}

	id := r.ID
	if id == "" {
		id = uuid.NewSHA1(productNamespace, []byte(modelNo)).String()
	}
	return product.Product{
		ID:            id,
		ModelNo:       modelNo,
		Description:   r.Description,
		Category:      r.Category,
		Brand:         r.Brand,
		Color:         r.Color,
		Image:         r.Image,
		Price:         r.Price,
		Stock:         r.Stock,
		OnDiscount:    r.OnDiscount,
		DiscountPrice: r.DiscountPrice,
		DiscountStart: r.DiscountStartDate,
		DiscountEnd:   r.DiscountEndDate,
	}, nil
}
