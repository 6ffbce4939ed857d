package catalog

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	rec, err := Parse([]byte(`{
		"modelNo": "EOS-R50",
		"brand": "Canon",
		"price": 679.99,
		"stock": 12,
		"onDiscount": true,
		"discountPrice": "599.00",
		"discountStartDate": "2026-01-01T00:00:00Z",
		"discountEndDate": "2026-02-01T00:00:00Z"
	}`))
	require.NoError(t, err)

	p, err := rec.Product()
	require.NoError(t, err)
	assert.Equal(t, "EOS-R50", p.ModelNo)
	assert.True(t, p.Price.Equal(decimal.RequireFromString("679.99")))
	assert.True(t, p.DiscountPrice.Equal(decimal.RequireFromString("599")))
	assert.Equal(t, 12, p.Stock)
	require.NotNil(t, p.DiscountStart)
	require.NotNil(t, p.DiscountEnd)
	assert.NotEmpty(t, p.ID)
}

func TestParse_Malformed(t *testing.T) {
	_, err := Parse([]byte(`{"modelNo": `))
	require.Error(t, err)
}

func TestRecord_StableID(t *testing.T) {
	a, err := Record{ModelNo: "X-1"}.Product()
	require.NoError(t, err)
	b, err := Record{ModelNo: " X-1 "}.Product()
	require.NoError(t, err)
	c, err := Record{ModelNo: "X-2"}.Product()
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)

	explicit, err := Record{ID: "p1", ModelNo: "X-1"}.Product()
	require.NoError(t, err)
	assert.Equal(t, "p1", explicit.ID)
}

func TestRecord_Product_Invalid(t *testing.T) {
	ten := decimal.NewFromInt(10)
	tests := []struct {
		name    string
		rec     Record
		wantErr string
	}{
		{name: "no model", rec: Record{Price: ten}, wantErr: "model number is required"},
		{name: "negative price", rec: Record{ModelNo: "m", Price: decimal.NewFromInt(-1)}, wantErr: "price must not be negative"},
		{name: "negative stock", rec: Record{ModelNo: "m", Price: ten, Stock: -1}, wantErr: "stock must not be negative"},
		{
			name:    "discount above price",
			rec:     Record{ModelNo: "m", Price: ten, OnDiscount: true, DiscountPrice: decimal.NewFromInt(11)},
			wantErr: "discount price",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.rec.Product()
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestParseAll(t *testing.T) {
	recs, err := ParseAll([]byte(`[{"modelNo":"a","price":"1"},{"modelNo":"b","price":2}]`))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "b", recs[1].ModelNo)
}
