package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xenking/tresses/db"
	"github.com/xenking/tresses/internal/domain/money"
)

func TestParseProducts(t *testing.T) {
	data := []byte(`[{
		"id": "bw", "slug": "body-wave", "name": "Body Wave", "currency": "gbp",
		"price": "149.00", "compare_at_price": "179.00",
		"length_prices": {"16": "149.00", "18": "169.00"},
		"image": {"thumbnail": "/t.jpg"},
		"tags": ["ignored"]
	}]`)

	products, err := parseProducts(data)
	require.NoError(t, err)
	require.Len(t, products, 1)

	p := products[0]
	assert.Equal(t, money.GBP, p.Currency)
	assert.Equal(t, "149", p.BasePrice.String())
	require.NotNil(t, p.CompareAtPrice)
	assert.Equal(t, "179", p.CompareAtPrice.String())
	assert.Equal(t, []int{16, 18}, p.Lengths())
	assert.Equal(t, "169", p.LengthPrices[18].String())
	assert.Equal(t, "/t.jpg", p.Image.Thumbnail)
	assert.True(t, p.Active)
}

func TestParseProducts_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{name: "missing slug", data: `[{"id":"x","currency":"GBP","price":"1"}]`, wantErr: "required"},
		{name: "numeric price", data: `[{"id":"x","slug":"x","currency":"GBP","price":1.5}]`, wantErr: ""},
		{name: "negative price", data: `[{"id":"x","slug":"x","currency":"GBP","price":"-1"}]`, wantErr: "negative"},
		{name: "bad length", data: `[{"id":"x","slug":"x","currency":"GBP","price":"1","length_prices":{"long":"2"}}]`, wantErr: "positive integer"},
		{name: "not an array", data: `{}`, wantErr: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseProducts([]byte(tt.data))
			require.Error(t, err)
			if tt.wantErr != "" {
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestParseProducts_EmbeddedCatalog(t *testing.T) {
	products, err := parseProducts(db.SeedProducts)
	require.NoError(t, err)
	assert.NotEmpty(t, products)
	for _, p := range products {
		assert.NotEmpty(t, p.Slug)
		assert.False(t, p.BasePrice.IsNegative())
	}
}
