package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry as returned by the remote source.
type Product struct {
	ID          string          `json:"_id" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price" validate:"gte=0"`
	Image       string          `json:"image,omitempty"`
	Quantity    int             `json:"quantity" validate:"gte=0"`
	Category    CategoryRef     `json:"category,omitempty"`
}

// RecordID returns the product id used as the durable primary key.
func (p Product) RecordID() string { return p.ID }

// Category is a catalog grouping.
type Category struct {
	ID   string `json:"_id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

// RecordID returns the category id used as the durable primary key.
func (c Category) RecordID() string { return c.ID }

// CategoryRef is the id of the category a product belongs to.
//
// The remote payload nests the category as {"_id": "..."}; a bare string is
// accepted as well. It always encodes as a bare string.
type CategoryRef string

// UnmarshalJSON accepts either "id" or {"_id": "id"}.
func (r *CategoryRef) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = ""
		return nil
	}
	if data[0] == '{' {
		var nested struct {
			ID string `json:"_id"`
		}
		if err := json.Unmarshal(data, &nested); err != nil {
			return fmt.Errorf("category ref: %w", err)
		}
		*r = CategoryRef(nested.ID)
		return nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("category ref: %w", err)
	}
	*r = CategoryRef(id)
	return nil
}

// CartLineItem pairs a product snapshot with the quantity being purchased.
// PurchaseQuantity is always >= 1; a zero quantity means the line is absent.
type CartLineItem struct {
	Product
	PurchaseQuantity int `json:"purchaseQuantity" validate:"gte=1"`
}

// Subtotal returns price times quantity.
func (l CartLineItem) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.PurchaseQuantity)))
}
