package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          uint64    `json:"id,string"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	ImagePath   string    `json:"image_path,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Variant is a purchasable SKU of a product.
type Variant struct {
	ID        uint64          `json:"id,string"`
	ProductID uint64          `json:"product_id,string"`
	Code      string          `json:"code"`
	SizeLabel string          `json:"size_label"`
	Price     decimal.Decimal `json:"price"`
	Energy    decimal.Decimal `json:"energy"`
	Active    bool            `json:"active"`
}

// VariantDetail joins a variant with its product and stock. It is the shape
// cached under the variant namespace and returned by search hydration.
type VariantDetail struct {
	Variant Variant `json:"variant"`
	Product Product `json:"product"`
	Stock   Stock   `json:"stock"`
}
