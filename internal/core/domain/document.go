package domain

// SearchDocument is the denormalized projection indexed for recall. It is a
// best-effort copy and is never read back for price or stock.
type SearchDocument struct {
	ID            string   `json:"-"`
	VariantID     uint64   `json:"variantId"`
	ProductID     uint64   `json:"productId"`
	ProductName   string   `json:"productName"`
	ProductDesc   string   `json:"productDesc"`
	SizeLabel     string   `json:"sizeLabel"`
	Price         float64  `json:"price"`
	StockQuantity int      `json:"stockQuantity"`
	Tags          []string `json:"tags"`
}
