package domain

import "time"

type OrderItem struct {
	VariantID uint64 `json:"variant_id,string"`
	Quantity  int    `json:"quantity"`
}

type Order struct {
	ID        uint64      `json:"id,string"`
	UserID    uint64      `json:"user_id,string"`
	Address   string      `json:"address"`
	Items     []OrderItem `json:"items"`
	CreatedAt time.Time   `json:"created_at"`
}
