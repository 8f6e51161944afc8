package domain

import "time"

// Stock is the authoritative quantity for one variant. It shares the
// variant's identifier: the stock table is keyed by variant_id.
type Stock struct {
	VariantID uint64
	Quantity  int
	UpdatedAt time.Time
}
