package domain

import "time"

type Cart struct {
	OwnerKey  string     `json:"owner_key"`
	Items     []CartItem `json:"items"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

type CartItem struct {
	VariantID int64 `json:"variant_id"`
	// FulfillmentVariantID is the fulfillment provider's identifier for this
	// variant. Zero means the item is not fulfillment-managed and is skipped
	// by availability checks.
	FulfillmentVariantID int64   `json:"fulfillment_variant_id,omitempty"`
	Name                 string  `json:"name"`
	Quantity             int32   `json:"quantity"`
	UnitPrice            float64 `json:"unit_price"`
	Subtotal             float64 `json:"subtotal"`
}

// ItemCount returns the number of line entries, not the summed quantities.
// Merge prompts report counts in line entries.
func (c *Cart) ItemCount() int {
	if c == nil {
		return 0
	}
	return len(c.Items)
}

func (c *Cart) Total() float64 {
	if c == nil {
		return 0
	}
	var total float64
	for _, item := range c.Items {
		total += item.Subtotal
	}
	return total
}

// CartMergeData is the ephemeral conflict snapshot shown to the user between
// conflict detection and resolution. It is discarded once the merge is
// confirmed or cancelled.
type CartMergeData struct {
	GuestCartCount int `json:"guest_cart_count"`
	UserCartCount  int `json:"user_cart_count"`
}
