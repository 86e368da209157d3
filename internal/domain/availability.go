package domain

// VariantCheck is the per-variant outcome of a fulfillment availability check,
// kept so the UI can mark individual lines.
type VariantCheck struct {
	VariantID int64  `json:"variant_id"`
	Available bool   `json:"available"`
	Name      string `json:"name,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// AvailabilityResult is always fully populated; a failed provider call
// degrades to Available=false with a retry message, never to an absent or
// half-checked result.
type AvailabilityResult struct {
	Available bool           `json:"available"`
	Checks    []VariantCheck `json:"checks,omitempty"`
	Message   string         `json:"message"`
}
