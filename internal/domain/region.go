package domain

type StateOption struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// RegionReference is read-only country/state reference data loaded once per
// checkout session.
type RegionReference struct {
	Code   string        `json:"code"`
	Name   string        `json:"name"`
	States []StateOption `json:"states,omitempty"`
}
