package domain

// CustomerInfo is the shipping contact for a checkout. It is mutated
// field-by-field as the user types or as lookups resolve.
type CustomerInfo struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2,omitempty"`
	City     string `json:"city"`
	State    string `json:"state,omitempty"`
	Zip      string `json:"zip"`
	Country  string `json:"country"`
}

// SessionUser is the authenticated identity for the duration of the browser
// session. It is owned by the session store.
type SessionUser struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone,omitempty"`
	Role         string `json:"role"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
