package models

import "encoding/json"

type Money struct {
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

type Currency struct {
	Code string `json:"code"`
	Name string `json:"name,omitempty"`
}

type Account struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Primary   bool     `json:"primary"`
	Type      string   `json:"type"`
	Currency  Currency `json:"currency"`
	Balance   Money    `json:"balance"`
	CreatedAt string   `json:"created_at,omitempty"`
	UpdatedAt string   `json:"updated_at,omitempty"`
}

type Pagination struct {
	EndingBefore  *string `json:"ending_before"`
	StartingAfter *string `json:"starting_after"`
	Limit         int     `json:"limit"`
	Order         string  `json:"order"`
	PreviousURI   *string `json:"previous_uri"`
	NextURI       *string `json:"next_uri"`
}

// AccountsResponse is the body of GET /accounts. Raw holds the body exactly
// as received.
type AccountsResponse struct {
	Pagination *Pagination `json:"pagination,omitempty"`
	Data       []Account   `json:"data"`

	Raw json.RawMessage `json:"-"`
}
