package models

import "encoding/json"

// Event is a Coinbase webhook notification. Data is kept opaque since its
// shape varies per event type.
type Event struct {
	ID        string          `json:"id,omitempty"`
	Type      string          `json:"type"`
	Resource  string          `json:"resource,omitempty"`
	CreatedAt string          `json:"created_at,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`

	// ReceiptID is assigned on arrival for log correlation; never sent by Coinbase.
	ReceiptID string `json:"-"`
}

// ParseEvent decodes an event from the raw request body.
func ParseEvent(body []byte) (*Event, error) {
	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, err
	}
	evt.ReceiptID = NewID("evt")
	return &evt, nil
}
