package plan

import (
	"encoding/json"
	"fmt"
)

// Activity is the plain materialized form of one room's document. It is
// what the HTTP read path and the initial websocket snapshot serve.
type Activity struct {
	Name      string `json:"name,omitempty"`
	StartDate string `json:"startDate,omitempty"`
	EndDate   string `json:"endDate,omitempty"`
	StartTime string `json:"startTime,omitempty"`
	Cards     []Card `json:"cards"`
}

// Card is one entry in an activity's card list. The engine only cares
// about the tagged fields below; everything else a client sends (poll
// options, cost splits, link previews, ...) rides along in Fields and is
// stored and replicated untouched.
type Card struct {
	ID        string
	Type      string
	CreatedAt string
	UpdatedAt string
	Date      string
	Children  []Card
	Fields    map[string]any
}

const (
	keyID        = "id"
	keyType      = "type"
	keyCreatedAt = "createdAt"
	keyUpdatedAt = "updatedAt"
	keyDate      = "date"
	keyChildren  = "children"
)

func reservedKey(k string) bool {
	switch k {
	case keyID, keyType, keyCreatedAt, keyUpdatedAt, keyDate, keyChildren:
		return true
	}
	return false
}

// MarshalJSON flattens Fields into the card object so the wire shape
// matches what clients send.
func (c Card) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(c.Fields)+6)
	for k, v := range c.Fields {
		if reservedKey(k) {
			continue
		}
		out[k] = v
	}
	out[keyID] = c.ID
	out[keyType] = c.Type
	out[keyCreatedAt] = c.CreatedAt
	out[keyUpdatedAt] = c.UpdatedAt
	if c.Date != "" {
		out[keyDate] = c.Date
	}
	if c.Children != nil {
		out[keyChildren] = c.Children
	}
	return json.Marshal(out)
}

func (c *Card) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Card{}
	for k, v := range raw {
		switch k {
		case keyID, keyType, keyCreatedAt, keyUpdatedAt, keyDate:
			var s string
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("failed to decode card field %q: %w", k, err)
			}
			switch k {
			case keyID:
				c.ID = s
			case keyType:
				c.Type = s
			case keyCreatedAt:
				c.CreatedAt = s
			case keyUpdatedAt:
				c.UpdatedAt = s
			case keyDate:
				c.Date = s
			}
		case keyChildren:
			var children []Card
			if err := json.Unmarshal(v, &children); err != nil {
				return fmt.Errorf("failed to decode card children: %w", err)
			}
			c.Children = children
		default:
			var value any
			if err := json.Unmarshal(v, &value); err != nil {
				return fmt.Errorf("failed to decode card field %q: %w", k, err)
			}
			if c.Fields == nil {
				c.Fields = make(map[string]any)
			}
			c.Fields[k] = value
		}
	}
	return nil
}
