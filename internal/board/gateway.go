// Package board maps work-management board items onto the employee and
// reward records the workflows operate on. The vendor client lives in
// internal/external; this package owns the column mapping, typed parsing,
// column-value encoding and the repositories built on the Gateway interface.
package board

import (
	"context"
	"encoding/json"
	"time"
)

// Column is one column value of an item as returned by the board API.
type Column struct {
	ID    string          `json:"id"`
	Text  string          `json:"text"`
	Value json.RawMessage `json:"value,omitempty"`
}

// Item is a normalized board row.
type Item struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Columns   []Column  `json:"column_values"`
}

// Column returns the column with id, if present.
func (it Item) Column(id string) (Column, bool) {
	for _, c := range it.Columns {
		if c.ID == id {
			return c, true
		}
	}
	return Column{}, false
}

// Text returns the display text of column id, or "".
func (it Item) Text(id string) string {
	c, _ := it.Column(id)
	return c.Text
}

// ColumnValues is the payload of an update or create: column id -> encoded
// value, built with the value constructors in values.go.
type ColumnValues map[string]any

// Gateway is the board store the workflows depend on.
type Gateway interface {
	// ListItems returns every item of the board in board order, following
	// pagination to the end.
	ListItems(ctx context.Context, boardID string) ([]Item, error)

	// UpdateItem writes a set of column values on one item.
	UpdateItem(ctx context.Context, boardID, itemID string, values ColumnValues) error

	// CreateItem creates an item and returns its id.
	CreateItem(ctx context.Context, boardID, name string, values ColumnValues) (string, error)
}
