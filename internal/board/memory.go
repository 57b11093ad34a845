package board

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"rewardbridge/internal/types"
)

// MemoryGateway is an in-process board used in stub mode and by tests. Column
// writes are rendered to display text the same way the hosted board does.
type MemoryGateway struct {
	mu     sync.Mutex
	boards map[string][]Item
	nextID int
	now    func() time.Time

	// FailList and FailUpdate inject errors per board id / item id.
	FailList   map[string]error
	FailUpdate map[string]error
	Updates    []RecordedUpdate
}

// RecordedUpdate is one UpdateItem call captured by MemoryGateway.
type RecordedUpdate struct {
	BoardID string
	ItemID  string
	Values  ColumnValues
}

// NewMemoryGateway returns an empty board store.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		boards:     make(map[string][]Item),
		nextID:     1000,
		now:        time.Now,
		FailList:   make(map[string]error),
		FailUpdate: make(map[string]error),
	}
}

// Seed appends items to a board.
func (g *MemoryGateway) Seed(boardID string, items ...Item) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.boards[boardID] = append(g.boards[boardID], items...)
}

func (g *MemoryGateway) ListItems(_ context.Context, boardID string) ([]Item, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.FailList[boardID]; err != nil {
		return nil, err
	}
	items := g.boards[boardID]
	out := make([]Item, len(items))
	for i, it := range items {
		cp := it
		cp.Columns = append([]Column(nil), it.Columns...)
		out[i] = cp
	}
	return out, nil
}

func (g *MemoryGateway) UpdateItem(_ context.Context, boardID, itemID string, values ColumnValues) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.FailUpdate[itemID]; err != nil {
		return err
	}
	items := g.boards[boardID]
	for i := range items {
		if items[i].ID != itemID {
			continue
		}
		for col, v := range values {
			if err := setColumn(&items[i], col, v); err != nil {
				return err
			}
		}
		g.Updates = append(g.Updates, RecordedUpdate{BoardID: boardID, ItemID: itemID, Values: values})
		return nil
	}
	return types.NewAppError(types.ErrCodeNotFoundRewardItem, fmt.Sprintf("item %s not found on board %s", itemID, boardID), nil)
}

func (g *MemoryGateway) CreateItem(_ context.Context, boardID, name string, values ColumnValues) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	it := Item{ID: strconv.Itoa(g.nextID), Name: name, CreatedAt: g.now().UTC()}
	for col, v := range values {
		if err := setColumn(&it, col, v); err != nil {
			return "", err
		}
	}
	g.boards[boardID] = append(g.boards[boardID], it)
	return it.ID, nil
}

// UpdatesFor returns the recorded updates of one item.
func (g *MemoryGateway) UpdatesFor(itemID string) []ColumnValues {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []ColumnValues
	for _, u := range g.Updates {
		if u.ItemID == itemID {
			out = append(out, u.Values)
		}
	}
	return out
}

func setColumn(it *Item, col string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding column %s: %w", col, err)
	}
	c := Column{ID: col, Text: DisplayText(v), Value: raw}
	for i := range it.Columns {
		if it.Columns[i].ID == col {
			it.Columns[i] = c
			return nil
		}
	}
	it.Columns = append(it.Columns, c)
	return nil
}

// DisplayText renders an encoded column value as the board shows it.
func DisplayText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]string:
		switch {
		case val["label"] != "":
			return val["label"]
		case val["date"] != "":
			return val["date"]
		case val["email"] != "":
			return val["email"]
		case val["from"] != "":
			return val["from"] + " - " + val["to"]
		default:
			return val["text"]
		}
	case map[string][]string:
		return strings.Join(val["labels"], ", ")
	default:
		return ""
	}
}

// ItemBuilder assembles seeded items for tests and local stub data.
type ItemBuilder struct {
	item Item
}

// NewItem starts an item.
func NewItem(id, name string) *ItemBuilder {
	return &ItemBuilder{item: Item{ID: id, Name: name}}
}

// Created sets the creation time.
func (b *ItemBuilder) Created(t time.Time) *ItemBuilder {
	b.item.CreatedAt = t
	return b
}

// Set sets a column from an encoded value.
func (b *ItemBuilder) Set(col string, v any) *ItemBuilder {
	_ = setColumn(&b.item, col, v)
	return b
}

// Build returns the item.
func (b *ItemBuilder) Build() Item {
	return b.item
}
