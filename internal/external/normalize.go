package external

import (
	"encoding/json"
	"fmt"
	"time"

	"rewardbridge/internal/board"
	"rewardbridge/internal/types"
)

// NormalizationError reports a board response whose shape does not match the
// items_page contract. It is wrapped in an internal_board_normalization
// AppError and treated as fatal by the scan.
type NormalizationError struct {
	Path   string
	Reason string
	Err    error
}

func (e *NormalizationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("board response at %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("board response at %s: %s", e.Path, e.Reason)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

func normalizationFailure(path, reason string, err error) *types.AppError {
	ne := &NormalizationError{Path: path, Reason: reason, Err: err}
	return types.NewAppError(types.ErrCodeInternalBoardNormalization, ne.Error(), ne)
}

type wireColumn struct {
	ID    *string `json:"id"`
	Text  *string `json:"text"`
	Value *string `json:"value"`
}

type wireItem struct {
	ID           *string      `json:"id"`
	Name         string       `json:"name"`
	CreatedAt    string       `json:"created_at"`
	ColumnValues []wireColumn `json:"column_values"`
}

type wirePage struct {
	Cursor *string     `json:"cursor"`
	Items  *[]wireItem `json:"items"`
}

// normalizeItemsPage is the single place board list responses are decoded.
// The first page arrives as data.boards[0].items_page, later pages as
// data.next_items_page. Any deviation is a NormalizationError; an unknown
// board id is not_found_board.
func normalizeItemsPage(data json.RawMessage, first bool) ([]board.Item, string, error) {
	var page *wirePage
	path := "data.next_items_page"

	if first {
		path = "data.boards[0].items_page"
		var env struct {
			Boards *[]struct {
				ItemsPage *wirePage `json:"items_page"`
			} `json:"boards"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, "", normalizationFailure("data.boards", "unexpected shape", err)
		}
		if env.Boards == nil {
			return nil, "", normalizationFailure("data.boards", "missing", nil)
		}
		if len(*env.Boards) == 0 {
			return nil, "", types.NewAppError(types.ErrCodeNotFoundBoard, "board not found or not accessible", nil)
		}
		page = (*env.Boards)[0].ItemsPage
	} else {
		var env struct {
			NextItemsPage *wirePage `json:"next_items_page"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, "", normalizationFailure(path, "unexpected shape", err)
		}
		page = env.NextItemsPage
	}

	if page == nil {
		return nil, "", normalizationFailure(path, "missing", nil)
	}
	if page.Items == nil {
		return nil, "", normalizationFailure(path+".items", "missing", nil)
	}

	items := make([]board.Item, 0, len(*page.Items))
	for i, wi := range *page.Items {
		itemPath := fmt.Sprintf("%s.items[%d]", path, i)
		if wi.ID == nil || *wi.ID == "" {
			return nil, "", normalizationFailure(itemPath+".id", "missing", nil)
		}
		it := board.Item{ID: *wi.ID, Name: wi.Name}
		if wi.CreatedAt != "" {
			ts, err := time.Parse(time.RFC3339, wi.CreatedAt)
			if err != nil {
				return nil, "", normalizationFailure(itemPath+".created_at", "not RFC 3339", err)
			}
			it.CreatedAt = ts
		}
		for j, wc := range wi.ColumnValues {
			if wc.ID == nil {
				return nil, "", normalizationFailure(fmt.Sprintf("%s.column_values[%d].id", itemPath, j), "missing", nil)
			}
			col := board.Column{ID: *wc.ID}
			if wc.Text != nil {
				col.Text = *wc.Text
			}
			if wc.Value != nil && json.Valid([]byte(*wc.Value)) {
				col.Value = json.RawMessage(*wc.Value)
			}
			it.Columns = append(it.Columns, col)
		}
		items = append(items, it)
	}

	cursor := ""
	if page.Cursor != nil {
		cursor = *page.Cursor
	}
	return items, cursor, nil
}
