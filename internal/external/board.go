package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"rewardbridge/internal/board"
	"rewardbridge/internal/types"
)

const (
	mondayAPIBase    = "https://api.monday.com/v2"
	mondayAPIVersion = "2024-01"
	maxItemsPerPage  = 500
)

// BoardClientConfig configures the monday.com GraphQL client.
type BoardClientConfig struct {
	APIToken   string
	APIURL     string
	APIVersion string
	PageSize   int
	Logger     *slog.Logger
}

// BoardClient implements board.Gateway against the monday.com GraphQL API.
type BoardClient struct {
	base       *BaseClient
	token      string
	apiURL     string
	apiVersion string
	pageSize   int
	logger     *slog.Logger
}

// NewBoardClient creates a BoardClient. httpClient.Timeout bounds each call.
func NewBoardClient(httpClient *http.Client, cfg BoardClientConfig) *BoardClient {
	base := NewBaseClient(httpClient, "monday", DefaultRetryPolicy(), WithUpstreamCode(types.ErrCodeUpstreamBoard))
	return NewBoardClientWithBase(base, cfg)
}

// NewBoardClientWithBase creates a BoardClient around an existing BaseClient.
func NewBoardClientWithBase(base *BaseClient, cfg BoardClientConfig) *BoardClient {
	c := &BoardClient{
		base:       base,
		token:      cfg.APIToken,
		apiURL:     cfg.APIURL,
		apiVersion: cfg.APIVersion,
		pageSize:   cfg.PageSize,
		logger:     cfg.Logger,
	}
	if c.apiURL == "" {
		c.apiURL = mondayAPIBase
	}
	if c.apiVersion == "" {
		c.apiVersion = mondayAPIVersion
	}
	if c.pageSize <= 0 || c.pageSize > maxItemsPerPage {
		c.pageSize = maxItemsPerPage
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

const itemFields = `cursor items { id name created_at column_values { id text value } }`

const firstPageQuery = `query ($boardId: [ID!], $limit: Int!) {
  boards(ids: $boardId) { items_page(limit: $limit) { ` + itemFields + ` } }
}`

const nextPageQuery = `query ($cursor: String!, $limit: Int!) {
  next_items_page(cursor: $cursor, limit: $limit) { ` + itemFields + ` }
}`

const updateMutation = `mutation ($itemId: ID!, $boardId: ID!, $columnValues: JSON!) {
  change_multiple_column_values(item_id: $itemId, board_id: $boardId, column_values: $columnValues, create_labels_if_missing: true) { id }
}`

const createMutation = `mutation ($boardId: ID!, $itemName: String!, $columnValues: JSON) {
  create_item(board_id: $boardId, item_name: $itemName, column_values: $columnValues) { id }
}`

// ListItems fetches every item of boardID, following items_page cursors.
func (c *BoardClient) ListItems(ctx context.Context, boardID string) ([]board.Item, error) {
	start := time.Now()
	data, err := c.execute(ctx, "ListItems", firstPageQuery, map[string]any{
		"boardId": []string{boardID},
		"limit":   c.pageSize,
	})
	if err != nil {
		return nil, err
	}
	items, cursor, err := normalizeItemsPage(data, true)
	if err != nil {
		return nil, err
	}

	pages := 1
	for cursor != "" {
		data, err := c.execute(ctx, "ListItems", nextPageQuery, map[string]any{
			"cursor": cursor,
			"limit":  c.pageSize,
		})
		if err != nil {
			return nil, err
		}
		var page []board.Item
		page, cursor, err = normalizeItemsPage(data, false)
		if err != nil {
			return nil, err
		}
		items = append(items, page...)
		pages++
	}

	c.logger.DebugContext(ctx, "board items fetched",
		"board_id", boardID,
		"items", len(items),
		"pages", pages,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return items, nil
}

// UpdateItem writes column values with change_multiple_column_values.
func (c *BoardClient) UpdateItem(ctx context.Context, boardID, itemID string, values board.ColumnValues) error {
	encoded, err := json.Marshal(values)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode column values", err)
	}
	_, err = c.execute(ctx, "UpdateItem", updateMutation, map[string]any{
		"itemId":       itemID,
		"boardId":      boardID,
		"columnValues": string(encoded),
	})
	return err
}

// CreateItem creates an item and returns its id.
func (c *BoardClient) CreateItem(ctx context.Context, boardID, name string, values board.ColumnValues) (string, error) {
	encoded, err := json.Marshal(values)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode column values", err)
	}
	data, err := c.execute(withoutRetry(ctx), "CreateItem", createMutation, map[string]any{
		"boardId":      boardID,
		"itemName":     name,
		"columnValues": string(encoded),
	})
	if err != nil {
		return "", err
	}
	var out struct {
		CreateItem *struct {
			ID string `json:"id"`
		} `json:"create_item"`
	}
	if err := json.Unmarshal(data, &out); err != nil || out.CreateItem == nil || out.CreateItem.ID == "" {
		return "", normalizationFailure("data.create_item.id", "missing created item id", err)
	}
	return out.CreateItem.ID, nil
}

// Ping runs a minimal query for health checks.
func (c *BoardClient) Ping(ctx context.Context) error {
	_, err := c.execute(ctx, "Ping", `query { me { id } }`, nil)
	return err
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type graphQLResponse struct {
	Data         json.RawMessage `json:"data"`
	Errors       []graphQLError  `json:"errors"`
	ErrorMessage string          `json:"error_message"`
	ErrorCode    string          `json:"error_code"`
}

// execute posts one GraphQL operation and returns its data object. GraphQL
// errors arrive with HTTP 200 and are mapped to upstream_board_unavailable.
func (c *BoardClient) execute(ctx context.Context, op, query string, vars map[string]any) (json.RawMessage, error) {
	body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to encode GraphQL request", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create board request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", c.token)
	req.Header.Set("API-Version", c.apiVersion)

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, types.NewAppError(types.ErrCodeUpstreamBoard,
			fmt.Sprintf("board %s: authentication rejected (%d)", op, resp.StatusCode), nil)
	}
	if resp.StatusCode >= 400 {
		msg := readErrorBody(resp)
		c.logger.ErrorContext(ctx, "board API error", "operation", op, "status_code", resp.StatusCode, "response_body", msg)
		return nil, types.NewAppError(types.ErrCodeUpstreamBoard,
			fmt.Sprintf("board %s returned %d", op, resp.StatusCode), fmt.Errorf("%s", msg))
	}

	var gr graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&gr); err != nil {
		return nil, normalizationFailure("$", "response is not JSON", err)
	}
	if len(gr.Errors) > 0 || gr.ErrorMessage != "" {
		msgs := make([]string, 0, len(gr.Errors)+1)
		for _, e := range gr.Errors {
			msgs = append(msgs, e.Message)
		}
		if gr.ErrorMessage != "" {
			msgs = append(msgs, gr.ErrorMessage)
		}
		return nil, types.NewAppError(types.ErrCodeUpstreamBoard,
			fmt.Sprintf("board %s: %s", op, strings.Join(msgs, "; ")), nil).
			WithDetails(map[string]any{"error_code": gr.ErrorCode})
	}
	if len(gr.Data) == 0 || string(gr.Data) == "null" {
		return nil, normalizationFailure("data", "missing data object", nil)
	}
	return gr.Data, nil
}
