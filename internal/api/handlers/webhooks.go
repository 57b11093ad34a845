package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"rewardbridge/internal/board"
	"rewardbridge/internal/core"
	"rewardbridge/internal/rewards"
	"rewardbridge/internal/types"
)

// maxWebhookBody caps webhook payloads; board events are small.
const maxWebhookBody = 256 << 10

// Board event types the webhook reacts to.
const (
	EventCreateItem         = "create_item"
	EventCreatePulse        = "create_pulse"
	EventChangeColumnValue  = "change_column_value"
	EventChangeStatusColumn = "change_status_column_value"
)

// WebhookRewardService is the part of the approval workflow driven by board
// events.
type WebhookRewardService interface {
	RecalculateTier(ctx context.Context, itemID string) (*rewards.Assessment, error)
	AutoAssignManager(ctx context.Context, itemID, department string) (string, error)
	HandleStatusChange(ctx context.Context, itemID string, status types.ApprovalStatus) error
}

// WebhookConfig configures the board webhook.
type WebhookConfig struct {
	Rewards          WebhookRewardService
	SigningSecret    string
	EmployeesBoardID string
	RewardsBoardID   string
	Columns          board.RewardColumns
	Logger           *slog.Logger
}

// WebhookHandler receives board events.
type WebhookHandler struct {
	rewards        WebhookRewardService
	secret         []byte
	employeesBoard string
	rewardsBoard   string
	columns        board.RewardColumns
	logger         *slog.Logger
}

func NewWebhookHandler(cfg WebhookConfig) *WebhookHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &WebhookHandler{
		rewards:        cfg.Rewards,
		employeesBoard: cfg.EmployeesBoardID,
		rewardsBoard:   cfg.RewardsBoardID,
		columns:        cfg.Columns,
		logger:         cfg.Logger,
	}
	if cfg.SigningSecret != "" {
		h.secret = []byte(cfg.SigningSecret)
	} else {
		h.logger.Warn("webhook signature verification disabled: no signing secret configured")
	}
	return h
}

// RegisterRoutes mounts the webhook; it must be registered as a public route.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/webhooks/board", h.Receive)
}

// boardID accepts ids sent as JSON numbers or strings.
type boardID string

func (b *boardID) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if string(data) == "null" {
		*b = ""
		return nil
	}
	*b = boardID(data)
	return nil
}

// BoardEvent is the event object of a board webhook.
type BoardEvent struct {
	Type     string          `json:"type"`
	BoardID  boardID         `json:"boardId"`
	ItemID   boardID         `json:"itemId"`
	PulseID  boardID         `json:"pulseId"`
	ColumnID string          `json:"columnId"`
	Value    json.RawMessage `json:"value"`
}

func (e BoardEvent) item() string {
	if e.PulseID != "" {
		return string(e.PulseID)
	}
	return string(e.ItemID)
}

type webhookPayload struct {
	Challenge string      `json:"challenge,omitempty"`
	Event     *BoardEvent `json:"event,omitempty"`
}

// WebhookResult is the body returned for a processed event.
type WebhookResult struct {
	Action string `json:"action"`
	ItemID string `json:"item_id,omitempty"`
	Detail any    `json:"detail,omitempty"`
}

// Receive verifies and routes a board event. Subscription challenges are
// echoed back unchanged.
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPayload, "unreadable webhook body", err))
		return
	}

	var p webhookPayload
	if err := json.Unmarshal(body, &p); err != nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPayload, "malformed webhook payload", err))
		return
	}
	if p.Challenge != "" {
		core.JSON(w, r, http.StatusOK, map[string]string{"challenge": p.Challenge})
		return
	}

	if err := h.verify(body, r.Header.Get("X-Monday-Signature")); err != nil {
		h.logger.WarnContext(r.Context(), "webhook signature rejected", "error", err)
		core.Error(w, r, err)
		return
	}
	if p.Event == nil {
		core.Error(w, r, types.NewAppError(types.ErrCodeValidationInvalidPayload, "webhook payload has no event", nil))
		return
	}

	ev := *p.Event
	log := h.logger.With("event_type", ev.Type, "board_id", string(ev.BoardID), "item_id", ev.item(), "column_id", ev.ColumnID)
	log.InfoContext(r.Context(), "board webhook received")

	var res WebhookResult
	switch string(ev.BoardID) {
	case h.rewardsBoard:
		res, err = h.handleRewardEvent(r.Context(), ev)
	case h.employeesBoard:
		res = WebhookResult{Action: "acknowledged", ItemID: ev.item()}
	default:
		res = WebhookResult{Action: "ignored", Detail: "event is not for a configured board"}
	}
	if err != nil {
		log.ErrorContext(r.Context(), "board webhook failed", "error", err)
		core.Error(w, r, err)
		return
	}
	core.OK(w, r, http.StatusOK, res)
}

// verify checks the hex HMAC-SHA256 of body when a secret is configured.
func (h *WebhookHandler) verify(body []byte, signature string) error {
	if h.secret == nil {
		return nil
	}
	if signature == "" {
		return types.NewAppError(types.ErrCodeAuthSignatureInvalid, "missing webhook signature", nil)
	}
	got, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return types.NewAppError(types.ErrCodeAuthSignatureInvalid, "malformed webhook signature", err)
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return types.NewAppError(types.ErrCodeAuthSignatureInvalid, "invalid webhook signature", nil)
	}
	return nil
}

// Sign returns the X-Monday-Signature value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (h *WebhookHandler) handleRewardEvent(ctx context.Context, ev BoardEvent) (WebhookResult, error) {
	itemID := ev.item()
	if itemID == "" {
		return WebhookResult{}, types.NewAppError(types.ErrCodeValidationInvalidPayload, "event has no item id", nil)
	}

	switch ev.Type {
	case EventCreateItem, EventCreatePulse:
		return h.rewardCreated(ctx, itemID)
	case EventChangeStatusColumn, EventChangeColumnValue:
		switch ev.ColumnID {
		case h.columns.ApprovalStatus:
			return h.statusChanged(ctx, itemID, eventText(ev.Value))
		case h.columns.TargetValue:
			a, err := h.rewards.RecalculateTier(ctx, itemID)
			if err != nil {
				return WebhookResult{}, err
			}
			return WebhookResult{Action: "tier_recalculated", ItemID: itemID, Detail: a}, nil
		case h.columns.Department:
			a, err := h.rewards.RecalculateTier(ctx, itemID)
			if err != nil {
				return WebhookResult{}, err
			}
			manager, err := h.rewards.AutoAssignManager(ctx, itemID, eventText(ev.Value))
			if err != nil {
				return WebhookResult{}, err
			}
			return WebhookResult{Action: "manager_reassigned", ItemID: itemID, Detail: map[string]any{
				"assessment":       a,
				"assigned_manager": manager,
			}}, nil
		}
	}
	return WebhookResult{Action: "acknowledged", ItemID: itemID}, nil
}

func (h *WebhookHandler) rewardCreated(ctx context.Context, itemID string) (WebhookResult, error) {
	a, err := h.rewards.RecalculateTier(ctx, itemID)
	if err != nil {
		return WebhookResult{}, err
	}
	manager, err := h.rewards.AutoAssignManager(ctx, itemID, "")
	if err != nil {
		h.logger.WarnContext(ctx, "manager auto-assignment failed", "item_id", itemID, "error", err)
	}
	return WebhookResult{Action: "reward_configured", ItemID: itemID, Detail: map[string]any{
		"assessment":       a,
		"assigned_manager": manager,
	}}, nil
}

func (h *WebhookHandler) statusChanged(ctx context.Context, itemID, label string) (WebhookResult, error) {
	status := types.ApprovalStatus(label)
	switch status {
	case types.ApprovalApproved, types.ApprovalRejected:
	default:
		return WebhookResult{Action: "acknowledged", ItemID: itemID, Detail: label}, nil
	}
	if err := h.rewards.HandleStatusChange(ctx, itemID, status); err != nil {
		return WebhookResult{}, err
	}
	return WebhookResult{Action: "status_" + strings.ToLower(label), ItemID: itemID}, nil
}

// eventText extracts the human-readable value of a column change. Status
// columns send {"label": {"text": ...}} (or a bare label string), dropdowns
// send chosenValues, and text and number columns send value or text.
func eventText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v struct {
		Label        json.RawMessage `json:"label"`
		Text         string          `json:"text"`
		Value        json.RawMessage `json:"value"`
		ChosenValues []struct {
			Name string `json:"name"`
		} `json:"chosenValues"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return ""
	}
	if len(v.Label) > 0 {
		var label struct {
			Text string `json:"text"`
		}
		if json.Unmarshal(v.Label, &label) == nil && label.Text != "" {
			return label.Text
		}
		var s string
		if json.Unmarshal(v.Label, &s) == nil {
			return s
		}
	}
	if len(v.ChosenValues) > 0 {
		return v.ChosenValues[0].Name
	}
	if v.Text != "" {
		return v.Text
	}
	if len(v.Value) > 0 {
		var s string
		if json.Unmarshal(v.Value, &s) == nil {
			return s
		}
		return strings.Trim(string(v.Value), `"`)
	}
	return ""
}
