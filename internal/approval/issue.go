package approval

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"rewardbridge/internal/board"
	"rewardbridge/internal/external"
	"rewardbridge/internal/metrics"
	"rewardbridge/internal/notifications"
	"rewardbridge/internal/types"
)

const pendingCode = "Voucher details will be emailed"

// Issued describes a gift card issued for a performance reward.
type Issued struct {
	ItemID      string          `json:"item_id"`
	Code        string          `json:"gift_card_code"`
	OrderID     string          `json:"order_id"`
	ProductCode string          `json:"product_code"`
	Merchant    string          `json:"merchant"`
	Amount      decimal.Decimal `json:"amount"`
	IssueDate   types.Date      `json:"issue_date"`
	ExpiryDate  types.Date      `json:"expiry_date"`
}

// IssueGiftCard orders and activates a gift card for an approved reward. A
// zero amount means the reward's recorded amount.
func (w *Workflow) IssueGiftCard(ctx context.Context, itemID string, amount decimal.Decimal) (*Issued, error) {
	item, err := w.store.GetReward(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.ApprovalStatus != types.ApprovalApproved {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeValidationInvalidStatus,
			"gift cards are only issued for approved rewards", nil,
			map[string]any{"item_id": itemID, "status": item.ApprovalStatus})
	}
	if item.GiftCardCode != "" || item.OrderID != "" {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictAlreadyDecided,
			"a gift card has already been issued for this reward", nil,
			map[string]any{"item_id": itemID, "order_id": item.OrderID})
	}
	if !amount.IsPositive() {
		amount = w.amountFor(item)
	}
	issued, err := w.issue(ctx, item, amount)
	if err != nil {
		return nil, err
	}
	w.deliver(ctx, item, issued)
	return issued, nil
}

// issuanceStarted reports whether an order exists or is being placed for the
// item.
func issuanceStarted(item types.RewardItem) bool {
	return item.GiftCardCode != "" || item.OrderID != "" || item.RedemptionStatus == types.RedemptionIssuing
}

// issue places and activates the order. The item is marked Issuing on the
// board before the order is placed, and only one issuance per item runs in
// this process at a time.
func (w *Workflow) issue(ctx context.Context, item types.RewardItem, amount decimal.Decimal) (*Issued, error) {
	if !amount.IsPositive() {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidAmount, "gift card amount must be positive", nil)
	}
	if w.products == nil || w.orders == nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamGiftCard, "gift card provider is not configured", nil)
	}
	if _, busy := w.inflight.LoadOrStore(item.ItemID, struct{}{}); busy {
		return nil, types.NewAppErrorWithDetails(types.ErrCodeConflictAlreadyDecided,
			"gift card issuance is already in progress", nil,
			map[string]any{"item_id": item.ItemID})
	}
	defer w.inflight.Delete(item.ItemID)

	product, err := w.products.Find(ctx, w.merchant, amount)
	if err != nil {
		w.metrics.RecordGiftCard(ctx, "performance", metrics.ResultFailed)
		return nil, fmt.Errorf("selecting product: %w", err)
	}

	marker := types.RedemptionIssuing
	if err := w.store.UpdateReward(ctx, item.ItemID, board.RewardUpdate{RedemptionStatus: &marker}); err != nil {
		return nil, fmt.Errorf("marking issuance: %w", err)
	}

	today := w.today()
	order, err := w.orders.CreateOrder(ctx, external.OrderRequest{
		ProductCode:    product.Code,
		Merchant:       product.Merchant,
		Currency:       product.Currency,
		ValuePurchased: amount,
		RecipientEmail: item.EmployeeEmail,
		RecipientName:  item.EmployeeName,
		Message:        "Congratulations on your outstanding performance!",
		EmployeeName:   item.EmployeeName,
		MilestoneType:  "Performance",
		OrderReference: fmt.Sprintf("%s-%s-%s", item.ItemID, item.RewardTier, today),
	})
	if err != nil {
		w.metrics.RecordGiftCard(ctx, "performance", metrics.ResultFailed)
		return nil, fmt.Errorf("creating gift card order: %w", err)
	}

	act, err := w.orders.ActivateOrder(ctx, order.ID, external.ActivationData{EmployeeName: item.EmployeeName})
	if err != nil {
		w.metrics.RecordGiftCard(ctx, "performance", metrics.ResultFailed)
		if werr := w.store.UpdateReward(ctx, item.ItemID, board.RewardUpdate{OrderID: &order.ID}); werr != nil {
			w.logger.ErrorContext(ctx, "failed to record unactivated order", "item_id", item.ItemID, "order_id", order.ID, "error", werr)
		}
		return nil, fmt.Errorf("activating order %s: %w", order.ID, err)
	}

	code := firstNonEmpty(act.Order.GiftCardCode, act.Order.VoucherCode, order.GiftCardCode, order.VoucherCode, pendingCode)
	issued := &Issued{
		ItemID:      item.ItemID,
		Code:        code,
		OrderID:     order.ID,
		ProductCode: product.Code,
		Merchant:    product.Merchant,
		Amount:      amount,
		IssueDate:   today,
		ExpiryDate:  today.AddDays(w.validityDays),
	}

	redemption := types.RedemptionIssued
	zero := decimal.Zero
	if err := w.store.UpdateReward(ctx, item.ItemID, board.RewardUpdate{
		GiftCardAmount:   &amount,
		GiftCardCode:     &issued.Code,
		IssueDate:        &issued.IssueDate,
		OrderID:          &issued.OrderID,
		RedemptionStatus: &redemption,
		RedemptionValue:  &zero,
		ExpiryDate:       &issued.ExpiryDate,
	}); err != nil {
		w.logger.ErrorContext(ctx, "gift card issued but board write-back failed",
			"item_id", item.ItemID,
			"order_id", order.ID,
			"error", err,
		)
	}

	w.metrics.RecordGiftCard(ctx, "performance", metrics.ResultSuccess)
	w.logger.InfoContext(ctx, "performance gift card issued",
		"item_id", item.ItemID,
		"order_id", order.ID,
		"amount", amount.String(),
		"merchant", product.Merchant,
	)
	return issued, nil
}

// deliver sends the card details to the employee.
func (w *Workflow) deliver(ctx context.Context, item types.RewardItem, c *Issued) {
	w.notifier.Send(ctx, notifications.GiftCardIssued(item, c.Code, c.Merchant, c.Amount, c.ExpiryDate))
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
