package types

import (
	"fmt"
	"strconv"
	"strings"
)

// MilestoneType tags a milestone reward: "Birthday" or "{N}-Year".
type MilestoneType string

const MilestoneBirthday MilestoneType = "Birthday"

// AnniversaryType returns the milestone tag for an N-year work anniversary.
func AnniversaryType(years int) MilestoneType {
	return MilestoneType(fmt.Sprintf("%d-Year", years))
}

// Years returns N for an "{N}-Year" tag, or false for other tags.
func (t MilestoneType) Years() (int, bool) {
	s, ok := strings.CutSuffix(string(t), "-Year")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ProcessingStatus is the milestone delivery state of an employee item.
type ProcessingStatus string

const (
	ProcessingPending   ProcessingStatus = "Pending"
	ProcessingSent      ProcessingStatus = "Sent"
	ProcessingDelivered ProcessingStatus = "Delivered"
	ProcessingError     ProcessingStatus = "Error"
)

// ApprovalStatus is the manager decision state of a reward item.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "Pending"
	ApprovalApproved ApprovalStatus = "Approved"
	ApprovalRejected ApprovalStatus = "Rejected"
)

// Decision is the action a manager submits.
type Decision string

const (
	DecisionApprove Decision = "approved"
	DecisionReject  Decision = "rejected"
)

// ParseDecision accepts the decision in any case, plus the board labels.
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "approved", "approve":
		return DecisionApprove, nil
	case "rejected", "reject":
		return DecisionReject, nil
	}
	return "", NewAppError(ErrCodeValidationInvalidStatus, fmt.Sprintf("decision must be approved or rejected, got %q", s), nil)
}

// Status returns the approval status a decision transitions to.
func (d Decision) Status() ApprovalStatus {
	if d == DecisionApprove {
		return ApprovalApproved
	}
	return ApprovalRejected
}

// RewardTier is a performance reward size bucket.
type RewardTier string

const (
	TierBronze   RewardTier = "Bronze"
	TierSilver   RewardTier = "Silver"
	TierGold     RewardTier = "Gold"
	TierPlatinum RewardTier = "Platinum"
)

// RedemptionStatus tracks how much of an issued gift card has been used.
type RedemptionStatus string

const (
	// RedemptionIssuing marks an order in flight. It is written before the
	// provider order is placed and is never Open.
	RedemptionIssuing       RedemptionStatus = "Issuing"
	RedemptionIssued        RedemptionStatus = "Issued"
	RedemptionPartiallyUsed RedemptionStatus = "Partially Used"
	RedemptionFullyRedeemed RedemptionStatus = "Fully Redeemed"
	RedemptionExpired       RedemptionStatus = "Expired"
)

// Open reports whether the card can still be redeemed.
func (s RedemptionStatus) Open() bool {
	return s == RedemptionIssued || s == RedemptionPartiallyUsed
}
