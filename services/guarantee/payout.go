package guarantee

import (
	"fmt"
	"math"
	"time"

	"guarantee-controlplane/pkg/errutil"
)

// PayoutTerms decide how much of a purchase is paid back.
type PayoutTerms struct {
	AmountType      PayoutAmountType
	AmountValue     *float64
	BonusMultiplier float64
}

// CalculatePayoutAmount applies the terms to a purchase amount. Partial values
// are percentages (default 100); fixed values never exceed the purchase.
func CalculatePayoutAmount(purchaseAmount float64, terms PayoutTerms) float64 {
	switch terms.AmountType {
	case PayoutAmountPartial:
		pct := 100.0
		if terms.AmountValue != nil && *terms.AmountValue != 0 {
			pct = *terms.AmountValue
		}
		return purchaseAmount * (pct / 100)
	case PayoutAmountFixed:
		fixed := 0.0
		if terms.AmountValue != nil {
			fixed = *terms.AmountValue
		}
		return math.Min(fixed, purchaseAmount)
	default:
		return purchaseAmount
	}
}

func CalculateRolloverCredit(purchaseAmount float64, terms PayoutTerms) float64 {
	multiplier := terms.BonusMultiplier
	if multiplier == 0 {
		multiplier = 1
	}
	return CalculatePayoutAmount(purchaseAmount, terms) * multiplier
}

// ResolvedStatus maps a payout type to the terminal instance status it produces.
func ResolvedStatus(payoutType PayoutType) InstanceStatus {
	switch payoutType {
	case PayoutTypeCredit:
		return InstanceStatusCreditIssued
	case PayoutTypeRolloverUpsell:
		return InstanceStatusRolloverUpsellApplied
	case PayoutTypeRolloverContinuity:
		return InstanceStatusRolloverContinuityApplied
	default:
		return InstanceStatusRefundIssued
	}
}

func IsValidGuaranteeType(v string) bool {
	switch GuaranteeType(v) {
	case GuaranteeTypeConditional, GuaranteeTypeUnconditional:
		return true
	}
	return false
}

func IsValidPayoutType(v string) bool {
	switch PayoutType(v) {
	case PayoutTypeRefund, PayoutTypeCredit, PayoutTypeRolloverUpsell, PayoutTypeRolloverContinuity:
		return true
	}
	return false
}

func IsValidPayoutAmountType(v string) bool {
	switch PayoutAmountType(v) {
	case PayoutAmountFull, PayoutAmountPartial, PayoutAmountFixed:
		return true
	}
	return false
}

// IsVerdict reports whether s is a status an admin may assign to a milestone.
func (s MilestoneStatus) IsVerdict() bool {
	return s == MilestoneStatusMet || s == MilestoneStatusNotMet || s == MilestoneStatusWaived
}

func (s MilestoneStatus) IsSatisfied() bool {
	return s == MilestoneStatusMet || s == MilestoneStatusWaived
}

// ConditionInput is the request shape of a condition. Required is a pointer so
// an omitted flag can be told apart from false.
type ConditionInput struct {
	ID                 string             `json:"id"`
	Label              string             `json:"label"`
	Description        string             `json:"description,omitempty"`
	VerificationMethod VerificationMethod `json:"verification_method"`
	Required           *bool              `json:"required"`
}

// ValidateConditions checks every condition carries an id, a label, a known
// verification method and an explicit required flag.
func ValidateConditions(in []ConditionInput) ([]Condition, error) {
	var details []errutil.Detail
	seen := make(map[string]bool, len(in))
	out := make([]Condition, 0, len(in))

	for i, c := range in {
		field := fmt.Sprintf("conditions[%d]", i)
		if c.ID == "" {
			details = append(details, errutil.Detail{Field: field + ".id", Message: "required"})
		} else if seen[c.ID] {
			details = append(details, errutil.Detail{Field: field + ".id", Message: "duplicate"})
		}
		seen[c.ID] = true

		if c.Label == "" {
			details = append(details, errutil.Detail{Field: field + ".label", Message: "required"})
		}
		if c.VerificationMethod != VerificationAdmin && c.VerificationMethod != VerificationSelfReport {
			details = append(details, errutil.Detail{Field: field + ".verification_method", Message: "must be admin_verified or client_self_report"})
		}
		if c.Required == nil {
			details = append(details, errutil.Detail{Field: field + ".required", Message: "required"})
			continue
		}

		out = append(out, Condition{
			ID:                 c.ID,
			Label:              c.Label,
			Description:        c.Description,
			VerificationMethod: c.VerificationMethod,
			Required:           *c.Required,
		})
	}

	if len(details) > 0 {
		return nil, errutil.BadRequest(
			"Invalid conditions structure. Each condition must have id, label, verification_method, and required.",
			nil, errutil.WithDetails(details...),
		)
	}
	return out, nil
}

// AllConditionsMet is true when every milestone is met or waived.
func AllConditionsMet(milestones []*Milestone) bool {
	for _, m := range milestones {
		if !m.Status.IsSatisfied() {
			return false
		}
	}
	return true
}

func IsExpired(expiresAt, now time.Time) bool {
	return expiresAt.Before(now)
}

// DaysRemaining rounds partial days up and never goes below zero.
func DaysRemaining(expiresAt, now time.Time) int {
	diff := expiresAt.Sub(now)
	if diff <= 0 {
		return 0
	}
	return int(math.Ceil(diff.Hours() / 24))
}
