package guarantee

import (
	"guarantee-controlplane/pkg/db/pagination"
)

// TemplateInput is the body of template create and update. Nil fields are
// left untouched on update.
type TemplateInput struct {
	Name                     *string           `json:"name"`
	Description              *string           `json:"description"`
	GuaranteeType            *string           `json:"guarantee_type"`
	DurationDays             *int              `json:"duration_days"`
	Conditions               *[]ConditionInput `json:"conditions"`
	DefaultPayoutType        *string           `json:"default_payout_type"`
	PayoutAmountType         *string           `json:"payout_amount_type"`
	PayoutAmountValue        *float64          `json:"payout_amount_value"`
	RolloverUpsellServiceIDs *[]string         `json:"rollover_upsell_service_ids"`
	RolloverContinuityPlanID *string           `json:"rollover_continuity_plan_id"`
	RolloverBonusMultiplier  *float64          `json:"rollover_bonus_multiplier"`
	IsActive                 *bool             `json:"is_active"`
}

type IssueInstanceRequest struct {
	TemplateID     string  `json:"template_id"`
	ClientEmail    string  `json:"client_email"`
	ClientName     *string `json:"client_name"`
	UserID         *string `json:"user_id"`
	OrderID        *int64  `json:"order_id"`
	OrderItemID    *int64  `json:"order_item_id"`
	PurchaseAmount float64 `json:"purchase_amount"`
	PayoutType     string  `json:"payout_type"`
}

type ListInstancesRequest struct {
	Status string `form:"status"`
	pagination.Pagination
}

type VerifyMilestoneRequest struct {
	InstanceID  string          `json:"-"`
	ConditionID string          `json:"-"`
	VerifiedBy  string          `json:"-"`
	Status      MilestoneStatus `json:"status"`
	AdminNotes  string          `json:"admin_notes"`
}

type MilestoneVerification struct {
	Milestone        *Milestone `json:"milestone"`
	AllConditionsMet bool       `json:"all_conditions_met"`
}

type PendingCondition struct {
	ConditionID string          `json:"condition_id"`
	Label       string          `json:"label"`
	Status      MilestoneStatus `json:"status"`
}

// Evaluation is the outcome of an evaluate call. Result is one of expired,
// conditions_not_met, refund_issued, credit_issued or conditions_met.
type Evaluation struct {
	Result               string             `json:"result"`
	Message              string             `json:"message,omitempty"`
	PendingConditions    []PendingCondition `json:"pending_conditions,omitempty"`
	RefundID             string             `json:"refund_id,omitempty"`
	DiscountCode         string             `json:"discount_code,omitempty"`
	Amount               *float64           `json:"amount,omitempty"`
	PayoutType           PayoutType         `json:"payout_type,omitempty"`
	RefundAmount         *float64           `json:"refund_amount,omitempty"`
	RolloverCreditAmount *float64           `json:"rollover_credit_amount,omitempty"`
	BonusMultiplier      *float64           `json:"bonus_multiplier,omitempty"`
}

// ChoosePayoutRequest is the client's payout pick for a conditions_met instance.
type ChoosePayoutRequest struct {
	InstanceID  string `json:"-"`
	PayoutType  string `json:"payout_type"`
	ClientEmail string `json:"client_email"`
}

type PayoutChoice struct {
	Result          string   `json:"result"`
	DiscountCode    string   `json:"discount_code,omitempty"`
	Amount          *float64 `json:"amount,omitempty"`
	CreditAmount    *float64 `json:"credit_amount,omitempty"`
	BonusMultiplier *float64 `json:"bonus_multiplier,omitempty"`
	Message         string   `json:"message"`
}

// ConditionsMetEvent is published when an instance's last milestone is satisfied.
type ConditionsMetEvent struct {
	InstanceID  string     `json:"instance_id"`
	ClientEmail string     `json:"client_email"`
	ClientName  *string    `json:"client_name"`
	PayoutType  PayoutType `json:"payout_type"`
}

type PayoutIssuedEvent struct {
	InstanceID  string         `json:"instance_id"`
	ClientEmail string         `json:"client_email"`
	Status      InstanceStatus `json:"status"`
	Amount      float64        `json:"amount"`
	Reference   string         `json:"reference"`
}
