package guarantee

import (
	"time"

	"gorm.io/datatypes"
)

type GuaranteeType string
type PayoutType string
type PayoutAmountType string
type VerificationMethod string
type InstanceStatus string
type MilestoneStatus string

const (
	GuaranteeTypeConditional   GuaranteeType = "conditional"
	GuaranteeTypeUnconditional GuaranteeType = "unconditional"

	PayoutTypeRefund             PayoutType = "refund"
	PayoutTypeCredit             PayoutType = "credit"
	PayoutTypeRolloverUpsell     PayoutType = "rollover_upsell"
	PayoutTypeRolloverContinuity PayoutType = "rollover_continuity"

	PayoutAmountFull    PayoutAmountType = "full"
	PayoutAmountPartial PayoutAmountType = "partial"
	PayoutAmountFixed   PayoutAmountType = "fixed"

	VerificationAdmin      VerificationMethod = "admin_verified"
	VerificationSelfReport VerificationMethod = "client_self_report"

	InstanceStatusActive                    InstanceStatus = "active"
	InstanceStatusConditionsMet             InstanceStatus = "conditions_met"
	InstanceStatusRefundIssued              InstanceStatus = "refund_issued"
	InstanceStatusCreditIssued              InstanceStatus = "credit_issued"
	InstanceStatusRolloverUpsellApplied     InstanceStatus = "rollover_upsell_applied"
	InstanceStatusRolloverContinuityApplied InstanceStatus = "rollover_continuity_applied"
	InstanceStatusExpired                   InstanceStatus = "expired"
	InstanceStatusVoided                    InstanceStatus = "voided"

	MilestoneStatusPending MilestoneStatus = "pending"
	MilestoneStatusMet     MilestoneStatus = "met"
	MilestoneStatusNotMet  MilestoneStatus = "not_met"
	MilestoneStatusWaived  MilestoneStatus = "waived"
)

// Condition is one entry of a template's conditions list. Instances keep a
// snapshot of the list taken at issue time.
type Condition struct {
	ID                 string             `json:"id"`
	Label              string             `json:"label"`
	Description        string             `json:"description,omitempty"`
	VerificationMethod VerificationMethod `json:"verification_method"`
	Required           bool               `json:"required"`
}

type Template struct {
	ID                       string                         `gorm:"column:id;primaryKey" json:"id"`
	Name                     string                         `gorm:"column:name;not null" json:"name"`
	Description              *string                        `gorm:"column:description;type:text" json:"description"`
	GuaranteeType            GuaranteeType                  `gorm:"column:guarantee_type;type:varchar(32);not null;default:'conditional'" json:"guarantee_type"`
	DurationDays             int                            `gorm:"column:duration_days;not null;default:90" json:"duration_days"`
	Conditions               datatypes.JSONSlice[Condition] `gorm:"column:conditions" json:"conditions"`
	DefaultPayoutType        PayoutType                     `gorm:"column:default_payout_type;type:varchar(32);not null;default:'refund'" json:"default_payout_type"`
	PayoutAmountType         PayoutAmountType               `gorm:"column:payout_amount_type;type:varchar(16);not null;default:'full'" json:"payout_amount_type"`
	PayoutAmountValue        *float64                       `gorm:"column:payout_amount_value" json:"payout_amount_value"`
	RolloverUpsellServiceIDs datatypes.JSONSlice[string]    `gorm:"column:rollover_upsell_service_ids" json:"rollover_upsell_service_ids"`
	RolloverContinuityPlanID *string                        `gorm:"column:rollover_continuity_plan_id" json:"rollover_continuity_plan_id"`
	RolloverBonusMultiplier  float64                        `gorm:"column:rollover_bonus_multiplier;not null;default:1" json:"rollover_bonus_multiplier"`
	IsActive                 bool                           `gorm:"column:is_active;not null" json:"is_active"`
	CreatedBy                *string                        `gorm:"column:created_by" json:"created_by"`
	CreatedAt                time.Time                      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time                      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Template) TableName() string { return "guarantee_templates" }

// Terms returns the payout terms configured on the template.
func (t *Template) Terms() PayoutTerms {
	return PayoutTerms{
		AmountType:      t.PayoutAmountType,
		AmountValue:     t.PayoutAmountValue,
		BonusMultiplier: t.RolloverBonusMultiplier,
	}
}

// Instance is a guarantee issued to a client for one purchase.
// guarantee_template_id is nullable: campaign payouts record instances without a template.
type Instance struct {
	ID                   string                         `gorm:"column:id;primaryKey" json:"id"`
	OrderID              *int64                         `gorm:"column:order_id;index" json:"order_id"`
	OrderItemID          *int64                         `gorm:"column:order_item_id" json:"order_item_id"`
	TemplateID           *string                        `gorm:"column:guarantee_template_id;index" json:"guarantee_template_id"`
	Template             *Template                      `gorm:"foreignKey:TemplateID;references:ID" json:"guarantee_template,omitempty"`
	ClientEmail          string                         `gorm:"column:client_email;not null;index" json:"client_email"`
	ClientName           *string                        `gorm:"column:client_name" json:"client_name"`
	UserID               *string                        `gorm:"column:user_id" json:"user_id"`
	PurchaseAmount       float64                        `gorm:"column:purchase_amount;not null;default:0" json:"purchase_amount"`
	PayoutType           PayoutType                     `gorm:"column:payout_type;type:varchar(32);not null" json:"payout_type"`
	Status               InstanceStatus                 `gorm:"column:status;type:varchar(32);not null;default:'active';index" json:"status"`
	ConditionsSnapshot   datatypes.JSONSlice[Condition] `gorm:"column:conditions_snapshot" json:"conditions_snapshot"`
	StartsAt             time.Time                      `gorm:"column:starts_at" json:"starts_at"`
	ExpiresAt            time.Time                      `gorm:"column:expires_at" json:"expires_at"`
	ResolvedAt           *time.Time                     `gorm:"column:resolved_at" json:"resolved_at"`
	ResolutionNotes      *string                        `gorm:"column:resolution_notes;type:text" json:"resolution_notes"`
	StripeRefundID       *string                        `gorm:"column:stripe_refund_id" json:"stripe_refund_id"`
	DiscountCodeID       *string                        `gorm:"column:discount_code_id" json:"discount_code_id"`
	RolloverCreditAmount *float64                       `gorm:"column:rollover_credit_amount" json:"rollover_credit_amount"`
	Milestones           []Milestone                    `gorm:"foreignKey:InstanceID;references:ID" json:"guarantee_milestones,omitempty"`
	CreatedAt            time.Time                      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time                      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Instance) TableName() string { return "guarantee_instances" }

// Terms falls back to a full payout at multiplier 1 when no template is linked.
func (i *Instance) Terms() PayoutTerms {
	if i.Template == nil {
		return PayoutTerms{AmountType: PayoutAmountFull, BonusMultiplier: 1}
	}
	return i.Template.Terms()
}

// IsUnconditional reports whether payout may proceed with unmet milestones.
func (i *Instance) IsUnconditional() bool {
	return i.Template != nil && i.Template.GuaranteeType == GuaranteeTypeUnconditional
}

type Milestone struct {
	ID                string          `gorm:"column:id;primaryKey" json:"id"`
	InstanceID        string          `gorm:"column:guarantee_instance_id;not null;uniqueIndex:idx_milestone_instance_condition" json:"guarantee_instance_id"`
	ConditionID       string          `gorm:"column:condition_id;not null;uniqueIndex:idx_milestone_instance_condition" json:"condition_id"`
	ConditionLabel    string          `gorm:"column:condition_label" json:"condition_label"`
	Status            MilestoneStatus `gorm:"column:status;type:varchar(16);not null;default:'pending'" json:"status"`
	VerifiedBy        *string         `gorm:"column:verified_by" json:"verified_by"`
	VerifiedAt        *time.Time      `gorm:"column:verified_at" json:"verified_at"`
	AdminNotes        *string         `gorm:"column:admin_notes;type:text" json:"admin_notes"`
	ClientEvidence    *string         `gorm:"column:client_evidence;type:text" json:"client_evidence"`
	ClientSubmittedAt *time.Time      `gorm:"column:client_submitted_at" json:"client_submitted_at"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Milestone) TableName() string { return "guarantee_milestones" }

// DiscountCode is written when a guarantee pays out as store credit.
type DiscountCode struct {
	ID            string    `gorm:"column:id;primaryKey" json:"id"`
	Code          string    `gorm:"column:code;uniqueIndex;not null" json:"code"`
	DiscountType  string    `gorm:"column:discount_type;not null" json:"discount_type"`
	DiscountValue float64   `gorm:"column:discount_value;not null" json:"discount_value"`
	MaxUses       int       `gorm:"column:max_uses" json:"max_uses"`
	IsActive      bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedBy     *string   `gorm:"column:created_by" json:"created_by"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (DiscountCode) TableName() string { return "discount_codes" }

// Order is the slice of the storefront orders table this service reads and updates.
type Order struct {
	ID                    int64     `gorm:"column:id;primaryKey" json:"id"`
	StripePaymentIntentID *string   `gorm:"column:stripe_payment_intent_id" json:"stripe_payment_intent_id"`
	Status                string    `gorm:"column:status" json:"status"`
	UpdatedAt             time.Time `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{&Template{}, &Instance{}, &Milestone{}, &DiscountCode{}, &Order{}}
}
