package campaign

import (
	"time"

	"guarantee-controlplane/services/guarantee"

	"gorm.io/datatypes"
)

type CampaignType string
type CampaignStatus string
type CriteriaType string
type TrackingSource string
type EnrollmentSource string
type EnrollmentStatus string
type ProgressStatus string

const (
	CampaignTypeWinMoneyBack  CampaignType = "win_money_back"
	CampaignTypeFreeChallenge CampaignType = "free_challenge"
	CampaignTypeBonusCredit   CampaignType = "bonus_credit"

	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusActive    CampaignStatus = "active"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusArchived  CampaignStatus = "archived"

	CriteriaTypeAction CriteriaType = "action"
	CriteriaTypeResult CriteriaType = "result"

	TrackingManual               TrackingSource = "manual"
	TrackingOnboardingMilestone  TrackingSource = "onboarding_milestone"
	TrackingChatSession          TrackingSource = "chat_session"
	TrackingVideoWatch           TrackingSource = "video_watch"
	TrackingDiagnosticCompletion TrackingSource = "diagnostic_completion"
	TrackingCustomWebhook        TrackingSource = "custom_webhook"

	EnrollmentSourceAutoPurchase      EnrollmentSource = "auto_purchase"
	EnrollmentSourceAdminManual       EnrollmentSource = "admin_manual"
	EnrollmentSourceSalesConversation EnrollmentSource = "sales_conversation"

	EnrollmentStatusActive          EnrollmentStatus = "active"
	EnrollmentStatusCriteriaMet     EnrollmentStatus = "criteria_met"
	EnrollmentStatusPayoutPending   EnrollmentStatus = "payout_pending"
	EnrollmentStatusRefundIssued    EnrollmentStatus = "refund_issued"
	EnrollmentStatusCreditIssued    EnrollmentStatus = "credit_issued"
	EnrollmentStatusRolloverApplied EnrollmentStatus = "rollover_applied"
	EnrollmentStatusExpired         EnrollmentStatus = "expired"
	EnrollmentStatusWithdrawn       EnrollmentStatus = "withdrawn"

	ProgressStatusPending    ProgressStatus = "pending"
	ProgressStatusInProgress ProgressStatus = "in_progress"
	ProgressStatusMet        ProgressStatus = "met"
	ProgressStatusNotMet     ProgressStatus = "not_met"
	ProgressStatusWaived     ProgressStatus = "waived"
)

// Campaign is an attraction campaign: a public offer whose enrollments pay
// out (refund, credit or rollover) once the client meets its criteria.
type Campaign struct {
	ID                      string                     `gorm:"column:id;primaryKey" json:"id"`
	Name                    string                     `gorm:"column:name;not null" json:"name"`
	Slug                    string                     `gorm:"column:slug;not null;uniqueIndex" json:"slug"`
	Description             *string                    `gorm:"column:description;type:text" json:"description"`
	CampaignType            CampaignType               `gorm:"column:campaign_type;type:varchar(32);not null;default:'win_money_back'" json:"campaign_type"`
	Status                  CampaignStatus             `gorm:"column:status;type:varchar(16);not null;default:'draft';index" json:"status"`
	StartsAt                *time.Time                 `gorm:"column:starts_at" json:"starts_at"`
	EndsAt                  *time.Time                 `gorm:"column:ends_at" json:"ends_at"`
	EnrollmentDeadline      *time.Time                 `gorm:"column:enrollment_deadline" json:"enrollment_deadline"`
	CompletionWindowDays    int                        `gorm:"column:completion_window_days;not null;default:90" json:"completion_window_days"`
	MinPurchaseAmount       float64                    `gorm:"column:min_purchase_amount;not null;default:0" json:"min_purchase_amount"`
	PayoutType              guarantee.PayoutType       `gorm:"column:payout_type;type:varchar(32);not null;default:'refund'" json:"payout_type"`
	PayoutAmountType        guarantee.PayoutAmountType `gorm:"column:payout_amount_type;type:varchar(16);not null;default:'full'" json:"payout_amount_type"`
	PayoutAmountValue       *float64                   `gorm:"column:payout_amount_value" json:"payout_amount_value"`
	RolloverBonusMultiplier float64                    `gorm:"column:rollover_bonus_multiplier;not null;default:1" json:"rollover_bonus_multiplier"`
	HeroImageURL            *string                    `gorm:"column:hero_image_url" json:"hero_image_url"`
	PromoCopy               *string                    `gorm:"column:promo_copy;type:text" json:"promo_copy"`
	CreatedBy               *string                    `gorm:"column:created_by" json:"created_by"`
	CreatedAt               time.Time                  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time                  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	EligibleBundles   []EligibleBundle   `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"campaign_eligible_bundles,omitempty"`
	CriteriaTemplates []CriteriaTemplate `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"campaign_criteria_templates,omitempty"`
	Enrollments       []Enrollment       `gorm:"foreignKey:CampaignID;constraint:OnDelete:CASCADE" json:"-"`
}

func (Campaign) TableName() string { return "attraction_campaigns" }

// Terms returns the payout terms enrollments of this campaign are paid with.
func (c *Campaign) Terms() guarantee.PayoutTerms {
	return guarantee.PayoutTerms{
		AmountType:      c.PayoutAmountType,
		AmountValue:     c.PayoutAmountValue,
		BonusMultiplier: c.RolloverBonusMultiplier,
	}
}

type EligibleBundle struct {
	ID                string    `gorm:"column:id;primaryKey" json:"id"`
	CampaignID        string    `gorm:"column:campaign_id;not null;uniqueIndex:idx_campaign_bundle" json:"campaign_id"`
	BundleID          string    `gorm:"column:bundle_id;not null;uniqueIndex:idx_campaign_bundle" json:"bundle_id"`
	OverrideMinAmount *float64  `gorm:"column:override_min_amount" json:"override_min_amount"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (EligibleBundle) TableName() string { return "campaign_eligible_bundles" }

// CriteriaTemplate is a campaign criterion before personalization. Label and
// description may carry {{variable}} placeholders filled at enrollment.
type CriteriaTemplate struct {
	ID                  string            `gorm:"column:id;primaryKey" json:"id"`
	CampaignID          string            `gorm:"column:campaign_id;not null;index" json:"campaign_id"`
	LabelTemplate       string            `gorm:"column:label_template;not null" json:"label_template"`
	DescriptionTemplate *string           `gorm:"column:description_template;type:text" json:"description_template"`
	CriteriaType        CriteriaType      `gorm:"column:criteria_type;type:varchar(16);not null;default:'action'" json:"criteria_type"`
	TrackingSource      TrackingSource    `gorm:"column:tracking_source;type:varchar(32);not null;default:'manual'" json:"tracking_source"`
	TrackingConfig      datatypes.JSONMap `gorm:"column:tracking_config" json:"tracking_config"`
	ThresholdSource     *string           `gorm:"column:threshold_source" json:"threshold_source"`
	ThresholdDefault    *string           `gorm:"column:threshold_default" json:"threshold_default"`
	Required            bool              `gorm:"column:required;not null" json:"required"`
	DisplayOrder        int               `gorm:"column:display_order;not null;default:0" json:"display_order"`
	CreatedAt           time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (CriteriaTemplate) TableName() string { return "campaign_criteria_templates" }

// PersonalizationContext is the snapshot of client data the enrollment's
// criteria were materialized from.
type PersonalizationContext struct {
	AuditData       map[string]any    `json:"audit_data,omitempty"`
	ValueEvidence   map[string]any    `json:"value_evidence,omitempty"`
	ChatInsights    map[string]any    `json:"chat_insights,omitempty"`
	CustomOverrides map[string]string `json:"custom_overrides,omitempty"`
}

type Enrollment struct {
	ID                     string                                     `gorm:"column:id;primaryKey" json:"id"`
	CampaignID             string                                     `gorm:"column:campaign_id;not null;index" json:"campaign_id"`
	Campaign               *Campaign                                  `gorm:"foreignKey:CampaignID;references:ID" json:"attraction_campaigns,omitempty"`
	ClientEmail            string                                     `gorm:"column:client_email;not null;index" json:"client_email"`
	ClientName             *string                                    `gorm:"column:client_name" json:"client_name"`
	UserID                 *string                                    `gorm:"column:user_id" json:"user_id"`
	OrderID                *int64                                     `gorm:"column:order_id" json:"order_id"`
	BundleID               *string                                    `gorm:"column:bundle_id" json:"bundle_id"`
	PurchaseAmount         *float64                                   `gorm:"column:purchase_amount" json:"purchase_amount"`
	EnrollmentSource       EnrollmentSource                           `gorm:"column:enrollment_source;type:varchar(32);not null;default:'admin_manual'" json:"enrollment_source"`
	Status                 EnrollmentStatus                           `gorm:"column:status;type:varchar(32);not null;default:'active';index" json:"status"`
	EnrolledAt             time.Time                                  `gorm:"column:enrolled_at;not null" json:"enrolled_at"`
	DeadlineAt             time.Time                                  `gorm:"column:deadline_at;not null" json:"deadline_at"`
	ResolvedAt             *time.Time                                 `gorm:"column:resolved_at" json:"resolved_at"`
	GuaranteeInstanceID    *string                                    `gorm:"column:guarantee_instance_id" json:"guarantee_instance_id"`
	ResolutionNotes        *string                                    `gorm:"column:resolution_notes;type:text" json:"resolution_notes"`
	DiagnosticAuditID      *string                                    `gorm:"column:diagnostic_audit_id" json:"diagnostic_audit_id"`
	PersonalizationContext datatypes.JSONType[PersonalizationContext] `gorm:"column:personalization_context" json:"personalization_context"`
	CreatedAt              time.Time                                  `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time                                  `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`

	Criteria []EnrollmentCriterion `gorm:"foreignKey:EnrollmentID;constraint:OnDelete:CASCADE" json:"enrollment_criteria,omitempty"`
	Progress []Progress            `gorm:"foreignKey:EnrollmentID;constraint:OnDelete:CASCADE" json:"campaign_progress,omitempty"`
}

func (Enrollment) TableName() string { return "campaign_enrollments" }

// EnrollmentCriterion is a criteria template personalized for one enrollment.
type EnrollmentCriterion struct {
	ID                  string            `gorm:"column:id;primaryKey" json:"id"`
	EnrollmentID        string            `gorm:"column:enrollment_id;not null;index" json:"enrollment_id"`
	TemplateCriterionID string            `gorm:"column:template_criterion_id" json:"template_criterion_id"`
	Label               string            `gorm:"column:label;not null" json:"label"`
	Description         *string           `gorm:"column:description;type:text" json:"description"`
	CriteriaType        CriteriaType      `gorm:"column:criteria_type;type:varchar(16);not null" json:"criteria_type"`
	TrackingSource      TrackingSource    `gorm:"column:tracking_source;type:varchar(32);not null" json:"tracking_source"`
	TrackingConfig      datatypes.JSONMap `gorm:"column:tracking_config" json:"tracking_config"`
	TargetValue         *string           `gorm:"column:target_value" json:"target_value"`
	Required            bool              `gorm:"column:required;not null" json:"required"`
	DisplayOrder        int               `gorm:"column:display_order;not null;default:0" json:"display_order"`
	CreatedAt           time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time         `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (EnrollmentCriterion) TableName() string { return "enrollment_criteria" }

// Progress tracks one criterion of one enrollment.
type Progress struct {
	ID                string         `gorm:"column:id;primaryKey" json:"id"`
	EnrollmentID      string         `gorm:"column:enrollment_id;not null;uniqueIndex:idx_progress_enrollment_criterion" json:"enrollment_id"`
	CriterionID       string         `gorm:"column:criterion_id;not null;uniqueIndex:idx_progress_enrollment_criterion" json:"criterion_id"`
	Status            ProgressStatus `gorm:"column:status;type:varchar(16);not null;default:'pending'" json:"status"`
	ProgressValue     float64        `gorm:"column:progress_value;not null;default:0" json:"progress_value"`
	CurrentValue      *string        `gorm:"column:current_value" json:"current_value"`
	AutoTracked       bool           `gorm:"column:auto_tracked;not null" json:"auto_tracked"`
	AutoSourceRef     *string        `gorm:"column:auto_source_ref" json:"auto_source_ref"`
	ClientEvidence    *string        `gorm:"column:client_evidence;type:text" json:"client_evidence"`
	ClientSubmittedAt *time.Time     `gorm:"column:client_submitted_at" json:"client_submitted_at"`
	AdminVerifiedBy   *string        `gorm:"column:admin_verified_by" json:"admin_verified_by"`
	AdminVerifiedAt   *time.Time     `gorm:"column:admin_verified_at" json:"admin_verified_at"`
	AdminNotes        *string        `gorm:"column:admin_notes;type:text" json:"admin_notes"`
	CreatedAt         time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Progress) TableName() string { return "campaign_progress" }

// DiagnosticAudit is the result of the client's AI audit calculator run.
// Enrollment requires one.
type DiagnosticAudit struct {
	ID        string            `gorm:"column:id;primaryKey" json:"id"`
	Email     string            `gorm:"column:email;index" json:"email"`
	AuditData datatypes.JSONMap `gorm:"column:audit_data" json:"audit_data"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (DiagnosticAudit) TableName() string { return "diagnostic_audits" }

// Snapshot flattens the audit into the map criteria thresholds are read from.
func (a *DiagnosticAudit) Snapshot() map[string]any {
	out := make(map[string]any, len(a.AuditData)+3)
	for k, v := range a.AuditData {
		out[k] = v
	}
	out["id"] = a.ID
	out["email"] = a.Email
	out["created_at"] = a.CreatedAt
	return out
}

type ValueEvidence struct {
	ID           string            `gorm:"column:id;primaryKey" json:"id"`
	ContactEmail string            `gorm:"column:contact_email;index" json:"contact_email"`
	Evidence     datatypes.JSONMap `gorm:"column:evidence" json:"evidence"`
	CreatedAt    time.Time         `gorm:"column:created_at;autoCreateTime" json:"created_at"`
}

func (ValueEvidence) TableName() string { return "value_evidence" }

func (v *ValueEvidence) Snapshot() map[string]any {
	out := make(map[string]any, len(v.Evidence)+3)
	for k, val := range v.Evidence {
		out[k] = val
	}
	out["id"] = v.ID
	out["contact_email"] = v.ContactEmail
	out["created_at"] = v.CreatedAt
	return out
}

// Models lists every table owned by this package, in migration order.
func Models() []any {
	return []any{
		&Campaign{},
		&EligibleBundle{},
		&CriteriaTemplate{},
		&Enrollment{},
		&EnrollmentCriterion{},
		&Progress{},
		&DiagnosticAudit{},
		&ValueEvidence{},
	}
}
