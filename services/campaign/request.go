package campaign

import (
	"time"

	"guarantee-controlplane/pkg/db/pagination"
	"guarantee-controlplane/services/guarantee"
)

// CampaignInput is the body of campaign create and update. Nil fields are
// left untouched on update; Status is ignored on create.
type CampaignInput struct {
	Name                    *string    `json:"name"`
	Slug                    *string    `json:"slug"`
	Description             *string    `json:"description"`
	CampaignType            *string    `json:"campaign_type"`
	Status                  *string    `json:"status"`
	StartsAt                *time.Time `json:"starts_at"`
	EndsAt                  *time.Time `json:"ends_at"`
	EnrollmentDeadline      *time.Time `json:"enrollment_deadline"`
	CompletionWindowDays    *int       `json:"completion_window_days"`
	MinPurchaseAmount       *float64   `json:"min_purchase_amount"`
	PayoutType              *string    `json:"payout_type"`
	PayoutAmountType        *string    `json:"payout_amount_type"`
	PayoutAmountValue       *float64   `json:"payout_amount_value"`
	RolloverBonusMultiplier *float64   `json:"rollover_bonus_multiplier"`
	HeroImageURL            *string    `json:"hero_image_url"`
	PromoCopy               *string    `json:"promo_copy"`
}

type ListCampaignsRequest struct {
	Status string `form:"status"`
	pagination.Pagination
}

// CampaignSummary is a list row with counts over the campaign's nested rows.
type CampaignSummary struct {
	*Campaign
	EligibleBundleCount   int  `json:"eligible_bundle_count"`
	CriteriaCount         int  `json:"criteria_count"`
	EnrollmentCount       int  `json:"enrollment_count"`
	ActiveEnrollmentCount int  `json:"active_enrollment_count"`
	Enrollable            bool `json:"enrollable"`
}

type AddBundleRequest struct {
	BundleID          string   `json:"bundle_id"`
	OverrideMinAmount *float64 `json:"override_min_amount"`
}

// CriterionInput is the body of criteria template create and update.
// CriterionID selects the row on update.
type CriterionInput struct {
	CriterionID         string          `json:"criterion_id"`
	LabelTemplate       *string         `json:"label_template"`
	DescriptionTemplate *string         `json:"description_template"`
	CriteriaType        *string         `json:"criteria_type"`
	TrackingSource      *string         `json:"tracking_source"`
	TrackingConfig      *map[string]any `json:"tracking_config"`
	ThresholdSource     *string         `json:"threshold_source"`
	ThresholdDefault    *string         `json:"threshold_default"`
	Required            *bool           `json:"required"`
	DisplayOrder        *int            `json:"display_order"`
}

type ListEnrollmentsRequest struct {
	Status string `form:"status"`
	pagination.Pagination
}

type EnrollRequest struct {
	ClientEmail       string   `json:"client_email"`
	ClientName        *string  `json:"client_name"`
	UserID            *string  `json:"user_id"`
	OrderID           *int64   `json:"order_id"`
	BundleID          *string  `json:"bundle_id"`
	PurchaseAmount    *float64 `json:"purchase_amount"`
	DiagnosticAuditID *string  `json:"diagnostic_audit_id"`
	EnrollmentSource  string   `json:"enrollment_source"`
}

type EnrollmentDetail struct {
	*Enrollment
	OverallProgress int `json:"overall_progress"`
	DaysRemaining   int `json:"days_remaining"`
}

type ResolveRequest struct {
	CampaignID      string `json:"-"`
	EnrollmentID    string `json:"-"`
	PayoutType      string `json:"payout_type"`
	ResolutionNotes string `json:"resolution_notes"`
}

type Resolution struct {
	Enrollment          *Enrollment `json:"data"`
	GuaranteeInstanceID *string     `json:"guarantee_instance_id"`
}

type VerifyProgressRequest struct {
	CampaignID   string         `json:"-"`
	EnrollmentID string         `json:"-"`
	CriterionID  string         `json:"-"`
	VerifiedBy   string         `json:"-"`
	Status       ProgressStatus `json:"status"`
	AdminNotes   string         `json:"admin_notes"`
	CurrentValue *string        `json:"current_value"`
}

// IngestProgressRequest is an auto-tracked update pushed by n8n. CurrentValue
// may be a number or a string.
type IngestProgressRequest struct {
	EnrollmentID string          `json:"enrollment_id"`
	CriterionID  string          `json:"criterion_id"`
	CurrentValue any             `json:"current_value"`
	SourceRef    *string         `json:"source_ref"`
	Status       *ProgressStatus `json:"status"`
}

type ProgressUpdate struct {
	Progress       *Progress `json:"progress"`
	AllCriteriaMet bool      `json:"all_criteria_met"`
}

type EnrollmentResolvedEvent struct {
	EnrollmentID        string               `json:"enrollment_id"`
	CampaignID          string               `json:"campaign_id"`
	CampaignName        string               `json:"campaign_name"`
	ClientEmail         string               `json:"client_email"`
	ClientName          *string              `json:"client_name"`
	PayoutType          guarantee.PayoutType `json:"payout_type"`
	Status              EnrollmentStatus     `json:"status"`
	PayoutAmount        float64              `json:"payout_amount"`
	GuaranteeInstanceID *string              `json:"guarantee_instance_id"`
}

type CriteriaMetEvent struct {
	EnrollmentID string  `json:"enrollment_id"`
	CampaignID   string  `json:"campaign_id"`
	ClientEmail  string  `json:"client_email"`
	ClientName   *string `json:"client_name"`
}
