package campaign

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"guarantee-controlplane/services/guarantee"

	"gorm.io/datatypes"
)

var (
	slugPattern        = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	placeholderPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

	// contextAliases maps the first segment of a threshold path to its context key.
	contextAliases = map[string]string{
		"audit":    "audit_data",
		"evidence": "value_evidence",
		"chat":     "chat_insights",
		"custom":   "custom_overrides",
	}

	campaignTypes     = []string{string(CampaignTypeWinMoneyBack), string(CampaignTypeFreeChallenge), string(CampaignTypeBonusCredit)}
	campaignStatuses  = []string{string(CampaignStatusDraft), string(CampaignStatusActive), string(CampaignStatusPaused), string(CampaignStatusCompleted), string(CampaignStatusArchived)}
	criteriaTypes     = []string{string(CriteriaTypeAction), string(CriteriaTypeResult)}
	trackingSources   = []string{string(TrackingManual), string(TrackingOnboardingMilestone), string(TrackingChatSession), string(TrackingVideoWatch), string(TrackingDiagnosticCompletion), string(TrackingCustomWebhook)}
	enrollmentSources = []string{string(EnrollmentSourceAutoPurchase), string(EnrollmentSourceAdminManual), string(EnrollmentSourceSalesConversation)}
	progressStatuses  = []string{string(ProgressStatusPending), string(ProgressStatusInProgress), string(ProgressStatusMet), string(ProgressStatusNotMet), string(ProgressStatusWaived)}

	// resolvable lists the enrollment statuses a payout may be resolved from.
	resolvable = []EnrollmentStatus{EnrollmentStatusCriteriaMet, EnrollmentStatusPayoutPending}

	// openEnrollment lists the statuses that block a second enrollment of the same client.
	openEnrollment = []EnrollmentStatus{EnrollmentStatusActive, EnrollmentStatusCriteriaMet, EnrollmentStatusPayoutPending}
)

// ValidateSlug reports whether slug is lowercase letters and digits joined by single hyphens.
func ValidateSlug(slug string) bool {
	return slugPattern.MatchString(slug)
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func IsValidCampaignType(v string) bool     { return contains(campaignTypes, v) }
func IsValidCampaignStatus(v string) bool   { return contains(campaignStatuses, v) }
func IsValidCriteriaType(v string) bool     { return contains(criteriaTypes, v) }
func IsValidTrackingSource(v string) bool   { return contains(trackingSources, v) }
func IsValidEnrollmentSource(v string) bool { return contains(enrollmentSources, v) }
func IsValidProgressStatus(v string) bool   { return contains(progressStatuses, v) }

// IsVerdict reports whether s is a status an admin may assign to a criterion.
func (s ProgressStatus) IsVerdict() bool {
	return s == ProgressStatusMet || s == ProgressStatusNotMet || s == ProgressStatusWaived
}

func (s ProgressStatus) IsSatisfied() bool {
	return s == ProgressStatusMet || s == ProgressStatusWaived
}

func (s EnrollmentStatus) IsResolvable() bool {
	for _, r := range resolvable {
		if s == r {
			return true
		}
	}
	return false
}

// EnrollmentStatusFor maps a payout type to the terminal enrollment status.
// Unknown payout types resolve as refunds.
func EnrollmentStatusFor(payoutType guarantee.PayoutType) EnrollmentStatus {
	switch payoutType {
	case guarantee.PayoutTypeCredit:
		return EnrollmentStatusCreditIssued
	case guarantee.PayoutTypeRolloverUpsell, guarantee.PayoutTypeRolloverContinuity:
		return EnrollmentStatusRolloverApplied
	default:
		return EnrollmentStatusRefundIssued
	}
}

// ResolveTemplate replaces {{name}} placeholders with variables[name].
// Unknown placeholders are kept verbatim.
func ResolveTemplate(template string, variables map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if v, ok := variables[key]; ok {
			return v
		}
		return match
	})
}

func (p PersonalizationContext) lookupRoot() map[string]any {
	root := map[string]any{}
	if p.AuditData != nil {
		root["audit_data"] = p.AuditData
	}
	if p.ValueEvidence != nil {
		root["value_evidence"] = p.ValueEvidence
	}
	if p.ChatInsights != nil {
		root["chat_insights"] = p.ChatInsights
	}
	if p.CustomOverrides != nil {
		overrides := make(map[string]any, len(p.CustomOverrides))
		for k, v := range p.CustomOverrides {
			overrides[k] = v
		}
		root["custom_overrides"] = overrides
	}
	return root
}

// ExtractThresholdValue walks a dot path such as "audit.desired_monthly_revenue"
// through the context. The default is returned when the path is empty or
// does not resolve to a value.
func ExtractThresholdValue(ctx PersonalizationContext, source, fallback *string) *string {
	if source == nil || *source == "" {
		return fallback
	}

	parts := strings.Split(*source, ".")
	current := ctx.lookupRoot()
	for i, part := range parts {
		key := part
		if i == 0 {
			if alias, ok := contextAliases[part]; ok {
				key = alias
			}
		}

		val, ok := current[key]
		if !ok || val == nil {
			return fallback
		}
		if i == len(parts)-1 {
			s := formatValue(val)
			return &s
		}

		next, ok := val.(map[string]any)
		if !ok {
			return fallback
		}
		current = next
	}

	return fallback
}

// formatValue renders scalars the way they appear in labels: 5000 not 5e+03.
func formatValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	default:
		return fmt.Sprint(val)
	}
}

// MaterializeCriteria personalizes the campaign's criteria templates for one
// client. The threshold is exposed to the templates under the last segment
// of its source path, or as {{target}}.
func MaterializeCriteria(templates []*CriteriaTemplate, ctx PersonalizationContext) []*EnrollmentCriterion {
	out := make([]*EnrollmentCriterion, 0, len(templates))
	for _, t := range templates {
		target := ExtractThresholdValue(ctx, t.ThresholdSource, t.ThresholdDefault)

		variables := map[string]string{}
		if target != nil && *target != "" {
			name := "target"
			if t.ThresholdSource != nil {
				segments := strings.Split(*t.ThresholdSource, ".")
				if last := segments[len(segments)-1]; last != "" {
					name = last
				}
			}
			variables[name] = *target
		}
		for k, v := range ctx.CustomOverrides {
			variables[k] = v
		}

		var description *string
		if t.DescriptionTemplate != nil && *t.DescriptionTemplate != "" {
			d := ResolveTemplate(*t.DescriptionTemplate, variables)
			description = &d
		}

		config := t.TrackingConfig
		if config == nil {
			config = datatypes.JSONMap{}
		}

		out = append(out, &EnrollmentCriterion{
			TemplateCriterionID: t.ID,
			Label:               ResolveTemplate(t.LabelTemplate, variables),
			Description:         description,
			CriteriaType:        t.CriteriaType,
			TrackingSource:      t.TrackingSource,
			TrackingConfig:      config,
			TargetValue:         target,
			Required:            t.Required,
			DisplayOrder:        t.DisplayOrder,
		})
	}
	return out
}

func CalculateDeadline(enrolledAt time.Time, completionWindowDays int) time.Time {
	return enrolledAt.AddDate(0, 0, completionWindowDays)
}

// AreAllCriteriaMet reports whether every progress row of a required
// criterion is met or waived. Optional criteria never block.
func AreAllCriteriaMet(criteria []*EnrollmentCriterion, progress []*Progress) bool {
	required := make(map[string]bool, len(criteria))
	for _, c := range criteria {
		required[c.ID] = c.Required
	}

	for _, p := range progress {
		if !required[p.CriterionID] {
			continue
		}
		if !p.Status.IsSatisfied() {
			return false
		}
	}
	return true
}

// OverallProgress is the share of criteria met or waived, as a rounded percentage.
func OverallProgress(progress []Progress) int {
	if len(progress) == 0 {
		return 0
	}
	done := 0
	for _, p := range progress {
		if p.Status.IsSatisfied() {
			done++
		}
	}
	return int(math.Round(float64(done) / float64(len(progress)) * 100))
}

// IsEnrollable reports whether the campaign is active and inside its
// start, enrollment and end window at now.
func (c *Campaign) IsEnrollable(now time.Time) bool {
	if c.Status != CampaignStatusActive {
		return false
	}
	if c.StartsAt != nil && c.StartsAt.After(now) {
		return false
	}
	if c.EnrollmentDeadline != nil && c.EnrollmentDeadline.Before(now) {
		return false
	}
	if c.EndsAt != nil && c.EndsAt.Before(now) {
		return false
	}
	return true
}

func (e *Enrollment) IsExpired(now time.Time) bool {
	return guarantee.IsExpired(e.DeadlineAt, now)
}

func (e *Enrollment) DaysRemaining(now time.Time) int {
	return guarantee.DaysRemaining(e.DeadlineAt, now)
}
