package campaign

import (
	"context"
	"errors"
	"strings"
	"time"

	"guarantee-controlplane/pkg/celengine"
	"guarantee-controlplane/pkg/db/option"
	"guarantee-controlplane/pkg/errutil"
	"guarantee-controlplane/pkg/logger"
	"guarantee-controlplane/pkg/repository"
	"guarantee-controlplane/pkg/util"
	"guarantee-controlplane/services/guarantee"
	"guarantee-controlplane/services/notification"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const duplicateSlugMessage = "A campaign with this slug already exists"

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	publisher notification.Publisher
	metrics   metrics
	now       func() time.Time

	campaign   repository.Repository[Campaign]
	bundle     repository.Repository[EligibleBundle]
	template   repository.Repository[CriteriaTemplate]
	enrollment repository.Repository[Enrollment]
	criterion  repository.Repository[EnrollmentCriterion]
	progress   repository.Repository[Progress]
	audit      repository.Repository[DiagnosticAudit]
	evidence   repository.Repository[ValueEvidence]
	instance   repository.Repository[guarantee.Instance]
}

type ServiceParams struct {
	fx.In

	DB        *gorm.DB
	Node      *snowflake.Node
	Publisher notification.Publisher
	Meter     metric.MeterProvider `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	mp := p.Meter
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	return &Service{
		db:         p.DB,
		node:       p.Node,
		publisher:  p.Publisher,
		metrics:    newMetrics(mp),
		now:        time.Now,
		campaign:   repository.ProvideStore[Campaign](p.DB),
		bundle:     repository.ProvideStore[EligibleBundle](p.DB),
		template:   repository.ProvideStore[CriteriaTemplate](p.DB),
		enrollment: repository.ProvideStore[Enrollment](p.DB),
		criterion:  repository.ProvideStore[EnrollmentCriterion](p.DB),
		progress:   repository.ProvideStore[Progress](p.DB),
		audit:      repository.ProvideStore[DiagnosticAudit](p.DB),
		evidence:   repository.ProvideStore[ValueEvidence](p.DB),
		instance:   repository.ProvideStore[guarantee.Instance](p.DB),
	}
}

func newestFirst(column string) option.QueryOption {
	return option.WithSortBy(option.QuerySortBy{SortBy: column, OrderBy: "desc"})
}

// emailIs matches column case-insensitively against a normalized address.
func emailIs(column, email string) option.QueryOption {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("LOWER("+column+") = ?", email)
	}
}

func byDisplayOrder(db *gorm.DB) *gorm.DB {
	return db.Order("display_order ASC, id ASC")
}

func selectColumns(columns ...string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Select(columns)
	}
}

func where(field string, value any) option.QueryOption {
	return option.ApplyOperator(option.Condition{Field: field, Operator: option.EQ, Value: value})
}

// slugError maps a campaign write error, surfacing unique slug violations as 409.
func slugError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return errutil.Conflict(duplicateSlugMessage, err)
	}
	return errutil.FromDB(err, "Campaign not found")
}

// ========================================================
// Campaigns
// ========================================================

// ListCampaigns returns campaigns newest first. An unknown status filter is ignored.
func (s *Service) ListCampaigns(ctx context.Context, req ListCampaignsRequest) ([]*CampaignSummary, int64, error) {
	var filters []option.QueryOption
	if IsValidCampaignStatus(req.Status) {
		filters = append(filters, where("status", req.Status))
	}

	total, err := s.campaign.Count(ctx, nil, filters...)
	if err != nil {
		return nil, 0, errutil.FromDB(err, "")
	}

	opts := append(filters,
		newestFirst("created_at"),
		option.ApplyPagination(req.Pagination),
		option.WithPreload("EligibleBundles", selectColumns("id", "campaign_id", "bundle_id")),
		option.WithPreload("CriteriaTemplates", selectColumns("id", "campaign_id")),
		option.WithPreload("Enrollments", selectColumns("id", "campaign_id", "status")),
	)
	campaigns, err := s.campaign.Find(ctx, nil, opts...)
	if err != nil {
		return nil, 0, errutil.FromDB(err, "")
	}

	now := s.now()
	out := make([]*CampaignSummary, 0, len(campaigns))
	for _, c := range campaigns {
		summary := &CampaignSummary{
			Campaign:            c,
			EligibleBundleCount: len(c.EligibleBundles),
			CriteriaCount:       len(c.CriteriaTemplates),
			EnrollmentCount:     len(c.Enrollments),
			Enrollable:          c.IsEnrollable(now),
		}
		for _, e := range c.Enrollments {
			if e.Status == EnrollmentStatusActive {
				summary.ActiveEnrollmentCount++
			}
		}
		out = append(out, summary)
	}

	return out, total, nil
}

func (s *Service) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	c, err := s.campaign.FindOne(ctx, &Campaign{ID: id},
		option.WithPreload("EligibleBundles"),
		option.WithPreload("CriteriaTemplates", byDisplayOrder),
	)
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}
	if c == nil {
		return nil, errutil.NotFound("Campaign not found", nil)
	}
	return c, nil
}

func (s *Service) requireCampaign(ctx context.Context, id string) (*Campaign, error) {
	c, err := s.campaign.FindOne(ctx, &Campaign{ID: id})
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}
	if c == nil {
		return nil, errutil.NotFound("Campaign not found", nil)
	}
	return c, nil
}

func validatePayoutFields(in CampaignInput) error {
	if v := util.Deref(in.PayoutType); v != "" && !guarantee.IsValidPayoutType(v) {
		return errutil.BadRequest("Invalid payout type", nil)
	}
	if v := util.Deref(in.PayoutAmountType); v != "" && !guarantee.IsValidPayoutAmountType(v) {
		return errutil.BadRequest("Invalid payout amount type", nil)
	}
	if in.CompletionWindowDays != nil && *in.CompletionWindowDays < 1 {
		return errutil.BadRequest("Completion window must be at least 1 day", nil)
	}
	return nil
}

// CreateCampaign stores a draft campaign. Without a slug one is derived from the name.
func (s *Service) CreateCampaign(ctx context.Context, actorID string, in CampaignInput) (*Campaign, error) {
	name := strings.TrimSpace(util.Deref(in.Name))
	if name == "" {
		return nil, errutil.BadRequest("Name is required", nil)
	}

	slugValue := strings.TrimSpace(util.Deref(in.Slug))
	if slugValue == "" {
		slugValue = slug.Make(name)
	}
	if !ValidateSlug(slugValue) {
		return nil, errutil.BadRequest("Valid slug is required (lowercase, hyphens only)", nil)
	}

	campaignType := CampaignTypeWinMoneyBack
	if v := util.Deref(in.CampaignType); v != "" {
		if !IsValidCampaignType(v) {
			return nil, errutil.BadRequest("Invalid campaign type", nil)
		}
		campaignType = CampaignType(v)
	}

	if err := validatePayoutFields(in); err != nil {
		return nil, err
	}

	window := util.Deref(in.CompletionWindowDays)
	if window == 0 {
		window = 90
	}
	multiplier := util.Deref(in.RolloverBonusMultiplier)
	if multiplier == 0 {
		multiplier = 1
	}
	payoutType := guarantee.PayoutType(util.Deref(in.PayoutType))
	if payoutType == "" {
		payoutType = guarantee.PayoutTypeRefund
	}
	amountType := guarantee.PayoutAmountType(util.Deref(in.PayoutAmountType))
	if amountType == "" {
		amountType = guarantee.PayoutAmountFull
	}
	var amountValue *float64
	if v := util.Deref(in.PayoutAmountValue); v != 0 {
		amountValue = &v
	}

	c := &Campaign{
		ID:                      s.node.Generate().String(),
		Name:                    name,
		Slug:                    slugValue,
		Description:             util.NullableStringPtr(in.Description),
		CampaignType:            campaignType,
		Status:                  CampaignStatusDraft,
		StartsAt:                in.StartsAt,
		EndsAt:                  in.EndsAt,
		EnrollmentDeadline:      in.EnrollmentDeadline,
		CompletionWindowDays:    window,
		MinPurchaseAmount:       util.Deref(in.MinPurchaseAmount),
		PayoutType:              payoutType,
		PayoutAmountType:        amountType,
		PayoutAmountValue:       amountValue,
		RolloverBonusMultiplier: multiplier,
		HeroImageURL:            util.NullableStringPtr(in.HeroImageURL),
		PromoCopy:               util.NullableStringPtr(in.PromoCopy),
		CreatedBy:               util.NullableString(actorID),
	}

	if err := s.campaign.Create(ctx, c); err != nil {
		return nil, slugError(err)
	}

	logger.FromContext(ctx).Info("campaign created",
		zap.String("campaign_id", c.ID),
		zap.String("slug", c.Slug),
	)

	return c, nil
}

func (s *Service) UpdateCampaign(ctx context.Context, id string, in CampaignInput) (*Campaign, error) {
	if in.Slug != nil && !ValidateSlug(*in.Slug) {
		return nil, errutil.BadRequest("Invalid slug format", nil)
	}
	if v := util.Deref(in.CampaignType); v != "" && !IsValidCampaignType(v) {
		return nil, errutil.BadRequest("Invalid campaign type", nil)
	}
	if v := util.Deref(in.Status); v != "" && !IsValidCampaignStatus(v) {
		return nil, errutil.BadRequest("Invalid status", nil)
	}
	if err := validatePayoutFields(in); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, errutil.BadRequest("Name is required", nil)
		}
		updates["name"] = name
	}
	if in.Slug != nil {
		updates["slug"] = *in.Slug
	}
	if in.Description != nil {
		updates["description"] = util.NullableString(*in.Description)
	}
	if in.CampaignType != nil {
		updates["campaign_type"] = *in.CampaignType
	}
	if in.Status != nil {
		updates["status"] = *in.Status
	}
	if in.StartsAt != nil {
		updates["starts_at"] = *in.StartsAt
	}
	if in.EndsAt != nil {
		updates["ends_at"] = *in.EndsAt
	}
	if in.EnrollmentDeadline != nil {
		updates["enrollment_deadline"] = *in.EnrollmentDeadline
	}
	if in.CompletionWindowDays != nil {
		updates["completion_window_days"] = *in.CompletionWindowDays
	}
	if in.MinPurchaseAmount != nil {
		updates["min_purchase_amount"] = *in.MinPurchaseAmount
	}
	if in.PayoutType != nil {
		updates["payout_type"] = *in.PayoutType
	}
	if in.PayoutAmountType != nil {
		updates["payout_amount_type"] = *in.PayoutAmountType
	}
	if in.PayoutAmountValue != nil {
		updates["payout_amount_value"] = *in.PayoutAmountValue
	}
	if in.RolloverBonusMultiplier != nil {
		updates["rollover_bonus_multiplier"] = *in.RolloverBonusMultiplier
	}
	if in.HeroImageURL != nil {
		updates["hero_image_url"] = util.NullableString(*in.HeroImageURL)
	}
	if in.PromoCopy != nil {
		updates["promo_copy"] = util.NullableString(*in.PromoCopy)
	}

	if len(updates) == 0 {
		return nil, errutil.BadRequest("No fields to update", nil)
	}

	if err := s.campaign.Update(ctx, id, updates); err != nil {
		return nil, slugError(err)
	}

	return s.requireCampaign(ctx, id)
}

// DeleteCampaign removes the campaign; its bundles, criteria and enrollments
// go with it through the foreign keys.
func (s *Service) DeleteCampaign(ctx context.Context, id string) error {
	if err := s.campaign.Delete(ctx, id); err != nil {
		return errutil.FromDB(err, "")
	}

	logger.FromContext(ctx).Info("campaign deleted", zap.String("campaign_id", id))
	return nil
}

// ========================================================
// Eligible bundles
// ========================================================

func (s *Service) ListBundles(ctx context.Context, campaignID string) ([]*EligibleBundle, error) {
	bundles, err := s.bundle.Find(ctx, &EligibleBundle{CampaignID: campaignID},
		option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "asc"}),
	)
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}
	return bundles, nil
}

func (s *Service) AddBundle(ctx context.Context, campaignID string, req AddBundleRequest) (*EligibleBundle, error) {
	bundleID := strings.TrimSpace(req.BundleID)
	if bundleID == "" {
		return nil, errutil.BadRequest("bundle_id is required", nil)
	}
	if _, err := s.requireCampaign(ctx, campaignID); err != nil {
		return nil, err
	}

	var override *float64
	if v := util.Deref(req.OverrideMinAmount); v != 0 {
		override = &v
	}

	b := &EligibleBundle{
		ID:                s.node.Generate().String(),
		CampaignID:        campaignID,
		BundleID:          bundleID,
		OverrideMinAmount: override,
	}
	if err := s.bundle.Create(ctx, b); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, errutil.Conflict("This bundle is already eligible for this campaign", err)
		}
		return nil, errutil.FromDB(err, "")
	}
	return b, nil
}

func (s *Service) RemoveBundle(ctx context.Context, campaignID, bundleID string) error {
	if bundleID == "" {
		return errutil.BadRequest("bundle_id query param is required", nil)
	}

	err := s.db.WithContext(ctx).
		Where("campaign_id = ? AND bundle_id = ?", campaignID, bundleID).
		Delete(&EligibleBundle{}).Error
	if err != nil {
		return errutil.FromDB(err, "")
	}
	return nil
}

// ========================================================
// Criteria templates
// ========================================================

// progressAttrs are the variables a tracking expression is evaluated with.
func progressAttrs(current, target float64) map[string]any {
	return map[string]any{
		"current_value": current,
		"target_value":  target,
	}
}

// trackingExpression returns the CEL expression configured on a criterion, if any.
func trackingExpression(config map[string]any) (string, bool, error) {
	raw, ok := config["expression"]
	if !ok || raw == nil {
		return "", false, nil
	}
	expr, ok := raw.(string)
	if !ok {
		return "", false, errutil.BadRequest("Tracking expression must be a string", nil)
	}
	expr = strings.TrimSpace(expr)
	return expr, expr != "", nil
}

func validateTrackingConfig(config map[string]any) error {
	expr, ok, err := trackingExpression(config)
	if err != nil || !ok {
		return err
	}
	if err := celengine.ValidateExpression(expr, progressAttrs(0, 0)); err != nil {
		return errutil.BadRequest("Invalid tracking expression", err)
	}
	return nil
}

func validateCriterionInput(in CriterionInput) error {
	if v := util.Deref(in.TrackingSource); v != "" && !IsValidTrackingSource(v) {
		return errutil.BadRequest("Invalid tracking source", nil)
	}
	if v := util.Deref(in.CriteriaType); v != "" && !IsValidCriteriaType(v) {
		return errutil.BadRequest("Invalid criteria type", nil)
	}
	if in.TrackingConfig != nil {
		return validateTrackingConfig(*in.TrackingConfig)
	}
	return nil
}

func (s *Service) ListCriteria(ctx context.Context, campaignID string) ([]*CriteriaTemplate, error) {
	templates, err := s.template.Find(ctx, &CriteriaTemplate{CampaignID: campaignID}, byDisplayOrder)
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}
	return templates, nil
}

// CreateCriterion appends a criteria template. Without an explicit
// display_order it is placed after the last one.
func (s *Service) CreateCriterion(ctx context.Context, campaignID string, in CriterionInput) (*CriteriaTemplate, error) {
	label := strings.TrimSpace(util.Deref(in.LabelTemplate))
	if label == "" {
		return nil, errutil.BadRequest("Label template is required", nil)
	}
	if err := validateCriterionInput(in); err != nil {
		return nil, err
	}
	if _, err := s.requireCampaign(ctx, campaignID); err != nil {
		return nil, err
	}

	order := 0
	if in.DisplayOrder != nil {
		order = *in.DisplayOrder
	} else {
		last, err := s.template.FindOne(ctx, &CriteriaTemplate{CampaignID: campaignID},
			option.WithSortBy(option.QuerySortBy{SortBy: "display_order", OrderBy: "desc"}),
		)
		if err != nil {
			return nil, errutil.FromDB(err, "")
		}
		if last != nil {
			order = last.DisplayOrder + 1
		}
	}

	criteriaType := CriteriaTypeAction
	if v := util.Deref(in.CriteriaType); v != "" {
		criteriaType = CriteriaType(v)
	}
	source := TrackingManual
	if v := util.Deref(in.TrackingSource); v != "" {
		source = TrackingSource(v)
	}
	config := datatypes.JSONMap{}
	if in.TrackingConfig != nil {
		config = *in.TrackingConfig
	}

	t := &CriteriaTemplate{
		ID:                  s.node.Generate().String(),
		CampaignID:          campaignID,
		LabelTemplate:       label,
		DescriptionTemplate: util.NullableStringPtr(in.DescriptionTemplate),
		CriteriaType:        criteriaType,
		TrackingSource:      source,
		TrackingConfig:      config,
		ThresholdSource:     util.NullableStringPtr(in.ThresholdSource),
		ThresholdDefault:    util.NullableStringPtr(in.ThresholdDefault),
		Required:            in.Required == nil || *in.Required,
		DisplayOrder:        order,
	}
	if err := s.template.Create(ctx, t); err != nil {
		return nil, errutil.FromDB(err, "")
	}
	return t, nil
}

func (s *Service) UpdateCriterion(ctx context.Context, campaignID string, in CriterionInput) (*CriteriaTemplate, error) {
	if in.CriterionID == "" {
		return nil, errutil.BadRequest("criterion_id is required", nil)
	}
	if err := validateCriterionInput(in); err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if in.LabelTemplate != nil {
		label := strings.TrimSpace(*in.LabelTemplate)
		if label == "" {
			return nil, errutil.BadRequest("Label template is required", nil)
		}
		updates["label_template"] = label
	}
	if in.DescriptionTemplate != nil {
		updates["description_template"] = util.NullableString(*in.DescriptionTemplate)
	}
	if in.CriteriaType != nil {
		updates["criteria_type"] = *in.CriteriaType
	}
	if in.TrackingSource != nil {
		updates["tracking_source"] = *in.TrackingSource
	}
	if in.TrackingConfig != nil {
		updates["tracking_config"] = datatypes.JSONMap(*in.TrackingConfig)
	}
	if in.ThresholdSource != nil {
		updates["threshold_source"] = util.NullableString(*in.ThresholdSource)
	}
	if in.ThresholdDefault != nil {
		updates["threshold_default"] = util.NullableString(*in.ThresholdDefault)
	}
	if in.Required != nil {
		updates["required"] = *in.Required
	}
	if in.DisplayOrder != nil {
		updates["display_order"] = *in.DisplayOrder
	}

	if len(updates) == 0 {
		return nil, errutil.BadRequest("No fields to update", nil)
	}

	res := s.db.WithContext(ctx).
		Model(&CriteriaTemplate{}).
		Where("id = ? AND campaign_id = ?", in.CriterionID, campaignID).
		Updates(updates)
	if res.Error != nil {
		return nil, errutil.FromDB(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return nil, errutil.NotFound("Criterion not found", nil)
	}

	t, err := s.template.FindOne(ctx, &CriteriaTemplate{ID: in.CriterionID})
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}
	return t, nil
}

func (s *Service) DeleteCriterion(ctx context.Context, campaignID, criterionID string) error {
	if criterionID == "" {
		return errutil.BadRequest("criterion_id query param is required", nil)
	}

	err := s.db.WithContext(ctx).
		Where("id = ? AND campaign_id = ?", criterionID, campaignID).
		Delete(&CriteriaTemplate{}).Error
	if err != nil {
		return errutil.FromDB(err, "")
	}
	return nil
}
