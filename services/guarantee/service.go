package guarantee

import (
	"context"
	"fmt"
	"strings"
	"time"

	"guarantee-controlplane/pkg/db/option"
	"guarantee-controlplane/pkg/errutil"
	"guarantee-controlplane/pkg/logger"
	"guarantee-controlplane/pkg/payment"
	"guarantee-controlplane/pkg/repository"
	"guarantee-controlplane/pkg/sequence"
	"guarantee-controlplane/pkg/taskname"
	"guarantee-controlplane/pkg/util"
	"guarantee-controlplane/services/notification"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const discountCodePrefix = "GUAR"

var (
	guaranteeTypes    = []string{string(GuaranteeTypeConditional), string(GuaranteeTypeUnconditional)}
	payoutTypes       = []string{string(PayoutTypeRefund), string(PayoutTypeCredit), string(PayoutTypeRolloverUpsell), string(PayoutTypeRolloverContinuity)}
	payoutAmountTypes = []string{string(PayoutAmountFull), string(PayoutAmountPartial), string(PayoutAmountFixed)}

	// evaluable lists the instance statuses a payout may still be decided from.
	evaluable = []InstanceStatus{InstanceStatusActive, InstanceStatusConditionsMet}
)

type Service struct {
	db        *gorm.DB
	node      *snowflake.Node
	seq       sequence.Generator
	refunder  payment.Refunder
	publisher notification.Publisher
	metrics   metrics
	now       func() time.Time

	template  repository.Repository[Template]
	instance  repository.Repository[Instance]
	milestone repository.Repository[Milestone]
	discount  repository.Repository[DiscountCode]
	order     repository.Repository[Order]
}

type ServiceParams struct {
	fx.In

	DB        *gorm.DB
	Node      *snowflake.Node
	Seq       sequence.Generator
	Refunder  payment.Refunder
	Publisher notification.Publisher
	Meter     metric.MeterProvider `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	mp := p.Meter
	if mp == nil {
		mp = otel.GetMeterProvider()
	}

	return &Service{
		db:        p.DB,
		node:      p.Node,
		seq:       p.Seq,
		refunder:  p.Refunder,
		publisher: p.Publisher,
		metrics:   newMetrics(mp),
		now:       time.Now,
		template:  repository.ProvideStore[Template](p.DB),
		instance:  repository.ProvideStore[Instance](p.DB),
		milestone: repository.ProvideStore[Milestone](p.DB),
		discount:  repository.ProvideStore[DiscountCode](p.DB),
		order:     repository.ProvideStore[Order](p.DB),
	}
}

func invalidEnum(field string, allowed []string) error {
	return errutil.BadRequest(fmt.Sprintf("Invalid %s. Must be one of: %s", field, strings.Join(allowed, ", ")), nil)
}

func newestFirst() option.QueryOption {
	return option.WithSortBy(option.QuerySortBy{SortBy: "created_at", OrderBy: "desc"})
}

func milestoneOrder(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC, id ASC")
}

// ========================================================
// Templates
// ========================================================

func (s *Service) ListTemplates(ctx context.Context, includeInactive bool) ([]*Template, error) {
	opts := []option.QueryOption{newestFirst()}
	if !includeInactive {
		opts = append(opts, option.ApplyOperator(option.Condition{Field: "is_active", Operator: option.EQ, Value: true}))
	}

	templates, err := s.template.Find(ctx, nil, opts...)
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}
	return templates, nil
}

func (s *Service) GetTemplate(ctx context.Context, id string) (*Template, error) {
	tpl, err := s.template.FindOne(ctx, &Template{ID: id})
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}
	if tpl == nil {
		return nil, errutil.NotFound("Template not found", nil)
	}
	return tpl, nil
}

func (s *Service) CreateTemplate(ctx context.Context, actorID string, in TemplateInput) (*Template, error) {
	name := strings.TrimSpace(util.Deref(in.Name))
	if name == "" {
		return nil, errutil.BadRequest("Name is required", nil)
	}
	if in.DurationDays == nil || *in.DurationDays < 1 {
		return nil, errutil.BadRequest("Duration must be at least 1 day", nil)
	}

	guaranteeType := GuaranteeTypeConditional
	if v := util.Deref(in.GuaranteeType); v != "" {
		if !IsValidGuaranteeType(v) {
			return nil, invalidEnum("guarantee_type", guaranteeTypes)
		}
		guaranteeType = GuaranteeType(v)
	}

	payoutType := util.Deref(in.DefaultPayoutType)
	if !IsValidPayoutType(payoutType) {
		return nil, invalidEnum("default_payout_type", payoutTypes)
	}

	amountType := PayoutAmountFull
	if v := util.Deref(in.PayoutAmountType); v != "" {
		if !IsValidPayoutAmountType(v) {
			return nil, invalidEnum("payout_amount_type", payoutAmountTypes)
		}
		amountType = PayoutAmountType(v)
	}

	conditions := []Condition{}
	if in.Conditions != nil {
		validated, err := ValidateConditions(*in.Conditions)
		if err != nil {
			return nil, err
		}
		conditions = validated
	}

	multiplier := util.Deref(in.RolloverBonusMultiplier)
	if multiplier == 0 {
		multiplier = 1
	}

	tpl := &Template{
		ID:                       s.node.Generate().String(),
		Name:                     name,
		Description:              util.NullableStringPtr(in.Description),
		GuaranteeType:            guaranteeType,
		DurationDays:             *in.DurationDays,
		Conditions:               datatypes.JSONSlice[Condition](conditions),
		DefaultPayoutType:        PayoutType(payoutType),
		PayoutAmountType:         amountType,
		RolloverContinuityPlanID: util.NullableStringPtr(in.RolloverContinuityPlanID),
		RolloverBonusMultiplier:  multiplier,
		IsActive:                 true,
		CreatedBy:                util.NullableString(actorID),
	}
	if v := util.Deref(in.PayoutAmountValue); v != 0 {
		tpl.PayoutAmountValue = &v
	}
	if in.RolloverUpsellServiceIDs != nil {
		tpl.RolloverUpsellServiceIDs = datatypes.JSONSlice[string](*in.RolloverUpsellServiceIDs)
	}

	if err := s.template.Create(ctx, tpl); err != nil {
		return nil, errutil.FromDB(err, "")
	}

	return tpl, nil
}

func (s *Service) UpdateTemplate(ctx context.Context, id string, in TemplateInput) (*Template, error) {
	updates := map[string]any{}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, errutil.BadRequest("Name is required", nil)
		}
		updates["name"] = name
	}
	if in.Description != nil {
		updates["description"] = util.NullableString(*in.Description)
	}
	if in.GuaranteeType != nil {
		if !IsValidGuaranteeType(*in.GuaranteeType) {
			return nil, invalidEnum("guarantee_type", guaranteeTypes)
		}
		updates["guarantee_type"] = *in.GuaranteeType
	}
	if in.DurationDays != nil {
		if *in.DurationDays < 1 {
			return nil, errutil.BadRequest("Duration must be at least 1 day", nil)
		}
		updates["duration_days"] = *in.DurationDays
	}
	if in.Conditions != nil {
		conditions, err := ValidateConditions(*in.Conditions)
		if err != nil {
			return nil, err
		}
		updates["conditions"] = datatypes.JSONSlice[Condition](conditions)
	}
	if in.DefaultPayoutType != nil {
		if !IsValidPayoutType(*in.DefaultPayoutType) {
			return nil, invalidEnum("default_payout_type", payoutTypes)
		}
		updates["default_payout_type"] = *in.DefaultPayoutType
	}
	if in.PayoutAmountType != nil {
		if !IsValidPayoutAmountType(*in.PayoutAmountType) {
			return nil, invalidEnum("payout_amount_type", payoutAmountTypes)
		}
		updates["payout_amount_type"] = *in.PayoutAmountType
	}
	if in.PayoutAmountValue != nil {
		updates["payout_amount_value"] = *in.PayoutAmountValue
	}
	if in.RolloverUpsellServiceIDs != nil {
		updates["rollover_upsell_service_ids"] = datatypes.JSONSlice[string](*in.RolloverUpsellServiceIDs)
	}
	if in.RolloverContinuityPlanID != nil {
		updates["rollover_continuity_plan_id"] = util.NullableString(*in.RolloverContinuityPlanID)
	}
	if in.RolloverBonusMultiplier != nil {
		updates["rollover_bonus_multiplier"] = *in.RolloverBonusMultiplier
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
	}

	if len(updates) == 0 {
		return nil, errutil.BadRequest("No fields to update", nil)
	}

	if err := s.template.Update(ctx, id, updates); err != nil {
		return nil, errutil.FromDB(err, "Template not found")
	}

	return s.GetTemplate(ctx, id)
}

// DeactivateTemplate soft-deletes a template. Issued instances keep working.
func (s *Service) DeactivateTemplate(ctx context.Context, id string) (*Template, error) {
	if err := s.template.Update(ctx, id, map[string]any{"is_active": false}); err != nil {
		return nil, errutil.FromDB(err, "Template not found")
	}
	return s.GetTemplate(ctx, id)
}

// ========================================================
// Instances
// ========================================================

// IssueInstance starts a guarantee for a purchase: the template's conditions
// are snapshotted and each gets a pending milestone.
func (s *Service) IssueInstance(ctx context.Context, req IssueInstanceRequest) (*Instance, error) {
	if strings.TrimSpace(req.TemplateID) == "" {
		return nil, errutil.BadRequest("template_id is required", nil)
	}
	email := util.NormalizeEmail(req.ClientEmail)
	if email == "" {
		return nil, errutil.BadRequest("Client email is required", nil)
	}
	if req.PurchaseAmount < 0 {
		return nil, errutil.BadRequest("purchase_amount must not be negative", nil)
	}

	tpl, err := s.GetTemplate(ctx, req.TemplateID)
	if err != nil {
		return nil, err
	}
	if !tpl.IsActive {
		return nil, errutil.BadRequest("Template is not active", nil)
	}

	payoutType := tpl.DefaultPayoutType
	if req.PayoutType != "" {
		if !IsValidPayoutType(req.PayoutType) {
			return nil, invalidEnum("payout_type", payoutTypes)
		}
		payoutType = PayoutType(req.PayoutType)
	}

	now := s.now()
	inst := &Instance{
		ID:                 s.node.Generate().String(),
		OrderID:            req.OrderID,
		OrderItemID:        req.OrderItemID,
		TemplateID:         &tpl.ID,
		ClientEmail:        email,
		ClientName:         util.NullableStringPtr(req.ClientName),
		UserID:             util.NullableStringPtr(req.UserID),
		PurchaseAmount:     req.PurchaseAmount,
		PayoutType:         payoutType,
		Status:             InstanceStatusActive,
		ConditionsSnapshot: tpl.Conditions,
		StartsAt:           now,
		ExpiresAt:          now.AddDate(0, 0, tpl.DurationDays),
	}

	milestones := make([]*Milestone, 0, len(tpl.Conditions))
	for _, c := range tpl.Conditions {
		milestones = append(milestones, &Milestone{
			ID:             s.node.Generate().String(),
			InstanceID:     inst.ID,
			ConditionID:    c.ID,
			ConditionLabel: c.Label,
			Status:         MilestoneStatusPending,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.instance.WithTrx(tx).Create(ctx, inst); err != nil {
			return err
		}
		return s.milestone.WithTrx(tx).BatchCreate(ctx, milestones)
	})
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}

	inst.Template = tpl
	inst.Milestones = make([]Milestone, 0, len(milestones))
	for _, m := range milestones {
		inst.Milestones = append(inst.Milestones, *m)
	}

	logger.FromContext(ctx).Info("guarantee issued",
		zap.String("instance_id", inst.ID),
		zap.String("template_id", tpl.ID),
		zap.Int("milestones", len(milestones)),
	)

	return inst, nil
}

func (s *Service) ListInstances(ctx context.Context, req ListInstancesRequest) ([]*Instance, int64, error) {
	var filters []option.QueryOption
	if req.Status != "" {
		filters = append(filters, option.ApplyOperator(option.Condition{Field: "status", Operator: option.EQ, Value: req.Status}))
	}

	total, err := s.instance.Count(ctx, nil, filters...)
	if err != nil {
		return nil, 0, errutil.FromDB(err, "")
	}

	opts := append(filters,
		newestFirst(),
		option.ApplyPagination(req.Pagination),
		option.WithPreload("Template"),
	)
	instances, err := s.instance.Find(ctx, nil, opts...)
	if err != nil {
		return nil, 0, errutil.FromDB(err, "")
	}

	return instances, total, nil
}

func (s *Service) GetInstance(ctx context.Context, id string) (*Instance, error) {
	inst, err := s.instance.FindOne(ctx, &Instance{ID: id},
		option.WithPreload("Template"),
		option.WithPreload("Milestones", milestoneOrder),
	)
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}
	if inst == nil {
		return nil, errutil.NotFound("Guarantee instance not found", nil)
	}
	return inst, nil
}

// ========================================================
// Milestones
// ========================================================

// VerifyMilestone records an admin verdict on one condition and advances the
// instance to conditions_met once every milestone is met or waived. The
// advance only fires from active, so a concurrent change is never overwritten.
func (s *Service) VerifyMilestone(ctx context.Context, req VerifyMilestoneRequest) (*MilestoneVerification, error) {
	if !req.Status.IsVerdict() {
		return nil, errutil.BadRequest("Invalid status. Must be one of: met, not_met, waived", nil)
	}

	inst, err := s.instance.FindOne(ctx, &Instance{ID: req.InstanceID})
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}
	if inst == nil {
		return nil, errutil.NotFound("Guarantee instance not found", nil)
	}
	if inst.Status != InstanceStatusActive {
		return nil, errutil.BadRequest(fmt.Sprintf("Cannot update milestones on a guarantee with status: %s", inst.Status), nil)
	}

	res := s.db.WithContext(ctx).
		Model(&Milestone{}).
		Where("guarantee_instance_id = ? AND condition_id = ?", req.InstanceID, req.ConditionID).
		Updates(map[string]any{
			"status":      req.Status,
			"verified_by": util.NullableString(req.VerifiedBy),
			"verified_at": s.now(),
			"admin_notes": util.NullableString(req.AdminNotes),
		})
	if res.Error != nil {
		return nil, errutil.FromDB(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return nil, errutil.NotFound("Milestone not found", nil)
	}

	milestones, err := s.milestone.Find(ctx, &Milestone{InstanceID: req.InstanceID}, milestoneOrder)
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}

	var updated *Milestone
	for _, m := range milestones {
		if m.ConditionID == req.ConditionID {
			updated = m
			break
		}
	}

	allMet := AllConditionsMet(milestones)
	if allMet {
		advanced, err := s.advance(ctx, s.db, inst.ID, []InstanceStatus{InstanceStatusActive}, map[string]any{
			"status": InstanceStatusConditionsMet,
		})
		if err != nil {
			return nil, errutil.FromDB(err, "")
		}
		if advanced {
			s.publisher.Publish(ctx, taskname.GuaranteeConditionsMet, ConditionsMetEvent{
				InstanceID:  inst.ID,
				ClientEmail: inst.ClientEmail,
				ClientName:  inst.ClientName,
				PayoutType:  inst.PayoutType,
			})
		}
	}

	return &MilestoneVerification{Milestone: updated, AllConditionsMet: allMet}, nil
}

// advance applies updates to the instance only while it is in one of from.
func (s *Service) advance(ctx context.Context, db *gorm.DB, id string, from []InstanceStatus, updates map[string]any) (bool, error) {
	res := db.WithContext(ctx).
		Model(&Instance{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ========================================================
// Evaluation
// ========================================================

// Evaluate decides the payout of an instance: it expires overdue instances,
// reports outstanding conditions, or issues the refund, credit or rollover.
func (s *Service) Evaluate(ctx context.Context, instanceID, actorID string) (*Evaluation, error) {
	inst, err := s.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	if inst.Status != InstanceStatusActive && inst.Status != InstanceStatusConditionsMet {
		return nil, errutil.BadRequest(fmt.Sprintf("Cannot evaluate guarantee with status: %s", inst.Status), nil)
	}

	now := s.now()
	if IsExpired(inst.ExpiresAt, now) {
		if _, err := s.advance(ctx, s.db, inst.ID, evaluable, map[string]any{
			"status":           InstanceStatusExpired,
			"resolved_at":      now,
			"resolution_notes": "Guarantee window expired with unmet conditions.",
		}); err != nil {
			return nil, errutil.FromDB(err, "")
		}
		return &Evaluation{Result: string(InstanceStatusExpired), Message: "Guarantee has expired. Window closed."}, nil
	}

	milestones := make([]*Milestone, 0, len(inst.Milestones))
	for i := range inst.Milestones {
		milestones = append(milestones, &inst.Milestones[i])
	}

	if !AllConditionsMet(milestones) && !inst.IsUnconditional() {
		pending := make([]PendingCondition, 0)
		for _, m := range milestones {
			if m.Status == MilestoneStatusPending || m.Status == MilestoneStatusNotMet {
				pending = append(pending, PendingCondition{ConditionID: m.ConditionID, Label: m.ConditionLabel, Status: m.Status})
			}
		}
		return &Evaluation{
			Result:            "conditions_not_met",
			Message:           fmt.Sprintf("%d condition(s) still outstanding.", len(pending)),
			PendingConditions: pending,
		}, nil
	}

	terms := inst.Terms()
	amount := CalculatePayoutAmount(inst.PurchaseAmount, terms)

	switch inst.PayoutType {
	case PayoutTypeRefund:
		refundID, err := s.issueRefund(ctx, inst, amount, evaluable, fmt.Sprintf("Refund of $%.2f issued via Stripe.", amount))
		if err != nil {
			return nil, err
		}
		return &Evaluation{Result: string(InstanceStatusRefundIssued), RefundID: refundID, Amount: &amount}, nil
	case PayoutTypeCredit:
		code, err := s.issueDiscount(ctx, inst, actorID, discountPayout{
			payoutType: PayoutTypeCredit,
			status:     InstanceStatusCreditIssued,
			prefix:     discountCodePrefix,
			amount:     amount,
			from:       evaluable,
			notes: func(code string) string {
				return fmt.Sprintf("Credit of $%.2f issued as discount code %s.", amount, code)
			},
		})
		if err != nil {
			return nil, err
		}
		return &Evaluation{Result: string(InstanceStatusCreditIssued), DiscountCode: code, Amount: &amount}, nil
	case PayoutTypeRolloverUpsell, PayoutTypeRolloverContinuity:
		rollover := CalculateRolloverCredit(inst.PurchaseAmount, terms)
		if _, err := s.advance(ctx, s.db, inst.ID, evaluable, map[string]any{
			"status":                 InstanceStatusConditionsMet,
			"rollover_credit_amount": rollover,
		}); err != nil {
			return nil, errutil.FromDB(err, "")
		}

		multiplier := terms.BonusMultiplier
		return &Evaluation{
			Result:               string(InstanceStatusConditionsMet),
			Message:              "Conditions met. Client should choose their payout preference.",
			PayoutType:           inst.PayoutType,
			RefundAmount:         &amount,
			RolloverCreditAmount: &rollover,
			BonusMultiplier:      &multiplier,
		}, nil
	default:
		return nil, errutil.BadRequest("Unknown payout type", nil)
	}
}

// issueRefund refunds amount through Stripe and settles the instance while
// it is still in one of from. The order is marked refunded alongside.
func (s *Service) issueRefund(ctx context.Context, inst *Instance, amount float64, from []InstanceStatus, notes string) (string, error) {
	noIntent := errutil.BadRequest("No payment intent found for this order. Cannot process refund.", nil)
	if inst.OrderID == nil {
		return "", noIntent
	}

	order, err := s.order.FindOne(ctx, &Order{ID: *inst.OrderID})
	if err != nil {
		return "", errutil.FromDB(err, "")
	}
	if order == nil || util.Deref(order.StripePaymentIntentID) == "" {
		return "", noIntent
	}

	refundID, err := s.refunder.Refund(ctx, *order.StripePaymentIntentID, amount)
	if err != nil {
		return "", err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := s.advance(ctx, tx, inst.ID, from, map[string]any{
			"payout_type":      PayoutTypeRefund,
			"status":           InstanceStatusRefundIssued,
			"resolved_at":      s.now(),
			"stripe_refund_id": refundID,
			"resolution_notes": notes,
		})
		if err != nil {
			return err
		}
		if !ok {
			return errutil.Conflict("Guarantee was resolved by another request", nil)
		}
		return tx.Model(&Order{}).Where("id = ?", order.ID).Update("status", "refunded").Error
	})
	if err != nil {
		logger.FromContext(ctx).Error("refund issued but instance not updated",
			zap.String("instance_id", inst.ID),
			zap.String("refund_id", refundID),
			zap.Error(err),
		)
		return "", errutil.FromDB(err, "")
	}

	s.payoutIssued(ctx, inst, PayoutTypeRefund, InstanceStatusRefundIssued, amount, refundID)
	return refundID, nil
}

// discountPayout describes a payout delivered as a single-use discount code.
type discountPayout struct {
	payoutType PayoutType
	status     InstanceStatus
	prefix     string
	amount     float64
	from       []InstanceStatus
	notes      func(code string) string
	updates    map[string]any
}

func (s *Service) issueDiscount(ctx context.Context, inst *Instance, actorID string, p discountPayout) (string, error) {
	code, err := s.seq.NextDiscountCode(ctx, p.prefix)
	if err != nil {
		return "", errutil.Internal("Failed to generate discount code", err)
	}

	dc := &DiscountCode{
		ID:            s.node.Generate().String(),
		Code:          code,
		DiscountType:  "fixed",
		DiscountValue: p.amount,
		MaxUses:       1,
		IsActive:      true,
		CreatedBy:     util.NullableString(actorID),
	}

	updates := map[string]any{
		"payout_type":      p.payoutType,
		"status":           p.status,
		"resolved_at":      s.now(),
		"discount_code_id": dc.ID,
		"resolution_notes": p.notes(code),
	}
	for k, v := range p.updates {
		updates[k] = v
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.discount.WithTrx(tx).Create(ctx, dc); err != nil {
			return err
		}

		ok, err := s.advance(ctx, tx, inst.ID, p.from, updates)
		if err != nil {
			return err
		}
		if !ok {
			return errutil.Conflict("Guarantee was resolved by another request", nil)
		}
		return nil
	})
	if err != nil {
		return "", errutil.FromDB(err, "")
	}

	s.payoutIssued(ctx, inst, p.payoutType, p.status, p.amount, code)
	return code, nil
}

func (s *Service) payoutIssued(ctx context.Context, inst *Instance, payoutType PayoutType, status InstanceStatus, amount float64, reference string) {
	s.metrics.payoutIssued(ctx, payoutType, status, amount)
	s.publisher.Publish(ctx, taskname.GuaranteePayoutIssued, PayoutIssuedEvent{
		InstanceID:  inst.ID,
		ClientEmail: inst.ClientEmail,
		Status:      status,
		Amount:      amount,
		Reference:   reference,
	})
}
