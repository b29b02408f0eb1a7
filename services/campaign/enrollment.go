package campaign

import (
	"context"
	"fmt"

	"guarantee-controlplane/pkg/db/option"
	"guarantee-controlplane/pkg/errutil"
	"guarantee-controlplane/pkg/logger"
	"guarantee-controlplane/pkg/taskname"
	"guarantee-controlplane/pkg/util"
	"guarantee-controlplane/services/guarantee"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// instanceSavepoint guards the guarantee instance insert inside a resolve.
const instanceSavepoint = "guarantee_instance"

func (s *Service) ListEnrollments(ctx context.Context, campaignID string, req ListEnrollmentsRequest) ([]*Enrollment, int64, error) {
	filters := []option.QueryOption{where("campaign_id", campaignID)}
	if req.Status != "" {
		filters = append(filters, where("status", req.Status))
	}

	total, err := s.enrollment.Count(ctx, nil, filters...)
	if err != nil {
		return nil, 0, errutil.FromDB(err, "")
	}

	opts := append(filters,
		newestFirst("enrolled_at"),
		option.ApplyPagination(req.Pagination),
		option.WithPreload("Criteria", byDisplayOrder),
		option.WithPreload("Progress"),
	)
	enrollments, err := s.enrollment.Find(ctx, nil, opts...)
	if err != nil {
		return nil, 0, errutil.FromDB(err, "")
	}

	return enrollments, total, nil
}

func (s *Service) GetEnrollment(ctx context.Context, campaignID, enrollmentID string) (*EnrollmentDetail, error) {
	e, err := s.enrollment.FindOne(ctx, &Enrollment{ID: enrollmentID, CampaignID: campaignID},
		option.WithPreload("Campaign"),
		option.WithPreload("Criteria", byDisplayOrder),
		option.WithPreload("Progress"),
	)
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}
	if e == nil {
		return nil, errutil.NotFound("Enrollment not found", nil)
	}

	now := s.now()
	return &EnrollmentDetail{
		Enrollment:      e,
		OverallProgress: OverallProgress(e.Progress),
		DaysRemaining:   e.DaysRemaining(now),
	}, nil
}

// findAudit returns the audit named by id, or the client's latest one.
func (s *Service) findAudit(ctx context.Context, id *string, email string) (*DiagnosticAudit, error) {
	if id != nil && *id != "" {
		return s.audit.FindOne(ctx, &DiagnosticAudit{ID: *id})
	}
	return s.audit.FindOne(ctx, nil, emailIs("email", email), newestFirst("created_at"))
}

// Enroll signs a client up for a campaign by hand. The client must have a
// diagnostic audit; the campaign's criteria are personalized from it and
// the latest value evidence, and stored with one pending progress row each.
func (s *Service) Enroll(ctx context.Context, campaignID string, req EnrollRequest) (*Enrollment, error) {
	email := util.NormalizeEmail(req.ClientEmail)
	if email == "" {
		return nil, errutil.BadRequest("Client email is required", nil)
	}
	source := EnrollmentSourceAdminManual
	if req.EnrollmentSource != "" {
		if !IsValidEnrollmentSource(req.EnrollmentSource) {
			return nil, errutil.BadRequest("Invalid enrollment source", nil)
		}
		source = EnrollmentSource(req.EnrollmentSource)
	}

	c, err := s.requireCampaign(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	audit, err := s.findAudit(ctx, req.DiagnosticAuditID, email)
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}
	if audit == nil {
		return nil, errutil.BadRequest("Client must have completed the AI Audit Calculator before enrollment. No audit data found for this email.", nil)
	}

	pc := PersonalizationContext{AuditData: audit.Snapshot()}
	evidence, err := s.evidence.FindOne(ctx, nil, emailIs("contact_email", email), newestFirst("created_at"))
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}
	if evidence != nil {
		pc.ValueEvidence = evidence.Snapshot()
	}

	templates, err := s.template.Find(ctx, &CriteriaTemplate{CampaignID: campaignID}, byDisplayOrder)
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}

	var purchase *float64
	if v := util.Deref(req.PurchaseAmount); v != 0 {
		purchase = &v
	}

	enrolledAt := s.now()
	e := &Enrollment{
		ID:                     s.node.Generate().String(),
		CampaignID:             campaignID,
		ClientEmail:            email,
		ClientName:             util.NullableStringPtr(req.ClientName),
		UserID:                 util.NullableStringPtr(req.UserID),
		OrderID:                req.OrderID,
		BundleID:               util.NullableStringPtr(req.BundleID),
		PurchaseAmount:         purchase,
		EnrollmentSource:       source,
		Status:                 EnrollmentStatusActive,
		EnrolledAt:             enrolledAt,
		DeadlineAt:             CalculateDeadline(enrolledAt, c.CompletionWindowDays),
		DiagnosticAuditID:      &audit.ID,
		PersonalizationContext: datatypes.NewJSONType(pc),
	}

	criteria := MaterializeCriteria(templates, pc)
	progress := make([]*Progress, 0, len(criteria))
	for _, cr := range criteria {
		cr.ID = s.node.Generate().String()
		cr.EnrollmentID = e.ID
		progress = append(progress, &Progress{
			ID:           s.node.Generate().String(),
			EnrollmentID: e.ID,
			CriterionID:  cr.ID,
			Status:       ProgressStatusPending,
			AutoTracked:  cr.TrackingSource != TrackingManual,
		})
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.enrollment.WithTrx(tx).Count(ctx, &Enrollment{CampaignID: campaignID},
			emailIs("client_email", email),
			option.ApplyOperator(option.Condition{Field: "status", Operator: option.IN, Value: anySlice(openEnrollment)}),
		)
		if err != nil {
			return err
		}
		if existing > 0 {
			return errutil.Conflict("Client already has an active enrollment in this campaign", nil)
		}

		if err := s.enrollment.WithTrx(tx).Create(ctx, e); err != nil {
			return err
		}
		if err := s.criterion.WithTrx(tx).BatchCreate(ctx, criteria); err != nil {
			return err
		}
		return s.progress.WithTrx(tx).BatchCreate(ctx, progress)
	})
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}

	logger.FromContext(ctx).Info("client enrolled",
		zap.String("campaign_id", campaignID),
		zap.String("enrollment_id", e.ID),
		zap.Int("criteria", len(criteria)),
	)

	return e, nil
}

func anySlice[T any](values []T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// ResolveEnrollment pays out an enrollment whose criteria are met. In one
// transaction, with the enrollment row locked, it records a guarantee
// instance for the payout and moves the enrollment to its terminal status.
// A failed instance insert is rolled back to a savepoint and the payout
// proceeds without it; a failed enrollment update rolls back everything.
// Payout types outside the known set resolve as refunds.
func (s *Service) ResolveEnrollment(ctx context.Context, req ResolveRequest) (*Resolution, error) {
	log := logger.FromContext(ctx).With(
		zap.String("campaign_id", req.CampaignID),
		zap.String("enrollment_id", req.EnrollmentID),
	)

	var (
		result     Resolution
		campaign   *Campaign
		payoutType guarantee.PayoutType
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		e, err := s.enrollment.WithTrx(tx).FindOne(ctx, &Enrollment{ID: req.EnrollmentID, CampaignID: req.CampaignID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if e == nil {
			return errutil.NotFound("Enrollment not found", nil)
		}

		campaign, err = s.campaign.WithTrx(tx).FindOne(ctx, &Campaign{ID: e.CampaignID})
		if err != nil {
			return err
		}
		if campaign == nil {
			return errutil.NotFound("Enrollment not found", nil)
		}

		if !e.Status.IsResolvable() {
			return errutil.BadRequest(fmt.Sprintf("Cannot resolve enrollment with status %q. Must be criteria_met or payout_pending.", e.Status), nil)
		}

		payoutType = campaign.PayoutType
		if req.PayoutType != "" {
			payoutType = guarantee.PayoutType(req.PayoutType)
		}

		now := s.now()
		instanceID, err := s.recordInstance(ctx, tx, &guarantee.Instance{
			ID:                 s.node.Generate().String(),
			OrderID:            e.OrderID,
			ClientEmail:        e.ClientEmail,
			ClientName:         e.ClientName,
			UserID:             e.UserID,
			PurchaseAmount:     util.Deref(e.PurchaseAmount),
			PayoutType:         payoutType,
			Status:             guarantee.ResolvedStatus(payoutType),
			ConditionsSnapshot: datatypes.JSONSlice[guarantee.Condition]{},
			StartsAt:           e.EnrolledAt,
			ExpiresAt:          e.DeadlineAt,
			ResolvedAt:         &now,
			ResolutionNotes:    util.NullableString(fmt.Sprintf("Campaign: %s. %s", campaign.Name, req.ResolutionNotes)),
		})
		if err != nil {
			return err
		}

		res := tx.WithContext(ctx).
			Model(&Enrollment{}).
			Where("id = ? AND status IN ?", e.ID, resolvable).
			Updates(map[string]any{
				"status":                EnrollmentStatusFor(payoutType),
				"resolved_at":           now,
				"resolution_notes":      util.NullableString(req.ResolutionNotes),
				"guarantee_instance_id": instanceID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errutil.BadRequest("Enrollment was resolved by another request", nil)
		}

		updated, err := s.enrollment.WithTrx(tx).FindOne(ctx, &Enrollment{ID: e.ID})
		if err != nil {
			return err
		}

		result = Resolution{Enrollment: updated, GuaranteeInstanceID: instanceID}
		return nil
	})
	if err != nil {
		if !errutil.IsStatus(err, errutil.StatusBadRequest) && !errutil.IsStatus(err, errutil.StatusNotFound) {
			log.Error("failed to resolve enrollment", zap.Error(err))
		}
		return nil, errutil.FromDB(err, "")
	}

	e := result.Enrollment
	amount := guarantee.CalculatePayoutAmount(util.Deref(e.PurchaseAmount), campaign.Terms())
	if payoutType == guarantee.PayoutTypeRolloverUpsell || payoutType == guarantee.PayoutTypeRolloverContinuity {
		amount = guarantee.CalculateRolloverCredit(util.Deref(e.PurchaseAmount), campaign.Terms())
	}

	s.metrics.enrollmentResolved(ctx, payoutType, e.Status, amount)
	log.Info("enrollment resolved",
		zap.String("status", string(e.Status)),
		zap.String("payout_type", string(payoutType)),
		zap.Bool("guarantee_recorded", result.GuaranteeInstanceID != nil),
	)

	s.publisher.Publish(ctx, taskname.CampaignEnrollmentResolved, EnrollmentResolvedEvent{
		EnrollmentID:        e.ID,
		CampaignID:          e.CampaignID,
		CampaignName:        campaign.Name,
		ClientEmail:         e.ClientEmail,
		ClientName:          e.ClientName,
		PayoutType:          payoutType,
		Status:              e.Status,
		PayoutAmount:        amount,
		GuaranteeInstanceID: result.GuaranteeInstanceID,
	})

	return &result, nil
}

// recordInstance inserts the payout's guarantee instance behind a savepoint.
// An insert failure is logged and undone; the returned id is then nil.
func (s *Service) recordInstance(ctx context.Context, tx *gorm.DB, inst *guarantee.Instance) (*string, error) {
	if err := tx.SavePoint(instanceSavepoint).Error; err != nil {
		return nil, err
	}

	if err := s.instance.WithTrx(tx).Create(ctx, inst); err != nil {
		logger.FromContext(ctx).Error("failed to record guarantee instance for campaign payout",
			zap.String("client_email", inst.ClientEmail),
			zap.Error(err),
		)
		if err := tx.RollbackTo(instanceSavepoint).Error; err != nil {
			return nil, err
		}
		return nil, nil
	}

	return &inst.ID, nil
}
