package campaign

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"guarantee-controlplane/pkg/celengine"
	"guarantee-controlplane/pkg/errutil"
	"guarantee-controlplane/pkg/logger"
	"guarantee-controlplane/pkg/taskname"
	"guarantee-controlplane/pkg/util"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// activeEnrollment loads an enrollment whose progress may still change.
// An empty campaignID matches any campaign.
func (s *Service) activeEnrollment(ctx context.Context, campaignID, enrollmentID string) (*Enrollment, error) {
	e, err := s.enrollment.FindOne(ctx, &Enrollment{ID: enrollmentID, CampaignID: campaignID})
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}
	if e == nil {
		return nil, errutil.NotFound("Enrollment not found", nil)
	}
	if e.Status != EnrollmentStatusActive {
		return nil, errutil.BadRequest(fmt.Sprintf("Cannot update progress on an enrollment with status: %s", e.Status), nil)
	}
	return e, nil
}

// VerifyProgress records an admin verdict on one criterion and advances the
// enrollment to criteria_met once every required criterion is met or waived.
func (s *Service) VerifyProgress(ctx context.Context, req VerifyProgressRequest) (*ProgressUpdate, error) {
	if !req.Status.IsVerdict() {
		return nil, errutil.BadRequest("Invalid status. Must be one of: met, not_met, waived", nil)
	}

	e, err := s.activeEnrollment(ctx, req.CampaignID, req.EnrollmentID)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{
		"status":            req.Status,
		"admin_verified_by": util.NullableString(req.VerifiedBy),
		"admin_verified_at": s.now(),
		"admin_notes":       util.NullableString(req.AdminNotes),
	}
	if req.Status.IsSatisfied() {
		updates["progress_value"] = 100
	}
	if req.CurrentValue != nil {
		updates["current_value"] = util.NullableString(*req.CurrentValue)
	}

	return s.applyProgress(ctx, e, req.CriterionID, updates)
}

// IngestProgress applies an auto-tracked value reported by n8n. Without an
// explicit status, a criterion with a tracking expression is judged by it:
// true marks the criterion met, false keeps it in progress.
func (s *Service) IngestProgress(ctx context.Context, req IngestProgressRequest) (*ProgressUpdate, error) {
	if req.EnrollmentID == "" || req.CriterionID == "" {
		return nil, errutil.BadRequest("enrollment_id and criterion_id are required", nil)
	}
	if req.Status != nil && !IsValidProgressStatus(string(*req.Status)) {
		return nil, errutil.BadRequest("Invalid status", nil)
	}

	e, err := s.activeEnrollment(ctx, "", req.EnrollmentID)
	if err != nil {
		return nil, err
	}

	criterion, err := s.criterion.FindOne(ctx, &EnrollmentCriterion{ID: req.CriterionID, EnrollmentID: e.ID})
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}
	if criterion == nil {
		return nil, errutil.NotFound("Criterion not found", nil)
	}

	var current *string
	if req.CurrentValue != nil {
		v := formatValue(req.CurrentValue)
		current = &v
	}

	status := ProgressStatusInProgress
	if req.Status != nil {
		status = *req.Status
	} else {
		expr, ok, err := trackingExpression(criterion.TrackingConfig)
		if err != nil {
			return nil, err
		}
		if ok {
			met, err := evaluateCriterion(expr, current, criterion.TargetValue)
			if err != nil {
				return nil, err
			}
			if met {
				status = ProgressStatusMet
			}
		}
	}

	updates := map[string]any{
		"status":       status,
		"auto_tracked": true,
	}
	if current != nil {
		updates["current_value"] = *current
	}
	if req.SourceRef != nil {
		updates["auto_source_ref"] = util.NullableString(*req.SourceRef)
	}
	if pct, ok := progressPercent(status, current, criterion.TargetValue); ok {
		updates["progress_value"] = pct
	}

	logger.FromContext(ctx).Debug("progress ingested",
		zap.String("enrollment_id", e.ID),
		zap.String("criterion_id", criterion.ID),
		zap.String("status", string(status)),
	)

	return s.applyProgress(ctx, e, criterion.ID, updates)
}

func parseNumber(v *string) (float64, bool) {
	if v == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(*v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func evaluateCriterion(expr string, current, target *string) (bool, error) {
	cur, ok := parseNumber(current)
	if !ok {
		return false, errutil.BadRequest("current_value must be numeric for expression tracking", nil)
	}
	tgt, ok := parseNumber(target)
	if !ok {
		return false, errutil.BadRequest("Criterion target value is not numeric", nil)
	}

	met, err := celengine.Evaluate(expr, progressAttrs(cur, tgt))
	if err != nil {
		return false, errutil.BadRequest("Failed to evaluate tracking expression", err)
	}
	return met, nil
}

// progressPercent derives progress_value from the reported and target values.
func progressPercent(status ProgressStatus, current, target *string) (float64, bool) {
	if status.IsSatisfied() {
		return 100, true
	}
	cur, ok := parseNumber(current)
	if !ok {
		return 0, false
	}
	tgt, ok := parseNumber(target)
	if !ok || tgt <= 0 {
		return 0, false
	}
	return math.Min(100, math.Max(0, cur/tgt*100)), true
}

func (s *Service) applyProgress(ctx context.Context, e *Enrollment, criterionID string, updates map[string]any) (*ProgressUpdate, error) {
	res := s.db.WithContext(ctx).
		Model(&Progress{}).
		Where("enrollment_id = ? AND criterion_id = ?", e.ID, criterionID).
		Updates(updates)
	if res.Error != nil {
		return nil, errutil.FromDB(res.Error, "")
	}
	if res.RowsAffected == 0 {
		return nil, errutil.NotFound("Progress not found", nil)
	}

	criteria, err := s.criterion.Find(ctx, &EnrollmentCriterion{EnrollmentID: e.ID})
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}
	progress, err := s.progress.Find(ctx, &Progress{EnrollmentID: e.ID})
	if err != nil {
		return nil, errutil.FromDB(err, "")
	}

	var updated *Progress
	for _, p := range progress {
		if p.CriterionID == criterionID {
			updated = p
			break
		}
	}

	allMet := AreAllCriteriaMet(criteria, progress)
	if allMet {
		advanced, err := s.advance(ctx, s.db, e.ID, EnrollmentStatusActive, EnrollmentStatusCriteriaMet)
		if err != nil {
			return nil, errutil.FromDB(err, "")
		}
		if advanced {
			logger.FromContext(ctx).Info("enrollment criteria met", zap.String("enrollment_id", e.ID))
			s.publisher.Publish(ctx, taskname.CampaignEnrollmentCriteriaMet, CriteriaMetEvent{
				EnrollmentID: e.ID,
				CampaignID:   e.CampaignID,
				ClientEmail:  e.ClientEmail,
				ClientName:   e.ClientName,
			})
		}
	}

	return &ProgressUpdate{Progress: updated, AllCriteriaMet: allMet}, nil
}

// advance moves the enrollment to status only while it is still in from.
func (s *Service) advance(ctx context.Context, db *gorm.DB, id string, from, to EnrollmentStatus) (bool, error) {
	res := db.WithContext(ctx).
		Model(&Enrollment{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
