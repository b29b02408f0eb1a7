package campaign

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"guarantee-controlplane/pkg/errutil"
	"guarantee-controlplane/pkg/taskname"
	"guarantee-controlplane/services/notification"
	"guarantee-controlplane/services/notification/mocks"
)

// tracked enrolls the client in a campaign with the standard criteria and
// returns the enrollment with its criteria in display order.
func (f *fixture) tracked(t *testing.T) (*Campaign, *EnrollmentDetail) {
	t.Helper()
	c := f.campaign(t, nil)
	f.standardCriteria(t, c.ID)
	f.audit(t, clientEmail, map[string]any{"desired_monthly_revenue": 12000})
	e := f.enroll(t, c.ID)

	detail, err := f.svc.GetEnrollment(context.Background(), c.ID, e.ID)
	require.NoError(t, err)
	require.Len(t, detail.Criteria, 3)
	return c, detail
}

func (f *fixture) progressOf(t *testing.T, enrollmentID, criterionID string) *Progress {
	t.Helper()
	var p Progress
	require.NoError(t, f.db.First(&p, "enrollment_id = ? AND criterion_id = ?", enrollmentID, criterionID).Error)
	return &p
}

func expectCriteriaMet(t *testing.T, pub *mocks.MockPublisher, enrollmentID string) {
	pub.EXPECT().
		Publish(gomock.Any(), taskname.CampaignEnrollmentCriteriaMet, gomock.Any()).
		Do(func(_ context.Context, _ string, payload any) {
			ev, ok := payload.(CriteriaMetEvent)
			require.True(t, ok)
			require.Equal(t, enrollmentID, ev.EnrollmentID)
			require.Equal(t, clientEmail, ev.ClientEmail)
		}).
		Times(1)
}

func TestVerifyProgressValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c, e := f.tracked(t)
	revenue := e.Criteria[0].ID

	for _, status := range []ProgressStatus{"done", ProgressStatusPending, ProgressStatusInProgress} {
		_, err := f.svc.VerifyProgress(ctx, VerifyProgressRequest{
			CampaignID: c.ID, EnrollmentID: e.ID, CriterionID: revenue, Status: status,
		})
		requireError(t, err, errutil.StatusBadRequest, "Invalid status. Must be one of: met, not_met, waived")
	}

	_, err := f.svc.VerifyProgress(ctx, VerifyProgressRequest{
		CampaignID: c.ID, EnrollmentID: "missing", CriterionID: revenue, Status: ProgressStatusMet,
	})
	requireError(t, err, errutil.StatusNotFound, "Enrollment not found")

	_, err = f.svc.VerifyProgress(ctx, VerifyProgressRequest{
		CampaignID: c.ID, EnrollmentID: e.ID, CriterionID: "missing", Status: ProgressStatusMet,
	})
	requireError(t, err, errutil.StatusNotFound, "Progress not found")

	f.setStatus(t, e.ID, EnrollmentStatusPayoutPending)
	_, err = f.svc.VerifyProgress(ctx, VerifyProgressRequest{
		CampaignID: c.ID, EnrollmentID: e.ID, CriterionID: revenue, Status: ProgressStatusMet,
	})
	requireError(t, err, errutil.StatusBadRequest, "Cannot update progress on an enrollment with status: payout_pending")

	require.Equal(t, ProgressStatusPending, f.progressOf(t, e.ID, revenue).Status)
}

func TestVerifyProgressAdvancesEnrollment(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	f := newFixture(t, pub)
	ctx := context.Background()
	c, e := f.tracked(t)
	revenue, kickoff, video := e.Criteria[0].ID, e.Criteria[1].ID, e.Criteria[2].ID

	res, err := f.svc.VerifyProgress(ctx, VerifyProgressRequest{
		CampaignID:   c.ID,
		EnrollmentID: e.ID,
		CriterionID:  revenue,
		VerifiedBy:   "admin-1",
		Status:       ProgressStatusMet,
		AdminNotes:   "Stripe dashboard shows $13k",
		CurrentValue: ptr("13000"),
	})
	require.NoError(t, err)
	require.False(t, res.AllCriteriaMet)
	require.Equal(t, ProgressStatusMet, res.Progress.Status)
	require.Equal(t, 100.0, res.Progress.ProgressValue)
	require.Equal(t, "13000", *res.Progress.CurrentValue)
	require.Equal(t, "admin-1", *res.Progress.AdminVerifiedBy)
	require.Equal(t, "Stripe dashboard shows $13k", *res.Progress.AdminNotes)
	require.True(t, res.Progress.AdminVerifiedAt.Equal(fixedNow))

	res, err = f.svc.VerifyProgress(ctx, VerifyProgressRequest{
		CampaignID: c.ID, EnrollmentID: e.ID, CriterionID: kickoff, VerifiedBy: "admin-1", Status: ProgressStatusNotMet,
	})
	require.NoError(t, err)
	require.False(t, res.AllCriteriaMet)
	require.Zero(t, res.Progress.ProgressValue)
	require.Equal(t, EnrollmentStatusActive, f.reload(t, e.ID).Status)

	expectCriteriaMet(t, pub, e.ID)

	res, err = f.svc.VerifyProgress(ctx, VerifyProgressRequest{
		CampaignID: c.ID, EnrollmentID: e.ID, CriterionID: kickoff, VerifiedBy: "admin-1", Status: ProgressStatusWaived,
	})
	require.NoError(t, err)
	require.True(t, res.AllCriteriaMet)
	require.Equal(t, ProgressStatusWaived, res.Progress.Status)

	require.Equal(t, EnrollmentStatusCriteriaMet, f.reload(t, e.ID).Status)
	require.Equal(t, ProgressStatusPending, f.progressOf(t, e.ID, video).Status)

	detail, err := f.svc.GetEnrollment(ctx, c.ID, e.ID)
	require.NoError(t, err)
	require.Equal(t, 67, detail.OverallProgress)
}

func TestIngestProgressValidation(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, e := f.tracked(t)
	revenue := e.Criteria[0].ID

	_, err := f.svc.IngestProgress(ctx, IngestProgressRequest{CriterionID: revenue})
	requireError(t, err, errutil.StatusBadRequest, "enrollment_id and criterion_id are required")

	bogus := ProgressStatus("done")
	_, err = f.svc.IngestProgress(ctx, IngestProgressRequest{EnrollmentID: e.ID, CriterionID: revenue, Status: &bogus})
	requireError(t, err, errutil.StatusBadRequest, "Invalid status")

	_, err = f.svc.IngestProgress(ctx, IngestProgressRequest{EnrollmentID: "missing", CriterionID: revenue})
	requireError(t, err, errutil.StatusNotFound, "Enrollment not found")

	_, err = f.svc.IngestProgress(ctx, IngestProgressRequest{EnrollmentID: e.ID, CriterionID: "missing"})
	requireError(t, err, errutil.StatusNotFound, "Criterion not found")

	_, err = f.svc.IngestProgress(ctx, IngestProgressRequest{EnrollmentID: e.ID, CriterionID: revenue, CurrentValue: "lots"})
	requireError(t, err, errutil.StatusBadRequest, "current_value must be numeric for expression tracking")

	_, err = f.svc.IngestProgress(ctx, IngestProgressRequest{EnrollmentID: e.ID, CriterionID: revenue})
	requireError(t, err, errutil.StatusBadRequest, "current_value must be numeric for expression tracking")

	f.setStatus(t, e.ID, EnrollmentStatusWithdrawn)
	_, err = f.svc.IngestProgress(ctx, IngestProgressRequest{EnrollmentID: e.ID, CriterionID: revenue, CurrentValue: 100.0})
	requireError(t, err, errutil.StatusBadRequest, "Cannot update progress on an enrollment with status: withdrawn")
}

func TestIngestProgressEvaluatesExpression(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	f := newFixture(t, pub)
	ctx := context.Background()
	_, e := f.tracked(t)
	revenue, kickoff, video := e.Criteria[0].ID, e.Criteria[1].ID, e.Criteria[2].ID

	res, err := f.svc.IngestProgress(ctx, IngestProgressRequest{
		EnrollmentID: e.ID,
		CriterionID:  revenue,
		CurrentValue: 3000.0,
		SourceRef:    ptr("stripe-run-1"),
	})
	require.NoError(t, err)
	require.False(t, res.AllCriteriaMet)
	require.Equal(t, ProgressStatusInProgress, res.Progress.Status)
	require.Equal(t, 25.0, res.Progress.ProgressValue)
	require.Equal(t, "3000", *res.Progress.CurrentValue)
	require.True(t, res.Progress.AutoTracked)

	res, err = f.svc.IngestProgress(ctx, IngestProgressRequest{
		EnrollmentID: e.ID,
		CriterionID:  revenue,
		CurrentValue: "12500",
	})
	require.NoError(t, err)
	require.Equal(t, ProgressStatusMet, res.Progress.Status)
	require.Equal(t, 100.0, res.Progress.ProgressValue)
	require.Equal(t, "stripe-run-1", *res.Progress.AutoSourceRef)

	res, err = f.svc.IngestProgress(ctx, IngestProgressRequest{
		EnrollmentID: e.ID,
		CriterionID:  video,
		CurrentValue: 1.0,
	})
	require.NoError(t, err)
	require.Equal(t, ProgressStatusInProgress, res.Progress.Status)
	require.InDelta(t, 33.33, res.Progress.ProgressValue, 0.01)
	require.False(t, res.AllCriteriaMet)

	expectCriteriaMet(t, pub, e.ID)

	met := ProgressStatusMet
	res, err = f.svc.IngestProgress(ctx, IngestProgressRequest{
		EnrollmentID: e.ID,
		CriterionID:  kickoff,
		Status:       &met,
	})
	require.NoError(t, err)
	require.True(t, res.AllCriteriaMet)
	require.Nil(t, res.Progress.CurrentValue)
	require.Equal(t, 100.0, res.Progress.ProgressValue)
	require.Equal(t, EnrollmentStatusCriteriaMet, f.reload(t, e.ID).Status)
}

func TestAdvanceOnlyFromExpectedStatus(t *testing.T) {
	f := newFixture(t, notification.Nop())
	ctx := context.Background()
	_, e := f.tracked(t)

	ok, err := f.svc.advance(ctx, f.db, e.ID, EnrollmentStatusActive, EnrollmentStatusCriteriaMet)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = f.svc.advance(ctx, f.db, e.ID, EnrollmentStatusActive, EnrollmentStatusCriteriaMet)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, EnrollmentStatusCriteriaMet, f.reload(t, e.ID).Status)
}
