package guarantee

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"guarantee-controlplane/pkg/db/option"
	"guarantee-controlplane/pkg/errutil"
	"guarantee-controlplane/pkg/repository"
	"guarantee-controlplane/pkg/taskname"
	"guarantee-controlplane/services/notification"
	"guarantee-controlplane/services/notification/mocks"
	"guarantee-controlplane/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var fixedNow = time.Date(2026, 1, 19, 12, 0, 0, 0, time.UTC)

type fakeSequence struct {
	n int
}

func (f *fakeSequence) NextDiscountCode(_ context.Context, prefix string) (string, error) {
	f.n++
	return fmt.Sprintf("%s-260119-%03dAB", prefix, f.n), nil
}

type refundCall struct {
	paymentIntentID string
	amount          float64
}

type fakeRefunder struct {
	calls []refundCall
	err   error
}

func (f *fakeRefunder) Refund(_ context.Context, paymentIntentID string, amount float64) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.calls = append(f.calls, refundCall{paymentIntentID, amount})
	return fmt.Sprintf("re_%d", len(f.calls)), nil
}

type fixture struct {
	svc      *Service
	db       *gorm.DB
	refunder *fakeRefunder
}

func newFixture(t *testing.T, pub notification.Publisher) *fixture {
	t.Helper()

	db := testutil.NewTestDB(t, Models()...)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	if pub == nil {
		pub = notification.Nop()
	}

	refunder := &fakeRefunder{}
	svc := NewService(ServiceParams{
		DB:        db,
		Node:      node,
		Seq:       &fakeSequence{},
		Refunder:  refunder,
		Publisher: pub,
	})
	svc.now = func() time.Time { return fixedNow }

	return &fixture{svc: svc, db: db, refunder: refunder}
}

func twoConditions() *[]ConditionInput {
	return &[]ConditionInput{
		{ID: "attend", Label: "Attend onboarding", VerificationMethod: VerificationAdmin, Required: ptr(true)},
		{ID: "ship", Label: "Ship first workflow", VerificationMethod: VerificationSelfReport, Required: ptr(true)},
	}
}

func (f *fixture) template(t *testing.T, mutate func(*TemplateInput)) *Template {
	t.Helper()
	in := TemplateInput{
		Name:              ptr("90 day results"),
		DurationDays:      ptr(90),
		DefaultPayoutType: ptr(string(PayoutTypeRefund)),
		Conditions:        twoConditions(),
	}
	if mutate != nil {
		mutate(&in)
	}
	tpl, err := f.svc.CreateTemplate(context.Background(), "admin-1", in)
	require.NoError(t, err)
	return tpl
}

func (f *fixture) issue(t *testing.T, tpl *Template, mutate func(*IssueInstanceRequest)) *Instance {
	t.Helper()
	req := IssueInstanceRequest{
		TemplateID:     tpl.ID,
		ClientEmail:    "Client@Example.com",
		PurchaseAmount: 1000,
	}
	if mutate != nil {
		mutate(&req)
	}
	inst, err := f.svc.IssueInstance(context.Background(), req)
	require.NoError(t, err)
	return inst
}

func (f *fixture) reload(t *testing.T, id string) *Instance {
	t.Helper()
	var inst Instance
	require.NoError(t, f.db.First(&inst, "id = ?", id).Error)
	return &inst
}

func (f *fixture) setStatus(t *testing.T, id string, status InstanceStatus) {
	t.Helper()
	require.NoError(t, f.db.Model(&Instance{}).Where("id = ?", id).Update("status", status).Error)
}

type mockTemplateRepository struct {
	findOneFn func(ctx context.Context, query *Template, opts ...option.QueryOption) (*Template, error)
}

func (m *mockTemplateRepository) WithTrx(*gorm.DB) repository.Repository[Template] { return m }
func (m *mockTemplateRepository) Find(context.Context, *Template, ...option.QueryOption) ([]*Template, error) {
	return nil, nil
}
func (m *mockTemplateRepository) FindOne(ctx context.Context, query *Template, opts ...option.QueryOption) (*Template, error) {
	if m.findOneFn != nil {
		return m.findOneFn(ctx, query, opts...)
	}
	return nil, nil
}
func (m *mockTemplateRepository) Create(context.Context, *Template) error        { return nil }
func (m *mockTemplateRepository) Update(context.Context, string, any) error      { return nil }
func (m *mockTemplateRepository) Delete(context.Context, string) error           { return nil }
func (m *mockTemplateRepository) BatchCreate(context.Context, []*Template) error { return nil }
func (m *mockTemplateRepository) BatchUpdate(context.Context, []*Template) error { return nil }
func (m *mockTemplateRepository) Count(context.Context, *Template, ...option.QueryOption) (int64, error) {
	return 0, nil
}

func TestGetTemplateRepositoryError(t *testing.T) {
	svc := &Service{template: &mockTemplateRepository{
		findOneFn: func(context.Context, *Template, ...option.QueryOption) (*Template, error) {
			return nil, errors.New("connection reset")
		},
	}}

	_, err := svc.GetTemplate(context.Background(), "tpl-1")
	require.True(t, errutil.IsStatus(err, errutil.StatusInternal))

	svc.template = &mockTemplateRepository{}
	_, err = svc.GetTemplate(context.Background(), "tpl-1")
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestCreateTemplateValidation(t *testing.T) {
	f := newFixture(t, nil)

	cases := []struct {
		name    string
		mutate  func(*TemplateInput)
		message string
	}{
		{"blank name", func(in *TemplateInput) { in.Name = ptr("   ") }, "Name is required"},
		{"zero duration", func(in *TemplateInput) { in.DurationDays = ptr(0) }, "Duration must be at least 1 day"},
		{"missing duration", func(in *TemplateInput) { in.DurationDays = nil }, "Duration must be at least 1 day"},
		{"bad guarantee type", func(in *TemplateInput) { in.GuaranteeType = ptr("maybe") }, "Invalid guarantee_type. Must be one of: conditional, unconditional"},
		{"missing payout type", func(in *TemplateInput) { in.DefaultPayoutType = nil }, "Invalid default_payout_type. Must be one of: refund, credit, rollover_upsell, rollover_continuity"},
		{"bad amount type", func(in *TemplateInput) { in.PayoutAmountType = ptr("most") }, "Invalid payout_amount_type. Must be one of: full, partial, fixed"},
		{"condition without required", func(in *TemplateInput) {
			in.Conditions = &[]ConditionInput{{ID: "a", Label: "A", VerificationMethod: VerificationAdmin}}
		}, "Invalid conditions structure. Each condition must have id, label, verification_method, and required."},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := TemplateInput{
				Name:              ptr("Template"),
				DurationDays:      ptr(30),
				DefaultPayoutType: ptr("refund"),
			}
			tc.mutate(&in)

			_, err := f.svc.CreateTemplate(context.Background(), "admin-1", in)
			require.Error(t, err)

			var be errutil.BaseError
			require.ErrorAs(t, err, &be)
			require.Equal(t, errutil.StatusBadRequest, be.Code)
			require.Equal(t, tc.message, be.Message)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&Template{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreateTemplateDefaults(t *testing.T) {
	f := newFixture(t, nil)

	tpl := f.template(t, func(in *TemplateInput) {
		in.Description = ptr("  ")
		in.Conditions = nil
	})

	got, err := f.svc.GetTemplate(context.Background(), tpl.ID)
	require.NoError(t, err)
	require.Equal(t, "90 day results", got.Name)
	require.Nil(t, got.Description)
	require.Equal(t, GuaranteeTypeConditional, got.GuaranteeType)
	require.Equal(t, PayoutAmountFull, got.PayoutAmountType)
	require.Nil(t, got.PayoutAmountValue)
	require.Equal(t, 1.0, got.RolloverBonusMultiplier)
	require.True(t, got.IsActive)
	require.Empty(t, got.Conditions)
	require.Equal(t, "admin-1", *got.CreatedBy)
}

func TestUpdateAndDeactivateTemplate(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tpl := f.template(t, nil)

	_, err := f.svc.UpdateTemplate(ctx, tpl.ID, TemplateInput{})
	require.True(t, errutil.IsStatus(err, errutil.StatusBadRequest))

	_, err = f.svc.UpdateTemplate(ctx, "missing", TemplateInput{Name: ptr("x")})
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))

	_, err = f.svc.UpdateTemplate(ctx, tpl.ID, TemplateInput{DefaultPayoutType: ptr("cash")})
	require.True(t, errutil.IsStatus(err, errutil.StatusBadRequest))

	updated, err := f.svc.UpdateTemplate(ctx, tpl.ID, TemplateInput{
		Name:              ptr(" Renamed "),
		PayoutAmountType:  ptr("partial"),
		PayoutAmountValue: ptr(50.0),
	})
	require.NoError(t, err)
	require.Equal(t, "Renamed", updated.Name)
	require.Equal(t, PayoutAmountPartial, updated.PayoutAmountType)
	require.Equal(t, 50.0, *updated.PayoutAmountValue)
	require.Len(t, updated.Conditions, 2)

	deactivated, err := f.svc.DeactivateTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	require.False(t, deactivated.IsActive)

	active, err := f.svc.ListTemplates(ctx, false)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := f.svc.ListTemplates(ctx, true)
	require.NoError(t, err)
	require.Len(t, all, 1)

	_, err = f.svc.DeactivateTemplate(ctx, "missing")
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestIssueInstance(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tpl := f.template(t, nil)

	inst := f.issue(t, tpl, func(req *IssueInstanceRequest) {
		req.OrderID = ptr(int64(42))
		req.PayoutType = string(PayoutTypeCredit)
	})

	require.Equal(t, "client@example.com", inst.ClientEmail)
	require.Equal(t, InstanceStatusActive, inst.Status)
	require.Equal(t, PayoutTypeCredit, inst.PayoutType)
	require.Equal(t, fixedNow.AddDate(0, 0, 90), inst.ExpiresAt)
	require.Len(t, inst.ConditionsSnapshot, 2)

	got, err := f.svc.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Template)
	require.Len(t, got.Milestones, 2)
	for _, m := range got.Milestones {
		require.Equal(t, MilestoneStatusPending, m.Status)
	}

	list, total, err := f.svc.ListInstances(ctx, ListInstancesRequest{Status: string(InstanceStatusActive)})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Len(t, list, 1)

	_, total, err = f.svc.ListInstances(ctx, ListInstancesRequest{Status: string(InstanceStatusExpired)})
	require.NoError(t, err)
	require.Zero(t, total)
}

func TestIssueInstanceRejects(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	tpl := f.template(t, nil)

	_, err := f.svc.IssueInstance(ctx, IssueInstanceRequest{TemplateID: tpl.ID})
	require.True(t, errutil.IsStatus(err, errutil.StatusBadRequest))

	_, err = f.svc.IssueInstance(ctx, IssueInstanceRequest{TemplateID: "missing", ClientEmail: "a@b.co"})
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))

	_, err = f.svc.IssueInstance(ctx, IssueInstanceRequest{TemplateID: tpl.ID, ClientEmail: "a@b.co", PayoutType: "cash"})
	require.True(t, errutil.IsStatus(err, errutil.StatusBadRequest))

	_, err = f.svc.DeactivateTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	_, err = f.svc.IssueInstance(ctx, IssueInstanceRequest{TemplateID: tpl.ID, ClientEmail: "a@b.co"})
	require.True(t, errutil.IsStatus(err, errutil.StatusBadRequest))

	var count int64
	require.NoError(t, f.db.Model(&Instance{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestVerifyMilestoneInvalidStatus(t *testing.T) {
	f := newFixture(t, nil)
	inst := f.issue(t, f.template(t, nil), nil)

	_, err := f.svc.VerifyMilestone(context.Background(), VerifyMilestoneRequest{
		InstanceID:  inst.ID,
		ConditionID: "attend",
		Status:      MilestoneStatusPending,
	})

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusBadRequest, be.Code)
	require.Equal(t, "Invalid status. Must be one of: met, not_met, waived", be.Message)
}

func TestVerifyMilestoneRequiresActiveInstance(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	inst := f.issue(t, f.template(t, nil), nil)

	for _, instStatus := range []InstanceStatus{
		InstanceStatusConditionsMet,
		InstanceStatusRefundIssued,
		InstanceStatusCreditIssued,
		InstanceStatusExpired,
		InstanceStatusVoided,
	} {
		f.setStatus(t, inst.ID, instStatus)

		for _, verdict := range []MilestoneStatus{MilestoneStatusMet, MilestoneStatusNotMet, MilestoneStatusWaived} {
			_, err := f.svc.VerifyMilestone(ctx, VerifyMilestoneRequest{
				InstanceID:  inst.ID,
				ConditionID: "attend",
				Status:      verdict,
			})

			var be errutil.BaseError
			require.ErrorAs(t, err, &be)
			require.Equal(t, errutil.StatusBadRequest, be.Code)
			require.Equal(t, fmt.Sprintf("Cannot update milestones on a guarantee with status: %s", instStatus), be.Message)
		}
	}

	var pending int64
	require.NoError(t, f.db.Model(&Milestone{}).Where("status = ?", MilestoneStatusPending).Count(&pending).Error)
	require.EqualValues(t, 2, pending)
}

func TestVerifyMilestoneNotFound(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	inst := f.issue(t, f.template(t, nil), nil)

	_, err := f.svc.VerifyMilestone(ctx, VerifyMilestoneRequest{InstanceID: "missing", ConditionID: "attend", Status: MilestoneStatusMet})
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))

	_, err = f.svc.VerifyMilestone(ctx, VerifyMilestoneRequest{InstanceID: inst.ID, ConditionID: "unknown", Status: MilestoneStatusMet})

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusNotFound, be.Code)
	require.Equal(t, "Milestone not found", be.Message)
}

func TestVerifyMilestoneAdvancesInstance(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	f := newFixture(t, pub)
	ctx := context.Background()
	inst := f.issue(t, f.template(t, nil), nil)

	res, err := f.svc.VerifyMilestone(ctx, VerifyMilestoneRequest{
		InstanceID:  inst.ID,
		ConditionID: "attend",
		VerifiedBy:  "admin-1",
		Status:      MilestoneStatusMet,
		AdminNotes:  "  ",
	})
	require.NoError(t, err)
	require.False(t, res.AllConditionsMet)
	require.Equal(t, MilestoneStatusMet, res.Milestone.Status)
	require.Equal(t, "admin-1", *res.Milestone.VerifiedBy)
	require.Nil(t, res.Milestone.AdminNotes)
	require.Equal(t, InstanceStatusActive, f.reload(t, inst.ID).Status)

	pub.EXPECT().
		Publish(gomock.Any(), taskname.GuaranteeConditionsMet, gomock.Any()).
		Do(func(_ context.Context, _ string, payload any) {
			ev, ok := payload.(ConditionsMetEvent)
			require.True(t, ok)
			require.Equal(t, inst.ID, ev.InstanceID)
		}).
		Times(1)

	res, err = f.svc.VerifyMilestone(ctx, VerifyMilestoneRequest{
		InstanceID:  inst.ID,
		ConditionID: "ship",
		VerifiedBy:  "admin-1",
		Status:      MilestoneStatusWaived,
		AdminNotes:  "client churned budget, waived",
	})
	require.NoError(t, err)
	require.True(t, res.AllConditionsMet)
	require.Equal(t, InstanceStatusConditionsMet, f.reload(t, inst.ID).Status)
}

func TestVerifyMilestoneNotMetKeepsInstanceActive(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	inst := f.issue(t, f.template(t, nil), nil)

	for _, cond := range []string{"attend", "ship"} {
		_, err := f.svc.VerifyMilestone(ctx, VerifyMilestoneRequest{InstanceID: inst.ID, ConditionID: cond, Status: MilestoneStatusNotMet})
		require.NoError(t, err)
	}

	require.Equal(t, InstanceStatusActive, f.reload(t, inst.ID).Status)
}

func meetAll(t *testing.T, f *fixture, inst *Instance) {
	t.Helper()
	require.NoError(t, f.db.Model(&Milestone{}).
		Where("guarantee_instance_id = ?", inst.ID).
		Update("status", MilestoneStatusMet).Error)
}

func TestEvaluateRejectsResolvedInstance(t *testing.T) {
	f := newFixture(t, nil)
	inst := f.issue(t, f.template(t, nil), nil)
	f.setStatus(t, inst.ID, InstanceStatusRefundIssued)

	_, err := f.svc.Evaluate(context.Background(), inst.ID, "admin-1")

	var be errutil.BaseError
	require.ErrorAs(t, err, &be)
	require.Equal(t, errutil.StatusBadRequest, be.Code)
	require.Equal(t, "Cannot evaluate guarantee with status: refund_issued", be.Message)

	_, err = f.svc.Evaluate(context.Background(), "missing", "admin-1")
	require.True(t, errutil.IsStatus(err, errutil.StatusNotFound))
}

func TestEvaluateExpired(t *testing.T) {
	f := newFixture(t, nil)
	inst := f.issue(t, f.template(t, nil), nil)
	f.svc.now = func() time.Time { return fixedNow.AddDate(0, 0, 91) }

	res, err := f.svc.Evaluate(context.Background(), inst.ID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, "expired", res.Result)

	got := f.reload(t, inst.ID)
	require.Equal(t, InstanceStatusExpired, got.Status)
	require.NotNil(t, got.ResolvedAt)
	require.Equal(t, "Guarantee window expired with unmet conditions.", *got.ResolutionNotes)
}

func TestEvaluateConditionsNotMet(t *testing.T) {
	f := newFixture(t, nil)
	inst := f.issue(t, f.template(t, nil), nil)

	_, err := f.svc.VerifyMilestone(context.Background(), VerifyMilestoneRequest{InstanceID: inst.ID, ConditionID: "attend", Status: MilestoneStatusMet})
	require.NoError(t, err)

	res, err := f.svc.Evaluate(context.Background(), inst.ID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, "conditions_not_met", res.Result)
	require.Equal(t, "1 condition(s) still outstanding.", res.Message)
	require.Equal(t, []PendingCondition{{ConditionID: "ship", Label: "Ship first workflow", Status: MilestoneStatusPending}}, res.PendingConditions)
	require.Empty(t, f.refunder.calls)
}

func TestEvaluateRefund(t *testing.T) {
	ctrl := gomock.NewController(t)
	pub := mocks.NewMockPublisher(ctrl)
	f := newFixture(t, pub)
	ctx := context.Background()

	tpl := f.template(t, func(in *TemplateInput) {
		in.PayoutAmountType = ptr("partial")
		in.PayoutAmountValue = ptr(50.0)
	})

	t.Run("no order", func(t *testing.T) {
		inst := f.issue(t, tpl, nil)
		meetAll(t, f, inst)

		_, err := f.svc.Evaluate(ctx, inst.ID, "admin-1")
		var be errutil.BaseError
		require.ErrorAs(t, err, &be)
		require.Equal(t, errutil.StatusBadRequest, be.Code)
		require.Equal(t, "No payment intent found for this order. Cannot process refund.", be.Message)
	})

	t.Run("refunds through stripe", func(t *testing.T) {
		require.NoError(t, f.db.Create(&Order{ID: 7, StripePaymentIntentID: ptr("pi_123"), Status: "paid"}).Error)
		inst := f.issue(t, tpl, func(req *IssueInstanceRequest) { req.OrderID = ptr(int64(7)) })
		meetAll(t, f, inst)

		pub.EXPECT().Publish(gomock.Any(), taskname.GuaranteePayoutIssued, gomock.Any()).Times(1)

		res, err := f.svc.Evaluate(ctx, inst.ID, "admin-1")
		require.NoError(t, err)
		require.Equal(t, "refund_issued", res.Result)
		require.Equal(t, "re_1", res.RefundID)
		require.Equal(t, 500.0, *res.Amount)
		require.Equal(t, []refundCall{{"pi_123", 500}}, f.refunder.calls)

		got := f.reload(t, inst.ID)
		require.Equal(t, InstanceStatusRefundIssued, got.Status)
		require.Equal(t, "re_1", *got.StripeRefundID)
		require.Equal(t, "Refund of $500.00 issued via Stripe.", *got.ResolutionNotes)

		var order Order
		require.NoError(t, f.db.First(&order, 7).Error)
		require.Equal(t, "refunded", order.Status)
	})

	t.Run("stripe failure leaves instance untouched", func(t *testing.T) {
		require.NoError(t, f.db.Create(&Order{ID: 8, StripePaymentIntentID: ptr("pi_456"), Status: "paid"}).Error)
		inst := f.issue(t, tpl, func(req *IssueInstanceRequest) { req.OrderID = ptr(int64(8)) })
		meetAll(t, f, inst)

		f.refunder.err = errutil.BadGateway("Failed to create Stripe refund", errors.New("card_declined"))
		defer func() { f.refunder.err = nil }()

		_, err := f.svc.Evaluate(ctx, inst.ID, "admin-1")
		require.True(t, errutil.IsStatus(err, errutil.StatusBadGateway))
		require.Equal(t, InstanceStatusActive, f.reload(t, inst.ID).Status)
	})
}

func TestEvaluateCredit(t *testing.T) {
	f := newFixture(t, nil)
	tpl := f.template(t, func(in *TemplateInput) {
		in.DefaultPayoutType = ptr(string(PayoutTypeCredit))
		in.PayoutAmountType = ptr("fixed")
		in.PayoutAmountValue = ptr(250.0)
	})
	inst := f.issue(t, tpl, nil)
	meetAll(t, f, inst)

	res, err := f.svc.Evaluate(context.Background(), inst.ID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, "credit_issued", res.Result)
	require.Equal(t, "GUAR-260119-001AB", res.DiscountCode)
	require.Equal(t, 250.0, *res.Amount)

	got := f.reload(t, inst.ID)
	require.Equal(t, InstanceStatusCreditIssued, got.Status)
	require.NotNil(t, got.DiscountCodeID)

	var dc DiscountCode
	require.NoError(t, f.db.First(&dc, "id = ?", *got.DiscountCodeID).Error)
	require.Equal(t, "GUAR-260119-001AB", dc.Code)
	require.Equal(t, "fixed", dc.DiscountType)
	require.Equal(t, 1, dc.MaxUses)
	require.Equal(t, "Credit of $250.00 issued as discount code GUAR-260119-001AB.", *got.ResolutionNotes)
}

func TestEvaluateRollover(t *testing.T) {
	f := newFixture(t, nil)
	tpl := f.template(t, func(in *TemplateInput) {
		in.DefaultPayoutType = ptr(string(PayoutTypeRolloverUpsell))
		in.RolloverBonusMultiplier = ptr(1.5)
	})
	inst := f.issue(t, tpl, nil)
	meetAll(t, f, inst)

	res, err := f.svc.Evaluate(context.Background(), inst.ID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, "conditions_met", res.Result)
	require.Equal(t, PayoutTypeRolloverUpsell, res.PayoutType)
	require.Equal(t, 1000.0, *res.RefundAmount)
	require.Equal(t, 1500.0, *res.RolloverCreditAmount)
	require.Equal(t, 1.5, *res.BonusMultiplier)

	got := f.reload(t, inst.ID)
	require.Equal(t, InstanceStatusConditionsMet, got.Status)
	require.Equal(t, 1500.0, *got.RolloverCreditAmount)
}

func TestEvaluateUnconditionalIgnoresPendingMilestones(t *testing.T) {
	f := newFixture(t, nil)
	tpl := f.template(t, func(in *TemplateInput) {
		in.GuaranteeType = ptr(string(GuaranteeTypeUnconditional))
		in.DefaultPayoutType = ptr(string(PayoutTypeRolloverContinuity))
	})
	inst := f.issue(t, tpl, nil)

	res, err := f.svc.Evaluate(context.Background(), inst.ID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, "conditions_met", res.Result)
}

func TestEvaluateWithoutTemplateUsesFullPayout(t *testing.T) {
	f := newFixture(t, nil)

	inst := &Instance{
		ID:             "campaign-payout-1",
		ClientEmail:    "client@example.com",
		PurchaseAmount: 400,
		PayoutType:     PayoutTypeRolloverUpsell,
		Status:         InstanceStatusActive,
		StartsAt:       fixedNow,
		ExpiresAt:      fixedNow.AddDate(0, 0, 30),
	}
	require.NoError(t, f.db.Create(inst).Error)

	res, err := f.svc.Evaluate(context.Background(), inst.ID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, 400.0, *res.RefundAmount)
	require.Equal(t, 400.0, *res.RolloverCreditAmount)
	require.Equal(t, 1.0, *res.BonusMultiplier)
}
