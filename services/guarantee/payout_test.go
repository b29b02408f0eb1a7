package guarantee

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"guarantee-controlplane/pkg/errutil"
)

func ptr[T any](v T) *T { return &v }

func TestCalculatePayoutAmount(t *testing.T) {
	require.Equal(t, 500.0, CalculatePayoutAmount(500, PayoutTerms{AmountType: PayoutAmountFull}))
	require.Equal(t, 250.0, CalculatePayoutAmount(500, PayoutTerms{AmountType: PayoutAmountPartial, AmountValue: ptr(50.0)}))
	require.Equal(t, 500.0, CalculatePayoutAmount(500, PayoutTerms{AmountType: PayoutAmountPartial}))
	require.Equal(t, 100.0, CalculatePayoutAmount(500, PayoutTerms{AmountType: PayoutAmountFixed, AmountValue: ptr(100.0)}))
	require.Equal(t, 500.0, CalculatePayoutAmount(500, PayoutTerms{AmountType: PayoutAmountFixed, AmountValue: ptr(900.0)}))
	require.Equal(t, 0.0, CalculatePayoutAmount(500, PayoutTerms{AmountType: PayoutAmountFixed}))
	require.Equal(t, 500.0, CalculatePayoutAmount(500, PayoutTerms{}))
}

func TestCalculateRolloverCredit(t *testing.T) {
	require.Equal(t, 750.0, CalculateRolloverCredit(500, PayoutTerms{AmountType: PayoutAmountFull, BonusMultiplier: 1.5}))
	require.Equal(t, 500.0, CalculateRolloverCredit(500, PayoutTerms{AmountType: PayoutAmountFull}))
}

func TestResolvedStatus(t *testing.T) {
	cases := map[PayoutType]InstanceStatus{
		PayoutTypeRefund:             InstanceStatusRefundIssued,
		PayoutTypeCredit:             InstanceStatusCreditIssued,
		PayoutTypeRolloverUpsell:     InstanceStatusRolloverUpsellApplied,
		PayoutTypeRolloverContinuity: InstanceStatusRolloverContinuityApplied,
		PayoutType("bogus"):          InstanceStatusRefundIssued,
	}
	for in, want := range cases {
		require.Equal(t, want, ResolvedStatus(in), string(in))
	}
}

func TestValidateConditions(t *testing.T) {
	out, err := ValidateConditions(nil)
	require.NoError(t, err)
	require.Empty(t, out)

	out, err = ValidateConditions([]ConditionInput{
		{ID: "c1", Label: "Attend kickoff", VerificationMethod: VerificationAdmin, Required: ptr(true)},
		{ID: "c2", Label: "Send report", VerificationMethod: VerificationSelfReport, Required: ptr(false)},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	require.True(t, out[0].Required)
	require.False(t, out[1].Required)

	_, err = ValidateConditions([]ConditionInput{
		{ID: "c1", Label: "", VerificationMethod: "email", Required: ptr(true)},
		{ID: "c1", Label: "dup", VerificationMethod: VerificationAdmin},
	})
	require.True(t, errutil.IsStatus(err, errutil.StatusBadRequest))
	require.Len(t, err.(errutil.BaseError).Details, 4)
}

func TestAllConditionsMet(t *testing.T) {
	require.True(t, AllConditionsMet([]*Milestone{{Status: MilestoneStatusMet}, {Status: MilestoneStatusWaived}}))
	require.False(t, AllConditionsMet([]*Milestone{{Status: MilestoneStatusMet}, {Status: MilestoneStatusNotMet}}))
	require.False(t, AllConditionsMet([]*Milestone{{Status: MilestoneStatusPending}}))
}

func TestMilestoneStatusVerdict(t *testing.T) {
	require.True(t, MilestoneStatusNotMet.IsVerdict())
	require.False(t, MilestoneStatusPending.IsVerdict())
	require.False(t, MilestoneStatus("done").IsVerdict())
}

func TestExpiryHelpers(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	require.True(t, IsExpired(now.Add(-time.Minute), now))
	require.False(t, IsExpired(now.Add(time.Minute), now))

	require.Equal(t, 0, DaysRemaining(now.Add(-48*time.Hour), now))
	require.Equal(t, 1, DaysRemaining(now.Add(time.Hour), now))
	require.Equal(t, 3, DaysRemaining(now.Add(72*time.Hour), now))
}
