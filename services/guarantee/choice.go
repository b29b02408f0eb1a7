package guarantee

import (
	"context"
	"fmt"

	"guarantee-controlplane/pkg/errutil"
	"guarantee-controlplane/pkg/logger"
	"guarantee-controlplane/pkg/util"

	"go.uber.org/zap"
)

const upsellCodePrefix = "UPSELL"

// ChoosePayout settles a conditions_met instance with the payout the client
// picked. Only the client the guarantee was issued to may choose.
func (s *Service) ChoosePayout(ctx context.Context, req ChoosePayoutRequest) (*PayoutChoice, error) {
	if !IsValidPayoutType(req.PayoutType) {
		return nil, invalidEnum("payout_type", payoutTypes)
	}
	email := util.NormalizeEmail(req.ClientEmail)
	if email == "" {
		return nil, errutil.BadRequest("Client email is required", nil)
	}

	inst, err := s.GetInstance(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}
	if util.NormalizeEmail(inst.ClientEmail) != email {
		return nil, errutil.Forbidden("Unauthorized", nil)
	}
	if inst.Status != InstanceStatusConditionsMet {
		return nil, errutil.BadRequest(fmt.Sprintf("Payout can only be chosen when status is conditions_met. Current: %s", inst.Status), nil)
	}

	terms := inst.Terms()
	amount := CalculatePayoutAmount(inst.PurchaseAmount, terms)
	rollover := CalculateRolloverCredit(inst.PurchaseAmount, terms)
	from := []InstanceStatus{InstanceStatusConditionsMet}

	log := logger.FromContext(ctx).With(
		zap.String("instance_id", inst.ID),
		zap.String("payout_type", req.PayoutType),
	)

	switch PayoutType(req.PayoutType) {
	case PayoutTypeRefund:
		if _, err := s.issueRefund(ctx, inst, amount, from, fmt.Sprintf("Client chose refund. $%.2f refunded.", amount)); err != nil {
			return nil, err
		}
		log.Info("client chose payout", zap.Float64("amount", amount))
		return &PayoutChoice{
			Result:  string(InstanceStatusRefundIssued),
			Amount:  &amount,
			Message: fmt.Sprintf("Your refund of $%.2f has been processed.", amount),
		}, nil

	case PayoutTypeCredit:
		code, err := s.issueDiscount(ctx, inst, "", discountPayout{
			payoutType: PayoutTypeCredit,
			status:     InstanceStatusCreditIssued,
			prefix:     discountCodePrefix,
			amount:     amount,
			from:       from,
			notes: func(code string) string {
				return fmt.Sprintf("Client chose credit. $%.2f issued as code %s.", amount, code)
			},
		})
		if err != nil {
			return nil, err
		}
		log.Info("client chose payout", zap.Float64("amount", amount))
		return &PayoutChoice{
			Result:       string(InstanceStatusCreditIssued),
			DiscountCode: code,
			Amount:       &amount,
			Message:      fmt.Sprintf("Your credit of $%.2f has been issued. Use code %s on your next purchase.", amount, code),
		}, nil

	case PayoutTypeRolloverUpsell:
		multiplier := terms.BonusMultiplier
		code, err := s.issueDiscount(ctx, inst, "", discountPayout{
			payoutType: PayoutTypeRolloverUpsell,
			status:     InstanceStatusRolloverUpsellApplied,
			prefix:     upsellCodePrefix,
			amount:     rollover,
			from:       from,
			notes: func(code string) string {
				return fmt.Sprintf("Client chose upsell rollover. $%.2f credit (%gx multiplier) issued as code %s.", rollover, multiplier, code)
			},
			updates: map[string]any{"rollover_credit_amount": rollover},
		})
		if err != nil {
			return nil, err
		}
		log.Info("client chose payout", zap.Float64("amount", rollover))
		return &PayoutChoice{
			Result:          string(InstanceStatusRolloverUpsellApplied),
			DiscountCode:    code,
			CreditAmount:    &rollover,
			BonusMultiplier: &multiplier,
			Message:         fmt.Sprintf("Your credit of $%.2f has been issued! Use code %s toward your upgrade.", rollover, code),
		}, nil

	default:
		// Continuity rollovers open a subscription against a continuity plan,
		// and no template here carries one.
		return nil, errutil.BadRequest("No continuity plan configured for this guarantee template", nil)
	}
}
