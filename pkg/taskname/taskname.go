package taskname

const (
	// Campaign notifications
	CampaignEnrollmentResolved    = "campaign:enrollment.resolved"
	CampaignEnrollmentCriteriaMet = "campaign:enrollment.criteria_met"

	// Guarantee notifications
	GuaranteeConditionsMet = "guarantee:conditions_met"
	GuaranteePayoutIssued  = "guarantee:payout.issued"

	// Maintenance
	ExpirySweep = "maintenance:expiry.sweep"
)

// Notifications lists every task type delivered to n8n by the worker.
var Notifications = []string{
	CampaignEnrollmentResolved,
	CampaignEnrollmentCriteriaMet,
	GuaranteeConditionsMet,
	GuaranteePayoutIssued,
}
