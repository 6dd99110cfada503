package models

import "time"

// Engine urgency levels, classified from the campaign timeline.
const (
	UrgencyEmergency = "emergency" // < 6 hours
	UrgencyUrgent    = "urgent"    // 6-24 hours
	UrgencyStandard  = "standard"  // 1-3 days
	UrgencyFlexible  = "flexible"  // 3-7 days
	UrgencyPlanning  = "planning"  // > 7 days
)

// TierPlan is the outreach plan for one contractor tier.
type TierPlan struct {
	Tier              int     `json:"tier"`
	TierName          string  `json:"tier_name"`
	ResponseRate      float64 `json:"response_rate"`
	AvailableCount    int     `json:"available_count"`
	ToContact         int     `json:"to_contact"`
	ExpectedResponses float64 `json:"expected_responses"`
}

// OutreachStrategy is the complete outreach plan for a campaign, frozen on
// the campaign record when it is created.
type OutreachStrategy struct {
	BidsNeeded    int     `json:"bids_needed"`
	TimelineHours float64 `json:"timeline_hours"`
	UrgencyLevel  string  `json:"urgency_level"`

	TierPlans []TierPlan `json:"tier_plans"` // index 0..2 = tiers 1..3

	TotalToContact         int     `json:"total_to_contact"`
	ExpectedTotalResponses float64 `json:"expected_total_responses"`

	// Check-ins at 25%, 50%, 75% of the timeline with the expected bid
	// count at each point.
	CheckInTimes         []time.Time `json:"check_in_times"`
	EscalationThresholds []int       `json:"escalation_thresholds"`

	ConfidenceScore float64  `json:"confidence_score"` // 0-100
	RiskFactors     []string `json:"risk_factors"`
	Recommendations []string `json:"recommendations"`
}

// TierPlan returns the plan for the given tier (1..3), or nil.
func (s *OutreachStrategy) PlanFor(tier int) *TierPlan {
	for i := range s.TierPlans {
		if s.TierPlans[i].Tier == tier {
			return &s.TierPlans[i]
		}
	}
	return nil
}
