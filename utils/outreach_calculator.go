package utils

import (
	"fmt"
	"math"
	"strings"
	"time"

	"instabids/models"
)

// OutreachCalculator computes how many contractors to contact per tier for
// a target bid count and timeline. Core business rule: 4 bids minimum per
// project.
type OutreachCalculator struct {
	// Response rates by tier (can be updated from historical data)
	BaseResponseRates map[int]float64

	// Maximum contractors per tier (business rules)
	MaxPerTier map[int]int

	// Now is swappable for tests.
	Now func() time.Time
}

// Urgency multipliers: urgent projects see lower response rates.
var urgencyMultipliers = map[string]float64{
	models.UrgencyEmergency: 0.70,
	models.UrgencyUrgent:    0.85,
	models.UrgencyStandard:  1.00,
	models.UrgencyFlexible:  1.10,
	models.UrgencyPlanning:  1.20,
}

// Project-type multipliers, keyed by normalized project type.
var projectTypeMultipliers = map[string]float64{
	"emergency":  0.80,
	"urgent":     0.80,
	"leak":       0.80,
	"damage":     0.80,
	"remodel":    1.10,
	"renovation": 1.10,
	"addition":   1.10,
}

var tierNames = map[int]string{
	models.TierInternal: "Internal",
	models.TierProspect: "Prospects",
	models.TierCold:     "New/Cold",
}

var checkInPoints = []float64{0.25, 0.50, 0.75}

func NewOutreachCalculator() *OutreachCalculator {
	return &OutreachCalculator{
		BaseResponseRates: map[int]float64{
			models.TierInternal: 0.90,
			models.TierProspect: 0.50,
			models.TierCold:     0.33,
		},
		MaxPerTier: map[int]int{
			models.TierInternal: 5,
			models.TierProspect: 10,
			models.TierCold:     15,
		},
		Now: time.Now,
	}
}

// StrategyInput carries the inputs for one strategy computation.
type StrategyInput struct {
	BidsNeeded     int
	TimelineHours  float64
	Tier1Available int
	Tier2Available int
	Tier3Available int
	ProjectType    string
}

// CalculateStrategy produces the complete outreach strategy. It fails with
// InsufficientSupply only when no contractors are available in any tier;
// otherwise it always returns a best-effort strategy and lets the risk
// factors carry the warning.
func (oc *OutreachCalculator) CalculateStrategy(in StrategyInput) (*models.OutreachStrategy, error) {
	if in.BidsNeeded < 1 {
		in.BidsNeeded = 4
	}
	if in.Tier1Available+in.Tier2Available+in.Tier3Available == 0 {
		return nil, models.NewAppError(models.ErrInsufficientSupply,
			"no contractors available in any tier", false)
	}

	urgency := oc.DetermineUrgency(in.TimelineHours)
	rates := oc.adjustResponseRates(urgency, in.ProjectType)

	plans := oc.calculateTierPlans(in, rates)

	totalToContact := 0
	expectedTotal := 0.0
	for _, p := range plans {
		totalToContact += p.ToContact
		expectedTotal += p.ExpectedResponses
	}

	checkInTimes, thresholds := oc.checkInSchedule(in.BidsNeeded, in.TimelineHours)
	confidence := oc.confidenceScore(expectedTotal, in.BidsNeeded, totalToContact)
	risks := oc.identifyRiskFactors(plans, urgency, confidence)
	recommendations := oc.generateRecommendations(plans, confidence, urgency)

	return &models.OutreachStrategy{
		BidsNeeded:             in.BidsNeeded,
		TimelineHours:          in.TimelineHours,
		UrgencyLevel:           urgency,
		TierPlans:              plans,
		TotalToContact:         totalToContact,
		ExpectedTotalResponses: expectedTotal,
		CheckInTimes:           checkInTimes,
		EscalationThresholds:   thresholds,
		ConfidenceScore:        confidence,
		RiskFactors:            risks,
		Recommendations:        recommendations,
	}, nil
}

// DetermineUrgency classifies the timeline into an engine urgency level.
func (oc *OutreachCalculator) DetermineUrgency(timelineHours float64) string {
	switch {
	case timelineHours < 6:
		return models.UrgencyEmergency
	case timelineHours <= 24:
		return models.UrgencyUrgent
	case timelineHours <= 72:
		return models.UrgencyStandard
	case timelineHours <= 168:
		return models.UrgencyFlexible
	default:
		return models.UrgencyPlanning
	}
}

// adjustResponseRates applies urgency and project-type multipliers, capping
// each tier's rate at 0.95 after multiplication.
func (oc *OutreachCalculator) adjustResponseRates(urgency, projectType string) map[int]float64 {
	multiplier := urgencyMultipliers[urgency]
	if projectType != "" {
		if m, ok := projectTypeMultipliers[strings.ToLower(projectType)]; ok {
			multiplier *= m
		}
	}

	adjusted := make(map[int]float64, len(oc.BaseResponseRates))
	for tier, rate := range oc.BaseResponseRates {
		adjusted[tier] = math.Min(0.95, rate*multiplier)
	}
	return adjusted
}

// calculateTierPlans fills tiers greedily, highest response rate first.
func (oc *OutreachCalculator) calculateTierPlans(in StrategyInput, rates map[int]float64) []models.TierPlan {
	available := map[int]int{
		models.TierInternal: in.Tier1Available,
		models.TierProspect: in.Tier2Available,
		models.TierCold:     in.Tier3Available,
	}

	plans := make([]models.TierPlan, 0, 3)
	remaining := float64(in.BidsNeeded)

	for _, tier := range []int{models.TierInternal, models.TierProspect, models.TierCold} {
		rate := rates[tier]
		toContact := 0
		if remaining > 0 {
			toContact = int(math.Ceil(remaining / rate))
		}
		if toContact > available[tier] {
			toContact = available[tier]
		}
		if toContact > oc.MaxPerTier[tier] {
			toContact = oc.MaxPerTier[tier]
		}

		expected := float64(toContact) * rate
		remaining = math.Max(0, remaining-expected)

		plans = append(plans, models.TierPlan{
			Tier:              tier,
			TierName:          tierNames[tier],
			ResponseRate:      rate,
			AvailableCount:    available[tier],
			ToContact:         toContact,
			ExpectedResponses: expected,
		})
	}

	return plans
}

// checkInSchedule returns check-in instants at 25%, 50% and 75% of the
// timeline with the linearly progressing bid thresholds.
func (oc *OutreachCalculator) checkInSchedule(bidsNeeded int, timelineHours float64) ([]time.Time, []int) {
	now := oc.Now()
	times := make([]time.Time, 0, len(checkInPoints))
	thresholds := make([]int, 0, len(checkInPoints))

	for _, point := range checkInPoints {
		offset := time.Duration(timelineHours * point * float64(time.Hour))
		times = append(times, now.Add(offset))
		thresholds = append(thresholds, int(math.Ceil(float64(bidsNeeded)*point)))
	}
	return times, thresholds
}

// confidenceScore rates the likelihood of hitting the bid target (0-100).
func (oc *OutreachCalculator) confidenceScore(expected float64, bidsNeeded, totalToContact int) float64 {
	confidence := math.Min(100, expected/float64(bidsNeeded)*100)

	// Contacting too many reads as desperation
	if totalToContact > 20 {
		confidence *= 0.9
	}

	// Good margin earns a bonus
	if expected >= float64(bidsNeeded)*1.5 {
		confidence = math.Min(100, confidence*1.1)
	}

	return math.Round(confidence*10) / 10
}

func (oc *OutreachCalculator) identifyRiskFactors(plans []models.TierPlan, urgency string, confidence float64) []string {
	risks := []string{}

	if confidence < 70 {
		risks = append(risks, "Low confidence in meeting bid target")
	}

	if plans[0].ToContact < 2 {
		risks = append(risks, "Limited internal contractors available")
	}

	total := 0
	for _, p := range plans {
		total += p.ToContact
	}
	if total > 0 {
		tier3Percent := float64(plans[2].ToContact) / float64(total) * 100
		if tier3Percent > 60 {
			risks = append(risks, fmt.Sprintf("Heavy reliance on cold outreach (%.0f%%)", tier3Percent))
		}
	}

	if urgency == models.UrgencyEmergency || urgency == models.UrgencyUrgent {
		risks = append(risks, "Urgent timeline may reduce response rates")
	}

	for _, p := range plans {
		if p.ToContact == oc.MaxPerTier[p.Tier] {
			risks = append(risks, fmt.Sprintf("Tier %d at maximum capacity", p.Tier))
		}
	}

	return risks
}

// generateRecommendations is the fixed mapping from risk conditions to
// operator guidance.
func (oc *OutreachCalculator) generateRecommendations(plans []models.TierPlan, confidence float64, urgency string) []string {
	recommendations := []string{}

	if confidence < 70 {
		recommendations = append(recommendations,
			"Consider expanding search radius or criteria",
			"Prepare for manual outreach if needed")
	}

	if urgency == models.UrgencyEmergency || urgency == models.UrgencyUrgent {
		recommendations = append(recommendations,
			"Prioritize phone calls over email for Tier 1",
			"Consider incentive for quick response")
	}

	// Tier 1 supply was the binding constraint on the allocation.
	if plans[0].ToContact == plans[0].AvailableCount {
		recommendations = append(recommendations,
			"Recruit more internal contractors for future projects")
	}

	if plans[2].ToContact > 8 {
		recommendations = append(recommendations,
			"Enrich and qualify more Tier 3 contractors proactively")
	}

	if urgency == models.UrgencyEmergency {
		recommendations = append(recommendations,
			"Set up hourly monitoring for first 3 hours")
	}

	return recommendations
}
