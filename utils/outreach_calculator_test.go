package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"instabids/models"
)

func fixedCalculator(t *testing.T) *OutreachCalculator {
	t.Helper()
	oc := NewOutreachCalculator()
	oc.Now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return oc
}

func TestDetermineUrgency(t *testing.T) {
	oc := NewOutreachCalculator()

	cases := []struct {
		hours float64
		want  string
	}{
		{2, models.UrgencyEmergency},
		{5.9, models.UrgencyEmergency},
		{6, models.UrgencyUrgent},
		{24, models.UrgencyUrgent},
		{25, models.UrgencyStandard},
		{72, models.UrgencyStandard},
		{100, models.UrgencyFlexible},
		{168, models.UrgencyFlexible},
		{169, models.UrgencyPlanning},
		{720, models.UrgencyPlanning},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, oc.DetermineUrgency(tc.hours), "timeline %v hours", tc.hours)
	}
}

func TestCalculateStrategyEmergency(t *testing.T) {
	oc := fixedCalculator(t)

	strategy, err := oc.CalculateStrategy(StrategyInput{
		BidsNeeded:     4,
		TimelineHours:  4,
		Tier1Available: 3,
		Tier2Available: 10,
		Tier3Available: 20,
	})
	require.NoError(t, err)

	assert.Equal(t, models.UrgencyEmergency, strategy.UrgencyLevel)

	// Rates get the 0.70 emergency multiplier
	require.Len(t, strategy.TierPlans, 3)
	assert.InDelta(t, 0.63, strategy.TierPlans[0].ResponseRate, 1e-9)
	assert.InDelta(t, 0.35, strategy.TierPlans[1].ResponseRate, 1e-9)
	assert.InDelta(t, 0.231, strategy.TierPlans[2].ResponseRate, 1e-9)

	// Tier 1 wants ceil(4/0.63)=7 but only 3 are available; tier 2 covers
	// the remaining 2.11 expected bids with ceil(2.11/0.35)=7.
	assert.Equal(t, 3, strategy.TierPlans[0].ToContact)
	assert.Equal(t, 7, strategy.TierPlans[1].ToContact)
	assert.Equal(t, 0, strategy.TierPlans[2].ToContact)
	assert.Equal(t, 10, strategy.TotalToContact)
	assert.InDelta(t, 4.34, strategy.ExpectedTotalResponses, 1e-9)

	assert.Equal(t, 100.0, strategy.ConfidenceScore)
	assert.Contains(t, strategy.RiskFactors, "Urgent timeline may reduce response rates")
	assert.Contains(t, strategy.Recommendations, "Set up hourly monitoring for first 3 hours")
	assert.Contains(t, strategy.Recommendations, "Prioritize phone calls over email for Tier 1")
}

func TestCalculateStrategyStandard(t *testing.T) {
	oc := fixedCalculator(t)

	strategy, err := oc.CalculateStrategy(StrategyInput{
		BidsNeeded:     4,
		TimelineHours:  48,
		Tier1Available: 5,
		Tier2Available: 10,
		Tier3Available: 15,
		ProjectType:    "kitchen remodel", // not a keyword, no multiplier
	})
	require.NoError(t, err)

	assert.Equal(t, models.UrgencyStandard, strategy.UrgencyLevel)
	assert.InDelta(t, 0.90, strategy.TierPlans[0].ResponseRate, 1e-9)

	// ceil(4/0.9)=5 internal contractors cover the whole target
	assert.Equal(t, 5, strategy.TierPlans[0].ToContact)
	assert.Equal(t, 0, strategy.TierPlans[1].ToContact)
	assert.Equal(t, 0, strategy.TierPlans[2].ToContact)
	assert.InDelta(t, 4.5, strategy.ExpectedTotalResponses, 1e-9)
	assert.Equal(t, 100.0, strategy.ConfidenceScore)

	assert.Contains(t, strategy.RiskFactors, "Tier 1 at maximum capacity")
}

func TestCalculateStrategyRateCap(t *testing.T) {
	oc := fixedCalculator(t)

	// planning (1.2) x remodel (1.1) would push tier 1 past 1.0; the rate
	// caps at 0.95
	strategy, err := oc.CalculateStrategy(StrategyInput{
		BidsNeeded:     4,
		TimelineHours:  200,
		Tier1Available: 5,
		Tier2Available: 5,
		Tier3Available: 5,
		ProjectType:    "remodel",
	})
	require.NoError(t, err)

	assert.Equal(t, models.UrgencyPlanning, strategy.UrgencyLevel)
	assert.InDelta(t, 0.95, strategy.TierPlans[0].ResponseRate, 1e-9)
	assert.InDelta(t, 0.5*1.2*1.1, strategy.TierPlans[1].ResponseRate, 1e-9)
}

func TestCalculateStrategyInsufficientSupply(t *testing.T) {
	oc := fixedCalculator(t)

	_, err := oc.CalculateStrategy(StrategyInput{
		BidsNeeded:    4,
		TimelineHours: 24,
	})
	require.Error(t, err)

	appErr, ok := err.(*models.AppError)
	require.True(t, ok)
	assert.Equal(t, models.ErrInsufficientSupply, appErr.Kind)
}

func TestCalculateStrategyDefaultsBidsNeeded(t *testing.T) {
	oc := fixedCalculator(t)

	strategy, err := oc.CalculateStrategy(StrategyInput{
		BidsNeeded:     0,
		TimelineHours:  48,
		Tier1Available: 5,
		Tier2Available: 5,
		Tier3Available: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 4, strategy.BidsNeeded)
}

func TestCheckInSchedule(t *testing.T) {
	oc := fixedCalculator(t)
	start := oc.Now()

	strategy, err := oc.CalculateStrategy(StrategyInput{
		BidsNeeded:     4,
		TimelineHours:  8,
		Tier1Available: 5,
		Tier2Available: 5,
		Tier3Available: 5,
	})
	require.NoError(t, err)

	require.Len(t, strategy.CheckInTimes, 3)
	assert.Equal(t, start.Add(2*time.Hour), strategy.CheckInTimes[0])
	assert.Equal(t, start.Add(4*time.Hour), strategy.CheckInTimes[1])
	assert.Equal(t, start.Add(6*time.Hour), strategy.CheckInTimes[2])

	// ceil(4 * p) at 25/50/75 percent
	assert.Equal(t, []int{1, 2, 3}, strategy.EscalationThresholds)
}

func TestStrategyInvariants(t *testing.T) {
	oc := fixedCalculator(t)

	inputs := []StrategyInput{
		{BidsNeeded: 4, TimelineHours: 4, Tier1Available: 1, Tier2Available: 2, Tier3Available: 40},
		{BidsNeeded: 8, TimelineHours: 24, Tier1Available: 2, Tier2Available: 3, Tier3Available: 4},
		{BidsNeeded: 4, TimelineHours: 300, Tier1Available: 10, Tier2Available: 20, Tier3Available: 30},
		{BidsNeeded: 12, TimelineHours: 48, Tier1Available: 5, Tier2Available: 10, Tier3Available: 15},
	}

	for _, in := range inputs {
		strategy, err := oc.CalculateStrategy(in)
		require.NoError(t, err)

		available := map[int]int{1: in.Tier1Available, 2: in.Tier2Available, 3: in.Tier3Available}
		total := 0
		expected := 0.0
		for _, p := range strategy.TierPlans {
			assert.LessOrEqual(t, p.ToContact, available[p.Tier])
			assert.LessOrEqual(t, p.ToContact, oc.MaxPerTier[p.Tier])
			assert.InDelta(t, float64(p.ToContact)*p.ResponseRate, p.ExpectedResponses, 1e-9)
			total += p.ToContact
			expected += p.ExpectedResponses
		}
		assert.Equal(t, total, strategy.TotalToContact)
		assert.InDelta(t, expected, strategy.ExpectedTotalResponses, 1e-9)
		assert.LessOrEqual(t, strategy.TotalToContact, 5+10+15)
		assert.GreaterOrEqual(t, strategy.ConfidenceScore, 0.0)
		assert.LessOrEqual(t, strategy.ConfidenceScore, 100.0)
	}
}

func TestConfidencePenaltyAndBonus(t *testing.T) {
	oc := fixedCalculator(t)

	// A comfortable margin saturates the score at 100.
	strategy, err := oc.CalculateStrategy(StrategyInput{
		BidsNeeded:     2,
		TimelineHours:  48,
		Tier1Available: 5,
		Tier2Available: 10,
		Tier3Available: 15,
	})
	require.NoError(t, err)
	assert.Equal(t, 100.0, strategy.ConfidenceScore)

	// A large cold-heavy fan-out crosses the 20 contact penalty.
	strategy, err = oc.CalculateStrategy(StrategyInput{
		BidsNeeded:     10,
		TimelineHours:  4,
		Tier1Available: 0,
		Tier2Available: 10,
		Tier3Available: 40,
	})
	require.NoError(t, err)
	assert.Greater(t, strategy.TotalToContact, 20)
	assert.Less(t, strategy.ConfidenceScore, 100.0)
}

func TestRecruitmentRecommendationFiresOnTier1Exhaustion(t *testing.T) {
	oc := fixedCalculator(t)

	// All 3 internal contractors are drained covering the target.
	strategy, err := oc.CalculateStrategy(StrategyInput{
		BidsNeeded:     4,
		TimelineHours:  48,
		Tier1Available: 3,
		Tier2Available: 10,
		Tier3Available: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, strategy.TierPlans[0].ToContact)
	assert.Contains(t, strategy.Recommendations, "Recruit more internal contractors for future projects")

	// With slack in tier 1 the recommendation stays quiet.
	strategy, err = oc.CalculateStrategy(StrategyInput{
		BidsNeeded:     4,
		TimelineHours:  48,
		Tier1Available: 20,
		Tier2Available: 10,
		Tier3Available: 10,
	})
	require.NoError(t, err)
	assert.Less(t, strategy.TierPlans[0].ToContact, strategy.TierPlans[0].AvailableCount)
	assert.NotContains(t, strategy.Recommendations, "Recruit more internal contractors for future projects")
}
