package worker

import (
	"log"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"instabids/models"
	"instabids/utils"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, models.Migrate(db))
	return db
}

func testWorker(t *testing.T, db *gorm.DB) *CheckInWorker {
	t.Helper()
	lg := log.New(os.Stdout, "TEST: ", log.LstdFlags)
	orchestrator := utils.NewCampaignOrchestrator(db, lg, nil)
	return NewCheckInWorker(db, orchestrator, lg, time.Minute)
}

func TestEvaluateCheckIn(t *testing.T) {
	campaign := &models.Campaign{BidsNeeded: 4}

	cardWithBids := func(n int) *models.BidCard {
		card := &models.BidCard{ContractorCountNeeded: 4}
		for i := 0; i < n; i++ {
			card.BidDocument.SubmittedBids = append(card.BidDocument.SubmittedBids,
				models.SubmittedBid{ContractorID: uint(i + 1)})
		}
		return card
	}

	// Zero bids against an expectation of one falls below the 75% line.
	status := EvaluateCheckIn(campaign, cardWithBids(0), 1)
	assert.False(t, status.OnTrack)
	assert.True(t, status.EscalationNeeded)
	assert.Equal(t, 4, status.AdditionalContractors["tier_2"])
	assert.Equal(t, 0, status.AdditionalContractors["tier_3"])

	// Meeting the expectation exactly is on track.
	status = EvaluateCheckIn(campaign, cardWithBids(2), 2)
	assert.True(t, status.OnTrack)
	assert.False(t, status.EscalationNeeded)
	assert.Empty(t, status.AdditionalContractors)

	// 3 of 4 expected is behind but above 75%: no escalation yet.
	status = EvaluateCheckIn(campaign, cardWithBids(3), 4)
	assert.False(t, status.OnTrack)
	assert.False(t, status.EscalationNeeded)

	// A large shortfall spills past tier 2's cap of 4 into tier 3.
	big := &models.Campaign{BidsNeeded: 10}
	status = EvaluateCheckIn(big, cardWithBids(2), 8)
	assert.True(t, status.EscalationNeeded)
	assert.Equal(t, 4, status.AdditionalContractors["tier_2"])
	assert.Equal(t, 4, status.AdditionalContractors["tier_3"])
}

func TestExecuteCheckInCancelsOnTerminalCampaign(t *testing.T) {
	db := testDB(t)
	cw := testWorker(t, db)

	card := models.BidCard{BidCardNumber: "BC-CHK01", HomeownerID: 1, ProjectType: "plumbing", ServiceType: "repair", UrgencyLevel: "week", Zip: "78701"}
	require.NoError(t, db.Create(&card).Error)

	campaign := models.Campaign{
		BidCardID:     card.ID,
		Status:        models.CampaignPaused,
		BidsNeeded:    4,
		TimelineHours: 24,
		DeadlineAt:    time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, db.Create(&campaign).Error)

	checkIn := models.CheckIn{
		CampaignID:   campaign.ID,
		ScheduledAt:  time.Now().Add(-time.Minute),
		BidsExpected: 1,
	}
	require.NoError(t, db.Create(&checkIn).Error)

	require.NoError(t, cw.executeCheckIn(&checkIn))

	var fresh models.CheckIn
	require.NoError(t, db.First(&fresh, checkIn.ID).Error)
	assert.True(t, fresh.Canceled)
	assert.Nil(t, fresh.ExecutedAt)
}

func TestExecuteCheckInCompletesWhenTargetMet(t *testing.T) {
	db := testDB(t)
	cw := testWorker(t, db)

	card := models.BidCard{
		BidCardNumber: "BC-CHK02", HomeownerID: 1, ProjectType: "plumbing",
		ServiceType: "repair", UrgencyLevel: "week", Zip: "78701",
		ContractorCountNeeded: 2,
		BidDocument: models.BidDocument{SubmittedBids: []models.SubmittedBid{
			{ContractorID: 7}, {ContractorID: 9},
		}},
	}
	require.NoError(t, db.Create(&card).Error)

	campaign := models.Campaign{
		BidCardID:     card.ID,
		Status:        models.CampaignActive,
		BidsNeeded:    2,
		TimelineHours: 24,
		DeadlineAt:    time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, db.Create(&campaign).Error)

	due := models.CheckIn{CampaignID: campaign.ID, ScheduledAt: time.Now().Add(-time.Minute), BidsExpected: 1}
	later := models.CheckIn{CampaignID: campaign.ID, ScheduledAt: time.Now().Add(time.Hour), BidsExpected: 2}
	require.NoError(t, db.Create(&due).Error)
	require.NoError(t, db.Create(&later).Error)

	require.NoError(t, cw.executeCheckIn(&due))

	var freshCampaign models.Campaign
	require.NoError(t, db.First(&freshCampaign, campaign.ID).Error)
	assert.Equal(t, models.CampaignCompleted, freshCampaign.Status)

	// Completion cancels the remaining scheduled check-in.
	var freshLater models.CheckIn
	require.NoError(t, db.First(&freshLater, later.ID).Error)
	assert.True(t, freshLater.Canceled)

	var freshDue models.CheckIn
	require.NoError(t, db.First(&freshDue, due.ID).Error)
	assert.NotNil(t, freshDue.ExecutedAt)
	assert.Equal(t, 2, freshDue.BidsObserved)
	assert.True(t, freshDue.OnTrack)
}

func TestExecuteCheckInEscalates(t *testing.T) {
	db := testDB(t)
	cw := testWorker(t, db)

	// Tier 2 contractors available for escalation
	for _, name := range []string{"Alpha Plumbing", "Beta Plumbing", "Gamma Plumbing", "Delta Plumbing"} {
		require.NoError(t, db.Create(&models.Contractor{Tier: models.TierProspect, ContractorProfile: models.ContractorProfile{
			CompanyName: name,
			Email:       "ops@example.com",
			ServiceZips: "78701,78702",
			IsAvailable: utils.Pointer(true),
		}}).Error)
	}

	card := models.BidCard{BidCardNumber: "BC-CHK03", HomeownerID: 1, ProjectType: "plumbing", ServiceType: "repair", UrgencyLevel: "week", Zip: "78701", ContractorCountNeeded: 4}
	require.NoError(t, db.Create(&card).Error)

	campaign := models.Campaign{
		BidCardID:     card.ID,
		Status:        models.CampaignActive,
		BidsNeeded:    4,
		TimelineHours: 24,
		DeadlineAt:    time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, db.Create(&campaign).Error)

	checkIn := models.CheckIn{CampaignID: campaign.ID, ScheduledAt: time.Now().Add(-time.Minute), BidsExpected: 1}
	require.NoError(t, db.Create(&checkIn).Error)

	require.NoError(t, cw.executeCheckIn(&checkIn))

	var freshCampaign models.Campaign
	require.NoError(t, db.First(&freshCampaign, campaign.ID).Error)
	assert.Equal(t, models.CampaignEscalated, freshCampaign.Status)

	var members []models.CampaignContractor
	require.NoError(t, db.Where("campaign_id = ?", campaign.ID).Find(&members).Error)
	assert.Len(t, members, 4)
	for _, m := range members {
		assert.Equal(t, "escalation", m.AddedBy)
		assert.Equal(t, models.TierProspect, m.Tier)
	}

	var fresh models.CheckIn
	require.NoError(t, db.First(&fresh, checkIn.ID).Error)
	assert.Equal(t, models.CheckInActionAddTier2, fresh.ActionTaken)
	assert.NotNil(t, fresh.ExecutedAt)
}

func TestExpireOverdueCampaigns(t *testing.T) {
	db := testDB(t)
	cw := testWorker(t, db)

	card := models.BidCard{BidCardNumber: "BC-CHK04", HomeownerID: 1, ProjectType: "plumbing", ServiceType: "repair", UrgencyLevel: "week", Zip: "78701", ContractorCountNeeded: 4}
	require.NoError(t, db.Create(&card).Error)

	campaign := models.Campaign{
		BidCardID:     card.ID,
		Status:        models.CampaignActive,
		BidsNeeded:    4,
		TimelineHours: 24,
		DeadlineAt:    time.Now().Add(-time.Hour),
	}
	require.NoError(t, db.Create(&campaign).Error)

	cw.expireOverdueCampaigns()

	var fresh models.Campaign
	require.NoError(t, db.First(&fresh, campaign.ID).Error)
	assert.Equal(t, models.CampaignExpired, fresh.Status)

	var tasks []models.ManualFollowUpTask
	require.NoError(t, db.Where("campaign_id = ?", campaign.ID).Find(&tasks).Error)
	require.Len(t, tasks, 1)
	assert.Equal(t, 4, tasks[0].BidsNeeded)
	assert.Equal(t, 0, tasks[0].BidsReceived)
	assert.False(t, tasks[0].Resolved)
}
