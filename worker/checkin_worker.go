package worker

import (
	"context"
	"log"
	"math"
	"time"

	"gorm.io/gorm"

	"instabids/models"
	"instabids/utils"
)

// CheckInWorker executes scheduled campaign check-ins, comparing observed
// bids against the expected curve and escalating when a campaign falls
// behind. All state lives in the store: after a restart the scan loop
// simply picks up whatever check-ins are due.
type CheckInWorker struct {
	DB           *gorm.DB
	Orchestrator *utils.CampaignOrchestrator
	Logger       *log.Logger
	Interval     time.Duration
}

func NewCheckInWorker(db *gorm.DB, orchestrator *utils.CampaignOrchestrator, logger *log.Logger, interval time.Duration) *CheckInWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &CheckInWorker{
		DB:           db,
		Orchestrator: orchestrator,
		Logger:       logger,
		Interval:     interval,
	}
}

func (cw *CheckInWorker) Start(ctx context.Context) {
	cw.Logger.Println("Check-in worker started")

	ticker := time.NewTicker(cw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			cw.Logger.Println("Check-in worker shutting down...")
			return
		case <-ticker.C:
			cw.runDueCheckIns()
			cw.expireOverdueCampaigns()
		}
	}
}

// CheckInStatus is the reconciliation result for one check-in.
type CheckInStatus struct {
	BidsReceived         int         `json:"bids_received"`
	BidsExpected         int         `json:"bids_expected"`
	OnTrack              bool        `json:"on_track"`
	EscalationNeeded     bool        `json:"escalation_needed"`
	AdditionalContractors map[string]int `json:"additional_contractors_needed"`
}

// EvaluateCheckIn computes the check-in status for a campaign. Escalation
// is needed when observed bids fall below 75% of the expected count; the
// shortfall is refilled from Tier 2 first (up to 4), remainder from Tier 3.
func EvaluateCheckIn(campaign *models.Campaign, card *models.BidCard, bidsExpected int) CheckInStatus {
	received := card.BidDocument.BidsReceived()

	status := CheckInStatus{
		BidsReceived:          received,
		BidsExpected:          bidsExpected,
		OnTrack:               received >= bidsExpected,
		AdditionalContractors: map[string]int{},
	}
	status.EscalationNeeded = float64(received) < 0.75*float64(bidsExpected)

	if status.EscalationNeeded {
		shortfall := campaign.BidsNeeded - received
		if shortfall < 0 {
			shortfall = 0
		}
		tier2 := int(math.Min(4, float64(shortfall)))
		status.AdditionalContractors["tier_2"] = tier2
		status.AdditionalContractors["tier_3"] = shortfall - tier2
	}

	return status
}

// runDueCheckIns executes every scheduled check-in whose time has come.
// A check-in that runs late does not delay later ones; they keep their
// original schedule.
func (cw *CheckInWorker) runDueCheckIns() {
	var due []models.CheckIn
	err := cw.DB.Where("executed_at IS NULL AND canceled = ? AND scheduled_at <= ?", false, time.Now()).
		Order("campaign_id ASC, scheduled_at ASC").
		Find(&due).Error
	if err != nil {
		cw.Logger.Printf("Error fetching due check-ins: %v", err)
		return
	}

	for i := range due {
		if err := cw.executeCheckIn(&due[i]); err != nil {
			cw.Logger.Printf("Error executing check-in %d: %v", due[i].ID, err)
		}
	}
}

func (cw *CheckInWorker) executeCheckIn(checkIn *models.CheckIn) error {
	var campaign models.Campaign
	if err := cw.DB.First(&campaign, checkIn.CampaignID).Error; err != nil {
		return err
	}

	if models.IsTerminalCampaignStatus(campaign.Status) {
		return cw.DB.Model(checkIn).Update("canceled", true).Error
	}

	var card models.BidCard
	if err := cw.DB.First(&card, campaign.BidCardID).Error; err != nil {
		return err
	}

	status := EvaluateCheckIn(&campaign, &card, checkIn.BidsExpected)
	cw.Logger.Printf("Check-in %d for campaign %d: %d/%d bids, on_track=%t",
		checkIn.ID, campaign.ID, status.BidsReceived, status.BidsExpected, status.OnTrack)

	if err := cw.DB.Model(&models.Campaign{}).Where("id = ?", campaign.ID).
		Update("bids_received", status.BidsReceived).Error; err != nil {
		return err
	}

	action := models.CheckInActionNone

	switch {
	case status.BidsReceived >= campaign.BidsNeeded:
		// Target already met; wrap the campaign up and stand down.
		if err := cw.Orchestrator.CompleteCampaign(campaign.ID); err != nil {
			return err
		}

	case status.EscalationNeeded:
		tier2 := status.AdditionalContractors["tier_2"]
		tier3 := status.AdditionalContractors["tier_3"]
		if tier2 > 0 {
			if _, err := cw.Orchestrator.Escalate(campaign.ID, tier2, models.TierProspect); err != nil {
				cw.Logger.Printf("Tier 2 escalation failed for campaign %d: %v", campaign.ID, err)
			} else {
				action = models.CheckInActionAddTier2
			}
		}
		if tier3 > 0 {
			if _, err := cw.Orchestrator.Escalate(campaign.ID, tier3, models.TierCold); err != nil {
				cw.Logger.Printf("Tier 3 escalation failed for campaign %d: %v", campaign.ID, err)
			} else if action == models.CheckInActionNone {
				action = models.CheckInActionAddTier3
			}
		}
	}

	return cw.DB.Model(checkIn).Updates(map[string]interface{}{
		"executed_at":   time.Now(),
		"bids_observed": status.BidsReceived,
		"on_track":      status.OnTrack,
		"action_taken":  action,
	}).Error
}

// expireOverdueCampaigns expires running campaigns whose deadline passed
// short of the bid target and emits a manual follow-up task for each.
func (cw *CheckInWorker) expireOverdueCampaigns() {
	var overdue []models.Campaign
	err := cw.DB.Where("status IN ? AND deadline_at <= ?",
		[]string{models.CampaignActive, models.CampaignEscalated, models.CampaignScheduled},
		time.Now()).
		Find(&overdue).Error
	if err != nil {
		cw.Logger.Printf("Error fetching overdue campaigns: %v", err)
		return
	}

	for i := range overdue {
		campaign := &overdue[i]

		var card models.BidCard
		if err := cw.DB.First(&card, campaign.BidCardID).Error; err != nil {
			cw.Logger.Printf("Bid card %d lookup failed: %v", campaign.BidCardID, err)
			continue
		}

		received := card.BidDocument.BidsReceived()
		if received >= campaign.BidsNeeded {
			if err := cw.Orchestrator.CompleteCampaign(campaign.ID); err != nil {
				cw.Logger.Printf("Error completing campaign %d: %v", campaign.ID, err)
			}
			continue
		}

		if err := cw.Orchestrator.ExpireCampaign(campaign, received); err != nil {
			cw.Logger.Printf("Error expiring campaign %d: %v", campaign.ID, err)
		} else {
			cw.Logger.Printf("Campaign %d expired with %d/%d bids, follow-up task created",
				campaign.ID, received, campaign.BidsNeeded)
		}
	}
}
