package worker

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"instabids/models"
	"instabids/utils"
)

// DispatchWorker drains queued outreach attempts for all running campaigns.
// The orchestrator handles tier ordering and per-channel back-pressure;
// this loop just keeps feeding it.
type DispatchWorker struct {
	DB           *gorm.DB
	Orchestrator *utils.CampaignOrchestrator
	Logger       *log.Logger
	Interval     time.Duration
}

func NewDispatchWorker(db *gorm.DB, orchestrator *utils.CampaignOrchestrator, logger *log.Logger, interval time.Duration) *DispatchWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &DispatchWorker{
		DB:           db,
		Orchestrator: orchestrator,
		Logger:       logger,
		Interval:     interval,
	}
}

func (dw *DispatchWorker) Start(ctx context.Context) {
	dw.Logger.Println("Dispatch worker started")

	ticker := time.NewTicker(dw.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			dw.Logger.Println("Dispatch worker shutting down...")
			return
		case <-ticker.C:
			dw.drainRunningCampaigns()
		}
	}
}

func (dw *DispatchWorker) drainRunningCampaigns() {
	var running []models.Campaign
	err := dw.DB.Where("status IN ?", []string{models.CampaignActive, models.CampaignEscalated}).
		Find(&running).Error
	if err != nil {
		dw.Logger.Printf("Error fetching running campaigns: %v", err)
		return
	}

	for i := range running {
		if err := dw.Orchestrator.DispatchPending(&running[i]); err != nil {
			dw.Logger.Printf("Error dispatching campaign %d: %v", running[i].ID, err)
		}
	}
}
