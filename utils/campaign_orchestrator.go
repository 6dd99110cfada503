package utils

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"instabids/models"
)

// CampaignOrchestrator owns the campaign lifecycle: creation, dispatch,
// escalation and callback accounting. Campaign state lives entirely in the
// store so a restarted process picks up where it left off.
type CampaignOrchestrator struct {
	DB         *gorm.DB
	Logger     *log.Logger
	Calculator *OutreachCalculator
	Directory  *ContractorDirectory
	Channels   map[string]OutreachChannel

	// Notify is invoked with campaign progress events for the websocket
	// feed; nil disables notifications.
	Notify func(campaignID uint, event string, payload map[string]interface{})
}

func NewCampaignOrchestrator(db *gorm.DB, logger *log.Logger, channels map[string]OutreachChannel) *CampaignOrchestrator {
	return &CampaignOrchestrator{
		DB:         db,
		Logger:     logger,
		Calculator: NewOutreachCalculator(),
		Directory:  NewContractorDirectory(db, logger),
		Channels:   channels,
	}
}

// CreateCampaignInput is the orchestrator-level campaign request.
type CreateCampaignInput struct {
	BidCardID     uint
	ProjectType   string
	Zip           string
	TimelineHours float64
	BidsNeeded    int
}

// CreateCampaign analyzes availability, computes the strategy, and
// materializes the campaign with its queued attempts and check-in schedule.
// Writes happen in the order Campaign -> Attempts -> CheckIns so that a
// partial failure is recoverable by re-running with the same bid card:
// duplicate attempts are suppressed by the uniqueness constraint.
func (co *CampaignOrchestrator) CreateCampaign(in CreateCampaignInput) (*models.Campaign, error) {
	var card models.BidCard
	if err := co.DB.First(&card, in.BidCardID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewAppError(models.ErrNotFound, "bid card not found", false)
		}
		return nil, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}

	t1, t2, t3, err := co.Directory.Availability(in.Zip)
	if err != nil {
		return nil, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}

	strategy, err := co.Calculator.CalculateStrategy(StrategyInput{
		BidsNeeded:     in.BidsNeeded,
		TimelineHours:  in.TimelineHours,
		Tier1Available: t1,
		Tier2Available: t2,
		Tier3Available: t3,
		ProjectType:    in.ProjectType,
	})
	if err != nil {
		return nil, err
	}

	// An unfinished earlier run of the same request is resumed, not duplicated.
	var campaign models.Campaign
	err = co.DB.Where("bid_card_id = ? AND status IN ?", in.BidCardID,
		[]string{models.CampaignScheduled, models.CampaignActive}).First(&campaign).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		campaign = models.Campaign{
			BidCardID:     in.BidCardID,
			Status:        models.CampaignScheduled,
			BidsNeeded:    strategy.BidsNeeded,
			TimelineHours: strategy.TimelineHours,
			DeadlineAt:    time.Now().Add(time.Duration(strategy.TimelineHours * float64(time.Hour))),
			Strategy:      *strategy,
		}
		if err := WithStoreRetry(co.Logger, func() error {
			return co.DB.Create(&campaign).Error
		}); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}

	if err := co.materializeAttempts(&campaign, strategy, in.Zip); err != nil {
		return nil, err
	}

	if err := co.materializeCheckIns(&campaign); err != nil {
		return nil, err
	}

	if err := WithStoreRetry(co.Logger, func() error {
		return co.DB.Model(&models.BidCard{}).Where("id = ?", card.ID).
			Update("status", models.BidCardCollectingBids).Error
	}); err != nil {
		return nil, err
	}

	co.Logger.Printf("Campaign %d created for bid card %d: %d contractors, confidence %.1f",
		campaign.ID, in.BidCardID, strategy.TotalToContact, strategy.ConfidenceScore)
	co.notify(campaign.ID, "campaign_created", map[string]interface{}{
		"total_to_contact": strategy.TotalToContact,
		"confidence":       strategy.ConfidenceScore,
	})

	return &campaign, nil
}

// materializeAttempts selects contractors per tier and creates queued
// attempts over email and, where a form URL is known, the website form.
func (co *CampaignOrchestrator) materializeAttempts(campaign *models.Campaign, strategy *models.OutreachStrategy, zip string) error {
	exclude, err := co.campaignContractorIDs(campaign.ID)
	if err != nil {
		return models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}

	for _, plan := range strategy.TierPlans {
		selected, err := co.Directory.Select(plan.Tier, plan.ToContact, zip, exclude)
		if err != nil {
			return models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
		}
		if err := co.addContractors(campaign, selected, "initial"); err != nil {
			return err
		}
	}
	return nil
}

// addContractors records membership and queued attempts for the selected
// contractors. Conflicting rows are silently skipped, which is what makes
// create/escalate re-runs idempotent.
func (co *CampaignOrchestrator) addContractors(campaign *models.Campaign, selected []models.Contractor, addedBy string) error {
	for _, contractor := range selected {
		member := models.CampaignContractor{
			CampaignID:   campaign.ID,
			ContractorID: contractor.ID,
			Tier:         contractor.Tier,
			AddedBy:      addedBy,
		}
		attempts := []models.OutreachAttempt{}
		if contractor.Email != "" {
			attempts = append(attempts, models.OutreachAttempt{
				CampaignID:   campaign.ID,
				ContractorID: contractor.ID,
				Tier:         contractor.Tier,
				Channel:      models.ChannelEmail,
				Status:       models.AttemptQueued,
			})
		}
		if contractor.FormURL != "" {
			attempts = append(attempts, models.OutreachAttempt{
				CampaignID:   campaign.ID,
				ContractorID: contractor.ID,
				Tier:         contractor.Tier,
				Channel:      models.ChannelWebsiteForm,
				Status:       models.AttemptQueued,
			})
		}

		if err := WithStoreRetry(co.Logger, func() error {
			return co.DB.Transaction(func(tx *gorm.DB) error {
				if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error; err != nil {
					return err
				}
				for i := range attempts {
					if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&attempts[i]).Error; err != nil {
						return err
					}
				}
				return nil
			})
		}); err != nil {
			return err
		}
	}
	return nil
}

func (co *CampaignOrchestrator) materializeCheckIns(campaign *models.Campaign) error {
	for i, at := range campaign.Strategy.CheckInTimes {
		var existing models.CheckIn
		err := co.DB.Where("campaign_id = ? AND scheduled_at = ?", campaign.ID, at).First(&existing).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
		}

		checkIn := models.CheckIn{
			CampaignID:   campaign.ID,
			ScheduledAt:  at,
			BidsExpected: campaign.Strategy.EscalationThresholds[i],
		}
		if err := WithStoreRetry(co.Logger, func() error {
			return co.DB.Create(&checkIn).Error
		}); err != nil {
			return err
		}
	}
	return nil
}

// ExecuteCampaign moves a scheduled campaign to active and dispatches the
// first wave of queued attempts.
func (co *CampaignOrchestrator) ExecuteCampaign(campaignID uint) error {
	var campaign models.Campaign
	if err := co.DB.First(&campaign, campaignID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewAppError(models.ErrNotFound, "campaign not found", false)
		}
		return models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}

	if campaign.Status == models.CampaignScheduled {
		if err := WithStoreRetry(co.Logger, func() error {
			return co.DB.Model(&campaign).Updates(map[string]interface{}{
				"status":     models.CampaignActive,
				"started_at": time.Now(),
			}).Error
		}); err != nil {
			return err
		}
		campaign.Status = models.CampaignActive
	}

	return co.DispatchPending(&campaign)
}

// DispatchPending drains queued attempts for one campaign in tier order,
// honoring per-channel per-minute limits. Attempts over the limit are
// re-queued with an earliest-send timestamp; individual channel failures
// mark the attempt failed and never fail the campaign.
func (co *CampaignOrchestrator) DispatchPending(campaign *models.Campaign) error {
	if campaign.Status != models.CampaignActive && campaign.Status != models.CampaignEscalated {
		return nil
	}
	// Past the deadline nothing new goes out.
	if time.Now().After(campaign.DeadlineAt) {
		return nil
	}

	now := time.Now()
	var pending []models.OutreachAttempt
	err := co.DB.Where("campaign_id = ? AND status = ?", campaign.ID, models.AttemptQueued).
		Where("earliest_send_at IS NULL OR earliest_send_at <= ?", now).
		Order("tier ASC, id ASC").
		Find(&pending).Error
	if err != nil {
		return models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}
	if len(pending) == 0 {
		return nil
	}

	var card models.BidCard
	if err := co.DB.First(&card, campaign.BidCardID).Error; err != nil {
		return models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}

	for _, attempt := range pending {
		channel, ok := co.Channels[attempt.Channel]
		if !ok {
			co.markAttemptFailed(&attempt, fmt.Errorf("no adapter for channel %s", attempt.Channel))
			continue
		}

		over, err := co.overRateLimit(channel)
		if err != nil {
			return models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
		}
		if over {
			retryAt := now.Add(time.Minute)
			co.DB.Model(&attempt).Update("earliest_send_at", retryAt)
			continue
		}

		contractor, err := co.Directory.Get(attempt.ContractorID)
		if err != nil {
			co.markAttemptFailed(&attempt, fmt.Errorf("contractor lookup: %w", err))
			continue
		}

		result := channel.Send(OutreachPayload{
			Attempt:    attempt,
			Contractor: contractor.ContractorProfile,
			BidCard:    card,
		})

		updates := map[string]interface{}{"status": result.Status}
		if result.Status == models.AttemptSent {
			updates["sent_at"] = time.Now()
			updates["provider_message_id"] = result.ProviderMessageID
		}
		if result.Err != nil {
			updates["last_error"] = result.Err.Error()
		}
		if err := WithStoreRetry(co.Logger, func() error {
			return co.DB.Model(&attempt).Updates(updates).Error
		}); err != nil {
			return err
		}

		if result.Status == models.AttemptSent {
			co.DB.Model(&models.Campaign{}).Where("id = ?", campaign.ID).
				Update("messages_sent", gorm.Expr("messages_sent + ?", 1))
			co.notify(campaign.ID, "attempt_sent", map[string]interface{}{
				"contractor_id": attempt.ContractorID,
				"channel":       attempt.Channel,
			})
		}
	}

	return nil
}

// EscalationResult reports what an escalation added.
type EscalationResult struct {
	Added       int         `json:"added"`
	AddedByTier map[int]int `json:"added_by_tier"`
	Status      string      `json:"status"`
}

// Escalate adds extra contractors not already in the campaign, preferring
// the requested tier then falling back in tier order.
func (co *CampaignOrchestrator) Escalate(campaignID uint, extraCount, tierPreference int) (*EscalationResult, error) {
	if extraCount <= 0 {
		return nil, models.NewAppError(models.ErrInvalidInput, "additional contractor count must be positive", false)
	}

	var campaign models.Campaign
	if err := co.DB.First(&campaign, campaignID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewAppError(models.ErrNotFound, "campaign not found", false)
		}
		return nil, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}
	if models.IsTerminalCampaignStatus(campaign.Status) {
		return nil, models.NewAppError(models.ErrInvalidInput,
			fmt.Sprintf("campaign is %s and cannot be escalated", campaign.Status), false)
	}

	var card models.BidCard
	if err := co.DB.First(&card, campaign.BidCardID).Error; err != nil {
		return nil, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}

	exclude, err := co.campaignContractorIDs(campaignID)
	if err != nil {
		return nil, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}

	tierOrder := []int{models.TierInternal, models.TierProspect, models.TierCold}
	if tierPreference >= models.TierInternal && tierPreference <= models.TierCold {
		reordered := []int{tierPreference}
		for _, t := range tierOrder {
			if t != tierPreference {
				reordered = append(reordered, t)
			}
		}
		tierOrder = reordered
	}

	result := &EscalationResult{AddedByTier: map[int]int{}}
	remaining := extraCount
	for _, tier := range tierOrder {
		if remaining == 0 {
			break
		}
		selected, err := co.Directory.Select(tier, remaining, card.Zip, exclude)
		if err != nil {
			return nil, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
		}
		if len(selected) == 0 {
			continue
		}
		if err := co.addContractors(&campaign, selected, "escalation"); err != nil {
			return nil, err
		}
		for _, tc := range selected {
			exclude[tc.ID] = true
		}
		result.Added += len(selected)
		result.AddedByTier[tier] += len(selected)
		remaining -= len(selected)
	}

	if result.Added > 0 {
		if err := WithStoreRetry(co.Logger, func() error {
			return co.DB.Model(&campaign).Update("status", models.CampaignEscalated).Error
		}); err != nil {
			return nil, err
		}
		campaign.Status = models.CampaignEscalated
		co.notify(campaign.ID, "campaign_escalated", map[string]interface{}{
			"added": result.Added,
		})
	}
	result.Status = campaign.Status

	logrus.WithFields(logrus.Fields{
		"campaign_id": campaignID,
		"requested":   extraCount,
		"added":       result.Added,
	}).Info("escalation processed")

	return result, nil
}

// RecordCallback applies a normalized channel event to its attempt,
// idempotently by provider message id.
func (co *CampaignOrchestrator) RecordCallback(event CallbackEvent) error {
	var attempt models.OutreachAttempt
	err := co.DB.Where("provider_message_id = ?", event.ProviderMessageID).First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.NewAppError(models.ErrNotFound, "no attempt for provider message id", false)
		}
		return models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}

	if attempt.Status == event.NewStatus {
		return nil // duplicate delivery of the same event
	}

	if err := WithStoreRetry(co.Logger, func() error {
		return co.DB.Model(&attempt).Update("status", event.NewStatus).Error
	}); err != nil {
		return err
	}

	switch event.NewStatus {
	case models.AttemptOpened:
		co.DB.Model(&models.Campaign{}).Where("id = ?", attempt.CampaignID).
			Update("open_count", gorm.Expr("open_count + ?", 1))
	case models.AttemptResponded:
		co.DB.Model(&models.Campaign{}).Where("id = ?", attempt.CampaignID).
			Update("response_count", gorm.Expr("response_count + ?", 1))
	}

	return nil
}

// CompleteCampaign marks a campaign done and cancels its remaining
// check-ins.
func (co *CampaignOrchestrator) CompleteCampaign(campaignID uint) error {
	return co.finishCampaign(campaignID, models.CampaignCompleted)
}

// ExpireCampaign marks a campaign expired, cancels remaining check-ins and
// emits a manual follow-up task.
func (co *CampaignOrchestrator) ExpireCampaign(campaign *models.Campaign, bidsReceived int) error {
	if err := co.finishCampaign(campaign.ID, models.CampaignExpired); err != nil {
		return err
	}
	task := models.ManualFollowUpTask{
		CampaignID:   campaign.ID,
		BidCardID:    campaign.BidCardID,
		BidsReceived: bidsReceived,
		BidsNeeded:   campaign.BidsNeeded,
		Notes: fmt.Sprintf("Campaign expired with %d of %d bids; manual outreach required",
			bidsReceived, campaign.BidsNeeded),
	}
	return WithStoreRetry(co.Logger, func() error {
		return co.DB.Create(&task).Error
	})
}

func (co *CampaignOrchestrator) finishCampaign(campaignID uint, status string) error {
	if err := WithStoreRetry(co.Logger, func() error {
		return co.DB.Model(&models.Campaign{}).Where("id = ?", campaignID).Updates(map[string]interface{}{
			"status":       status,
			"completed_at": time.Now(),
		}).Error
	}); err != nil {
		return err
	}

	// Terminal status cancels any future check-ins.
	if err := WithStoreRetry(co.Logger, func() error {
		return co.DB.Model(&models.CheckIn{}).
			Where("campaign_id = ? AND executed_at IS NULL AND canceled = ?", campaignID, false).
			Update("canceled", true).Error
	}); err != nil {
		return err
	}

	co.notify(campaignID, "campaign_"+status, nil)
	return nil
}

func (co *CampaignOrchestrator) campaignContractorIDs(campaignID uint) (map[uint]bool, error) {
	var members []models.CampaignContractor
	if err := co.DB.Where("campaign_id = ?", campaignID).Find(&members).Error; err != nil {
		return nil, err
	}
	ids := make(map[uint]bool, len(members))
	for _, m := range members {
		ids[m.ContractorID] = true
	}
	return ids, nil
}

// overRateLimit reports whether the channel already sent its per-minute
// budget across all campaigns.
func (co *CampaignOrchestrator) overRateLimit(channel OutreachChannel) (bool, error) {
	limit := channel.RatePerMinute()
	if limit <= 0 {
		return false, nil
	}
	var sent int64
	err := co.DB.Model(&models.OutreachAttempt{}).
		Where("channel = ? AND sent_at > ?", channel.Name(), time.Now().Add(-time.Minute)).
		Count(&sent).Error
	if err != nil {
		return false, err
	}
	return sent >= int64(limit), nil
}

func (co *CampaignOrchestrator) markAttemptFailed(attempt *models.OutreachAttempt, cause error) {
	if co.Logger != nil {
		co.Logger.Printf("Attempt %d failed: %v", attempt.ID, cause)
	}
	co.DB.Model(attempt).Updates(map[string]interface{}{
		"status":     models.AttemptFailed,
		"last_error": cause.Error(),
	})
}

func (co *CampaignOrchestrator) notify(campaignID uint, event string, payload map[string]interface{}) {
	if co.Notify != nil {
		co.Notify(campaignID, event, payload)
	}
}
