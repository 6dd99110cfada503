package controller

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"instabids/models"
	"instabids/utils"
	"instabids/worker"
)

type CampaignController struct {
	DB           *gorm.DB
	Logger       *log.Logger
	Orchestrator *utils.CampaignOrchestrator
}

func NewCampaignController(db *gorm.DB, logger *log.Logger, orchestrator *utils.CampaignOrchestrator) *CampaignController {
	return &CampaignController{
		DB:           db,
		Logger:       logger,
		Orchestrator: orchestrator,
	}
}

// respondAppError renders a structured error or falls back to a 500.
func respondAppError(c *fiber.Ctx, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return c.Status(appErr.HTTPStatus()).JSON(appErr)
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": err.Error(),
	})
}

// CreateCampaign builds the outreach strategy for a bid card and
// materializes the campaign with queued attempts and its check-in schedule.
func (cc *CampaignController) CreateCampaign(c *fiber.Ctx) error {
	var input struct {
		BidCardID     uint    `json:"bid_card_id" validate:"required"`
		ProjectType   string  `json:"project_type"`
		Zip           string  `json:"zip"`
		TimelineHours float64 `json:"timeline_hours"`
		UrgencyLevel  string  `json:"urgency_level"`
		BidsNeeded    int     `json:"bids_needed"`
	}

	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, err.Error(), false))
	}
	if input.TimelineHours <= 0 {
		if input.UrgencyLevel == "" {
			return respondAppError(c, models.NewAppError(models.ErrInvalidInput,
				"either timeline_hours or urgency_level is required", false))
		}
		input.TimelineHours = models.TimelineUrgency(input.UrgencyLevel)
	}
	if input.BidsNeeded <= 0 {
		input.BidsNeeded = 4
	}

	campaign, err := cc.Orchestrator.CreateCampaign(utils.CreateCampaignInput{
		BidCardID:     input.BidCardID,
		ProjectType:   input.ProjectType,
		Zip:           input.Zip,
		TimelineHours: input.TimelineHours,
		BidsNeeded:    input.BidsNeeded,
	})
	if err != nil {
		return respondAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"campaign_id": campaign.ID,
		"strategy":    campaign.Strategy,
	})
}

// GetCampaign returns a single campaign with attempts and check-ins.
func (cc *CampaignController) GetCampaign(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, "invalid campaign id", false))
	}

	var campaign models.Campaign
	if err := cc.DB.Preload("Attempts").Preload("CheckIns").First(&campaign, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondAppError(c, models.NewAppError(models.ErrNotFound, "campaign not found", false))
		}
		return respondAppError(c, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true))
	}

	return c.JSON(campaign)
}

// GetCampaigns lists campaigns, optionally filtered by bid card.
func (cc *CampaignController) GetCampaigns(c *fiber.Ctx) error {
	q := cc.DB.Order("id DESC")
	if bidCardID := c.QueryInt("bid_card_id"); bidCardID > 0 {
		q = q.Where("bid_card_id = ?", bidCardID)
	}

	var campaigns []models.Campaign
	if err := q.Find(&campaigns).Error; err != nil {
		return respondAppError(c, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true))
	}
	return c.JSON(campaigns)
}

// StartCampaign begins executing a scheduled campaign.
func (cc *CampaignController) StartCampaign(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, "invalid campaign id", false))
	}

	if err := cc.Orchestrator.ExecuteCampaign(uint(id)); err != nil {
		return respondAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Campaign started successfully",
	})
}

// StopCampaign pauses a running campaign; its pending check-ins are
// canceled by the status transition.
func (cc *CampaignController) StopCampaign(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, "invalid campaign id", false))
	}

	var campaign models.Campaign
	if err := cc.DB.First(&campaign, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondAppError(c, models.NewAppError(models.ErrNotFound, "campaign not found", false))
		}
		return respondAppError(c, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true))
	}

	if models.IsTerminalCampaignStatus(campaign.Status) {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput,
			"campaign is already "+campaign.Status, false))
	}

	if err := cc.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&campaign).Updates(map[string]interface{}{
			"status":       models.CampaignPaused,
			"completed_at": time.Now(),
		}).Error; err != nil {
			return err
		}
		return tx.Model(&models.CheckIn{}).
			Where("campaign_id = ? AND executed_at IS NULL AND canceled = ?", campaign.ID, false).
			Update("canceled", true).Error
	}); err != nil {
		return respondAppError(c, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true))
	}

	return c.JSON(fiber.Map{
		"message": "Campaign paused successfully",
	})
}

// GetCheckInStatus reports current progress against the expected curve.
func (cc *CampaignController) GetCheckInStatus(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, "invalid campaign id", false))
	}

	var campaign models.Campaign
	if err := cc.DB.First(&campaign, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondAppError(c, models.NewAppError(models.ErrNotFound, "campaign not found", false))
		}
		return respondAppError(c, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true))
	}

	var card models.BidCard
	if err := cc.DB.First(&card, campaign.BidCardID).Error; err != nil {
		return respondAppError(c, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true))
	}

	// The threshold is the most recent scheduled check-in's; before the
	// first check-in the expected count is zero.
	expected := 0
	escalationLevel := 0
	now := time.Now()
	for i, at := range campaign.Strategy.CheckInTimes {
		if now.After(at) || now.Equal(at) {
			expected = campaign.Strategy.EscalationThresholds[i]
			escalationLevel = i + 1
		}
	}

	status := worker.EvaluateCheckIn(&campaign, &card, expected)
	additional := 0
	for _, n := range status.AdditionalContractors {
		additional += n
	}

	return c.JSON(fiber.Map{
		"bids_received":                  status.BidsReceived,
		"bids_expected":                  status.BidsExpected,
		"on_track":                       status.OnTrack,
		"escalation_needed":              status.EscalationNeeded,
		"escalation_level":               escalationLevel,
		"additional_contractors_needed":  additional,
		"additional_contractors_by_tier": status.AdditionalContractors,
	})
}

// EscalateCampaign adds contractors mid-campaign.
func (cc *CampaignController) EscalateCampaign(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, "invalid campaign id", false))
	}

	var input struct {
		AdditionalContractors int `json:"additional_contractors" validate:"required,gte=1"`
		TierPreference        int `json:"tier_preference" validate:"gte=0,lte=3"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, err.Error(), false))
	}

	result, err := cc.Orchestrator.Escalate(uint(id), input.AdditionalContractors, input.TierPreference)
	if err != nil {
		return respondAppError(c, err)
	}

	return c.JSON(result)
}

// ListFollowUpTasks returns unresolved manual follow-up tasks from expired
// campaigns.
func (cc *CampaignController) ListFollowUpTasks(c *fiber.Ctx) error {
	var tasks []models.ManualFollowUpTask
	if err := cc.DB.Where("resolved = ?", false).Order("id DESC").Find(&tasks).Error; err != nil {
		return respondAppError(c, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true))
	}
	return c.JSON(tasks)
}
