package controller

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"instabids/models"
	"instabids/utils"
)

type BidCardController struct {
	DB           *gorm.DB
	Logger       *log.Logger
	Orchestrator *utils.CampaignOrchestrator
}

func NewBidCardController(db *gorm.DB, logger *log.Logger, orchestrator *utils.CampaignOrchestrator) *BidCardController {
	return &BidCardController{
		DB:           db,
		Logger:       logger,
		Orchestrator: orchestrator,
	}
}

// CreateBidCard opens a new bid card in draft status.
func (bc *BidCardController) CreateBidCard(c *fiber.Ctx) error {
	var input struct {
		HomeownerID           uint    `json:"homeowner_id" validate:"required"`
		ProjectType           string  `json:"project_type" validate:"required"`
		ServiceType           string  `json:"service_type" validate:"required"`
		UrgencyLevel          string  `json:"urgency_level" validate:"required,oneof=emergency urgent week month flexible"`
		Description           string  `json:"description"`
		BudgetMin             float64 `json:"budget_min" validate:"gte=0"`
		BudgetMax             float64 `json:"budget_max" validate:"gte=0"`
		City                  string  `json:"city"`
		State                 string  `json:"state"`
		Zip                   string  `json:"zip" validate:"required"`
		ContractorCountNeeded int     `json:"contractor_count_needed"`
	}

	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, err.Error(), false))
	}
	if input.BudgetMax > 0 && input.BudgetMin > input.BudgetMax {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput,
			"budget_min cannot exceed budget_max", false))
	}
	if input.ContractorCountNeeded <= 0 {
		input.ContractorCountNeeded = 4
	}

	card := models.BidCard{
		BidCardNumber:         utils.GenerateBidCardNumber(),
		HomeownerID:           input.HomeownerID,
		ProjectType:           input.ProjectType,
		ServiceType:           input.ServiceType,
		UrgencyLevel:          input.UrgencyLevel,
		Description:           input.Description,
		BudgetMin:             input.BudgetMin,
		BudgetMax:             input.BudgetMax,
		City:                  input.City,
		State:                 input.State,
		Zip:                   input.Zip,
		ContractorCountNeeded: input.ContractorCountNeeded,
		Status:                models.BidCardDraft,
	}
	if err := bc.DB.Create(&card).Error; err != nil {
		return respondAppError(c, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true))
	}

	return c.Status(fiber.StatusCreated).JSON(card)
}

// GetBidCard returns one bid card with its campaigns.
func (bc *BidCardController) GetBidCard(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, "invalid bid card id", false))
	}

	var card models.BidCard
	if err := bc.DB.Preload("Campaigns").First(&card, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondAppError(c, models.NewAppError(models.ErrNotFound, "bid card not found", false))
		}
		return respondAppError(c, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true))
	}

	return c.JSON(card)
}

// SubmitBid appends a contractor's bid to the bid card document. When the
// target count is reached the card flips to bids_complete and any running
// campaigns are wrapped up.
func (bc *BidCardController) SubmitBid(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, "invalid bid card id", false))
	}

	var input struct {
		ContractorID uint    `json:"contractor_id" validate:"required"`
		Amount       float64 `json:"amount" validate:"required,gt=0"`
		TimelineDays int     `json:"timeline_days" validate:"gte=0"`
		Message      string  `json:"message"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, err.Error(), false))
	}

	card, err := utils.AppendSubmittedBid(bc.DB, uint(id), models.SubmittedBid{
		ContractorID: input.ContractorID,
		Amount:       input.Amount,
		TimelineDays: input.TimelineDays,
		Message:      input.Message,
		SubmittedAt:  time.Now(),
	})
	if err != nil {
		return respondAppError(c, err)
	}

	if card.Status == models.BidCardBidsComplete {
		var campaigns []models.Campaign
		if err := bc.DB.Where("bid_card_id = ? AND status IN ?",
			card.ID, []string{models.CampaignActive, models.CampaignEscalated, models.CampaignScheduled}).
			Find(&campaigns).Error; err == nil {
			for _, campaign := range campaigns {
				if err := bc.Orchestrator.CompleteCampaign(campaign.ID); err != nil {
					bc.Logger.Printf("Completing campaign %d after final bid failed: %v", campaign.ID, err)
				}
			}
		}
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"bid_card_id":    card.ID,
		"bids_received":  card.BidDocument.BidsReceived(),
		"bids_needed":    card.ContractorCountNeeded,
		"status":         card.Status,
		"document_version": card.DocumentVersion,
	})
}
