package controller

import (
	"log"

	"github.com/badoux/checkmail"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"instabids/models"
	"instabids/utils"
)

type ContractorController struct {
	DB        *gorm.DB
	Logger    *log.Logger
	Directory *utils.ContractorDirectory
}

func NewContractorController(db *gorm.DB, logger *log.Logger, directory *utils.ContractorDirectory) *ContractorController {
	return &ContractorController{
		DB:        db,
		Logger:    logger,
		Directory: directory,
	}
}

type contractorInput struct {
	Tier            int     `json:"tier" validate:"required,gte=1,lte=3"`
	CompanyName     string  `json:"company_name" validate:"required"`
	ContactName     string  `json:"contact_name"`
	Email           string  `json:"email"`
	Phone           string  `json:"phone"`
	Website         string  `json:"website"`
	FormURL         string  `json:"form_url"`
	Specialties     string  `json:"specialties"`
	City            string  `json:"city"`
	State           string  `json:"state"`
	ServiceZips     string  `json:"service_zips" validate:"required"`
	EnrichmentScore float64 `json:"enrichment_score" validate:"gte=0,lte=1"`
}

// CreateContractor registers a contractor at the tier matching its
// relationship depth.
func (cn *ContractorController) CreateContractor(c *fiber.Ctx) error {
	var input contractorInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, err.Error(), false))
	}
	if input.Email != "" {
		if err := checkmail.ValidateFormat(input.Email); err != nil {
			return respondAppError(c, models.NewAppError(models.ErrInvalidInput, "invalid email format", false))
		}
	}
	if input.Email == "" && input.FormURL == "" {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput,
			"contractor needs at least one contact channel (email or form_url)", false))
	}

	row := models.Contractor{
		Tier: input.Tier,
		ContractorProfile: models.ContractorProfile{
			CompanyName:     input.CompanyName,
			ContactName:     input.ContactName,
			Email:           input.Email,
			Phone:           input.Phone,
			Website:         input.Website,
			FormURL:         input.FormURL,
			Specialties:     input.Specialties,
			City:            input.City,
			State:           input.State,
			ServiceZips:     input.ServiceZips,
			IsAvailable:     utils.Pointer(true),
			EnrichmentScore: input.EnrichmentScore,
		},
	}
	if input.Tier == models.TierInternal {
		row.ResponseRate = 0.9
	}
	if err := cn.DB.Create(&row).Error; err != nil {
		return respondAppError(c, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"id":   row.ID,
		"tier": row.Tier,
	})
}

// GetAvailability reports per-tier availability for a zip code.
func (cn *ContractorController) GetAvailability(c *fiber.Ctx) error {
	zip := c.Query("zip")
	if zip == "" {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, "zip is required", false))
	}

	t1, t2, t3, err := cn.Directory.Availability(zip)
	if err != nil {
		return respondAppError(c, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true))
	}

	return c.JSON(fiber.Map{
		"zip":              zip,
		"tier_1_available": t1,
		"tier_2_available": t2,
		"tier_3_available": t3,
	})
}

// PromoteContractor moves a contractor up one tier: a cold lead becomes a
// prospect, a prospect becomes an internal contractor.
func (cn *ContractorController) PromoteContractor(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, "invalid contractor id", false))
	}

	var input struct {
		FromTier int `json:"from_tier" validate:"required,gte=2,lte=3"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, err.Error(), false))
	}

	var promoted *models.Contractor
	if input.FromTier == models.TierCold {
		promoted, err = cn.Directory.PromoteLead(uint(id))
	} else {
		promoted, err = cn.Directory.PromoteProspect(uint(id))
	}
	if err != nil {
		return respondAppError(c, err)
	}
	return c.JSON(fiber.Map{
		"id":   promoted.ID,
		"tier": promoted.Tier,
	})
}
