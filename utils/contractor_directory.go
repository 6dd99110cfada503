package utils

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"instabids/models"
)

// ContractorDirectory answers per-tier availability questions and selects
// contractors for campaigns. All tiers live in one contractors table; the
// tier column is an attribute of the relationship, not part of identity.
type ContractorDirectory struct {
	DB     *gorm.DB
	Logger *log.Logger
}

func NewContractorDirectory(db *gorm.DB, logger *log.Logger) *ContractorDirectory {
	return &ContractorDirectory{DB: db, Logger: logger}
}

func (cd *ContractorDirectory) available(tier int, zip string) *gorm.DB {
	q := cd.DB.Model(&models.Contractor{}).
		Where("tier = ? AND is_available = ?", tier, true)
	if zip != "" {
		q = q.Where("service_zips LIKE ?", "%"+zip+"%")
	}
	return q
}

// Availability returns how many available contractors each tier has for the
// given area.
func (cd *ContractorDirectory) Availability(zip string) (t1, t2, t3 int, err error) {
	count := func(tier int) (int, error) {
		var n int64
		if err := cd.available(tier, zip).Count(&n).Error; err != nil {
			return 0, err
		}
		return int(n), nil
	}

	if t1, err = count(models.TierInternal); err != nil {
		return
	}
	if t2, err = count(models.TierProspect); err != nil {
		return
	}
	t3, err = count(models.TierCold)
	return
}

// Select picks up to limit available contractors from one tier, most
// enriched first, skipping contractors already in the campaign.
func (cd *ContractorDirectory) Select(tier, limit int, zip string, exclude map[uint]bool) ([]models.Contractor, error) {
	if limit <= 0 {
		return nil, nil
	}

	var rows []models.Contractor
	err := cd.available(tier, zip).
		Order("enrichment_score DESC, id ASC").
		Limit(limit + len(exclude)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	picked := make([]models.Contractor, 0, limit)
	for _, r := range rows {
		if exclude[r.ID] {
			continue
		}
		picked = append(picked, r)
		if len(picked) == limit {
			break
		}
	}
	return picked, nil
}

// Get loads one contractor by id.
func (cd *ContractorDirectory) Get(id uint) (*models.Contractor, error) {
	var c models.Contractor
	if err := cd.DB.First(&c, id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// FindByEmail looks a contractor up by address, preferring the highest
// tier when the same address somehow appears twice. Used by the reply
// worker to attribute inbound email.
func (cd *ContractorDirectory) FindByEmail(email string) (*models.Contractor, error) {
	var c models.Contractor
	if err := cd.DB.Where("email = ?", email).
		Order("tier ASC, id ASC").First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// PromoteLead raises a Tier 3 lead to prospect. Tier moves are upgrades
// only, never downgrades, and keep the contractor's row ID.
func (cd *ContractorDirectory) PromoteLead(id uint) (*models.Contractor, error) {
	return cd.promote(id, models.TierCold, models.TierProspect)
}

// PromoteProspect raises a Tier 2 prospect to internal contractor after a
// first engagement.
func (cd *ContractorDirectory) PromoteProspect(id uint) (*models.Contractor, error) {
	return cd.promote(id, models.TierProspect, models.TierInternal)
}

func (cd *ContractorDirectory) promote(id uint, from, to int) (*models.Contractor, error) {
	var c models.Contractor
	if err := cd.DB.First(&c, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewAppError(models.ErrNotFound, "contractor not found", false)
		}
		return nil, err
	}
	if c.Tier != from {
		return nil, models.NewAppError(models.ErrInvalidInput,
			fmt.Sprintf("contractor %d is tier %d, expected tier %d", id, c.Tier, from), false)
	}

	now := time.Now()
	updates := map[string]interface{}{
		"tier":        to,
		"promoted_at": now,
	}
	if to == models.TierInternal {
		updates["response_rate"] = 0.9
	}
	if err := cd.DB.Model(&c).Updates(updates).Error; err != nil {
		return nil, err
	}

	c.Tier = to
	c.PromotedAt = &now
	if to == models.TierInternal {
		c.ResponseRate = 0.9
	}
	if cd.Logger != nil {
		cd.Logger.Printf("Promoted contractor %d (%s) to tier %d", c.ID, c.CompanyName, to)
	}
	return &c, nil
}
