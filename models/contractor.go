package models

import (
	"time"

	"gorm.io/gorm"
)

// Contractor tiers. A contractor holds exactly one tier at a time and only
// moves up (3 -> 2 -> 1). Promotion updates the tier column in place, so
// outreach attempts, campaign membership and conversations keep pointing at
// the same row.
const (
	TierInternal = 1
	TierProspect = 2
	TierCold     = 3
)

// ContractorProfile carries the contact and coverage fields of a contractor.
type ContractorProfile struct {
	CompanyName string `gorm:"not null" json:"company_name"`
	ContactName string `json:"contact_name"`
	Email       string `gorm:"index" json:"email"`
	Phone       string `json:"phone"`
	Website     string `json:"website"`
	FormURL     string `json:"form_url"` // website contact form, if discovered

	Specialties string `json:"specialties"` // comma-separated service specialties
	City        string `json:"city"`
	State       string `json:"state"`
	ServiceZips string `gorm:"index" json:"service_zips"` // comma-separated zip codes served

	// Pointer so that an explicit false survives the column default on insert.
	IsAvailable     *bool   `gorm:"default:true" json:"is_available"`
	EnrichmentScore float64 `gorm:"default:0" json:"enrichment_score"` // 0-1 completeness

	LastContactedAt *time.Time `json:"last_contacted_at"`
}

// Contractor is one business the platform can contact. Tier 1 is an
// internal contractor previously engaged on the platform (assumed response
// rate 0.90), Tier 2 a prospect with partial enrichment, Tier 3 a freshly
// discovered cold lead. The row ID is the contractor's identity across
// attempts, campaigns and conversations regardless of tier moves.
type Contractor struct {
	gorm.Model
	Tier int `gorm:"not null;index;default:3" json:"tier"`
	ContractorProfile

	Source       string     `json:"source"` // discovery source, tiers 2-3
	DiscoveredAt *time.Time `json:"discovered_at"`
	PromotedAt   *time.Time `json:"promoted_at"`

	TotalJobs    int     `gorm:"default:0" json:"total_jobs"`
	TotalBids    int     `gorm:"default:0" json:"total_bids"`
	ResponseRate float64 `gorm:"default:0" json:"response_rate"`
}

func (Contractor) TableName() string {
	return "contractors"
}
