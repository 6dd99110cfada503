package models

import (
	"time"

	"gorm.io/gorm"
)

// Bid card statuses. Transitions are monotonic except active <-> collecting_bids.
const (
	BidCardDraft          = "draft"
	BidCardActive         = "active"
	BidCardCollectingBids = "collecting_bids"
	BidCardBidsComplete   = "bids_complete"
	BidCardClosed         = "closed"
)

// Service types accepted on bid cards.
const (
	ServiceInstallation    = "installation"
	ServiceRepair          = "repair"
	ServiceOngoing         = "ongoing_service"
	ServiceHandyman        = "handyman"
	ServiceApplianceRepair = "appliance_repair"
	ServiceLaborOnly       = "labor_only"
)

// BidCard represents a homeowner project that campaigns target
type BidCard struct {
	gorm.Model
	BidCardNumber string `gorm:"uniqueIndex;not null" json:"bid_card_number"`
	HomeownerID   uint   `gorm:"not null;index" json:"homeowner_id"`

	// Project details
	ProjectType  string `gorm:"not null" json:"project_type"`
	ServiceType  string `gorm:"not null" json:"service_type"`
	UrgencyLevel string `gorm:"not null" json:"urgency_level"` // emergency, urgent, week, month, flexible
	Description  string `gorm:"type:text" json:"description"`

	// Budget
	BudgetMin float64 `json:"budget_min"`
	BudgetMax float64 `json:"budget_max"`

	// Location
	City  string `json:"city"`
	State string `json:"state"`
	Zip   string `gorm:"index" json:"zip"`

	ContractorCountNeeded int    `gorm:"default:4" json:"contractor_count_needed"`
	Status                string `gorm:"default:'draft';index" json:"status"`

	// Open document holding submitted bids, extracted requirements and media.
	// Mutated under optimistic concurrency via DocumentVersion.
	BidDocument     BidDocument `gorm:"type:jsonb;serializer:json" json:"bid_document"`
	DocumentVersion int         `gorm:"default:0" json:"document_version"`

	// Relations
	Campaigns     []Campaign     `gorm:"foreignKey:BidCardID" json:"campaigns,omitempty"`
	Conversations []Conversation `gorm:"foreignKey:BidCardID" json:"conversations,omitempty"`
}

func (BidCard) TableName() string {
	return "bid_cards"
}

// BidDocument is the structured payload carried on a bid card.
type BidDocument struct {
	SubmittedBids []SubmittedBid    `json:"submitted_bids"`
	Requirements  []string          `json:"requirements,omitempty"`
	MediaURLs     []string          `json:"media_urls,omitempty"`
	ExtractedInfo map[string]string `json:"extracted_info,omitempty"`
}

// SubmittedBid is one contractor's bid inside the bid document.
// No duplicate ContractorID may appear in a document.
type SubmittedBid struct {
	ContractorID    uint      `json:"contractor_id"`
	Amount          float64   `json:"amount"`
	TimelineDays    int       `json:"timeline_days,omitempty"`
	Message         string    `json:"message,omitempty"`
	SubmittedAt     time.Time `json:"submitted_at"`
	ContractorAlias string    `json:"contractor_alias,omitempty"`
}

// BidsReceived counts distinct contractors in the submitted bids.
func (d BidDocument) BidsReceived() int {
	seen := make(map[uint]struct{}, len(d.SubmittedBids))
	for _, b := range d.SubmittedBids {
		seen[b.ContractorID] = struct{}{}
	}
	return len(seen)
}

// HasBidFrom reports whether the contractor already submitted a bid.
func (d BidDocument) HasBidFrom(contractorID uint) bool {
	for _, b := range d.SubmittedBids {
		if b.ContractorID == contractorID {
			return true
		}
	}
	return false
}

// The engine and the bid card persist different urgency vocabularies.
// Engine: emergency | urgent | standard | flexible | planning (from hours).
// Bid card: emergency | urgent | week | month | flexible.

// UrgencyFromTimeline maps an engine urgency level to the persisted
// bid-card vocabulary.
func UrgencyFromTimeline(engineLevel string) string {
	switch engineLevel {
	case "emergency":
		return "emergency"
	case "urgent":
		return "urgent"
	case "standard":
		return "week"
	case "flexible":
		return "month"
	case "planning":
		return "flexible"
	default:
		return "week"
	}
}

// TimelineUrgency maps a persisted bid-card urgency back to representative
// timeline hours, used when a card carries no explicit timeline.
func TimelineUrgency(cardLevel string) float64 {
	switch cardLevel {
	case "emergency":
		return 4
	case "urgent":
		return 24
	case "week":
		return 72
	case "month":
		return 168
	case "flexible":
		return 336
	default:
		return 72
	}
}
