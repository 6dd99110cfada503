package models

import (
	"time"

	"gorm.io/gorm"
)

// Campaign statuses
const (
	CampaignScheduled = "scheduled"
	CampaignActive    = "active"
	CampaignPaused    = "paused"
	CampaignEscalated = "escalated"
	CampaignCompleted = "completed"
	CampaignExpired   = "expired"
)

// IsTerminalCampaignStatus reports whether a status cancels future check-ins.
// Escalated campaigns keep running their remaining check-ins.
func IsTerminalCampaignStatus(status string) bool {
	switch status {
	case CampaignCompleted, CampaignExpired, CampaignPaused:
		return true
	}
	return false
}

// Outreach channels
const (
	ChannelEmail       = "email"
	ChannelSMS         = "sms"
	ChannelWebsiteForm = "website_form"
)

// Outreach attempt statuses
const (
	AttemptQueued    = "queued"
	AttemptSent      = "sent"
	AttemptDelivered = "delivered"
	AttemptOpened    = "opened"
	AttemptClicked   = "clicked"
	AttemptResponded = "responded"
	AttemptBounced   = "bounced"
	AttemptFailed    = "failed"
)

// Check-in actions
const (
	CheckInActionNone             = "none"
	CheckInActionAddTier2         = "add_tier2"
	CheckInActionAddTier3         = "add_tier3"
	CheckInActionWidenChannels    = "widen_channels"
	CheckInActionManualEscalation = "manual_escalation"
)

// Campaign is one time-bounded outreach run for a bid card.
type Campaign struct {
	gorm.Model
	BidCardID uint `gorm:"not null;index" json:"bid_card_id"`

	Status     string  `gorm:"default:'scheduled';index" json:"status"`
	BidsNeeded int     `gorm:"not null" json:"bids_needed"`
	TimelineHours float64 `gorm:"not null" json:"timeline_hours"`
	DeadlineAt time.Time `gorm:"not null;index" json:"deadline_at"`
	StartedAt  *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`

	// Frozen strategy from the timing engine
	Strategy OutreachStrategy `gorm:"type:jsonb;serializer:json" json:"strategy"`

	// Statistics (denormalized for performance)
	MessagesSent  int `gorm:"default:0" json:"messages_sent"`
	OpenCount     int `gorm:"default:0" json:"open_count"`
	ResponseCount int `gorm:"default:0" json:"response_count"`
	BidsReceived  int `gorm:"default:0" json:"bids_received"`

	// Relations
	Attempts    []OutreachAttempt    `gorm:"foreignKey:CampaignID" json:"attempts,omitempty"`
	CheckIns    []CheckIn            `gorm:"foreignKey:CampaignID" json:"check_ins,omitempty"`
	Contractors []CampaignContractor `gorm:"foreignKey:CampaignID" json:"contractors,omitempty"`
}

func (Campaign) TableName() string {
	return "outreach_campaigns"
}

// OutreachAttempt is one contact of one contractor over one channel.
// (campaign_id, contractor_id, channel) is unique; re-running campaign
// creation is idempotent because duplicate attempts are suppressed.
type OutreachAttempt struct {
	gorm.Model
	CampaignID   uint   `gorm:"not null;index;uniqueIndex:idx_attempt_contact,priority:1" json:"campaign_id"`
	ContractorID uint   `gorm:"not null;uniqueIndex:idx_attempt_contact,priority:2" json:"contractor_id"`
	Channel      string `gorm:"not null;uniqueIndex:idx_attempt_contact,priority:3" json:"channel"`
	Tier         int    `gorm:"not null;index" json:"tier"`

	Status            string     `gorm:"default:'queued';index" json:"status"`
	SentAt            *time.Time `json:"sent_at"`
	EarliestSendAt    *time.Time `json:"earliest_send_at"` // set when re-queued by back-pressure
	ProviderMessageID string     `gorm:"index" json:"provider_message_id"`
	LastError         string     `json:"last_error"`
}

func (OutreachAttempt) TableName() string {
	return "contractor_outreach_attempts"
}

// CheckIn is a scheduled reconciliation between expected and observed bids.
// Per campaign, scheduled times are strictly increasing and precede the
// deadline.
type CheckIn struct {
	gorm.Model
	CampaignID   uint       `gorm:"not null;index" json:"campaign_id"`
	ScheduledAt  time.Time  `gorm:"not null;index" json:"scheduled_at"`
	ExecutedAt   *time.Time `json:"executed_at"`
	BidsExpected int        `gorm:"not null" json:"bids_expected"`
	BidsObserved int        `gorm:"default:0" json:"bids_observed"`
	OnTrack      bool       `gorm:"default:false" json:"on_track"`
	ActionTaken  string     `gorm:"default:'none'" json:"action_taken"`
	Canceled     bool       `gorm:"default:false;index" json:"canceled"`
}

func (CheckIn) TableName() string {
	return "campaign_check_ins"
}

// CampaignContractor records a contractor's membership in a campaign,
// including escalation additions.
type CampaignContractor struct {
	gorm.Model
	CampaignID   uint   `gorm:"not null;index;uniqueIndex:idx_campaign_contractor,priority:1" json:"campaign_id"`
	ContractorID uint   `gorm:"not null;uniqueIndex:idx_campaign_contractor,priority:2" json:"contractor_id"`
	Tier         int    `gorm:"not null" json:"tier"`
	AddedBy      string `gorm:"default:'initial'" json:"added_by"` // initial, escalation, manual
}

func (CampaignContractor) TableName() string {
	return "campaign_contractors"
}

// ManualFollowUpTask is emitted when a campaign expires short of its target.
type ManualFollowUpTask struct {
	gorm.Model
	CampaignID   uint   `gorm:"not null;index" json:"campaign_id"`
	BidCardID    uint   `gorm:"not null;index" json:"bid_card_id"`
	BidsReceived int    `json:"bids_received"`
	BidsNeeded   int    `json:"bids_needed"`
	Notes        string `gorm:"type:text" json:"notes"`
	Resolved     bool   `gorm:"default:false;index" json:"resolved"`
}

func (ManualFollowUpTask) TableName() string {
	return "manual_followup_tasks"
}
