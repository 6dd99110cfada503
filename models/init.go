package models

import (
	"gorm.io/gorm"
)

// Migrate creates or updates the schema for every core table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&BidCard{},
		&Contractor{},
		&Campaign{},
		&OutreachAttempt{},
		&CheckIn{},
		&CampaignContractor{},
		&ManualFollowUpTask{},
		&Conversation{},
		&Message{},
		&MessageAttachment{},
		&ContentFilterRule{},
	)
}
