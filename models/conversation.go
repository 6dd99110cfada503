package models

import (
	"time"

	"gorm.io/gorm"
)

// Sender types
const (
	SenderHomeowner  = "homeowner"
	SenderContractor = "contractor"
	SenderSystem     = "system"
)

// Message types
const (
	MessageText         = "text"
	MessageSystem       = "system"
	MessageBidUpdate    = "bid_update"
	MessageStatusChange = "status_change"
)

// Conversation statuses
const (
	ConversationActive = "active"
	ConversationClosed = "closed"
)

// Conversation is the single channel between one homeowner and one
// contractor on one bid card. The (bid_card_id, contractor_id) pair is
// unique; the alias is assigned in insertion order per bid card and never
// changes.
type Conversation struct {
	gorm.Model
	BidCardID       uint   `gorm:"not null;index;uniqueIndex:idx_conversation_parties,priority:1" json:"bid_card_id"`
	HomeownerID     uint   `gorm:"not null;index" json:"homeowner_id"`
	ContractorID    uint   `gorm:"not null;uniqueIndex:idx_conversation_parties,priority:2" json:"contractor_id"`
	ContractorAlias string `gorm:"not null" json:"contractor_alias"`
	Status          string `gorm:"default:'active'" json:"status"`
	LastMessageAt   *time.Time `json:"last_message_at"`

	// Relations
	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// FilterReason records one content rewrite for audit.
type FilterReason struct {
	Category    string `json:"category"` // phone, email, contact_request, keyword
	Pattern     string `json:"pattern"`
	Severity    string `json:"severity"` // low, medium, high
	MatchedText string `json:"matched_text"`
	Replacement string `json:"replacement"`
}

// Message is one filtered message in a conversation. OriginalContent is
// stored for audit only and never transmitted to the recipient.
type Message struct {
	gorm.Model
	ConversationID uint   `gorm:"not null;index" json:"conversation_id"`
	SenderType     string `gorm:"not null" json:"sender_type"`
	SenderID       uint   `gorm:"not null" json:"sender_id"`

	OriginalContent string         `gorm:"type:text" json:"-"`
	FilteredContent string         `gorm:"type:text" json:"filtered_content"`
	ContentFiltered bool           `gorm:"default:false" json:"content_filtered"`
	FilterReasons   []FilterReason `gorm:"type:jsonb;serializer:json" json:"filter_reasons"`

	MessageType string            `gorm:"default:'text'" json:"message_type"`
	Metadata    map[string]string `gorm:"type:jsonb;serializer:json" json:"metadata,omitempty"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`

	// Relations
	Attachments []MessageAttachment `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
}

func (Message) TableName() string {
	return "messaging_system_messages"
}

// MessageAttachment references a file attached to a message.
type MessageAttachment struct {
	gorm.Model
	MessageID uint   `gorm:"not null;index" json:"message_id"`
	Type      string `gorm:"not null" json:"type"`
	URL       string `gorm:"not null" json:"url"`
	Name      string `json:"name"`
	Size      int64  `json:"size"`
	Mime      string `json:"mime"`
}

func (MessageAttachment) TableName() string {
	return "message_attachments"
}

// ContentFilterRule is one persisted rewriting rule. Rules are evaluated in
// insertion order (ascending ID).
type ContentFilterRule struct {
	gorm.Model
	RuleType    string `gorm:"not null" json:"rule_type"` // regex, keyword
	Pattern     string `gorm:"not null" json:"pattern"`
	Replacement string `gorm:"not null" json:"replacement"`
	Severity    string `gorm:"default:'medium'" json:"severity"`
	Category    string `gorm:"not null" json:"category"`
	// Pointer so that an explicit false survives the column default on insert.
	IsActive *bool `gorm:"default:true;index" json:"is_active"`
}

func (ContentFilterRule) TableName() string {
	return "content_filter_rules"
}
