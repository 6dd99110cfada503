package utils

import (
	"log"
	"time"

	"gorm.io/gorm"

	"instabids/models"
)

// AttachmentInput describes one attachment on an incoming message.
type AttachmentInput struct {
	Type string `json:"type" validate:"required"`
	URL  string `json:"url" validate:"required"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	Mime string `json:"mime"`
}

// MessageInput is one message entering the pipeline.
type MessageInput struct {
	Route       RouteInput
	Content     string
	MessageType string
	Metadata    map[string]string
	Attachments []AttachmentInput
}

// MessagePipeline runs every message through conversation resolution and
// the content filter before it reaches the store. Only text messages are
// filtered; system messages pass through untouched.
type MessagePipeline struct {
	DB     *gorm.DB
	Logger *log.Logger
	Filter *ContentFilter
	Router *ConversationRouter

	// Notify is called after a successful append for the websocket feed.
	Notify func(conversationID uint, message *models.Message)
}

func NewMessagePipeline(db *gorm.DB, logger *log.Logger, filter *ContentFilter, router *ConversationRouter) *MessagePipeline {
	return &MessagePipeline{
		DB:     db,
		Logger: logger,
		Filter: filter,
		Router: router,
	}
}

// Process resolves the conversation, filters the content and appends the
// message with its attachments. The conversation's last_message_at is
// bumped in the same transaction.
func (mp *MessagePipeline) Process(in MessageInput) (*models.Message, *models.Conversation, error) {
	if in.Content == "" {
		return nil, nil, models.NewAppError(models.ErrInvalidInput, "message content is required", false)
	}
	if in.MessageType == "" {
		in.MessageType = models.MessageText
	}

	conv, err := mp.Router.Resolve(in.Route)
	if err != nil {
		return nil, nil, err
	}

	filtered := FilterResult{
		Original:      in.Content,
		Filtered:      in.Content,
		FilterReasons: []models.FilterReason{},
	}
	if in.MessageType == models.MessageText {
		filtered = mp.Filter.Filter(in.Content)
	}

	message := models.Message{
		ConversationID:  conv.ID,
		SenderType:      in.Route.SenderType,
		SenderID:        in.Route.SenderID,
		OriginalContent: filtered.Original,
		FilteredContent: filtered.Filtered,
		ContentFiltered: filtered.ContentFiltered,
		FilterReasons:   filtered.FilterReasons,
		MessageType:     in.MessageType,
		Metadata:        in.Metadata,
		IsRead:          false,
	}

	err = WithStoreRetry(mp.Logger, func() error {
		return mp.DB.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&message).Error; err != nil {
				return err
			}
			for _, a := range in.Attachments {
				attachment := models.MessageAttachment{
					MessageID: message.ID,
					Type:      a.Type,
					URL:       a.URL,
					Name:      a.Name,
					Size:      a.Size,
					Mime:      a.Mime,
				}
				if err := tx.Create(&attachment).Error; err != nil {
					return err
				}
			}
			return tx.Model(&models.Conversation{}).Where("id = ?", conv.ID).
				Update("last_message_at", time.Now()).Error
		})
	})
	if err != nil {
		return nil, nil, err
	}

	if mp.Notify != nil {
		mp.Notify(conv.ID, &message)
	}
	return &message, conv, nil
}

// MarkRead flips messages to read for the given reader side and stamps
// read_at. A reader only marks the other side's messages.
func (mp *MessagePipeline) MarkRead(conversationID uint, messageIDs []uint, readerType string) (int64, error) {
	q := mp.DB.Model(&models.Message{}).
		Where("conversation_id = ? AND is_read = ?", conversationID, false).
		Where("sender_type <> ?", readerType)
	if len(messageIDs) > 0 {
		q = q.Where("id IN ?", messageIDs)
	}
	res := q.Updates(map[string]interface{}{
		"is_read": true,
		"read_at": time.Now(),
	})
	if res.Error != nil {
		return 0, models.NewAppError(models.ErrStoreUnavailable, res.Error.Error(), true)
	}
	return res.RowsAffected, nil
}

// UnreadCount aggregates unread messages addressed to the given side.
func (mp *MessagePipeline) UnreadCount(conversationID uint, recipientType string) (int64, error) {
	var n int64
	err := mp.DB.Model(&models.Message{}).
		Where("conversation_id = ? AND is_read = ? AND sender_type <> ?",
			conversationID, false, recipientType).
		Count(&n).Error
	if err != nil {
		return 0, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true)
	}
	return n, nil
}
