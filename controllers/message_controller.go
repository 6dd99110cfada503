package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"instabids/models"
	"instabids/utils"
)

type MessageController struct {
	DB       *gorm.DB
	Logger   *log.Logger
	Pipeline *utils.MessagePipeline
}

func NewMessageController(db *gorm.DB, logger *log.Logger, pipeline *utils.MessagePipeline) *MessageController {
	return &MessageController{
		DB:       db,
		Logger:   logger,
		Pipeline: pipeline,
	}
}

type sendMessageInput struct {
	BidCardID          uint                    `json:"bid_card_id" validate:"required"`
	SenderType         string                  `json:"sender_type" validate:"required,oneof=homeowner contractor system"`
	SenderID           uint                    `json:"sender_id" validate:"required"`
	ConversationID     *uint                   `json:"conversation_id"`
	TargetContractorID *uint                   `json:"target_contractor_id"`
	Content            string                  `json:"content" validate:"required"`
	MessageType        string                  `json:"message_type"`
	Metadata           map[string]string       `json:"metadata"`
	Attachments        []utils.AttachmentInput `json:"attachments" validate:"dive"`
}

// SendMessage routes, filters, and persists one message.
func (mc *MessageController) SendMessage(c *fiber.Ctx) error {
	var input sendMessageInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, err.Error(), false))
	}
	if input.MessageType == "" {
		input.MessageType = models.MessageText
	}

	message, conv, err := mc.Pipeline.Process(utils.MessageInput{
		Route: utils.RouteInput{
			BidCardID:          input.BidCardID,
			SenderType:         input.SenderType,
			SenderID:           input.SenderID,
			ConversationID:     input.ConversationID,
			TargetContractorID: input.TargetContractorID,
		},
		Content:     input.Content,
		MessageType: input.MessageType,
		Metadata:    input.Metadata,
		Attachments: input.Attachments,
	})
	if err != nil {
		return respondAppError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message_id":       message.ID,
		"conversation_id":  conv.ID,
		"contractor_alias": conv.ContractorAlias,
		"content":          message.FilteredContent,
		"content_filtered": message.ContentFiltered,
		"filter_reasons":   message.FilterReasons,
	})
}

// GetMessages returns a conversation's messages oldest first, with
// attachments.
func (mc *MessageController) GetMessages(c *fiber.Ctx) error {
	conversationID, err := c.ParamsInt("conversation_id")
	if err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, "invalid conversation id", false))
	}

	var conv models.Conversation
	if err := mc.DB.First(&conv, conversationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return respondAppError(c, models.NewAppError(models.ErrNotFound, "conversation not found", false))
		}
		return respondAppError(c, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true))
	}

	var messages []models.Message
	if err := mc.DB.Preload("Attachments").
		Where("conversation_id = ?", conv.ID).
		Order("created_at ASC, id ASC").
		Find(&messages).Error; err != nil {
		return respondAppError(c, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true))
	}

	return c.JSON(fiber.Map{
		"conversation": conv,
		"messages":     messages,
	})
}

// GetConversations lists a bid card's conversations with unread counts for
// the requesting side.
func (mc *MessageController) GetConversations(c *fiber.Ctx) error {
	bidCardID := c.QueryInt("bid_card_id")
	if bidCardID <= 0 {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, "bid_card_id is required", false))
	}
	viewerType := c.Query("viewer_type", models.SenderHomeowner)

	var conversations []models.Conversation
	if err := mc.DB.Where("bid_card_id = ?", bidCardID).
		Order("id ASC").
		Find(&conversations).Error; err != nil {
		return respondAppError(c, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true))
	}

	type conversationView struct {
		models.Conversation
		UnreadCount int64 `json:"unread_count"`
	}
	views := make([]conversationView, 0, len(conversations))
	for _, conv := range conversations {
		unread, err := mc.Pipeline.UnreadCount(conv.ID, viewerType)
		if err != nil {
			return respondAppError(c, err)
		}
		views = append(views, conversationView{Conversation: conv, UnreadCount: unread})
	}

	return c.JSON(fiber.Map{
		"conversations": views,
	})
}

// MarkRead marks messages in a conversation as read by the given side.
func (mc *MessageController) MarkRead(c *fiber.Ctx) error {
	conversationID, err := c.ParamsInt("conversation_id")
	if err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, "invalid conversation id", false))
	}

	var input struct {
		ReaderType string `json:"reader_type" validate:"required,oneof=homeowner contractor"`
		MessageIDs []uint `json:"message_ids"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, err.Error(), false))
	}

	updated, err := mc.Pipeline.MarkRead(uint(conversationID), input.MessageIDs, input.ReaderType)
	if err != nil {
		return respondAppError(c, err)
	}

	return c.JSON(fiber.Map{
		"marked_read": updated,
	})
}

// Broadcast sends one homeowner message to every contractor conversation
// on a bid card. Content is filtered once per fan-out by the pipeline; a
// failed conversation does not abort the rest.
func (mc *MessageController) Broadcast(c *fiber.Ctx) error {
	var input struct {
		BidCardID   uint              `json:"bid_card_id" validate:"required"`
		SenderID    uint              `json:"sender_id" validate:"required"`
		Content     string            `json:"content" validate:"required"`
		MessageType string            `json:"message_type"`
		Metadata    map[string]string `json:"metadata"`
	}
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return respondAppError(c, models.NewAppError(models.ErrInvalidInput, err.Error(), false))
	}
	if input.MessageType == "" {
		input.MessageType = models.MessageText
	}

	var conversations []models.Conversation
	if err := mc.DB.Where("bid_card_id = ? AND status = ?", input.BidCardID, models.ConversationActive).
		Order("id ASC").
		Find(&conversations).Error; err != nil {
		return respondAppError(c, models.NewAppError(models.ErrStoreUnavailable, err.Error(), true))
	}
	if len(conversations) == 0 {
		return respondAppError(c, models.NewAppError(models.ErrNotFound, "no conversations for bid card", false))
	}

	sent := make([]fiber.Map, 0, len(conversations))
	failed := 0
	for _, conv := range conversations {
		convID := conv.ID
		message, _, err := mc.Pipeline.Process(utils.MessageInput{
			Route: utils.RouteInput{
				BidCardID:      input.BidCardID,
				SenderType:     models.SenderHomeowner,
				SenderID:       input.SenderID,
				ConversationID: &convID,
			},
			Content:     input.Content,
			MessageType: input.MessageType,
			Metadata:    input.Metadata,
		})
		if err != nil {
			mc.Logger.Printf("Broadcast to conversation %d failed: %v", conv.ID, err)
			failed++
			continue
		}
		sent = append(sent, fiber.Map{
			"conversation_id":  conv.ID,
			"message_id":       message.ID,
			"contractor_alias": conv.ContractorAlias,
		})
	}

	return c.JSON(fiber.Map{
		"sent":   sent,
		"failed": failed,
	})
}
