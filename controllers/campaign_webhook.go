package controller

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"instabids/models"
	"instabids/utils"
)

// HandleCampaignWebhook receives delivery events from outreach providers
// (opens, clicks, bounces, replies) and folds them into the attempt record.
func (cc *CampaignController) HandleCampaignWebhook(c *fiber.Ctx) error {
	var payload struct {
		EventType string `json:"event_type"`
		MessageID string `json:"message_id"`
		Email     string `json:"email"`
		Timestamp int64  `json:"timestamp"`
	}

	if err := c.BodyParser(&payload); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid webhook payload",
		})
	}
	if payload.MessageID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "message_id is required",
		})
	}

	at := time.Now()
	if payload.Timestamp > 0 {
		at = time.Unix(payload.Timestamp, 0)
	}

	event, ok := utils.NormalizeCallback(payload.MessageID, payload.EventType, at)
	if !ok {
		// Providers send event types we do not track; acknowledge them so
		// they stop retrying.
		return c.JSON(fiber.Map{"status": "ignored"})
	}

	if err := cc.Orchestrator.RecordCallback(event); err != nil {
		var appErr *models.AppError
		if errors.As(err, &appErr) && appErr.Kind == models.ErrNotFound {
			cc.Logger.Printf("Webhook for unknown message id %s", payload.MessageID)
			return c.JSON(fiber.Map{"status": "ignored"})
		}
		return respondAppError(c, err)
	}

	return c.JSON(fiber.Map{"status": "processed"})
}
