package routes

import (
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/websocket/v2"
	"gorm.io/gorm"

	controller "instabids/controllers"
	"instabids/middleware"
	"instabids/utils"
)

// Deps carries the shared services built in main. The websocket hubs are
// constructed here and hooked into the orchestrator and pipeline Notify
// callbacks.
type Deps struct {
	DB           *gorm.DB
	Orchestrator *utils.CampaignOrchestrator
	Pipeline     *utils.MessagePipeline
	Directory    *utils.ContractorDirectory
}

func SetupAPIRoutes(app *fiber.App, deps Deps) {
	campaignController := controller.NewCampaignController(deps.DB, log.New(os.Stdout, "CAMPAIGN: ", log.LstdFlags), deps.Orchestrator)
	messageController := controller.NewMessageController(deps.DB, log.New(os.Stdout, "MESSAGE: ", log.LstdFlags), deps.Pipeline)
	bidCardController := controller.NewBidCardController(deps.DB, log.New(os.Stdout, "BIDCARD: ", log.LstdFlags), deps.Orchestrator)
	contractorController := controller.NewContractorController(deps.DB, log.New(os.Stdout, "CONTRACTOR: ", log.LstdFlags), deps.Directory)

	progressHub := controller.NewProgressHub(log.New(os.Stdout, "PROGRESS-WS: ", log.LstdFlags))
	messageHub := controller.NewMessageHub(log.New(os.Stdout, "MESSAGE-WS: ", log.LstdFlags))
	deps.Orchestrator.Notify = progressHub.Publish
	deps.Pipeline.Notify = messageHub.Publish

	api := app.Group("/api/v1", logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))

	// Bid card routes
	bidCard := api.Group("/bid-cards")
	bidCard.Post("/", bidCardController.CreateBidCard)
	bidCard.Get("/:id", bidCardController.GetBidCard)
	bidCard.Post("/:id/bids", bidCardController.SubmitBid)

	// Campaign routes
	campaign := api.Group("/campaigns")
	campaign.Post("/", campaignController.CreateCampaign)
	campaign.Get("/", campaignController.GetCampaigns)
	campaign.Get("/:id", campaignController.GetCampaign)
	campaign.Post("/:id/start", campaignController.StartCampaign)
	campaign.Post("/:id/stop", campaignController.StopCampaign)
	campaign.Get("/:id/check-in", campaignController.GetCheckInStatus)
	campaign.Post("/:id/escalate", campaignController.EscalateCampaign)
	campaign.Post("/webhook", campaignController.HandleCampaignWebhook)
	api.Get("/follow-up-tasks", campaignController.ListFollowUpTasks)

	// Message routes with rate limiting on sends
	message := api.Group("/messages")
	message.Post("/send", middleware.MessageRateLimiter(), messageController.SendMessage)
	message.Post("/broadcast", middleware.MessageRateLimiter(), messageController.Broadcast)
	message.Get("/:conversation_id", messageController.GetMessages)
	message.Put("/:conversation_id/read", messageController.MarkRead)
	api.Get("/conversations", messageController.GetConversations)

	// Contractor routes
	contractor := api.Group("/contractors")
	contractor.Post("/", contractorController.CreateContractor)
	contractor.Get("/availability", contractorController.GetAvailability)
	contractor.Post("/:id/promote", contractorController.PromoteContractor)

	// WebSocket routes for live progress and messages
	app.Get("/api/v1/campaigns/progress", websocket.New(func(c *websocket.Conn) {
		progressHub.HandleCampaignProgressWS(c)
	}))
	app.Get("/api/v1/messages/stream", websocket.New(func(c *websocket.Conn) {
		messageHub.HandleMessageWS(c)
	}))

	log.Println("API routes initialized successfully")
}

func SetupRoutes(app *fiber.App, deps Deps) {
	// Setup health check endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// Setup API routes
	SetupAPIRoutes(app, deps)

	// Setup 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":   "Not Found",
			"message": "The requested resource was not found",
		})
	})
}
