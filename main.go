package main

import (
	"context"
	"log"
	"os"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"instabids/config"
	"instabids/middleware"
	"instabids/models"
	"instabids/routes"
	"instabids/utils"
	"instabids/worker"
)

func main() {
	// Initialize logger
	logger := log.New(os.Stdout, "INSTABIDS: ", log.Ldate|log.Ltime|log.Lshortfile)

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize Sentry when a DSN is configured
	if config.AppConfig.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         config.AppConfig.SentryDSN,
			Environment: config.AppConfig.Environment,
		}); err != nil {
			logger.Printf("Sentry initialization failed: %v", err)
		}
	}

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}

	// Create Fiber app
	app := fiber.New()

	// Add CORS middleware
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = config.AppConfig.AllowedOrigins
	app.Use(middleware.CORS(corsCfg))

	// Build outreach channels from config
	channels := map[string]utils.OutreachChannel{
		models.ChannelEmail:       utils.NewEmailChannel(config.AppConfig.SMTP, config.AppConfig.EmailChannel),
		models.ChannelWebsiteForm: utils.NewWebsiteFormChannel(config.AppConfig.FormChannel),
	}
	if config.AppConfig.SMSGatewayURL != "" {
		channels[models.ChannelSMS] = utils.NewSMSChannel(config.AppConfig.SMSGatewayURL, config.AppConfig.SMSChannel)
	}

	// Build the core services
	orchestrator := utils.NewCampaignOrchestrator(config.DB, log.New(os.Stdout, "ORCHESTRATOR: ", log.LstdFlags), channels)
	filter := utils.NewContentFilter(config.DB, log.New(os.Stdout, "FILTER: ", log.LstdFlags), config.AppConfig.FilterRefreshTTL)
	router := utils.NewConversationRouter(config.DB, log.New(os.Stdout, "ROUTER: ", log.LstdFlags))
	pipeline := utils.NewMessagePipeline(config.DB, log.New(os.Stdout, "PIPELINE: ", log.LstdFlags), filter, router)
	directory := utils.NewContractorDirectory(config.DB, log.New(os.Stdout, "DIRECTORY: ", log.LstdFlags))

	// Start background workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	checkInWorker := worker.NewCheckInWorker(config.DB, orchestrator, log.New(os.Stdout, "CHECKIN: ", log.LstdFlags), config.AppConfig.CheckInInterval)
	go checkInWorker.Start(ctx)

	dispatchWorker := worker.NewDispatchWorker(config.DB, orchestrator, log.New(os.Stdout, "DISPATCH: ", log.LstdFlags), config.AppConfig.DispatchInterval)
	go dispatchWorker.Start(ctx)

	replyWorker := worker.NewReplyWorker(config.DB, config.AppConfig.IMAP, orchestrator, pipeline, log.New(os.Stdout, "REPLY: ", log.LstdFlags), config.AppConfig.ReplyPollInterval)
	go replyWorker.Start(ctx)

	// Setup routes
	routes.SetupRoutes(app, routes.Deps{
		DB:           config.DB,
		Orchestrator: orchestrator,
		Pipeline:     pipeline,
		Directory:    directory,
	})

	// Start server
	logger.Printf("🚀 Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logger.Fatalf("Failed to start server: %v", err)
	}
}
