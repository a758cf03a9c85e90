package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/servicehub/backend/internal/catalog"
	"github.com/servicehub/backend/internal/config"
	"github.com/servicehub/backend/internal/database"
	"github.com/servicehub/backend/internal/handlers"
	"github.com/servicehub/backend/internal/middleware"
	"github.com/servicehub/backend/internal/models"
	"github.com/servicehub/backend/internal/render"
	"github.com/servicehub/backend/internal/repository"
	"github.com/servicehub/backend/internal/services"
	"github.com/servicehub/backend/internal/storage"
	"github.com/servicehub/backend/pkg/utils"
)

func main() {
	cfg := config.Load()

	// A malformed step catalog must never serve traffic.
	if err := catalog.Validate(); err != nil {
		log.Fatalf("Invalid step catalog: %v", err)
	}

	db, err := database.Connect(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close(db)

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Seed default data
	if err := database.Seed(db); err != nil {
		log.Printf("Warning: Failed to seed database: %v", err)
	}

	redisClient, err := database.ConnectRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer database.CloseRedis(redisClient)

	minioStorage, err := storage.NewMinIOStorage(&cfg.MinIO)
	if err != nil {
		log.Fatalf("Failed to connect to MinIO: %v", err)
	}

	jwtManager := utils.NewJWTManager(cfg.JWT.Secret, cfg.JWT.ExpireHour)
	sessionStore := database.NewSessionStore(redisClient)

	// Initialize repositories
	agentRepo := repository.NewAgentRepository(db)
	ticketRepo := repository.NewTicketRepository(db)
	instanceRepo := repository.NewWorkflowInstanceRepository(db)
	attachmentRepo := repository.NewAttachmentRepository(db)
	reportRepo := repository.NewReportRepository(db)

	// Workflow and attachment mutations on the same instance share one lock set.
	locks := services.NewInstanceLocks()
	publisher := services.NewRedisEventPublisher(redisClient, cfg.Workflow.EventChannel)
	pdfRenderer := render.NewPDFRenderer()

	// Initialize services
	agentService := services.NewAgentService(agentRepo, jwtManager, sessionStore)
	ticketService := services.NewTicketService(ticketRepo)
	workflowService := services.NewWorkflowService(instanceRepo, agentRepo, publisher, locks)
	attachmentService := services.NewAttachmentService(attachmentRepo, instanceRepo, minioStorage, locks)
	reportService := services.NewReportService(reportRepo, instanceRepo, attachmentRepo, ticketRepo, agentRepo, pdfRenderer, minioStorage, cfg.Workflow)

	// Initialize handlers
	healthHandler := handlers.NewHealthHandler()
	agentHandler := handlers.NewAgentHandler(agentService)
	ticketHandler := handlers.NewTicketHandler(ticketService)
	workflowHandler := handlers.NewWorkflowHandler(workflowService)
	attachmentHandler := handlers.NewAttachmentHandler(attachmentService)
	reportHandler := handlers.NewReportHandler(reportService)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtManager, sessionStore, agentRepo)

	app := fiber.New(fiber.Config{
		AppName:      "ServiceHub Backend",
		ErrorHandler: customErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "http://localhost:3000,http://localhost:5173",
		AllowMethods:     "GET,POST,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: true,
	}))

	api := app.Group("/api")
	v1 := api.Group("/v1")

	// Health routes
	v1.Get("/health", healthHandler.Health)
	v1.Get("/ready", healthHandler.Ready)

	// Auth routes
	auth := v1.Group("/auth")
	auth.Post("/register", agentHandler.Register)
	auth.Post("/login", agentHandler.Login)
	auth.Post("/logout", authMiddleware.Authenticate(), agentHandler.Logout)

	// Agent routes
	agents := v1.Group("/agents", authMiddleware.Authenticate())
	agents.Get("/me", agentHandler.GetProfile)
	agents.Put("/me", agentHandler.UpdateProfile)
	agents.Put("/me/password", agentHandler.ChangePassword)
	agents.Get("/", authMiddleware.RequireRole(models.RoleAdmin), agentHandler.List)
	agents.Put("/:id", authMiddleware.RequireRole(models.RoleAdmin), agentHandler.AdminUpdate)

	// Ticket routes
	tickets := v1.Group("/tickets", authMiddleware.Authenticate())
	tickets.Post("/", ticketHandler.Create)
	tickets.Get("/", ticketHandler.List)
	tickets.Get("/:id", ticketHandler.Get)
	tickets.Put("/:id", ticketHandler.Update)
	tickets.Delete("/:id", authMiddleware.RequireRole(models.RoleAdmin), ticketHandler.Delete)
	tickets.Get("/:ticket_id/workflows", workflowHandler.ListByTicket)

	// Workflow routes
	workflows := v1.Group("/workflows", authMiddleware.Authenticate())
	workflows.Get("/catalog", workflowHandler.GetCatalog)
	workflows.Get("/lookup", workflowHandler.Lookup)
	workflows.Post("/", workflowHandler.CreateInstance)
	workflows.Get("/", workflowHandler.ListInstances)
	workflows.Get("/:id", workflowHandler.GetInstance)
	workflows.Put("/:id/status", workflowHandler.SetStatus)
	workflows.Get("/:id/history", workflowHandler.GetAuditTrail)
	workflows.Put("/:id/steps/:step", workflowHandler.SaveStep)
	workflows.Post("/:id/steps/:step/skip", workflowHandler.SkipStep)
	workflows.Post("/:id/steps/:step/reopen", workflowHandler.ReopenStep)

	// Attachment routes
	workflows.Post("/:id/steps/:step/attachments", attachmentHandler.Upload)
	workflows.Get("/:id/steps/:step/attachments", attachmentHandler.ListByStep)
	workflows.Get("/:id/attachments", attachmentHandler.ListByInstance)

	attachments := v1.Group("/attachments", authMiddleware.Authenticate())
	attachments.Get("/:attachment_id", attachmentHandler.Download)
	attachments.Delete("/:attachment_id", attachmentHandler.Delete)

	// Report routes
	workflows.Post("/:id/reports", reportHandler.Generate)
	workflows.Get("/:id/reports", reportHandler.List)

	reports := v1.Group("/reports", authMiddleware.Authenticate())
	reports.Get("/:report_id", reportHandler.Download)
	reports.Delete("/:report_id", authMiddleware.RequireRole(models.RoleQuality), reportHandler.Delete)

	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		log.Printf("Server starting on %s", addr)
		if err := app.Listen(addr); err != nil {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if err := app.Shutdown(); err != nil {
		log.Printf("Error during shutdown: %v", err)
	}
	log.Println("Server stopped")
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}
