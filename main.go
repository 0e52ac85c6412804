package main

import (
	"log"
	"os"

	"schoolledger_go/config"
	"schoolledger_go/controllers"
	"schoolledger_go/database"
	"schoolledger_go/middleware"
	"schoolledger_go/routes"
	"schoolledger_go/services"
	"schoolledger_go/services/notifications"
	"schoolledger_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/sirupsen/logrus"
)

func init() {
	// Initialize logging
	setupLogging()

	// Load configuration
	config.LoadConfig()

	// Connect to database
	database.Connect()
}

func main() {
	// Create WebSocket hub first
	wsHub := websocket.NewHub()
	go wsHub.Run()

	// Create Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    int(config.AppConfig.MaxFileSize),
	})

	// Global middleware
	app.Use(recover.New())
	app.Use(helmet.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,HEAD,PUT,DELETE,PATCH,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: true,
	}))

	// Custom middleware
	app.Use(middleware.LoggerMiddleware())
	app.Use(middleware.LogActivityMiddleware())

	// Health check endpoint with dependency probes
	healthController := controllers.NewHealthController(
		services.NewHealthService("School Ledger API", "1.0.0"))
	app.Get("/health", healthController.GetHealthStatus)
	app.Get("/health/live", healthController.GetLiveness)

	// Wire notifications to the WebSocket hub globally so any new Service uses it (incl. schedulers)
	notifications.SetDefaultWSHub(wsHub)
	notifService := notifications.NewService()
	notifService.SetWebSocketHub(wsHub)
	if config.AppConfig.UseRedisNotifications {
		stopNotif := make(chan struct{})
		notifService.StartWorker(stopNotif)
	}

	// Start the ledger scheduler after the WebSocket hub is ready:
	// overdue sweep, due reminders, receipt reconciliation, log flush, book archival
	ledgerScheduler := services.NewLedgerScheduler()
	if err := ledgerScheduler.Start(); err != nil {
		log.Fatal("Failed to start ledger scheduler:", err)
	}

	// API routes
	routes.SetupRoutes(app, wsHub)
	routes.SetupStaticRoutes(app)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error":  "Route not found",
			"path":   c.Path(),
			"method": c.Method(),
		})
	})

	// Start server (listen on all interfaces for Docker/production)
	port := ":" + config.AppConfig.Port
	log.Printf("Server starting on port %s", config.AppConfig.Port)
	log.Printf("Environment: %s", config.AppConfig.AppEnv)

	if err := app.Listen(port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}

// setupLogging configures the logging system
func setupLogging() {
	// Create logs directory if it doesn't exist
	if err := os.MkdirAll("logs", 0755); err != nil {
		log.Printf("Warning: Could not create logs directory: %v", err)
	}

	// Configure logrus
	logrus.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel("info")
	if err == nil {
		logrus.SetLevel(level)
	}

	// Log to both file and stdout in development
	if os.Getenv("APP_ENV") == "development" {
		logrus.SetOutput(os.Stdout)
	} else {
		file, err := os.OpenFile("logs/app.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err == nil {
			logrus.SetOutput(file)
		}
	}
}

// customErrorHandler handles application errors
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	logrus.WithFields(logrus.Fields{
		"error":  err.Error(),
		"path":   c.Path(),
		"method": c.Method(),
		"ip":     c.IP(),
		"status": code,
	}).Error("Request error")

	return c.Status(code).JSON(fiber.Map{
		"error":  message,
		"code":   code,
		"path":   c.Path(),
		"method": c.Method(),
	})
}
