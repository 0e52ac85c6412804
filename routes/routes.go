package routes

import (
	"schoolledger_go/controllers"
	"schoolledger_go/middleware"
	"schoolledger_go/services/websocket"

	"github.com/gofiber/fiber/v2"
	fiberws "github.com/gofiber/websocket/v2"
)

// SetupRoutes configures all application routes
func SetupRoutes(app *fiber.App, wsHub *websocket.Hub) {
	// Initialize controllers
	authController := &controllers.AuthController{}
	studentController := &controllers.StudentController{}
	feeController := controllers.NewFeeController()
	paymentsImportController := controllers.NewPaymentsImportController()
	archiveController := controllers.NewReceiptArchiveController()
	notificationController := &controllers.NotificationController{}
	logController := &controllers.LogController{}
	wsController := controllers.NewWebSocketController(wsHub)

	// API group
	api := app.Group("/api")

	// Authentication routes (no middleware)
	auth := api.Group("/auth")
	auth.Post("/login", authController.Login)
	auth.Get("/profile", middleware.JWTMiddleware(), authController.GetProfile)

	// Protected routes (require authentication)
	protected := api.Group("/", middleware.JWTMiddleware())

	// Profile routes (authenticated users)
	protected.Get("/profile", authController.GetProfile)
	protected.Put("/profile/password", authController.ChangePassword)
	// Logout - blacklist token for 24 hours
	protected.Post("/auth/logout", authController.Logout)

	// User management routes
	users := protected.Group("/users")
	users.Post("/", middleware.RequireOwnerOrAdmin(), authController.Register)
	users.Post("/reset-password", middleware.RequireOwnerOrAdmin(), authController.ResetPasswordByAdmin)

	// Student management routes
	students := protected.Group("/students")
	students.Get("/", middleware.RequireTeacherOrAbove(), studentController.GetStudents)
	students.Get("/:id", middleware.RequireTeacherOrAbove(), studentController.GetStudent)
	students.Post("/", middleware.RequireOwnerOrAdmin(), studentController.CreateStudent)
	students.Put("/:id", middleware.RequireOwnerOrAdmin(), studentController.UpdateStudent)
	students.Delete("/:id", middleware.RequireOwnerOrAdmin(), studentController.DeleteStudent)
	students.Get("/class/:class_id", middleware.RequireTeacherOrAbove(), studentController.GetStudentsByClass)
	students.Get("/:id/receipts", middleware.RequireTeacherOrAbove(), feeController.GetStudentReceipts)

	// Fee structure routes
	structures := protected.Group("/fees/structures")
	structures.Get("/", middleware.RequireTeacherOrAbove(), feeController.GetFeeStructures)
	structures.Get("/:id", middleware.RequireTeacherOrAbove(), feeController.GetFeeStructure)
	structures.Post("/", middleware.RequireOwnerOrAdmin(), feeController.CreateFeeStructure)
	structures.Put("/:id", middleware.RequireOwnerOrAdmin(), feeController.UpdateFeeStructure)
	structures.Patch("/:id/deactivate", middleware.RequireOwnerOrAdmin(), feeController.DeactivateFeeStructure)
	structures.Delete("/:id", middleware.RequireOwnerOrAdmin(), feeController.DeleteFeeStructure)

	// Fee collection routes
	collections := protected.Group("/fees/collections")
	collections.Get("/due", middleware.RequireTeacherOrAbove(), feeController.GetDueCollections)
	collections.Get("/overdue", middleware.RequireTeacherOrAbove(), feeController.GetOverdueCollections)
	collections.Get("/stats", middleware.RequireTeacherOrAbove(), feeController.GetCollectionStats)
	collections.Get("/:id", middleware.RequireTeacherOrAbove(), feeController.GetFeeCollection)
	collections.Post("/", middleware.RequireOwnerOrAdmin(), feeController.CreateFeeCollection)
	collections.Put("/:id", middleware.RequireOwnerOrAdmin(), feeController.UpdateFeeCollection)
	collections.Patch("/:id/cancel", middleware.RequireOwnerOrAdmin(), feeController.CancelFeeCollection)
	collections.Delete("/:id", middleware.RequireOwnerOrAdmin(), feeController.DeleteFeeCollection)
	collections.Post("/:id/payments", middleware.RequireTeacherOrAbove(), feeController.AddPayment)

	// Fee receipt routes
	receipts := protected.Group("/fees/receipts")
	receipts.Get("/stats", middleware.RequireTeacherOrAbove(), feeController.GetReceiptStats)
	receipts.Get("/export", middleware.RequireOwnerOrAdmin(), feeController.ExportFeeReceipts)
	receipts.Get("/number/:number", middleware.RequireTeacherOrAbove(), feeController.GetFeeReceiptByNumber)
	receipts.Get("/:id", middleware.RequireTeacherOrAbove(), feeController.GetFeeReceipt)
	receipts.Get("/", middleware.RequireTeacherOrAbove(), feeController.GetFeeReceipts)
	receipts.Post("/", middleware.RequireTeacherOrAbove(), feeController.CreateFeeReceipt)
	receipts.Post("/attachments", middleware.RequireTeacherOrAbove(), feeController.UploadReceiptAttachment)
	receipts.Patch("/:id/cancel", middleware.RequireOwnerOrAdmin(), feeController.CancelFeeReceipt)

	// Bulk payment import (spreadsheet upload)
	protected.Post("/fees/import/payments", middleware.RequireOwnerOrAdmin(), paymentsImportController.Import)

	// Archived receipt books
	archives := protected.Group("/fees/archives", middleware.RequireOwnerOrAdmin())
	archives.Get("/", archiveController.GetReceiptArchives)
	archives.Get("/:id/download", archiveController.DownloadReceiptArchive)
	archives.Post("/", archiveController.TriggerReceiptArchive)

	// Notification management routes
	notifications := protected.Group("/notifications")
	notifications.Get("/", notificationController.GetNotifications)
	notifications.Get("/unread-count", notificationController.GetUnreadCount)
	notifications.Get("/stats", middleware.RequireOwnerOrAdmin(), notificationController.GetNotificationStats)
	notifications.Get("/:id", notificationController.GetNotification)
	notifications.Post("/", middleware.RequireOwnerOrAdmin(), notificationController.CreateNotification)
	notifications.Patch("/:id/read", notificationController.MarkAsRead)
	notifications.Patch("/mark-all-read", notificationController.MarkAllAsRead)
	notifications.Delete("/:id", notificationController.DeleteNotification)

	// Log management routes (Admin/Owner only)
	logs := protected.Group("/logs", middleware.RequireOwnerOrAdmin())
	logs.Get("/", logController.GetLogs)
	logs.Get("/stats", logController.GetLogStats)
	logs.Get("/export", logController.ExportLogs)
	logs.Get("/:id", logController.GetLog)
	logs.Delete("/old", logController.DeleteOldLogs)
	logs.Post("/flush-cache", logController.FlushCachedLogs)

	// WebSocket routes
	ws := protected.Group("/ws")
	ws.Get("/stats", middleware.RequireOwnerOrAdmin(), wsController.GetWebSocketStats)

	// WebSocket connection endpoint - use websocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if fiberws.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", wsController.WebSocketHandler())
}

// SetupStaticRoutes configures static file serving
func SetupStaticRoutes(app *fiber.App) {
	app.Static("/", "./public")
}
