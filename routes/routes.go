package routes

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"

	"runwayiq/calling"
	"runwayiq/campaign"
	"runwayiq/config"
	controller "runwayiq/controllers"
	"runwayiq/importer"
	"runwayiq/middleware"
	"runwayiq/queue"
	"runwayiq/session"
	"runwayiq/utils"
)

// Dependencies is everything the HTTP surface is wired from. Optional
// integrations stay nil when they are not configured.
type Dependencies struct {
	DB       *gorm.DB
	Config   *config.Config
	Engine   *campaign.Engine
	Importer *importer.Importer
	Sessions *session.Manager
	Calling  *calling.Service
	Hub      *calling.Hub
	Webhooks *controller.TwilioController
	Broker   *queue.RabbitMQ

	Sheets    controller.SheetReader
	Voice     controller.Synthesizer
	Signature middleware.SignatureValidator
	Limiter   fiber.Storage
}

// NewApp creates the Fiber app with the shared middleware stack
func NewApp(cfg *config.Config) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      "RunwayIQ",
		BodyLimit:    6 << 20,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		ErrorHandler: ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:   middleware.ParseOrigins(cfg.AllowedOrigins),
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposedHeaders:   []string{"Content-Length", "Content-Disposition"},
		MaxAge:           86400,
	}))
	app.Use(middleware.Metrics())
	app.Use(logger.New(logger.Config{
		Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
	}))
	return app
}

// ErrorHandler renders errors that escape handlers in the standard envelope
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		message = fe.Message
	}
	if code >= fiber.StatusInternalServerError {
		utils.LogError("unhandled", err, map[string]interface{}{"path": c.Path(), "method": c.Method()})
	}
	return utils.ErrorResponse(c, code, message, nil)
}

func SetupRoutes(app *fiber.App, deps *Dependencies) {
	app.Get("/health", func(c *fiber.Ctx) error {
		status := fiber.Map{"status": "ok", "database": "ok"}
		if deps.Broker != nil {
			status["queue"] = "ok"
			if !deps.Broker.Healthy() {
				status["status"] = "degraded"
				status["queue"] = "disconnected"
			}
		}
		if sqlDB, err := deps.DB.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			status["status"] = "degraded"
			status["database"] = "unreachable"
			return c.Status(fiber.StatusServiceUnavailable).JSON(status)
		}
		return c.JSON(status)
	})
	app.Get("/metrics", middleware.MetricsHandler())

	SetupAuthRoutes(app, deps)
	SetupAPIRoutes(app, deps)
	SetupTwilioRoutes(app, deps)
}

func SetupAuthRoutes(app *fiber.App, deps *Dependencies) {
	authController := controller.NewAuthController(
		deps.DB,
		deps.Sessions,
		deps.Config.JWTSecret,
		time.Duration(deps.Config.JWTExpiryHours)*time.Hour,
		utils.Logger("auth"),
	)
	authController.SecureCookies = deps.Config.Environment == "production"

	auth := app.Group("/auth")

	// Public auth endpoints (no authentication required)
	auth.Post("/register", authController.Register)
	auth.Post("/login", authController.Login)

	// Protected auth endpoints (require valid JWT)
	protectedAuth := auth.Group("", middleware.Protected(deps.Config.JWTSecret, deps.Sessions))
	protectedAuth.Post("/logout", authController.Logout)
	protectedAuth.Get("/me", authController.Me)
}

func SetupAPIRoutes(app *fiber.App, deps *Dependencies) {
	leadController := controller.NewLeadController(deps.DB, deps.Engine, deps.Importer, deps.Sheets, utils.Logger("lead"))
	taskController := controller.NewTaskController(deps.DB, deps.Engine, utils.Logger("task"))
	campaignController := controller.NewCampaignController(deps.DB, deps.Engine, utils.Logger("campaign"))
	activityController := controller.NewActivityController(deps.DB, utils.Logger("activity"))
	dashboardController := controller.NewDashboardController(deps.DB, deps.Engine, utils.Logger("dashboard"))
	callingController := controller.NewCallingController(deps.DB, deps.Calling, deps.Hub, deps.Voice, utils.Logger("calling"))

	// API group with versioning and protection
	api := app.Group("/api/v1",
		middleware.Protected(deps.Config.JWTSecret, deps.Sessions),
		middleware.RateLimiter(deps.Config.RateLimitPerMinute, deps.Limiter),
	)

	// Dashboard routes
	dashboard := api.Group("/dashboard")
	dashboard.Get("/stats", dashboardController.GetDashboardStats)

	// Lead routes
	leads := api.Group("/leads")
	leads.Post("/", leadController.CreateLead)
	leads.Get("/", leadController.GetLeads)
	leads.Post("/import", leadController.ImportLeads)
	leads.Get("/sheets", leadController.PreviewSheet)
	leads.Post("/sheets/import", leadController.ImportSheet)
	leads.Get("/:id", leadController.GetLead)
	leads.Patch("/:id/status", leadController.UpdateLeadStatus)

	// Task routes
	tasks := api.Group("/tasks")
	tasks.Post("/", taskController.CreateTask)
	tasks.Get("/", taskController.GetTasks)
	tasks.Get("/today", taskController.GetTodaysTasks)
	tasks.Get("/:id", taskController.GetTask)
	tasks.Patch("/:id", taskController.UpdateTaskStatus)
	tasks.Post("/:id/complete", taskController.CompleteTask)

	// Campaign routes
	campaigns := api.Group("/campaigns")
	campaigns.Post("/", campaignController.CreateCampaign)
	campaigns.Get("/", campaignController.GetCampaigns)
	campaigns.Post("/batch", campaignController.CreateBatch)
	campaigns.Get("/template", campaignController.GetTemplate)
	campaigns.Get("/preview", campaignController.PreviewSchedule)
	campaigns.Get("/:id", campaignController.GetCampaign)
	campaigns.Post("/:id/pause", campaignController.PauseCampaign)
	campaigns.Post("/:id/resume", campaignController.ResumeCampaign)

	// Activity routes
	activities := api.Group("/activities")
	activities.Get("/", activityController.GetActivities)
	activities.Post("/", activityController.CreateNote)

	// Cold calling routes
	callingGroup := api.Group("/calling")
	callingGroup.Post("/agents", callingController.CreateAgent)
	callingGroup.Get("/agents", callingController.GetAgents)
	callingGroup.Put("/agents/:id", callingController.UpdateAgent)
	callingGroup.Get("/agents/:id/preview", callingController.PreviewAgentVoice)
	callingGroup.Post("/campaigns", callingController.CreateCampaign)
	callingGroup.Get("/campaigns", callingController.GetCampaigns)
	callingGroup.Get("/campaigns/:id", callingController.GetCampaign)
	callingGroup.Get("/campaigns/:id/calls", callingController.GetCalls)
	callingGroup.Post("/campaigns/:id/leads", callingController.AddLeads)
	callingGroup.Post("/campaigns/:id/start", callingController.StartCampaign)
	callingGroup.Post("/campaigns/:id/pause", callingController.PauseCampaign)
	callingGroup.Post("/campaigns/:id/stop", callingController.StopCampaign)
	callingGroup.Get("/calls/:id", callingController.GetCall)
	callingGroup.Get("/live", controller.RequireUpgrade, callingController.LiveCalls())
}

// SetupTwilioRoutes registers the voice webhooks Twilio calls back into
func SetupTwilioRoutes(app *fiber.App, deps *Dependencies) {
	webhooks := deps.Webhooks
	if webhooks == nil {
		webhooks = controller.NewTwilioController(deps.Calling, utils.Logger("twilio"))
		deps.Webhooks = webhooks
	}

	tw := app.Group("/twilio", middleware.TwilioSignature(deps.Signature, deps.Config.PublicBaseURL))
	tw.Post("/voice/:callId", webhooks.Voice)
	tw.Post("/gather/:callId", webhooks.Gather)
	tw.Post("/status", webhooks.Status)
}
