package main

import (
	"context"
	"net/http"
	_ "time/tzdata"

	"github.com/gorilla/mux"
	cron "github.com/robfig/cron/v3"
	"github.com/rs/cors"

	"closingflow/internal/app"
	"closingflow/internal/config"
	"closingflow/internal/constants"
	"closingflow/internal/controllers"
	"closingflow/internal/middleware"
	"closingflow/internal/repositories"
	"closingflow/internal/routes"
	"closingflow/internal/services"
	"closingflow/internal/storage"
	"closingflow/internal/utils"
)

func main() {
	utils.InitLogger(config.AppName)
	cfg := config.LoadConfig()

	application, err := app.NewApp(cfg)
	if err != nil {
		utils.Logger.Fatal("Failed to initialize closingflow:", err)
	}
	defer application.Close()

	blobStore, err := storage.NewFileStore(cfg.BlobStoreDir)
	if err != nil {
		utils.Logger.Fatal("Failed to initialize blob store:", err)
	}

	workflowRepo := repositories.NewWorkflowRepository(application.DB)
	propertyRepo := repositories.NewPropertyRepository(application.DB)
	contactRepo := repositories.NewContactRepository(application.DB)
	documentRepo := repositories.NewDocumentRepository(application.DB)
	inboxRepo := repositories.NewInboxRepository(application.DB)

	openaiSvc := services.NewOpenAIService(cfg.OpenAIAPIKey)
	mailer := services.NewSendGridMailer(
		cfg.SendGridAPIKey,
		cfg.SendGridFromName,
		cfg.SendGridFromEmail,
		cfg.SendGridSandboxMode,
	)

	pipelineService := services.NewPipelineService(workflowRepo, propertyRepo)
	earnestService := services.NewEarnestService(
		pipelineService,
		propertyRepo,
		contactRepo,
		documentRepo,
		inboxRepo,
		blobStore,
		openaiSvc,
		mailer,
		cfg.SendGridFromEmail,
	)
	closingService := services.NewClosingService(pipelineService)
	inboxService := services.NewInboxService(inboxRepo, propertyRepo, documentRepo, blobStore)
	automationService := services.NewAutomationService(
		inboxRepo,
		documentRepo,
		blobStore,
		openaiSvc,
		earnestService,
		closingService,
	)

	healthController := controllers.NewHealthController(application)
	propertiesController := controllers.NewPropertiesController(propertyRepo, contactRepo)
	pipelineController := controllers.NewPipelineController(pipelineService, earnestService, closingService)
	inboxController := controllers.NewInboxController(inboxService)

	router := mux.NewRouter()

	// Public
	router.HandleFunc(routes.Health, healthController.HealthCheckHandler).Methods(http.MethodGet)

	// Provider webhook, shared-secret protected
	webhook := router.NewRoute().Subrouter()
	webhook.Use(middleware.WebhookAuthMiddleware(cfg.WebhookSecret))
	webhook.HandleFunc(routes.WebhookInboundEmail, inboxController.InboundEmailWebhookHandler).Methods(http.MethodPost)

	secured := router.NewRoute().Subrouter()
	secured.Use(middleware.AuthMiddleware(cfg.RSAPublicKey))

	secured.HandleFunc(routes.PropertiesBase, propertiesController.CreatePropertyHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.PropertiesBase, propertiesController.ListPropertiesHandler).Methods(http.MethodGet)
	secured.HandleFunc(routes.PropertyByID, propertiesController.GetPropertyHandler).Methods(http.MethodGet)
	secured.HandleFunc(routes.Contacts, propertiesController.UpsertContactHandler).Methods(http.MethodPut)

	secured.HandleFunc(routes.Pipeline, pipelineController.GetPipelineHandler).Methods(http.MethodGet)
	secured.HandleFunc(routes.EarnestPrepare, pipelineController.PrepareEarnestHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.EarnestSend, pipelineController.SendEarnestHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.EarnestConfirm, pipelineController.ConfirmEarnestHandler).Methods(http.MethodPost)
	secured.HandleFunc(routes.ClosingConfirm, pipelineController.ConfirmClosingHandler).Methods(http.MethodPost)

	secured.HandleFunc(routes.InboxThreads, inboxController.ListThreadsHandler).Methods(http.MethodGet)
	secured.HandleFunc(routes.InboxThreadByID, inboxController.GetThreadHandler).Methods(http.MethodGet)
	secured.HandleFunc(routes.InboxThreadRead, inboxController.MarkThreadReadHandler).Methods(http.MethodPost)

	c := cron.New()
	_, cronErr := c.AddFunc(constants.AutomationCronSpec, func() {
		if e := automationService.RunInboxAnalysisPass(context.Background()); e != nil {
			utils.Logger.WithError(e).Error("Inbox analysis pass failed")
		}
	})
	if cronErr != nil {
		utils.Logger.WithError(cronErr).Fatal("Failed to schedule inbox analysis cron")
	}
	c.Start()
	defer c.Stop()

	co := cors.New(cors.Options{
		AllowedOrigins:   []string{cfg.AppUrl},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	utils.Logger.Infof("Starting %s on port: %s", cfg.AppName, cfg.AppPort)
	if err := http.ListenAndServe(":"+cfg.AppPort, co.Handler(router)); err != nil {
		utils.Logger.Fatal("closingflow failed to start:", err)
	}
}
