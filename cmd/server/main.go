// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/waboost/outreach-engine/internal/config"
	"github.com/waboost/outreach-engine/internal/controller"
	"github.com/waboost/outreach-engine/internal/db"
	"github.com/waboost/outreach-engine/internal/events"
	"github.com/waboost/outreach-engine/internal/generator"
	"github.com/waboost/outreach-engine/internal/repository"
	"github.com/waboost/outreach-engine/internal/scheduler"
	"github.com/waboost/outreach-engine/internal/sender"
	"github.com/waboost/outreach-engine/internal/service"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("no .env file found, relying on OS environment variables")
	}
	cfg := config.Load()

	conn, err := db.Open(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer conn.Close()
	log.Info().Str("db", cfg.DBName).Msg("connected to database")

	campaignRepo := &repository.CampaignRepository{DB: conn}
	recipientRepo := &repository.RecipientRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}
	apiMessageRepo := &repository.ApiMessageRepository{DB: conn}

	window, err := service.NewSendWindow(cfg.SendTimezone, cfg.SendStartHour, cfg.SendEndHour)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid send window configuration")
	}

	var gen generator.Generator
	if cfg.GeminiAPIKey != "" {
		g, err := generator.NewGeminiGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GenerationTimeout)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init gemini generator")
		}
		gen = g
	} else {
		log.Warn().Msg("GEMINI_API_KEY not set, generation is disabled")
		gen = generator.Disabled{}
	}

	var publisher events.Publisher
	if cfg.AMQPURL != "" {
		p, err := events.NewAMQPPublisher(cfg.AMQPURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to RabbitMQ")
		}
		publisher = p
	} else {
		log.Warn().Msg("AMQP_URL not set, delivery events stay in memory")
		publisher = events.NewMemoryPublisher()
	}
	defer publisher.Close()

	gateway := sender.NewGatewayClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayRate, log)

	generationService := service.NewGenerationService(campaignRepo, recipientRepo, contactRepo, gen, cfg.BufferTarget, log)
	dispatchService := service.NewDispatchService(campaignRepo, recipientRepo, contactRepo, gateway, publisher, window, log)
	apiQueueService := service.NewAPIQueueService(apiMessageRepo, contactRepo, gateway, publisher, window, cfg.APIMinInterval, cfg.APIMaxInterval, log)

	campaignService := &service.CampaignService{
		CampaignRepo:  campaignRepo,
		RecipientRepo: recipientRepo,
		ContactRepo:   contactRepo,
		Pacing:        dispatchService,
		Log:           log,
	}

	sched, err := scheduler.New(scheduler.Config{
		GenerationTick: cfg.GenerationTick,
		DispatchTick:   cfg.DispatchTick,
		APITick:        cfg.APITick,
	}, generationService.RunOnce, dispatchService.RunTick, apiQueueService.RunTick, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build scheduler")
	}
	sched.Start()

	campaignController := &controller.CampaignController{
		CampaignService: campaignService,
		KickGeneration:  sched.KickGeneration,
	}
	apiMessageController := &controller.APIMessageController{
		Queue: apiQueueService,
	}

	r := chi.NewRouter()

	// Campaign routes
	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Post("/campaigns/{id}/recipients", campaignController.AttachRecipients)
	r.Post("/campaigns/{id}/start", campaignController.StartCampaign)
	r.Post("/campaigns/{id}/resume", campaignController.StartCampaign)
	r.Post("/campaigns/{id}/pause", campaignController.PauseCampaign)
	r.Post("/campaigns/{id}/cancel", campaignController.CancelCampaign)
	r.Post("/campaigns/{id}/recipients/{recipientID}/approve", campaignController.ApproveRecipient)

	// API message routes
	r.Post("/api-messages", apiMessageController.SubmitMessage)
	r.Get("/api-messages/{requestID}", apiMessageController.GetMessage)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("server running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown failed")
	}
	sched.Stop()
}
