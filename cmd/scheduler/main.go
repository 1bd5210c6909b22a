// cmd/scheduler/main.go
//
// Headless deployment: runs only the periodic tasks against the shared
// store, with no HTTP surface. Exactly one scheduling process may run
// against a store at a time; two would double-send.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/waboost/outreach-engine/internal/config"
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
		publisher = events.NewMemoryPublisher()
	}
	defer publisher.Close()

	gateway := sender.NewGatewayClient(cfg.GatewayBaseURL, cfg.GatewayAPIKey, cfg.GatewayRate, log)

	generationService := service.NewGenerationService(campaignRepo, recipientRepo, contactRepo, gen, cfg.BufferTarget, log)
	dispatchService := service.NewDispatchService(campaignRepo, recipientRepo, contactRepo, gateway, publisher, window, log)
	apiQueueService := service.NewAPIQueueService(apiMessageRepo, contactRepo, gateway, publisher, window, cfg.APIMinInterval, cfg.APIMaxInterval, log)

	sched, err := scheduler.New(scheduler.Config{
		GenerationTick: cfg.GenerationTick,
		DispatchTick:   cfg.DispatchTick,
		APITick:        cfg.APITick,
	}, generationService.RunOnce, dispatchService.RunTick, apiQueueService.RunTick, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build scheduler")
	}
	sched.Start()
	log.Info().Msg("scheduler worker running, waiting for signals")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	sched.Stop()
}
