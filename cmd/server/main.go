package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gwi.com/agenda/internal/api"
	"gwi.com/agenda/internal/auth"
	"gwi.com/agenda/internal/config"
	"gwi.com/agenda/internal/core"
	"gwi.com/agenda/internal/horoscope"
	"gwi.com/agenda/internal/llm"
	"gwi.com/agenda/internal/mail"
	"gwi.com/agenda/internal/store"
)

func setupLogging(level, format string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var logger zerolog.Logger
	if format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	logger = logger.With().Timestamp().Str("service", "agenda").Logger()

	log.Logger = logger
	zerolog.DefaultContextLogger = &logger
	return logger
}

func main() {
	// Load configuration
	config.LoadConfig()
	cfg := config.AppConfig

	logger := setupLogging(cfg.LogLevel, cfg.LogFormat)

	// Command line flag for issuing a /chat token
	tokenSubject := flag.String("token", "", "Print a JWT for the given subject and exit")
	flag.Parse()

	if *tokenSubject != "" {
		token, err := auth.GenerateJWT(cfg.JWTSecret, *tokenSubject)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to generate token")
		}
		fmt.Println(token)
		return
	}

	// Initialize contact store
	storePath := cfg.DatabaseFile
	if cfg.StoreDriver == store.DriverSQLite {
		storePath = cfg.DatabaseURL
	}
	contactStore, err := store.Open(cfg.StoreDriver, storePath)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.StoreDriver).Msg("Failed to initialize contact store")
	}
	defer contactStore.Close()

	// Initialize LLM client. A missing key only fails on the first /chat call.
	systemPrompt := cfg.LLMSystemPrompt
	if systemPrompt == "" {
		systemPrompt = llm.DefaultSystemPrompt
	}
	llmOpts := llm.Options{
		Provider:     cfg.LLMProvider,
		SystemPrompt: systemPrompt,
		MaxRetries:   cfg.LLMMaxRetries,
		Timeout:      cfg.LLMTimeout,
	}
	switch cfg.LLMProvider {
	case llm.ProviderGemini:
		llmOpts.APIKey = cfg.GeminiAPIKey
		llmOpts.Model = cfg.GeminiModel
	default:
		llmOpts.APIKey = cfg.OpenAIAPIKey
		llmOpts.BaseURL = cfg.OpenAIBaseURL
		llmOpts.Model = cfg.OpenAIModel
	}
	llmClient, err := llm.NewClient(context.Background(), llmOpts, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize LLM client")
	}
	defer llmClient.Close()
	if llmOpts.APIKey == "" {
		log.Warn().Str("provider", cfg.LLMProvider).Msg("No LLM API key configured, /chat will fail until one is set")
	}

	// Initialize services
	contactService := core.NewContactService(contactStore)
	queryService := core.NewQueryService(contactService)
	horoscopeClient := horoscope.NewClient(cfg.HoroscopeBaseURL, cfg.HoroscopeTimeout, cfg.HoroscopeRetries)
	mailer := mail.NewSender(mail.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		Timeout:  cfg.SMTPTimeout,
		Retries:  cfg.SMTPRetries,
	})
	registry := core.NewToolRegistry(contactService, queryService, horoscopeClient, mailer)
	chatService := core.NewChatService(llmClient, registry, cfg.LLMMaxTurns)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(contactService, chatService, cfg.JWTSecret)
	router := api.NewRouter(apiHandler, cfg.CORSAllowedOrigins, logger)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLMTimeout*time.Duration(cfg.LLMMaxTurns) + 30*time.Second, // a chat may take several model calls
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Info().
			Str("addr", serverAddr).
			Str("store", cfg.StoreDriver).
			Str("llm_provider", cfg.LLMProvider).
			Msg("Starting server. Press Ctrl+C to quit.")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Str("addr", serverAddr).Msg("Could not listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return
	}

	log.Info().Msg("Server exiting gracefully")
}
