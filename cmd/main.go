package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"

	"github.com/KhrulSergey/league-core/clients"
	"github.com/KhrulSergey/league-core/config"
	"github.com/KhrulSergey/league-core/db"
	"github.com/KhrulSergey/league-core/events"
	"github.com/KhrulSergey/league-core/finance"
	"github.com/KhrulSergey/league-core/handlers"
	"github.com/KhrulSergey/league-core/repositories"
	api "github.com/KhrulSergey/league-core/routes"
	"github.com/KhrulSergey/league-core/services"
)

func main() {
	// Настройка логгера
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Подключение к базе данных
	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		} else {
			logger.Info("database connection closed")
		}
	}()
	logger.Info("database connection established")

	// Внешние коллабораторы
	financeClient, err := finance.NewClient(finance.ClientConfig{
		BaseURL: cfg.FinanceBaseURL,
		Timeout: cfg.CollaboratorTimeout,
	})
	if err != nil {
		logger.Error("failed to initialize finance client", slog.Any("error", err))
		os.Exit(1)
	}
	leagueClient, err := clients.NewLeagueClient(cfg.LeagueBaseURL, cfg.CollaboratorTimeout)
	if err != nil {
		logger.Error("failed to initialize league client", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("collaborator clients initialized")

	// WebSocket Hub и нотификатор статусов
	wsHub := events.NewHub()
	go wsHub.Run()
	notifier := events.NewHubNotifier(wsHub)
	logger.Info("WebSocket Hub started")

	// Репозитории
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	roundRepo := repositories.NewPostgresRoundRepository(dbConn)
	seriesRepo := repositories.NewPostgresSeriesRepository(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	proposalRepo := repositories.NewPostgresProposalRepository(dbConn)
	// Serializable: денежные переходы заявок не должны проходить парой
	// конкурентных транзакций, CAS на state дополняет уровень изоляции.
	txRunner := repositories.NewSQLTxRunner(dbConn, sql.LevelSerializable)
	logger.Info("repositories initialized")

	// Сервисы
	matchService := services.NewMatchService(matchRepo)
	seriesService := services.NewSeriesService(seriesRepo, matchRepo)
	roundService := services.NewRoundService(roundRepo, seriesRepo, matchRepo, txRunner)
	tournamentService := services.NewTournamentService(
		tournamentRepo, roundRepo, seriesRepo, matchRepo, proposalRepo,
		leagueClient, txRunner,
	)
	proposalService := services.NewProposalService(
		proposalRepo, tournamentRepo, leagueClient, leagueClient, txRunner,
	)

	eventService := services.NewTournamentEventService(
		logger,
		tournamentRepo, roundRepo, proposalRepo,
		tournamentService, roundService, seriesService, proposalService,
		financeClient, notifier,
		cfg.CollaboratorTimeout,
	)
	matchService.AttachEventService(eventService)
	seriesService.AttachEventService(eventService)
	roundService.AttachEventService(eventService)
	tournamentService.AttachEventService(eventService)
	proposalService.AttachEventService(eventService)
	logger.Info("services initialized")

	// Планировщик календарных переходов статусов
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	go func() {
		logger.Info("tournament status scheduler started",
			slog.Duration("interval", cfg.SchedulerInterval),
			slog.Duration("initial_delay", cfg.SchedulerInitialDelay))

		select {
		case <-time.After(cfg.SchedulerInitialDelay):
		case <-schedulerCtx.Done():
			return
		}
		if err := eventService.RunStatusSweep(schedulerCtx); err != nil {
			logger.Error("scheduler: initial sweep failed", slog.Any("error", err))
		}

		ticker := time.NewTicker(cfg.SchedulerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := eventService.RunStatusSweep(schedulerCtx); err != nil {
					logger.Error("scheduler: periodic sweep failed", slog.Any("error", err))
				}
			case <-schedulerCtx.Done():
				logger.Info("tournament status scheduler stopped")
				return
			}
		}
	}()

	// HTTP-обработчики и маршруты
	tournamentHandler := handlers.NewTournamentHandler(tournamentService)
	proposalHandler := handlers.NewProposalHandler(proposalService)
	matchHandler := handlers.NewMatchHandler(matchService, seriesService, tournamentService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub)

	router := chi.NewRouter()
	api.SetupRoutes(router, cfg.JWTSecretKey, tournamentHandler, proposalHandler, matchHandler, webSocketHandler)
	logger.Info("routes configured")

	// HTTP-сервер
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		stopScheduler()

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
