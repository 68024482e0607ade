package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/auth"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/config"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/dispatch"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/geo"
	v1 "github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/handler/http/v1"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/metrics"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/realtime"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/relay"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/repository"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/internal/service"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/pkg/logger"
	"github.com/Yashwatts/accident-traffic-intelligence-sub000/pkg/postgres"
	redisclient "github.com/Yashwatts/accident-traffic-intelligence-sub000/pkg/redis"
	"github.com/sirupsen/logrus"

	_ "github.com/Yashwatts/accident-traffic-intelligence-sub000/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title Accident & Traffic Intelligence API
// @version 1.0
// @description Incident reporting, real-time geospatial notifications and traffic analytics.
// @host localhost:8080
// @BasePath /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func runMigrations(cfg *config.Config, log *logrus.Logger) error {
	log.Info("Running database migrations...")

	migrationURL := cfg.DatabaseURL
	if !strings.HasPrefix(migrationURL, "pgx5://") {
		migrationURL = strings.Replace(migrationURL, "postgres://", "pgx5://", 1)
	}

	m, err := migrate.New(
		"file://migrations",
		migrationURL,
	)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Info("Database migrations applied successfully")
	return nil
}

func overflowPolicy(name string) realtime.OverflowPolicy {
	if name == config.OverflowDisconnect {
		return realtime.DisconnectOnOverflow
	}
	return realtime.DropOldest
}

func main() {
	// Загрузка конфигурации
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	metrics.RegisterDefault()

	// Контекст для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запуск миграций
	if err := runMigrations(cfg, log); err != nil {
		log.Fatalf("Failed to run database migrations: %v", err)
	}

	// Подключение к PostgreSQL
	dbpool, err := postgres.NewPostgresDB(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer dbpool.Close()
	log.Info("Successfully connected to PostgreSQL")

	// Инициализация Redis клиента
	redisClient, err := redisclient.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Info("Successfully connected to Redis")

	// Инициализация репозиториев
	incidentRepo := repository.NewIncidentRepository(dbpool, redisClient, cfg.CacheTTL)
	userRepo := repository.NewUserRepository(dbpool)

	// Аутентификация
	gate := auth.NewGate(auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer), userRepo, cfg.AuthTimeout, log)

	// Реестр комнат и рассылка
	grid := geo.NewGrid(cfg.GridPrecision)
	registry := realtime.NewRegistry(log)
	defer registry.Close()

	var broadcaster dispatch.Broadcaster = registry
	if cfg.RelayEnabled {
		nodeID := cfg.NodeID
		if nodeID == "" {
			nodeID = uuid.NewString()
		}
		publisher := relay.NewPublisher(registry, redisClient, cfg.RelayChannel, nodeID, log)
		publisher.Start(ctx)

		worker := relay.NewWorker(registry, redisClient, cfg.RelayChannel, nodeID, log)
		if err := worker.Start(ctx); err != nil {
			log.Fatalf("Failed to start relay worker: %v", err)
		}
		broadcaster = publisher
		log.WithField("node_id", nodeID).Info("Cross-node relay enabled")
	}

	dispatcher := dispatch.NewDispatcher(broadcaster, dispatch.Options{
		Grid:            grid,
		CreatedRadiusKm: cfg.CreatedFanoutKm,
		UpdatedRadiusKm: cfg.UpdatedFanoutKm,
	}, log)

	// Инициализация сервисов
	incidentService := service.NewIncidentService(incidentRepo, dispatcher, log)
	analyticsService := service.NewAnalyticsService(incidentRepo, cfg.AnalyticsTimeout, cfg.HotspotPrecision, log)

	manager := realtime.NewManager(registry, gate, incidentService, realtime.Options{
		Grid:           grid,
		OutboundBuffer: cfg.OutboundBuffer,
		Overflow:       overflowPolicy(cfg.OverflowPolicy),
	}, log)

	// Инициализация хэндлеров
	handler := v1.NewHandler(incidentService, analyticsService, gate, log)

	// Настройка Gin роутера
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery(), metrics.GinMiddleware())
	api := router.Group("/api/v1")
	handler.RegisterRoutes(api)

	// Постоянные соединения и метрики
	router.GET("/ws", gin.WrapH(realtime.NewWebSocketServer(manager, log)))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))

	// Добавление маршрута для Swagger UI
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Запуск HTTP-сервера
	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	// Запуск сервера в горутине
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Error starting HTTP server: %v", err)
		}
	}()
	log.Infof("HTTP server started on port %s", cfg.HTTPPort)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Received shutdown signal, shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace+5*time.Second)
	defer shutdownCancel()

	// Сначала предупреждаем клиентов и закрываем постоянные соединения
	manager.Shutdown(shutdownCtx, cfg.ShutdownGrace)
	// Останавливаем ретранслятор
	cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Info("Server gracefully stopped")
}
