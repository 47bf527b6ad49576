package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"collab_workspace/internal/config"
	"collab_workspace/internal/handler"
	"collab_workspace/internal/hub"
	"collab_workspace/internal/middleware"
	"collab_workspace/internal/repository"
	"collab_workspace/internal/service"
	"collab_workspace/pkg/logger"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger := logger.New(cfg.Log.Level)

	// Подключение к PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	// Проверка подключения к БД
	if err := dbPool.Ping(context.Background()); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	// Подключение к Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	// Проверка подключения к Redis
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		appLogger.Fatal("Failed to connect to Redis", "error", err)
	}
	appLogger.Info("Redis connection established")

	// Инициализация репозиториев
	repos := repository.NewRepositories(dbPool, rdb, appLogger)

	// Инициализация сервисов
	services := service.NewServices(repos, appLogger)

	// Узел реального времени
	hubSrv := hub.NewHub(cfg, repos, appLogger)
	hubSrv.Start()

	// Инициализация middleware
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.Quota, appLogger)

	// Инициализация handlers
	handlers := handler.NewHandlers(services, hubSrv, appLogger)

	// Настройка роутера
	router := setupRouter(handlers, hubSrv, rateLimitMiddleware, cfg, appLogger)

	// Запуск HTTP сервера
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}

	// Финальный сброс всех сессий перед выходом
	hubSrv.Shutdown()

	appLogger.Info("Server exited")
}

func setupRouter(
	handlers *handler.Handlers,
	hubSrv *hub.Hub,
	rateLimitMiddleware *middleware.RateLimitMiddleware,
	cfg *config.Config,
	log logger.Logger,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler(log))

	// Health check
	router.GET("/health", handlers.Health.Check)

	// API
	api := router.Group("/api")
	api.Use(rateLimitMiddleware.Limit())
	{
		rooms := api.Group("/rooms")
		{
			rooms.POST("", handlers.Room.Create)
			rooms.GET("", handlers.Room.List)
			rooms.GET("/:id", handlers.Room.GetByID)
			rooms.PUT("/:id", handlers.Room.Update)
			rooms.DELETE("/:id", handlers.Room.Delete)
		}

		users := api.Group("/users")
		{
			users.POST("", handlers.User.Create)
			users.GET("/:id", handlers.User.GetByID)
			users.PUT("/:id", handlers.User.Update)
		}
	}

	// WebSocket endpoint узла реального времени
	router.GET("/ws", hubSrv.ServeWS)

	return router
}
