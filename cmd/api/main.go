package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/yourusername/practice-api/internal/config"
	"github.com/yourusername/practice-api/internal/handler"
	"github.com/yourusername/practice-api/internal/middleware"
	"github.com/yourusername/practice-api/internal/repository/local"
	pgRepo "github.com/yourusername/practice-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/practice-api/internal/repository/redis"
	"github.com/yourusername/practice-api/internal/service"
	"github.com/yourusername/practice-api/internal/service/selection"
	"github.com/yourusername/practice-api/pkg/auth"
	"github.com/yourusername/practice-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis с использованием унифицированной конфигурации
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	questionRepo := pgRepo.NewQuestionRepo(db)
	attemptedRepo := pgRepo.NewAttemptedRepo(db)

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	// Локальное хранилище журналов гостевых устройств
	guestStore, err := local.NewGuestStore(cfg.Guest.DataDir)
	if err != nil {
		log.Printf("Failed to initialize GuestStore: %v", err)
		os.Exit(1)
	}

	// --- Инициализация движка подбора вопросов ---
	selectionConfig := selection.DefaultConfig()
	selectionConfig.PoolTTL = cfg.Practice.PoolTTL()
	if cfg.Practice.PoolCacheSize > 0 {
		selectionConfig.PoolCacheSize = cfg.Practice.PoolCacheSize
	}

	poolCache := selection.NewPoolCache(questionRepo, selectionConfig)
	selector := selection.NewSelector(selectionConfig)
	distributor := selection.NewDistributor(poolCache, selector, selectionConfig)

	// --- Инициализация JWTService ---
	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpirationHrs)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	// Инициализируем сервисы
	practiceService := service.NewPracticeService(
		questionRepo,
		attemptedRepo,
		guestStore,
		cacheRepo,
		distributor,
		selectionConfig,
	)

	// Инициализируем обработчики
	practiceHandler := handler.NewPracticeHandler(practiceService)

	// Инициализируем middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	selectRateLimit := middleware.DefaultSelectRateLimitConfig()
	if cfg.Practice.RateLimitPerMin > 0 {
		selectRateLimit.MaxRequests = cfg.Practice.RateLimitPerMin
	}

	// Инициализируем роутер Gin
	router := gin.Default()

	isProduction := gin.Mode() == gin.ReleaseMode

	// Настройка доверенных прокси для корректной работы c.ClientIP()
	// В production (GIN_MODE=release): не доверяем прокси (защита от IP spoofing)
	// В development: доверяем localhost
	if isProduction {
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:8000", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.DeviceIDHeader},
		ExposeHeaders:    []string{"Content-Length", middleware.DeviceIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Настраиваем маршруты API
	api := router.Group("/api")
	{
		practice := api.Group("/practice")
		practice.Use(authMiddleware.OptionalAuth())
		{
			practice.POST("/questions", rateLimiter.Limit(selectRateLimit), practiceHandler.SelectQuestions)
			practice.GET("/questions/:id", middleware.ExtractUintParam("id", "questionID"), practiceHandler.GetQuestion)

			subjects := practice.Group("/subjects/:id")
			subjects.Use(middleware.ExtractUintParam("id", "subjectID"))
			{
				subjects.GET("/topics", practiceHandler.GetTopics)
				subjects.GET("/progress", practiceHandler.GetProgress)
				subjects.POST("/reset", practiceHandler.ResetProgress)
			}
		}
	}

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Server.Port)

	// Ожидаем сигнал остановки
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Создаем контекст с таймаутом для graceful shutdown сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}

	log.Println("Server exited properly")
}
