package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/Arham-Tahir64/chitty/internal/bridge"
	httpHandler "github.com/Arham-Tahir64/chitty/internal/handler/http"
	wsHandler "github.com/Arham-Tahir64/chitty/internal/handler/websocket"
	"github.com/Arham-Tahir64/chitty/internal/history"
	"github.com/Arham-Tahir64/chitty/internal/hub"
	gormpersistence "github.com/Arham-Tahir64/chitty/internal/infra/persistence/gorm"
	"github.com/Arham-Tahir64/chitty/internal/infra/setup"
	"github.com/Arham-Tahir64/chitty/internal/middleware"
	"github.com/Arham-Tahir64/chitty/internal/presence"
	"github.com/Arham-Tahir64/chitty/internal/service"
	"github.com/Arham-Tahir64/chitty/internal/worker"
)

// Config 存储从环境变量加载的配置。
type Config struct {
	DBUser          string
	DBPassword      string
	DBHost          string
	DBPort          string
	DBName          string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	JWTSecret       string
	ServerPort      string
	LogLevel        string
	RateLimitMax    int
	RateLimitWindow time.Duration
	JWTExpiryHours  int
	AppEnv          string
	KeyPrefix       string // Redis key 前缀，presence 等共享
	ReconcileSpec   string // 在线状态续期任务的调度表达式
}

// LoadConfig 从环境变量加载配置。
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件，不存在时只用环境变量
	_ = godotenv.Load()

	cfg := &Config{
		DBUser:        os.Getenv("DB_USER"),
		DBPassword:    os.Getenv("DB_PASSWORD"),
		DBHost:        os.Getenv("DB_HOST"),
		DBPort:        os.Getenv("DB_PORT"),
		DBName:        os.Getenv("DB_NAME"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		ServerPort:    os.Getenv("SERVER_PORT"),
		LogLevel:      os.Getenv("LOG_LEVEL"),
		AppEnv:        os.Getenv("APP_ENV"),
		KeyPrefix:     os.Getenv("REDIS_KEY_PREFIX"),

		RateLimitMax:    100,
		RateLimitWindow: time.Second,
		JWTExpiryHours:  24,
		ReconcileSpec:   "@every 30s",
	}

	cfg.RedisDB, _ = strconv.Atoi(os.Getenv("REDIS_DB"))

	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.AppEnv == "" {
		cfg.AppEnv = "development"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "chitty:"
	}
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("environment variable REDIS_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("environment variable JWT_SECRET must be set")
	}

	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// App 持有应用的所有组件。
type App struct {
	Config      *Config
	Log         *logrus.Logger
	DB          *gorm.DB
	RedisClient *redis.Client
	AsynqClient *asynq.Client
	Worker      *worker.WorkerServer
	Hub         *hub.Hub
	Bridge      *bridge.Bridge
	HttpServer  *http.Server

	bridgeCancel context.CancelFunc
}

// NewApp 创建并装配应用的所有组件。
func NewApp() (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return nil, err
	}

	log := logrus.New()
	if cfg.AppEnv == "production" {
		log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, ForceColors: true})
	}
	logLevel, _ := logrus.ParseLevel(cfg.LogLevel)
	log.SetLevel(logLevel)
	log.SetOutput(os.Stdout)
	logrus.SetLevel(logLevel)
	log.Info("Configuration loaded successfully")

	// 基础设施
	db, err := setup.InitDB(cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to init DB: %w", err)
	}
	if err := setup.MigrateDB(db); err != nil {
		return nil, fmt.Errorf("failed to migrate DB: %w", err)
	}
	log.Info("Database initialized and migrated")

	redisClient, err := setup.InitRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("failed to init Redis: %w", err)
	}
	log.Info("Redis client initialized")

	redisClientOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
	asynqClient := asynq.NewClient(redisClientOpt)

	// Repositories
	userRepo := gormpersistence.NewGormUserRepository(db)
	roomRepo := gormpersistence.NewGormRoomRepository(db)
	membershipRepo := gormpersistence.NewGormMembershipRepository(db)
	messageRepo := gormpersistence.NewGormMessageRepository(db)

	// 核心状态
	cache := history.NewCache(history.DefaultCapacity)
	tracker := presence.NewTracker(redisClient, cfg.KeyPrefix)
	registry := hub.NewRegistry()
	// 房间本地清空时释放它的历史缓冲
	registry.OnRoomEmpty(cache.Drop)

	// Services
	authService, err := service.NewAuthService(userRepo, cfg.JWTSecret, cfg.JWTExpiryHours)
	if err != nil {
		return nil, fmt.Errorf("failed to create AuthService: %w", err)
	}
	roomService := service.NewRoomService(roomRepo, membershipRepo, tracker)
	messageService := service.NewMessageService(messageRepo, cache, asynqClient)

	// 跨实例总线与 Hub
	bridgeInstance := bridge.New(redisClient, registry)
	hubInstance := hub.NewHub(registry, cache, tracker, roomService, messageService, messageService, bridgeInstance)
	log.WithField("instance_id", bridgeInstance.InstanceID()).Info("Hub initialized")

	// Handlers
	authHandler := httpHandler.NewAuthHandler(authService)
	roomHandler := httpHandler.NewRoomHandler(roomService, messageService)
	socketHandler := wsHandler.NewWebSocketHandler(hubInstance, authService)

	workerServer := worker.NewWorkerServer(redisClientOpt, messageService, tracker, cfg.ReconcileSpec)

	// 路由
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	router.Use(corsMiddleware())
	router.Use(middleware.RateLimit(redisClient, cfg.RateLimitMax, cfg.RateLimitWindow))

	api := router.Group("/api")
	{
		api.POST("/signup", authHandler.Register)
		api.POST("/login", authHandler.Login)
	}
	authed := api.Group("").Use(middleware.Auth(authService))
	{
		authed.POST("/rooms", roomHandler.CreateRoom)
		authed.POST("/rooms/:code/join", roomHandler.JoinRoom)
		authed.GET("/rooms/:code/members", roomHandler.Members)
		authed.GET("/rooms/:code/messages", roomHandler.Messages)
		authed.GET("/me/rooms", roomHandler.MyRooms)
	}

	// WebSocket 握手用 ?token= 认证，不走 Bearer 中间件
	router.GET("/ws", socketHandler.HandleConnection)

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "ok",
			"instance_id": bridgeInstance.InstanceID(),
			"bus_ready":   bridgeInstance.Ready(),
			"local_rooms": registry.Rooms(),
		})
	})

	httpServer := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: router,
	}

	return &App{
		Config:      cfg,
		Log:         log,
		DB:          db,
		RedisClient: redisClient,
		AsynqClient: asynqClient,
		Worker:      workerServer,
		Hub:         hubInstance,
		Bridge:      bridgeInstance,
		HttpServer:  httpServer,
	}, nil
}

// Start 启动后台协程和 HTTP 服务器。
func (a *App) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	a.bridgeCancel = cancel
	go a.Bridge.Run(ctx)
	a.Log.Info("Bridge routine started")

	go a.Worker.Start()
	a.Log.Info("Worker server routine started")

	go func() {
		a.Log.Infof("HTTP server listening on %s", a.HttpServer.Addr)
		if err := a.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Log.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()
}

// Shutdown 优雅关闭应用。
func (a *App) Shutdown() {
	a.Log.Info("Shutting down application...")

	if a.bridgeCancel != nil {
		a.bridgeCancel()
	}
	if a.Worker != nil {
		a.Worker.Shutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.HttpServer.Shutdown(ctx); err != nil {
		a.Log.Errorf("Error shutting down HTTP server: %v", err)
	}

	if a.AsynqClient != nil {
		if err := a.AsynqClient.Close(); err != nil {
			a.Log.Errorf("Error closing Asynq client: %v", err)
		}
	}
	if a.RedisClient != nil {
		if err := a.RedisClient.Close(); err != nil {
			a.Log.Errorf("Error closing Redis connection: %v", err)
		}
	}

	a.Log.Info("Application shutdown complete.")
}

// corsMiddleware 按环境变量配置跨域响应头。
func corsMiddleware() gin.HandlerFunc {
	allowedOrigin := os.Getenv("CORS_ALLOWED_ORIGIN")
	if allowedOrigin == "" {
		allowedOrigin = "http://localhost:3000"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// LoggerMiddleware 记录每个请求的访问日志。
func LoggerMiddleware(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()
		c.Next()
		latency := time.Since(startTime)
		statusCode := c.Writer.Status()
		path := c.Request.URL.Path
		if c.Request.URL.RawQuery != "" {
			path = path + "?" + c.Request.URL.RawQuery
		}

		entry := log.WithFields(logrus.Fields{
			"status_code": statusCode,
			"latency_ms":  latency.Milliseconds(),
			"client_ip":   c.ClientIP(),
			"method":      c.Request.Method,
			"path":        path,
		})

		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			entry.Error(errorMessage)
		} else if statusCode >= 500 {
			entry.Error("Server error")
		} else if statusCode >= 400 {
			entry.Warn("Client error")
		} else {
			entry.Info("Request handled")
		}
	}
}
