// Package main 是应用程序的入口点。
package main

import (
	"context"
	"doc-organizer-go/internal/config"
	"doc-organizer-go/internal/handler"
	"doc-organizer-go/internal/middleware"
	"doc-organizer-go/internal/pipeline"
	"doc-organizer-go/internal/repository"
	"doc-organizer-go/internal/service"
	"doc-organizer-go/pkg/database"
	"doc-organizer-go/pkg/embedding"
	"doc-organizer-go/pkg/es"
	"doc-organizer-go/pkg/kafka"
	"doc-organizer-go/pkg/llm"
	"doc-organizer-go/pkg/log"
	"doc-organizer-go/pkg/storage"
	"doc-organizer-go/pkg/tika"
	"doc-organizer-go/pkg/token"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

func configPath() string {
	if p := os.Getenv(config.EnvPrefix + "_CONFIG"); p != "" {
		return p
	}
	return "./configs/config.yaml"
}

func main() {
	// 1. 初始化配置；配置文件变更时热更新相关度阈值
	threshold := service.NewScoreThreshold(service.DefaultMinScore)
	config.Init(configPath(), func(next config.Config) {
		threshold.Store(next.Search.MinScore)
		log.Infof("配置已重新加载, search.min_score: %.2f", threshold.Load())
	})
	cfg := config.Conf
	threshold.Store(cfg.Search.MinScore)

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis、对象存储与 Elasticsearch
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	storage.InitMinIO(cfg.MinIO)
	if err := es.InitES(cfg.Elasticsearch); err != nil {
		// 托管检索不可用时仍然可以使用本地检索
		log.Errorf("Elasticsearch 初始化失败, 搜索将只使用本地检索: %v", err)
	}
	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	// 4. 初始化 Repository
	userRepo := repository.NewUserRepository(database.DB)
	docRepo := repository.NewDocumentRepository(database.DB)
	searchLogRepo := repository.NewSearchLogRepository(database.DB, database.RDB, cfg.Search.Popular.CacheTTL)
	blacklist := repository.NewTokenBlacklist(database.RDB)
	notificationRepo := repository.NewNotificationRepository(database.RDB)

	// 5. 初始化外部客户端与 Service
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	objectStore := storage.NewObjectStore(storage.MinioClient, cfg.MinIO.BucketName)
	indexer := es.NewIndexer(es.ESClient, cfg.Elasticsearch.IndexName)
	semanticClient := es.NewSemanticClient(es.ESClient, cfg.Elasticsearch, cfg.Search, embeddingClient)

	documentService := service.NewDocumentService(docRepo, objectStore, indexer, producer, cfg.Upload)
	userService := service.NewUserService(userRepo, blacklist, searchLogRepo, documentService, jwtManager)
	searchService := service.NewSearchService(semanticClient, service.NewLocalIndex(docRepo), docRepo, searchLogRepo, threshold, cfg.Search)
	adminService := service.NewAdminService(
		userRepo,
		docRepo,
		indexer,
		semanticClient,
		producer,
		notificationRepo,
		threshold,
		func(ctx context.Context) error {
			sqlDB, err := database.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		func(ctx context.Context) error { return database.RDB.Ping(ctx).Err() },
	)

	// 6. 初始化文件处理管道并启动后台 Kafka 消费者
	processor := pipeline.NewProcessor(docRepo, objectStore, tikaClient, llmClient, embeddingClient, indexer, notificationRepo)
	consumer := kafka.NewConsumer(cfg.Kafka, processor, kafka.NewRedisAttemptCounter(database.RDB))
	consumerCtx, stopConsumer := context.WithCancel(context.Background())
	var consumerWG sync.WaitGroup
	consumerWG.Add(1)
	go func() {
		defer consumerWG.Done()
		consumer.Run(consumerCtx)
	}()

	// 7. 设置 Gin 模式并注册路由
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	authMiddleware := middleware.AuthMiddleware(jwtManager, userService, blacklist)
	userHandler := handler.NewUserHandler(userService)
	documentHandler := handler.NewDocumentHandler(documentService)
	searchHandler := handler.NewSearchHandler(searchService)
	adminHandler := handler.NewAdminHandler(adminService)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			authed := users.Group("/")
			authed.Use(authMiddleware)
			{
				authed.GET("/me", userHandler.GetProfile)
				authed.DELETE("/me", userHandler.DeleteAccount)
				authed.POST("/logout", userHandler.Logout)
			}
		}

		documents := apiV1.Group("/documents")
		documents.Use(authMiddleware)
		{
			documents.GET("/categories", documentHandler.Categories)
			documents.POST("/upload", documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.GET("/:id", documentHandler.Get)
			documents.GET("/:id/preview", documentHandler.Preview)
			documents.GET("/:id/download", documentHandler.Download)
			documents.DELETE("/:id", documentHandler.Delete)
		}

		search := apiV1.Group("/search")
		search.Use(authMiddleware)
		{
			search.POST("", searchHandler.Search)
			search.GET("/history", searchHandler.History)
			search.DELETE("/history", searchHandler.ClearHistory)
			search.GET("/popular", searchHandler.Popular)
			search.GET("/suggestions", searchHandler.Suggestions)
		}

		admin := apiV1.Group("/admin")
		admin.Use(authMiddleware, middleware.AdminAuthMiddleware())
		{
			admin.GET("/users/list", adminHandler.ListUsers)
			admin.GET("/search/status", adminHandler.SearchStatus)
			admin.POST("/search/reindex", adminHandler.Reindex)
		}
	}
	r.GET("/notifications/ws/:token", handler.NewNotificationHandler(notificationRepo, userService, blacklist, jwtManager).Handle)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "ok"})
	})

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("HTTP 服务器关闭失败: %v", err)
	}
	if err := searchService.Close(ctx); err != nil {
		log.Errorf("搜索历史写入未全部完成: %v", err)
	}

	// 等待当前任务处理完再退出，未提交的消息会被重新投递
	stopConsumer()
	consumerWG.Wait()
	log.Info("服务已优雅关闭")
}
