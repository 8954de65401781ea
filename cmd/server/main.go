// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dietchat-go/internal/config"
	"dietchat-go/internal/handler"
	"dietchat-go/internal/middleware"
	"dietchat-go/internal/model"
	"dietchat-go/internal/repository"
	"dietchat-go/internal/service"
	"dietchat-go/pkg/database"
	"dietchat-go/pkg/kafka"
	"dietchat-go/pkg/llm"
	"dietchat-go/pkg/log"
	"dietchat-go/pkg/token"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync() // 确保在程序退出时刷新所有缓冲的日志条目
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库、Redis 和 Kafka
	database.InitMySQL(cfg.Database.MySQL.DSN)
	database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if cfg.Kafka.Brokers != "" {
		kafka.InitProducer(cfg.Kafka)
	}

	if err := database.DB.AutoMigrate(
		&model.User{},
		&model.SessionRecord{},
		&model.DietTag{},
		&model.TagConflictRule{},
	); err != nil {
		log.Fatal("数据库迁移失败", err)
	}

	// 4. 初始化 Repository
	userRepository := repository.NewUserRepository(database.DB)
	sessionRepository := repository.NewSessionRepository(database.DB)
	tagRepository := repository.NewTagRepository(database.DB)
	sessionCache := repository.NewSessionCacheRepository(database.RDB)

	// 5. 初始化 Service (依赖注入)
	// AI 服务商配置错误必须在启动时暴露，而不是在第一次聊天时
	llmClient, err := llm.NewClient(cfg.AI)
	if err != nil {
		log.Fatal("AI 服务商初始化失败", err)
	}
	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	userService := service.NewUserService(userRepository, jwtManager)
	tagService := service.NewTagService(tagRepository)
	syncService := service.NewSyncService(sessionRepository, sessionCache)
	sessionService := service.NewSessionService(sessionRepository, sessionCache, tagService)
	classifier := service.NewIntentClassifier(llmClient, time.Duration(cfg.AI.ClassifyTimeoutSeconds)*time.Second)
	streamer := service.NewStreamer(llmClient)
	chatService := service.NewChatService(classifier, streamer, syncService, tagService)

	// 6. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New() // 使用 New() 创建一个不带默认中间件的引擎
	r.Use(middleware.RequestLogger(), gin.Recovery())

	// 7. 注册路由
	apiV1 := r.Group("/api/v1")
	{
		// Auth 路由组
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", handler.NewAuthHandler(userService).RefreshToken)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", handler.NewUserHandler(userService).Register)
			users.POST("/login", handler.NewUserHandler(userService).Login)

			// 需要认证的路由 (仅限登录用户访问)
			authed := users.Group("/")
			authed.Use(middleware.AuthMiddleware(jwtManager, userService))
			{
				authed.GET("/me", handler.NewUserHandler(userService).GetProfile)
				authed.POST("/logout", handler.NewUserHandler(userService).Logout)
			}
		}

		// Session 路由组，需要认证
		sessions := apiV1.Group("/sessions")
		sessions.Use(middleware.AuthMiddleware(jwtManager, userService))
		{
			sessionHandler := handler.NewSessionHandler(sessionService)
			sessions.GET("", sessionHandler.List)
			sessions.GET("/:id", sessionHandler.Get)
			sessions.PUT("/:id/title", sessionHandler.Rename)
			sessions.DELETE("/:id", sessionHandler.Delete)
			sessions.POST("/:id/tags", sessionHandler.AddTag)
			sessions.DELETE("/:id/tags/:tagId", sessionHandler.RemoveTag)
		}

		// Tag 路由组：读公开，写仅限管理员
		tagHandler := handler.NewTagHandler(tagService)
		tags := apiV1.Group("/tags")
		{
			tags.GET("", tagHandler.List)
			tags.POST("/check-conflicts", tagHandler.CheckConflicts)
		}
		adminTags := apiV1.Group("/admin/tags")
		adminTags.Use(middleware.AuthMiddleware(jwtManager, userService), middleware.AdminAuthMiddleware())
		{
			adminTags.POST("", tagHandler.Create)
			adminTags.PUT("/:id", tagHandler.Update)
			adminTags.DELETE("/:id", tagHandler.Delete)
			adminTags.POST("/conflict-rules", tagHandler.CreateRule)
			adminTags.DELETE("/conflict-rules/:id", tagHandler.DeleteRule)
		}
	}

	// Chat 路由 (WebSocket)：认证可选，访客以 ephemeral 会话聊天
	r.GET("/chat",
		middleware.OptionalAuthMiddleware(jwtManager, userService),
		handler.NewChatHandler(chatService, syncService).Handle,
	)

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s\n", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	// 设置一个5秒的超时上下文
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	log.Info("服务已优雅关闭")
}
