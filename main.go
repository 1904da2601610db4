package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"T2V/controller"
	"T2V/dao/store"
	"T2V/logic"
	"T2V/middleware"
	"T2V/pkg/provider"
	"T2V/pkg/queue"
	"T2V/pkg/snowflake"
	"T2V/pkg/sse"
	"T2V/settings"
	"T2V/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	cfg, err := settings.Init()
	if err != nil {
		panic("failed to load settings: " + err.Error())
	}

	logger := newLogger(cfg.GinMode)
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	if err := snowflake.Init(cfg.MachineID); err != nil {
		zap.L().Fatal("failed to init snowflake", zap.Error(err))
	}

	taskStore, err := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.TaskTTL)
	if err != nil {
		zap.L().Fatal("failed to init redis", zap.Error(err))
	}

	// 配置了 AMQP 就用持久化下载队列，否则用进程内队列
	var downloadQueue queue.DownloadQueue
	if cfg.AMQPURL != "" {
		downloadQueue, err = queue.NewAMQPQueue(cfg.AMQPURL)
		if err != nil {
			zap.L().Fatal("failed to init rabbitmq", zap.Error(err))
		}
		zap.L().Info("download queue: rabbitmq")
	} else {
		downloadQueue = queue.NewMemoryQueue(256)
		zap.L().Info("download queue: in-process")
	}
	defer downloadQueue.Close()

	upstream := provider.NewClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderTimeout)
	hub := sse.NewHub()

	svc := logic.NewService(taskStore, upstream, downloadQueue, hub,
		cfg.PublicBaseURL+"/callback", cfg.BatchConcurrency)

	processor := worker.NewProcessor(downloadQueue, upstream, taskStore, hub,
		cfg.VideoDir, cfg.StaticPrefix, cfg.DownloadTimeout)
	go processor.Run()

	gin.SetMode(cfg.GinMode)
	r := gin.Default()

	h := controller.NewHandler(svc)

	// 上游回调不鉴权，必须对外可达；转存后的结果文件走静态服务
	r.POST("/callback", h.ProviderCallback)
	r.Static(cfg.StaticPrefix, cfg.VideoDir)
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })

	// 第一方接口统一过共享密钥
	auth := r.Group("/", middleware.APIKeyAuth(cfg.APISecret))
	{
		auth.POST("/video/create", h.CreateVideo)
		auth.POST("/video/batch_create", h.BatchCreate)
		auth.GET("/video/status", h.GetStatus)
		auth.GET("/video/list", h.ListVideos)
		auth.GET("/video/events", sse.Handler(hub))
		auth.DELETE("/tasks/:id", h.DeleteTask)
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: r,
	}
	go func() {
		zap.L().Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zap.L().Fatal("listen failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zap.L().Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		zap.L().Error("shutdown error", zap.Error(err))
	}
}

func newLogger(mode string) *zap.Logger {
	if mode == gin.ReleaseMode {
		l, _ := zap.NewProduction()
		return l
	}
	l, _ := zap.NewDevelopment()
	return l
}
