package settings

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config 服务运行配置，启动时加载一次，之后只读
type Config struct {
	Addr      string
	GinMode   string
	MachineID int64

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// 上游视频生成服务
	ProviderBaseURL string
	ProviderAPIKey  string
	ProviderTimeout time.Duration

	// 对外可访问的本服务地址，用于拼接回调URL
	PublicBaseURL string

	// 第一方接口共享密钥，为空时跳过鉴权（开发模式）
	APISecret string

	TaskTTL time.Duration

	VideoDir     string
	StaticPrefix string

	// 可选：配置后下载任务走 RabbitMQ 持久化队列
	AMQPURL string

	BatchConcurrency int
	DownloadTimeout  time.Duration
}

// Init 读取 .env（如果存在）和环境变量，返回配置
func Init() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:             envOr("LISTEN_ADDR", ":8080"),
		GinMode:          envOr("GIN_MODE", "debug"),
		MachineID:        envInt64("MACHINE_ID", 1),
		RedisAddr:        envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          int(envInt64("REDIS_DB", 0)),
		ProviderBaseURL:  envOr("PROVIDER_BASE_URL", "https://api.kie.ai"),
		ProviderAPIKey:   os.Getenv("PROVIDER_API_KEY"),
		ProviderTimeout:  time.Duration(envInt64("PROVIDER_TIMEOUT_SECONDS", 30)) * time.Second,
		PublicBaseURL:    envOr("PUBLIC_BASE_URL", "http://localhost:8080"),
		APISecret:        os.Getenv("API_SECRET"),
		TaskTTL:          time.Duration(envInt64("TASK_TTL_HOURS", 168)) * time.Hour,
		VideoDir:         envOr("VIDEO_DIR", "./public/videos"),
		StaticPrefix:     envOr("STATIC_PREFIX", "/videos"),
		AMQPURL:          os.Getenv("AMQP_URL"),
		BatchConcurrency: int(envInt64("BATCH_CONCURRENCY", 10)),
		DownloadTimeout:  time.Duration(envInt64("DOWNLOAD_TIMEOUT_SECONDS", 600)) * time.Second,
	}

	if cfg.ProviderAPIKey == "" {
		return nil, fmt.Errorf("PROVIDER_API_KEY is required")
	}
	if cfg.TaskTTL <= 0 {
		return nil, fmt.Errorf("TASK_TTL_HOURS must be positive")
	}
	return cfg, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt64(k string, def int64) int64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}
