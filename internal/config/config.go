package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string
	JWTSecret   string

	JudgeProvider    string
	Judge0URL        string
	Judge0APIKey     string
	Judge0APIHost    string
	JudgeTimeLimit   time.Duration
	JudgeHTTPTimeout time.Duration
	JudgeMemoryKB    int64
	DockerHost       string
	WorkspaceRoot    string
	CPUShares        int64

	OpenAIAPIKey        string
	OpenAIModel         string
	FeedbackMaxRetries  int
	FeedbackRetryDelay  time.Duration
	FeedbackPollDelay   time.Duration
	FeedbackPollRetries int

	GradingWorkers int
	GradingLockTTL time.Duration

	SeedEnabled bool
	SeedToken   string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("KODELAB")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Kodelab API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("judge.provider", "judge0")
	v.SetDefault("judge.time_limit_ms", 5000)
	v.SetDefault("judge.http_timeout_ms", 30000)
	v.SetDefault("judge.memory_kb", 128000)
	v.SetDefault("judge.cpu_shares", 512)
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("feedback.max_retries", 2)
	v.SetDefault("feedback.retry_delay_ms", 5000)
	v.SetDefault("feedback.poll_delay_ms", 2000)
	v.SetDefault("feedback.poll_retries", 15)
	v.SetDefault("grading.workers", 2)
	v.SetDefault("grading.lock_ttl_ms", 120000)

	cfg := Config{
		AppName:     v.GetString("app.name"),
		AppEnv:      v.GetString("app.env"),
		AppPort:     v.GetString("app.port"),
		DatabaseURL: v.GetString("database.url"),
		RedisURL:    v.GetString("redis.url"),
		NATSURL:     v.GetString("nats.url"),
		JWTSecret:   v.GetString("jwt.secret"),

		JudgeProvider:    strings.ToLower(v.GetString("judge.provider")),
		Judge0URL:        v.GetString("judge0.url"),
		Judge0APIKey:     v.GetString("judge0.api_key"),
		Judge0APIHost:    v.GetString("judge0.api_host"),
		JudgeTimeLimit:   time.Duration(v.GetInt("judge.time_limit_ms")) * time.Millisecond,
		JudgeHTTPTimeout: time.Duration(v.GetInt("judge.http_timeout_ms")) * time.Millisecond,
		JudgeMemoryKB:    v.GetInt64("judge.memory_kb"),
		DockerHost:       v.GetString("docker_host"),
		WorkspaceRoot:    v.GetString("workspace_root"),
		CPUShares:        v.GetInt64("judge.cpu_shares"),

		OpenAIAPIKey:        v.GetString("openai_api_key"),
		OpenAIModel:         v.GetString("openai.model"),
		FeedbackMaxRetries:  v.GetInt("feedback.max_retries"),
		FeedbackRetryDelay:  time.Duration(v.GetInt("feedback.retry_delay_ms")) * time.Millisecond,
		FeedbackPollDelay:   time.Duration(v.GetInt("feedback.poll_delay_ms")) * time.Millisecond,
		FeedbackPollRetries: v.GetInt("feedback.poll_retries"),

		GradingWorkers: v.GetInt("grading.workers"),
		GradingLockTTL: time.Duration(v.GetInt("grading.lock_ttl_ms")) * time.Millisecond,

		SeedEnabled: v.GetBool("seed.enabled"),
		SeedToken:   v.GetString("seed.token"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.JudgeProvider {
	case "judge0", "docker":
	default:
		return Config{}, fmt.Errorf("unknown judge provider %q", cfg.JudgeProvider)
	}

	if cfg.JudgeProvider == "judge0" && cfg.Judge0URL == "" {
		return Config{}, fmt.Errorf("judge0 url must be provided when the judge0 provider is selected")
	}

	if cfg.JudgeTimeLimit <= 0 {
		cfg.JudgeTimeLimit = 5 * time.Second
	}

	if cfg.GradingWorkers <= 0 {
		cfg.GradingWorkers = 1
	}

	if cfg.FeedbackMaxRetries < 0 {
		cfg.FeedbackMaxRetries = 0
	}

	return cfg, nil
}
