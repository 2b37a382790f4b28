package config

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Session SessionConfig
	AI      AIConfig
	Log     LogConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	backend, err := loadBackendConfig()
	if err != nil {
		return nil, err
	}

	session, err := loadSessionConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:  server,
		Backend: backend,
		Session: session,
		AI:      ai,
		Log:     loadLogConfig(),
	}, nil
}

// ServerConfig 描述开发用后端的 HTTP 服务配置。
type ServerConfig struct {
	Addr             string
	AllowedOrigins   []string
	ReminderInterval time.Duration
	ReminderWindow   time.Duration
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8000"
	}

	cfg := ServerConfig{
		AllowedOrigins: splitList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:4200,http://localhost:80")),
	}

	var err error
	if cfg.ReminderInterval, err = parseDurationEnv("REMINDER_INTERVAL", time.Hour); err != nil {
		return ServerConfig{}, err
	}
	if cfg.ReminderWindow, err = parseDurationEnv("REMINDER_WINDOW", 24*time.Hour); err != nil {
		return ServerConfig{}, err
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8000" 或 "127.0.0.1:8000"。
		cfg.Addr = port
		return cfg, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	cfg.Addr = ":" + port
	return cfg, nil
}

// BackendConfig 描述 REST 后端的访问方式。
type BackendConfig struct {
	BaseURL string
	Timeout time.Duration
}

func loadBackendConfig() (BackendConfig, error) {
	baseURL := getEnvOrDefault("ASSISTANT_API_URL", "http://localhost:8000/api")
	if err := validateURL("ASSISTANT_API_URL", baseURL, "http", "https"); err != nil {
		return BackendConfig{}, err
	}

	timeout, err := parseDurationEnv("ASSISTANT_HTTP_TIMEOUT", 15*time.Second)
	if err != nil {
		return BackendConfig{}, err
	}

	return BackendConfig{BaseURL: strings.TrimRight(baseURL, "/"), Timeout: timeout}, nil
}

// SessionConfig 描述实时会话通道与重连策略。
type SessionConfig struct {
	BaseURL             string
	HandshakeTimeout    time.Duration
	ReconnectDelay      time.Duration
	ReconnectMaxDelay   time.Duration
	ReconnectMultiplier float64
	ReconnectMaxRetries int
}

func loadSessionConfig() (SessionConfig, error) {
	baseURL := getEnvOrDefault("ASSISTANT_WS_URL", "ws://localhost:8000")
	if err := validateURL("ASSISTANT_WS_URL", baseURL, "ws", "wss"); err != nil {
		return SessionConfig{}, err
	}

	handshake, err := parseDurationEnv("ASSISTANT_WS_HANDSHAKE_TIMEOUT", 10*time.Second)
	if err != nil {
		return SessionConfig{}, err
	}

	delay, err := parseDurationEnv("RECONNECT_DELAY", 3*time.Second)
	if err != nil {
		return SessionConfig{}, err
	}

	maxDelay, err := parseDurationEnv("RECONNECT_MAX_DELAY", 30*time.Second)
	if err != nil {
		return SessionConfig{}, err
	}
	if maxDelay < delay {
		maxDelay = delay
	}

	multiplier := 2.0
	if override, err := parseOptionalFloatEnv("RECONNECT_MULTIPLIER"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return SessionConfig{}, fmt.Errorf("invalid RECONNECT_MULTIPLIER value %v: must be >= 1", *override)
		}
		multiplier = *override
	}

	maxRetries := 10
	if override, err := parseOptionalIntEnv("RECONNECT_MAX_ATTEMPTS"); err != nil {
		return SessionConfig{}, err
	} else if override != nil {
		// 0 表示不限次数，与最初的无限重连行为一致。
		if *override < 0 {
			maxRetries = 0
		} else {
			maxRetries = *override
		}
	}

	return SessionConfig{
		BaseURL:             strings.TrimRight(baseURL, "/"),
		HandshakeTimeout:    handshake,
		ReconnectDelay:      delay,
		ReconnectMaxDelay:   maxDelay,
		ReconnectMultiplier: multiplier,
		ReconnectMaxRetries: maxRetries,
	}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float64
	MaxTokens   *int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		APIKey:      strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:   strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:   strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:       strings.TrimSpace(os.Getenv("Model")),
		BaseURL:     getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:      getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature: temperature,
		MaxTokens:   maxTokens,
	}, nil
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string
	Format string
}

func loadLogConfig() LogConfig {
	return LogConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "console"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func validateURL(key, raw string, schemes ...string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	for _, scheme := range schemes {
		if u.Scheme == scheme && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("invalid %s value %q: expected %s URL", key, raw, strings.Join(schemes, "/"))
}

func parseDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("invalid %s value %q: must not be negative", key, raw)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
