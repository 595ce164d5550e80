package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr       string
	LogLevel       string
	RequestTimeout time.Duration

	// OwnerID — единственный пользователь, которому разрешены команды
	// открытия/закрытия группы из личного чата.
	OwnerID string

	// ImagesArchiveChat — чат-архив, в который пересылаются наборы изображений.
	ImagesArchiveChat string

	DataDir      string
	MetadataPath string
	StatsPath    string

	CloseCron string
	OpenCron  string

	ImageCap      int
	ImageWindow   time.Duration
	AdminCacheTTL time.Duration

	Bridge BridgeConfig
}

// BridgeConfig описывает подключение к HTTP-мосту WhatsApp Web.
type BridgeConfig struct {
	APIBaseURL    string
	APIToken      string
	WebhookSecret string
}

func Load() (Config, error) {
	var cfg Config

	cfg.HTTPAddr = getEnv("HTTP_ADDR", ":8080")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.OwnerID = getEnv("OWNER_ID", "")
	cfg.ImagesArchiveChat = getEnv("IMAGES_ARCHIVE_CHAT", "")

	cfg.DataDir = getEnv("DATA_DIR", "./lectures")
	cfg.MetadataPath = getEnv("METADATA_PATH", filepath.Join(cfg.DataDir, "metadata.json"))
	cfg.StatsPath = getEnv("STATS_PATH", filepath.Join(cfg.DataDir, "stats.json"))

	cfg.CloseCron = getEnv("CLOSE_CRON", "0 22 * * *")
	cfg.OpenCron = getEnv("OPEN_CRON", "0 8 * * *")

	reqTimeout, err := parseDuration(getEnv("HTTP_CLIENT_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse HTTP_CLIENT_TIMEOUT: %w", err)
	}
	cfg.RequestTimeout = reqTimeout

	imageWindow, err := parseDuration(getEnv("IMAGE_WINDOW", "60s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse IMAGE_WINDOW: %w", err)
	}
	cfg.ImageWindow = imageWindow

	adminTTL, err := parseDuration(getEnv("ADMIN_CACHE_TTL", "2m"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ADMIN_CACHE_TTL: %w", err)
	}
	cfg.AdminCacheTTL = adminTTL

	imageCap, err := parseIntDefault(os.Getenv("IMAGE_CAP"), 10)
	if err != nil {
		return Config{}, fmt.Errorf("parse IMAGE_CAP: %w", err)
	}
	cfg.ImageCap = imageCap

	cfg.Bridge = BridgeConfig{
		APIBaseURL:    getEnv("BRIDGE_API_URL", "http://localhost:3000"),
		APIToken:      getEnv("BRIDGE_API_TOKEN", ""),
		WebhookSecret: getEnv("BRIDGE_WEBHOOK_SECRET", ""),
	}

	return cfg, nil
}

func parseDuration(value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("duration is empty")
	}
	return time.ParseDuration(value)
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

// parseIntDefault разбирает необязательное целое со значением по умолчанию.
func parseIntDefault(value string, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}
