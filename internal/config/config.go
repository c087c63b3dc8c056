package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath string

	DriveClientID          string
	DriveClientSecret      string
	DriveRedirectURI       string
	DriveRefreshToken      string
	DriveWatchFolderID     string
	DriveProcessedFolderID string
	DrivePendingFolderID   string
	DrivePollWorkers       int

	PDFAIAPIKey    string
	PDFAIBaseURL   string
	PDFAIModel     string
	PDFAITimeoutMs int

	PosClientID     string
	PosClientSecret string
	PosContractID   string
	PosShopID       string
	PosAPIBaseURL   string
	PosAuthBaseURL  string
	PosScope        string
	PosRateLimitRPS int
	PosTimeoutMs    int
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath: getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),

		DriveClientID:          getEnv("DRIVE_CLIENT_ID", ""),
		DriveClientSecret:      getEnv("DRIVE_CLIENT_SECRET", ""),
		DriveRedirectURI:       getEnv("DRIVE_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		DriveRefreshToken:      getEnv("DRIVE_REFRESH_TOKEN", ""),
		DriveWatchFolderID:     getEnv("DRIVE_WATCH_FOLDER_ID", ""),
		DriveProcessedFolderID: getEnv("DRIVE_PROCESSED_FOLDER_ID", ""),
		DrivePendingFolderID:   getEnv("DRIVE_PENDING_FOLDER_ID", ""),
		DrivePollWorkers:       getEnvInt("DRIVE_POLL_WORKERS", 4),

		PDFAIAPIKey:    getEnv("PDF_AI_API_KEY", ""),
		PDFAIBaseURL:   getEnv("PDF_AI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		PDFAIModel:     getEnv("PDF_AI_MODEL", "gemini-2.0-flash"),
		PDFAITimeoutMs: getEnvInt("PDF_AI_TIMEOUT_MS", 60000),

		PosClientID:     getEnv("POS_CLIENT_ID", ""),
		PosClientSecret: getEnv("POS_CLIENT_SECRET", ""),
		PosContractID:   getEnv("POS_CONTRACT_ID", ""),
		PosShopID:       getEnv("POS_SHOP_ID", "1"),
		PosAPIBaseURL:   getEnv("POS_API_BASE_URL", "https://api.smaregi.dev"),
		PosAuthBaseURL:  getEnv("POS_AUTH_BASE_URL", "https://id.smaregi.dev"),
		PosScope:        getEnv("POS_SCOPE", "pos.products:read pos.products:write"),
		PosRateLimitRPS: getEnvInt("POS_RATE_LIMIT_RPS", 5),
		PosTimeoutMs:    getEnvInt("POS_TIMEOUT_MS", 30000),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}
