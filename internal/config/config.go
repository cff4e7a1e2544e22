package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds server configuration, loaded from the environment. A .env
// file in the working directory is honored when present.
type Config struct {
	Addr         string
	DBPath       string
	LogLevel     string
	JWTSecret    string
	CronSecret   string
	ScanInterval time.Duration

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
}

// Load reads configuration from the environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Addr:            getenv("REMINDHUB_ADDR", ":8080"),
		DBPath:          getenv("REMINDHUB_DB_PATH", "remindhub.db"),
		LogLevel:        getenv("REMINDHUB_LOG_LEVEL", "info"),
		JWTSecret:       strings.TrimSpace(os.Getenv("REMINDHUB_JWT_SECRET")),
		CronSecret:      strings.TrimSpace(os.Getenv("REMINDHUB_CRON_SECRET")),
		VAPIDPublicKey:  strings.TrimSpace(os.Getenv("VAPID_PUBLIC_KEY")),
		VAPIDPrivateKey: strings.TrimSpace(os.Getenv("VAPID_PRIVATE_KEY")),
		VAPIDSubject:    getenv("VAPID_SUBJECT", "mailto:noreply@remindhub.app"),
	}

	if cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("missing env: REMINDHUB_JWT_SECRET")
	}

	// Seconds; 0 disables the internal scheduler (external cron mode).
	intervalStr := getenv("REMINDHUB_SCAN_INTERVAL", "60")
	seconds, err := strconv.Atoi(intervalStr)
	if err != nil || seconds < 0 {
		return cfg, fmt.Errorf("invalid REMINDHUB_SCAN_INTERVAL %q", intervalStr)
	}
	cfg.ScanInterval = time.Duration(seconds) * time.Second

	return cfg, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}
