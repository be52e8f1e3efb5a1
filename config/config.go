package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port     string
	MongoURI string
	DBName   string

	// Cover storage; endpoints are disabled when S3Bucket is empty.
	S3Bucket      string
	S3Region      string
	S3AccessKeyID string
	S3SecretKey   string

	// Loan emails; disabled when SMTPHost is empty.
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string

	OverdueScanInterval time.Duration

	// Directory the role-gated dashboard pages are served from.
	PagesDir  string
	PublicDir string
}

func Load() (*Config, error) {
	smtpPort := 587
	if v := getEnv("SMTP_PORT", ""); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			smtpPort = n
		}
	}
	scanInterval := 12 * time.Hour
	if v := getEnv("OVERDUE_SCAN_INTERVAL", ""); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			scanInterval = d
		}
	}

	return &Config{
		Port:                getEnv("PORT", "5000"),
		MongoURI:            getEnv("MONGODB_URI", "mongodb://127.0.0.1:27017"),
		DBName:              getEnv("MONGODB_DB", "libraryDB"),
		S3Bucket:            getEnv("AWS_S3_BUCKET", ""),
		S3Region:            getEnv("AWS_REGION", "us-east-1"),
		S3AccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		S3SecretKey:         getEnv("AWS_SECRET_ACCESS_KEY", ""),
		SMTPHost:            getEnv("SMTP_HOST", ""),
		SMTPPort:            smtpPort,
		SMTPUsername:        getEnv("SMTP_USERNAME", ""),
		SMTPPassword:        getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:            getEnv("SMTP_FROM", "library@localhost"),
		OverdueScanInterval: scanInterval,
		PagesDir:            getEnv("PAGES_DIR", "pages"),
		PublicDir:           getEnv("PUBLIC_DIR", "public"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
