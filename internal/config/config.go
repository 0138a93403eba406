package config

import (
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Download core
	DownloadDir   string
	MaxParallel   int
	MaxAttempts   int
	RetryBackoff  time.Duration
	YtdlpPath     string
	FfmpegPath    string
	SocketTimeout time.Duration
	CookiesFile   string

	// Control API
	ServerAddr      string
	LogLevel        string
	ControlPassword string
	JWTSecret       string
	CORSOrigins     []string

	// Event mirror and metadata cache
	RedisURL string
	CacheTTL time.Duration

	// Job history
	DatabaseDriver string
	DatabaseURL    string

	// MinIO/S3 archive of completed files
	ArchiveEnabled bool
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	// Lyrics
	LyricsEndpoint string
}

func Load() *Config {
	maxParallel, _ := strconv.Atoi(getEnvOrDefault("BILIMUSIC_MAX_PARALLEL", "0"))
	if maxParallel < 0 {
		maxParallel = 0
	}

	maxAttempts, _ := strconv.Atoi(getEnvOrDefault("BILIMUSIC_MAX_ATTEMPTS", "3"))
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	minioUseSSL, _ := strconv.ParseBool(getEnvOrDefault("MINIO_USE_SSL", "false"))
	archiveEnabled, _ := strconv.ParseBool(getEnvOrDefault("ARCHIVE_ENABLED", "false"))

	return &Config{
		DownloadDir:     getEnvOrDefault("BILIMUSIC_DOWNLOAD_DIR", defaultDownloadDir()),
		MaxParallel:     maxParallel,
		MaxAttempts:     maxAttempts,
		RetryBackoff:    getDurationOrDefault("BILIMUSIC_RETRY_BACKOFF", 2*time.Second),
		YtdlpPath:       getEnvOrDefault("YTDLP_PATH", "yt-dlp"),
		FfmpegPath:      getEnvOrDefault("FFMPEG_PATH", "ffmpeg"),
		SocketTimeout:   getDurationOrDefault("YTDLP_SOCKET_TIMEOUT", 30*time.Second),
		CookiesFile:     os.Getenv("YTDLP_COOKIES"),
		ServerAddr:      getEnvOrDefault("SERVER_ADDR", "127.0.0.1:8080"),
		LogLevel:        getEnvOrDefault("LOG_LEVEL", "info"),
		ControlPassword: os.Getenv("CONTROL_PASSWORD"),
		JWTSecret:       getEnvOrDefault("JWT_SECRET", generateDefaultSecret()),
		CORSOrigins:     splitList(os.Getenv("CORS_ORIGINS")),
		RedisURL:        os.Getenv("REDIS_URL"),
		CacheTTL:        getDurationOrDefault("CACHE_TTL", time.Hour),
		DatabaseDriver:  getEnvOrDefault("DATABASE_DRIVER", "sqlite3"),
		DatabaseURL:     getEnvOrDefault("DATABASE_URL", defaultDatabaseURL()),
		ArchiveEnabled:  archiveEnabled,
		MinioEndpoint:   getEnvOrDefault("MINIO_ENDPOINT", "localhost:9000"),
		MinioAccessKey:  getEnvOrDefault("MINIO_ACCESS_KEY", "minioadmin"),
		MinioSecretKey:  getEnvOrDefault("MINIO_SECRET_KEY", "minioadmin"),
		MinioBucket:     getEnvOrDefault("MINIO_BUCKET", "bilimusic-audio"),
		MinioUseSSL:     minioUseSSL,
		LyricsEndpoint:  getEnvOrDefault("LYRICS_ENDPOINT", "https://lrclib.net"),
	}
}

// AuthEnabled reports whether the control API requires a token
func (c *Config) AuthEnabled() bool {
	return c.ControlPassword != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// splitList parses a comma separated env value, dropping empty items
func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}

func defaultDownloadDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "downloads"
	}
	return filepath.Join(home, "Music", "bilimusic")
}

func defaultDatabaseURL() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "bilimusic.db"
	}
	return filepath.Join(dir, "bilimusic", "history.db")
}

func generateDefaultSecret() string {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "dev-secret-change-in-production"
	}
	return hex.EncodeToString(bytes)
}
