package config

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"
)

type DownloadsMode string

const (
	DownloadsModeIndexed DownloadsMode = "indexed" // Media index table plus files (default)
	DownloadsModeLegacy  DownloadsMode = "legacy"  // Plain files in the downloads directory
)

type (
	Config struct {
		HTTP
		API
		Global
		Database
		Downloads
		Covers
		Sync
		Tasks
		Session
	}

	HTTP struct {
		Port int32
		Host string
	}
	// API is the remote catalog server.
	API struct {
		BaseURL        string
		ConnectTimeout time.Duration
		ReadTimeout    time.Duration
		WriteTimeout   time.Duration
		RateLimit      float64 // Requests per second, 0 = unlimited
		RateBurst      int
	}
	Global struct {
		ShutdownTimeoutInSeconds int
	}
	Database struct {
		Path string
	}
	Downloads struct {
		Dir       string
		SubDir    string
		Mode      DownloadsMode
		ChunkSize int
	}
	Covers struct {
		Dir string
	}
	Sync struct {
		PageSize                int
		ClearBooksOnFullRefresh bool
		Enabled                 bool
		Schedule                string // Cron format: "0 */6 * * *" = every 6 hours
	}
	Tasks struct {
		Enabled           bool
		Workers           int
		MaxRetries        int
		RetryDelay        time.Duration
		TaskTimeout       time.Duration
		ReleaseAfter      time.Duration
		CleanupInterval   time.Duration
		RetentionDuration time.Duration
	}
	Session struct {
		Lifetime      time.Duration
		CSRFSecret    string // CSRF protection is off when empty
		SecureCookies bool   // Set to false for local dev without HTTPS
	}
)

// DownloadsPath is the directory downloaded books are written to.
func (d Downloads) DownloadsPath() string {
	return filepath.Join(d.Dir, d.SubDir)
}

// RelativePath is the location of downloads recorded in the media index.
func (d Downloads) RelativePath() string {
	return "Download/" + d.SubDir + "/"
}

// TasksDatabasePath is the sibling database of the task queue.
func (d Database) TasksDatabasePath() string {
	ext := filepath.Ext(d.Path)
	return strings.TrimSuffix(d.Path, ext) + "-tasks" + ext
}

func defaultDownloadsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./Downloads"
	}
	return filepath.Join(home, "Downloads")
}

// loadDotEnv reads an optional .env file. Variables already set in the
// environment take precedence.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: failed to load .env file: %v", err)
	}
}

func NewConfig() *Config {
	loadDotEnv()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("port", 8190)
	v.SetDefault("host", "127.0.0.1")
	v.SetDefault("shutdown_timeout_in_seconds", 2)
	v.SetDefault("database_path", DefaultDatabasePath)

	// Catalog server defaults
	v.SetDefault("api_base_url", DefaultAPIBaseURL)
	v.SetDefault("api_connect_timeout", "10s")
	v.SetDefault("api_read_timeout", "30s")
	v.SetDefault("api_write_timeout", "30s")
	v.SetDefault("api_rate_limit", 0)
	v.SetDefault("api_rate_burst", 4)

	// Download defaults
	v.SetDefault("downloads_dir", defaultDownloadsDir())
	v.SetDefault("downloads_subdir", DefaultDownloadsSubDir)
	v.SetDefault("downloads_mode", string(DownloadsModeIndexed))
	v.SetDefault("download_chunk_size", 8192)
	v.SetDefault("covers_dir", "./covers")

	// Sync defaults
	v.SetDefault("sync_page_size", 20)
	v.SetDefault("sync_clear_books_on_full_refresh", false)
	v.SetDefault("sync_enabled", false)
	v.SetDefault("sync_schedule", "0 */6 * * *") // Every 6 hours

	// Session defaults
	v.SetDefault("session_lifetime", "24h")
	v.SetDefault("csrf_secret", "")
	v.SetDefault("secure_cookies", false) // Local API is served over plain HTTP

	// Task queue defaults
	v.SetDefault("tasks_enabled", true)
	v.SetDefault("task_workers", 2)
	v.SetDefault("task_max_retries", 3)
	v.SetDefault("task_retry_delay", "1m")
	v.SetDefault("task_timeout", "30m")
	v.SetDefault("task_release_after", "45m")
	v.SetDefault("task_cleanup_interval", "1h")
	v.SetDefault("task_retention_duration", "24h")

	return &Config{
		HTTP: HTTP{
			Port: v.GetInt32("PORT"),
			Host: v.GetString("HOST"),
		},
		API: API{
			BaseURL:        v.GetString("API_BASE_URL"),
			ConnectTimeout: v.GetDuration("API_CONNECT_TIMEOUT"),
			ReadTimeout:    v.GetDuration("API_READ_TIMEOUT"),
			WriteTimeout:   v.GetDuration("API_WRITE_TIMEOUT"),
			RateLimit:      v.GetFloat64("API_RATE_LIMIT"),
			RateBurst:      v.GetInt("API_RATE_BURST"),
		},
		Global: Global{
			ShutdownTimeoutInSeconds: v.GetInt("SHUTDOWN_TIMEOUT_IN_SECONDS"),
		},
		Database: Database{
			Path: v.GetString("DATABASE_PATH"),
		},
		Downloads: Downloads{
			Dir:       v.GetString("DOWNLOADS_DIR"),
			SubDir:    v.GetString("DOWNLOADS_SUBDIR"),
			Mode:      DownloadsMode(strings.ToLower(v.GetString("DOWNLOADS_MODE"))),
			ChunkSize: v.GetInt("DOWNLOAD_CHUNK_SIZE"),
		},
		Covers: Covers{
			Dir: v.GetString("COVERS_DIR"),
		},
		Sync: Sync{
			PageSize:                v.GetInt("SYNC_PAGE_SIZE"),
			ClearBooksOnFullRefresh: v.GetBool("SYNC_CLEAR_BOOKS_ON_FULL_REFRESH"),
			Enabled:                 v.GetBool("SYNC_ENABLED"),
			Schedule:                v.GetString("SYNC_SCHEDULE"),
		},
		Tasks: Tasks{
			Enabled:           v.GetBool("TASKS_ENABLED"),
			Workers:           v.GetInt("TASK_WORKERS"),
			MaxRetries:        v.GetInt("TASK_MAX_RETRIES"),
			RetryDelay:        v.GetDuration("TASK_RETRY_DELAY"),
			TaskTimeout:       v.GetDuration("TASK_TIMEOUT"),
			ReleaseAfter:      v.GetDuration("TASK_RELEASE_AFTER"),
			CleanupInterval:   v.GetDuration("TASK_CLEANUP_INTERVAL"),
			RetentionDuration: v.GetDuration("TASK_RETENTION_DURATION"),
		},
		Session: Session{
			Lifetime:      v.GetDuration("SESSION_LIFETIME"),
			CSRFSecret:    v.GetString("CSRF_SECRET"),
			SecureCookies: v.GetBool("SECURE_COOKIES"),
		},
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var problems []error

	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, fmt.Errorf("API_BASE_URL %q is not an absolute URL", c.API.BaseURL))
	}
	if c.API.ConnectTimeout <= 0 || c.API.ReadTimeout <= 0 || c.API.WriteTimeout <= 0 {
		problems = append(problems, errors.New("API timeouts must be positive"))
	}
	if c.API.RateLimit < 0 {
		problems = append(problems, errors.New("API_RATE_LIMIT must not be negative"))
	}
	if c.Database.Path == "" {
		problems = append(problems, errors.New("DATABASE_PATH is required"))
	}
	if c.Downloads.Dir == "" || c.Downloads.SubDir == "" {
		problems = append(problems, errors.New("DOWNLOADS_DIR and DOWNLOADS_SUBDIR are required"))
	}
	if strings.ContainsAny(c.Downloads.SubDir, `/\`) || c.Downloads.SubDir == ".." {
		problems = append(problems, fmt.Errorf("DOWNLOADS_SUBDIR %q must be a single directory name", c.Downloads.SubDir))
	}
	switch c.Downloads.Mode {
	case DownloadsModeIndexed, DownloadsModeLegacy:
	default:
		problems = append(problems, fmt.Errorf("DOWNLOADS_MODE %q must be %q or %q", c.Downloads.Mode, DownloadsModeIndexed, DownloadsModeLegacy))
	}
	if c.Downloads.ChunkSize <= 0 {
		problems = append(problems, errors.New("DOWNLOAD_CHUNK_SIZE must be positive"))
	}
	if c.Sync.PageSize <= 0 {
		problems = append(problems, errors.New("SYNC_PAGE_SIZE must be positive"))
	}
	if c.Sync.Enabled {
		if _, err := cron.ParseStandard(c.Sync.Schedule); err != nil {
			problems = append(problems, fmt.Errorf("SYNC_SCHEDULE %q: %w", c.Sync.Schedule, err))
		}
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		problems = append(problems, fmt.Errorf("PORT %d is out of range", c.HTTP.Port))
	}
	if c.Tasks.Enabled && c.Tasks.Workers <= 0 {
		problems = append(problems, errors.New("TASK_WORKERS must be positive when tasks are enabled"))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(problems...))
	}
	return nil
}
