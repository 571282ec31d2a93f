package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// ErrOutOfRange is wrapped by Load when a value parses but cannot be used.
var ErrOutOfRange = errors.New("value out of range")

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins string
	JWTSecret      string

	RedisURL string

	MeiliSearchHost string
	MeiliMasterKey  string

	CloudinaryUploadFolder string

	Match MatchConfig

	SweepSchedule         string
	HousekeepingSchedule  string
	StatsSchedule         string
	WeeklySummarySchedule string
	ArchiveAfter          time.Duration

	MessageRateLimit time.Duration
}

// MatchConfig tunes the similarity scorer and the match pipeline.
type MatchConfig struct {
	Threshold      float64
	CategoryWeight float64
	LocationWeight float64
	DateWeight     float64
	KeywordWeight  float64

	CandidateLimit int
	TopN           int
	Window         time.Duration
	SweepBatch     int

	TriggerDelay time.Duration
	Workers      int
	QueueSize    int
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:3000"),
		JWTSecret:      os.Getenv("JWT_SECRET"),

		RedisURL: os.Getenv("REDIS_URL"),

		MeiliSearchHost: os.Getenv("MEILISEARCH_HOST"),
		MeiliMasterKey:  os.Getenv("MEILI_MASTER_KEY"),

		CloudinaryUploadFolder: getEnv("CLOUDINARY_UPLOAD_FOLDER", "lost_found_chat"),

		SweepSchedule:         getEnv("SWEEP_SCHEDULE", "@every 1h"),
		HousekeepingSchedule:  getEnv("HOUSEKEEPING_SCHEDULE", "@every 24h"),
		StatsSchedule:         getEnv("STATS_SCHEDULE", "@every 6h"),
		WeeklySummarySchedule: getEnv("WEEKLY_SUMMARY_SCHEDULE", "@weekly"),
	}

	var err error
	m := &cfg.Match

	floats := []struct {
		key      string
		fallback string
		dst      *float64
	}{
		{"MATCH_THRESHOLD", "0.7", &m.Threshold},
		{"MATCH_WEIGHT_CATEGORY", "0.3", &m.CategoryWeight},
		{"MATCH_WEIGHT_LOCATION", "0.3", &m.LocationWeight},
		{"MATCH_WEIGHT_DATE", "0.2", &m.DateWeight},
		{"MATCH_WEIGHT_KEYWORD", "0.2", &m.KeywordWeight},
	}
	for _, f := range floats {
		if *f.dst, err = strconv.ParseFloat(getEnv(f.key, f.fallback), 64); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", f.key, err)
		}
		if *f.dst < 0 {
			return nil, fmt.Errorf("invalid %s: %w: must not be negative", f.key, ErrOutOfRange)
		}
	}
	if m.Threshold > 1 {
		return nil, fmt.Errorf("invalid MATCH_THRESHOLD: %w: must be within [0,1]", ErrOutOfRange)
	}

	ints := []struct {
		key      string
		fallback string
		dst      *int
	}{
		{"MATCH_CANDIDATE_LIMIT", "50", &m.CandidateLimit},
		{"MATCH_TOP_N", "5", &m.TopN},
		{"MATCH_SWEEP_BATCH", "100", &m.SweepBatch},
		{"MATCH_WORKERS", "4", &m.Workers},
		{"MATCH_QUEUE_SIZE", "256", &m.QueueSize},
	}
	for _, i := range ints {
		if *i.dst, err = strconv.Atoi(getEnv(i.key, i.fallback)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", i.key, err)
		}
		if *i.dst <= 0 {
			return nil, fmt.Errorf("invalid %s: %w: must be positive", i.key, ErrOutOfRange)
		}
	}

	// only the trigger delay may be zero
	durations := []struct {
		key       string
		fallback  string
		dst       *time.Duration
		allowZero bool
	}{
		{"MATCH_WINDOW", "168h", &m.Window, false},
		{"MATCH_TRIGGER_DELAY", "2s", &m.TriggerDelay, true},
		{"ARCHIVE_AFTER", "8760h", &cfg.ArchiveAfter, false},
		{"MESSAGE_RATE_LIMIT", "1s", &cfg.MessageRateLimit, false},
	}
	for _, d := range durations {
		if *d.dst, err = parseDuration(getEnv(d.key, d.fallback)); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if *d.dst < 0 || (*d.dst == 0 && !d.allowZero) {
			return nil, fmt.Errorf("invalid %s: %w: must be positive", d.key, ErrOutOfRange)
		}
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseDuration(s string) (time.Duration, error) {
	return time.ParseDuration(s)
}
