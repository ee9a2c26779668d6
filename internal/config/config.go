package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"imagededup/internal/models"
)

// Config captures the runtime configuration for imagededup.
type Config struct {
	DBPath         string
	CacheDir       string
	Addr           string
	Algorithm      string
	Threshold      float64
	Workers        int
	Tag            string
	ThumbnailCache int
}

// Load reads IMAGEDEDUP_* environment variables and falls back to defaults.
// Malformed numbers are ignored rather than reported.
func Load() Config {
	homeDir, _ := os.UserHomeDir()
	base := filepath.Join(homeDir, ".imagededup")

	cfg := Config{
		DBPath:         getEnv("IMAGEDEDUP_DB", filepath.Join(base, "imagededup.db")),
		CacheDir:       getEnv("IMAGEDEDUP_CACHE_DIR", filepath.Join(base, "hashcache")),
		Addr:           getEnv("IMAGEDEDUP_ADDR", ":8080"),
		Algorithm:      getEnv("IMAGEDEDUP_ALGORITHM", string(models.AlgoPHash)),
		Threshold:      95,
		Workers:        8,
		Tag:            getEnv("IMAGEDEDUP_TAG", "Duplicate"),
		ThumbnailCache: 512,
	}

	if raw := os.Getenv("IMAGEDEDUP_THRESHOLD"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			cfg.Threshold = v
		}
	}
	if raw := os.Getenv("IMAGEDEDUP_WORKERS"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			cfg.Workers = v
		}
	}
	if raw := os.Getenv("IMAGEDEDUP_THUMBNAIL_CACHE"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			cfg.ThumbnailCache = v
		}
	}

	return cfg
}

// Validate rejects values no command can run with
func (c Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 100 {
		return fmt.Errorf("threshold %.2f out of range 0-100", c.Threshold)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if _, err := models.ParseAlgorithm(c.Algorithm); err != nil {
		return err
	}
	if c.DBPath == "" {
		return fmt.Errorf("database path is empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
