package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Settings holds the process configuration read from the environment.
type Settings struct {
	Port          string
	DSN           string
	AutoMigrate   bool
	JWTSecret     string
	CatalogPath   string
	AssetsDir     string
	LookupRoot    string
	WorkDir       string
	OutputDir     string
	Background    string
	CanvasWidth   int
	CanvasHeight  int
	PxPerInch     float64
	ColumnTimeout time.Duration
	LocateTimeout time.Duration
	LatencyTarget time.Duration
	QuantityBadge bool
	SizeLabels    bool
	Watermark     string
	LogoPath      string
	LogoCorner    string
}

// LoadDotEnv reads ./.env (or the given files) without overriding variables
// that are already set. A missing file is not an error.
func LoadDotEnv(files ...string) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

// Load reads Settings from the environment, applying defaults.
func Load() (Settings, error) {
	s := Settings{
		Port:          getEnvOrDefault("PORT", "8081"),
		DSN:           os.Getenv("DB_DSN"),
		AutoMigrate:   getEnvAsBool("DB_AUTO_MIGRATE", true),
		JWTSecret:     os.Getenv("JWT_SECRET"),
		CatalogPath:   getEnvOrDefault("CATALOG_PATH", "config/catalog.yaml"),
		AssetsDir:     getEnvOrDefault("ASSETS_DIR", "assets"),
		LookupRoot:    os.Getenv("LOOKUP_ROOT"),
		WorkDir:       getEnvOrDefault("WORK_DIR", "work"),
		OutputDir:     getEnvOrDefault("OUTPUT_DIR", "previews"),
		Background:    os.Getenv("BACKGROUND_DEFAULT"),
		QuantityBadge: getEnvAsBool("QUANTITY_BADGE", false),
		SizeLabels:    getEnvAsBool("SIZE_LABELS", true),
		Watermark:     os.Getenv("WATERMARK_TEXT"),
		LogoPath:      os.Getenv("LOGO_PATH"),
		LogoCorner:    getEnvOrDefault("LOGO_POSITION", "bottom_right"),
	}
	var err error
	if s.CanvasWidth, err = getEnvAsInt("CANVAS_WIDTH", 1920); err != nil {
		return s, err
	}
	if s.CanvasHeight, err = getEnvAsInt("CANVAS_HEIGHT", 1080); err != nil {
		return s, err
	}
	if s.PxPerInch, err = getEnvAsFloat("PX_PER_INCH", 40); err != nil {
		return s, err
	}
	if s.ColumnTimeout, err = getEnvAsDuration("OCR_COLUMN_TIMEOUT", 5*time.Second); err != nil {
		return s, err
	}
	if s.LocateTimeout, err = getEnvAsDuration("LOCATE_TIMEOUT", 10*time.Second); err != nil {
		return s, err
	}
	if s.LatencyTarget, err = getEnvAsDuration("LATENCY_TARGET", time.Second); err != nil {
		return s, err
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate checks ranges that would otherwise fail deep inside a request.
func (s Settings) Validate() error {
	if s.CanvasWidth < 64 || s.CanvasHeight < 64 {
		return fmt.Errorf("canvas %dx%d is too small", s.CanvasWidth, s.CanvasHeight)
	}
	if s.PxPerInch <= 0 {
		return fmt.Errorf("PX_PER_INCH must be positive, got %g", s.PxPerInch)
	}
	if s.ColumnTimeout <= 0 || s.LocateTimeout <= 0 || s.LatencyTarget <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	switch s.LogoCorner {
	case "", "bottom_right", "bottom_left", "top_right", "top_left":
	default:
		return fmt.Errorf("LOGO_POSITION %q is not a corner", s.LogoCorner)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return defaultValue
	case "false", "0", "no", "off":
		return false
	default:
		return true
	}
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func getEnvAsFloat(key string, defaultValue float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}

// getEnvAsDuration accepts Go durations ("750ms") or bare seconds ("5").
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
