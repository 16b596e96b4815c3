package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Log       LogConfig       `yaml:"log"`
	DB        DBConfig        `yaml:"db"`
	Request   RequestConfig   `yaml:"request"`
	Wikipedia WikipediaConfig `yaml:"wikipedia"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Declutter DeclutterConfig `yaml:"declutter"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address        string   `yaml:"address"`
	AllowedOrigins []string `yaml:"allowed_origins"` // WebSocket origins, empty allows same-host only
	WebDir         string   `yaml:"web_dir"`         // Built map client, served at /
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path     string   `yaml:"path"`
	CacheTTL Duration `yaml:"cache_ttl"` // Geodata cache entries older than this are pruned
	PruneAt  string   `yaml:"prune_at"`  // Cron schedule for pruning
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries   int           `yaml:"retries"`
	Timeout   Duration      `yaml:"timeout"`
	UserAgent string        `yaml:"user_agent"`
	Backoff   BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// WikipediaConfig holds settings for the geosearch data source.
type WikipediaConfig struct {
	Lang       string `yaml:"lang"`
	Limit      int    `yaml:"limit"`       // Max pages per geosearch (API cap 500)
	ThumbWidth int    `yaml:"thumb_width"` // Requested thumbnail width in px
}

// FetchConfig controls when the feature source refetches around the camera.
type FetchConfig struct {
	RadiusPadding   Distance `yaml:"radius_padding"`
	MinRadius       Distance `yaml:"min_radius"`
	MaxRadius       Distance `yaml:"max_radius"`
	RefetchFraction float64  `yaml:"refetch_fraction"` // Refetch after moving this share of the radius
	RadiusChange    float64  `yaml:"radius_change"`    // Refetch when the radius changes by more than this share
	CacheZoom       int      `yaml:"cache_zoom"`       // Map tile zoom used for cache keys
	Timeout         Duration `yaml:"timeout"`
}

// DeclutterConfig tunes the persistent popup engine.
// Overlap ratio and size clamps are product tuning values, not derived constants.
type DeclutterConfig struct {
	Layer           string   `yaml:"layer"`
	ZoomThreshold   float64  `yaml:"zoom_threshold"`
	SizeMin         float64  `yaml:"size_min"`
	SizeMax         float64  `yaml:"size_max"`
	SizeFallback    float64  `yaml:"size_fallback"`
	MaxOverlapRatio float64  `yaml:"max_overlap_ratio"`
	MinVisiblePx    float64  `yaml:"min_visible_px"`
	MaxOpen         int      `yaml:"max_open"` // 0 = unlimited
	ZoomDelay       Duration `yaml:"zoom_delay"`
	MoveDelay       Duration `yaml:"move_delay"`
	DataDelay       Duration `yaml:"data_delay"`
	WaitForIdle     bool     `yaml:"wait_for_idle"`
}

// DefaultDeclutterConfig returns the engine defaults.
func DefaultDeclutterConfig() DeclutterConfig {
	return DeclutterConfig{
		Layer:           "wikipedia",
		ZoomThreshold:   20,
		SizeMin:         80,
		SizeMax:         340,
		SizeFallback:    200,
		MaxOverlapRatio: 0.10,
		MinVisiblePx:    1,
		MaxOpen:         0,
		ZoomDelay:       Duration(10 * time.Millisecond),
		MoveDelay:       Duration(80 * time.Millisecond),
		DataDelay:       Duration(50 * time.Millisecond),
		WaitForIdle:     true,
	}
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost:1930",
			WebDir:  "./web/dist",
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path:     "./data/wikimap.db",
			CacheTTL: Duration(7 * Day),
			PruneAt:  "@every 1h",
		},
		Request: RequestConfig{
			Retries:   3,
			Timeout:   Duration(30 * time.Second),
			UserAgent: "wikimap/1.0 (Shanghai heritage map)",
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(30 * time.Second),
			},
		},
		Wikipedia: WikipediaConfig{
			Lang:       "en",
			Limit:      500,
			ThumbWidth: 320,
		},
		Fetch: FetchConfig{
			RadiusPadding:   Distance(50),
			MinRadius:       Distance(100),
			MaxRadius:       Distance(10000),
			RefetchFraction: 0.5,
			RadiusChange:    0.25,
			CacheZoom:       16,
			Timeout:         Duration(20 * time.Second),
		},
		Declutter: DefaultDeclutterConfig(),
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// A .env file next to the config (or in the working directory) is loaded first
// so that WIKIMAP_* variables can override file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads the first readable .env file. Missing files are fine.
func loadDotEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Load(p)
		return
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("WIKIMAP_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("WIKIMAP_DB_PATH"); v != "" {
		cfg.DB.Path = v
	}
	if v := os.Getenv("WIKIMAP_WIKIPEDIA_LANG"); v != "" {
		cfg.Wikipedia.Lang = v
	}
}

var langRe = regexp.MustCompile(`^[a-z]{2,3}(-[a-z]+)?$`)

// Validate checks values that would otherwise break the engine at runtime.
func (c *Config) Validate() error {
	if !langRe.MatchString(c.Wikipedia.Lang) {
		return fmt.Errorf("invalid wikipedia.lang '%s': must be a wiki code such as 'en' or 'zh'", c.Wikipedia.Lang)
	}
	if c.Fetch.MinRadius > c.Fetch.MaxRadius {
		return fmt.Errorf("fetch.min_radius (%v) exceeds fetch.max_radius (%v)", c.Fetch.MinRadius, c.Fetch.MaxRadius)
	}
	return c.Declutter.Validate()
}

// Validate checks the declutter tuning values.
func (d *DeclutterConfig) Validate() error {
	if !(d.SizeMin > 0 && d.SizeMax >= d.SizeMin) {
		return fmt.Errorf("declutter size clamp [%v, %v] is invalid", d.SizeMin, d.SizeMax)
	}
	if math.IsNaN(d.ZoomThreshold) || d.ZoomThreshold < 0 {
		return fmt.Errorf("declutter.zoom_threshold must be a non-negative zoom, got %v", d.ZoomThreshold)
	}
	if math.IsNaN(d.MinVisiblePx) || d.MinVisiblePx < 0 {
		return fmt.Errorf("declutter.min_visible_px must not be negative, got %v", d.MinVisiblePx)
	}
	if !(d.MaxOverlapRatio >= 0 && d.MaxOverlapRatio <= 1) {
		return fmt.Errorf("declutter.max_overlap_ratio must be within [0, 1], got %v", d.MaxOverlapRatio)
	}
	if d.MaxOpen < 0 {
		return fmt.Errorf("declutter.max_open must not be negative, got %d", d.MaxOpen)
	}
	for name, v := range map[string]Duration{
		"zoom_delay": d.ZoomDelay,
		"move_delay": d.MoveDelay,
		"data_delay": d.DataDelay,
	} {
		if v < 0 {
			return fmt.Errorf("declutter.%s must not be negative, got %v", name, v)
		}
	}
	return nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Wikimap Configuration
# ---------------------
# Supported Units:
#   Duration: ns, us (or µs), ms, s, m, h, d (day), w (week)
#   Distance: m (meters), km (kilometers)

`)
	data = append(header, data...)

	reOverlap := regexp.MustCompile(`(?m)^(\s+)max_overlap_ratio:`)
	data = reOverlap.ReplaceAll(data, []byte("${1}# Share of the smaller popup that may be covered by another\n${1}max_overlap_ratio:"))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
