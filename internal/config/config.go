package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/natefinch/atomic"
	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Board     BoardConfig     `yaml:"board"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
	// Browser origins allowed to call the API; empty allows any origin
	// without credentials
	CORSOrigins []string `yaml:"cors_origins"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret     string `yaml:"secret"`
	ExpireHour int    `yaml:"expire_hour"`
}

// RedisConfig for the optional async index queue and the redis rate-limit backend
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// EndpointLimit overrides the default window for one route pattern.
type EndpointLimit struct {
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"max_requests"`
}

type RateLimitConfig struct {
	Enabled     bool                     `yaml:"enabled"`
	Backend     string                   `yaml:"backend"` // database, redis
	Window      time.Duration            `yaml:"window"`
	MaxRequests int                      `yaml:"max_requests"`
	Endpoints   map[string]EndpointLimit `yaml:"endpoints"`
	// Per-IP token bucket in front of public routes
	PublicRPS   float64 `yaml:"public_rps"`
	PublicBurst int     `yaml:"public_burst"`
}

// LimitFor returns the window and max count that apply to endpoint.
func (r RateLimitConfig) LimitFor(endpoint string) (time.Duration, int) {
	if l, ok := r.Endpoints[endpoint]; ok && l.Window > 0 && l.MaxRequests > 0 {
		return l.Window, l.MaxRequests
	}
	return r.Window, r.MaxRequests
}

type BoardConfig struct {
	PositionStep      int64 `yaml:"position_step"`
	MaxHierarchyDepth int   `yaml:"max_hierarchy_depth"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	// .env is optional; values already in the environment win
	_ = godotenv.Load()

	var cfg *Config

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg = DefaultConfig()
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		fileCfg := DefaultConfig()
		if err := yaml.Unmarshal(data, fileCfg); err != nil {
			return nil, err
		}
		cfg = fileCfg
	}

	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}
	cfg.applyFloors()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: "8080",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "taskflow.db",
		},
		JWT: JWTConfig{
			Secret:     "taskflow-secret-key-change-in-production",
			ExpireHour: 24,
		},
		Redis: RedisConfig{
			Enabled: false,
			Addr:    "localhost:6379",
			DB:      0,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		RateLimit: RateLimitConfig{
			Enabled:     true,
			Backend:     "database",
			Window:      60 * time.Second,
			MaxRequests: 120,
			PublicRPS:   10,
			PublicBurst: 20,
		},
		Board: BoardConfig{
			PositionStep:      1000,
			MaxHierarchyDepth: 10,
		},
	}
}

// applyFloors replaces nonsensical values with defaults.
func (c *Config) applyFloors() {
	def := DefaultConfig()
	if c.Board.PositionStep < 2 {
		c.Board.PositionStep = def.Board.PositionStep
	}
	if c.Board.MaxHierarchyDepth < 1 {
		c.Board.MaxHierarchyDepth = def.Board.MaxHierarchyDepth
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = def.RateLimit.Window
	}
	if c.RateLimit.MaxRequests <= 0 {
		c.RateLimit.MaxRequests = def.RateLimit.MaxRequests
	}
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = def.RateLimit.Backend
	}
}

// overrideFromEnv applies SERVER_*, DB_*, JWT_SECRET, LOG_*, RATE_LIMIT_*,
// BOARD_* and REDIS_URL on top of the file values.
func (c *Config) overrideFromEnv() error {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if origins := os.Getenv("SERVER_CORS_ORIGINS"); origins != "" {
		c.Server.CORSOrigins = nil
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.Server.CORSOrigins = append(c.Server.CORSOrigins, origin)
			}
		}
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		c.JWT.Secret = secret
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}
	if backend := os.Getenv("RATE_LIMIT_BACKEND"); backend != "" {
		c.RateLimit.Backend = backend
	}
	if window := os.Getenv("RATE_LIMIT_WINDOW"); window != "" {
		if d, err := time.ParseDuration(window); err == nil {
			c.RateLimit.Window = d
		}
	}
	if max := os.Getenv("RATE_LIMIT_MAX"); max != "" {
		if n, err := strconv.Atoi(max); err == nil {
			c.RateLimit.MaxRequests = n
		}
	}
	if step := os.Getenv("BOARD_POSITION_STEP"); step != "" {
		if n, err := strconv.ParseInt(step, 10, 64); err == nil {
			c.Board.PositionStep = n
		}
	}
	if depth := os.Getenv("BOARD_MAX_HIERARCHY_DEPTH"); depth != "" {
		if n, err := strconv.Atoi(depth); err == nil {
			c.Board.MaxHierarchyDepth = n
		}
	}
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return fmt.Errorf("REDIS_URL: %w", err)
		}
		c.Redis.Enabled = true
		c.Redis.Addr = opts.Addr
		c.Redis.Password = opts.Password
		c.Redis.DB = opts.DB
	}
	return nil
}

func (c *Config) Save(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return atomic.WriteFile(configPath, bytes.NewReader(data))
}
