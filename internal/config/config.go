package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/spf13/viper"
)

// Config aggregates application settings sourced from environment variables.
type Config struct {
	API      APIConfig      `mapstructure:"api"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	Render   RenderConfig   `mapstructure:"render"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Scanner  ScannerConfig  `mapstructure:"scanner"`
}

// APIConfig contains HTTP server settings.
type APIConfig struct {
	Port int `mapstructure:"port"`
	// GinMode is one of debug, release or test.
	GinMode string `mapstructure:"gin_mode"`
}

// DatabaseConfig contains connection options for PostgreSQL.
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
}

// RedisConfig 包含 Redis 连接配置。
type RedisConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// MinIOConfig contains connection options for MinIO/S3-compatible storage.
type MinIOConfig struct {
	Endpoint         string `mapstructure:"endpoint"`
	AccessKeyID      string `mapstructure:"access_key_id"`
	SecretAccessKey  string `mapstructure:"secret_access_key"`
	UseSSL           bool   `mapstructure:"use_ssl"`
	Bucket           string `mapstructure:"bucket"`
	Region           string `mapstructure:"region"`
	BucketLookup     string `mapstructure:"bucket_lookup"`
	AutoCreateBucket bool   `mapstructure:"auto_create_bucket"`
}

// RenderConfig 控制文档渲染引擎。
type RenderConfig struct {
	// AssetBaseURL is the origin used for relative remote image references.
	AssetBaseURL string `mapstructure:"asset_base_url"`
	// AllowedAssetHosts are extra hosts remote image references may use (comma separated in env).
	AllowedAssetHosts   []string      `mapstructure:"allowed_asset_hosts"`
	FetchTimeout        time.Duration `mapstructure:"fetch_timeout"`
	MaxAssetBytes       int64         `mapstructure:"max_asset_bytes"`
	PrefetchWorkers     int           `mapstructure:"prefetch_workers"`
	PrefetchWindow      int           `mapstructure:"prefetch_window"`
	CacheTemplateAssets bool          `mapstructure:"cache_template_assets"`
	RateLimitPerMinute  int           `mapstructure:"rate_limit_per_minute"`
}

// AuthConfig 包含 JWT 密钥配置。API 只需要公钥，签发令牌需要私钥。
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"`
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
}

// ScannerConfig 配置上传文件的 clamd 扫描，地址为空时不扫描。
type ScannerConfig struct {
	// ClamdAddr is a clamd url such as tcp://clamav:3310 or unix:///run/clamav/clamd.ctl.
	ClamdAddr string `mapstructure:"clamd_addr"`
}

// DSN builds a lib/pq compatible connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host,
		d.Port,
		d.User,
		d.Password,
		d.Name,
		d.SSLMode,
	)
}

// Addr returns host:port for go-redis.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// Load reads configuration solely from environment variables (with optional defaults).
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := bindEnv(v); err != nil {
		return nil, fmt.Errorf("bind env: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// MustLoad wraps Load and panics on failure.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("api.port", 8080)
	v.SetDefault("api.gin_mode", "release")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "schoolprint")
	v.SetDefault("database.user", "schoolprint")
	v.SetDefault("database.password", "schoolprint")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("minio.endpoint", "localhost:9000")
	v.SetDefault("minio.use_ssl", false)
	v.SetDefault("minio.bucket", "school-assets")
	v.SetDefault("minio.bucket_lookup", "auto")
	v.SetDefault("minio.auto_create_bucket", true)
	v.SetDefault("render.fetch_timeout", 10*time.Second)
	v.SetDefault("render.max_asset_bytes", 8<<20)
	v.SetDefault("render.prefetch_workers", 4)
	v.SetDefault("render.prefetch_window", 8)
	v.SetDefault("render.cache_template_assets", true)
	v.SetDefault("render.rate_limit_per_minute", 30)
	v.SetDefault("auth.public_key_path", "keys/jwt_public.pem")
	v.SetDefault("auth.private_key_path", "keys/jwt_private.pem")
	v.SetDefault("auth.token_ttl", 12*time.Hour)
	v.SetDefault("scanner.clamd_addr", "")
}

func bindEnv(v *viper.Viper) error {
	mappings := map[string]string{
		"api.port":                     "API_PORT",
		"api.gin_mode":                 "GIN_MODE",
		"database.host":                "DATABASE_HOST",
		"database.port":                "DATABASE_PORT",
		"database.name":                "POSTGRES_DB",
		"database.user":                "POSTGRES_USER",
		"database.password":            "POSTGRES_PASSWORD",
		"database.sslmode":             "DATABASE_SSLMODE",
		"redis.host":                   "REDIS_HOST",
		"redis.port":                   "REDIS_PORT",
		"minio.endpoint":               "MINIO_ENDPOINT",
		"minio.access_key_id":          "MINIO_ACCESS_KEY_ID",
		"minio.secret_access_key":      "MINIO_SECRET_ACCESS_KEY",
		"minio.use_ssl":                "MINIO_USE_SSL",
		"minio.bucket":                 "MINIO_BUCKET",
		"minio.region":                 "MINIO_REGION",
		"minio.bucket_lookup":          "MINIO_BUCKET_LOOKUP",
		"minio.auto_create_bucket":     "MINIO_AUTO_CREATE_BUCKET",
		"render.asset_base_url":        "RENDER_ASSET_BASE_URL",
		"render.allowed_asset_hosts":   "RENDER_ALLOWED_ASSET_HOSTS",
		"render.fetch_timeout":         "RENDER_FETCH_TIMEOUT",
		"render.max_asset_bytes":       "RENDER_MAX_ASSET_BYTES",
		"render.prefetch_workers":      "RENDER_PREFETCH_WORKERS",
		"render.prefetch_window":       "RENDER_PREFETCH_WINDOW",
		"render.cache_template_assets": "RENDER_CACHE_TEMPLATE_ASSETS",
		"render.rate_limit_per_minute": "RENDER_RATE_LIMIT_PER_MINUTE",
		"auth.public_key_path":         "JWT_PUBLIC_KEY_PATH",
		"auth.private_key_path":        "JWT_PRIVATE_KEY_PATH",
		"auth.token_ttl":               "JWT_TOKEN_TTL",
		"scanner.clamd_addr":           "CLAMD_ADDR",
	}

	for key, env := range mappings {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("bind %s to %s: %w", key, env, err)
		}
	}

	return nil
}

func validate(cfg Config) error {
	if cfg.API.Port <= 0 {
		return errors.New("api port must be positive")
	}
	switch cfg.API.GinMode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("gin mode %q must be debug, release or test", cfg.API.GinMode)
	}
	if cfg.Database.Host == "" {
		return errors.New("database host is required")
	}
	if cfg.Database.Port <= 0 {
		return errors.New("database port must be positive")
	}
	if cfg.Database.Name == "" {
		return errors.New("database name is required")
	}
	if cfg.Database.User == "" {
		return errors.New("database user is required")
	}
	if cfg.Database.Password == "" {
		return errors.New("database password is required")
	}
	if cfg.Database.SSLMode == "" {
		return errors.New("database sslmode is required")
	}
	if cfg.Redis.Host == "" {
		return errors.New("redis host is required")
	}
	if cfg.Redis.Port <= 0 {
		return errors.New("redis port must be positive")
	}
	if cfg.MinIO.Endpoint == "" {
		return errors.New("minio endpoint is required")
	}
	if cfg.MinIO.AccessKeyID == "" {
		return errors.New("minio access key id is required")
	}
	if cfg.MinIO.SecretAccessKey == "" {
		return errors.New("minio secret access key is required")
	}
	if cfg.MinIO.Bucket == "" {
		return errors.New("minio bucket is required")
	}
	if cfg.Render.AssetBaseURL != "" {
		u, err := url.Parse(cfg.Render.AssetBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return errors.New("render asset base url must be an absolute url")
		}
	}
	if cfg.Render.FetchTimeout <= 0 {
		return errors.New("render fetch timeout must be positive")
	}
	if cfg.Render.MaxAssetBytes <= 0 {
		return errors.New("render max asset bytes must be positive")
	}
	if cfg.Render.PrefetchWorkers <= 0 {
		return errors.New("render prefetch workers must be positive")
	}
	if cfg.Render.PrefetchWindow < 0 {
		return errors.New("render prefetch window must not be negative")
	}
	if cfg.Render.RateLimitPerMinute < 0 {
		return errors.New("render rate limit must not be negative")
	}
	if cfg.Auth.PublicKeyPath == "" {
		return errors.New("jwt public key path is required")
	}
	if cfg.Auth.TokenTTL <= 0 {
		return errors.New("jwt token ttl must be positive")
	}
	if cfg.Scanner.ClamdAddr != "" {
		u, err := url.Parse(cfg.Scanner.ClamdAddr)
		if err != nil || (u.Scheme != "tcp" && u.Scheme != "unix") {
			return errors.New("clamd address must be a tcp:// or unix:// url")
		}
	}
	return nil
}
