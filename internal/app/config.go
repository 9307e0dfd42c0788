package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/omeyang/toolhub/internal/catalog"
	"github.com/omeyang/toolhub/internal/catalog/rest"
	"github.com/omeyang/toolhub/internal/seo"
	"github.com/omeyang/toolhub/internal/server"
	"github.com/omeyang/toolhub/internal/warmup"
	"github.com/omeyang/toolhub/pkg/config/xconf"
	"github.com/omeyang/toolhub/pkg/util/xttl"
)

// EnvPrefix 环境变量前缀，TOOLHUB_CACHE__TTL=5m 覆盖 cache.ttl
const EnvPrefix = "TOOLHUB_"

// 存储后端
const (
	DriverSQLite = "sqlite"
	DriverREST   = "rest"
)

// ErrUnknownDriver 未知的存储后端
var ErrUnknownDriver = errors.New("app: unknown store driver")

// Config 应用配置
type Config struct {
	Server    server.Config      `koanf:"server"`
	Site      seo.Site           `koanf:"site"`
	Store     StoreConfig        `koanf:"store"`
	Cache     CacheConfig        `koanf:"cache"`
	Warmup    warmup.Config      `koanf:"warmup"`
	Views     catalog.ViewConfig `koanf:"views"`
	Log       LogConfig          `koanf:"log"`
	Telemetry TelemetryConfig    `koanf:"telemetry"`
}

// StoreConfig 目录存储配置
type StoreConfig struct {
	// Driver sqlite | rest
	Driver     string                   `koanf:"driver"`
	SQLite     SQLiteConfig             `koanf:"sqlite"`
	REST       rest.Config              `koanf:"rest"`
	Resilience catalog.ResilienceConfig `koanf:"resilience"`
}

// SQLiteConfig 本地 SQLite 存储
type SQLiteConfig struct {
	Path string `koanf:"path"`
	// SeedFile 非空时启动时导入（按 ID 幂等）
	SeedFile string `koanf:"seed_file"`
}

// CacheConfig 读穿缓存配置
type CacheConfig struct {
	Capacity           int           `koanf:"capacity"`
	TTL                time.Duration `koanf:"ttl"`
	PreloadConcurrency int           `koanf:"preload_concurrency"`
}

func (c CacheConfig) ttlConfig() xttl.Config {
	return xttl.Config{Capacity: c.Capacity, TTL: c.TTL}
}

// LogConfig 日志配置。File 非空时写入文件并按大小轮转。
type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	AddSource  bool   `koanf:"add_source"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
	MaxAgeDays int    `koanf:"max_age_days"`
	Compress   bool   `koanf:"compress"`
}

// TelemetryConfig OpenTelemetry 配置，关闭时使用 NoopObserver
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// DefaultConfig 返回本地开发可直接运行的默认配置
func DefaultConfig() Config {
	cache := xttl.DefaultConfig()
	return Config{
		Server: server.DefaultConfig(),
		Site:   seo.DefaultSite(),
		Store: StoreConfig{
			Driver:     DriverSQLite,
			SQLite:     SQLiteConfig{Path: "data/toolhub.db"},
			REST:       rest.Config{Timeout: 5 * time.Second, ClientInfo: "toolhub"},
			Resilience: catalog.DefaultResilienceConfig(),
		},
		Cache: CacheConfig{
			Capacity:           cache.Capacity,
			TTL:                cache.TTL,
			PreloadConcurrency: 4,
		},
		Warmup: warmup.DefaultConfig(),
		Views:  catalog.DefaultViewConfig(),
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 7,
			MaxAgeDays: 30,
			Compress:   true,
		},
		Telemetry: TelemetryConfig{Enabled: true, ServiceName: "toolhub"},
	}
}

// Validate 校验启动前即可发现的配置错误
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLite.Path == "" {
			errs = append(errs, errors.New("app: store.sqlite.path is required"))
		}
	case DriverREST:
		if c.Store.REST.BaseURL == "" {
			errs = append(errs, errors.New("app: store.rest.url is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownDriver, c.Store.Driver))
	}
	if c.Cache.Capacity <= 0 || c.Cache.TTL <= 0 {
		errs = append(errs, errors.New("app: cache.capacity and cache.ttl must be positive"))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("app: server.addr is required"))
	}
	return errors.Join(errs...)
}

// Load 读取配置文件并叠加 TOOLHUB_ 环境变量，未出现的字段保留默认值。
// path 为空时只使用默认值和环境变量，返回的 xconf.Config 不可监视。
func Load(path string) (Config, xconf.Config, error) {
	var (
		src xconf.Config
		err error
	)
	if path == "" {
		src, err = xconf.NewFromBytes([]byte("{}"), xconf.FormatJSON, xconf.WithEnvPrefix(EnvPrefix))
	} else {
		src, err = xconf.New(path, xconf.WithEnvPrefix(EnvPrefix))
	}
	if err != nil {
		return Config{}, nil, err
	}
	cfg, err := decode(src)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, src, nil
}

func decode(src xconf.Config) (Config, error) {
	cfg := DefaultConfig()
	if err := src.Unmarshal("", &cfg); err != nil {
		return Config{}, err
	}
	cfg.Site = cfg.Site.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
