package xconf

import (
	"errors"

	"github.com/knadh/koanf/v2"
)

// Format 定义配置文件格式。
type Format string

// 支持的配置格式。
const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// 配置加载和解析相关错误。
var (
	// ErrEmptyPath 表示配置文件路径为空。
	ErrEmptyPath = errors.New("xconf: empty config path")

	// ErrUnsupportedFormat 表示不支持的配置格式。
	ErrUnsupportedFormat = errors.New("xconf: unsupported config format")

	// ErrLoadFailed 表示配置加载失败。
	ErrLoadFailed = errors.New("xconf: failed to load config")

	// ErrParseFailed 表示配置解析失败。
	ErrParseFailed = errors.New("xconf: failed to parse config")

	// ErrUnmarshalFailed 表示配置反序列化失败。
	ErrUnmarshalFailed = errors.New("xconf: failed to unmarshal config")

	// ErrNotReloadable 表示从字节数据创建的配置不支持重载或监视。
	ErrNotReloadable = errors.New("xconf: config created from bytes cannot be reloaded")
)

// Config 定义配置接口。
// 只提供增值功能，基础读取请使用 Client() 返回的 koanf 实例。
type Config interface {
	// Client 返回当前 koanf 实例（快照语义，Reload 后应重新获取）。
	Client() *koanf.Koanf

	// Unmarshal 将指定路径的配置反序列化到 target，path 为空时反序列化整个配置。
	Unmarshal(path string, target any) error

	// Reload 重新加载配置文件，并发安全。
	Reload() error

	// Path 返回配置文件路径，从字节数据创建时为空。
	Path() string

	// Format 返回配置格式。
	Format() Format
}

// Option 定义配置选项函数类型。
type Option func(*options)

type options struct {
	delim     string
	tag       string
	envPrefix string
	environ   func() []string
}

func defaultOptions() *options {
	return &options{
		delim: ".",
		tag:   "koanf",
	}
}

// WithDelim 设置配置键分隔符，默认 "."。
func WithDelim(delim string) Option {
	return func(o *options) {
		if delim != "" {
			o.delim = delim
		}
	}
}

// WithTag 设置 Unmarshal 使用的结构体标签名，默认 "koanf"。
func WithTag(tag string) Option {
	return func(o *options) {
		if tag != "" {
			o.tag = tag
		}
	}
}

// WithEnvPrefix 启用环境变量覆盖。
//
// 以 prefix 开头的变量去掉前缀后转小写，"__" 替换为键分隔符：
// prefix 为 "TOOLHUB_" 时，TOOLHUB_CACHE__TTL=5m 覆盖 cache.ttl。
func WithEnvPrefix(prefix string) Option {
	return func(o *options) {
		o.envPrefix = prefix
	}
}

// withEnviron 替换环境变量来源，仅用于测试
func withEnviron(fn func() []string) Option {
	return func(o *options) {
		o.environ = fn
	}
}
