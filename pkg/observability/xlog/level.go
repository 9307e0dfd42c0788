package xlog

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level 日志级别，数值与 slog.Level 相同，可直接作为 slog.Leveler 使用。
type Level slog.Level

const (
	LevelDebug = Level(slog.LevelDebug)
	LevelInfo  = Level(slog.LevelInfo)
	LevelWarn  = Level(slog.LevelWarn)
	LevelError = Level(slog.LevelError)
)

// levelNames 配置中可写的级别名，按严重程度排列；warning 是 warn 的别名。
var levelNames = []struct {
	name  string
	level Level
}{
	{"debug", LevelDebug},
	{"info", LevelInfo},
	{"warn", LevelWarn},
	{"warning", LevelWarn},
	{"error", LevelError},
}

// LevelNames 返回 ParseLevel 接受的级别名（不含别名与偏移写法），用于配置校验和帮助信息。
func LevelNames() []string {
	out := make([]string, 0, len(levelNames))
	for _, n := range levelNames {
		if n.name != "warning" {
			out = append(out, n.name)
		}
	}
	return out
}

// Level 实现 slog.Leveler
func (l Level) Level() slog.Level { return slog.Level(l) }

// String 标准级别输出大写名，其他值沿用 slog 的偏移写法，如 "INFO+2"。
func (l Level) String() string {
	return slog.Level(l).String()
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText 让 Level 可以直接出现在 koanf/json 配置结构中
func (l *Level) UnmarshalText(data []byte) error {
	parsed, err := ParseLevel(string(data))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel 解析配置里的日志级别，忽略大小写与首尾空白。
//
// 除 LevelNames 中的名字与 warning 外，也接受 slog 的偏移写法（"debug-4"、"INFO+2"），
// 便于排查时临时打开比 debug 更细的输出。无法识别时返回 LevelInfo 和错误。
func ParseLevel(s string) (Level, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for _, n := range levelNames {
		if n.name == name {
			return n.level, nil
		}
	}
	if strings.ContainsAny(name, "+-") {
		var sl slog.Level
		if err := sl.UnmarshalText([]byte(name)); err == nil {
			return Level(sl), nil
		}
	}
	return LevelInfo, fmt.Errorf("xlog: unknown level %q (want one of %s)", s, strings.Join(LevelNames(), ", "))
}
