package xconf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

// Format 配置文件格式。
type Format string

const (
	// FormatYAML .yaml / .yml
	FormatYAML Format = "yaml"
	// FormatJSON .json
	FormatJSON Format = "json"
)

const (
	delim = "."
	tag   = "koanf"
)

// Config 合并后的配置，按加载顺序后者覆盖前者。
type Config struct {
	k     *koanf.Koanf
	paths []string
}

// New 依次加载 paths 并合并。格式由扩展名决定。
//
// 不存在的文件报错；需要"可选"配置时由调用方先判断。
func New(paths ...string) (*Config, error) {
	if len(paths) == 0 {
		return nil, ErrEmptyPath
	}
	c := &Config{k: koanf.New(delim)}
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			return nil, ErrEmptyPath
		}
		format, err := DetectFormat(p)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrLoadFailed, err)
		}
		if err := loadData(c.k, data, format); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		c.paths = append(c.paths, p)
	}
	return c, nil
}

// NewFromBytes 从字节数据创建配置，空数据得到空配置。
func NewFromBytes(data []byte, format Format) (*Config, error) {
	if !isValidFormat(format) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	c := &Config{k: koanf.New(delim)}
	if len(data) > 0 {
		if err := loadData(c.k, data, format); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Client 返回底层 koanf 实例。
func (c *Config) Client() *koanf.Koanf {
	return c.k
}

// Paths 返回已加载的文件，按合并顺序。
func (c *Config) Paths() []string {
	return append([]string(nil), c.paths...)
}

// Unmarshal 将 path 下的配置解到 target，path 为空表示整个配置。
func (c *Config) Unmarshal(path string, target any) error {
	if err := c.k.UnmarshalWithConf(path, target, koanf.UnmarshalConf{Tag: tag}); err != nil {
		return fmt.Errorf("%w: %w", ErrUnmarshalFailed, err)
	}
	return nil
}

// Load 便捷函数：加载并合并 paths，整体解到 target。
func Load(target any, paths ...string) error {
	c, err := New(paths...)
	if err != nil {
		return err
	}
	return c.Unmarshal("", target)
}

// LoadBytes 便捷函数：解析 data 并整体解到 target。
func LoadBytes(data []byte, format Format, target any) error {
	c, err := NewFromBytes(data, format)
	if err != nil {
		return err
	}
	return c.Unmarshal("", target)
}

// DetectFormat 根据扩展名判断格式。
func DetectFormat(path string) (Format, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrUnsupportedFormat, ext)
	}
}

func isValidFormat(format Format) bool {
	return format == FormatYAML || format == FormatJSON
}

func loadData(k *koanf.Koanf, data []byte, format Format) error {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return ErrUnsupportedFormat
	}
	if err := k.Load(rawbytes.Provider(data), parser); err != nil {
		return fmt.Errorf("%w: %w", ErrParseFailed, err)
	}
	return nil
}
