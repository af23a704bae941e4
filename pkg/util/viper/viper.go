package viper

import (
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	spfviper "github.com/spf13/viper"
)

// Config 封装 spf13/viper 实例，对外提供精简的 YAML/JSON 配置加载接口。
// 配置项优先级从高到低依次为：环境变量、配置文件、默认值。
type Config struct {
	v *spfviper.Viper
}

// New 创建一个空的 Config。
// envPrefix 非空时，形如 stream.write-timeout 的配置项可由 <PREFIX>_STREAM_WRITE_TIMEOUT 环境变量覆盖。
func New(envPrefix string) *Config {
	v := spfviper.New()
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
		v.AutomaticEnv()
	}
	return &Config{
		v: v,
	}
}

// SetDefault 设置配置项默认值。
// 环境变量只会覆盖已知的配置项，因此需要覆盖的配置项都应设置默认值。
func (c *Config) SetDefault(key string, value any) {
	c.v.SetDefault(key, value)
}

// SetDefaults 批量设置默认值。
func (c *Config) SetDefaults(defaults map[string]any) {
	for key, value := range defaults {
		c.v.SetDefault(key, value)
	}
}

// LoadFile 将 YAML 或 JSON 配置文件加载到 Config 中。
// 文件类型通过扩展名（.yaml/.yml/.json）推断。
func (c *Config) LoadFile(path string) error {
	c.v.SetConfigFile(path)

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		c.v.SetConfigType("yaml")
	case ".json":
		c.v.SetConfigType("json")
	default:
		return errors.Newf("unsupported config file extension %q", ext)
	}

	if err := c.v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "read config file %s", path)
	}
	return nil
}

// ConfigFileUsed 返回已加载的配置文件路径，未加载时为空。
func (c *Config) ConfigFileUsed() string {
	return c.v.ConfigFileUsed()
}

// IsSet 判断配置项是否在任一来源中被设置。
func (c *Config) IsSet(key string) bool {
	return c.v.IsSet(key)
}

// GetString 读取字符串配置项。
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// Unmarshal 将完整配置反序列化到 dst。
// dst 应为结构体或 map 的指针，字段通过 mapstructure 标签映射。
// 环境变量覆盖只对 Unmarshal 生效。
func (c *Config) Unmarshal(dst any) error {
	return c.v.Unmarshal(dst)
}
