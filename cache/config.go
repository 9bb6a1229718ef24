package cache

import "github.com/ceyewan/findata/xerrors"

// Config 缓存组件统一配置
type Config struct {
	// Mode 缓存模式: "standalone" | "distributed" (默认 "distributed")
	Mode string `json:"mode" yaml:"mode" mapstructure:"mode"`

	// Prefix 全局 Key 前缀 (e.g., "findata:")
	Prefix string `json:"prefix" yaml:"prefix" mapstructure:"prefix"`

	// Serializer 序列化器: "json" | "msgpack" (仅分布式模式使用，默认 "json")
	Serializer string `json:"serializer" yaml:"serializer" mapstructure:"serializer"`

	// MaxStaleFactor 陈旧条目保留倍数：条目在后端实际保留 MaxStaleFactor*TTL，
	// 过了逻辑 TTL 之后、保留窗口之内的条目只能经 GetStale 读到（默认 4）
	MaxStaleFactor int `json:"max_stale_factor" yaml:"max_stale_factor" mapstructure:"max_stale_factor"`

	// Standalone 单机缓存配置
	Standalone *StandaloneConfig `json:"standalone" yaml:"standalone" mapstructure:"standalone"`
}

// StandaloneConfig 单机缓存配置
type StandaloneConfig struct {
	// Capacity 缓存最大容量（条目数，默认 10000）
	Capacity int `json:"capacity" yaml:"capacity" mapstructure:"capacity"`
}

func (c *Config) setDefaults() {
	if c.Mode == "" {
		c.Mode = "distributed"
	}
	if c.Serializer == "" {
		c.Serializer = "json"
	}
	if c.MaxStaleFactor == 0 {
		c.MaxStaleFactor = 4
	}
	if c.Standalone == nil {
		c.Standalone = &StandaloneConfig{}
	}
	if c.Standalone.Capacity <= 0 {
		c.Standalone.Capacity = 10000
	}
}

func (c *Config) validate() error {
	if c.MaxStaleFactor < 1 {
		return xerrors.New("cache: max_stale_factor must be >= 1")
	}
	return nil
}
