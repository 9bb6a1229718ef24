package config

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ceyewan/findata/xerrors"
)

// loader 实现 Loader 接口
type loader struct {
	v   *viper.Viper
	cfg *Config
}

// newLoader 创建一个新的配置加载器（内部使用）
func newLoader(cfg *Config) (Loader, error) {
	return &loader{
		v:   viper.New(),
		cfg: cfg,
	}, nil
}

// Load 初始化并从所有来源加载配置
func (l *loader) Load(ctx context.Context) error {
	// 1. 配置 Viper
	l.v.SetConfigName(l.cfg.Name)
	l.v.SetConfigType(l.cfg.FileType)

	for _, path := range l.cfg.Paths {
		l.v.AddConfigPath(path)
	}

	// 2. 环境变量设置（最高优先级）- 先设置，确保能捕获所有环境变量
	l.v.SetEnvPrefix(l.cfg.EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	// 3. 尝试加载 .env 文件（存放 API Key 等敏感配置）
	// .env 缺失不是错误，仅在开发环境使用
	l.loadDotEnv()

	// 4. 加载配置文件（最低优先级）
	// 配置文件缺失不是硬错误：允许纯环境变量驱动的部署
	if err := l.v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return xerrors.Wrapf(err, "failed to read config file %s", l.cfg.Name)
		}
	}

	return nil
}

// loadDotEnv 尝试从搜索路径加载 .env 文件
func (l *loader) loadDotEnv() {
	_ = godotenv.Load()
	for _, path := range l.cfg.Paths {
		_ = godotenv.Load(filepath.Join(path, ".env"))
	}
}

// Get 根据 key 获取配置值
func (l *loader) Get(key string) any {
	return l.v.Get(key)
}

// Unmarshal 将整个配置反序列化到结构体
func (l *loader) Unmarshal(v any) error {
	return l.v.Unmarshal(v)
}

// UnmarshalKey 将特定配置 key 反序列化到结构体
func (l *loader) UnmarshalKey(key string, v any) error {
	return l.v.UnmarshalKey(key, v)
}

// Validate 验证配置
func (l *loader) Validate() error {
	if len(l.v.AllSettings()) == 0 {
		return xerrors.Wrapf(ErrValidationFailed, "configuration is empty")
	}
	return nil
}
