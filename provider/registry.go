package provider

import (
	"sort"

	"github.com/ceyewan/findata/xerrors"
)

// Registry 进程启动时装配的数据源配置表，之后只读。
// 所有方法都是无副作用的纯查询
type Registry struct {
	configs []*Config
	byName  map[string]*Config
	order   map[string]int // 注册顺序，优先级相同时作为决胜依据
}

// NewRegistry 按注册顺序装配配置表，名字重复或配置非法时报错
func NewRegistry(configs []*Config) (*Registry, error) {
	r := &Registry{
		configs: make([]*Config, 0, len(configs)),
		byName:  make(map[string]*Config, len(configs)),
		order:   make(map[string]int, len(configs)),
	}

	for i, cfg := range configs {
		if cfg == nil {
			return nil, xerrors.New("provider: nil config in registry")
		}
		if err := cfg.validate(); err != nil {
			return nil, err
		}
		if _, exists := r.byName[cfg.Name]; exists {
			return nil, xerrors.Newf("provider: duplicate provider %q", cfg.Name)
		}
		cfg.setDefaults()
		r.configs = append(r.configs, cfg)
		r.byName[cfg.Name] = cfg
		r.order[cfg.Name] = i
	}
	return r, nil
}

// Get 按名字查找配置，不存在时返回 nil
func (r *Registry) Get(name string) *Config {
	return r.byName[name]
}

// EnabledProviders 返回所有启用的数据源，保持注册顺序
func (r *Registry) EnabledProviders() []*Config {
	out := make([]*Config, 0, len(r.configs))
	for _, cfg := range r.configs {
		if cfg.Enabled {
			out = append(out, cfg)
		}
	}
	return out
}

// ByPriority 按名字筛选出可用的数据源，按优先级升序返回，
// 相同优先级按注册顺序决胜。不可用的数据源直接剔除，
// 不会出现在候选列表里
func (r *Registry) ByPriority(names []string) []*Config {
	out := make([]*Config, 0, len(names))
	for _, name := range names {
		if cfg, ok := r.byName[name]; ok && r.available(cfg) {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return r.order[out[i].Name] < r.order[out[j].Name]
	})
	return out
}

// IsAvailable 数据源是否可用：启用，且声明需要 API Key 时 Key 非空
func (r *Registry) IsAvailable(name string) bool {
	cfg, ok := r.byName[name]
	return ok && r.available(cfg)
}

func (r *Registry) available(cfg *Config) bool {
	if !cfg.Enabled {
		return false
	}
	if cfg.RequireAPIKey && cfg.APIKey == "" {
		return false
	}
	return true
}
