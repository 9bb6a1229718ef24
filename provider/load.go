package provider

import (
	"os"
	"strings"

	"github.com/ceyewan/findata/config"
	"github.com/ceyewan/findata/xerrors"
)

// LoadConfigs 从配置加载器的 providers 段装配数据源配置。
// 配置文件里留空的 api_key 会回退到 <NAME>_API_KEY 环境变量
// （加载器已合并 .env），缺 Key 的数据源由 Registry 判定不可用
func LoadConfigs(loader config.Loader) ([]*Config, error) {
	var cfgs []*Config
	if err := loader.UnmarshalKey("providers", &cfgs); err != nil {
		return nil, xerrors.Wrap(err, "provider: failed to unmarshal providers section")
	}
	if len(cfgs) == 0 {
		return nil, xerrors.Wrapf(config.ErrValidationFailed, "provider: providers section is empty")
	}

	for _, c := range cfgs {
		if c.APIKey == "" {
			c.APIKey = os.Getenv(strings.ToUpper(c.Name) + "_API_KEY")
		}
	}
	return cfgs, nil
}
