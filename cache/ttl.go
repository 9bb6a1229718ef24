package cache

import "time"

// Tier 请求方的用户层级，决定可接受的数据新鲜度。
// 免费层拿到更长的 TTL（更省配额但更陈旧），付费层 TTL 更短。
type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// TTLPolicy 按 {数据类型, 用户层级} 查找逻辑 TTL
type TTLPolicy map[DataType]map[Tier]time.Duration

// DefaultTTLPolicy 返回默认的 TTL 查找表
func DefaultTTLPolicy() TTLPolicy {
	return TTLPolicy{
		DataTypeQuote: {
			TierFree:    5 * time.Minute,
			TierPro:     time.Minute,
			TierPremium: 15 * time.Second,
		},
		DataTypeBatchQuote: {
			TierFree:    5 * time.Minute,
			TierPro:     time.Minute,
			TierPremium: 15 * time.Second,
		},
		DataTypeFundamentals: {
			TierFree:    24 * time.Hour,
			TierPro:     6 * time.Hour,
			TierPremium: time.Hour,
		},
	}
}

// TTLFor 查找 TTL；未知的数据类型或层级回退到最保守（最长）的免费层配置
func (p TTLPolicy) TTLFor(dataType DataType, tier Tier) time.Duration {
	tiers, ok := p[dataType]
	if !ok {
		return 5 * time.Minute
	}
	if ttl, ok := tiers[tier]; ok {
		return ttl
	}
	if ttl, ok := tiers[TierFree]; ok {
		return ttl
	}
	return 5 * time.Minute
}
