package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// CacheConfig defines settings for the response cache middleware.  Only
// GET responses of the room catalogue are cached; KeyStrategy decides
// which parts of the request form the key.
type CacheConfig struct {
	Enabled      bool
	TTL          time.Duration
	KeyStrategy  string
	Prefix       string
	MaxBodyBytes int
}

func loadCache(v *viper.Viper) CacheConfig {
	cfg := CacheConfig{
		Enabled:      v.GetBool("CACHE_ENABLED"),
		TTL:          parseDuration(v.GetString("CACHE_TTL"), 30*time.Second),
		KeyStrategy:  strings.ToLower(v.GetString("CACHE_KEY_STRATEGY")),
		Prefix:       v.GetString("CACHE_PREFIX"),
		MaxBodyBytes: v.GetInt("CACHE_MAX_BODY_BYTES"),
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	return cfg
}
