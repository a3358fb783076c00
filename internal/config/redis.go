package config

import (
	"context"
	"crypto/tls"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
)

// RedisConfig describes the Redis server backing rate limiting and the
// response cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TLS      bool
}

// REDIS_HOST and REDIS_PORT take precedence over REDIS_ADDR.
func redisAddr(v *viper.Viper) string {
	host, port := v.GetString("REDIS_HOST"), v.GetString("REDIS_PORT")
	if host != "" && port != "" {
		return host + ":" + port
	}
	if addr := v.GetString("REDIS_ADDR"); addr != "" {
		return addr
	}
	return "localhost:6379"
}

// NewRedisClient connects to Redis and pings it.  On failure the client
// is closed and the error returned; callers run without rate limiting
// and caching in that case.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	if cfg.TLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}
