package redis_client

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/travigo/departureboard/pkg/config"
)

var Client *redis.Client

// Connect opens the shared client and checks the server answers
func Connect(ctx context.Context, redisConfig config.Redis) error {
	options := &redis.Options{
		Addr: redisConfig.Address,
		DB:   redisConfig.Database,
	}
	if redisConfig.Password != "" {
		options.Password = redisConfig.Password
	}

	client := redis.NewClient(options)

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("connect to redis at %s: %w", redisConfig.Address, err)
	}

	Client = client
	log.Info().Str("address", redisConfig.Address).Int("database", redisConfig.Database).Msg("Connected to Redis")

	return nil
}

func Close() error {
	if Client == nil {
		return nil
	}

	err := Client.Close()
	Client = nil

	return err
}
