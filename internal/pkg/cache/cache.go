package cache

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/storage/redis"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/TicketPilot/internal/pkg/env"
)

const (
	jobQueueDB = 0
	limiterDB  = 1
)

var client *goredis.Client

// SetupCache connects to the Redis/Dragonfly server backing the job queue.
func SetupCache() {
	client = goredis.NewClient(&goredis.Options{
		Addr:     address(),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       jobQueueDB,
	})

	pong, err := client.Ping(context.Background()).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to cache: %v", err)
	} else {
		log.Infof("[Cache] Connected to cache: %s", pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *goredis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// LimiterStorage returns fiber storage for the API rate limiter on its own database.
func LimiterStorage() *redis.Storage {
	host, port := hostPort(GetClient().Options().Addr)
	return redis.New(redis.Config{
		Host:     host,
		Port:     port,
		Password: GetClient().Options().Password,
		Database: limiterDB,
		Reset:    false,
	})
}

func address() string {
	return fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379"))
}

func hostPort(addr string) (string, int) {
	host, port := "localhost", 6379
	if h, p, err := net.SplitHostPort(addr); err == nil {
		host = h
		if v, err := strconv.Atoi(p); err == nil {
			port = v
		}
	}
	return host, port
}
