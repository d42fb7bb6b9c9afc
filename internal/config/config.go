package config

import (
	"os"
	"strconv"
)

// service configuration, loaded once at startup
type Config struct {
	Port          string
	RedisAddr     string
	RoomTTLSecs   int
	SendQueueSize int
}

func LoadConfig() *Config {
	return &Config{
		Port:          getEnvOrDefault("PORT", "5000"),
		RedisAddr:     getEnvOrDefault("REDIS_ADDR", "redis:6379"),
		RoomTTLSecs:   getEnvIntOrDefault("ROOM_TTL_SECONDS", 86400),
		SendQueueSize: getEnvIntOrDefault("SEND_QUEUE_SIZE", 64),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}
