package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Port             string
	ConsulAddress    string
	ServiceName      string
	ServiceID        string
	ServiceAddress   string
	RabbitMQUser     string
	RabbitMQPassword string
	RabbitMQHost     string
	RabbitMQPort     string
	JWTSecret        string
	CacheTTL         time.Duration
	PublishDelay     time.Duration
	DedupWindow      time.Duration
}

func init() {
	ServiceConfig = New()
}

var ServiceConfig *Config

func New() *Config {
	cache_ttl_str := getEnv("PERMISSION_CACHE_TTL_SECONDS", "300")
	cache_ttl, _ := strconv.Atoi(cache_ttl_str)

	publish_delay_str := getEnv("NOTIFY_PUBLISH_DELAY_MS", "100")
	publish_delay, _ := strconv.Atoi(publish_delay_str)

	dedup_window_str := getEnv("NOTIFY_DEDUP_WINDOW_SECONDS", "5")
	dedup_window, _ := strconv.Atoi(dedup_window_str)

	return &Config{
		Port:             getEnv("PORT", "9200"),
		RabbitMQUser:     getEnv("RABBITMQ_USER", ""),
		RabbitMQPassword: getEnv("RABBITMQ_PASSWORD", ""),
		RabbitMQHost:     getEnv("RABBITMQ_HOST", "rabbitmq"),
		RabbitMQPort:     getEnv("RABBITMQ_PORT", ""),
		ConsulAddress:    "consul-server:" + getEnv("CONSUL_PORT", "8500"),
		ServiceName:      getEnv("PERMISSION_SERVICE_NAME", "permission-service"),
		ServiceID:        getEnv("PERMISSION_SERVICE_NAME", "permission-service") + "-" + getEnv("PERMISSION_HOSTNAME", "1"),
		ServiceAddress:   getEnv("PERMISSION_SERVICE_ADDRESS", "permission-service"),
		JWTSecret:        getEnv("JWT_SECRET", ""),
		CacheTTL:         time.Duration(cache_ttl) * time.Second,
		PublishDelay:     time.Duration(publish_delay) * time.Millisecond,
		DedupWindow:      time.Duration(dedup_window) * time.Second,
	}
}

// RabbitMQURI assembles the broker URI. Empty when the broker is not
// configured, which disables publishing and consumption.
func (c *Config) RabbitMQURI() string {
	if c.RabbitMQUser == "" || c.RabbitMQPort == "" {
		return ""
	}
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", c.RabbitMQUser, c.RabbitMQPassword, c.RabbitMQHost, c.RabbitMQPort)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Error Retriving ENV: %s not exist", key)
	return fallback
}
