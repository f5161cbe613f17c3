package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Поддерживаемые шлюзы доставки push-уведомлений.
const (
	GatewayFCM  = "fcm"
	GatewayAPNS = "apns"
	GatewayStub = "stub"
)

type Config struct {
	Log         LogConfig
	Firebase    FirebaseConfig
	APNS        APNSConfig
	HTTP        HTTPConfig
	RabbitMQ    RabbitMQConfig
	Collections CollectionsConfig
	Metrics     MetricsConfig

	Gateway                string        `yaml:"gateway" env:"PUSH_GATEWAY" env-default:"fcm"`
	EventProcessingTimeout time.Duration `yaml:"event_processing_timeout" env:"EVENT_PROCESSING_TIMEOUT" env-default:"60s"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Encoding string `yaml:"encoding" env:"LOG_ENCODING" env-default:"json"`
}

type FirebaseConfig struct {
	ProjectID       string `yaml:"project_id" env:"FIREBASE_PROJECT_ID"`
	CredentialsPath string `yaml:"credentials_path" env:"FIREBASE_CREDENTIALS_PATH"` // пусто = Application Default Credentials
}

type APNSConfig struct {
	KeyID      string `yaml:"key_id" env:"APNS_KEY_ID"`
	TeamID     string `yaml:"team_id" env:"APNS_TEAM_ID"`
	KeyPath    string `yaml:"key_path" env:"APNS_KEY_PATH"`
	Topic      string `yaml:"topic" env:"APNS_TOPIC"`
	Production bool   `yaml:"production" env:"APNS_PRODUCTION" env-default:"false"`
}

// Complete reports whether every field required for token-based APNs auth is set.
func (c APNSConfig) Complete() bool {
	return c.KeyID != "" && c.TeamID != "" && c.KeyPath != "" && c.Topic != ""
}

type HTTPConfig struct {
	Port    string `yaml:"port" env:"HTTP_PORT" env-default:"8080"`
	GinMode string `yaml:"gin_mode" env:"GIN_MODE" env-default:"release"`
}

type RabbitMQConfig struct {
	URI                       string `yaml:"uri" env:"RABBITMQ_URI"` // пусто = транспорт RabbitMQ выключен
	NotificationRequestsQueue string `yaml:"notification_requests_queue" env:"NOTIFICATION_REQUESTS_QUEUE" env-default:"firestore.notification_requests"`
	UserUpdatesQueue          string `yaml:"user_updates_queue" env:"USER_UPDATES_QUEUE" env-default:"firestore.user_updates"`
	WorkerConcurrency         int    `yaml:"worker_concurrency" env:"WORKER_CONCURRENCY" env-default:"10"`
}

type CollectionsConfig struct {
	NotificationRequests string `yaml:"notification_requests" env:"NOTIFICATION_REQUESTS_COLLECTION" env-default:"notificationRequests"`
	Users                string `yaml:"users" env:"USERS_COLLECTION" env-default:"users"`
}

type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgateway_url" env:"PUSHGATEWAY_URL"`
}

// LoadConfig reads configPath (YAML) and falls back to the environment when the
// file is missing. An optional .env file is loaded first.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Printf("Warning: could not read config file '%s': %v. Reading environment only.", configPath, err)
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes the gateway name and checks the settings it depends on.
func (c *Config) Validate() error {
	c.Gateway = strings.ToLower(strings.TrimSpace(c.Gateway))
	switch c.Gateway {
	case GatewayFCM, GatewayStub:
	case GatewayAPNS:
		if !c.APNS.Complete() {
			return fmt.Errorf("PUSH_GATEWAY=apns requires APNS_KEY_ID, APNS_TEAM_ID, APNS_KEY_PATH and APNS_TOPIC")
		}
	default:
		return fmt.Errorf("unknown PUSH_GATEWAY %q", c.Gateway)
	}
	if c.RabbitMQ.WorkerConcurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be positive, got %d", c.RabbitMQ.WorkerConcurrency)
	}
	if c.Collections.NotificationRequests == "" || c.Collections.Users == "" {
		return fmt.Errorf("collection names must not be empty")
	}
	return nil
}

// RabbitMQEnabled reports whether the queue transport should be started.
func (c *Config) RabbitMQEnabled() bool {
	return c.RabbitMQ.URI != ""
}
