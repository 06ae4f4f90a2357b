package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	ServiceName string
	AppPort     string
	MetricsAddr string
	LogLevel    string
	PublicURL   string

	StoreBackend string
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string

	KafkaBrokers           string
	KafkaClientID          string
	KafkaGroupID           string
	KafkaInstanceID        string
	KafkaTopicPartitions   string
	KafkaReplicationFactor string
	RelayEnabled           string

	ApplePassTypeID   string
	AppleTeamID       string
	AppleOrgName      string
	AppleCertPath     string
	AppleKeyPath      string
	AppleWWDRPath     string
	AppleAPNsHost     string
	PassAssetsDir     string
	GoogleIssuerID    string
	GoogleClassSuffix string
	GoogleCredentials string
	GoogleOrigins     string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string
	PushTTL         string

	SSEHeartbeat    string
	SSEPollInterval string
	SSEBuffer       string

	DispatchConcurrency string
	DispatchTimeout     string
}

func Load() *Config {
	instanceID := os.Getenv("KAFKA_INSTANCE_ID")
	if instanceID == "" {
		hostname, err := os.Hostname()
		if err != nil {
			instanceID = uuid.NewString()
		} else {
			instanceID = hostname
		}
	}

	return &Config{
		ServiceName: getEnv("SERVICE_NAME", "loyalty-wallet"),
		AppPort:     getEnv("APP_PORT", "8080"),
		MetricsAddr: getEnv("METRICS_ADDR", ":9090"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		PublicURL:   getEnv("PUBLIC_URL", "http://localhost:8080"),

		StoreBackend: getEnv("STORE_BACKEND", "postgres"),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "postgres"),
		DBPassword:   getEnv("DB_PASSWORD", "postgres"),
		DBName:       getEnv("DB_NAME", "loyaltydb"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),

		KafkaBrokers:           getEnv("KAFKA_BROKERS", "kafka:9092"),
		KafkaClientID:          getEnv("KAFKA_CLIENT_ID", "loyalty-wallet"),
		KafkaGroupID:           getEnv("KAFKA_GROUP_ID", "loyalty-relay-"+instanceID),
		KafkaInstanceID:        instanceID,
		KafkaTopicPartitions:   getEnv("KAFKA_TOPIC_PARTITIONS", "3"),
		KafkaReplicationFactor: getEnv("KAFKA_REPLICATION_FACTOR", "1"),
		RelayEnabled:           getEnv("EVENT_RELAY_ENABLED", "false"),

		ApplePassTypeID:   getEnv("APPLE_PASS_TYPE_ID", ""),
		AppleTeamID:       getEnv("APPLE_TEAM_ID", ""),
		AppleOrgName:      getEnv("APPLE_ORGANIZATION_NAME", "Loyalty"),
		AppleCertPath:     getEnv("APPLE_PASS_CERT_PATH", ""),
		AppleKeyPath:      getEnv("APPLE_PASS_KEY_PATH", ""),
		AppleWWDRPath:     getEnv("APPLE_WWDR_CERT_PATH", ""),
		AppleAPNsHost:     getEnv("APPLE_APNS_HOST", "https://api.push.apple.com"),
		PassAssetsDir:     getEnv("PASS_ASSETS_DIR", "assets/pass"),
		GoogleIssuerID:    getEnv("GOOGLE_WALLET_ISSUER_ID", ""),
		GoogleClassSuffix: getEnv("GOOGLE_WALLET_CLASS_SUFFIX", "loyalty"),
		GoogleCredentials: getEnv("GOOGLE_WALLET_CREDENTIALS", ""),
		GoogleOrigins:     getEnv("GOOGLE_WALLET_ORIGINS", ""),

		VAPIDPublicKey:  getEnv("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnv("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:    getEnv("VAPID_SUBJECT", "mailto:admin@example.com"),
		PushTTL:         getEnv("PUSH_TTL_SECONDS", "86400"),

		SSEHeartbeat:    getEnv("SSE_HEARTBEAT", "25s"),
		SSEPollInterval: getEnv("SSE_POLL_INTERVAL", "0"),
		SSEBuffer:       getEnv("SSE_BUFFER", "16"),

		DispatchConcurrency: getEnv("DISPATCH_CONCURRENCY", "8"),
		DispatchTimeout:     getEnv("DISPATCH_TIMEOUT", "10s"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) UseMemoryStore() bool {
	return c.StoreBackend == "memory"
}

func (c *Config) RelayOn() bool {
	return parseBool(c.RelayEnabled)
}

func (c *Config) TopicPartitions() int {
	return parseInt(c.KafkaTopicPartitions, 3)
}

func (c *Config) ReplicationFactor() int16 {
	value := parseInt(c.KafkaReplicationFactor, 1)
	return int16(value)
}

func (c *Config) AppleEnabled() bool {
	return c.ApplePassTypeID != "" && c.AppleCertPath != "" && c.AppleKeyPath != "" && c.AppleWWDRPath != ""
}

func (c *Config) GoogleEnabled() bool {
	return c.GoogleIssuerID != "" && c.GoogleCredentials != ""
}

func (c *Config) WebPushEnabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

// GoogleOriginList returns the origins allowed to render the save button.
func (c *Config) GoogleOriginList() []string {
	var origins []string
	for _, o := range strings.Split(c.GoogleOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func (c *Config) PushTTLSeconds() int {
	return parseInt(c.PushTTL, 86400)
}

func (c *Config) Heartbeat() time.Duration {
	return parseDuration(c.SSEHeartbeat, 25*time.Second)
}

// PollInterval is the SSE snapshot fallback interval; zero disables polling.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.SSEPollInterval)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func (c *Config) StreamBuffer() int {
	return parseInt(c.SSEBuffer, 16)
}

func (c *Config) Concurrency() int {
	return parseInt(c.DispatchConcurrency, 8)
}

func (c *Config) Timeout() time.Duration {
	return parseDuration(c.DispatchTimeout, 10*time.Second)
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
