package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config captures all process-level runtime configuration for the gateway.
// Tenant-level settings live in Tenant snapshots served by a Provider.
type Config struct {
	App     AppConfig
	AMQP    AMQPConfig
	Kafka   KafkaConfig
	Retry   RetryConfig
	Session SessionConfig
	Store   StoreConfig
	Tenant  TenantDefaults
}

// AppConfig contains generic application level settings.
type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
	BaseURL  string
}

// AMQPConfig defines the broker connection and the outgoing-send topology.
type AMQPConfig struct {
	URL             string
	Exchange        string
	QueuePrefix     string
	Prefetch        int
	ConnectTimeout  time.Duration
	MaxDialAttempts int
	BaseDialBackoff time.Duration
	MaxDialBackoff  time.Duration
}

// KafkaConfig defines the cluster and topics used for lifecycle events.
// Kafka is optional; an empty broker list disables event publishing.
type KafkaConfig struct {
	Brokers     []string
	StatusTopic string
	DLQTopic    string
}

// RetryConfig controls send-worker retry and backoff behaviour.
type RetryConfig struct {
	MaxAttempts       int
	BaseBackoff       time.Duration
	MaxBackoff        time.Duration
	WorkerConcurrency int
}

// SessionConfig tunes the per-tenant session state machine.
type SessionConfig struct {
	MaxConnectAttempts int
	ConnectTimeout     time.Duration
	QRTimeout          time.Duration
	ThrottleDelay      time.Duration
	CallCooldown       time.Duration
}

// StoreConfig selects the persistence backend for message keys, statuses and
// media payloads. The device fields locate the protocol credential store used
// by the native transport.
type StoreConfig struct {
	Driver       string
	DSN          string
	DeviceDriver string
	DeviceDSN    string
}

// TenantDefaults seeds the Tenant snapshot served when no per-tenant
// override exists.
type TenantDefaults struct {
	ConnectionType        string
	AutoConnect           bool
	WebhookURL            string
	WebhookToken          string
	SessionWebhookURL     string
	ForwardURL            string
	ForwardToken          string
	RejectCalls           bool
	RejectCallText        string
	CallWebhookText       string
	ReadOnReceipt         bool
	IgnoreHistoryMessages bool
	IgnoreGroupMessages   bool
	IgnoreStatusMessages  bool
	SendProfilePicture    bool
	SendReactionAsReply   bool
	ThrowWebhookError     bool
	Composing             bool
}

// Load reads environment variables, applies defaults, validates required
// values and returns a populated Config instance.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ldr := &envLoader{}

	cfg := &Config{}
	cfg.App.Env = ldr.getString("APP_ENV", "development", false)
	cfg.App.Port = ldr.getInt("APP_PORT", 9876, false)
	cfg.App.LogLevel = ldr.getString("LOG_LEVEL", "info", false)
	cfg.App.BaseURL = ldr.getString("BASE_URL", "", false)

	cfg.AMQP.URL = ldr.getString("AMQP_URL", "", true)
	cfg.AMQP.Exchange = ldr.getString("AMQP_EXCHANGE", "gateway.outgoing", false)
	cfg.AMQP.QueuePrefix = ldr.getString("AMQP_QUEUE_PREFIX", "gateway", false)
	cfg.AMQP.Prefetch = ldr.getInt("AMQP_PREFETCH", 8, false)
	cfg.AMQP.ConnectTimeout = ldr.getSeconds("AMQP_CONNECT_TIMEOUT_SECONDS", 30, false)
	cfg.AMQP.MaxDialAttempts = ldr.getInt("AMQP_MAX_DIAL_ATTEMPTS", 10, false)
	cfg.AMQP.BaseDialBackoff = ldr.getSeconds("AMQP_BASE_DIAL_BACKOFF_SECONDS", 1, false)
	cfg.AMQP.MaxDialBackoff = ldr.getSeconds("AMQP_MAX_DIAL_BACKOFF_SECONDS", 30, false)

	cfg.Kafka.Brokers = ldr.getStringSlice("KAFKA_BROKERS", false)
	cfg.Kafka.StatusTopic = ldr.getString("KAFKA_STATUS_TOPIC", "gateway.status", false)
	cfg.Kafka.DLQTopic = ldr.getString("KAFKA_DLQ_TOPIC", "gateway.dlq", false)

	cfg.Retry.MaxAttempts = ldr.getInt("MAX_ATTEMPTS", 3, false)
	cfg.Retry.BaseBackoff = ldr.getSeconds("BASE_BACKOFF_SECONDS", 5, false)
	cfg.Retry.MaxBackoff = ldr.getSeconds("MAX_BACKOFF_SECONDS", 60, false)
	cfg.Retry.WorkerConcurrency = ldr.getInt("WORKER_CONCURRENCY", 10, false)

	cfg.Session.MaxConnectAttempts = ldr.getInt("SESSION_MAX_CONNECT_ATTEMPTS", 6, false)
	cfg.Session.ConnectTimeout = ldr.getSeconds("SESSION_CONNECT_TIMEOUT_SECONDS", 180, false)
	cfg.Session.QRTimeout = ldr.getSeconds("SESSION_QR_TIMEOUT_SECONDS", 60, false)
	cfg.Session.ThrottleDelay = ldr.getMillis("SEND_THROTTLE_DELAY_MS", 2000, false)
	cfg.Session.CallCooldown = ldr.getSeconds("CALL_COOLDOWN_SECONDS", 10, false)

	cfg.Store.Driver = ldr.getString("STORE_DRIVER", "memory", false)
	cfg.Store.DSN = ldr.getString("STORE_DSN", "file:gateway.db?_foreign_keys=on", false)
	cfg.Store.DeviceDriver = ldr.getString("DEVICE_STORE_DRIVER", "sqlite3", false)
	cfg.Store.DeviceDSN = ldr.getString("DEVICE_STORE_DSN", "file:devices.db?_foreign_keys=on", false)

	cfg.Tenant.ConnectionType = ldr.getString("TENANT_CONNECTION_TYPE", ConnectionNative, false)
	cfg.Tenant.AutoConnect = ldr.getBool("TENANT_AUTO_CONNECT", true, false)
	cfg.Tenant.WebhookURL = ldr.getString("TENANT_WEBHOOK_URL", "", false)
	cfg.Tenant.WebhookToken = ldr.getString("TENANT_WEBHOOK_TOKEN", "", false)
	cfg.Tenant.SessionWebhookURL = ldr.getString("TENANT_SESSION_WEBHOOK_URL", "", false)
	cfg.Tenant.ForwardURL = ldr.getString("TENANT_FORWARD_URL", "", false)
	cfg.Tenant.ForwardToken = ldr.getString("TENANT_FORWARD_TOKEN", "", false)
	cfg.Tenant.RejectCalls = ldr.getBool("TENANT_REJECT_CALLS", false, false)
	cfg.Tenant.RejectCallText = ldr.getString("TENANT_REJECT_CALL_TEXT", "", false)
	cfg.Tenant.CallWebhookText = ldr.getString("TENANT_CALL_WEBHOOK_TEXT", "", false)
	cfg.Tenant.ReadOnReceipt = ldr.getBool("TENANT_READ_ON_RECEIPT", false, false)
	cfg.Tenant.IgnoreHistoryMessages = ldr.getBool("TENANT_IGNORE_HISTORY_MESSAGES", true, false)
	cfg.Tenant.IgnoreGroupMessages = ldr.getBool("TENANT_IGNORE_GROUP_MESSAGES", false, false)
	cfg.Tenant.IgnoreStatusMessages = ldr.getBool("TENANT_IGNORE_STATUS_MESSAGES", true, false)
	cfg.Tenant.SendProfilePicture = ldr.getBool("TENANT_SEND_PROFILE_PICTURE", false, false)
	cfg.Tenant.SendReactionAsReply = ldr.getBool("TENANT_SEND_REACTION_AS_REPLY", false, false)
	cfg.Tenant.ThrowWebhookError = ldr.getBool("TENANT_THROW_WEBHOOK_ERROR", false, false)
	cfg.Tenant.Composing = ldr.getBool("TENANT_COMPOSING", false, false)

	if err := ldr.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

type envLoader struct {
	errs []string
}

func (l *envLoader) validate() error {
	if len(l.errs) == 0 {
		return nil
	}
	return fmt.Errorf("config validation failed: %s", strings.Join(l.errs, "; "))
}

func (l *envLoader) getString(key, def string, required bool) string {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		return val
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getInt(key string, def int, required bool) int {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		i, err := strconv.Atoi(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid integer", key))
			return def
		}
		return i
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getBool(key string, def bool, required bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		val = strings.TrimSpace(val)
		if val == "" {
			if required {
				l.addError(fmt.Sprintf("%s is required", key))
			}
			return def
		}
		parsed, err := strconv.ParseBool(val)
		if err != nil {
			l.addError(fmt.Sprintf("%s must be a valid boolean", key))
			return def
		}
		return parsed
	}
	if required {
		l.addError(fmt.Sprintf("%s is required", key))
	}
	return def
}

func (l *envLoader) getSeconds(key string, def int, required bool) time.Duration {
	return time.Duration(l.getInt(key, def, required)) * time.Second
}

func (l *envLoader) getMillis(key string, def int, required bool) time.Duration {
	return time.Duration(l.getInt(key, def, required)) * time.Millisecond
}

func (l *envLoader) getStringSlice(key string, required bool) []string {
	raw := l.getString(key, "", required)
	if raw == "" {
		if required {
			return nil
		}
		return []string{}
	}
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if required && len(out) == 0 {
		l.addError(fmt.Sprintf("%s must contain at least one entry", key))
	}
	return out
}

func (l *envLoader) addError(err string) {
	l.errs = append(l.errs, err)
}
