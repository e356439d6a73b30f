package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"frostbase-alarm/common/config"

	"gopkg.in/yaml.v3"
)

// DefaultTruckID 原移动端写死的车辆
const DefaultTruckID = "674a4001000000000000001a"

// Config 冷藏车报警服务配置
type Config struct {
	Database config.DatabaseConfig `yaml:"database"`
	Redis    config.RedisConfig    `yaml:"redis"`
	MQTT     config.MQTTConfig     `yaml:"mqtt"`
	Kafka    config.KafkaConfig    `yaml:"kafka"`

	// 监控配置
	Monitor struct {
		TruckIDs         []string      `yaml:"truck_ids"`
		PollInterval     time.Duration `yaml:"poll_interval"`     // 默认 5s
		AlertCooldown    time.Duration `yaml:"alert_cooldown"`    // 默认 60s
		FetchTimeout     time.Duration `yaml:"fetch_timeout"`     // 默认 4s
		ThresholdRefresh time.Duration `yaml:"threshold_refresh"` // 0 = 只在未知时拉取
	} `yaml:"monitor"`

	// 遥测 API
	Telemetry struct {
		BaseURL    string `yaml:"base_url"`
		RetryCount int    `yaml:"retry_count"`
		LegacyList bool   `yaml:"legacy_list"`
	} `yaml:"telemetry"`

	// 可选基础设施开关
	Features struct {
		Database bool `yaml:"database"`
		Redis    bool `yaml:"redis"`
		MQTT     bool `yaml:"mqtt"`
		Kafka    bool `yaml:"kafka"`
		NATS     bool `yaml:"nats"`
	} `yaml:"features"`

	Notify struct {
		MQTTTopicPrefix   string `yaml:"mqtt_topic_prefix"`
		StreamName        string `yaml:"stream_name"`
		StreamMaxLen      int64  `yaml:"stream_max_len"`
		NATSURL           string `yaml:"nats_url"`
		NATSSubjectPrefix string `yaml:"nats_subject_prefix"`
	} `yaml:"notify"`

	Cache struct {
		SnapshotKeyPrefix string        `yaml:"snapshot_key_prefix"`
		SnapshotTTL       time.Duration `yaml:"snapshot_ttl"`
	} `yaml:"cache"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	Log struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
}

// Load 加载配置：默认值 -> CONFIG_FILE(YAML) -> 环境变量
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	cfg := &Config{}

	cfg.Database.Host = "localhost"
	cfg.Database.Port = 5432
	cfg.Database.User = "postgres"
	cfg.Database.Password = "postgres"
	cfg.Database.Database = "frostbase"
	cfg.Database.SSLMode = "disable"
	cfg.Database.MaxConns = 10
	cfg.Database.MaxIdle = 2

	cfg.Redis.Addr = "localhost:6379"

	cfg.MQTT.Broker = "tcp://localhost:1883"
	cfg.MQTT.ClientID = "frostbase-alarm"
	cfg.MQTT.QoS = 1
	cfg.MQTT.StatusTopic = "frostbase/alarm/status"

	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.Topic = "frostbase.alarms"

	cfg.Monitor.TruckIDs = []string{DefaultTruckID}
	cfg.Monitor.PollInterval = 5 * time.Second
	cfg.Monitor.AlertCooldown = 60 * time.Second
	cfg.Monitor.FetchTimeout = 4 * time.Second

	cfg.Telemetry.BaseURL = "http://localhost:3000/api"

	cfg.Notify.MQTTTopicPrefix = "frostbase/trucks"
	cfg.Notify.StreamName = "frostbase:alarms"
	cfg.Notify.StreamMaxLen = 10000
	cfg.Notify.NATSURL = "nats://localhost:4222"
	cfg.Notify.NATSSubjectPrefix = "frostbase.alarms"

	cfg.Cache.SnapshotKeyPrefix = "frostbase:truck:"
	cfg.Cache.SnapshotTTL = 5 * time.Minute

	cfg.HTTP.Addr = ":8090"

	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 5
	cfg.Log.MaxAgeDays = 30

	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) loadEnv() error {
	c.Database.LoadFromEnv("DB")
	c.Redis.LoadFromEnv("REDIS")
	c.MQTT.LoadFromEnv("MQTT")
	c.Kafka.LoadFromEnv("KAFKA")

	if ids := getEnv("TRUCK_IDS", ""); ids != "" {
		c.Monitor.TruckIDs = splitList(ids)
	}

	var err error
	if c.Monitor.PollInterval, err = getEnvDuration("POLL_INTERVAL", c.Monitor.PollInterval); err != nil {
		return err
	}
	if c.Monitor.AlertCooldown, err = getEnvDuration("ALERT_COOLDOWN", c.Monitor.AlertCooldown); err != nil {
		return err
	}
	if c.Monitor.FetchTimeout, err = getEnvDuration("FETCH_TIMEOUT", c.Monitor.FetchTimeout); err != nil {
		return err
	}
	if c.Monitor.ThresholdRefresh, err = getEnvDuration("THRESHOLD_REFRESH", c.Monitor.ThresholdRefresh); err != nil {
		return err
	}
	if c.Cache.SnapshotTTL, err = getEnvDuration("SNAPSHOT_TTL", c.Cache.SnapshotTTL); err != nil {
		return err
	}

	c.Telemetry.BaseURL = getEnv("TELEMETRY_BASE_URL", c.Telemetry.BaseURL)
	c.Telemetry.RetryCount = getEnvInt("TELEMETRY_RETRY_COUNT", c.Telemetry.RetryCount)
	c.Telemetry.LegacyList = getEnvBool("TELEMETRY_LEGACY_LIST", c.Telemetry.LegacyList)

	c.Features.Database = getEnvBool("DB_ENABLED", c.Features.Database)
	c.Features.Redis = getEnvBool("REDIS_ENABLED", c.Features.Redis)
	c.Features.MQTT = getEnvBool("MQTT_ENABLED", c.Features.MQTT)
	c.Features.Kafka = getEnvBool("KAFKA_ENABLED", c.Features.Kafka)
	c.Features.NATS = getEnvBool("NATS_ENABLED", c.Features.NATS)

	c.Notify.MQTTTopicPrefix = getEnv("MQTT_TOPIC_PREFIX", c.Notify.MQTTTopicPrefix)
	c.Notify.StreamName = getEnv("ALARM_STREAM", c.Notify.StreamName)
	c.Notify.NATSURL = getEnv("NATS_URL", c.Notify.NATSURL)
	c.Notify.NATSSubjectPrefix = getEnv("NATS_SUBJECT_PREFIX", c.Notify.NATSSubjectPrefix)

	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)
	c.Log.File = getEnv("LOG_FILE", c.Log.File)

	return nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if len(c.Monitor.TruckIDs) == 0 {
		return fmt.Errorf("at least one truck id is required")
	}
	if c.Monitor.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.Monitor.PollInterval)
	}
	if c.Monitor.AlertCooldown < 0 {
		return fmt.Errorf("alert cooldown must not be negative, got %s", c.Monitor.AlertCooldown)
	}
	if c.Telemetry.BaseURL == "" {
		return fmt.Errorf("telemetry base url is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration 支持 "5s" 或毫秒整数 "5000"
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if ms, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func splitList(s string) []string {
	out := []string{}
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
