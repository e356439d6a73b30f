package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDatabaseConfig_GetDSN(t *testing.T) {
	c := DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Database: "frostbase", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=frostbase sslmode=disable connect_timeout=5 fallback_application_name=frostbase-alarm", c.GetDSN())
}

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "pg")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "fleet")

	c := DatabaseConfig{Host: "localhost", Port: 5432, Database: "frostbase"}
	c.LoadFromEnv("DB")

	assert.Equal(t, "pg", c.Host)
	assert.Equal(t, 6543, c.Port)
	assert.Equal(t, "fleet", c.Database)
}

func TestMQTTConfig_LoadFromEnv_InvalidQoS(t *testing.T) {
	t.Setenv("MQTT_QOS", "7")

	c := MQTTConfig{QoS: 1}
	c.LoadFromEnv("MQTT")

	// 非法值保持原值
	assert.Equal(t, byte(1), c.QoS)
}

func TestKafkaConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("KAFKA_TOPIC", "alarms")

	c := KafkaConfig{Brokers: []string{"localhost:9092"}}
	c.LoadFromEnv("KAFKA")

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Brokers)
	assert.Equal(t, "alarms", c.Topic)
}
