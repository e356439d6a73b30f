package mqtt

import (
	"testing"

	"frostbase-alarm/common/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewClient_BrokerUnreachable(t *testing.T) {
	cfg := &config.MQTTConfig{
		Broker:      "tcp://127.0.0.1:1",
		ClientID:    "frostbase-alarm-test",
		QoS:         1,
		StatusTopic: "frostbase/alarm/status",
	}

	client, err := NewClient(cfg, zap.NewNop())
	require.Error(t, err)
	assert.Nil(t, client)
	assert.Contains(t, err.Error(), "tcp://127.0.0.1:1")
}
