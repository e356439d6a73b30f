package mqtt

import (
	"fmt"
	"time"

	"frostbase-alarm/common/config"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"

	publishTimeout = 5 * time.Second
)

// Client 报警推送用 MQTT 客户端（只发布，不订阅）
type Client struct {
	client mqtt.Client
	config *config.MQTTConfig
	logger *zap.Logger
}

// NewClient 连接 broker；配置了 StatusTopic 时注册遗嘱并在每次连上后发布 online
func NewClient(cfg *config.MQTTConfig, logger *zap.Logger) (*Client, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	opts.SetAutoReconnect(true)
	opts.SetCleanSession(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.String("broker", cfg.Broker), zap.Error(err))
	})

	if cfg.StatusTopic != "" {
		opts.SetWill(cfg.StatusTopic, StatusOffline, cfg.QoS, true)
		opts.SetOnConnectHandler(func(c mqtt.Client) {
			// 重连后刷新 retained 状态
			token := c.Publish(cfg.StatusTopic, cfg.QoS, true, StatusOnline)
			if token.WaitTimeout(publishTimeout) && token.Error() != nil {
				logger.Warn("Failed to publish MQTT online status", zap.Error(token.Error()))
			}
		})
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker %s: %w", cfg.Broker, token.Error())
	}

	logger.Info("Connected to MQTT broker",
		zap.String("broker", cfg.Broker),
		zap.String("client_id", cfg.ClientID),
	)
	return &Client{
		client: client,
		config: cfg,
		logger: logger,
	}, nil
}

// Publish 发布消息，broker 超时未确认视为失败
func (c *Client) Publish(topic string, qos byte, retained bool, payload []byte) error {
	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out publishing to topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to topic %s: %w", topic, err)
	}
	return nil
}

// QoS 配置的默认 QoS
func (c *Client) QoS() byte {
	return c.config.QoS
}

// Disconnect 正常下线：先发布 offline（遗嘱只在异常断开时触发）
func (c *Client) Disconnect() {
	if c.config.StatusTopic != "" && c.client.IsConnected() {
		if err := c.Publish(c.config.StatusTopic, c.config.QoS, true, []byte(StatusOffline)); err != nil {
			c.logger.Warn("Failed to publish MQTT offline status", zap.Error(err))
		}
	}
	c.client.Disconnect(250)
}
