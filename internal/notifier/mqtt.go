package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"frostbase-alarm/internal/models"
)

// Publisher MQTT 发布接口（common/mqtt.Client 实现）
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
	Disconnect()
}

// MQTTNotifier 向移动端推送提示音和弹窗
//
//	<prefix>/<truckId>/cue   -> {"cue": "...", "metric": "..."}
//	<prefix>/<truckId>/alert -> Notification JSON
type MQTTNotifier struct {
	client      Publisher
	topicPrefix string
	qos         byte
	closeOnce   sync.Once
}

func NewMQTTNotifier(client Publisher, topicPrefix string, qos byte) *MQTTNotifier {
	return &MQTTNotifier{client: client, topicPrefix: topicPrefix, qos: qos}
}

type cueMessage struct {
	Cue    string        `json:"cue"`
	Metric models.Metric `json:"metric"`
}

func (m *MQTTNotifier) Notify(_ context.Context, n models.Notification) error {
	cue, err := json.Marshal(cueMessage{Cue: n.Cue, Metric: n.Metric})
	if err != nil {
		return fmt.Errorf("failed to marshal cue: %w", err)
	}
	if err := m.client.Publish(m.topic(n.TruckID, "cue"), m.qos, false, cue); err != nil {
		return err
	}

	alert, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	return m.client.Publish(m.topic(n.TruckID, "alert"), m.qos, false, alert)
}

// Close 断开 broker 连接（释放播放通道）
func (m *MQTTNotifier) Close() error {
	m.closeOnce.Do(m.client.Disconnect)
	return nil
}

func (m *MQTTNotifier) topic(truckID, kind string) string {
	return fmt.Sprintf("%s/%s/%s", m.topicPrefix, truckID, kind)
}
