package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"frostbase-alarm/internal/models"

	"github.com/segmentio/kafka-go"
)

// messageWriter kafka.Writer 的子集
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier 以 truckId 为 key 写入 Kafka
type KafkaNotifier struct {
	writer messageWriter
}

// NewKafkaWriter 创建同步写入的 kafka.Writer
// 报警是零星单条消息，BatchTimeout 调小避免每条等待默认的 1s 攒批
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
}

func NewKafkaNotifier(writer messageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

func (k *KafkaNotifier) Notify(ctx context.Context, n models.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(n.TruckID), Value: payload}); err != nil {
		return fmt.Errorf("failed to write kafka message: %w", err)
	}
	return nil
}

func (k *KafkaNotifier) Close() error {
	return k.writer.Close()
}
