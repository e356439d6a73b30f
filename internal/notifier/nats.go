package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"frostbase-alarm/internal/models"

	"github.com/nats-io/nats.go"
)

// natsConn *nats.Conn 的子集
type natsConn interface {
	Publish(subj string, data []byte) error
	Drain() error
}

// NATSNotifier 发布到 <subjectPrefix>.<truckId>
type NATSNotifier struct {
	conn          natsConn
	subjectPrefix string
	closeOnce     sync.Once
	closeErr      error
}

// ConnectNATS 连接 NATS 服务器
func ConnectNATS(url, name string) (*nats.Conn, error) {
	return nats.Connect(url, nats.Name(name), nats.MaxReconnects(-1))
}

func NewNATSNotifier(conn natsConn, subjectPrefix string) *NATSNotifier {
	return &NATSNotifier{conn: conn, subjectPrefix: subjectPrefix}
}

func (n *NATSNotifier) Notify(_ context.Context, note models.Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}
	subject := n.subjectPrefix + "." + note.TruckID
	if err := n.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Close Drain 会在刷出待发消息后关闭连接
func (n *NATSNotifier) Close() error {
	n.closeOnce.Do(func() { n.closeErr = n.conn.Drain() })
	return n.closeErr
}
