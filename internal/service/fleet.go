package service

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"sync"
	"time"

	"frostbase-alarm/common/database"
	commonmqtt "frostbase-alarm/common/mqtt"
	commonredis "frostbase-alarm/common/redis"
	"frostbase-alarm/internal/client"
	"frostbase-alarm/internal/config"
	"frostbase-alarm/internal/consumer"
	"frostbase-alarm/internal/httpapi"
	"frostbase-alarm/internal/metrics"
	"frostbase-alarm/internal/models"
	"frostbase-alarm/internal/monitor"
	"frostbase-alarm/internal/notifier"
	"frostbase-alarm/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const connectTimeout = 5 * time.Second

// FleetService 冷藏车报警服务（每辆车一个 monitor）
type FleetService struct {
	config *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client

	telemetry       *client.TelemetryClient
	metrics         *metrics.Metrics
	snapshotCache   *consumer.SnapshotCache
	alarmEventsRepo *repository.AlarmEventsRepository
	fanout          *notifier.Multi

	monitors map[string]*monitor.Monitor
	truckIDs []string

	handler http.Handler
	server  *Server

	stopOnce sync.Once
}

// NewFleetService 创建服务；可选基础设施连接失败时记录警告并降级
func NewFleetService(cfg *config.Config, logger *zap.Logger) (*FleetService, error) {
	s := &FleetService{
		config:   cfg,
		logger:   logger,
		metrics:  metrics.New(),
		monitors: make(map[string]*monitor.Monitor),
	}

	// 1. 遥测 API 客户端
	s.telemetry = client.NewTelemetryClient(client.Options{
		BaseURL:    cfg.Telemetry.BaseURL,
		Timeout:    cfg.Monitor.FetchTimeout,
		RetryCount: cfg.Telemetry.RetryCount,
		LegacyList: cfg.Telemetry.LegacyList,
	}, logger)

	// 2. 可选基础设施
	sinks := []notifier.Notifier{notifier.NewLogNotifier(logger)}
	sinks = append(sinks, s.connectDatabase()...)
	sinks = append(sinks, s.connectRedis()...)
	sinks = append(sinks, s.connectMQTT()...)
	sinks = append(sinks, s.connectKafka()...)
	sinks = append(sinks, s.connectNATS()...)
	s.fanout = notifier.NewMulti(logger, sinks...)

	// 3. 每辆车一个 monitor
	for _, truckID := range cfg.Monitor.TruckIDs {
		if _, dup := s.monitors[truckID]; dup {
			logger.Warn("Duplicate truck id ignored", zap.String("truck_id", truckID))
			continue
		}

		deps := monitor.Deps{
			Readings:   s.telemetry,
			Thresholds: s.telemetry,
			Notifier:   notifier.Shared(s.fanout),
			Metrics:    s.metrics,
			Logger:     logger,
		}
		if s.snapshotCache != nil {
			deps.Snapshots = s.snapshotCache
		}

		m, err := monitor.New(monitor.Options{
			TruckID:          truckID,
			PollInterval:     cfg.Monitor.PollInterval,
			AlertCooldown:    cfg.Monitor.AlertCooldown,
			FetchTimeout:     cfg.Monitor.FetchTimeout,
			ThresholdRefresh: cfg.Monitor.ThresholdRefresh,
		}, deps)
		if err != nil {
			s.closeInfra()
			return nil, fmt.Errorf("failed to create monitor for truck %s: %w", truckID, err)
		}
		s.monitors[truckID] = m
		s.truckIDs = append(s.truckIDs, truckID)
	}

	// 4. HTTP 显示层
	var (
		cached  httpapi.CachedSnapshots
		history httpapi.AlarmHistory
	)
	if s.snapshotCache != nil {
		cached = s.snapshotCache
	}
	if s.alarmEventsRepo != nil {
		history = s.alarmEventsRepo
	}
	s.handler = httpapi.NewRouter(
		httpapi.NewTruckHandler(s, cached, history, logger),
		s.metrics.Handler(),
		logger,
	)
	s.server = NewServer(cfg.HTTP.Addr, s.handler, logger)

	logger.Info("Fleet service created",
		zap.Strings("truck_ids", s.truckIDs),
		zap.Int("notifier_sinks", s.fanout.Len()),
		zap.Bool("history_enabled", s.alarmEventsRepo != nil),
		zap.Bool("snapshot_cache_enabled", s.snapshotCache != nil),
	)
	return s, nil
}

func (s *FleetService) connectDatabase() []notifier.Notifier {
	if !s.config.Features.Database {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := database.Open(ctx, &s.config.Database)
	if err != nil {
		s.logger.Warn("Database unavailable, alarm history disabled", zap.Error(err))
		return nil
	}

	repo := repository.NewAlarmEventsRepository(db, s.logger)
	if err := repo.EnsureSchema(ctx); err != nil {
		s.logger.Warn("Failed to ensure alarm history schema, alarm history disabled", zap.Error(err))
		_ = db.Close()
		return nil
	}

	s.db = db
	s.alarmEventsRepo = repo
	return []notifier.Notifier{notifier.NewHistoryNotifier(repo)}
}

func (s *FleetService) connectRedis() []notifier.Notifier {
	if !s.config.Features.Redis {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	rdb, err := commonredis.Connect(ctx, &s.config.Redis)
	if err != nil {
		s.logger.Warn("Redis unavailable, snapshot cache and alarm stream disabled", zap.Error(err))
		return nil
	}

	s.redisClient = rdb
	s.snapshotCache = consumer.NewSnapshotCache(
		consumer.NewRedisKVStore(rdb),
		s.config.Cache.SnapshotKeyPrefix,
		s.config.Cache.SnapshotTTL,
		s.logger,
	)
	return []notifier.Notifier{notifier.NewStreamNotifier(rdb, s.config.Notify.StreamName, s.config.Notify.StreamMaxLen)}
}

func (s *FleetService) connectMQTT() []notifier.Notifier {
	if !s.config.Features.MQTT {
		return nil
	}
	c, err := commonmqtt.NewClient(&s.config.MQTT, s.logger)
	if err != nil {
		s.logger.Warn("MQTT broker unavailable, mobile alerts disabled", zap.Error(err))
		return nil
	}
	return []notifier.Notifier{notifier.NewMQTTNotifier(c, s.config.Notify.MQTTTopicPrefix, c.QoS())}
}

func (s *FleetService) connectKafka() []notifier.Notifier {
	if !s.config.Features.Kafka {
		return nil
	}
	if len(s.config.Kafka.Brokers) == 0 || s.config.Kafka.Topic == "" {
		s.logger.Warn("Kafka brokers or topic not configured, kafka alarms disabled")
		return nil
	}
	// kafka.Writer 懒连接，首次写入失败时由 Multi 记录
	w := notifier.NewKafkaWriter(s.config.Kafka.Brokers, s.config.Kafka.Topic)
	return []notifier.Notifier{notifier.NewKafkaNotifier(w)}
}

func (s *FleetService) connectNATS() []notifier.Notifier {
	if !s.config.Features.NATS {
		return nil
	}
	conn, err := notifier.ConnectNATS(s.config.Notify.NATSURL, "frostbase-alarm")
	if err != nil {
		s.logger.Warn("NATS unavailable, nats alarms disabled", zap.Error(err))
		return nil
	}
	return []notifier.Notifier{notifier.NewNATSNotifier(conn, s.config.Notify.NATSSubjectPrefix)}
}

// Start 启动所有 monitor 和 HTTP 服务
func (s *FleetService) Start(ctx context.Context) error {
	s.logger.Info("Starting fleet service", zap.Int("truck_count", len(s.truckIDs)))

	if err := s.server.Listen(); err != nil {
		return err
	}
	go func() {
		if err := s.server.Serve(); err != nil {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}()

	for _, id := range s.truckIDs {
		if err := s.monitors[id].Start(ctx); err != nil {
			return fmt.Errorf("failed to start monitor for truck %s: %w", id, err)
		}
	}

	return nil
}

// Stop 停止服务（可重复调用）
func (s *FleetService) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping fleet service")

		ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
		defer cancel()
		if err := s.server.Stop(ctx); err != nil {
			s.logger.Error("Failed to stop HTTP server", zap.Error(err))
		}

		for _, id := range s.truckIDs {
			s.monitors[id].Shutdown()
		}

		s.closeInfra()
		s.logger.Info("Fleet service stopped")
	})
}

func (s *FleetService) closeInfra() {
	if s.fanout != nil {
		if err := s.fanout.Close(); err != nil {
			s.logger.Error("Failed to close notifiers", zap.Error(err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", zap.Error(err))
		}
	}
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("Failed to close redis", zap.Error(err))
		}
	}
}

// Handler 显示层路由
func (s *FleetService) Handler() http.Handler { return s.handler }

// Addr HTTP 实际监听地址
func (s *FleetService) Addr() string { return s.server.Addr() }

// TruckIDs 本实例监控的车辆
func (s *FleetService) TruckIDs() []string {
	out := make([]string, len(s.truckIDs))
	copy(out, s.truckIDs)
	return out
}

// Snapshot 指定车辆的实时快照
func (s *FleetService) Snapshot(truckID string) (models.Snapshot, bool) {
	m, ok := s.monitors[truckID]
	if !ok {
		return models.Snapshot{}, false
	}
	return m.Snapshot(), true
}
