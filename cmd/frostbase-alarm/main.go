package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"frostbase-alarm/common/logger"
	"frostbase-alarm/internal/config"
	"frostbase-alarm/internal/service"

	"go.uber.org/zap"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// 2. 初始化日志
	log, err := logger.NewLoggerWithFile(cfg.Log.Level, cfg.Log.Format, "frostbase-alarm", logger.FileOptions{
		Path:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to init logger: %v", err))
	}
	defer log.Sync()

	// 3. 创建服务
	fleet, err := service.NewFleetService(cfg, log)
	if err != nil {
		log.Fatal("Failed to create fleet service", zap.Error(err))
	}
	defer fleet.Stop()

	// 4. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 5. 启动服务
	if err := fleet.Start(ctx); err != nil {
		log.Error("Failed to start fleet service", zap.Error(err))
		return
	}

	// 6. 等待信号（优雅关闭）
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Info("Received signal, shutting down", zap.String("signal", sig.String()))
	cancel()
	fleet.Stop()

	log.Info("Frostbase alarm service stopped")
}
