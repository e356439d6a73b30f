package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server 显示层 HTTP 服务；Listen 与 Serve 分开，端口占用在启动时即可返回
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      30 * time.Second, // xlsx 导出
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// Listen 绑定端口
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln
	s.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Serve 阻塞直到 Stop；正常关闭返回 nil
func (s *Server) Serve() error {
	if s.listener == nil {
		return errors.New("server is not listening")
	}
	if err := s.httpServer.Serve(s.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr 实际监听地址（":0" 时为系统分配端口）
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.httpServer.Addr
	}
	return s.listener.Addr().String()
}

func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.httpServer.Shutdown(ctx)
}
