package registry

import (
	"context"
	"log/slog"
	"time"
)

// Sweeper 定期清理用户连接集合中已过期的成员
type Sweeper struct {
	registry *Registry
	interval time.Duration
	logger   *slog.Logger
}

// NewSweeper 创建清扫器
func NewSweeper(registry *Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		registry: registry,
		interval: interval,
		logger:   slog.Default(),
	}
}

// Start 启动清扫（阻塞，应在 goroutine 中调用）
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Connection sweeper started", "interval", s.interval)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Connection sweeper stopped")
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	removed, err := s.registry.Sweep(ctx)
	if err != nil {
		s.logger.Warn("Connection sweep failed", "removed", removed, "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("Connection sweep completed", "removed", removed)
	}
}
