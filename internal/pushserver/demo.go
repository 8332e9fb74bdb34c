package pushserver

import (
	"math/rand/v2"
	"time"

	"github.com/jonmax1987/omnix-ai-professional-sub006/internal/core/observability/log"
	"github.com/rs/xid"
)

// Demo channels published by runDemo.
const (
	ChannelDashboardMetrics = "dashboard-metrics"
	ChannelAlerts           = "alerts"
	ChannelInventory        = "inventory-update"
)

// runDemo publishes sample dashboard traffic until the server stops.
func (s *Server) runDemo(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("Demo publisher started", log.Duration("interval", interval))
	for {
		select {
		case now := <-ticker.C:
			s.publishDemo(now)
		case <-s.stopChan:
			s.logger.Debug("Demo publisher stopped")
			return
		}
	}
}

func (s *Server) publishDemo(now time.Time) {
	events := []struct {
		channel string
		payload any
	}{
		{ChannelDashboardMetrics, map[string]any{
			"activeUsers": 100 + rand.IntN(50),
			"revenue":     float64(rand.IntN(100_000)) / 100,
			"timestamp":   now.UnixMilli(),
		}},
		{ChannelInventory, map[string]any{
			"productId": xid.New().String(),
			"quantity":  rand.IntN(500),
			"timestamp": now.UnixMilli(),
		}},
	}
	if rand.IntN(4) == 0 {
		events = append(events, struct {
			channel string
			payload any
		}{ChannelAlerts, map[string]any{
			"id":       xid.New().String(),
			"severity": "warning",
			"message":  "Stock level below threshold",
		}})
	}

	for _, ev := range events {
		if _, err := s.Publish(ev.channel, ev.payload); err != nil {
			s.logger.Warn("Demo publish failed", log.String("channel", ev.channel), log.Error(err))
		}
	}
}
