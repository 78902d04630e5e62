package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/salesops/internal/events"
	"example.com/salesops/internal/query"
)

var (
	channelWonCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesops",
		Subsystem: "channels",
		Name:      "deals_won_total",
		Help:      "Number of deals won, labeled by acquisition channel.",
	}, []string{"channel"})

	channelLostCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "salesops",
		Subsystem: "channels",
		Name:      "deals_lost_total",
		Help:      "Number of deals lost, labeled by acquisition channel.",
	}, []string{"channel"})
)

func init() {
	prometheus.MustRegister(channelWonCounter, channelLostCounter)
}

// ChannelStatsHandler projects stage-change events into per-channel win and
// loss counters. Events for open stages are ignored.
type ChannelStatsHandler struct{}

// NewChannelStatsHandler constructs a ChannelStatsHandler.
func NewChannelStatsHandler() *ChannelStatsHandler {
	return &ChannelStatsHandler{}
}

// Handle updates channel counters from a deal.stage_changed event. Other
// event types pass through untouched.
func (h *ChannelStatsHandler) Handle(_ context.Context, msg Message) error {
	if msg.EventType != "deal.stage_changed" {
		return nil
	}

	var event events.DealStageChanged
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("unmarshal stage change: %w", err)
	}

	channel := event.Channel
	if channel == "" {
		channel = "unknown"
	}
	channel = query.DisplayChannel(channel)

	switch event.Stage {
	case "won":
		channelWonCounter.WithLabelValues(channel).Inc()
	case "lost":
		channelLostCounter.WithLabelValues(channel).Inc()
	}
	return nil
}
