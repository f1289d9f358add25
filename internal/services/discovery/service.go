// Package discovery locates the price feed a lending protocol consults for an
// asset by folding over an ordered list of protocol adapters.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/archon-research/oracle-forge/internal/domain/entity"
	"github.com/archon-research/oracle-forge/internal/ports/outbound"
)

const notRecognized = "does not recognize protocol"

// kindAware is implemented by adapters that serve a specific ProtocolKind.
type kindAware interface {
	Supports(kind entity.ProtocolKind) bool
}

// Config holds configuration for the discovery service.
type Config struct {
	Logger  *slog.Logger
	Metrics outbound.MetricsRecorder
}

// Service runs adapters in priority order; the first success wins.
type Service struct {
	adapters []outbound.FeedAdapter
	metrics  outbound.MetricsRecorder
	logger   *slog.Logger
}

// NewService creates a discovery service over adapters, tried in the given order.
func NewService(config Config, adapters ...outbound.FeedAdapter) (*Service, error) {
	if len(adapters) == 0 {
		return nil, fmt.Errorf("at least one adapter is required")
	}
	for i, a := range adapters {
		if a == nil {
			return nil, fmt.Errorf("adapter %d is nil", i)
		}
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = outbound.NopMetrics{}
	}

	return &Service{
		adapters: append([]outbound.FeedAdapter(nil), adapters...),
		metrics:  config.Metrics,
		logger:   config.Logger.With("component", "feed-discovery"),
	}, nil
}

// DiscoverFeed tries every adapter in default order.
func (s *Service) DiscoverFeed(ctx context.Context, protocol, asset common.Address) (*entity.FeedInfo, error) {
	return s.discover(ctx, s.adapters, protocol, asset)
}

// DiscoverFeedFor moves adapters that serve kind to the front of the list.
// The hint only affects ordering; every adapter is still tried.
func (s *Service) DiscoverFeedFor(ctx context.Context, kind entity.ProtocolKind, protocol, asset common.Address) (*entity.FeedInfo, error) {
	return s.discover(ctx, s.ordered(kind), protocol, asset)
}

func (s *Service) ordered(kind entity.ProtocolKind) []outbound.FeedAdapter {
	if kind == "" {
		return s.adapters
	}
	preferred := make([]outbound.FeedAdapter, 0, len(s.adapters))
	rest := make([]outbound.FeedAdapter, 0, len(s.adapters))
	for _, a := range s.adapters {
		if k, ok := a.(kindAware); ok && k.Supports(kind) {
			preferred = append(preferred, a)
			continue
		}
		rest = append(rest, a)
	}
	return append(preferred, rest...)
}

func (s *Service) discover(ctx context.Context, adapters []outbound.FeedAdapter, protocol, asset common.Address) (*entity.FeedInfo, error) {
	start := time.Now()
	attempts := make([]Attempt, 0, len(adapters))

	for _, adapter := range adapters {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		ok, err := adapter.CanHandle(ctx, protocol, asset)
		if err != nil {
			s.logger.Debug("adapter probe failed", "adapter", adapter.Name(), "protocol", protocol.Hex(), "error", err)
			attempts = append(attempts, Attempt{Adapter: adapter.Name(), Message: err.Error()})
			continue
		}
		if !ok {
			attempts = append(attempts, Attempt{Adapter: adapter.Name(), Message: notRecognized})
			continue
		}

		feed, err := adapter.DiscoverFeed(ctx, protocol, asset)
		if err != nil {
			s.logger.Debug("adapter discovery failed", "adapter", adapter.Name(), "protocol", protocol.Hex(), "asset", asset.Hex(), "error", err)
			attempts = append(attempts, Attempt{Adapter: adapter.Name(), Message: err.Error()})
			continue
		}

		s.metrics.RecordDiscovery(ctx, adapter.Name(), time.Since(start), "success")
		s.logger.Info("feed discovered",
			"adapter", adapter.Name(),
			"protocol", protocol.Hex(),
			"asset", asset.Hex(),
			"feed", feed.Address.Hex(),
			"decimals", feed.Decimals)
		return feed, nil
	}

	s.metrics.RecordDiscovery(ctx, "none", time.Since(start), "failure")
	return nil, &Error{Protocol: protocol, Asset: asset, Attempts: attempts}
}
