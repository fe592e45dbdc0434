package heartbeat

import (
	"context"
	"errors"
	"sync"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/datahub-project/datahub-upgrade/internal/hooks"
	"github.com/datahub-project/datahub-upgrade/internal/lock"
	"github.com/datahub-project/datahub-upgrade/internal/model"
)

// Config holds configuration for the heartbeat sender
type Config struct {
	Interval  time.Duration
	UpgradeID string
	RunID     string
	Source    model.SourceMetadata
}

// DefaultInterval is used when Config.Interval is not set
const DefaultInterval = 30 * time.Second

// Sender keeps the run lease alive and publishes heartbeats while an upgrade runs
type Sender struct {
	config     Config
	lease      lock.Lease
	publishers []hooks.HeartbeatPublisher
	onLost     func(error)

	started  time.Time
	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewSender creates a new heartbeat sender. onLost is called once when the lease
// can no longer be refreshed; it may be nil.
func NewSender(
	config Config,
	lease lock.Lease,
	publishers []hooks.HeartbeatPublisher,
	onLost func(error),
) *Sender {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	return &Sender{
		config:     config,
		lease:      lease,
		publishers: publishers,
		onLost:     onLost,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs the heartbeat loop until Stop is called or ctx is done
func (s *Sender) Start(ctx context.Context) {
	defer close(s.done)
	logger := log.FromContext(ctx).WithName("heartbeat-sender")

	logger.Info("Starting heartbeat sender",
		"interval", s.config.Interval,
		"upgradeId", s.config.UpgradeID,
		"runId", s.config.RunID,
		"publishers", len(s.publishers),
	)

	s.started = time.Now()
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !s.beat(ctx) {
				return
			}
		case <-s.stopCh:
			logger.Info("Heartbeat sender stopped")
			return
		case <-ctx.Done():
			logger.Info("Heartbeat sender context cancelled")
			return
		}
	}
}

// Stop stops the heartbeat loop and waits for it to return
func (s *Sender) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

// beat refreshes the lease and publishes one heartbeat. It returns false when
// the lease is gone.
func (s *Sender) beat(ctx context.Context) bool {
	logger := log.FromContext(ctx).WithName("heartbeat-sender")

	if s.lease != nil {
		if err := s.lease.Refresh(ctx); err != nil {
			if errors.Is(err, lock.ErrLeaseLost) {
				logger.Error(err, "Upgrade lock lease lost", "upgradeId", s.config.UpgradeID)
				if s.onLost != nil {
					s.onLost(err)
				}
				return false
			}
			logger.Error(err, "Failed to refresh upgrade lock lease", "upgradeId", s.config.UpgradeID)
		}
	}

	payload := model.NewHeartbeatPayload(s.config.UpgradeID, s.config.RunID, time.Since(s.started), s.config.Source)
	logger.V(1).Info("Sending heartbeat", "eventID", payload.EventID, "elapsedMs", payload.ElapsedMs)

	for _, publisher := range s.publishers {
		if err := publisher.PublishHeartbeat(ctx, payload); err != nil {
			logger.Error(err, "Failed to publish heartbeat")
		}
	}
	return true
}
