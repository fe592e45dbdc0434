package heartbeat

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/onsi/gomega"

	"github.com/datahub-project/datahub-upgrade/internal/hooks"
	"github.com/datahub-project/datahub-upgrade/internal/lock"
	"github.com/datahub-project/datahub-upgrade/internal/model"
)

type countingPublisher struct {
	mu    sync.Mutex
	beats []model.HeartbeatPayload
}

func (c *countingPublisher) PublishHeartbeat(_ context.Context, hb model.HeartbeatPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beats = append(c.beats, hb)
	return nil
}

func (c *countingPublisher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.beats)
}

type fakeLease struct {
	mu        sync.Mutex
	refreshes int
	err       error
}

func (f *fakeLease) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	return f.err
}

func (f *fakeLease) Release(context.Context) error { return nil }

func (f *fakeLease) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func TestSenderPublishesAndRefreshes(t *testing.T) {
	g := NewWithT(t)

	pub := &countingPublisher{}
	lease := &fakeLease{}
	s := NewSender(Config{Interval: 10 * time.Millisecond, UpgradeID: "u", RunID: "r"}, lease, []hooks.HeartbeatPublisher{pub}, nil)
	go s.Start(context.Background())

	g.Eventually(pub.count).Should(BeNumerically(">=", 2))
	s.Stop()
	s.Stop()

	g.Expect(lease.count()).To(BeNumerically(">=", 2))
	pub.mu.Lock()
	g.Expect(pub.beats[0].UpgradeID).To(Equal("u"))
	g.Expect(pub.beats[0].MessageType).To(Equal("HEARTBEAT"))
	pub.mu.Unlock()
}

func TestSenderStopsWhenLeaseLost(t *testing.T) {
	g := NewWithT(t)

	lost := make(chan error, 1)
	lease := &fakeLease{err: lock.ErrLeaseLost}
	pub := &countingPublisher{}
	s := NewSender(Config{Interval: 5 * time.Millisecond}, lease, []hooks.HeartbeatPublisher{pub}, func(err error) { lost <- err })
	go s.Start(context.Background())

	g.Eventually(lost).Should(Receive(MatchError(lock.ErrLeaseLost)))
	s.Stop()
	g.Expect(pub.count()).To(BeZero())
	g.Expect(lease.count()).To(Equal(1))
}

func TestSenderStopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewSender(Config{Interval: time.Hour}, nil, nil, nil)
	go s.Start(ctx)
	cancel()
	s.Stop()
}
