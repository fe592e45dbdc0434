package hooks

import (
	"context"
	"sync"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/datahub-project/datahub-upgrade/internal/model"
)

// BatchConfig bounds how long and how many step events are held before publishing
type BatchConfig struct {
	FlushWindow  time.Duration // age of the oldest held event that triggers a flush
	MaxBatchSize int
}

// DefaultBatchConfig returns the batching used when none is configured
func DefaultBatchConfig() BatchConfig {
	return BatchConfig{
		FlushWindow:  2 * time.Second,
		MaxBatchSize: 100,
	}
}

// StepEventPublisherQueue groups step events into batches. The pending batch is
// owned by the Loop goroutine.
type StepEventPublisherQueue struct {
	eventChan  <-chan model.StepEvent
	publishers []StepEventPublisher
	config     BatchConfig

	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewStepEventPublisherQueue returns a queue reading from eventChan. Zero config
// fields fall back to DefaultBatchConfig.
func NewStepEventPublisherQueue(
	eventChan <-chan model.StepEvent,
	publishers []StepEventPublisher,
	config BatchConfig,
) *StepEventPublisherQueue {
	def := DefaultBatchConfig()
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = def.MaxBatchSize
	}
	if config.FlushWindow <= 0 {
		config.FlushWindow = def.FlushWindow
	}
	return &StepEventPublisherQueue{
		eventChan:  eventChan,
		publishers: publishers,
		config:     config,
		stopCh:     make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// stepBatch is the pending batch and the window of its oldest event
type stepBatch struct {
	events []model.StepEvent
	window *time.Timer
}

// expired is nil while nothing is pending so the select ignores it
func (b *stepBatch) expired() <-chan time.Time {
	if b.window == nil {
		return nil
	}
	return b.window.C
}

func (b *stepBatch) take() []model.StepEvent {
	if b.window != nil {
		b.window.Stop()
		b.window = nil
	}
	events := b.events
	b.events = nil
	return events
}

// Loop publishes batches until the event channel is closed or Stop is called.
// Whatever is pending at that point is published before Loop returns.
func (q *StepEventPublisherQueue) Loop(ctx context.Context) {
	defer close(q.done)
	logger := log.FromContext(ctx)

	logger.Info("Step event publisher queue started",
		"publishers", len(q.publishers),
		"flushWindow", q.config.FlushWindow,
		"maxBatchSize", q.config.MaxBatchSize,
	)

	var batch stepBatch
	defer func() { q.publish(ctx, batch.take()) }()

	for {
		select {
		case event, ok := <-q.eventChan:
			if !ok {
				return
			}
			q.add(ctx, &batch, event)

		case <-batch.expired():
			batch.window = nil
			q.publish(ctx, batch.take())

		case <-q.stopCh:
			for {
				select {
				case event, ok := <-q.eventChan:
					if !ok {
						return
					}
					q.add(ctx, &batch, event)
				default:
					return
				}
			}
		}
	}
}

func (q *StepEventPublisherQueue) add(ctx context.Context, batch *stepBatch, event model.StepEvent) {
	if len(batch.events) == 0 {
		batch.events = make([]model.StepEvent, 0, q.config.MaxBatchSize)
		batch.window = time.NewTimer(q.config.FlushWindow)
	}
	batch.events = append(batch.events, event)
	if len(batch.events) >= q.config.MaxBatchSize {
		q.publish(ctx, batch.take())
	}
}

// Stop makes Loop publish what it holds and return. Safe to call more than once.
func (q *StepEventPublisherQueue) Stop() {
	q.stopOnce.Do(func() { close(q.stopCh) })
}

// Wait blocks until Loop has returned
func (q *StepEventPublisherQueue) Wait() {
	<-q.done
}

func (q *StepEventPublisherQueue) publish(ctx context.Context, events []model.StepEvent) {
	if len(events) == 0 {
		return
	}
	logger := log.FromContext(ctx)
	logger.V(1).Info("Publishing step event batch", "eventCount", len(events), "publishers", len(q.publishers))

	for _, publisher := range q.publishers {
		if err := publisher.PublishBatch(ctx, events); err != nil {
			logger.Error(err, "Failed to publish step event batch", "eventCount", len(events))
		}
	}
}
