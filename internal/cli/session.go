package cli

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	ctrl "sigs.k8s.io/controller-runtime"

	"github.com/datahub-project/datahub-upgrade/internal/buildinfo"
	"github.com/datahub-project/datahub-upgrade/internal/config"
	"github.com/datahub-project/datahub-upgrade/internal/environment"
	"github.com/datahub-project/datahub-upgrade/internal/hooks"
	"github.com/datahub-project/datahub-upgrade/internal/hooks/controlplane"
	"github.com/datahub-project/datahub-upgrade/internal/hooks/pubsub"
	"github.com/datahub-project/datahub-upgrade/internal/lock"
	"github.com/datahub-project/datahub-upgrade/internal/model"
	"github.com/datahub-project/datahub-upgrade/internal/store"
	"github.com/datahub-project/datahub-upgrade/internal/store/backends"
	"github.com/datahub-project/datahub-upgrade/internal/upgrade"
	"github.com/datahub-project/datahub-upgrade/internal/upgrade/builtin"
)

const (
	eventBufferSize     = 100
	stepEventBufferSize = 1000
	resolveTimeout      = 5 * time.Second
)

var setupLog = ctrl.Log.WithName("setup")

// session owns everything a command opens and must release
type session struct {
	cfg    *config.Config
	source model.SourceMetadata
	store  store.ResultStore
	locker lock.Locker

	events     chan model.UpgradeEvent
	stepEvents chan model.StepEvent
	eventQueue *hooks.EventPublisherQueue
	stepQueue  *hooks.StepEventPublisherQueue
	heartbeats []hooks.HeartbeatPublisher

	closers []func() error
}

// resolveSource identifies this process in every emitted event
func resolveSource(ctx context.Context, cfg *config.Config) (model.SourceMetadata, error) {
	resolver := environment.NewResolver(environment.Config{
		InstanceID: cfg.InstanceID,
		Timeout:    resolveTimeout,
		EnableGCP:  true,
	})
	defer resolver.Close()

	info, err := resolver.Resolve(ctx)
	if err != nil {
		return model.SourceMetadata{}, err
	}
	return model.SourceMetadata{InstanceID: info.InstanceID, Version: buildinfo.Version()}, nil
}

// openStore opens the configured result store only
func openStore(ctx context.Context, cfg *config.Config) (*session, error) {
	source, err := resolveSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt := &session{cfg: cfg, source: source, locker: lock.NopLocker{}}

	s, err := backends.Open(ctx, cfg.StoreOptions("", source.InstanceID))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}
	rt.store = s
	rt.closers = append(rt.closers, func() error { return backends.Close(s) })

	// results of SqlSetup itself live in the table it creates
	if migrator, ok := s.(store.Migrator); ok {
		if err := migrator.Migrate(ctx); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

// openSession opens the store, the lock backend and the event hooks
func openSession(ctx context.Context, cfg *config.Config) (*session, error) {
	rt, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if err := rt.openLocker(); err != nil {
		_ = rt.Close()
		return nil, err
	}

	if err := rt.startHooks(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

// openHooks starts the event hooks without a store, for the controller
func openHooks(ctx context.Context, cfg *config.Config) (*session, error) {
	source, err := resolveSource(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt := &session{cfg: cfg, source: source, locker: lock.NopLocker{}}
	if err := rt.startHooks(ctx); err != nil {
		_ = rt.Close()
		return nil, err
	}
	return rt, nil
}

// openLocker switches from the in-process lock to redis when configured
func (rt *session) openLocker() error {
	if rt.cfg.Lock.RedisURL == "" {
		return nil
	}
	locker, err := lock.NewRedisLockerFromURL(rt.cfg.Lock.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to create redis locker: %w", err)
	}
	rt.locker = locker
	rt.closers = append(rt.closers, locker.Close)
	setupLog.Info("Redis upgrade lock enabled")
	return nil
}

func (rt *session) startHooks(ctx context.Context) error {
	var publishers []hooks.EventPublisher
	var stepPublishers []hooks.StepEventPublisher

	if rt.cfg.Hooks.WebhookURL != "" {
		cp := controlplane.NewHTTPPublisher(rt.cfg.Hooks.WebhookURL, rt.cfg.Hooks.WebhookToken)
		publishers = append(publishers, cp)
		stepPublishers = append(stepPublishers, cp)
		rt.heartbeats = append(rt.heartbeats, cp)
		rt.closers = append(rt.closers, cp.Close)
		setupLog.Info("Control Plane publisher enabled", "endpoint", rt.cfg.Hooks.WebhookURL)
	}

	if rt.cfg.Hooks.PubSubTopic != "" {
		ps, err := pubsub.NewPubSubPublisher(ctx, rt.cfg.Hooks.PubSubTopic, rt.source.InstanceID)
		if err != nil {
			return fmt.Errorf("unable to create Pub/Sub publisher: %w", err)
		}
		publishers = append(publishers, ps)
		rt.closers = append(rt.closers, func() error { ps.Stop(); return nil })
		setupLog.Info("Google Pub/Sub publisher enabled", "topic", rt.cfg.Hooks.PubSubTopic)
	}

	if len(publishers) == 0 {
		setupLog.Info("No event publishers configured, results are only written to the store")
		return nil
	}

	// queues outlive the command context so the final events still drain
	queueCtx := context.WithoutCancel(ctx)

	rt.events = make(chan model.UpgradeEvent, eventBufferSize)
	rt.eventQueue = hooks.NewEventPublisherQueue(rt.events, publishers)
	go rt.eventQueue.Loop(queueCtx)

	if len(stepPublishers) > 0 {
		rt.stepEvents = make(chan model.StepEvent, stepEventBufferSize)
		rt.stepQueue = hooks.NewStepEventPublisherQueue(rt.stepEvents, stepPublishers, hooks.BatchConfig{
			FlushWindow:  rt.cfg.Hooks.BatchFlushWindow,
			MaxBatchSize: rt.cfg.Hooks.BatchMaxSize,
		})
		go rt.stepQueue.Loop(queueCtx)
	}
	return nil
}

// manager builds an upgrade manager with every built-in upgrade registered
func (rt *session) manager() *upgrade.Manager {
	opts := upgrade.Options{
		Store:             rt.store,
		Locker:            rt.locker,
		LockTTL:           rt.cfg.Lock.TTL,
		Heartbeats:        rt.heartbeats,
		HeartbeatInterval: rt.cfg.Hooks.HeartbeatInterval,
		Source:            rt.source,
		Events:            rt.events,
		StepEvents:        rt.stepEvents,
	}
	m := upgrade.NewManager(opts)
	builtin.RegisterAll(m, builtin.Deps{Store: rt.store, StoreType: rt.cfg.Store.Type})
	return m
}

// Close drains the event queues, then releases publishers, lock and store
func (rt *session) Close() error {
	if rt.events != nil {
		close(rt.events)
		rt.eventQueue.Wait()
	}
	if rt.stepEvents != nil {
		close(rt.stepEvents)
		rt.stepQueue.Wait()
	}

	var err error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		err = multierr.Append(err, rt.closers[i]())
	}
	return err
}
