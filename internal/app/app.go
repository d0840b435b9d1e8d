package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/phrazzld/vendorflow/internal/activity"
	"github.com/phrazzld/vendorflow/internal/capability"
	"github.com/phrazzld/vendorflow/internal/config"
	"github.com/phrazzld/vendorflow/internal/domain"
	"github.com/phrazzld/vendorflow/internal/events"
	"github.com/phrazzld/vendorflow/internal/platform/gemini"
	"github.com/phrazzld/vendorflow/internal/platform/kafkasink"
	"github.com/phrazzld/vendorflow/internal/platform/notify"
	"github.com/phrazzld/vendorflow/internal/platform/redislock"
	"github.com/phrazzld/vendorflow/internal/service"
	"github.com/phrazzld/vendorflow/internal/service/auth"
	"github.com/phrazzld/vendorflow/internal/store"
	"github.com/phrazzld/vendorflow/internal/task"
)

// Application holds the wired components and the resources to release on Close.
type Application struct {
	Config     *config.Config
	Logger     *slog.Logger
	Store      store.DocumentStore
	Emitter    *events.InMemoryEventEmitter
	Queue      *task.Queue
	Activities *activity.Logger
	Registry   *task.Registry
	Dispatcher *task.Dispatcher
	Reaper     *task.Reaper
	Vendors    service.VendorService
	JWT        auth.JWTService

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

type options struct {
	store    store.DocumentStore
	ai       capability.AI
	notifier capability.Notifier
	locker   task.VendorLocker
}

// Option overrides a component New would otherwise build from config.
type Option func(*options)

// WithStore uses s instead of opening the configured store driver.
func WithStore(s store.DocumentStore) Option {
	return func(o *options) { o.store = s }
}

// WithAI uses ai instead of the Gemini adapter.
func WithAI(ai capability.AI) Option {
	return func(o *options) { o.ai = ai }
}

// WithNotifier uses n instead of the configured notify driver.
func WithNotifier(n capability.Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithLocker uses l instead of the Redis or in-process locker.
func WithLocker(l task.VendorLocker) Option {
	return func(o *options) { o.locker = l }
}

// New builds an Application from cfg. On error every resource opened so far
// is released.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: config cannot be nil", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := &Application{Config: cfg, Logger: logger}
	fail := func(err error) (*Application, error) {
		app.Close()
		return nil, err
	}

	if o.store != nil {
		app.Store = o.store
	} else {
		s, closeFn, err := OpenStore(ctx, cfg.Store, logger)
		if err != nil {
			return fail(err)
		}
		app.Store = s
		app.addCloser("store", closeFn)
	}

	app.Emitter = events.NewInMemoryEventEmitter(logger)
	if len(cfg.Kafka.Brokers) > 0 {
		pub := kafkasink.NewPublisher(kafkasink.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), cfg.Kafka.Topic, logger)
		app.Emitter.RegisterHandler(pub, events.TypeActivityAppended, events.TypeReviewRequested)
		app.addCloser("kafka publisher", pub.Close)
		logger.Info("activity mirroring enabled", "topic", cfg.Kafka.Topic, "brokers", len(cfg.Kafka.Brokers))
	}

	app.Queue = task.NewQueue(app.Store, logger)
	app.Activities = activity.NewLogger(app.Store, app.Emitter, logger)

	var err error
	ai := o.ai
	if ai == nil {
		ai, err = gemini.NewClient(ctx, cfg.LLM, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize AI adapter: %w", err))
		}
	}
	notifier := o.notifier
	if notifier == nil {
		notifier, err = notify.New(ctx, cfg.Notify, logger)
		if err != nil {
			return fail(fmt.Errorf("failed to initialize notifier: %w", err))
		}
	}

	app.Registry = NewRegistry(ai, notifier, cfg.Dispatcher.RequireHumanReview)

	locker := o.locker
	if locker == nil && cfg.Redis.URL != "" {
		rdb, err := redislock.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return fail(err)
		}
		app.addCloser("redis", rdb.Close)
		locker = redislock.NewLocker(rdb)
		logger.Info("distributed vendor leases enabled")
	}

	dcfg := task.NewDispatcherConfig(cfg.Dispatcher)
	if dcfg.WorkerID == "" {
		dcfg.WorkerID = defaultWorkerID()
	}
	dopts := []task.DispatcherOption{task.WithEmitter(app.Emitter)}
	if locker != nil {
		dopts = append(dopts, task.WithLocker(locker))
	}
	app.Dispatcher = task.NewDispatcher(app.Store, app.Queue, app.Activities, app.Registry, dcfg, logger, dopts...)
	app.Reaper = task.NewReaper(app.Queue, dcfg.Retry, cfg.Dispatcher.StuckTaskAge, logger)

	app.Vendors, err = service.NewVendorService(app.Store, app.Queue, app.Activities, logger)
	if err != nil {
		return fail(fmt.Errorf("failed to create vendor service: %w", err))
	}

	app.JWT, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return fail(fmt.Errorf("failed to initialize JWT service: %w", err))
	}

	logger.Info("application initialized",
		"store_driver", cfg.Store.Driver,
		"notify_driver", cfg.Notify.Driver,
		"worker_id", dcfg.WorkerID,
		"worker_count", dcfg.WorkerCount)
	return app, nil
}

// NewRegistry binds the four task types to their handlers. Document
// verification is also bound explicitly for the "document" subtype.
func NewRegistry(ai capability.AI, notifier capability.Notifier, requireReview bool) *task.Registry {
	r := task.NewRegistry()
	verify := task.NewVerifyHandler(ai, requireReview)
	r.Register(domain.TaskTypeGenerate, "", task.NewGenerateHandler(ai))
	r.Register(domain.TaskTypeSend, "", task.NewSendHandler(notifier))
	r.Register(domain.TaskTypeVerify, "", verify)
	r.Register(domain.TaskTypeVerify, service.SubtypeDocument, verify)
	r.Register(domain.TaskTypeChat, "", task.NewChatHandler(ai))
	return r
}

func (a *Application) addCloser(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Close stops background work and releases resources in reverse order of
// acquisition. It is safe to call more than once.
func (a *Application) Close() {
	if a == nil {
		return
	}
	if a.Dispatcher != nil {
		a.Dispatcher.Stop()
	}
	if a.Reaper != nil {
		a.Reaper.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Error("failed to release resource", "resource", c.name, "error", err)
		}
	}
	a.closers = nil
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "worker"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}
