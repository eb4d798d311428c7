package agent

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/mwantia/fabric/pkg/container"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm/logger"

	"github.com/mwantia/filecheck/internal/analysis"
	config "github.com/mwantia/filecheck/internal/config/server"
	"github.com/mwantia/filecheck/internal/ingest"
	"github.com/mwantia/filecheck/pkg/blob"
	"github.com/mwantia/filecheck/pkg/bus"
	"github.com/mwantia/filecheck/pkg/db/store"
	"github.com/mwantia/filecheck/pkg/events"
	"github.com/mwantia/filecheck/pkg/log"
)

// FileCheckAgent composes the pipeline: metadata store, blob store, event bus,
// ingestion service and the analysis consumers.
type FileCheckAgent struct {
	mutex sync.RWMutex
	wait  sync.WaitGroup

	cfg *config.BaseServerConfig
	sc  *container.ServiceContainer
	log log.LoggerService

	store  *store.SQLiteStore
	blobs  *blob.Store
	bus    bus.Bus
	router *events.Router

	Ingest       *ingest.Service
	Detector     *analysis.Detector
	Orchestrator *analysis.Orchestrator
	Results      *analysis.Results
}

func NewAgent(cfg *config.BaseServerConfig) *FileCheckAgent {
	return NewAgentWithLogger(cfg, log.NewLoggerService("filecheck", cfg.Log))
}

func NewAgentWithLogger(cfg *config.BaseServerConfig, logger log.LoggerService) *FileCheckAgent {
	return &FileCheckAgent{
		cfg: cfg,
		sc:  container.NewServiceContainer(),
		log: logger,
	}
}

// Setup opens the stores, builds every service and registers the analysis
// consumers with the bus. It must be called once before Run.
func (a *FileCheckAgent) Setup(ctx context.Context) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.store != nil {
		return fmt.Errorf("agent is already set up")
	}

	if err := a.setupStores(ctx); err != nil {
		return err
	}
	if err := a.setupBus(); err != nil {
		return err
	}
	if err := a.setupServices(); err != nil {
		return err
	}
	if err := a.injectLoggers(ctx); err != nil {
		return err
	}

	a.router = events.NewRouter(a.log.Named("router"))
	a.Orchestrator.Register(a.router, a.cfg.Bus.Topics.Uploaded)

	if err := a.router.Subscribe(a.bus, a.cfg.Bus.Group); err != nil {
		return fmt.Errorf("failed to subscribe analysis consumers: %w", err)
	}
	return nil
}

func (a *FileCheckAgent) setupStores(ctx context.Context) error {
	level := logger.Silent
	if a.cfg.Metadata.SQLite.Debug {
		level = logger.Info
	}

	a.log.Debug("Opening metadata store '%s'...", a.cfg.Metadata.SQLite.Path)
	st, err := store.NewSQLiteStore(store.SQLiteConfig{
		Path:     a.cfg.Metadata.SQLite.Path,
		LogLevel: level,
	})
	if err != nil {
		return err
	}
	if err := st.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect metadata store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return fmt.Errorf("failed to migrate metadata store: %w", err)
	}
	a.store = st

	a.log.Debug("Opening blob store '%s'...", a.cfg.Blob.Root)
	blobs, err := blob.NewOsStore(a.cfg.Blob.Root)
	if err != nil {
		return err
	}
	a.blobs = blobs

	return nil
}

func (a *FileCheckAgent) setupBus() error {
	backoff, err := time.ParseDuration(a.cfg.Bus.RetryBackoff)
	if err != nil {
		return fmt.Errorf("invalid retry backoff: %w", err)
	}
	timeout, err := time.ParseDuration(a.cfg.Analysis.Timeout)
	if err != nil {
		return fmt.Errorf("invalid analysis timeout: %w", err)
	}

	opts := bus.Options{
		Partitions:      a.cfg.Bus.Partitions,
		MaxAttempts:     a.cfg.Bus.MaxAttempts,
		RetryBackoff:    backoff,
		Timeout:         timeout,
		DeadLetterTopic: a.cfg.Bus.Topics.DeadLetter,
		Logger:          a.log.Named("bus"),
	}

	switch a.cfg.Bus.Type {
	case "memory":
		a.log.Debug("Using in-memory bus with %d partitions", opts.Partitions)
		a.bus, err = bus.NewMemoryBus(opts)
	case "redis":
		block, perr := time.ParseDuration(a.cfg.Bus.Redis.Block)
		if perr != nil {
			return fmt.Errorf("invalid redis block: %w", perr)
		}

		a.log.Debug("Using redis bus at '%s' with %d partitions", a.cfg.Bus.Redis.Address, opts.Partitions)
		client := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Bus.Redis.Address,
			Password: a.cfg.Bus.Redis.Password,
			DB:       a.cfg.Bus.Redis.DB,
		})
		a.bus, err = bus.NewRedisBus(client, bus.RedisOptions{
			Options: opts,
			Prefix:  a.cfg.Bus.Redis.Prefix,
			Block:   block,
		})
	default:
		return fmt.Errorf("unsupported bus type '%s'", a.cfg.Bus.Type)
	}

	if err != nil {
		return fmt.Errorf("failed to create bus: %w", err)
	}
	return nil
}

func (a *FileCheckAgent) setupServices() error {
	topics := events.Topics{
		Uploaded:   a.cfg.Bus.Topics.Uploaded,
		Stats:      a.cfg.Bus.Topics.Stats,
		Duplicates: a.cfg.Bus.Topics.Duplicates,
	}

	publisher := events.NewPublisher(a.bus, "filecheck/analysis", topics)

	detector, err := analysis.NewDetector(a.store, publisher, a.cfg.Analysis.DigestAlgorithm, a.log)
	if err != nil {
		return err
	}

	a.Detector = detector
	a.Orchestrator = analysis.NewOrchestrator(a.store, a.blobs, detector, publisher, a.log)
	a.Results = analysis.NewResults(a.store)
	a.Ingest = ingest.NewService(a.store, a.blobs,
		events.NewPublisher(a.bus, "filecheck/ingest", topics),
		ingest.NewLimiter(a.cfg.Ingest.RateLimit, a.cfg.Ingest.Burst), a.log)

	errs := container.Errors{}

	a.log.Debug("Registering 'LoggerService'...")
	errs.Add(container.Register[log.LoggerServiceImpl](a.sc,
		container.With[log.LoggerService](),
		container.WithInstance(a.log)))

	a.log.Debug("Registering 'MetadataStore'...")
	errs.Add(container.Register[store.SQLiteStore](a.sc,
		container.With[store.MetadataStore](),
		container.WithInstance(a.store)))

	a.log.Debug("Registering 'BlobStore'...")
	errs.Add(container.Register[blob.Store](a.sc,
		container.With[ingest.BlobStore](),
		container.WithInstance(a.blobs)))

	a.log.Debug("Registering 'Bus'...")
	switch b := a.bus.(type) {
	case *bus.MemoryBus:
		errs.Add(container.Register[bus.MemoryBus](a.sc,
			container.With[bus.Bus](),
			container.WithInstance(b)))
	case *bus.RedisBus:
		errs.Add(container.Register[bus.RedisBus](a.sc,
			container.With[bus.Bus](),
			container.WithInstance(b)))
	}

	a.log.Debug("Registering 'EventPublisher'...")
	errs.Add(container.Register[events.Publisher](a.sc,
		container.With[analysis.EventPublisher](),
		container.WithInstance(publisher)))

	return errs.Errors()
}

// injectLoggers replaces each component's base logger with its named child.
func (a *FileCheckAgent) injectLoggers(ctx context.Context) error {
	processor := log.NewLoggerTagProcessor()

	for _, target := range []any{a.Detector, a.Orchestrator, a.Ingest} {
		if err := processor.Inject(ctx, a.sc, target); err != nil {
			return fmt.Errorf("failed to inject logger into %T: %w", target, err)
		}
	}
	return nil
}

// Run consumes the bus until ctx is done.
func (a *FileCheckAgent) Run(ctx context.Context) error {
	a.mutex.RLock()
	b := a.bus
	a.mutex.RUnlock()

	if b == nil {
		return fmt.Errorf("agent is not set up")
	}

	a.wait.Add(1)
	defer a.wait.Done()

	a.log.Info("Consuming '%s' as group '%s'", a.cfg.Bus.Topics.Uploaded, a.cfg.Bus.Group)
	return b.Run(ctx)
}

// Pending returns the number of uploaded events the analysis group has not
// acknowledged. The redis bus counts entries delivered to a consumer but not
// yet acknowledged; the memory bus counts every unacknowledged message of
// this process.
func (a *FileCheckAgent) Pending(ctx context.Context) (int64, error) {
	a.mutex.RLock()
	defer a.mutex.RUnlock()

	topic, group := a.cfg.Bus.Topics.Uploaded, a.cfg.Bus.Group
	switch b := a.bus.(type) {
	case *bus.RedisBus:
		return b.Pending(ctx, topic, group)
	case *bus.MemoryBus:
		return int64(b.Lag(topic, group)), nil
	case nil:
		return 0, fmt.Errorf("agent is not set up")
	}
	return 0, fmt.Errorf("bus %T does not track pending messages", a.bus)
}

// Serve sets the agent up and runs it until interrupted.
func (a *FileCheckAgent) Serve(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	if err := a.Setup(ctx); err != nil {
		a.Cleanup(context.Background())
		return err
	}

	runErr := make(chan error, 1)
	go func() {
		runErr <- a.Run(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-runErr:
		if err != nil {
			a.log.Error("Bus stopped: %v", err)
		}
		cancel()
	}

	timeout, err := time.ParseDuration(a.cfg.ShutdownTimeout)
	if err != nil {
		// Set default of 10 seconds if error
		timeout = 10 * time.Second
	}

	shutdown, cancelShutdown := context.WithTimeout(context.Background(), timeout)
	defer cancelShutdown()

	return a.Cleanup(shutdown)
}

// Cleanup waits for running consumers, then releases the container, the bus
// and the metadata store.
func (a *FileCheckAgent) Cleanup(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wait.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("Consumers did not stop before the shutdown timeout")
	}

	a.mutex.Lock()
	defer a.mutex.Unlock()

	errs := container.Errors{}
	if err := a.sc.Cleanup(ctx); err != nil {
		errs.Add(fmt.Errorf("failed to complete service container cleanup: %w", err))
	}
	if a.bus != nil {
		errs.Add(a.bus.Close())
		a.bus = nil
	}
	if a.store != nil {
		errs.Add(a.store.Close())
		a.store = nil
	}
	return errs.Errors()
}
