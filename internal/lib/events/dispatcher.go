package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gary322/twist-sub006/internal/lib/decay"
	"github.com/gary322/twist-sub006/internal/lib/misc"
)

type Config struct {
	QueueSize int           `yaml:"queue_size"`
	Workers   int           `yaml:"workers"`
	MaxTries  int           `yaml:"max_tries"`
	BaseDelay time.Duration `yaml:"base_delay"`
	MaxDelay  time.Duration `yaml:"max_delay"`
	// DedupeSize bounds how many delivered event ids are remembered.
	DedupeSize int `yaml:"dedupe_size"`
}

func DefaultConfig() Config {
	return Config{
		QueueSize:  1024,
		Workers:    4,
		MaxTries:   5,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		DedupeSize: 10_000,
	}
}

// Dispatcher queues events and hands them to every handler from a small worker pool.  Notify never blocks - if the
// queue is full the event is dropped and logged.
type Dispatcher struct {
	logger   *slog.Logger
	cfg      Config
	handlers []Handler
	queue    chan Event

	delivered *lru.Cache[string, struct{}]
	startOnce sync.Once
}

func NewDispatcher(logger *slog.Logger, cfg Config, handlers ...Handler) (*Dispatcher, error) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.DedupeSize <= 0 {
		cfg.DedupeSize = DefaultConfig().DedupeSize
	}
	delivered, err := lru.New[string, struct{}](cfg.DedupeSize)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		logger:    logger,
		cfg:       cfg,
		handlers:  handlers,
		queue:     make(chan Event, cfg.QueueSize),
		delivered: delivered,
	}, nil
}

// Notify enqueues ev for delivery.
func (d *Dispatcher) Notify(ev Event) {
	select {
	case d.queue <- ev:
		promQueued.Inc()
	default:
		promDropped.Inc()
		misc.Warnf(d.logger, "event queue full, dropping %s event:%s pool:%s", ev.Kind, ev.ID, ev.PoolID)
	}
}

// DecayApplied adapts decay runs into events.
func (d *Dispatcher) DecayApplied(app decay.Application) {
	ev := New(KindDecayApplied, "", app.AppliedAt)
	ev.Amount = app.DecayAmount
	d.Notify(ev)
}

// Pending is the number of queued, undelivered events.
func (d *Dispatcher) Pending() int {
	return len(d.queue)
}

// Start launches the delivery workers.  They exit when ctx is done.
func (d *Dispatcher) Start(ctx context.Context, wg *sync.WaitGroup) {
	d.startOnce.Do(func() {
		for i := 0; i < d.cfg.Workers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				d.worker(ctx)
			}()
		}
	})
}

// Flush delivers everything currently queued on the calling goroutine.  Used by short-lived processes that never
// Start workers.
func (d *Dispatcher) Flush(ctx context.Context) {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		}
	}
}

// deliver hands ev to every handler unless its id was already delivered or is being delivered by another worker.
// The id is claimed up front and released again if any handler gives up, so a later replay is retried.
func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	if seen, _ := d.delivered.ContainsOrAdd(ev.ID, struct{}{}); seen {
		promDuplicates.Inc()
		misc.Debugf(d.logger, "skipping already delivered event:%s", ev.ID)
		return
	}
	ok := true
	for _, h := range d.handlers {
		err := misc.Retry(ctx, d.logger, "event delivery", misc.RetryPolicy{
			MaxTries:  d.cfg.MaxTries,
			BaseDelay: d.cfg.BaseDelay,
			MaxDelay:  d.cfg.MaxDelay,
		}, func() error {
			return h.Handle(ctx, ev)
		})
		if err != nil {
			ok = false
			promFailed.Inc()
			misc.Errorf(d.logger, "giving up on %s event:%s pool:%s, err:%v", ev.Kind, ev.ID, ev.PoolID, err)
		}
	}
	if !ok {
		d.delivered.Remove(ev.ID)
		return
	}
	promDelivered.Inc()
}

// LogHandler logs every event.
func LogHandler(logger *slog.Logger) Handler {
	return HandlerFunc(func(_ context.Context, ev Event) error {
		logger.Info("event", "kind", ev.Kind, "id", ev.ID, "pool", ev.PoolID, "staker", ev.Staker,
			"amount", ev.Amount, "oldTier", ev.OldTier.String(), "newTier", ev.NewTier.String())
		return nil
	})
}
