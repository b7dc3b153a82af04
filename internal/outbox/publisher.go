package outbox

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bakate/avionics/internal/domain"
	"github.com/bakate/avionics/internal/repository"
	"github.com/bakate/avionics/pkg/logger"
)

// Consumer is a handler registered for one event type. The publisher
// invokes the registered consumer for an outbox row's eventType, per
// spec §4.H.
type Consumer func(ctx context.Context, msg *domain.OutboxMessage) error

// Config controls the publisher's poll cadence and retry behavior.
type Config struct {
	// PollInterval is the time between pickup batches (default 1s).
	PollInterval time.Duration
	// BatchSize is how many rows one pickup selects (default 100).
	BatchSize int
	// StaleAfter is how long a row may sit with processing_at set
	// before it is eligible for pickup again, recovering rows whose
	// dispatcher crashed mid-flight (default 5m).
	StaleAfter time.Duration
	// MaxRetries bounds how many times a row is retried before it
	// stops being selected, becoming a dead-letter (default 3).
	MaxRetries int
	// RetryDelays is the delay applied before redispatching a row,
	// indexed by retry_count (capped at the last entry), configurable via
	// OUTBOX_RETRY_DELAYS_MS so an operator can widen the schedule without
	// a redeploy (default 1s, 2s, 4s).
	RetryDelays []time.Duration
	// ShutdownGrace bounds how long Stop waits for in-flight
	// dispatches to drain (default 30s).
	ShutdownGrace time.Duration
	// Concurrency bounds how many messages are dispatched at once
	// within one batch (default 10).
	Concurrency int
}

// defaultRetryDelays is applied whenever Config.RetryDelays is left empty.
var defaultRetryDelays = []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

// DefaultConfig returns the publisher's default cadence, per spec §6's
// OUTBOX_* env vars.
func DefaultConfig() Config {
	return Config{
		PollInterval:  1 * time.Second,
		BatchSize:     100,
		StaleAfter:    5 * time.Minute,
		MaxRetries:    3,
		RetryDelays:   defaultRetryDelays,
		ShutdownGrace: 30 * time.Second,
		Concurrency:   10,
	}
}

// Publisher polls event_outbox and dispatches each row to its
// registered consumer, marking it published or failed. Adapted from the
// teacher's outbox_worker.go poll/dispatch shape, generalized from a
// single Kafka producer to an in-process consumer registry since no
// message broker is in scope here.
type Publisher struct {
	repo      repository.OutboxRepository
	consumers map[string]Consumer
	cfg       Config
	log       *zap.SugaredLogger

	stopCh      chan struct{}
	done        chan struct{}
	mu          sync.Mutex
	shuttingDown bool
	inFlight    sync.WaitGroup

	totalPublished int64
	totalFailed    int64
	lastPollAt     time.Time
}

func NewPublisher(repo repository.OutboxRepository, cfg Config) *Publisher {
	if cfg.PollInterval <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if len(cfg.RetryDelays) == 0 {
		cfg.RetryDelays = defaultRetryDelays
	}
	return &Publisher{
		repo:      repo,
		consumers: make(map[string]Consumer),
		cfg:       cfg,
		log:       logger.Get(),
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Register binds a consumer to an event type. Call before Run.
func (p *Publisher) Register(eventType string, c Consumer) {
	p.consumers[eventType] = c
}

// Run polls until ctx is cancelled or Stop is called, blocking the
// calling goroutine — callers typically invoke it via `go p.Run(ctx)`.
func (p *Publisher) Run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.mu.Lock()
			shuttingDown := p.shuttingDown
			p.mu.Unlock()
			if shuttingDown {
				continue
			}
			p.poll(ctx)
		}
	}
}

// Stop signals the poll loop to stop picking up new batches and waits
// up to ShutdownGrace for in-flight dispatches to finish.
func (p *Publisher) Stop() {
	p.mu.Lock()
	p.shuttingDown = true
	p.mu.Unlock()
	close(p.stopCh)

	drained := make(chan struct{})
	go func() {
		p.inFlight.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-time.After(p.cfg.ShutdownGrace):
		p.log.Errorw("outbox publisher shutdown grace period elapsed with dispatches still in flight")
	}
	<-p.done
}

func (p *Publisher) poll(ctx context.Context) {
	p.mu.Lock()
	p.lastPollAt = time.Now()
	p.mu.Unlock()

	msgs, err := p.repo.SelectForProcessing(ctx, p.cfg.BatchSize, p.cfg.StaleAfter, p.cfg.MaxRetries)
	if err != nil {
		p.log.Errorw("outbox pickup failed", "error", err)
		return
	}
	if len(msgs) == 0 {
		return
	}

	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup
	for _, msg := range msgs {
		msg := msg
		wg.Add(1)
		p.inFlight.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer p.inFlight.Done()
			defer func() { <-sem }()
			p.dispatch(ctx, msg)
		}()
	}
	wg.Wait()
}

func (p *Publisher) dispatch(ctx context.Context, msg *domain.OutboxMessage) {
	if msg.RetryCount > 0 {
		idx := msg.RetryCount - 1
		if idx >= len(p.cfg.RetryDelays) {
			idx = len(p.cfg.RetryDelays) - 1
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.RetryDelays[idx]):
		}
	}

	consumer, ok := p.consumers[msg.EventType]
	if !ok {
		p.log.Errorw("no consumer registered for event type", "eventType", msg.EventType, "id", msg.ID)
		_ = p.repo.MarkFailed(ctx, msg.ID, "no consumer registered for event type "+msg.EventType)
		return
	}

	if err := consumer(ctx, msg); err != nil {
		p.log.Errorw("outbox dispatch failed", "id", msg.ID, "eventType", msg.EventType, "retryCount", msg.RetryCount, "error", err)
		if markErr := p.repo.MarkFailed(ctx, msg.ID, err.Error()); markErr != nil {
			p.log.Errorw("failed to mark outbox row failed", "id", msg.ID, "error", markErr)
		}
		p.mu.Lock()
		p.totalFailed++
		p.mu.Unlock()
		return
	}

	if err := p.repo.MarkPublished(ctx, msg.ID); err != nil {
		p.log.Errorw("failed to mark outbox row published", "id", msg.ID, "error", err)
		return
	}
	p.mu.Lock()
	p.totalPublished++
	p.mu.Unlock()
}

// Stats reports the publisher's running counters, surfaced by the
// health handler for dead-letter visibility (spec §9 supplemented
// feature), the in-process analog of the teacher's OutboxWorker.GetStats.
type Stats struct {
	TotalPublished int64     `json:"totalPublished"`
	TotalFailed    int64     `json:"totalFailed"`
	LastPollAt     time.Time `json:"lastPollAt"`
}

func (p *Publisher) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		TotalPublished: p.totalPublished,
		TotalFailed:    p.totalFailed,
		LastPollAt:     p.lastPollAt,
	}
}
