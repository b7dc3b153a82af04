// Package reaper implements the background expiration sweep described in
// spec §4.I: periodically find Held bookings whose hold has lapsed, mark
// them Expired, and release their seats back to inventory.
package reaper

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bakate/avionics/internal/domain"
	"github.com/bakate/avionics/internal/repository"
	"github.com/bakate/avionics/internal/service"
	"github.com/bakate/avionics/pkg/logger"
)

// Config controls scan cadence and batch size, per spec §4.I
// (REAP_INTERVAL_S, REAP_BATCH).
type Config struct {
	ScanInterval time.Duration
	BatchSize    int
}

func DefaultConfig() Config {
	return Config{ScanInterval: 5 * time.Second, BatchSize: 100}
}

// Reaper scans for Held bookings past expiresAt and expires them,
// adapted from the teacher's expiry worker but driven off the Postgres
// bookings table instead of a Redis TTL, since this domain keeps the
// expiry deadline on the aggregate itself (spec §4.C).
type Reaper struct {
	uow       repository.UnitOfWorker
	bookings  repository.BookingRepository
	inventory *service.InventoryService
	cfg       Config
	log       *zap.SugaredLogger

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	totalExpired  int64
	totalReleased int64
	lastScanAt    time.Time
	lastBatch     int
}

func New(uow repository.UnitOfWorker, bookings repository.BookingRepository, inventory *service.InventoryService, cfg Config) *Reaper {
	if cfg.ScanInterval <= 0 {
		cfg = DefaultConfig()
	}
	return &Reaper{
		uow:       uow,
		bookings:  bookings,
		inventory: inventory,
		cfg:       cfg,
		log:       logger.Get(),
		stopCh:    make(chan struct{}),
	}
}

// Run starts the scan loop and blocks until ctx is cancelled or Stop is
// called. Runs one pass immediately on entry.
func (r *Reaper) Run(ctx context.Context) {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return
	}
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	defer r.wg.Done()

	r.log.Infow("starting expiration reaper", "scanInterval", r.cfg.ScanInterval, "batchSize", r.cfg.BatchSize)

	r.scan(ctx)

	ticker := time.NewTicker(r.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			r.scan(ctx)
		}
	}
}

// Stop signals the scan loop to exit and waits for it.
func (r *Reaper) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	close(r.stopCh)
	r.wg.Wait()
	r.log.Infow("expiration reaper stopped")
}

func (r *Reaper) scan(ctx context.Context) {
	r.mu.Lock()
	r.lastScanAt = time.Now()
	r.mu.Unlock()

	expired, err := r.bookings.FindExpired(ctx, time.Now(), r.cfg.BatchSize)
	if err != nil {
		r.log.Errorw("reaper: find expired bookings", "error", err)
		return
	}
	if len(expired) == 0 {
		return
	}

	r.mu.Lock()
	r.lastBatch = len(expired)
	r.mu.Unlock()

	for _, b := range expired {
		if err := r.expireOne(ctx, b); err != nil {
			r.log.Errorw("reaper: expire booking", "bookingId", b.ID, "error", err)
			continue
		}
		r.mu.Lock()
		r.totalExpired++
		r.mu.Unlock()
	}
}

// expireOne marks a single booking Expired and releases every one of its
// segments' held seats, mirroring CancelBooking's two-phase shape: the
// status transition commits in its own unit of work before seats are
// released, so a release failure never leaves the booking stuck Held.
func (r *Reaper) expireOne(ctx context.Context, b *domain.Booking) error {
	now := time.Now()
	var expired *domain.Booking

	err := r.uow.Do(ctx, func(ctx context.Context) error {
		current, err := r.bookings.FindById(ctx, b.ID)
		if err != nil {
			return err
		}
		if current.Status != domain.BookingHeld {
			expired = current
			return nil
		}
		next, events, err := current.MarkExpired(now)
		if err != nil {
			return err
		}
		saved, err := r.bookings.Save(ctx, next, events)
		if err != nil {
			return err
		}
		expired = saved
		return nil
	})
	if err != nil {
		return err
	}
	if expired.Status != domain.BookingExpiredStatus {
		return nil
	}

	for _, seg := range expired.Segments {
		if _, err := r.inventory.ReleaseSeats(ctx, seg.FlightId, seg.Cabin, 1); err != nil {
			return fmt.Errorf("release segment %s: %w", seg.ID, err)
		}
		r.mu.Lock()
		r.totalReleased++
		r.mu.Unlock()
	}
	return nil
}

// Stats reports the reaper's running counters, surfaced by the health
// handler for operational visibility.
type Stats struct {
	Running       bool      `json:"running"`
	TotalExpired  int64     `json:"totalExpired"`
	TotalReleased int64     `json:"totalReleased"`
	LastScanAt    time.Time `json:"lastScanAt"`
	LastBatch     int       `json:"lastBatch"`
}

func (r *Reaper) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Running:       r.running,
		TotalExpired:  r.totalExpired,
		TotalReleased: r.totalReleased,
		LastScanAt:    r.lastScanAt,
		LastBatch:     r.lastBatch,
	}
}
