package service

import (
	"context"
	"fmt"

	"github.com/bakate/avionics/internal/domain"
	"github.com/bakate/avionics/internal/repository"
)

// maxCasRetries is the number of optimistic-locking retries a seat
// hold/release attempts before giving up, per spec §4.F. Each retry
// reloads the aggregate and replays the mutation immediately, with no
// backoff: the contention window on a single flight row is short enough
// that sleeping between attempts would only add latency.
const maxCasRetries = 3

// InventoryService is the use-case facade over the FlightInventory
// aggregate: it loads, mutates, and CAS-saves within one retry loop so
// callers never see an OptimisticLocking error directly.
type InventoryService struct {
	uow  repository.UnitOfWorker
	repo repository.InventoryRepository
}

func NewInventoryService(uow repository.UnitOfWorker, repo repository.InventoryRepository) *InventoryService {
	return &InventoryService{uow: uow, repo: repo}
}

// HoldSeats decrements availability for cabin by n, retrying up to
// maxCasRetries times on a lost optimistic-lock race. Any other error
// (FlightNotFound, FlightFull, ...) is returned immediately and is not
// retried, per spec §4.F.
func (s *InventoryService) HoldSeats(ctx context.Context, flightID domain.FlightId, cabin domain.CabinClass, n int) (domain.Money, []domain.Event, error) {
	var (
		price  domain.Money
		events []domain.Event
	)

	for attempt := 0; attempt <= maxCasRetries; attempt++ {
		err := s.uow.Do(ctx, func(ctx context.Context) error {
			inv, err := s.repo.FindById(ctx, flightID)
			if err != nil {
				return err
			}
			next, unitPrice, evts, err := inv.HoldSeats(cabin, n)
			if err != nil {
				return err
			}
			if _, err := s.repo.Save(ctx, next, evts); err != nil {
				return err
			}
			price, events = unitPrice, evts
			return nil
		})
		if err == nil {
			return price, events, nil
		}
		if !isOptimisticLocking(err) {
			return domain.Money{}, nil, err
		}
	}
	return domain.Money{}, nil, fmt.Errorf("hold seats: exhausted %d retries on optimistic locking conflict", maxCasRetries)
}

// ReleaseSeats increments availability for cabin by n, with the same
// bounded no-delay CAS retry as HoldSeats.
func (s *InventoryService) ReleaseSeats(ctx context.Context, flightID domain.FlightId, cabin domain.CabinClass, n int) ([]domain.Event, error) {
	var events []domain.Event

	for attempt := 0; attempt <= maxCasRetries; attempt++ {
		err := s.uow.Do(ctx, func(ctx context.Context) error {
			inv, err := s.repo.FindById(ctx, flightID)
			if err != nil {
				return err
			}
			next, evts, err := inv.ReleaseSeats(cabin, n)
			if err != nil {
				return err
			}
			if _, err := s.repo.Save(ctx, next, evts); err != nil {
				return err
			}
			events = evts
			return nil
		})
		if err == nil {
			return events, nil
		}
		if !isOptimisticLocking(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("release seats: exhausted %d retries on optimistic locking conflict", maxCasRetries)
}

// GetAvailability is a read-only lookup, no retry needed.
func (s *InventoryService) GetAvailability(ctx context.Context, flightID domain.FlightId) (*domain.FlightInventory, error) {
	return s.repo.FindById(ctx, flightID)
}

func isOptimisticLocking(err error) bool {
	_, ok := err.(*domain.OptimisticLockingError)
	return ok
}
