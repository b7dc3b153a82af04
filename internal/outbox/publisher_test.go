package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bakate/avionics/internal/domain"
)

var errTransientDispatch = errors.New("transient dispatch failure")

// fakeOutboxRepo is an in-memory stand-in for repository.OutboxRepository,
// enough to exercise the publisher's pickup/mark-published/mark-failed
// protocol without a database.
type fakeOutboxRepo struct {
	mu   sync.Mutex
	rows map[string]*domain.OutboxMessage
}

func newFakeOutboxRepo(rows ...*domain.OutboxMessage) *fakeOutboxRepo {
	r := &fakeOutboxRepo{rows: make(map[string]*domain.OutboxMessage)}
	for _, m := range rows {
		r.rows[m.ID] = m
	}
	return r
}

func (r *fakeOutboxRepo) Insert(ctx context.Context, msg *domain.OutboxMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[msg.ID] = msg
	return nil
}

func (r *fakeOutboxRepo) SelectForProcessing(ctx context.Context, batch int, staleAfter time.Duration, maxRetries int) ([]*domain.OutboxMessage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.OutboxMessage
	for _, m := range r.rows {
		if m.PublishedAt != nil || m.RetryCount >= maxRetries {
			continue
		}
		if m.ProcessingAt != nil && time.Since(*m.ProcessingAt) < staleAfter {
			continue
		}
		now := time.Now()
		m.ProcessingAt = &now
		out = append(out, m)
		if len(out) >= batch {
			break
		}
	}
	return out, nil
}

func (r *fakeOutboxRepo) MarkPublished(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	r.rows[id].PublishedAt = &now
	return nil
}

func (r *fakeOutboxRepo) MarkFailed(ctx context.Context, id string, errMsg string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m := r.rows[id]
	m.ProcessingAt = nil
	m.RetryCount++
	m.LastError = errMsg
	return nil
}

func newMsg(id, eventType string) *domain.OutboxMessage {
	return &domain.OutboxMessage{ID: id, EventType: eventType, AggregateId: "agg-1", CreatedAt: time.Now()}
}

func TestPublisher_DispatchesToRegisteredConsumer(t *testing.T) {
	repo := newFakeOutboxRepo(newMsg("m1", "SeatsHeld"))
	p := NewPublisher(repo, Config{PollInterval: 10 * time.Millisecond, BatchSize: 10, StaleAfter: time.Second, MaxRetries: 3, ShutdownGrace: time.Second, Concurrency: 4})

	var gotEventType string
	var mu sync.Mutex
	p.Register("SeatsHeld", func(ctx context.Context, msg *domain.OutboxMessage) error {
		mu.Lock()
		gotEventType = msg.EventType
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go p.Run(ctx)
	time.Sleep(50 * time.Millisecond)
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "SeatsHeld", gotEventType)
	require.NotNil(t, repo.rows["m1"].PublishedAt)
}

func TestPublisher_NoConsumerMarksFailed(t *testing.T) {
	repo := newFakeOutboxRepo(newMsg("m1", "Unknown"))
	p := NewPublisher(repo, Config{PollInterval: 10 * time.Millisecond, BatchSize: 10, StaleAfter: time.Second, MaxRetries: 3, ShutdownGrace: time.Second, Concurrency: 4})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	go p.Run(ctx)
	time.Sleep(50 * time.Millisecond)
	p.Stop()

	assert.Equal(t, 1, repo.rows["m1"].RetryCount)
	assert.Nil(t, repo.rows["m1"].PublishedAt)
}

func TestPublisher_ConsumerErrorMarksFailedAndRetries(t *testing.T) {
	repo := newFakeOutboxRepo(newMsg("m1", "BookingCreated"))
	p := NewPublisher(repo, Config{PollInterval: 5 * time.Millisecond, BatchSize: 10, StaleAfter: 10 * time.Millisecond, MaxRetries: 3, RetryDelays: []time.Duration{time.Millisecond}, ShutdownGrace: time.Second, Concurrency: 4})

	var attempts int
	var mu sync.Mutex
	p.Register("BookingCreated", func(ctx context.Context, msg *domain.OutboxMessage) error {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n < 2 {
			return errTransientDispatch
		}
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	go p.Run(ctx)
	time.Sleep(250 * time.Millisecond)
	p.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, attempts, 2)
	require.NotNil(t, repo.rows["m1"].PublishedAt)
}
