package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mealbridge/mealbridge/internal/repository"
)

type statusUpdate struct {
	id          uuid.UUID
	status      repository.TaskStatus
	attempts    int
	lastError   *string
	completedAt *time.Time
}

type fakeTaskSource struct {
	mu      sync.Mutex
	tasks   []*repository.OutboxTask
	err     error
	updates []statusUpdate
}

func (f *fakeTaskSource) GetProcessableTasks(_ context.Context, _, _ int) ([]*repository.OutboxTask, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks, f.err
}

func (f *fakeTaskSource) UpdateTaskStatus(_ context.Context, id uuid.UUID, status repository.TaskStatus, attempts int, lastError *string, completedAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, statusUpdate{id, status, attempts, lastError, completedAt})
	return nil
}

type fakeProducer struct {
	mu     sync.Mutex
	sent   []string
	err    error
	closed bool
}

func (f *fakeProducer) SendMessage(_ context.Context, topic string, _, _ []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, topic)
	return f.err
}

func (f *fakeProducer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func testConfig() PublisherConfig {
	return PublisherConfig{PollInterval: time.Millisecond, BatchSize: 10, MaxAttempts: 3}
}

func TestProcessBatchDelivers(t *testing.T) {
	task := &repository.OutboxTask{
		ID:      uuid.New(),
		Status:  repository.TaskStatusCreated,
		Payload: []byte(`{"listing_id":"listing-1"}`),
		Topic:   "listing_events",
	}
	source := &fakeTaskSource{tasks: []*repository.OutboxTask{task}}
	producer := &fakeProducer{}

	p := NewPublisher(source, producer, testConfig(), zap.NewNop())
	require.NoError(t, p.processBatch(context.Background()))

	assert.Equal(t, []string{"listing_events"}, producer.sent)
	require.Len(t, source.updates, 1)
	assert.Equal(t, task.ID, source.updates[0].id)
	assert.Equal(t, repository.TaskStatusDone, source.updates[0].status)
	assert.NotNil(t, source.updates[0].completedAt)
	assert.Nil(t, source.updates[0].lastError)
}

func TestProcessBatchRecordsFailure(t *testing.T) {
	task := &repository.OutboxTask{
		ID:       uuid.New(),
		Status:   repository.TaskStatusCreated,
		Payload:  []byte(`{}`),
		Topic:    "claim_events",
		Attempts: 1,
	}
	source := &fakeTaskSource{tasks: []*repository.OutboxTask{task}}
	producer := &fakeProducer{err: errors.New("broker unreachable")}

	p := NewPublisher(source, producer, testConfig(), zap.NewNop())
	require.NoError(t, p.processBatch(context.Background()))

	require.Len(t, source.updates, 1)
	assert.Equal(t, repository.TaskStatusFailed, source.updates[0].status)
	assert.Equal(t, 2, source.updates[0].attempts)
	require.NotNil(t, source.updates[0].lastError)
	assert.Equal(t, "broker unreachable", *source.updates[0].lastError)
	assert.Nil(t, source.updates[0].completedAt)
}

func TestProcessBatchPropagatesSourceError(t *testing.T) {
	source := &fakeTaskSource{err: errors.New("database down")}

	p := NewPublisher(source, &fakeProducer{}, testConfig(), zap.NewNop())
	assert.ErrorContains(t, p.processBatch(context.Background()), "database down")
}

func TestShutdownClosesProducer(t *testing.T) {
	source := &fakeTaskSource{}
	producer := &fakeProducer{}

	p := NewPublisher(source, producer, testConfig(), zap.NewNop())

	done := make(chan struct{})
	go func() {
		p.Run(context.Background())
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	p.Shutdown()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publisher did not stop")
	}
	assert.True(t, producer.closed)
}
