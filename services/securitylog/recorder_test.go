package securitylog

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/tutoring-platform/backend/models"
	"github.com/upb/tutoring-platform/backend/services"
	"go.uber.org/zap"
)

func newTestRecorder(t *testing.T, cfg RecorderConfig) (*Recorder, *MockSecurityLogRepository) {
	repo := new(MockSecurityLogRepository)
	svc := NewService(repo, "", zap.NewNop())
	return NewRecorder(svc, zap.NewNop(), cfg), repo
}

func TestRecorder_StartStop(t *testing.T) {
	recorder, _ := newTestRecorder(t, RecorderConfig{BufferSize: 10, WorkerCount: 2})

	require.NoError(t, recorder.Start())

	stats := recorder.Stats()
	assert.True(t, stats.Started)
	assert.Equal(t, 2, stats.WorkerCount)
	assert.Equal(t, 10, stats.BufferSize)

	// Cannot start again
	assert.Error(t, recorder.Start())

	require.NoError(t, recorder.Stop(time.Second))
	assert.False(t, recorder.Stats().Started)

	// Cannot stop or restart once stopped
	assert.Error(t, recorder.Stop(time.Second))
	assert.Error(t, recorder.Start())
}

func TestRecorder_DefaultsApplied(t *testing.T) {
	recorder, _ := newTestRecorder(t, RecorderConfig{})
	stats := recorder.Stats()
	assert.Equal(t, DefaultRecorderConfig().BufferSize, stats.BufferSize)
	assert.Equal(t, DefaultRecorderConfig().WorkerCount, stats.WorkerCount)
}

func TestRecorder_RecordPersists(t *testing.T) {
	recorder, repo := newTestRecorder(t, RecorderConfig{BufferSize: 10, WorkerCount: 2})
	expectInsert(repo)
	require.NoError(t, recorder.Start())

	require.NoError(t, recorder.SignIn("u1", "ada@example.com", "203.0.113.7", models.OutcomeSuccess))
	require.NoError(t, recorder.AccessDenied("u2", "/exams/3", "203.0.113.8", "not enrolled"))

	require.NoError(t, recorder.Stop(time.Second))

	inserted := repo.Inserted()
	require.Len(t, inserted, 2)

	byEvent := map[models.SecurityEvent]*models.SecurityLogRecord{}
	for _, r := range inserted {
		byEvent[r.Event] = r
	}
	require.Contains(t, byEvent, models.EventSignIn)
	assert.Equal(t, "203.0.113.7", *byEvent[models.EventSignIn].IP)
	assert.Equal(t, "ada@example.com", *byEvent[models.EventSignIn].ActorEmail)
	require.Contains(t, byEvent, models.EventAccessDenied)
	assert.Equal(t, "not enrolled", *byEvent[models.EventAccessDenied].Message)
	assert.Equal(t, models.OutcomeFailure, byEvent[models.EventAccessDenied].Outcome)
}

func TestRecorder_Helpers(t *testing.T) {
	recorder, repo := newTestRecorder(t, RecorderConfig{BufferSize: 20, WorkerCount: 1})
	expectInsert(repo)
	require.NoError(t, recorder.Start())

	require.NoError(t, recorder.SignOut("u1", "10.0.0.1"))
	require.NoError(t, recorder.AuthError("eve@example.com", "10.0.0.2", "token expired"))
	require.NoError(t, recorder.AccessGranted("u1", "/programs/7", "10.0.0.1"))
	require.NoError(t, recorder.ValidationFailed("u1", "exam", "10.0.0.1", map[string]string{"title": "title is required"}))
	require.NoError(t, recorder.CRUD(models.EventUpdate, "u1", "schedule/2", "10.0.0.1", models.OutcomeSuccess))

	require.NoError(t, recorder.Stop(time.Second))

	events := map[models.SecurityEvent]bool{}
	for _, r := range repo.Inserted() {
		events[r.Event] = true
	}
	assert.Equal(t, map[models.SecurityEvent]bool{
		models.EventSignOut:          true,
		models.EventAuthError:        true,
		models.EventAccessGranted:    true,
		models.EventValidationFailed: true,
		models.EventUpdate:           true,
	}, events)
}

func TestRecorder_CRUDRejectsOtherEvents(t *testing.T) {
	recorder, repo := newTestRecorder(t, RecorderConfig{BufferSize: 1, WorkerCount: 1})
	require.NoError(t, recorder.Start())
	defer recorder.Stop(time.Second)

	err := recorder.CRUD(models.EventSignIn, "u1", "x", "", models.OutcomeSuccess)
	assert.True(t, services.IsValidationError(err))

	err = recorder.CRUD("crud.archive", "u1", "x", "", models.OutcomeSuccess)
	assert.True(t, services.IsValidationError(err))
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything)
}

func TestRecorder_NotStarted(t *testing.T) {
	recorder, _ := newTestRecorder(t, RecorderConfig{BufferSize: 1, WorkerCount: 1})

	entry := Entry{Request: SubmitRequest{Event: models.EventSignIn, Outcome: models.OutcomeSuccess}}
	assert.ErrorIs(t, recorder.Record(entry), services.ErrRecorderClosed)
	assert.ErrorIs(t, recorder.RecordBlocking(context.Background(), entry), services.ErrRecorderClosed)
}

// blockingAppender holds every Append until release is closed
type blockingAppender struct {
	release chan struct{}
	mu      sync.Mutex
	count   int
}

func (b *blockingAppender) Append(ctx context.Context, req *SubmitRequest, ip string) (*models.SecurityLogRecord, error) {
	<-b.release
	b.mu.Lock()
	b.count++
	b.mu.Unlock()
	return req.ToRecord(ip), nil
}

func TestRecorder_BufferFullDropsWithoutBlocking(t *testing.T) {
	appender := &blockingAppender{release: make(chan struct{})}
	recorder := NewRecorder(appender, zap.NewNop(), RecorderConfig{BufferSize: 1, WorkerCount: 1})
	require.NoError(t, recorder.Start())

	entry := Entry{Request: SubmitRequest{Event: models.EventRead, Outcome: models.OutcomeSuccess}}

	// the worker takes the first entry and blocks; the second fills the buffer
	require.NoError(t, recorder.Record(entry))
	require.Eventually(t, func() bool { return recorder.Stats().PendingEvents == 0 }, time.Second, time.Millisecond)
	require.NoError(t, recorder.Record(entry))

	start := time.Now()
	err := recorder.Record(entry)
	assert.ErrorIs(t, err, services.ErrRecorderFull)
	assert.Less(t, time.Since(start), 100*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, recorder.RecordBlocking(ctx, entry), context.DeadlineExceeded)

	close(appender.release)
	require.NoError(t, recorder.Stop(time.Second))

	appender.mu.Lock()
	defer appender.mu.Unlock()
	assert.Equal(t, 2, appender.count)
}

func TestRecorder_StopTimeout(t *testing.T) {
	appender := &blockingAppender{release: make(chan struct{})}
	recorder := NewRecorder(appender, zap.NewNop(), RecorderConfig{BufferSize: 1, WorkerCount: 1})
	require.NoError(t, recorder.Start())

	require.NoError(t, recorder.Record(Entry{Request: SubmitRequest{Event: models.EventRead, Outcome: models.OutcomeSuccess}}))
	require.Eventually(t, func() bool { return recorder.Stats().PendingEvents == 0 }, time.Second, time.Millisecond)

	err := recorder.Stop(10 * time.Millisecond)
	assert.ErrorContains(t, err, "stop timeout")
	close(appender.release)
}

func TestRecorder_StorageFailureIsSwallowed(t *testing.T) {
	recorder, repo := newTestRecorder(t, RecorderConfig{BufferSize: 5, WorkerCount: 1})
	repo.On("Insert", mock.Anything, mock.Anything).Return(errors.New("disk full"))
	require.NoError(t, recorder.Start())

	// the operation that raised the event completes regardless of the audit write
	operation := func() error {
		_ = recorder.SignIn("u1", "", "10.0.0.1", models.OutcomeFailure)
		return nil
	}
	assert.NoError(t, operation())

	require.NoError(t, recorder.Stop(time.Second))
	repo.AssertNumberOfCalls(t, "Insert", 1)
	assert.Empty(t, repo.Inserted())
}

func TestRecorder_RecordBlocking(t *testing.T) {
	recorder, repo := newTestRecorder(t, RecorderConfig{BufferSize: 2, WorkerCount: 1})
	expectInsert(repo)
	require.NoError(t, recorder.Start())

	err := recorder.RecordBlocking(context.Background(), Entry{
		Request: SubmitRequest{Event: models.EventCreate, Outcome: models.OutcomeSuccess, Resource: "program/1"},
	})
	require.NoError(t, err)

	require.NoError(t, recorder.Stop(time.Second))
	assert.Len(t, repo.Inserted(), 1)
}

type countingAppender struct {
	count atomic.Int64
}

func (c *countingAppender) Append(ctx context.Context, req *SubmitRequest, ip string) (*models.SecurityLogRecord, error) {
	c.count.Add(1)
	return req.ToRecord(ip), nil
}

func TestRecorder_RecordBlockingConcurrentWithStop(t *testing.T) {
	entry := Entry{Request: SubmitRequest{Event: models.EventUpdate, Outcome: models.OutcomeSuccess}}

	for round := 0; round < 50; round++ {
		appender := &countingAppender{}
		recorder := NewRecorder(appender, zap.NewNop(), RecorderConfig{BufferSize: 2, WorkerCount: 2})
		require.NoError(t, recorder.Start())

		var (
			wg       sync.WaitGroup
			accepted atomic.Int64
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := recorder.RecordBlocking(context.Background(), entry)
				if err == nil {
					accepted.Add(1)
					return
				}
				assert.ErrorIs(t, err, services.ErrRecorderClosed)
			}()
		}

		require.NoError(t, recorder.Stop(5*time.Second))
		wg.Wait()

		assert.Equal(t, accepted.Load(), appender.count.Load(), "round %d", round)
	}
}
