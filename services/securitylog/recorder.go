package securitylog

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upb/tutoring-platform/backend/internal/observability"
	"github.com/upb/tutoring-platform/backend/models"
	"github.com/upb/tutoring-platform/backend/services"
	"go.uber.org/zap"
)

// Entry is a security event raised inside this process
type Entry struct {
	Request SubmitRequest
	IP      string
}

// Appender persists a single entry; *Service satisfies it
type Appender interface {
	Append(ctx context.Context, req *SubmitRequest, ip string) (*models.SecurityLogRecord, error)
}

// RecorderConfig holds configuration for the Recorder
type RecorderConfig struct {
	BufferSize    int           // Size of the entry buffer channel
	WorkerCount   int           // Number of concurrent workers
	AppendTimeout time.Duration // Per-entry persistence timeout
}

// DefaultRecorderConfig returns the default configuration
func DefaultRecorderConfig() RecorderConfig {
	return RecorderConfig{
		BufferSize:    1000,
		WorkerCount:   2,
		AppendTimeout: 5 * time.Second,
	}
}

// Recorder emits security events in the background so the operation that
// raised them is never blocked or failed by the audit write.
type Recorder struct {
	appender      Appender
	logger        *zap.Logger
	entries       chan Entry
	quit          chan struct{}
	workerCount   int
	bufferSize    int
	appendTimeout time.Duration
	wg            sync.WaitGroup
	senders       sync.WaitGroup // RecordBlocking calls past the started check
	started       bool
	stopped       bool
	mu            sync.RWMutex
}

// NewRecorder creates a Recorder; call Start before recording
func NewRecorder(appender Appender, logger *zap.Logger, cfg RecorderConfig) *Recorder {
	def := DefaultRecorderConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = def.WorkerCount
	}
	if cfg.AppendTimeout <= 0 {
		cfg.AppendTimeout = def.AppendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Recorder{
		appender:      appender,
		logger:        logger,
		entries:       make(chan Entry, cfg.BufferSize),
		quit:          make(chan struct{}),
		workerCount:   cfg.WorkerCount,
		bufferSize:    cfg.BufferSize,
		appendTimeout: cfg.AppendTimeout,
	}
}

// Start starts the background workers
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return fmt.Errorf("security log recorder already started")
	}
	if r.stopped {
		return fmt.Errorf("security log recorder cannot be restarted")
	}

	for i := 0; i < r.workerCount; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}

	r.started = true
	r.logger.Info("started security log recorder",
		zap.Int("worker_count", r.workerCount),
		zap.Int("buffer_size", r.bufferSize))

	return nil
}

// Stop stops accepting entries and waits up to timeout for queued ones to be written
func (r *Recorder) Stop(timeout time.Duration) error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return fmt.Errorf("security log recorder not started")
	}
	r.started = false
	r.stopped = true
	close(r.quit)
	r.mu.Unlock()

	r.logger.Info("stopping security log recorder", zap.Int("pending_events", len(r.entries)))

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("security log recorder stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("security log recorder stop timeout after %v", timeout)
	}
}

// Record queues an entry without blocking. When the buffer is full the entry
// is dropped and an error returned; callers are free to ignore it.
func (r *Recorder) Record(entry Entry) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.started {
		observability.RecorderDroppedTotal.Inc()
		return services.ErrRecorderClosed
	}

	select {
	case r.entries <- entry:
		observability.RecorderPending.Inc()
		return nil
	default:
		observability.RecorderDroppedTotal.Inc()
		r.logger.Warn("security log recorder buffer full, dropping event",
			zap.String("event", string(entry.Request.Event)),
			zap.String("outcome", string(entry.Request.Outcome)))
		return services.ErrRecorderFull
	}
}

// RecordBlocking waits until the entry is queued, ctx is done or the recorder
// stops. A nil return means the entry will be written before Stop completes.
func (r *Recorder) RecordBlocking(ctx context.Context, entry Entry) error {
	r.mu.RLock()
	if !r.started {
		r.mu.RUnlock()
		observability.RecorderDroppedTotal.Inc()
		return services.ErrRecorderClosed
	}
	r.senders.Add(1)
	r.mu.RUnlock()
	defer r.senders.Done()

	select {
	case r.entries <- entry:
		observability.RecorderPending.Inc()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-r.quit:
		observability.RecorderDroppedTotal.Inc()
		return services.ErrRecorderClosed
	}
}

func (r *Recorder) worker(id int) {
	defer r.wg.Done()

	r.logger.Debug("security log worker started", zap.Int("worker_id", id))

	for {
		select {
		case entry := <-r.entries:
			r.process(id, entry)
		case <-r.quit:
			// a sender may still win its select against quit
			r.senders.Wait()
			r.drain(id)
			r.logger.Debug("security log worker stopped", zap.Int("worker_id", id))
			return
		}
	}
}

// drain writes whatever is still buffered after quit is closed
func (r *Recorder) drain(id int) {
	for {
		select {
		case entry := <-r.entries:
			r.process(id, entry)
		default:
			return
		}
	}
}

func (r *Recorder) process(id int, entry Entry) {
	observability.RecorderPending.Dec()

	ctx, cancel := context.WithTimeout(context.Background(), r.appendTimeout)
	defer cancel()

	if _, err := r.appender.Append(ctx, &entry.Request, entry.IP); err != nil {
		r.logger.Error("failed to record security event",
			zap.Int("worker_id", id),
			zap.Error(err),
			zap.String("event", string(entry.Request.Event)),
			zap.String("outcome", string(entry.Request.Outcome)))
	}
}

// Stats returns statistics about the recorder
func (r *Recorder) Stats() RecorderStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return RecorderStats{
		BufferSize:    r.bufferSize,
		PendingEvents: len(r.entries),
		WorkerCount:   r.workerCount,
		Started:       r.started,
	}
}

// RecorderStats represents recorder statistics
type RecorderStats struct {
	BufferSize    int  `json:"bufferSize"`
	PendingEvents int  `json:"pendingEvents"`
	WorkerCount   int  `json:"workerCount"`
	Started       bool `json:"started"`
}

// Convenience methods for the events other components raise

// SignIn records a sign-in attempt
func (r *Recorder) SignIn(userID, email, ip string, outcome models.Outcome) error {
	return r.Record(Entry{
		Request: SubmitRequest{Event: models.EventSignIn, Outcome: outcome, UserID: userID, Email: email},
		IP:      ip,
	})
}

// SignOut records a sign-out
func (r *Recorder) SignOut(userID, ip string) error {
	return r.Record(Entry{
		Request: SubmitRequest{Event: models.EventSignOut, Outcome: models.OutcomeSuccess, UserID: userID},
		IP:      ip,
	})
}

// AuthError records an authentication failure that is not a rejected sign-in
func (r *Recorder) AuthError(email, ip, message string) error {
	return r.Record(Entry{
		Request: SubmitRequest{Event: models.EventAuthError, Outcome: models.OutcomeFailure, Email: email, Message: message},
		IP:      ip,
	})
}

// AccessGranted records a successful authorization decision
func (r *Recorder) AccessGranted(userID, resource, ip string) error {
	return r.Record(Entry{
		Request: SubmitRequest{Event: models.EventAccessGranted, Outcome: models.OutcomeSuccess, UserID: userID, Resource: resource},
		IP:      ip,
	})
}

// AccessDenied records a refused authorization decision
func (r *Recorder) AccessDenied(userID, resource, ip, reason string) error {
	return r.Record(Entry{
		Request: SubmitRequest{Event: models.EventAccessDenied, Outcome: models.OutcomeFailure, UserID: userID, Resource: resource, Message: reason},
		IP:      ip,
	})
}

// ValidationFailed records rejected input; fields maps field names to messages
func (r *Recorder) ValidationFailed(userID, resource, ip string, fields map[string]string) error {
	var metadata map[string]interface{}
	if len(fields) > 0 {
		metadata = map[string]interface{}{"fields": fields}
	}
	return r.Record(Entry{
		Request: SubmitRequest{Event: models.EventValidationFailed, Outcome: models.OutcomeFailure, UserID: userID, Resource: resource, Metadata: metadata},
		IP:      ip,
	})
}

// CRUD records an operation on resource; event must be a crud.* catalogue event.
func (r *Recorder) CRUD(event models.SecurityEvent, userID, resource, ip string, outcome models.Outcome) error {
	if category, ok := models.CategoryOf(event); !ok || category != models.CategoryCRUD {
		return services.NewDomainError(services.ErrorTypeValidation, "not a crud event", nil).
			WithDetail("event", string(event))
	}
	return r.Record(Entry{
		Request: SubmitRequest{Event: event, Outcome: outcome, UserID: userID, Resource: resource},
		IP:      ip,
	})
}
