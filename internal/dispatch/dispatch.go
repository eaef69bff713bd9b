// Package dispatch runs the endpoint worker pool: a single FIFO queue of
// pending batches, one worker per configured translator pulling work when
// idle, bounded per-batch retry with backoff, and a result stream consumed
// by the merge step in arbitrary completion order.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vntransl/internal/batch"
	"vntransl/internal/faults"
	"vntransl/internal/logging"
	"vntransl/internal/translator"
)

const (
	defaultRetryBaseDelay = 1 * time.Second
	defaultRetryMaxDelay  = 10 * time.Second
)

// Outcome is the terminal state of one batch: a result on success, or the
// final error once the attempt budget is exhausted.
type Outcome struct {
	Batch    *batch.Batch
	Result   translator.Result
	Err      error
	Attempts int
}

// Failed reports whether the batch exhausted its attempts.
func (o *Outcome) Failed() bool { return o.Err != nil }

// StreamingAllowed applies the streaming policy: incremental output is
// permitted only when exactly one endpoint is configured, regardless of what
// the configuration requests.
func StreamingAllowed(requested bool, endpoints int) bool {
	return requested && endpoints == 1
}

// Dispatcher owns the pending-batch queue and the endpoint worker set.
type Dispatcher struct {
	translators []translator.Translator
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	sleeper     func(context.Context, time.Duration)
	logger      *slog.Logger

	pending chan *batch.Batch
	results chan Outcome
	wg      sync.WaitGroup

	mu      sync.Mutex
	started bool
}

// Option configures optional Dispatcher behavior.
type Option func(*Dispatcher)

// WithRetryBackoff overrides the retry backoff delays.
func WithRetryBackoff(base, max time.Duration) Option {
	return func(d *Dispatcher) {
		d.baseDelay = base
		d.maxDelay = max
	}
}

// WithSleeper overrides how retry waits are performed (used in tests).
func WithSleeper(sleeper func(context.Context, time.Duration)) Option {
	return func(d *Dispatcher) {
		d.sleeper = sleeper
	}
}

// New constructs a dispatcher over the supplied translator instances.
// maxAttempts bounds tries per batch.
func New(translators []translator.Translator, maxAttempts int, logger *slog.Logger, opts ...Option) *Dispatcher {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	d := &Dispatcher{
		translators: translators,
		maxAttempts: maxAttempts,
		baseDelay:   defaultRetryBaseDelay,
		maxDelay:    defaultRetryMaxDelay,
		logger:      logging.NewComponentLogger(logger, "dispatch"),
		pending:     make(chan *batch.Batch, 4*len(translators)),
		results:     make(chan Outcome, 2*len(translators)),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches one worker per translator. The results channel closes after
// Close has been called and every in-flight batch reached a terminal state.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return errors.New("dispatcher already running")
	}
	if len(d.translators) == 0 {
		return errors.New("no translator endpoints configured")
	}
	d.started = true

	d.wg.Add(len(d.translators))
	for _, tr := range d.translators {
		go d.runWorker(ctx, tr)
	}
	go func() {
		d.wg.Wait()
		close(d.results)
	}()
	return nil
}

// Submit appends a batch to the pending queue, blocking while the queue is
// full. Callers submit in document order; the queue preserves it.
func (d *Dispatcher) Submit(ctx context.Context, bt *batch.Batch) error {
	select {
	case d.pending <- bt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals that no further batches will be submitted. Workers drain the
// queue and exit.
func (d *Dispatcher) Close() {
	close(d.pending)
}

// Results returns the stream of terminal batch outcomes.
func (d *Dispatcher) Results() <-chan Outcome {
	return d.results
}

func (d *Dispatcher) runWorker(ctx context.Context, tr translator.Translator) {
	defer d.wg.Done()
	logger := d.logger.With(logging.String(logging.FieldTranslator, tr.Name()))
	for {
		select {
		case <-ctx.Done():
			return
		case bt, ok := <-d.pending:
			if !ok {
				return
			}
			outcome := d.translateWithRetry(ctx, tr, logger, bt)
			select {
			case d.results <- outcome:
			case <-ctx.Done():
				return
			}
		}
	}
}

// translateWithRetry runs attempts until success, context cancellation, a
// non-retryable error, or attempt exhaustion.
func (d *Dispatcher) translateWithRetry(ctx context.Context, tr translator.Translator, logger *slog.Logger, bt *batch.Batch) Outcome {
	var lastErr error
	for attempt := 1; attempt <= d.maxAttempts; attempt++ {
		result, err := tr.TranslateBatch(ctx, bt)
		if err == nil {
			logger.Debug("batch translated",
				logging.String(logging.FieldFile, bt.FileID),
				logging.Int(logging.FieldBatch, bt.StartIndex),
				logging.Int(logging.FieldAttempt, attempt),
			)
			return Outcome{Batch: bt, Result: result, Attempts: attempt}
		}
		lastErr = err

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return Outcome{Batch: bt, Err: err, Attempts: attempt}
		}
		if !retryable(err) || attempt == d.maxAttempts {
			return Outcome{Batch: bt, Err: err, Attempts: attempt}
		}

		logger.Warn("batch attempt failed, retrying",
			logging.String(logging.FieldFile, bt.FileID),
			logging.Int(logging.FieldBatch, bt.StartIndex),
			logging.Int(logging.FieldAttempt, attempt),
			logging.Error(err),
		)
		d.sleep(ctx, d.backoffDelay(attempt))
	}
	return Outcome{Batch: bt, Err: lastErr, Attempts: d.maxAttempts}
}

func retryable(err error) bool {
	if faults.Retryable(err) {
		return true
	}
	// Timeouts surface as deadline errors from the HTTP client; they are
	// request errors even without the marker.
	return errors.Is(err, context.DeadlineExceeded)
}

// backoffDelay doubles the base delay per attempt, capped at maxDelay.
func (d *Dispatcher) backoffDelay(attempt int) time.Duration {
	if d.baseDelay <= 0 {
		return 0
	}
	delay := d.baseDelay
	for i := 1; i < attempt; i++ {
		if delay > d.maxDelay/2 {
			return d.maxDelay
		}
		delay *= 2
	}
	if d.maxDelay > 0 && delay > d.maxDelay {
		return d.maxDelay
	}
	return delay
}

func (d *Dispatcher) sleep(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	if d.sleeper != nil {
		d.sleeper(ctx, delay)
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
