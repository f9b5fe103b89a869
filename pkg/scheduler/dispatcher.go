package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/linem-davton/graphdraw/pkg/metrics"
	"github.com/linem-davton/graphdraw/pkg/model"
)

// ErrNothingToRetry is returned by Retry before any request was made.
var ErrNothingToRetry = errors.New("no previous scheduling request")

// JobScheduler is the call a Dispatcher issues. *Client implements it.
type JobScheduler interface {
	ScheduleJobs(ctx context.Context, m model.CombinedModel) (model.ScheduleResult, error)
}

// Sink receives the outcome of the latest request.
type Sink func(result model.ScheduleResult, err error)

// Dispatcher issues scheduling requests in the background. Each request gets
// a token; starting a new one cancels the previous call, and a completion
// whose token is no longer current is dropped.
type Dispatcher struct {
	client JobScheduler
	sink   Sink
	logger *slog.Logger

	mu     sync.Mutex
	token  uint64
	cancel context.CancelFunc
	last   *model.CombinedModel
	closed bool

	// deliverMu orders sink calls so an older answer cannot land after a
	// newer one.
	deliverMu sync.Mutex
	wg        sync.WaitGroup
}

// NewDispatcher wires client to sink.
func NewDispatcher(client JobScheduler, sink Sink, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{client: client, sink: sink, logger: logger}
}

// Request schedules m, superseding any request still in flight.
func (d *Dispatcher) Request(ctx context.Context, m model.CombinedModel) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.token++
	token := d.token
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	snapshot := m.Clone()
	d.last = &snapshot

	if !snapshot.Schedulable() {
		d.mu.Unlock()
		metrics.ScheduleRequests.WithLabelValues("skipped").Inc()
		d.deliver(token, nil, model.ErrNothingToSchedule)
		return
	}

	callCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.wg.Add(1)
	d.mu.Unlock()

	go d.run(callCtx, cancel, token, snapshot)
}

func (d *Dispatcher) run(ctx context.Context, cancel context.CancelFunc, token uint64, m model.CombinedModel) {
	defer d.wg.Done()
	defer cancel()

	start := time.Now()
	result, err := d.client.ScheduleJobs(ctx, m)
	metrics.ScheduleDuration.Observe(time.Since(start).Seconds())

	if !d.deliver(token, result, err) {
		metrics.ScheduleStale.Inc()
		d.logger.Debug("Discarded stale schedule response", "token", token)
		return
	}
	metrics.ScheduleRequests.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		d.logger.Warn("Scheduling failed", "token", token, "error", err)
	} else {
		d.logger.Debug("Schedule received", "token", token, "algorithms", len(result))
	}
}

// deliver hands the outcome to the sink if token is still current.
func (d *Dispatcher) deliver(token uint64, result model.ScheduleResult, err error) bool {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	current := token == d.token
	d.mu.Unlock()
	if !current {
		return false
	}
	if d.sink != nil {
		d.sink(result, err)
	}
	return true
}

// Invalidate makes the in-flight request stale and forgets the last model,
// so Retry has nothing to re-issue. A delivery already under way finishes
// before Invalidate returns.
func (d *Dispatcher) Invalidate() {
	d.deliverMu.Lock()
	defer d.deliverMu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.token++
	d.last = nil
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}

// Retry re-issues the last request.
func (d *Dispatcher) Retry(ctx context.Context) error {
	d.mu.Lock()
	last := d.last
	d.mu.Unlock()
	if last == nil {
		return ErrNothingToRetry
	}
	if !last.Schedulable() {
		return model.ErrNothingToSchedule
	}
	d.Request(ctx, *last)
	return nil
}

// Token returns the token of the newest request.
func (d *Dispatcher) Token() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.token
}

// Wait blocks until no request is in flight.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close cancels the in-flight request and waits for it to return. Later
// requests are ignored.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.token++
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, model.ErrConnection):
		return "connection_error"
	case errors.Is(err, model.ErrHTTP):
		return "http_error"
	case errors.Is(err, ErrDecode):
		return "decode_error"
	default:
		return "error"
	}
}
