package scheduler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linem-davton/graphdraw/pkg/editor"
	"github.com/linem-davton/graphdraw/pkg/logging"
	"github.com/linem-davton/graphdraw/pkg/metrics"
	"github.com/linem-davton/graphdraw/pkg/model"
)

// scriptedScheduler answers call i with results[i] once release[i] is closed.
type scriptedScheduler struct {
	mu      sync.Mutex
	calls   int
	started chan int
	release []chan struct{}
	results []model.ScheduleResult
	ctxErrs []error
}

func newScripted(n int) *scriptedScheduler {
	s := &scriptedScheduler{started: make(chan int, n)}
	for i := 0; i < n; i++ {
		s.release = append(s.release, make(chan struct{}))
		s.results = append(s.results, model.ScheduleResult{"edf": {Name: string(rune('A' + i))}})
	}
	s.ctxErrs = make([]error, n)
	return s
}

func (s *scriptedScheduler) ScheduleJobs(ctx context.Context, _ model.CombinedModel) (model.ScheduleResult, error) {
	s.mu.Lock()
	i := s.calls
	s.calls++
	s.mu.Unlock()
	s.started <- i

	<-s.release[i]

	s.mu.Lock()
	s.ctxErrs[i] = ctx.Err()
	s.mu.Unlock()
	return s.results[i], nil
}

type recordingSink struct {
	mu      sync.Mutex
	results []model.ScheduleResult
	errs    []error
}

func (r *recordingSink) sink(res model.ScheduleResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
	r.errs = append(r.errs, err)
}

func TestDispatcherDiscardsStaleResponses(t *testing.T) {
	sched := newScripted(2)
	rec := &recordingSink{}
	d := NewDispatcher(sched, rec.sink, logging.Discard())
	staleBefore := testutil.ToFloat64(metrics.ScheduleStale)

	d.Request(context.Background(), sampleModel())
	<-sched.started
	d.Request(context.Background(), sampleModel())
	<-sched.started

	close(sched.release[1])
	close(sched.release[0])
	d.Wait()

	require.Len(t, rec.results, 1)
	assert.Equal(t, "B", rec.results[0]["edf"].Name)
	assert.NoError(t, rec.errs[0])
	assert.ErrorIs(t, sched.ctxErrs[0], context.Canceled, "superseded call is cancelled")
	assert.Equal(t, staleBefore+1, testutil.ToFloat64(metrics.ScheduleStale))
	assert.Equal(t, uint64(2), d.Token())
}

func TestDispatcherSkipsEmptyModels(t *testing.T) {
	rec := &recordingSink{}
	d := NewDispatcher(newScripted(0), rec.sink, logging.Discard())

	d.Request(context.Background(), model.NewCombinedModel())
	d.Wait()

	require.Len(t, rec.errs, 1)
	assert.ErrorIs(t, rec.errs[0], model.ErrNothingToSchedule)
	assert.ErrorIs(t, d.Retry(context.Background()), model.ErrNothingToSchedule)
}

func TestDispatcherRetry(t *testing.T) {
	sched := newScripted(2)
	close(sched.release[0])
	close(sched.release[1])
	rec := &recordingSink{}
	d := NewDispatcher(sched, rec.sink, logging.Discard())

	assert.ErrorIs(t, d.Retry(context.Background()), ErrNothingToRetry)

	d.Request(context.Background(), sampleModel())
	d.Wait()
	require.NoError(t, d.Retry(context.Background()))
	d.Wait()

	assert.Equal(t, 2, sched.calls)
	require.Len(t, rec.results, 2)
	assert.Equal(t, "B", rec.results[1]["edf"].Name)
}

func TestDispatcherCloseIgnoresLaterRequests(t *testing.T) {
	sched := newScripted(1)
	rec := &recordingSink{}
	d := NewDispatcher(sched, rec.sink, logging.Discard())

	d.Request(context.Background(), sampleModel())
	go close(sched.release[0])
	d.Close()
	d.Request(context.Background(), sampleModel())

	assert.Empty(t, rec.results, "the in-flight answer is stale once closed")
	assert.Equal(t, 1, sched.calls)
}

func TestDispatcherFeedsSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ll":{"name":"LL","schedule":[{"task_id":0,"node_id":0,"start_time":0,"end_time":10}],"missed_deadlines":[]}}`))
	}))
	defer server.Close()

	s := editor.NewSession("it")
	d := NewDispatcher(NewClient(endpointsFor(server.URL), ModeRemote), s.ApplySchedule, logging.Discard())
	defer d.Close()
	s.SetScheduler(d)

	s.AddTask(10, 5, 50)
	_, err := s.AddNode(model.NodeCompute)
	require.NoError(t, err)
	d.Wait()

	state := s.Schedule()
	require.NoError(t, state.Err)
	assert.False(t, state.Pending)
	assert.Equal(t, "LL", state.Result["ll"].Name)
}

func TestDispatcherRecordsFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	s := editor.NewSession("it")
	d := NewDispatcher(NewClient(endpointsFor(server.URL), ModeRemote), s.ApplySchedule, logging.Discard())
	defer d.Close()
	s.SetScheduler(d)

	require.NoError(t, s.Replace(sampleModel()))
	d.Wait()

	var httpErr *model.HTTPError
	require.True(t, errors.As(s.Schedule().Err, &httpErr))
	assert.Equal(t, http.StatusInternalServerError, httpErr.Status)
	assert.Nil(t, s.Schedule().Result)
}

func TestDispatcherInvalidate(t *testing.T) {
	sched := newScripted(1)
	rec := &recordingSink{}
	d := NewDispatcher(sched, rec.sink, logging.Discard())

	d.Request(context.Background(), sampleModel())
	<-sched.started
	d.Invalidate()
	close(sched.release[0])
	d.Wait()

	assert.Empty(t, rec.results)
	assert.ErrorIs(t, sched.ctxErrs[0], context.Canceled)
	assert.ErrorIs(t, d.Retry(context.Background()), ErrNothingToRetry)
}

func TestDeletingLastTaskDropsInFlightSchedule(t *testing.T) {
	sched := newScripted(1)
	s := editor.NewSession("it")
	d := NewDispatcher(sched, s.ApplySchedule, logging.Discard())
	defer d.Close()
	s.SetScheduler(d)

	_, err := s.AddNode(model.NodeCompute)
	require.NoError(t, err)
	id := s.AddTask(10, 5, 50)
	<-sched.started

	require.NoError(t, s.DeleteTask(id))
	close(sched.release[0])
	d.Wait()

	state := s.Schedule()
	assert.Nil(t, state.Result)
	assert.NoError(t, state.Err)
	assert.False(t, state.Pending)
}
