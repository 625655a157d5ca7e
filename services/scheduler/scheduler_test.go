package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3dhorse/task-management-system-sub000/internal/jobs"
)

type countingJob struct {
	runs atomic.Int32
	res  jobs.Result
}

func (j *countingJob) Run(_ context.Context) (jobs.Result, error) {
	j.runs.Add(1)
	return j.res, nil
}

// blockingJob parks in Run until released, to simulate a slow pass.
type blockingJob struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingJob() *blockingJob {
	return &blockingJob{started: make(chan struct{}), release: make(chan struct{})}
}

func (j *blockingJob) Run(_ context.Context) (jobs.Result, error) {
	j.once.Do(func() { close(j.started) })
	<-j.release
	return jobs.Result{}, nil
}

func testOptions() Options {
	return Options{
		StartupDelay:      time.Millisecond,
		SweepInterval:     5 * time.Millisecond,
		RoutinaryInterval: 5 * time.Millisecond,
	}
}

func TestTick_ReturnsJobResult(t *testing.T) {
	sweep := &countingJob{res: jobs.Result{Total: 3, Success: 2, Failed: 1}}
	s := New(sweep, &countingJob{}, nil, testOptions(), slog.Default())

	res, ran := s.RunSweep(context.Background())
	require.True(t, ran)
	assert.Equal(t, jobs.Result{Total: 3, Success: 2, Failed: 1}, res)
	assert.Equal(t, int32(1), sweep.runs.Load())
}

func TestTick_SkipsWhileRunInFlight(t *testing.T) {
	blocking := newBlockingJob()
	s := New(blocking, &countingJob{}, nil, testOptions(), slog.Default())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ran := s.RunSweep(context.Background())
		assert.True(t, ran)
	}()
	<-blocking.started

	// A tick arriving mid-run is dropped, not queued.
	_, ran := s.RunSweep(context.Background())
	assert.False(t, ran)

	close(blocking.release)
	<-done

	// Once the slow run finishes the next tick runs again.
	_, ran = s.RunSweep(context.Background())
	assert.True(t, ran)
}

func TestTick_JobsDoNotBlockEachOther(t *testing.T) {
	blocking := newBlockingJob()
	routinary := &countingJob{}
	s := New(blocking, routinary, nil, testOptions(), slog.Default())

	go s.RunSweep(context.Background())
	<-blocking.started

	_, ran := s.RunRoutinary(context.Background())
	assert.True(t, ran, "a stuck sweep must not stall routinary generation")
	assert.Equal(t, int32(1), routinary.runs.Load())

	close(blocking.release)
}

func TestRun_FiresOnStartupThenPeriodically(t *testing.T) {
	sweep := &countingJob{}
	routinary := &countingJob{}
	s := New(sweep, routinary, nil, testOptions(), slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		s.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return sweep.runs.Load() >= 2 && routinary.runs.Load() >= 2
	}, time.Second, time.Millisecond, "both jobs fire at startup and then on their tickers")

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on context cancel")
	}
}
