package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zxcvny/capstone/pkg/logger"
)

type fakeJob struct {
	name     string
	schedule string
	failures int32 // number of leading runs that fail
	calls    atomic.Int32
}

func (j *fakeJob) Name() string     { return j.name }
func (j *fakeJob) Schedule() string { return j.schedule }

func (j *fakeJob) Run(ctx context.Context) error {
	if j.calls.Add(1) <= j.failures {
		return errors.New("upstream unavailable")
	}
	return nil
}

func testOptions() Options {
	return Options{MaxRetries: 2, RetryDelay: time.Millisecond, JobTimeout: time.Second}
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(testOptions(), logger.Nop())

	require.NoError(t, s.AddJob(&fakeJob{name: "b", schedule: "0 0 * * * *"}))
	require.NoError(t, s.AddJob(&fakeJob{name: "a", schedule: "0 30 7 * * *"}))

	err := s.AddJob(&fakeJob{name: "a", schedule: "0 0 * * * *"})
	assert.ErrorContains(t, err, "already exists")

	err = s.AddJob(&fakeJob{name: "bad", schedule: "not a schedule"})
	assert.ErrorContains(t, err, "failed to schedule job bad")

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())
}

func TestScheduler_RunJobSyncRetries(t *testing.T) {
	tests := []struct {
		name     string
		failures int32
		success  bool
		attempts int
	}{
		{"first try", 0, true, 1},
		{"succeeds on retry", 2, true, 3},
		{"gives up", 5, false, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(testOptions(), logger.Nop())
			job := &fakeJob{name: "fx_refresh", schedule: "0 0 * * * *", failures: tt.failures}
			require.NoError(t, s.AddJob(job))

			result, err := s.RunJobSync("fx_refresh")
			require.NoError(t, err)
			assert.Equal(t, tt.success, result.Success)
			assert.Equal(t, tt.attempts, result.Attempts)
			assert.Equal(t, int32(tt.attempts), job.calls.Load())
			if !tt.success {
				assert.Equal(t, "upstream unavailable", result.Error)
			}

			history, err := s.GetJobHistory("fx_refresh")
			require.NoError(t, err)
			require.Len(t, history, 1)
		})
	}
}

func TestScheduler_UnknownJob(t *testing.T) {
	s := New(testOptions(), logger.Nop())

	_, err := s.RunJobSync("missing")
	assert.Error(t, err)
	assert.Error(t, s.RunJob("missing"))
	assert.Error(t, s.RemoveJob("missing"))

	_, err = s.GetJobHistory("missing")
	assert.Error(t, err)
}

func TestScheduler_Stats(t *testing.T) {
	s := New(testOptions(), logger.Nop())
	require.NoError(t, s.AddJob(&fakeJob{name: "stock_master", schedule: "0 30 7 * * *", failures: 3}))

	_, err := s.RunJobSync("stock_master") // 3 failures exhaust the retries
	require.NoError(t, err)
	_, err = s.RunJobSync("stock_master")
	require.NoError(t, err)

	s.Start()
	defer s.Stop()

	st := s.GetJobStats()["stock_master"]
	assert.Equal(t, "0 30 7 * * *", st.Schedule)
	assert.Equal(t, 2, st.TotalRuns)
	assert.Equal(t, 1, st.SuccessCount)
	assert.Equal(t, 1, st.FailureCount)
	assert.InDelta(t, 0.5, st.SuccessRate, 1e-9)
	require.NotNil(t, st.LastSuccess)
	assert.Nil(t, st.LastFailure)
	require.NotNil(t, st.NextRun)
	assert.Equal(t, 7, st.NextRun.Hour())
	assert.Equal(t, 30, st.NextRun.Minute())
}

func TestScheduler_StopInterruptsRetryWait(t *testing.T) {
	s := New(Options{MaxRetries: 3, RetryDelay: time.Hour}, logger.Nop())
	require.NoError(t, s.AddJob(&fakeJob{name: "slow", schedule: "0 0 * * * *", failures: 10}))

	done := make(chan JobResult, 1)
	go func() {
		result, _ := s.RunJobSync("slow")
		done <- result
	}()

	time.Sleep(50 * time.Millisecond)
	s.Stop()

	select {
	case result := <-done:
		assert.False(t, result.Success)
		assert.Equal(t, 1, result.Attempts)
		assert.Contains(t, result.Error, "scheduler stopped")
	case <-time.After(2 * time.Second):
		t.Fatal("retry wait was not interrupted by Stop")
	}
}

func TestJobHistory_Bounded(t *testing.T) {
	h := &JobHistory{}
	for i := 0; i < maxHistory+10; i++ {
		h.AddResult(JobResult{Success: i%2 == 0, Attempts: i})
	}

	assert.Len(t, h.Results, maxHistory)
	assert.Equal(t, 10, h.Results[0].Attempts)
	assert.Equal(t, 50, h.FailedCount())
	assert.InDelta(t, 0.5, h.SuccessRate(), 1e-9)
	assert.Len(t, h.Latest(3), 3)
	assert.Empty(t, (&JobHistory{}).Latest(3))
}
