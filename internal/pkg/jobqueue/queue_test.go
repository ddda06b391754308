package jobqueue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/TicketPilot/internal/pkg/orchestrator"
)

type fakeRemover struct {
	mu       sync.Mutex
	failures int
	err      error
	deleted  []uint
}

func (r *fakeRemover) DeleteProject(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return errors.New("connection reset")
	}
	if r.err != nil {
		return r.err
	}
	r.deleted = append(r.deleted, id)
	return nil
}

func (r *fakeRemover) deletedIDs() []uint {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint(nil), r.deleted...)
}

// TestNewQueue tests the queue constructor
func TestNewQueue(t *testing.T) {
	tests := []struct {
		name            string
		workers         int
		expectedWorkers int
	}{
		{"Valid worker count", 5, 5},
		{"Zero workers", 0, 3},
		{"Negative workers", -1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			queue := NewQueue(nil, tt.workers, &fakeRemover{})

			assert.NotNil(t, queue)
			assert.Equal(t, tt.expectedWorkers, queue.workers)
			assert.Equal(t, tt.expectedWorkers, cap(queue.workerPool))
			assert.NotNil(t, queue.stopCh)
			assert.False(t, queue.running)
		})
	}
}

func TestConstants(t *testing.T) {
	assert.Equal(t, "job:", JobKeyPrefix)
	assert.Equal(t, "job_queue", JobQueueKey)
	assert.Equal(t, "job_processing", JobProcessingKey)
	assert.Equal(t, "job_stats", JobStatsKey)
	assert.Equal(t, 3, DefaultMaxRetries)
	assert.Equal(t, 24*time.Hour, JobTTL)
	assert.Equal(t, "delete_orphan_project", string(JobTypeDeleteOrphanProject))
}

func TestJob_StatusTransitions(t *testing.T) {
	job := &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}
	assert.True(t, job.IsRetryable())

	job.RetryCount = 3
	assert.False(t, job.IsRetryable())

	before := time.Now()
	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)
	assert.False(t, job.UpdatedAt.Before(before))

	job.MarkAsFailed("boom")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "boom", job.ErrorMsg)
	assert.Equal(t, 4, job.RetryCount)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
}

func TestDeleteProjectPayloadFromMap(t *testing.T) {
	// Payloads come back from Redis as decoded JSON, numbers are float64.
	payload, err := DeleteProjectJobPayloadFromMap(map[string]interface{}{"project_id": float64(42)})
	require.NoError(t, err)
	assert.Equal(t, uint(42), payload.ProjectID)
}

func TestProcessDeleteProjectJob(t *testing.T) {
	tests := []struct {
		name    string
		remover *fakeRemover
		wantErr bool
	}{
		{"deletes project", &fakeRemover{}, false},
		{"already deleted counts as done", &fakeRemover{err: orchestrator.ErrProjectNotFound}, false},
		{"transient failure", &fakeRemover{failures: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQueue(nil, 1, tt.remover)
			job := &Job{Type: JobTypeDeleteOrphanProject, Payload: DeleteProjectJobPayload{ProjectID: 7}.ToMap()}

			err := q.processDeleteProjectJob(context.Background(), job)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestQueueProcessesProjectCleanup(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	remover := &fakeRemover{}
	q := NewQueue(client, 2, remover)

	require.NoError(t, q.EnqueueProjectCleanup(context.Background(), 11))

	q.Start()
	defer q.Stop()

	ok := waitForCondition(func() bool { return len(remover.deletedIDs()) == 1 }, 5*time.Second)
	require.True(t, ok, "cleanup job was not processed")
	assert.Equal(t, []uint{11}, remover.deletedIDs())

	ok = waitForCondition(func() bool {
		n, err := q.GetProcessingSize(context.Background())
		return err == nil && n == 0
	}, 2*time.Second)
	assert.True(t, ok)

	stats, err := q.GetJobStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats[JobStatusCompleted])
}

func TestQueueRetriesFailedCleanup(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	remover := &fakeRemover{failures: 1}
	q := NewQueue(client, 1, remover)
	q.retryDelay = 10 * time.Millisecond
	q.promoteEvery = 10 * time.Millisecond

	require.NoError(t, q.EnqueueProjectCleanup(context.Background(), 12))

	q.Start()
	defer q.Stop()

	ok := waitForCondition(func() bool { return len(remover.deletedIDs()) == 1 }, 5*time.Second)
	require.True(t, ok, "cleanup job was not retried")
}

func TestRetryWaitsInRedisUntilDue(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, 1, &fakeRemover{failures: 1})
	ctx := context.Background()

	_, err := q.EnqueueJob(ctx, JobTypeDeleteOrphanProject, DeleteProjectJobPayload{ProjectID: 5}.ToMap())
	require.NoError(t, err)
	job, err := q.dequeueJob(ctx)
	require.NoError(t, err)

	before := time.Now()
	q.processJob(ctx, job)

	// The pending retry is only in Redis: a new process would find it.
	delayed, err := q.GetDelayedSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), delayed)
	pending, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
	processing, err := q.GetProcessingSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), processing)

	restarted := NewQueue(client, 1, &fakeRemover{})
	n, err := restarted.promoteDueJobs(ctx, before)
	require.NoError(t, err)
	assert.Zero(t, n, "retry is not due yet")

	n, err = restarted.promoteDueJobs(ctx, before.Add(q.retryDelay+time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err = q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)
	delayed, err = q.GetDelayedSize(ctx)
	require.NoError(t, err)
	assert.Zero(t, delayed)

	stored, err := restarted.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusRetrying, stored.Status)
}

func TestRecoverStuckJobs(t *testing.T) {
	client := newIsolatedRedisClient(t, isolatedJobQueueTestRedisDB)
	q := NewQueue(client, 1, &fakeRemover{})
	ctx := context.Background()

	job, err := q.EnqueueJob(ctx, JobTypeDeleteOrphanProject, DeleteProjectJobPayload{ProjectID: 3}.ToMap())
	require.NoError(t, err)
	got, err := q.dequeueJob(ctx)
	require.NoError(t, err)
	got.MarkAsProcessing()
	q.updateJob(ctx, got)

	q.recoverStuckJobs(ctx, time.Minute, time.Now().Add(2*time.Minute))

	size, err := q.GetQueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
	processing, err := q.GetProcessingSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), processing)

	stored, err := q.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, JobStatusPending, stored.Status)
}
