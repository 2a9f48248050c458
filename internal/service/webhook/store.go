package webhook

import (
	"context"
	"errors"
	"sync"
	"time"

	zoommodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/zoom"
)

var ErrRecordingNotFound = errors.New("recording not found")

// Job status values.
const (
	JobPending   = "pending"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// RecordingJob tracks one background recording fetch.
type RecordingJob struct {
	ID        string               `json:"id"`
	MeetingID string               `json:"meeting_id"`
	Event     string               `json:"event"`
	Status    string               `json:"status"`
	Error     string               `json:"error,omitempty"`
	Recording *zoommodel.Recording `json:"recording,omitempty"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// RecordingStore keeps the latest recording job per meeting in memory.
type RecordingStore struct {
	mu   sync.RWMutex
	jobs map[string]RecordingJob
}

// NewRecordingStore creates an empty store.
func NewRecordingStore() *RecordingStore {
	return &RecordingStore{jobs: make(map[string]RecordingJob)}
}

// Save replaces the job recorded for job.MeetingID.
func (s *RecordingStore) Save(_ context.Context, job RecordingJob) {
	job.UpdatedAt = time.Now().UTC()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = job.UpdatedAt
	}

	s.mu.Lock()
	s.jobs[job.MeetingID] = job
	s.mu.Unlock()
}

// Get returns the latest job for meetingID.
func (s *RecordingStore) Get(_ context.Context, meetingID string) (RecordingJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[meetingID]
	if !ok {
		return RecordingJob{}, ErrRecordingNotFound
	}
	return job, nil
}
