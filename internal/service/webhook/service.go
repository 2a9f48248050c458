package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	zoommodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/zoom"
	applog "github.com/zhouzirui/zoom-rtms/backend/pkg/log"
)

var (
	ErrInvalidPayload = errors.New("invalid webhook payload")
	ErrSecretMissing  = errors.New("webhook verification secret is not configured")
	ErrClosed         = errors.New("webhook service is closed")
)

// Response statuses for non-validation events.
const (
	StatusProcessing = "processing"
	StatusIgnored    = "ignored"
)

const defaultJobTimeout = 30 * time.Second

// StatusResponse acknowledges an event.
type StatusResponse struct {
	Status string `json:"status"`
}

// RecordingFetcher loads the cloud recordings of a meeting.
type RecordingFetcher interface {
	GetRecordings(ctx context.Context, meetingID string) (*zoommodel.Recording, error)
}

// Recorder receives webhook metrics.
type Recorder interface {
	RecordWebhook(event, status string)
}

// Options configures a Service.
type Options struct {
	// Secret signs url_validation challenges.
	Secret     string
	Recordings RecordingFetcher
	Store      *RecordingStore
	Recorder   Recorder
	JobTimeout time.Duration
}

// Service answers webhook notifications. Recording lookups run in the
// background after the response is produced.
type Service struct {
	opts   Options
	store  *RecordingStore
	logger *logrus.Entry

	base   context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewService creates a webhook service.
func NewService(opts Options) *Service {
	store := opts.Store
	if store == nil {
		store = NewRecordingStore()
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = defaultJobTimeout
	}

	base, cancel := context.WithCancel(context.Background())
	return &Service{
		opts:   opts,
		store:  store,
		logger: applog.WithComponent("webhook"),
		base:   base,
		cancel: cancel,
	}
}

// Store returns the recording store fed by background jobs.
func (s *Service) Store() *RecordingStore {
	return s.store
}

// Handle processes one event and returns the body to send back.
func (s *Service) Handle(_ context.Context, event zoommodel.WebhookEvent) (any, error) {
	log := s.logger.WithField("event", event.Event)

	switch event.Event {
	case zoommodel.EventURLValidation:
		resp, err := s.validate(event.Payload)
		if err != nil {
			s.record(event.Event, "error")
			return nil, err
		}
		s.record(event.Event, "validated")
		log.Info("answered endpoint validation")
		return resp, nil

	case zoommodel.EventMeetingStarted, zoommodel.EventRecordingCompleted:
		var payload zoommodel.MeetingPayload
		if len(event.Payload) > 0 {
			if err := json.Unmarshal(event.Payload, &payload); err != nil {
				s.record(event.Event, "error")
				return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
			}
		}

		meetingID := payload.Object.ID.String()
		// recording.completed is only actionable when it lists files.
		actionable := meetingID != "" &&
			(event.Event == zoommodel.EventMeetingStarted || len(payload.Object.RecordingFiles) > 0)
		if actionable {
			jobID, err := s.enqueue(event.Event, meetingID)
			if err != nil {
				s.record(event.Event, "error")
				return nil, err
			}
			log.WithFields(logrus.Fields{"meeting_id": meetingID, "job_id": jobID}).Info("scheduled recording lookup")
		} else {
			log.Warn("event has nothing to process")
		}
		s.record(event.Event, StatusProcessing)
		return StatusResponse{Status: StatusProcessing}, nil

	default:
		s.record(event.Event, StatusIgnored)
		log.Debug("ignoring webhook event")
		return StatusResponse{Status: StatusIgnored}, nil
	}
}

// Close cancels pending jobs and waits for them to return.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.cancel()
	s.mu.Unlock()
	s.wg.Wait()
}

// Wait blocks until every scheduled job has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

func (s *Service) validate(raw json.RawMessage) (zoommodel.URLValidationResponse, error) {
	var payload zoommodel.URLValidationPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return zoommodel.URLValidationResponse{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if strings.TrimSpace(payload.PlainToken) == "" {
		return zoommodel.URLValidationResponse{}, fmt.Errorf("%w: plainToken is required", ErrInvalidPayload)
	}
	if s.opts.Secret == "" {
		return zoommodel.URLValidationResponse{}, ErrSecretMissing
	}

	return zoommodel.URLValidationResponse{
		PlainToken:     payload.PlainToken,
		EncryptedToken: Sign(s.opts.Secret, payload.PlainToken),
	}, nil
}

// Sign returns the hex encoded HMAC-SHA256 of message keyed by secret.
func Sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// enqueue registers the job with the wait group under mu so that Close
// either waits for it or the job is refused.
func (s *Service) enqueue(event, meetingID string) (string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return "", ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	job := RecordingJob{
		ID:        uuid.NewString(),
		MeetingID: meetingID,
		Event:     event,
		Status:    JobPending,
		CreatedAt: time.Now().UTC(),
	}
	s.store.Save(s.base, job)

	go func() {
		defer s.wg.Done()
		s.runJob(job)
	}()
	return job.ID, nil
}

func (s *Service) runJob(job RecordingJob) {
	log := s.logger.WithFields(logrus.Fields{"meeting_id": job.MeetingID, "job_id": job.ID})

	if s.opts.Recordings == nil {
		job.Status = JobFailed
		job.Error = "recording lookup is not configured"
		s.store.Save(s.base, job)
		return
	}

	ctx, cancel := context.WithTimeout(s.base, s.opts.JobTimeout)
	defer cancel()

	rec, err := s.opts.Recordings.GetRecordings(ctx, job.MeetingID)
	if err != nil {
		job.Status = JobFailed
		job.Error = err.Error()
		s.store.Save(s.base, job)
		log.WithError(err).Warn("recording lookup failed")
		return
	}

	job.Status = JobCompleted
	job.Recording = rec
	s.store.Save(s.base, job)

	files := 0
	if rec != nil {
		files = len(rec.RecordingFiles)
	}
	log.WithField("files", files).Info("recording lookup completed")
}

func (s *Service) record(event, status string) {
	if s.opts.Recorder != nil {
		s.opts.Recorder.RecordWebhook(event, status)
	}
}
