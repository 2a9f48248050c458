package insight

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/zoom-rtms/backend/internal/analysis/transcript"
	rtmsmodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/rtms"
	applog "github.com/zhouzirui/zoom-rtms/backend/pkg/log"
)

// Summary sources.
const (
	SourceModel     = "model"
	SourceHeuristic = "heuristic"
)

const (
	defaultMaxSegments    = 500
	defaultHighlightLimit = 5
	promptSegmentLimit    = 200
)

// Config controls the insight service.
type Config struct {
	// MaxSegments caps the transcript kept per meeting; older segments are dropped.
	MaxSegments    int
	HighlightLimit int
}

// Segment is one transcript line received from a session.
type Segment struct {
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}

// Summary is the end-of-session reading of a meeting.
type Summary struct {
	MeetingID string            `json:"meeting_id"`
	SessionID string            `json:"session_id,omitempty"`
	Source    string            `json:"source"`
	Text      string            `json:"text"`
	Digest    transcript.Digest `json:"digest"`
	CreatedAt time.Time         `json:"created_at"`
}

// Service collects transcript events and summarises them when a session
// ends, using the chat model when one is configured.
type Service struct {
	summarizer     compose.Runnable[map[string]any, *schema.Message]
	maxSegments    int
	highlightLimit int
	logger         *logrus.Entry

	mu          sync.RWMutex
	transcripts map[string][]Segment
	summaries   map[string]Summary
}

// NewService creates the service. chatModel may be nil, in which case only
// heuristic summaries are produced.
func NewService(ctx context.Context, chatModel model.ChatModel, cfg Config) (*Service, error) {
	svc := &Service{
		maxSegments:    cfg.MaxSegments,
		highlightLimit: cfg.HighlightLimit,
		logger:         applog.WithComponent("insight"),
		transcripts:    make(map[string][]Segment),
		summaries:      make(map[string]Summary),
	}
	if svc.maxSegments <= 0 {
		svc.maxSegments = defaultMaxSegments
	}
	if svc.highlightLimit <= 0 {
		svc.highlightLimit = defaultHighlightLimit
	}

	if chatModel == nil {
		return svc, nil
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(summarySystemPrompt),
		schema.UserMessage(summaryUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile summary chain: %w", err)
	}
	svc.summarizer = runnable
	return svc, nil
}

// Enabled reports whether summaries come from the chat model.
func (s *Service) Enabled() bool {
	return s != nil && s.summarizer != nil
}

// Observe is a session listener. It only records transcript events and
// never blocks.
func (s *Service) Observe(ev rtmsmodel.Event) {
	if ev.Kind != rtmsmodel.KindTranscript {
		return
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		return
	}

	at := ev.Timestamp
	if at.IsZero() {
		at = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	segments := append(s.transcripts[ev.MeetingID], Segment{SessionID: ev.SessionID, Text: text, At: at})
	if len(segments) > s.maxSegments {
		segments = segments[len(segments)-s.maxSegments:]
	}
	s.transcripts[ev.MeetingID] = segments
}

// Transcript returns a copy of the collected segments of meetingID.
func (s *Service) Transcript(meetingID string) []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Segment(nil), s.transcripts[meetingID]...)
}

// Summarize builds, stores and returns the summary of meetingID, and starts
// a fresh transcript for the meeting.
func (s *Service) Summarize(ctx context.Context, meetingID, sessionID string) Summary {
	s.mu.Lock()
	segments := s.transcripts[meetingID]
	delete(s.transcripts, meetingID)
	s.mu.Unlock()

	lines := make([]string, 0, len(segments))
	for _, seg := range segments {
		lines = append(lines, seg.Text)
	}
	digest := transcript.Analyze(lines, s.highlightLimit)

	summary := Summary{
		MeetingID: meetingID,
		SessionID: sessionID,
		Source:    SourceHeuristic,
		Text:      digest.Summary(),
		Digest:    digest,
		CreatedAt: time.Now().UTC(),
	}

	log := s.logger.WithFields(logrus.Fields{"meeting_id": meetingID, "segments": digest.Segments})
	if s.Enabled() && digest.Segments > 0 {
		text, err := s.generate(ctx, meetingID, lines, summary.Text)
		switch {
		case err != nil:
			log.WithError(err).Warn("summary model failed, use heuristic summary")
		case text == "":
			log.Warn("summary model returned nothing, use heuristic summary")
		default:
			summary.Text = text
			summary.Source = SourceModel
		}
	}

	s.mu.Lock()
	s.summaries[meetingID] = summary
	s.mu.Unlock()

	log.WithField("source", summary.Source).Info("meeting summary stored")
	return summary
}

// Summary returns the last stored summary of meetingID.
func (s *Service) Summary(meetingID string) (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary, ok := s.summaries[meetingID]
	return summary, ok
}

func (s *Service) generate(ctx context.Context, meetingID string, lines []string, notes string) (string, error) {
	if len(lines) > promptSegmentLimit {
		lines = lines[len(lines)-promptSegmentLimit:]
	}

	msg, err := s.summarizer.Invoke(ctx, map[string]any{
		"meeting_id": meetingID,
		"notes":      notes,
		"transcript": strings.Join(lines, "\n"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to run summary chain: %w", err)
	}
	if msg == nil {
		return "", nil
	}
	return strings.TrimSpace(msg.Content), nil
}

const summarySystemPrompt = `You summarise live meeting transcripts.
Answer with one short paragraph, then bullet points for decisions and action items.
Do not invent content that is not in the transcript.`

const summaryUserPrompt = `Meeting: {meeting_id}

Heuristic notes:
{notes}

Transcript:
{transcript}`
