package rtms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	rtmsmodel "github.com/zhouzirui/zoom-rtms/backend/internal/model/rtms"
	applog "github.com/zhouzirui/zoom-rtms/backend/pkg/log"
)

// FrameSink consumes one video payload. It may take arbitrarily long; the
// next message is not read until it returns. Returned errors and panics are
// logged and do not end the stream.
type FrameSink func(ctx context.Context, frame []byte) error

// Listener observes session events. It is called on the dispatch goroutine
// and must not block.
type Listener func(rtmsmodel.Event)

// Recorder receives dispatch metrics.
type Recorder interface {
	RecordSessionStarted()
	RecordSessionEnded(state string)
	RecordMessage(kind string)
	RecordDecodeFailure()
	RecordSink(durationSeconds float64, err error)
}

// Options configures a Session.
type Options struct {
	// URL is the streaming endpoint; the stream token is added as access_token.
	URL     string
	Tokens  StreamTokenFetcher
	Dialer  *websocket.Dialer
	Streams []rtmsmodel.StreamSpec

	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	// ReadTimeout bounds the wait for each message. Zero waits until the
	// context is cancelled or the peer closes.
	ReadTimeout time.Duration
	// ReadLimit caps the size of one inbound message in bytes.
	ReadLimit int64

	Recorder Recorder
	Logger   *logrus.Entry
}

const (
	closeGracePeriod = time.Second
	defaultReadLimit = 16 << 20
)

// Session owns one media stream connection for one meeting.
type Session struct {
	id     string
	opts   Options
	dialer *websocket.Dialer
	logger *logrus.Entry

	mu        sync.Mutex
	state     rtmsmodel.State
	meetingID string
	slot      tokenSlot
	conn      *websocket.Conn
	// pending is set while a connection exists that Run has not taken over.
	pending   bool
	sink      FrameSink
	listeners []Listener
	startedAt time.Time

	frames   atomic.Int64
	messages atomic.Int64
}

// NewSession creates an idle session.
func NewSession(opts Options) *Session {
	if len(opts.Streams) == 0 {
		opts.Streams = rtmsmodel.DefaultStreams()
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = defaultReadLimit
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: opts.HandshakeTimeout,
		}
	}

	id := uuid.NewString()
	logger := opts.Logger
	if logger == nil {
		logger = applog.WithComponent("rtms")
	}

	return &Session{
		id:     id,
		opts:   opts,
		dialer: dialer,
		logger: logger.WithField("session_id", id),
		state:  rtmsmodel.StateIdle,
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// MeetingID returns the meeting of the last Connect call.
func (s *Session) MeetingID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meetingID
}

// State returns the current lifecycle state.
func (s *Session) State() rtmsmodel.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Info returns a snapshot for listings.
func (s *Session) Info() rtmsmodel.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return rtmsmodel.SessionInfo{
		ID:        s.id,
		MeetingID: s.meetingID,
		State:     s.state,
		StartedAt: s.startedAt,
		Frames:    s.frames.Load(),
		Messages:  s.messages.Load(),
	}
}

// OnVideoFrame registers the frame sink. It must be called before Run.
func (s *Session) OnVideoFrame(sink FrameSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// AddListener registers an event observer. It must be called before Run.
func (s *Session) AddListener(l Listener) {
	if l == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, l)
	s.mu.Unlock()
}

// Connect resolves a stream token for meetingID and opens the transport.
// It is valid from idle, or from closed to start a fresh connection. No
// retry is attempted; on failure the session is errored.
func (s *Session) Connect(ctx context.Context, meetingID string) error {
	if meetingID == "" {
		return fmt.Errorf("%w: meeting id is required", ErrInvalidState)
	}

	s.mu.Lock()
	if s.state != rtmsmodel.StateIdle && s.state != rtmsmodel.StateClosed {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot connect while %s", ErrInvalidState, state)
	}
	s.state = rtmsmodel.StateConnecting
	s.meetingID = meetingID
	s.pending = false
	s.frames.Store(0)
	s.messages.Store(0)
	s.mu.Unlock()

	log := s.logger.WithField("meeting_id", meetingID)

	token, err := s.slot.resolve(ctx, s.opts.Tokens, meetingID)
	if err != nil {
		s.fail()
		log.WithError(err).Error("no stream token available")
		if errors.Is(err, ErrTokenMissing) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrTokenMissing, err)
	}

	endpoint, err := url.Parse(s.opts.URL)
	if err != nil {
		s.fail()
		return fmt.Errorf("%w: invalid stream url: %v", ErrHandshake, err)
	}
	query := endpoint.Query()
	query.Set("access_token", token.Value)
	endpoint.RawQuery = query.Encode()

	header := http.Header{}
	header.Set("Content-Type", "application/json")

	conn, resp, err := s.dialer.DialContext(ctx, endpoint.String(), header)
	if err != nil {
		s.fail()
		if resp != nil {
			log = log.WithField("status", resp.StatusCode)
		}
		log.WithError(err).Error("failed to connect to media stream")
		return fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	s.mu.Lock()
	if s.state != rtmsmodel.StateConnecting {
		// Closed while dialing.
		state := s.state
		s.mu.Unlock()
		_ = conn.Close()
		return fmt.Errorf("%w: session %s during connect", ErrInvalidState, state)
	}
	conn.SetReadLimit(s.opts.ReadLimit)
	s.conn = conn
	s.pending = true
	s.state = rtmsmodel.StateSubscribed
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()

	log.Info("connected to media stream")
	return nil
}

// Subscribe sends the subscription request and enters streaming without
// waiting for an acknowledgement.
func (s *Session) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	if s.state != rtmsmodel.StateSubscribed || s.conn == nil {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot subscribe while %s", ErrInvalidState, state)
	}
	conn := s.conn
	s.mu.Unlock()

	req := rtmsmodel.SubscribeRequest{Action: "subscribe", Streams: s.opts.Streams}

	deadline := time.Time{}
	if s.opts.WriteTimeout > 0 {
		deadline = time.Now().Add(s.opts.WriteTimeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	_ = conn.SetWriteDeadline(deadline)

	if err := conn.WriteJSON(req); err != nil {
		s.fail()
		return fmt.Errorf("send subscribe request: %w", err)
	}
	_ = conn.SetWriteDeadline(time.Time{})

	s.mu.Lock()
	if s.state == rtmsmodel.StateSubscribed {
		s.state = rtmsmodel.StateStreaming
	}
	s.mu.Unlock()

	kinds := make([]rtmsmodel.Kind, 0, len(req.Streams))
	for _, st := range req.Streams {
		kinds = append(kinds, st.Type)
	}
	s.logger.WithField("streams", kinds).Info("subscribed to media streams")
	return nil
}

// Run receives and dispatches messages one at a time until the peer closes,
// a message fails to decode, the transport fails, or ctx is cancelled.
// It returns nil when the session ends closed and an error when it ends
// errored. A session closed after Subscribe but before Run ends here as
// closed.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.state == rtmsmodel.StateClosed && s.pending {
		// Closed between Connect and Run; report the end here.
		s.pending = false
		listeners := append([]Listener(nil), s.listeners...)
		s.mu.Unlock()

		s.record(func(r Recorder) { r.RecordSessionStarted() })
		s.end(rtmsmodel.StateClosed, listeners)
		return nil
	}
	if s.state != rtmsmodel.StateStreaming || s.conn == nil {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("%w: cannot run while %s", ErrInvalidState, state)
	}
	conn := s.conn
	sink := s.sink
	listeners := append([]Listener(nil), s.listeners...)
	meetingID := s.meetingID
	s.pending = false
	s.mu.Unlock()

	s.record(func(r Recorder) { r.RecordSessionStarted() })

	// Closing the connection is the only way to interrupt a blocked read.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	log := s.logger.WithField("meeting_id", meetingID)

	for {
		if s.opts.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return s.endAfterReadError(ctx, err, listeners, log)
		}

		msg, err := DecodeMessage(data)
		if err != nil {
			s.record(func(r Recorder) { r.RecordDecodeFailure() })
			log.WithError(err).Error("error processing media stream data")
			s.end(rtmsmodel.StateErrored, listeners)
			return err
		}

		s.dispatch(ctx, msg, sink, listeners, log)
	}
}

// Close releases the connection. It is idempotent. An errored session stays
// errored; every other state becomes closed.
func (s *Session) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	if s.state != rtmsmodel.StateErrored {
		s.state = rtmsmodel.StateClosed
	}
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(closeGracePeriod),
	)
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close media stream: %w", err)
	}
	s.logger.Info("media stream connection closed")
	return nil
}

func (s *Session) dispatch(ctx context.Context, msg rtmsmodel.InboundMessage, sink FrameSink, listeners []Listener, log *logrus.Entry) {
	s.messages.Add(1)
	s.record(func(r Recorder) { r.RecordMessage(string(msg.Kind)) })

	event := rtmsmodel.Event{
		SessionID: s.id,
		MeetingID: s.MeetingID(),
		Kind:      msg.Kind,
		Timestamp: time.Now().UTC(),
	}

	switch msg.Kind {
	case rtmsmodel.KindVideo:
		s.frames.Add(1)
		event.Size = len(msg.Payload)
		log.Debugf("received video frame: %d bytes", len(msg.Payload))
		if sink != nil {
			_ = s.invokeSink(ctx, sink, msg.Payload, log)
		}
	case rtmsmodel.KindAudio:
		event.Size = len(msg.Payload)
		log.Debugf("received audio data: %d bytes", len(msg.Payload))
	case rtmsmodel.KindTranscript:
		event.Text = msg.Text
		log.Infof("received transcript: %s", msg.Text)
	case rtmsmodel.KindError:
		event.Text = msg.Text
		log.Errorf("media stream error: %s", msg.Text)
	default:
		log.Debugf("ignoring message without a known stream key: %s", string(msg.Raw))
		return
	}

	publish(listeners, event)
}

func (s *Session) invokeSink(ctx context.Context, sink FrameSink, payload []byte, log *logrus.Entry) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", ErrSink, r)
		}
		elapsed := time.Since(start).Seconds()
		s.record(func(rec Recorder) { rec.RecordSink(elapsed, err) })
		if err != nil {
			log.WithError(err).Error("video frame sink failed")
		}
	}()

	if sinkErr := sink(ctx, payload); sinkErr != nil {
		return fmt.Errorf("%w: %w", ErrSink, sinkErr)
	}
	return nil
}

func (s *Session) endAfterReadError(ctx context.Context, err error, listeners []Listener, log *logrus.Entry) error {
	switch {
	case ctx.Err() != nil:
		log.Info("media stream cancelled")
		s.end(rtmsmodel.StateClosed, listeners)
		return nil
	case s.State() == rtmsmodel.StateClosed:
		s.end(rtmsmodel.StateClosed, listeners)
		return nil
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
		log.Info("media stream connection closed by peer")
		s.end(rtmsmodel.StateClosed, listeners)
		return nil
	default:
		log.WithError(err).Error("media stream read failed")
		s.end(rtmsmodel.StateErrored, listeners)
		return fmt.Errorf("read media stream: %w", err)
	}
}

// end moves a streaming session to a terminal state and releases the
// connection. A state already set by Close wins.
func (s *Session) end(state rtmsmodel.State, listeners []Listener) {
	s.mu.Lock()
	if !s.state.Terminal() {
		s.state = state
	}
	final := s.state
	conn := s.conn
	s.conn = nil
	meetingID := s.meetingID
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}

	s.record(func(r Recorder) { r.RecordSessionEnded(string(final)) })
	publish(listeners, rtmsmodel.Event{
		SessionID: s.id,
		MeetingID: meetingID,
		Kind:      rtmsmodel.KindState,
		State:     final,
		Timestamp: time.Now().UTC(),
	})
}

// fail marks a non-terminal session errored and drops any connection.
func (s *Session) fail() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.pending = false
	if s.state != rtmsmodel.StateClosed {
		s.state = rtmsmodel.StateErrored
	}
	s.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
}

func (s *Session) record(fn func(Recorder)) {
	if s.opts.Recorder != nil {
		fn(s.opts.Recorder)
	}
}

func publish(listeners []Listener, ev rtmsmodel.Event) {
	for _, l := range listeners {
		l(ev)
	}
}
