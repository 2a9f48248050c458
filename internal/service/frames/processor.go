package frames

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "image/gif"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/zhouzirui/zoom-rtms/backend/internal/config"
	applog "github.com/zhouzirui/zoom-rtms/backend/pkg/log"
)

const (
	filePrefix   = "frame"
	jpegQuality  = 90
	defaultStats = 5 * time.Second
)

// Stats summarises processor activity.
type Stats struct {
	Saved   int64   `json:"saved"`
	Skipped int64   `json:"skipped"`
	FPS     float64 `json:"fps"`
}

// VideoProcessor writes decodable video frames to disk as grayscale JPEGs.
// Image formats the standard decoders do not know are stored as received.
type VideoProcessor struct {
	outputDir     string
	statsInterval time.Duration
	logger        *logrus.Entry
	now           func() time.Time

	mu           sync.Mutex
	frameCount   int64
	skipped      int64
	windowStart  time.Time
	windowFrames int
	fps          float64
}

// NewVideoProcessor creates the output directory and returns a processor.
func NewVideoProcessor(cfg config.FramesConfig) (*VideoProcessor, error) {
	dir := cfg.OutputDir
	if dir == "" {
		dir = "video_output"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create frame output dir: %w", err)
	}

	interval := cfg.StatsInterval
	if interval <= 0 {
		interval = defaultStats
	}

	return &VideoProcessor{
		outputDir:     dir,
		statsInterval: interval,
		logger:        applog.WithComponent("frames").WithField("output_dir", dir),
		now:           time.Now,
	}, nil
}

// ProcessFrame is a FrameSink. Non-image payloads are logged and skipped;
// only failures to persist a frame are returned.
func (p *VideoProcessor) ProcessFrame(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data := decodePayload(payload)
	mtype := mimetype.Detect(data)
	if !isImage(mtype) {
		p.mu.Lock()
		p.skipped++
		p.mu.Unlock()
		p.logger.WithField("mime", mtype.String()).Warn("failed to decode frame")
		return nil
	}

	encoded, ext, err := grayscale(data, mtype)
	if err != nil {
		p.mu.Lock()
		p.skipped++
		p.mu.Unlock()
		p.logger.WithError(err).WithField("mime", mtype.String()).Warn("failed to decode frame")
		return nil
	}

	path, err := p.save(encoded, ext)
	if err != nil {
		return err
	}
	p.logger.Debugf("saved frame %s", path)
	return nil
}

// Stats returns counters and the last measured frame rate.
func (p *VideoProcessor) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Saved: p.frameCount, Skipped: p.skipped, FPS: p.fps}
}

func (p *VideoProcessor) save(data []byte, ext string) (string, error) {
	now := p.now()

	p.mu.Lock()
	n := p.frameCount
	p.frameCount++
	p.mu.Unlock()

	name := fmt.Sprintf("%s_%s_%d%s", filePrefix, now.Format("20060102_150405"), n, ext)
	path := filepath.Join(p.outputDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		p.mu.Lock()
		p.frameCount--
		p.mu.Unlock()
		return "", fmt.Errorf("write frame %s: %w", name, err)
	}

	p.tick(now)
	return path, nil
}

// tick updates the frame rate window and logs it once per interval.
func (p *VideoProcessor) tick(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.windowStart.IsZero() {
		p.windowStart = now
	}
	p.windowFrames++

	elapsed := now.Sub(p.windowStart)
	if elapsed <= p.statsInterval {
		return
	}
	p.fps = float64(p.windowFrames) / elapsed.Seconds()
	p.logger.Infof("processing at %.2f FPS", p.fps)
	p.windowStart = now
	p.windowFrames = 0
}

// decodePayload treats the payload as base64 and falls back to raw bytes.
func decodePayload(payload []byte) []byte {
	trimmed := bytes.TrimSpace(payload)
	decoded := make([]byte, base64.StdEncoding.DecodedLen(len(trimmed)))
	n, err := base64.StdEncoding.Decode(decoded, trimmed)
	if err != nil || n == 0 {
		return payload
	}
	return decoded[:n]
}

func isImage(mtype *mimetype.MIME) bool {
	return strings.HasPrefix(mtype.String(), "image/")
}

// grayscale re-encodes formats known to image.Decode; others pass through.
func grayscale(data []byte, mtype *mimetype.MIME) ([]byte, string, error) {
	if !mtype.Is("image/jpeg") && !mtype.Is("image/png") && !mtype.Is("image/gif") {
		return data, mtype.Extension(), nil
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", err
	}

	gray := image.NewGray(img.Bounds())
	draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gray, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, "", fmt.Errorf("encode frame: %w", err)
	}
	return buf.Bytes(), ".jpg", nil
}
