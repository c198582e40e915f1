package streaming

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/zeipo-ai/voicegate/domain/entities"
	"github.com/zeipo-ai/voicegate/domain/repositories"
	"github.com/zeipo-ai/voicegate/internal/audio"
)

// passTimeout bounds a single inference call against the ASR collaborator.
const passTimeout = 30 * time.Second

// TranscriberConfig holds the per-session tuning of the processing loop.
type TranscriberConfig struct {
	SampleRate        int
	Language          string
	Model             string
	MinAudioDuration  time.Duration
	PassInterval      time.Duration
	MaxBufferDuration time.Duration
	StopTimeout       time.Duration
	ChunksPerPass     int
}

// Transcriber converts a continuous chunk stream into a sequence of
// incremental transcripts with bounded latency and memory. Chunks are fed by
// the session's I/O goroutine; inference passes run on a dedicated background
// goroutine so a slow ASR call never starves other sessions. Each pass
// reprocesses the entire current buffer: the ASR collaborator has no
// incremental-decoding API, so larger buffers buy rolling-transcript accuracy
// at the price of recomputation, bounded by the buffer cap.
type Transcriber struct {
	cfg      TranscriberConfig
	asr      repositories.Transcriber
	onResult func(entities.TranscriptResult)
	observe  func(time.Duration, error)
	logger   *zap.Logger

	buf        *audio.Buffer
	chunkCount atomic.Int64
	lastPassAt atomic.Int64 // chunk count at the previous pass

	stopped  atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
	stopOnce sync.Once
	finalCh  chan struct{}

	mu    sync.Mutex
	final entities.TranscriptResult
}

// NewTranscriber builds a transcriber and starts its processing loop.
// onResult is invoked from the background goroutine for every non-empty
// incremental result; observe, when non-nil, receives per-pass latency.
func NewTranscriber(
	cfg TranscriberConfig,
	asr repositories.Transcriber,
	onResult func(entities.TranscriptResult),
	observe func(time.Duration, error),
	logger *zap.Logger,
) *Transcriber {
	if cfg.ChunksPerPass <= 0 {
		cfg.ChunksPerPass = 1
	}
	t := &Transcriber{
		cfg:      cfg,
		asr:      asr,
		onResult: onResult,
		observe:  observe,
		logger:   logger,
		buf:      audio.NewBuffer(cfg.SampleRate, cfg.MaxBufferDuration),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
		finalCh:  make(chan struct{}),
	}
	go t.processLoop()
	return t
}

// AddChunk appends raw PCM16LE bytes to the rolling buffer. It is a no-op,
// not an error, after Stop: frames in flight at disconnect time race the
// teardown and must not blow up the read loop.
func (t *Transcriber) AddChunk(pcm []byte) {
	if t.stopped.Load() {
		return
	}
	t.buf.Append(pcm)
	t.chunkCount.Add(1)
}

// BufferedDuration reports how much audio is waiting for the next pass.
func (t *Transcriber) BufferedDuration() time.Duration {
	return t.buf.Duration()
}

// Stop signals the processing loop to exit, joins it with a bounded timeout,
// runs one final inference pass over the unflushed buffer, and returns the
// accumulated transcript. Safe to call more than once; later calls return
// the cached final result without re-invoking inference.
func (t *Transcriber) Stop() entities.TranscriptResult {
	t.stopOnce.Do(func() {
		t.stopped.Store(true)
		close(t.stopCh)

		select {
		case <-t.doneCh:
		case <-time.After(t.cfg.StopTimeout):
			// The loop is stuck inside an inference call. Abandon it;
			// any late result it produces is dropped by the stopped flag.
			t.logger.Warn("transcriber loop did not stop in time, abandoning",
				zap.Duration("timeout", t.cfg.StopTimeout))
		}

		final := t.finalPass()
		t.mu.Lock()
		t.final = final
		t.mu.Unlock()
		close(t.finalCh)
	})

	<-t.finalCh
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.final
}

func (t *Transcriber) processLoop() {
	defer close(t.doneCh)

	ticker := time.NewTicker(t.cfg.PassInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopCh:
			return
		case <-ticker.C:
			if !t.shouldFire() {
				continue
			}
			t.runPass()
		}
	}
}

// shouldFire paces inference: enough new chunks since the previous pass and
// enough buffered audio to be worth an ASR call.
func (t *Transcriber) shouldFire() bool {
	if t.buf.Duration() < t.cfg.MinAudioDuration {
		return false
	}
	return t.chunkCount.Load()-t.lastPassAt.Load() >= int64(t.cfg.ChunksPerPass)
}

func (t *Transcriber) runPass() {
	t.lastPassAt.Store(t.chunkCount.Load())

	samples := t.buf.Samples()

	ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
	defer cancel()

	start := time.Now()
	res, err := t.asr.Transcribe(ctx, samples, t.audioConfig())
	if t.observe != nil {
		t.observe(time.Since(start), err)
	}
	if err != nil {
		// Transient collaborator failure: skip this cycle's callback but
		// keep the session alive.
		t.logger.Warn("inference pass failed", zap.Error(err))
		return
	}

	text := strings.TrimSpace(res.Text)
	t.buf.TrimToLast(t.cfg.MaxBufferDuration)

	if t.stopped.Load() {
		// Teardown won the race while we were transcribing.
		return
	}
	if text == "" {
		return
	}
	t.onResult(entities.TranscriptResult{
		Text:     text,
		IsFinal:  false,
		Segments: nonNilSegments(res.Segments),
	})
}

// finalPass drains whatever is left in the buffer through one last
// inference call.
func (t *Transcriber) finalPass() entities.TranscriptResult {
	samples := t.buf.Samples()

	var res entities.TranscriptResult
	if len(samples) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), passTimeout)
		defer cancel()

		start := time.Now()
		var err error
		res, err = t.asr.Transcribe(ctx, samples, t.audioConfig())
		if t.observe != nil {
			t.observe(time.Since(start), err)
		}
		if err != nil {
			t.logger.Warn("final inference pass failed", zap.Error(err))
			res = entities.TranscriptResult{}
		}
	}

	return entities.TranscriptResult{
		Text:     strings.TrimSpace(res.Text),
		IsFinal:  true,
		Segments: nonNilSegments(res.Segments),
	}
}

func (t *Transcriber) audioConfig() repositories.AudioConfig {
	return repositories.AudioConfig{
		SampleRate: t.cfg.SampleRate,
		Language:   t.cfg.Language,
		Model:      t.cfg.Model,
	}
}

func nonNilSegments(segments []entities.TranscriptSegment) []entities.TranscriptSegment {
	if segments == nil {
		return []entities.TranscriptSegment{}
	}
	return segments
}
