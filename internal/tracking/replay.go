package tracking

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/claude/romkiosk/internal/models"
)

// replayRecord is one line of a recorded landmark session.
type replayRecord struct {
	OffsetMS      int64           `json:"offsetMs"`
	PoseLandmarks models.Frame    `json:"poseLandmarks"`
	Hands         []HandDetection `json:"hands,omitempty"`
}

// Replay plays back a recorded JSON-lines landmark session at its recorded
// timing. It is both the device and the detector: Next paces the frames
// and Send emits the landmarks recorded for the last paced frame.
type Replay struct {
	records []replayRecord
	loop    bool
	blank   *image.RGBA

	mu     sync.Mutex
	next   int
	cursor int
	start  time.Time

	callback  atomic.Pointer[func(Result)]
	closed    chan struct{}
	closeOnce sync.Once
}

// OpenReplay loads a recording from path.
func OpenReplay(path string, loop bool, width, height int) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening replay file: %w", err)
	}
	defer f.Close()
	return NewReplay(f, loop, width, height)
}

// NewReplay parses a recording. Blank lines are skipped.
func NewReplay(r io.Reader, loop bool, width, height int) (*Replay, error) {
	var records []replayRecord
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4<<20)
	line := 0
	for scanner.Scan() {
		line++
		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}
		var rec replayRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return nil, fmt.Errorf("replay line %d: %w", line, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading replay: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("replay has no frames")
	}
	if width <= 0 || height <= 0 {
		width, height = 640, 480
	}
	blank := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(blank, blank.Bounds(), image.NewUniform(color.RGBA{R: 24, G: 24, B: 24, A: 255}), image.Point{}, draw.Src)
	return &Replay{records: records, loop: loop, blank: blank, cursor: -1, closed: make(chan struct{})}, nil
}

// Len is the number of recorded frames.
func (p *Replay) Len() int { return len(p.records) }

// Next waits for the next recorded frame time and returns a blank image.
func (p *Replay) Next(ctx context.Context) (image.Image, error) {
	p.mu.Lock()
	if p.next >= len(p.records) {
		if !p.loop {
			p.mu.Unlock()
			return nil, ErrDeviceClosed
		}
		p.next = 0
		p.start = time.Time{}
	}
	if p.start.IsZero() {
		p.start = time.Now().Add(-time.Duration(p.records[p.next].OffsetMS) * time.Millisecond)
	}
	idx := p.next
	due := p.start.Add(time.Duration(p.records[idx].OffsetMS) * time.Millisecond)
	p.next++
	p.mu.Unlock()

	timer := time.NewTimer(time.Until(due))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, ErrDeviceClosed
	case <-timer.C:
	}

	p.mu.Lock()
	p.cursor = idx
	p.mu.Unlock()
	return p.blank, nil
}

// Send emits the landmarks recorded for the frame last returned by Next.
func (p *Replay) Send(_ context.Context, img image.Image) error {
	p.mu.Lock()
	idx := p.cursor
	p.mu.Unlock()
	if idx < 0 {
		return fmt.Errorf("replay: send before next")
	}
	rec := p.records[idx]
	fn := p.callback.Load()
	if fn == nil {
		return nil
	}
	(*fn)(Result{
		Seq:           uint64(idx),
		PoseLandmarks: rec.PoseLandmarks.Clone(),
		Hands:         rec.Hands,
		Image:         img,
		At:            time.Now(),
	})
	return nil
}

// OnResult sets the result callback; nil detaches it.
func (p *Replay) OnResult(fn func(Result)) {
	if fn == nil {
		p.callback.Store(nil)
		return
	}
	p.callback.Store(&fn)
}

// Close ends playback; a blocked Next returns ErrDeviceClosed.
func (p *Replay) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// Recorder writes results in the format Replay reads.
type Recorder struct {
	mu    sync.Mutex
	enc   *json.Encoder
	start time.Time
}

// NewRecorder returns a recorder writing one JSON line per result to w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{enc: json.NewEncoder(w)}
}

// Record appends r, timed relative to the first recorded result.
func (rc *Recorder) Record(r Result) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	at := r.At
	if at.IsZero() {
		at = time.Now()
	}
	if rc.start.IsZero() {
		rc.start = at
	}
	return rc.enc.Encode(replayRecord{
		OffsetMS:      at.Sub(rc.start).Milliseconds(),
		PoseLandmarks: r.PoseLandmarks,
		Hands:         r.Hands,
	})
}
