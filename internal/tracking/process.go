package tracking

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	sendTimeout  = 2 * time.Second
	stopTimeout  = 2 * time.Second
	maxInFlight  = 8
	defaultJPEGQ = 80
)

// ProcessConfig describes the landmark worker subprocess.
type ProcessConfig struct {
	Command     string
	Args        []string
	JPEGQuality int
}

type frameRequest struct {
	Seq       uint64 `msgpack:"seq"`
	Width     int    `msgpack:"width"`
	Height    int    `msgpack:"height"`
	Timestamp string `msgpack:"timestamp"`
	FrameData []byte `msgpack:"frame_data"`
}

// ProcessDetector runs an external landmark model. Frames go to its stdin
// as length-prefixed msgpack JPEG requests; results come back on stdout in
// the same framing. Its stderr is forwarded to the log.
type ProcessDetector struct {
	cfg ProcessConfig
	log *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	writeMu  sync.Mutex
	seq      atomic.Uint64
	callback atomic.Pointer[func(Result)]

	mu       sync.Mutex
	inFlight map[uint64]image.Image

	closeOnce sync.Once
}

// StartProcessDetector spawns the worker. ctx bounds the process lifetime.
func StartProcessDetector(ctx context.Context, cfg ProcessConfig, log *slog.Logger) (*ProcessDetector, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("detector command is required")
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = defaultJPEGQ
	}
	d := &ProcessDetector{cfg: cfg, log: log, inFlight: make(map[uint64]image.Image)}
	d.ctx, d.cancel = context.WithCancel(ctx)

	d.cmd = exec.CommandContext(d.ctx, cfg.Command, cfg.Args...)
	var err error
	if d.stdin, err = d.cmd.StdinPipe(); err != nil {
		d.cancel()
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	if d.stdout, err = d.cmd.StdoutPipe(); err != nil {
		d.cancel()
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	if d.stderr, err = d.cmd.StderrPipe(); err != nil {
		d.cancel()
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := d.cmd.Start(); err != nil {
		d.cancel()
		return nil, fmt.Errorf("starting detector process: %w", err)
	}
	log.Info("detector process started", "command", cfg.Command, "pid", d.cmd.Process.Pid)

	d.wg.Add(3)
	go d.readResults()
	go d.logStderr()
	go d.waitProcess()
	return d, nil
}

// OnResult sets the result callback; nil detaches it.
func (d *ProcessDetector) OnResult(fn func(Result)) {
	if fn == nil {
		d.callback.Store(nil)
		return
	}
	d.callback.Store(&fn)
}

// Send encodes img and writes it to the worker.
func (d *ProcessDetector) Send(ctx context.Context, img image.Image) error {
	if d.ctx.Err() != nil {
		return fmt.Errorf("detector stopped")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: d.cfg.JPEGQuality}); err != nil {
		return fmt.Errorf("encoding frame: %w", err)
	}
	b := img.Bounds()
	req := frameRequest{
		Seq:       d.seq.Add(1),
		Width:     b.Dx(),
		Height:    b.Dy(),
		Timestamp: time.Now().Format(time.RFC3339Nano),
		FrameData: buf.Bytes(),
	}
	d.track(req.Seq, img)

	done := make(chan error, 1)
	go func() {
		d.writeMu.Lock()
		defer d.writeMu.Unlock()
		done <- writeMessage(d.stdin, req)
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(sendTimeout):
		return fmt.Errorf("detector stdin write timed out")
	case <-ctx.Done():
		return ctx.Err()
	case <-d.ctx.Done():
		return fmt.Errorf("detector stopped during write")
	}
}

// track remembers the image sent under seq so the result can carry it.
func (d *ProcessDetector) track(seq uint64, img image.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFlight[seq] = img
	if len(d.inFlight) > maxInFlight {
		for s := range d.inFlight {
			if s+maxInFlight <= seq {
				delete(d.inFlight, s)
			}
		}
	}
}

func (d *ProcessDetector) take(seq uint64) image.Image {
	d.mu.Lock()
	defer d.mu.Unlock()
	img := d.inFlight[seq]
	delete(d.inFlight, seq)
	return img
}

func (d *ProcessDetector) readResults() {
	defer d.wg.Done()
	for {
		var r Result
		err := readMessage(d.stdout, &r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, os.ErrClosed) || d.ctx.Err() != nil {
				d.log.Debug("detector stdout closed")
				return
			}
			if errors.Is(err, errMalformedMessage) {
				d.log.Warn("skipping malformed detector result", "error", err)
				continue
			}
			d.log.Error("reading detector result", "error", err)
			return
		}
		r.At = time.Now()
		r.Image = d.take(r.Seq)
		if fn := d.callback.Load(); fn != nil {
			(*fn)(r)
		}
	}
}

func (d *ProcessDetector) logStderr() {
	defer d.wg.Done()
	scanner := bufio.NewScanner(d.stderr)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "[ERROR]"), strings.Contains(line, "[CRITICAL]"):
			d.log.Error("detector error", "log", line)
		case strings.Contains(line, "[WARNING]"), strings.Contains(line, "[WARN]"):
			d.log.Warn("detector warning", "log", line)
		default:
			d.log.Debug("detector log", "log", line)
		}
	}
}

func (d *ProcessDetector) waitProcess() {
	defer d.wg.Done()
	err := d.cmd.Wait()
	switch {
	case d.ctx.Err() != nil:
		d.log.Debug("detector process exited", "pid", d.cmd.Process.Pid)
	case err != nil:
		d.log.Error("detector process exited unexpectedly", "pid", d.cmd.Process.Pid, "error", err)
	default:
		d.log.Info("detector process exited", "pid", d.cmd.Process.Pid)
	}
}

// Close stops the worker, killing it if it does not exit in time.
func (d *ProcessDetector) Close() error {
	d.closeOnce.Do(func() {
		d.callback.Store(nil)
		d.stdin.Close()

		done := make(chan struct{})
		go func() {
			d.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(stopTimeout):
			d.log.Warn("detector did not exit, killing")
		}
		d.cancel()
		<-done
	})
	return nil
}
