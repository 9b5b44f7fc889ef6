package tracking

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"strconv"
	"sync"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// CameraConfig describes an ffmpeg capture input.
type CameraConfig struct {
	// Input is the ffmpeg input, e.g. /dev/video0 or an RTSP URL.
	Input string
	// Format is the ffmpeg input format, e.g. v4l2. Empty lets ffmpeg probe.
	Format    string
	Width     int
	Height    int
	FrameRate int
}

// Camera is a Device reading raw RGB frames from an ffmpeg pipeline.
type Camera struct {
	width, height int
	r             io.ReadCloser
	frame         []byte

	mu        sync.Mutex
	closeOnce sync.Once
}

// OpenCamera starts ffmpeg scaling the input to the configured size.
func OpenCamera(cfg CameraConfig, log *slog.Logger) (*Camera, error) {
	if cfg.Input == "" {
		return nil, fmt.Errorf("camera input is required")
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("camera size %dx%d is invalid", cfg.Width, cfg.Height)
	}

	in := ffmpeg.KwArgs{}
	if cfg.Format != "" {
		in["f"] = cfg.Format
	}
	if cfg.FrameRate > 0 {
		in["framerate"] = strconv.Itoa(cfg.FrameRate)
	}

	pr, pw := io.Pipe()
	c := newCamera(pr, cfg.Width, cfg.Height)
	go func() {
		err := ffmpeg.Input(cfg.Input, in).
			Output("pipe:", ffmpeg.KwArgs{
				"format":  "rawvideo",
				"pix_fmt": "rgba",
				"s":       fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
			}).
			WithOutput(pw).
			Run()
		if err != nil {
			log.Warn("camera pipeline stopped", "input", cfg.Input, "error", err)
		}
		pw.CloseWithError(ErrDeviceClosed)
	}()
	log.Info("camera started", "input", cfg.Input, "width", cfg.Width, "height", cfg.Height)
	return c, nil
}

func newCamera(r io.ReadCloser, width, height int) *Camera {
	return &Camera{
		width:  width,
		height: height,
		r:      r,
		frame:  make([]byte, width*height*4),
	}
}

// Next blocks until a whole frame has been read.
func (c *Camera) Next(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := io.ReadFull(c.r, c.frame); err != nil {
		if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrDeviceClosed
		}
		return nil, fmt.Errorf("reading camera frame: %w", err)
	}
	img := image.NewRGBA(image.Rect(0, 0, c.width, c.height))
	copy(img.Pix, c.frame)
	return img, nil
}

// Close stops reading. ffmpeg exits on its next write to the closed pipe.
func (c *Camera) Close() error {
	c.closeOnce.Do(func() { c.r.Close() })
	return nil
}
