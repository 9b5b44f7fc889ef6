package tracking

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"io"
	"testing"
)

// TestCameraFrames verifies raw RGBA frames are split at frame boundaries
// and the end of the stream closes the device.
func TestCameraFrames(t *testing.T) {
	const w, h = 2, 2
	raw := make([]byte, 2*w*h*4)
	for i := range w * h {
		copy(raw[i*4:], []byte{255, 0, 0, 255})
		copy(raw[(w*h+i)*4:], []byte{0, 0, 255, 255})
	}
	c := newCamera(io.NopCloser(bytes.NewReader(raw)), w, h)

	img, err := c.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := color.RGBAModel.Convert(img.At(1, 1)).(color.RGBA); got != (color.RGBA{R: 255, A: 255}) {
		t.Errorf("first frame pixel = %v, want red", got)
	}
	img, err = c.Next(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA); got != (color.RGBA{B: 255, A: 255}) {
		t.Errorf("second frame pixel = %v, want blue", got)
	}

	if _, err := c.Next(context.Background()); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("after end of stream err = %v, want ErrDeviceClosed", err)
	}
}

// TestCameraClose verifies a closed camera reports ErrDeviceClosed.
func TestCameraClose(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	c := newCamera(pr, 1, 1)
	c.Close()
	if _, err := c.Next(context.Background()); !errors.Is(err, ErrDeviceClosed) {
		t.Errorf("err = %v, want ErrDeviceClosed", err)
	}
}

// TestOpenCameraValidation verifies configuration errors.
func TestOpenCameraValidation(t *testing.T) {
	if _, err := OpenCamera(CameraConfig{Width: 10, Height: 10}, discardLogger()); err == nil {
		t.Error("expected error without input")
	}
	if _, err := OpenCamera(CameraConfig{Input: "/dev/video0"}, discardLogger()); err == nil {
		t.Error("expected error without size")
	}
}
