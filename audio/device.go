package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
)

// Source is an open input device producing interleaved little-endian
// float32 samples at SampleRate. Closing it releases the device.
type Source interface {
	io.ReadCloser
	Channels() int
}

type Device interface {
	Open(ctx context.Context) (Source, error)
}

// FFmpegDevice reads the default system microphone through ffmpeg.
type FFmpegDevice struct {
	Input    string
	Channels int
}

func NewFFmpegDevice(input string, channels int) *FFmpegDevice {
	if channels < 1 {
		channels = 1
	}
	return &FFmpegDevice{Input: input, Channels: channels}
}

func (d *FFmpegDevice) Open(ctx context.Context) (Source, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: ffmpeg is required for microphone capture", ErrDeviceUnavailable)
	}
	args, err := ffmpegArgs(runtime.GOOS, d.Input, d.Channels)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: start ffmpeg: %v", ErrDeviceUnavailable, err)
	}
	return &ffmpegSource{cmd: cmd, stdout: stdout, channels: d.Channels}, nil
}

func ffmpegArgs(goos, input string, channels int) ([]string, error) {
	var format string
	switch goos {
	case "darwin":
		format = "avfoundation"
		if input == "" {
			input = ":0"
		}
	case "linux":
		format = "pulse"
		if input == "" {
			input = "default"
		}
	default:
		return nil, errors.New("microphone capture is not implemented for " + goos)
	}
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-f", format, "-i", input,
		"-ac", fmt.Sprintf("%d", channels),
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-f", "f32le", "-",
	}, nil
}

type ffmpegSource struct {
	cmd      *exec.Cmd
	stdout   io.ReadCloser
	channels int
}

func (s *ffmpegSource) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

func (s *ffmpegSource) Channels() int {
	return s.channels
}

func (s *ffmpegSource) Close() error {
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
		_ = s.cmd.Wait()
	}
	return nil
}
