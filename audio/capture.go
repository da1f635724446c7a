package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/log"
)

var (
	ErrDeviceUnavailable = errors.New("audio input device unavailable")
	ErrBusy              = errors.New("audio capture already running")
)

// Capture slices a live input device into Frames. One capture owns at
// most one open device at a time; Stop releases it.
type Capture struct {
	device Device
	logger *log.Logger

	mu     sync.Mutex
	source Source
	stop   chan struct{}
	done   chan struct{}
	err    error
}

func NewCapture(device Device, logger *log.Logger) *Capture {
	return &Capture{device: device, logger: logger}
}

// Start opens the device and returns the frame stream. The stream is
// closed after Stop, or earlier if the input ends, in which case Err
// reports why. Stop must still be called to release the device.
func (c *Capture) Start(ctx context.Context) (<-chan Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.source != nil {
		return nil, ErrBusy
	}

	src, err := c.device.Open(ctx)
	if err != nil {
		if !errors.Is(err, ErrDeviceUnavailable) {
			err = fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return nil, err
	}

	c.source = src
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.err = nil

	frames := make(chan Frame)
	go c.produce(src, c.stop, c.done, frames)

	c.logger.Debug("capture started", "channels", src.Channels())
	return frames, nil
}

func (c *Capture) produce(
	src Source,
	stop <-chan struct{},
	done chan<- struct{},
	out chan<- Frame,
) {
	defer close(done)
	defer close(out)

	channels := src.Channels()
	if channels < 1 {
		channels = 1
	}
	buf := make([]byte, FrameSamples*channels*4)

	var seq uint64
	for {
		if _, err := io.ReadFull(src, buf); err != nil {
			select {
			case <-stop:
			default:
				c.setErr(fmt.Errorf("%w: input ended: %v", ErrDeviceUnavailable, err))
			}
			return
		}

		frame := EncodeFrame(seq, Downmix(decodeFloat32(buf), channels))

		select {
		case <-stop:
			return
		default:
		}

		select {
		case out <- frame:
			seq++
		case <-stop:
			return
		}
	}
}

// Stop releases the device and terminates the frame stream. It is a
// no-op when the capture is not running.
func (c *Capture) Stop() error {
	c.mu.Lock()
	src, stop, done := c.source, c.stop, c.done
	c.source = nil
	c.mu.Unlock()

	if src == nil {
		return nil
	}

	close(stop)
	err := src.Close()
	<-done

	c.logger.Debug("capture stopped")
	return err
}

func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Capture) setErr(err error) {
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	c.logger.Warn("capture input ended", "error", err)
}
