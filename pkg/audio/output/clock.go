// ABOUTME: Clock-driven null output
// ABOUTME: Pulls from the source on a ticker and discards or taps the audio
package output

import (
	"fmt"
	"log"
	"sync"
	"time"
)

// ClockConfig configures a Clock output
type ClockConfig struct {
	// FramesPerCallback is the pull size (default 128)
	FramesPerCallback int

	// Period overrides the real-time callback interval. Zero means
	// FramesPerCallback / sampleRate.
	Period time.Duration

	// Tap receives each rendered block after gain. It runs on the clock goroutine.
	Tap func(samples []float32)
}

// Clock is an output with no device. It runs the render cadence on its own
// goroutine, which makes it usable headless and in tests.
type Clock struct {
	*gain

	config ClockConfig
	stop   chan struct{}
	done   chan struct{}
	mu     sync.Mutex
}

// NewClock creates a clock output
func NewClock(config ClockConfig) *Clock {
	if config.FramesPerCallback <= 0 {
		config.FramesPerCallback = 128
	}
	return &Clock{config: config, gain: newGain()}
}

// Open starts pulling from src
func (c *Clock) Open(sampleRate, channels int, src Source) error {
	if sampleRate <= 0 || channels <= 0 {
		return fmt.Errorf("invalid clock format: %dHz %dch", sampleRate, channels)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	period := c.config.Period
	if period <= 0 {
		period = time.Duration(c.config.FramesPerCallback) * time.Second / time.Duration(sampleRate)
	}

	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	go c.run(src, make([]float32, c.config.FramesPerCallback*channels), period, c.stop, c.done)

	log.Printf("Audio output initialized: %dHz, %d channels (clock, %v period)", sampleRate, channels, period)
	return nil
}

func (c *Clock) run(src Source, buf []float32, period time.Duration, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			src.Render(buf)
			c.gain.apply(buf)
			if c.config.Tap != nil {
				c.config.Tap(buf)
			}
		}
	}
}

// Close stops the clock and waits for the last callback to finish
func (c *Clock) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	return nil
}

func (c *Clock) stopLocked() {
	if c.stop == nil {
		return
	}
	close(c.stop)
	<-c.done
	c.stop = nil
	c.done = nil
}
