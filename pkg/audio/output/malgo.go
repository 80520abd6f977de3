// ABOUTME: Malgo-based audio output implementation
// ABOUTME: The miniaudio device callback drives the source directly
package output

import (
	"fmt"
	"log"
	"sync"

	"github.com/gen2brain/malgo"
)

// Malgo output implementation using malgo/miniaudio library
type Malgo struct {
	*gain

	malgoCtx   *malgo.AllocatedContext
	device     *malgo.Device
	src        Source
	sampleRate int
	channels   int

	// Scratch buffer owned by the device callback
	scratch []float32
	mu      sync.Mutex
}

// NewMalgo creates a new Malgo output
func NewMalgo() *Malgo {
	return &Malgo{gain: newGain()}
}

// Open initializes the output device with specified format
func (m *Malgo) Open(sampleRate, channels int, src Source) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// If format changed, reinitialize
	if m.device != nil {
		log.Printf("Reopening device (%dHz/%dch -> %dHz/%dch)", m.sampleRate, m.channels, sampleRate, channels)
		m.closeDevice()
	}

	// Create malgo context if needed
	if m.malgoCtx == nil {
		ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
		if err != nil {
			return fmt.Errorf("failed to initialize malgo context: %w", err)
		}
		m.malgoCtx = ctx
	}

	m.src = src
	m.sampleRate = sampleRate
	m.channels = channels
	m.scratch = make([]float32, 1024*channels)

	// Configure device
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = uint32(channels)
	deviceConfig.SampleRate = uint32(sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	deviceCallbacks := malgo.DeviceCallbacks{
		Data: func(pOutputSample, pInputSamples []byte, frameCount uint32) {
			m.dataCallback(pOutputSample, frameCount)
		},
	}

	device, err := malgo.InitDevice(m.malgoCtx.Context, deviceConfig, deviceCallbacks)
	if err != nil {
		return fmt.Errorf("failed to initialize playback device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("failed to start device: %w", err)
	}

	m.device = device

	log.Printf("Audio output initialized: %dHz, %d channels (malgo/F32)", sampleRate, channels)

	return nil
}

// dataCallback is called by malgo to fill the audio output buffer
func (m *Malgo) dataCallback(pOutput []byte, frameCount uint32) {
	total := int(frameCount) * m.channels
	if total > len(m.scratch) {
		// Only when the backend changes its period size
		m.scratch = make([]float32, total)
	}
	samples := m.scratch[:total]

	m.src.Render(samples)
	m.gain.apply(samples)
	putFloats(pOutput, samples)
}

// Close releases output resources
func (m *Malgo) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeDevice()

	if m.malgoCtx != nil {
		if err := m.malgoCtx.Uninit(); err != nil {
			log.Printf("Warning: malgo context uninit error: %v", err)
		}
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}
	return nil
}

// closeDevice stops and uninitializes the device (must hold m.mu)
func (m *Malgo) closeDevice() {
	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.Printf("Warning: device stop error: %v", err)
		}
		m.device.Uninit()
		m.device = nil
	}
}
