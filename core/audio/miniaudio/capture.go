package miniaudio

import (
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/pitchlive/core/audio"
)

type captureClient struct {
	audioContext *malgo.AllocatedContext
	device       *malgo.Device
	config       malgo.DeviceConfig

	onAudio   func(audio []byte)
	onAudioMu sync.Mutex

	mu sync.Mutex
}

func (c *captureClient) Init(audioContext *malgo.AllocatedContext, info audio.EncodingInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	channels := info.Channels
	format := malgo.FormatS16
	bytesPerFrame := malgo.SampleSizeInBytes(format) * channels

	c.config = malgo.DefaultDeviceConfig(malgo.Capture)
	c.config.SampleRate = uint32(info.SampleRate)
	c.config.Capture.Format = format
	c.config.Capture.Channels = uint32(channels)
	c.config.Alsa.NoMMap = 1
	c.config.PerformanceProfile = malgo.LowLatency
	c.config.PeriodSizeInFrames = uint32(info.SampleRate / 100) // 10ms periods
	c.config.Periods = 3

	c.audioContext = audioContext

	var err error
	c.device, err = malgo.InitDevice(c.audioContext.Context, c.config, malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, frameCount uint32) {
			n := int(frameCount) * bytesPerFrame
			if len(pInput) < n || n == 0 {
				return
			}

			c.onAudioMu.Lock()
			defer c.onAudioMu.Unlock()
			if c.onAudio != nil {
				// malgo reuses the input buffer between callbacks
				frame := make([]byte, n)
				copy(frame, pInput[:n])
				c.onAudio(frame)
			}
		},
	})
	if err != nil {
		return fmt.Errorf("failed to initialize capture device: %w", err)
	}

	return nil
}

func (c *captureClient) Start(onAudio func(audio []byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.device == nil {
		return fmt.Errorf("device not initialized")
	} else if c.device.IsStarted() {
		return nil
	}

	c.onAudioMu.Lock()
	c.onAudio = onAudio
	c.onAudioMu.Unlock()

	if err := c.device.Start(); err != nil {
		c.detach()
		return fmt.Errorf("failed to start capture device: %w", err)
	}

	return nil
}

func (c *captureClient) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// The listener goes first so a frame that is already in the data
	// callback cannot be delivered after Stop returns.
	c.detach()

	if c.device == nil || !c.device.IsStarted() {
		return nil
	}

	if err := c.device.Stop(); err != nil {
		return fmt.Errorf("failed to stop device: %w", err)
	}
	return nil
}

func (c *captureClient) Uninit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.detach()
	if c.device != nil {
		c.device.Uninit()
		c.device = nil
	}
	return nil
}

func (c *captureClient) detach() {
	c.onAudioMu.Lock()
	c.onAudio = nil
	c.onAudioMu.Unlock()
}
