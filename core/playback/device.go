package playback

import (
	"context"
	"time"
)

// Device is the subset of an audio client that can play PCM.
type Device interface {
	StartPlayback(ctx context.Context) error
	StopPlayback() error
	SendAudio(pcm []byte) error
	ClearBuffer()
	PlayedDuration() time.Duration
}

// DeviceSink plays through an audio device and reports the device's
// consumed duration as the output clock.
type DeviceSink struct {
	device Device
}

func NewDeviceSink(device Device) *DeviceSink {
	return &DeviceSink{device: device}
}

func (s *DeviceSink) Open(ctx context.Context) error {
	return s.device.StartPlayback(ctx)
}

func (s *DeviceSink) Write(pcm []byte) error {
	return s.device.SendAudio(pcm)
}

func (s *DeviceSink) Close() error {
	s.device.ClearBuffer()
	return s.device.StopPlayback()
}

func (s *DeviceSink) Now() time.Duration {
	return s.device.PlayedDuration()
}

// NewDevicePlayer builds a player whose sink and clock are the same device.
func NewDevicePlayer(device Device, opts ...PlayerOption) *Player {
	sink := NewDeviceSink(device)
	return NewPlayer(sink, sink, opts...)
}
