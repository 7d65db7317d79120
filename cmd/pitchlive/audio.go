package main

import (
	"fmt"

	"github.com/koscakluka/pitchlive/core/audio"
	"github.com/koscakluka/pitchlive/core/audio/miniaudio"
	"github.com/koscakluka/pitchlive/core/audio/portaudio"
	"github.com/koscakluka/pitchlive/core/microphone"
	"github.com/koscakluka/pitchlive/core/playback"
	"github.com/koscakluka/pitchlive/internal/config"
)

// portaudioFrames is 20ms of audio at the default sample rate.
const portaudioFrames = audio.DefaultSampleRate / 50

type audioDevices struct {
	capture  microphone.Device
	playback playback.Device
	closers  []func()
}

func openAudio(backend string) (*audioDevices, error) {
	out, err := miniaudio.NewClient()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", microphone.ErrDeviceUnavailable, err)
	}
	devices := &audioDevices{capture: out, playback: out, closers: []func(){out.Close}}

	if backend == config.AudioBackendPortaudio {
		in, err := portaudio.NewClient(portaudioFrames)
		if err != nil {
			devices.Close()
			return nil, fmt.Errorf("%w: %v", microphone.ErrDeviceUnavailable, err)
		}
		devices.capture = in
		devices.closers = append(devices.closers, in.Close)
	}
	return devices, nil
}

func (d *audioDevices) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}
