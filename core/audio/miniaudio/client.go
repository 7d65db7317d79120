package miniaudio

import (
	"context"
	"fmt"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/koscakluka/pitchlive/core/audio"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
	encodingInfo audio.EncodingInfo
	playbackClient
	captureClient
}

// NewClient allocates the miniaudio context and prepares the capture device.
// The playback device is only initialized once StartPlayback is called.
func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) { logger.Debug("malgo", "message", message) },
	)
	if err != nil {
		return nil, fmt.Errorf("malgo InitContext failed: %w", err)
	}

	client := Client{
		audioContext: audioCtx,
		encodingInfo: audio.GetDefaultEncodingInfo(),
	}

	if err := client.captureClient.Init(audioCtx, client.encodingInfo); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to initialize capture client: %w", err)
	}

	return &client, nil
}

func (c *Client) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	return c.captureClient.Start(onAudio)
}

func (c *Client) StopCapture() error {
	return c.captureClient.Stop()
}

func (c *Client) StartPlayback(_ context.Context) error {
	if err := c.playbackClient.Init(c.audioContext, c.encodingInfo); err != nil {
		return fmt.Errorf("failed to initialize playback client: %w", err)
	}
	return c.playbackClient.Start()
}

func (c *Client) StopPlayback() error {
	if err := c.playbackClient.Stop(); err != nil {
		return err
	}
	return c.playbackClient.Uninit()
}

func (c *Client) Close() {
	_ = c.captureClient.Uninit()
	_ = c.playbackClient.Uninit()
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}

func (c *Client) SendAudio(audio []byte) error {
	return c.playbackClient.SendAudio(audio)
}

func (c *Client) ClearBuffer() {
	c.playbackClient.ClearBuffer()
}

// PlayedDuration is the amount of audio the playback device has consumed
// since it was started. It serves as the output clock for scheduling.
func (c *Client) PlayedDuration() time.Duration {
	frames := c.playbackClient.PlayedFrames()
	return time.Duration(frames) * time.Second / time.Duration(c.encodingInfo.SampleRate)
}

func (c *Client) EncodingInfo() audio.EncodingInfo {
	return c.encodingInfo
}
