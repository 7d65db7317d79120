package microphone

import (
	"time"

	"github.com/koscakluka/pitchlive/core/audio"
)

const DefaultChunkDuration = 100 * time.Millisecond

type Options struct {
	EncodingInfo audio.EncodingInfo
	// ChunkSize is the size in bytes of every emitted chunk.
	ChunkSize int

	// NoiseSuppression and EchoCancellation are requested from backends that
	// expose input processing. Backends without it ignore them.
	NoiseSuppression bool
	EchoCancellation bool
}

type Option func(*Options)

func defaultOptions() Options {
	info := audio.GetDefaultEncodingInfo()
	return Options{
		EncodingInfo:     info,
		ChunkSize:        chunkSizeFor(info, DefaultChunkDuration),
		NoiseSuppression: true,
		EchoCancellation: true,
	}
}

func WithEncodingInfo(info audio.EncodingInfo) Option {
	return func(o *Options) {
		if info.IsZero() {
			return
		}
		o.EncodingInfo = info
		o.ChunkSize = chunkSizeFor(info, DefaultChunkDuration)
	}
}

// WithChunkDuration sets the chunk size to the number of bytes that plays
// for d in the configured encoding.
func WithChunkDuration(d time.Duration) Option {
	return func(o *Options) {
		if size := chunkSizeFor(o.EncodingInfo, d); size > 0 {
			o.ChunkSize = size
		}
	}
}

func WithChunkSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.ChunkSize = size
		}
	}
}

func WithNoiseSuppression(enabled bool) Option {
	return func(o *Options) { o.NoiseSuppression = enabled }
}

func WithEchoCancellation(enabled bool) Option {
	return func(o *Options) { o.EchoCancellation = enabled }
}

func chunkSizeFor(info audio.EncodingInfo, d time.Duration) int {
	size := int(int64(info.BytesPerSecond()) * int64(d) / int64(time.Second))
	// keep whole samples
	if sampleSize := info.Format.ByteSize(); sampleSize > 1 {
		size -= size % sampleSize
	}
	return size
}
