package audio

import (
	"encoding/base64"
	"errors"
	"fmt"
	"time"
)

var ErrOddPCMLength = errors.New("pcm16 payload has an odd number of bytes")

// Duration reports how long the given PCM payload plays for.
func (e EncodingInfo) Duration(pcm []byte) time.Duration {
	bps := e.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(len(pcm)) * time.Second / time.Duration(bps)
}

// EncodeChunk base64-encodes a raw audio chunk for JSON transport.
func EncodeChunk(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeChunk decodes a base64 audio chunk. Unpadded and URL-safe payloads
// are accepted as well since not every upstream pads its output.
func DecodeChunk(b64 string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		if decoded, err := enc.DecodeString(b64); err == nil {
			return decoded, nil
		}
	}
	return nil, fmt.Errorf("invalid base64 audio chunk")
}
