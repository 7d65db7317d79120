package audio

const (
	DefaultSampleRate = 16000
	DefaultChannels   = 1
	DefaultFormat     = "linear16"
)

func GetDefaultEncodingInfo() EncodingInfo {
	return EncodingInfo{
		SampleRate: DefaultSampleRate,
		Channels:   DefaultChannels,
		Format:     encodingFormat(DefaultFormat),
	}
}

type EncodingInfo struct {
	SampleRate int
	Channels   int
	Format     encodingFormat
}

func (e EncodingInfo) IsZero() bool {
	return e.SampleRate == 0 || e.Format.Name() == ""
}

// BytesPerSecond returns how many bytes one second of audio takes in this
// encoding. Channels default to mono when unset.
func (e EncodingInfo) BytesPerSecond() int {
	channels := e.Channels
	if channels <= 0 {
		channels = 1
	}
	size := e.Format.ByteSize()
	if size <= 0 {
		return 0
	}
	return e.SampleRate * channels * size
}

// WireName is the encoding name used by the speech agent and the avatar
// render service.
func (e EncodingInfo) WireName() string {
	switch e.Format {
	case EncodingLinear16:
		return "pcm_s16le"
	case EncodingMulaw:
		return "ulaw"
	case EncodingALaw:
		return "alaw"
	}
	return e.Format.Name()
}

type encodingFormat string

func (e encodingFormat) Name() string {
	return string(e)
}

func (e encodingFormat) ByteSize() int {
	switch e {
	case encodingFormat("mulaw"), encodingFormat("alaw"):
		return 1
	case encodingFormat("linear16"):
		return 2
	}
	return -1
}

const (
	EncodingMulaw    encodingFormat = "mulaw"
	EncodingALaw     encodingFormat = "alaw"
	EncodingLinear16 encodingFormat = "linear16"
)
