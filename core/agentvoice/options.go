package agentvoice

import (
	"net/http"
	"time"
)

const (
	DefaultBaseURL        = "wss://api.elevenlabs.io/v1/convai/conversation"
	DefaultConnectTimeout = 10 * time.Second
	DefaultGreetingPrompt = "Hello!"
	defaultWriteTimeout   = 5 * time.Second
)

// Callbacks are invoked from the connection's read goroutine, one at a time
// and in arrival order. Unset callbacks are ignored.
type Callbacks struct {
	OnReady                   func()
	OnAudio                   func(chunk Chunk)
	OnUserTranscript          func(text string)
	OnAgentResponse           func(text string)
	OnAgentResponseCorrection func(original, corrected string)
	OnInterrupt               func(eventID int)
	OnConversationInit        func(conversationID string)
	OnError                   func(err error)
	OnDisconnect              func()
}

type Options struct {
	BaseURL        string
	Header         http.Header
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	StartMuted     bool
	GreetingPrompt string
}

type Option func(*Options)

func WithBaseURL(url string) Option {
	return func(o *Options) {
		o.BaseURL = url
	}
}

// WithHeader adds headers to the websocket handshake, e.g. an API key for
// private agents.
func WithHeader(header http.Header) Option {
	return func(o *Options) {
		o.Header = header
	}
}

func WithConnectTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.ConnectTimeout = timeout
	}
}

func WithWriteTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		o.WriteTimeout = timeout
	}
}

func WithStartMuted(muted bool) Option {
	return func(o *Options) {
		o.StartMuted = muted
	}
}

func WithGreetingPrompt(prompt string) Option {
	return func(o *Options) {
		o.GreetingPrompt = prompt
	}
}

func defaultOptions() Options {
	return Options{
		BaseURL:        DefaultBaseURL,
		ConnectTimeout: DefaultConnectTimeout,
		WriteTimeout:   defaultWriteTimeout,
		GreetingPrompt: DefaultGreetingPrompt,
	}
}
