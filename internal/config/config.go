// Package config reads pitchlive settings from the environment after loading
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/koscakluka/pitchlive/core/agentvoice"
	"github.com/koscakluka/pitchlive/core/avatar"
	"github.com/koscakluka/pitchlive/core/orchestration"
)

const (
	AudioBackendMiniaudio = "miniaudio"
	AudioBackendPortaudio = "portaudio"

	DefaultPitchdAddr = ":8080"
)

var ErrInvalid = errors.New("invalid configuration")

// agentEnv maps stage ids to the variable holding that stage's agent id.
var agentEnv = map[string]string{
	"mom":         "ELEVENLABS_AGENT_MOM",
	"local-angel": "ELEVENLABS_AGENT_ANGEL",
	"vc-single":   "ELEVENLABS_AGENT_VC",
	"yc-traction": "ELEVENLABS_AGENT_YC",
	"shark-tank":  "ELEVENLABS_AGENT_SHARK",
}

type Config struct {
	AgentWSURL string
	// AgentIDs holds the conversational agent configured for each stage id.
	AgentIDs map[string]string

	AvatarAPIKey     string
	AvatarSessionURL string
	AvatarRenderURL  string

	// BackendURL is the scoring backend. When empty, stages are scored
	// in-process.
	BackendURL   string
	AudioBackend string
	SendGate     orchestration.SendGatePolicy

	PitchdAddr string
	RedisURL   string
	// ScoringSeed seeds the reference scorer. Zero means a time based seed.
	ScoringSeed int64
}

// Load reads .env if present and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	cfg := Config{
		AgentWSURL:       orDefault(getenv("PITCH_AGENT_WS_URL"), agentvoice.DefaultBaseURL),
		AgentIDs:         map[string]string{},
		AvatarAPIKey:     firstOf(getenv, "AVATAR_API_KEY", "ANAM_API_KEY"),
		AvatarSessionURL: orDefault(getenv("AVATAR_SESSION_URL"), avatar.DefaultSessionURL),
		AvatarRenderURL:  orDefault(getenv("AVATAR_RENDER_WS_URL"), avatar.DefaultRenderURL),
		BackendURL:       strings.TrimRight(getenv("PITCH_BACKEND_URL"), "/"),
		AudioBackend:     orDefault(getenv("PITCH_AUDIO_BACKEND"), AudioBackendMiniaudio),
		PitchdAddr:       orDefault(getenv("PITCHD_ADDR"), DefaultPitchdAddr),
		RedisURL:         getenv("PITCHD_REDIS_URL"),
	}

	for stageID, key := range agentEnv {
		if id := strings.TrimSpace(getenv(key)); id != "" {
			cfg.AgentIDs[stageID] = id
		}
	}

	var errs error
	switch cfg.AudioBackend {
	case AudioBackendMiniaudio, AudioBackendPortaudio:
	default:
		errs = errors.Join(errs, fmt.Errorf("%w: PITCH_AUDIO_BACKEND %q", ErrInvalid, cfg.AudioBackend))
	}

	gate, ok := orchestration.ParseSendGatePolicy(getenv("PITCH_SEND_GATE"))
	if !ok {
		errs = errors.Join(errs, fmt.Errorf("%w: PITCH_SEND_GATE %q", ErrInvalid, getenv("PITCH_SEND_GATE")))
	}
	cfg.SendGate = gate

	if seed := getenv("PITCH_SCORING_SEED"); seed != "" {
		parsed, err := strconv.ParseInt(seed, 10, 64)
		if err != nil {
			errs = errors.Join(errs, fmt.Errorf("%w: PITCH_SCORING_SEED: %v", ErrInvalid, err))
		}
		cfg.ScoringSeed = parsed
	}

	return cfg, errs
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}

func firstOf(getenv func(string) string, keys ...string) string {
	for _, key := range keys {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
	}
	return ""
}
