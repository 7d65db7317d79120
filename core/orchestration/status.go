package orchestration

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusListening    Status = "listening"
	StatusThinking     Status = "thinking"
	StatusSpeaking     Status = "speaking"
	StatusDisconnected Status = "disconnected"
)

// SendGatePolicy decides who opens and closes the microphone send gate.
type SendGatePolicy int

const (
	// AutoMute closes the gate while the agent speaks and opens it when the
	// agent's response is final. The user may toggle it while the agent is
	// not speaking.
	AutoMute SendGatePolicy = iota
	// PushToTalk starts closed and only the user opens or closes it.
	PushToTalk
)

func (p SendGatePolicy) String() string {
	switch p {
	case AutoMute:
		return "auto"
	case PushToTalk:
		return "push_to_talk"
	default:
		return "unknown"
	}
}

func ParseSendGatePolicy(s string) (SendGatePolicy, bool) {
	switch s {
	case "", "auto":
		return AutoMute, true
	case "push_to_talk":
		return PushToTalk, true
	default:
		return AutoMute, false
	}
}
