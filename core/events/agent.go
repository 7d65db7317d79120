package events

const (
	// KindConversationStarted identifies the agent conversation id becoming known.
	KindConversationStarted Kind = "agent.conversation_started"
	// KindAgentResponseCorrected identifies a revised agent response.
	KindAgentResponseCorrected Kind = "agent.response_corrected"
	// KindAgentInterrupted identifies a user barge-in.
	KindAgentInterrupted Kind = "agent.interrupted"
	// KindAgentAudioFallback identifies agent audio routed to the local player.
	KindAgentAudioFallback Kind = "agent.audio_fallback"
)

type ConversationStarted struct {
	Base
	ConversationID string
}

func NewConversationStarted(conversationID string) ConversationStarted {
	return ConversationStarted{Base: NewBase(KindConversationStarted), ConversationID: conversationID}
}

type AgentResponseCorrected struct {
	Base
	Original  string
	Corrected string
}

func NewAgentResponseCorrected(original, corrected string) AgentResponseCorrected {
	return AgentResponseCorrected{Base: NewBase(KindAgentResponseCorrected), Original: original, Corrected: corrected}
}

type AgentInterrupted struct {
	Base
	EventID int
}

func NewAgentInterrupted(eventID int) AgentInterrupted {
	return AgentInterrupted{Base: NewBase(KindAgentInterrupted), EventID: eventID}
}

// AgentAudioFallback carries why the avatar could not take the audio.
type AgentAudioFallback struct {
	Base
	Err error
}

func NewAgentAudioFallback(err error) AgentAudioFallback {
	return AgentAudioFallback{Base: NewBase(KindAgentAudioFallback), Err: err}
}
