package agentvoice

const (
	messageTypeConversationInit  = "conversation_initiation_metadata"
	messageTypeAudio             = "audio"
	messageTypeAgentResponse     = "agent_response"
	messageTypeAgentCorrection   = "agent_response_correction"
	messageTypeUserTranscript    = "user_transcript"
	messageTypeInterruption      = "interruption"
	messageTypePing              = "ping"
	messageTypeTentativeResponse = "internal_tentative_agent_response"
	messageTypeVADScore          = "vad_score"
	messageTypePong              = "pong"
	messageTypeUserMessage       = "user_message"
	messageTypeUserActivity      = "user_activity"
	closeReasonStageEnded        = "Stage ended"
)

type inboundMessage struct {
	Type string `json:"type"`

	ConversationInit *struct {
		ConversationID string `json:"conversation_id"`
	} `json:"conversation_initiation_metadata_event,omitempty"`

	Audio *struct {
		AudioBase64 string `json:"audio_base_64"`
		EventID     *int   `json:"event_id"`
	} `json:"audio_event,omitempty"`

	AgentResponse *struct {
		AgentResponse string `json:"agent_response"`
	} `json:"agent_response_event,omitempty"`

	AgentCorrection *struct {
		Original  string `json:"original_agent_response"`
		Corrected string `json:"corrected_agent_response"`
	} `json:"agent_response_correction_event,omitempty"`

	UserTranscription *struct {
		UserTranscript string `json:"user_transcript"`
	} `json:"user_transcription_event,omitempty"`

	Interruption *struct {
		EventID *int `json:"event_id"`
	} `json:"interruption_event,omitempty"`

	Ping *struct {
		EventID *int `json:"event_id"`
		PingMs  *int `json:"ping_ms"`
	} `json:"ping_event,omitempty"`
}

type userAudioMessage struct {
	UserAudioChunk string `json:"user_audio_chunk"`
}

type pongMessage struct {
	Type    string `json:"type"`
	EventID int    `json:"event_id"`
}

type userMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Chunk is one piece of agent speech, base64 PCM16LE at the channel's sample
// rate.
type Chunk struct {
	Audio   string
	EventID int
}
