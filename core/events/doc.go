// Package events defines the typed events a stage session emits.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - stage_state.*
//   - transcript.*
//   - agent.*
//
// stage_state events
//
//   - StatusChanged (stage_state.status_changed): the session status moved
//     between connecting, listening, thinking, speaking and disconnected.
//   - TimerTicked (stage_state.timer_ticked): one second of the stage elapsed;
//     carries the remaining time.
//   - MuteChanged (stage_state.mute_changed): the microphone send gate was
//     opened or closed, by the session or by the user.
//   - ConnectionError (stage_state.connection_error): a channel failed to set
//     up or failed mid-stage. Carries a message fit for display.
//   - StageEnded (stage_state.ended): terminal event of a stage with its
//     result and what ended it. Emitted exactly once.
//
// transcript events
//
//   - TurnAppended (transcript.turn_appended): a finalized turn was added.
//
// agent events
//
//   - ConversationStarted (agent.conversation_started): the agent assigned a
//     conversation id.
//   - AgentResponseCorrected (agent.response_corrected): the agent revised its
//     last response after an interruption.
//   - AgentInterrupted (agent.interrupted): the user barged in.
//   - AgentAudioFallback (agent.audio_fallback): agent audio went to the local
//     player because the avatar could not take it.
package events
