// Package events defines the typed orchestration event contract.
//
// Event kinds are grouped by producer-facing namespaces:
//
//   - feed.*
//   - turn_state.*
//   - user_input.*
//
// Semantics used across the package:
//
//   - Delta: an incremental audio or text fragment belonging to one turn.
//   - Final: terminal immutable text for the current utterance.
//   - TurnID: the backend's identifier for one continuous utterance.
//
// feed events
//
//   - AudioDelta (feed.audio_delta): incremental assistant audio fragment.
//   - TextDelta (feed.text_delta): incremental assistant text fragment.
//
// turn_state events
//
//   - TurnCompleted (turn_state.completed): the backend finished producing
//     the turn; any buffered remainder should be force-flushed.
//   - TurnCanceled (turn_state.cancelled): the backend abandoned the turn;
//     buffered remainder is discarded.
//
// user_input events
//
//   - UserSpeechStarted (user_input.speech_started): speech activity began.
//   - UserSpeechEnded (user_input.speech_ended): speech activity ended.
//   - UserTranscriptFinal (user_input.transcript_final): terminal transcript
//     for the user utterance, carrying the backend-provided timestamp.
package events
