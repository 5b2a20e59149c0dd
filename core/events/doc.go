// Package events defines the typed session event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - user_input.*: transcript and speech-activity events normalized from
//     the voice transport.
//   - turn_control.*: imperative requests against the in-flight turn.
//   - turn_state.*: lifecycle boundaries of a single turn.
//   - response.*: commit arbitration outcomes for a turn's response.
//   - playback.*: synthesized audio delivery boundaries.
//
// Semantics used across the package:
//
//   - Partial: mutable point-in-time transcript snapshot that can change.
//   - Final: terminal immutable transcript for the current utterance.
//   - Committed: the single response that won arbitration for its turn.
//   - Discarded: a response rejected by arbitration; its audio path is
//     never opened.
package events
