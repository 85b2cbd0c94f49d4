// Package ai runs AI conversation turns against an external completion
// provider.
//
// # Architecture
//
// Two collaborators split the work:
//
//   - Assembler renders a bounded excerpt of a related room's history
//     ("handle: content" lines, oldest first) and composes the full
//     prompt: system prompt, optional context block, then every prior
//     user and assistant turn in order.
//
//   - Orchestrator executes a turn. The user's utterance is persisted
//     before the provider is called, so it survives provider failure.
//     The provider is invoked exactly once per turn, with no streaming
//     and no retry. On success the assistant's reply is persisted with
//     its token counts.
//
// # Authorization
//
// Room membership for context injection is re-verified on every read.
// Linking a room at conversation creation grants nothing later; a user
// removed from the room loses context access immediately.
//
// # Error Handling
//
// ErrInvalidLimit marks an out-of-range context limit, ErrNotOwner a
// requester addressing someone else's conversation, and
// ErrExternalService a provider failure. Callers distinguish these with
// errors.Is to choose between validation responses and upstream-failure
// responses.
package ai
