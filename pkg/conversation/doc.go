// Package conversation is a reference chat collaborator. A Dialogue walks the
// persisted flow graph of one app for a single visitor and answers with bot
// messages written in the renderer's tag vocabulary.
//
// Dialogues are not safe for concurrent use; the chat endpoint owns one per
// connection.
package conversation
