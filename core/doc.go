// Package core defines the shared protocol types of the streaming chat
// orchestration layer: the normalized output Chunk, the engine adapter Frame
// protocol, conversation history entries, fallback-path Settings and the
// collaborator contracts (EngineAdapter, DocumentProcessor). It is imported
// by every other package and imports none of them.
package core
