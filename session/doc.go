// Package session houses concrete implementations of core.MessageStore.
//
// The interface itself lives in the core package so that higher level
// packages (the engine, the facade) never depend on a concrete backend. Two
// implementations are provided:
//
//   - InMemoryStore: a single-lock volatile map, suited to tests and
//     short-lived processes.
//   - SQLStore: a libSQL backed store with embedded goose migrations. Tool
//     call arguments are persisted as deterministic CBOR so value kinds
//     survive a round trip.
//
// Only the wiring layer decides which implementation to instantiate.
package session
