// Package core defines the shared domain contracts of taskmesh: the Turn a
// persona contributes to a task's conversation, the eight-shape Value union
// used for tool arguments, and the MessageStore interface every history
// backend implements. Concrete stores live in the session package so higher
// level packages (engine, tool) never depend on a storage implementation.
package core
