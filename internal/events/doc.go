// Package events provides types and interfaces for an event-driven
// hand-off between the fetch side and the extraction side.
//
// Fetch handlers emit a JobRequestEvent when freshly fetched items need
// extraction; a registered handler enqueues the corresponding job on the
// AI queue. Neither side imports the other, which keeps the queue and
// the fetch collaborators decoupled.
//
// The primary components are:
// - JobRequestEvent: Represents a request to enqueue a background job
// - EventHandler: Interface for components that can handle events
// - EventEmitter: Interface for components that can emit events
package events
