// Package events provides an in-memory broker that fans out progress and
// outcome notifications of long-running operations (transitions, power
// convergence, configuration sessions, failed batches) to subscribers.
// Publish never blocks; slow subscribers drop events.
package events
