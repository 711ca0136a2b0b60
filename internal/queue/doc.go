// Package queue defines the post queue data model: candidates, queue
// entries, the status state machine, and the typed errors shared by the
// scheduler and publisher.
package queue
