// Package audit records identity mutations as an append-only trail. Events
// flow from the resolution service through a channel worker into a pluggable
// sink: in-memory for tests and local runs, Kafka in production.
package audit

import (
	"context"
	"time"
)

// Action classifies an audit event.
type Action string

const (
	// ActionContactCreated: a fresh primary was created for an unseen identity.
	ActionContactCreated Action = "contact_created"
	// ActionContactLinked: a secondary was created carrying new information.
	ActionContactLinked Action = "contact_linked"
	// ActionClusterMerged: a primary was demoted under an older primary.
	ActionClusterMerged Action = "cluster_merged"
)

// Event captures one identity mutation. Keep it transport-agnostic so sinks
// can fan out.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	// ContactID is the record the action applies to.
	ContactID int64 `json:"contactId"`
	// PrimaryID is the cluster's surviving primary.
	PrimaryID int64 `json:"primaryId"`
	// RelinkedIDs lists dependents re-pointed during a merge.
	RelinkedIDs []int64 `json:"relinkedIds,omitempty"`
}

// Sink persists audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}
