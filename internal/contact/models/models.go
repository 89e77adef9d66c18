// Package models defines the contact entity and the consolidated identity
// view reported to callers.
package models

import "time"

// LinkPrecedence marks a contact as the authoritative record of its cluster
// or as a record subsumed into one.
type LinkPrecedence string

const (
	LinkPrecedencePrimary   LinkPrecedence = "primary"
	LinkPrecedenceSecondary LinkPrecedence = "secondary"
)

// Contact is a single observed (email, phone) submission. Contacts sharing an
// email or phone number form a cluster rooted at exactly one primary; every
// secondary links directly to that primary.
type Contact struct {
	ID          int64
	Email       string
	PhoneNumber string
	// LinkedID is set if and only if LinkPrecedence is secondary, and always
	// points at a primary. The link graph is a star of depth one.
	LinkedID       *int64
	LinkPrecedence LinkPrecedence
	CreatedAt      time.Time
	UpdatedAt      time.Time
	// DeletedAt is a soft-delete marker stored and surfaced unmodified.
	// Lookups do not filter on it.
	DeletedAt *time.Time
}

// IsPrimary reports whether the contact is the authoritative record of its
// cluster.
func (c *Contact) IsPrimary() bool {
	return c.LinkPrecedence == LinkPrecedencePrimary
}

// ContactDraft carries the caller-supplied fields of a contact to be created.
// The store assigns ID and timestamps.
type ContactDraft struct {
	Email          string
	PhoneNumber    string
	LinkedID       *int64
	LinkPrecedence LinkPrecedence
}

// ConsolidatedView summarizes a cluster: its primary id, every known email
// and phone number (primary's own values first), and all secondary ids in
// ascending order.
type ConsolidatedView struct {
	PrimaryContactID    int64    `json:"primaryContactId"`
	Emails              []string `json:"emails"`
	PhoneNumbers        []string `json:"phoneNumbers"`
	SecondaryContactIDs []int64  `json:"secondaryContactIds"`
}
