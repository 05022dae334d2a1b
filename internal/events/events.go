// Package events publishes listing change notifications produced by sync runs.
package events

import (
	"context"
	"time"
)

type ChangeType string

const (
	ListingCreated ChangeType = "listing.created"
	ListingUpdated ChangeType = "listing.updated"
	ListingRemoved ChangeType = "listing.removed"
)

// ListingEvent tells downstream consumers that a stored listing changed.
type ListingEvent struct {
	Type       ChangeType `json:"type"`
	ExternalID string     `json:"external_id"`
	RunID      string     `json:"run_id"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Publisher delivers listing events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, events []ListingEvent) error
	Close() error
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, events []ListingEvent) error { return nil }

func (NopPublisher) Close() error { return nil }
