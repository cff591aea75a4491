package audit

import (
	"errors"
	"fmt"
	"time"

	auditlog "retireplan/pkg/platform/audit"
)

// Kind tags a ChangeEvent.
type Kind string

const (
	KindCreated Kind = "created"
	KindUpdated Kind = "updated"
	KindDeleted Kind = "deleted"
)

// ChangeEvent is one committed document mutation. Feeds deliver events
// at-least-once and preserve order only per document path; EventID is stable
// across redeliveries of the same mutation.
//
// Created events carry only After, Deleted events only Before and Updated
// events both.
type ChangeEvent struct {
	Kind       Kind              `json:"kind"`
	EventID    string            `json:"eventId"`
	Path       string            `json:"path"`
	Before     auditlog.Snapshot `json:"before"`
	After      auditlog.Snapshot `json:"after"`
	OccurredAt time.Time         `json:"occurredAt"`
}

// Created builds a create event.
func Created(eventID, path string, after auditlog.Snapshot, at time.Time) ChangeEvent {
	return ChangeEvent{Kind: KindCreated, EventID: eventID, Path: path, After: after, OccurredAt: at}
}

// Updated builds an update event.
func Updated(eventID, path string, before, after auditlog.Snapshot, at time.Time) ChangeEvent {
	return ChangeEvent{Kind: KindUpdated, EventID: eventID, Path: path, Before: before, After: after, OccurredAt: at}
}

// Deleted builds a delete event.
func Deleted(eventID, path string, before auditlog.Snapshot, at time.Time) ChangeEvent {
	return ChangeEvent{Kind: KindDeleted, EventID: eventID, Path: path, Before: before, OccurredAt: at}
}

// DeleteEventID derives the event ID for deleting revision rev of a
// document. Writers tag every revision; the deletion has none of its own.
func DeleteEventID(rev string) string {
	return rev + ":deleted"
}

// Validate checks the event is well formed.
func (e ChangeEvent) Validate() error {
	if e.Path == "" {
		return errors.New("change event has no path")
	}
	switch e.Kind {
	case KindCreated:
		if e.After == nil {
			return errors.New("created event has no after snapshot")
		}
	case KindUpdated:
		if e.Before == nil || e.After == nil {
			return errors.New("updated event needs before and after snapshots")
		}
	case KindDeleted:
		if e.Before == nil {
			return errors.New("deleted event has no before snapshot")
		}
	default:
		return fmt.Errorf("unknown change event kind %q", e.Kind)
	}
	return nil
}
