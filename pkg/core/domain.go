// Package core holds the store-native document model shared by every layer:
// the Value variant, the Bucket contract and the error taxonomy.
package core

import "fmt"

// EventType represents the type of change observed in a bucket.
type EventType string

const (
	EventCreate EventType = "CREATE"
	EventModify EventType = "MODIFY"
	EventDelete EventType = "DELETE"
)

// Event represents a change of a single key.
type Event struct {
	Type      EventType
	Key       string
	Timestamp int64 // Unix timestamp
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Type, e.Key)
}
