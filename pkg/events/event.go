package events

import "github.com/crystal-mush/mushpost/pkg/gamedb"

// EventType classifies events for transport-specific encoding.
type EventType int

const (
	EvText       EventType = iota // Raw text (universal fallback)
	EvConnect                     // Player connected
	EvDisconnect                  // Player disconnected
	EvDelivery                    // Messenger arrival notice to a room
	EvBoard                       // New bulletin board post
	EvStaff                       // Staff-only notice
)

// String returns a human-readable name for the event type.
func (t EventType) String() string {
	switch t {
	case EvText:
		return "text"
	case EvConnect:
		return "connect"
	case EvDisconnect:
		return "disconnect"
	case EvDelivery:
		return "delivery"
	case EvBoard:
		return "board"
	case EvStaff:
		return "staff"
	default:
		return "unknown"
	}
}

// Event is a structured game event that flows through the event bus.
// Telnet descriptors use Text; other subscribers may use Data.
type Event struct {
	Type   EventType
	Player gamedb.DBRef   // Recipient (Nothing for broadcast)
	Source gamedb.DBRef   // Who generated the event
	Room   gamedb.DBRef   // Room context
	Text   string         // Pre-formatted text (telnet uses this)
	Data   map[string]any // Structured data, e.g. message id
}
