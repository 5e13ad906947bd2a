package domain

import "time"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in a session.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Entity is a tracked person, course or location mentioned in a session.
// Attributes merge last-write-wins per key across mentions, so pronoun
// references can resolve to the most recently mentioned entity.
type Entity struct {
	Name     string            `json:"name"`
	Type     EntityType        `json:"type"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	LastSeen time.Time         `json:"last_seen"`
}

// EntityType classifies a tracked entity.
type EntityType string

const (
	EntityPerson   EntityType = "person"
	EntityCourse   EntityType = "course"
	EntityLocation EntityType = "location"
	EntityDate     EntityType = "date"
)

// MemorySnapshot is a read-only view of one session's conversation state.
// Summary plus Turns together cover every turn of the session: turns that
// fall out of the verbatim window are compressed into Summary, never dropped.
type MemorySnapshot struct {
	Turns    []Turn
	Entities map[string]Entity
	Summary  string
}
