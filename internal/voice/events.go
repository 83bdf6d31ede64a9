package voice

import "strings"

// EventType enumerates the provider conference lifecycle events this engine
// understands. Anything else is ignored at the boundary.
type EventType string

const (
	EventConferenceStart  EventType = "conference-start"
	EventConferenceEnd    EventType = "conference-end"
	EventParticipantJoin  EventType = "participant-join"
	EventParticipantLeave EventType = "participant-leave"
)

func (e EventType) Valid() bool {
	switch e {
	case EventConferenceStart, EventConferenceEnd, EventParticipantJoin, EventParticipantLeave:
		return true
	default:
		return false
	}
}

// ConferenceEvent is a normalized provider webhook event.
type ConferenceEvent struct {
	Type             EventType
	CallSid          string
	ConferenceID     string
	ParticipantLabel string
}

// ParticipantRole classifies a call leg by its label prefix.
type ParticipantRole int

const (
	RoleUnknown ParticipantRole = iota
	RoleAgent
	RoleCaller
)

// ClassifyParticipant maps a provider participant label to a role. Labels are
// prefix-matched (agent_42, caller-leg, ...); unrecognized labels carry no
// role so future label vocabularies never break processing.
func ClassifyParticipant(label string) ParticipantRole {
	switch {
	case strings.HasPrefix(label, "agent"):
		return RoleAgent
	case strings.HasPrefix(label, "caller"):
		return RoleCaller
	default:
		return RoleUnknown
	}
}
