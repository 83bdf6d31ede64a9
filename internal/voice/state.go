package voice

import (
	"fmt"
	"regexp"
)

// CallStatus is the lifecycle stage of a call attempt.
type CallStatus string

const (
	StatusNone       CallStatus = "none"
	StatusInitiated  CallStatus = "initiated"
	StatusRinging    CallStatus = "ringing"
	StatusInProgress CallStatus = "in_progress"
	StatusEnded      CallStatus = "ended"
	StatusNoAnswer   CallStatus = "no_answer"
)

// Terminal reports whether no further lifecycle progress is possible.
func (s CallStatus) Terminal() bool {
	return s == StatusEnded || s == StatusNoAnswer
}

func (s CallStatus) Valid() bool {
	switch s {
	case StatusNone, StatusInitiated, StatusRinging, StatusInProgress, StatusEnded, StatusNoAnswer:
		return true
	default:
		return false
	}
}

// UIStatus maps a lifecycle status to the normalized presentation status
// carried on the call message.
func (s CallStatus) UIStatus() string {
	switch s {
	case StatusInitiated, StatusRinging:
		return "ringing"
	case StatusInProgress:
		return "connected"
	case StatusEnded:
		return "ended"
	case StatusNoAnswer:
		return "no_answer"
	default:
		return ""
	}
}

type CallDirection string

const (
	DirectionInbound  CallDirection = "inbound"
	DirectionOutbound CallDirection = "outbound"
)

// Stable attribute keys inside the conversation's flexible attribute map.
const (
	attrCallStatus        = "call_status"
	attrCallDirection     = "call_direction"
	attrCallSid           = "call_sid"
	attrConferenceID      = "conference_id"
	attrConferenceSid     = "conference_sid" // deprecated alias, read-only
	attrAgentJoinedAt     = "agent_joined_at"
	attrCallerJoinedAt    = "caller_joined_at"
	attrAgentID           = "agent_id"
	attrRequiresAgentJoin = "requires_agent_join"
	attrEventPending      = "status_event_pending"
	attrSchemaVersion     = "call_schema_version"
	attrProviderMeta      = "provider_meta"
)

// CallStateSchemaVersion is bumped whenever the attribute layout changes.
const CallStateSchemaVersion = 1

// CallState is the typed view of a conversation's call lifecycle. It is the
// single shape all call mutations go through; the raw attribute map is only
// ever touched by Load and Apply.
type CallState struct {
	Status    CallStatus
	Direction CallDirection

	CallSid      string
	ConferenceID string

	// AgentID identifies the agent that initiated an outbound call.
	AgentID int64

	RequiresAgentJoin bool

	// EventPending records that the last status change was persisted but its
	// realtime event could not be published. The next delivery for the same
	// status retries the publish alone.
	EventPending bool

	// Join timestamps are epoch seconds, write-once per call attempt. Their
	// presence disambiguates concurrent join/leave races.
	AgentJoinedAt  int64
	CallerJoinedAt int64

	SchemaVersion int

	// Extra carries provider-specific metadata that has no typed field.
	Extra map[string]any
}

// Load reads call state out of a conversation attribute map. Unknown or
// malformed values degrade to zero values; the legacy conference_sid key is
// honored when conference_id is absent.
func Load(attrs map[string]any) CallState {
	st := CallState{
		Status:        StatusNone,
		SchemaVersion: CallStateSchemaVersion,
	}
	if attrs == nil {
		return st
	}
	if v, ok := attrs[attrCallStatus].(string); ok && CallStatus(v).Valid() {
		st.Status = CallStatus(v)
	}
	if v, ok := attrs[attrCallDirection].(string); ok {
		switch CallDirection(v) {
		case DirectionInbound, DirectionOutbound:
			st.Direction = CallDirection(v)
		}
	}
	st.CallSid, _ = attrs[attrCallSid].(string)
	if v, ok := attrs[attrConferenceID].(string); ok && v != "" {
		st.ConferenceID = v
	} else if v, ok := attrs[attrConferenceSid].(string); ok {
		st.ConferenceID = v
	}
	st.AgentID = asInt64(attrs[attrAgentID])
	st.AgentJoinedAt = asInt64(attrs[attrAgentJoinedAt])
	st.CallerJoinedAt = asInt64(attrs[attrCallerJoinedAt])
	st.RequiresAgentJoin, _ = attrs[attrRequiresAgentJoin].(bool)
	st.EventPending, _ = attrs[attrEventPending].(bool)
	if v := asInt64(attrs[attrSchemaVersion]); v > 0 {
		st.SchemaVersion = int(v)
	}
	if m, ok := attrs[attrProviderMeta].(map[string]any); ok {
		st.Extra = m
	}
	return st
}

// Apply writes the state back into the attribute map. The deprecated
// conference_sid alias is dropped on write; conference_id is canonical.
func (s CallState) Apply(attrs map[string]any) {
	attrs[attrCallStatus] = string(s.Status)
	if s.Direction != "" {
		attrs[attrCallDirection] = string(s.Direction)
	}
	if s.CallSid != "" {
		attrs[attrCallSid] = s.CallSid
	} else {
		delete(attrs, attrCallSid)
	}
	if s.ConferenceID != "" {
		attrs[attrConferenceID] = s.ConferenceID
	}
	delete(attrs, attrConferenceSid)
	if s.AgentID != 0 {
		attrs[attrAgentID] = s.AgentID
	}
	if s.AgentJoinedAt != 0 {
		attrs[attrAgentJoinedAt] = s.AgentJoinedAt
	} else {
		delete(attrs, attrAgentJoinedAt)
	}
	if s.CallerJoinedAt != 0 {
		attrs[attrCallerJoinedAt] = s.CallerJoinedAt
	} else {
		delete(attrs, attrCallerJoinedAt)
	}
	attrs[attrRequiresAgentJoin] = s.RequiresAgentJoin
	if s.EventPending {
		attrs[attrEventPending] = true
	} else {
		delete(attrs, attrEventPending)
	}
	attrs[attrSchemaVersion] = CallStateSchemaVersion
	if len(s.Extra) > 0 {
		attrs[attrProviderMeta] = s.Extra
	}
}

// MarkAgentJoined records the agent join timestamp once; later calls are no-ops.
func (s *CallState) MarkAgentJoined(epoch int64) {
	if s.AgentJoinedAt == 0 {
		s.AgentJoinedAt = epoch
	}
}

// MarkCallerJoined records the caller join timestamp once; later calls are no-ops.
func (s *CallState) MarkCallerJoined(epoch int64) {
	if s.CallerJoinedAt == 0 {
		s.CallerJoinedAt = epoch
	}
}

// ResetAttempt clears the per-attempt fields so a conversation can host a new
// call. The conference identifier survives; it is derived from immutable IDs.
func (s *CallState) ResetAttempt() {
	s.Status = StatusNone
	s.CallSid = ""
	s.AgentJoinedAt = 0
	s.CallerJoinedAt = 0
	s.RequiresAgentJoin = false
	s.AgentID = 0
}

var conferenceNameRe = regexp.MustCompile(`^conf_account_(\d+)_conv_(\d+)$`)

// ConferenceName derives the deterministic conference identifier for a
// conversation. The same inputs always produce the same name.
func ConferenceName(accountID, displayID int64) string {
	return fmt.Sprintf("conf_account_%d_conv_%d", accountID, displayID)
}

func ValidConferenceName(name string) bool {
	return conferenceNameRe.MatchString(name)
}

// ParseConferenceName recovers the account and display identifiers from a
// conference name.
func ParseConferenceName(name string) (accountID, displayID int64, ok bool) {
	m := conferenceNameRe.FindStringSubmatch(name)
	if m == nil {
		return 0, 0, false
	}
	accountID = parseDigits(m[1])
	displayID = parseDigits(m[2])
	return accountID, displayID, true
}

// EnsureConference self-heals a missing or malformed conference identifier.
// Returns true when the identifier was regenerated.
func (s *CallState) EnsureConference(accountID, displayID int64) bool {
	if ValidConferenceName(s.ConferenceID) {
		return false
	}
	s.ConferenceID = ConferenceName(accountID, displayID)
	return true
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		// JSON round-trips numbers as float64.
		return int64(n)
	default:
		return 0
	}
}

func parseDigits(s string) int64 {
	var n int64
	for _, r := range s {
		n = n*10 + int64(r-'0')
	}
	return n
}
