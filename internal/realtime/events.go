package realtime

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event names carried on the account channel. The channel is shared with the
// non-voice sync events of the wider platform; this package only handles the
// ones listed here and ignores the rest.
const (
	EventIncomingCall      = "incoming_call"
	EventCallStatusChanged = "call_status_changed"
	EventTypingOn          = "conversation.typing_on"
	EventTypingOff         = "conversation.typing_off"
)

// ChannelName is the account-scoped pub/sub channel.
func ChannelName(accountID int64) string {
	return fmt.Sprintf("account_%d", accountID)
}

// Envelope is the wire frame for every event on the channel.
type Envelope struct {
	Event     string          `json:"event"`
	AccountID int64           `json:"account_id"`
	Data      json.RawMessage `json:"data"`
}

// CallStatusChanged is the wire payload published on every accepted status
// transition.
type CallStatusChanged struct {
	CallSid        string `json:"call_sid"`
	Status         string `json:"status"`
	ConversationID int64  `json:"conversation_id"`
	InboxID        int64  `json:"inbox_id"`
	Timestamp      int64  `json:"timestamp"`
}

// IncomingCall is the wire payload published when an inbound call is
// established, carrying the full caller/inbox context a client needs to
// render the call widget without further lookups.
type IncomingCall struct {
	CallSid          string `json:"call_sid"`
	ConversationID   int64  `json:"conversation_id"`
	InboxID          int64  `json:"inbox_id"`
	InboxName        string `json:"inbox_name"`
	InboxAvatarURL   string `json:"inbox_avatar_url"`
	InboxPhoneNumber string `json:"inbox_phone_number"`
	ContactName      string `json:"contact_name"`
	ContactID        int64  `json:"contact_id"`
	AccountID        int64  `json:"account_id"`
	IsOutbound       bool   `json:"is_outbound"`
	ConferenceID     string `json:"conference_id"`
	RequiresAgentJoin bool  `json:"requires_agent_join"`
	CallDirection    string `json:"call_direction"`
	PhoneNumber      string `json:"phone_number"`
	AvatarURL        string `json:"avatar_url"`
}

// Typing is the wire payload of the typing indicator events.
type Typing struct {
	ConversationID int64 `json:"conversation_id"`
	UserID         int64 `json:"user_id"`
}

// DefaultContactName is presented when an incoming call carries no contact name.
const DefaultContactName = "Unknown Caller"

// NormalizedIncomingCall is the application-side shape of an incoming_call
// event after wire normalization: defaults applied, the deprecated
// conference_sid alias resolved.
type NormalizedIncomingCall struct {
	CallSid           string
	ConversationID    int64
	InboxID           int64
	InboxName         string
	InboxAvatarURL    string
	InboxPhoneNumber  string
	ContactName       string
	ContactID         int64
	AccountID         int64
	IsOutbound        bool
	ConferenceID      string
	RequiresAgentJoin bool
	CallDirection     string
	PhoneNumber       string
	AvatarURL         string
}

// NormalizeIncomingCall decodes the wire payload and applies deterministic
// defaults: missing contact_name becomes DefaultContactName, missing booleans
// are false, and conference_sid is honored when conference_id is absent.
func NormalizeIncomingCall(raw json.RawMessage) (NormalizedIncomingCall, error) {
	var wire struct {
		IncomingCall
		LegacyConferenceSid string `json:"conference_sid"`
	}
	if err := json.Unmarshal(raw, &wire); err != nil {
		return NormalizedIncomingCall{}, fmt.Errorf("realtime: incoming_call decode failed: %w", err)
	}
	out := NormalizedIncomingCall{
		CallSid:           wire.CallSid,
		ConversationID:    wire.ConversationID,
		InboxID:           wire.InboxID,
		InboxName:         wire.InboxName,
		InboxAvatarURL:    wire.InboxAvatarURL,
		InboxPhoneNumber:  wire.InboxPhoneNumber,
		ContactName:       wire.ContactName,
		ContactID:         wire.ContactID,
		AccountID:         wire.AccountID,
		IsOutbound:        wire.IsOutbound,
		ConferenceID:      wire.ConferenceID,
		RequiresAgentJoin: wire.RequiresAgentJoin,
		CallDirection:     wire.CallDirection,
		PhoneNumber:       wire.PhoneNumber,
		AvatarURL:         wire.AvatarURL,
	}
	if out.ContactName == "" {
		out.ContactName = DefaultContactName
	}
	if out.ConferenceID == "" {
		out.ConferenceID = wire.LegacyConferenceSid
	}
	return out, nil
}

// NormalizedCallStatus is the application-side shape of a call_status_changed
// event. Rename-only normalization: the consumer re-evaluates no business
// rules and trusts the publisher's state machine.
type NormalizedCallStatus struct {
	CallSid        string
	Status         string
	ConversationID int64
	InboxID        int64
	Timestamp      int64
}

// NormalizeCallStatusChanged decodes the wire payload; a missing timestamp
// defaults to now.
func NormalizeCallStatusChanged(raw json.RawMessage, now func() time.Time) (NormalizedCallStatus, error) {
	var wire CallStatusChanged
	if err := json.Unmarshal(raw, &wire); err != nil {
		return NormalizedCallStatus{}, fmt.Errorf("realtime: call_status_changed decode failed: %w", err)
	}
	out := NormalizedCallStatus{
		CallSid:        wire.CallSid,
		Status:         wire.Status,
		ConversationID: wire.ConversationID,
		InboxID:        wire.InboxID,
		Timestamp:      wire.Timestamp,
	}
	if out.Timestamp == 0 {
		if now == nil {
			now = time.Now
		}
		out.Timestamp = now().Unix()
	}
	return out, nil
}
