package conversation

import "time"

// ChannelType identifies the transport an inbox speaks.
type ChannelType string

const (
	ChannelTypeVoice ChannelType = "voice"
)

// Inbox is an account-scoped entry point for conversations (here: a phone number).
type Inbox struct {
	ID          int64       `json:"id" db:"id"`
	AccountID   int64       `json:"account_id" db:"account_id"`
	Name        string      `json:"name" db:"name"`
	ChannelType ChannelType `json:"channel_type" db:"channel_type"`
	PhoneNumber string      `json:"phone_number" db:"phone_number"`
	AvatarURL   string      `json:"avatar_url,omitempty" db:"avatar_url"`
}

// Contact is the external party of a conversation.
type Contact struct {
	ID          int64  `json:"id" db:"id"`
	AccountID   int64  `json:"account_id" db:"account_id"`
	Name        string `json:"name" db:"name"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`
	AvatarURL   string `json:"avatar_url,omitempty" db:"avatar_url"`
}

// Conversation is the aggregate the call lifecycle hangs off.
//
// Attributes is a flexible map persisted as JSONB. Call state lives inside it
// under stable string keys; use the voice package to read and write it rather
// than touching keys directly.
type Conversation struct {
	ID        int64 `json:"id" db:"id"`
	AccountID int64 `json:"account_id" db:"account_id"`

	// DisplayID is the per-account human-facing sequence number. It is
	// assigned by the repository on create and never changes.
	DisplayID int64 `json:"display_id" db:"display_id"`

	InboxID   int64 `json:"inbox_id" db:"inbox_id"`
	ContactID int64 `json:"contact_id" db:"contact_id"`

	Attributes map[string]any `json:"additional_attributes" db:"additional_attributes"`

	LastActivityAt time.Time `json:"last_activity_at" db:"last_activity_at"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

type MessageType string

const (
	MessageTypeIncoming MessageType = "incoming"
	MessageTypeOutgoing MessageType = "outgoing"
	MessageTypeActivity MessageType = "activity"
)

type ContentType string

const (
	ContentTypeText      ContentType = "text"
	ContentTypeVoiceCall ContentType = "voice_call"
)

// Message is a single entry in a conversation's timeline. Call messages carry
// their presentation payload in ContentAttributes under the "data" key.
type Message struct {
	ID             int64 `json:"id" db:"id"`
	AccountID      int64 `json:"account_id" db:"account_id"`
	ConversationID int64 `json:"conversation_id" db:"conversation_id"`

	// SenderID is the user that authored the message; zero for system entries.
	SenderID int64 `json:"sender_id,omitempty" db:"sender_id"`

	Content           string         `json:"content" db:"content"`
	MessageType       MessageType    `json:"message_type" db:"message_type"`
	ContentType       ContentType    `json:"content_type" db:"content_type"`
	ContentAttributes map[string]any `json:"content_attributes" db:"content_attributes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CallData returns the mutable call payload of a voice call message,
// creating it when absent.
func (m *Message) CallData() map[string]any {
	if m.ContentAttributes == nil {
		m.ContentAttributes = map[string]any{}
	}
	if d, ok := m.ContentAttributes["data"].(map[string]any); ok {
		return d
	}
	d := map[string]any{}
	m.ContentAttributes["data"] = d
	return d
}
