package conversation

import (
	"context"
	"errors"
)

var (
	ErrNotFound       = errors.New("conversation: not found")
	ErrInvalidRequest = errors.New("conversation: invalid request")
)

// Repository abstracts storage for the conversation aggregate and its
// messages. Implementations must enforce account scoping on every read.
type Repository interface {
	VoiceInbox(ctx context.Context, accountID int64) (*Inbox, error)
	InboxByID(ctx context.Context, accountID, inboxID int64) (*Inbox, error)
	InboxByNumber(ctx context.Context, phoneNumber string) (*Inbox, error)

	ContactByID(ctx context.Context, accountID, contactID int64) (*Contact, error)
	ContactByPhone(ctx context.Context, accountID int64, phoneNumber string) (*Contact, error)
	CreateContact(ctx context.Context, c *Contact) error

	// CreateConversation assigns ID and the per-account DisplayID.
	CreateConversation(ctx context.Context, c *Conversation) error
	UpdateConversation(ctx context.Context, c *Conversation) error
	ConversationByID(ctx context.Context, id int64) (*Conversation, error)
	ConversationByDisplayID(ctx context.Context, accountID, displayID int64) (*Conversation, error)
	ConversationByCallSid(ctx context.Context, accountID int64, callSid string) (*Conversation, error)
	OpenVoiceConversation(ctx context.Context, accountID, inboxID, contactID int64) (*Conversation, error)

	CreateMessage(ctx context.Context, m *Message) error
	UpdateMessage(ctx context.Context, m *Message) error
	// VoiceCallMessage returns the call message for a conversation. When
	// callSid is non-empty the message's payload must match it; otherwise the
	// most recent call message wins.
	VoiceCallMessage(ctx context.Context, conversationID int64, callSid string) (*Message, error)
	MessagesByConversation(ctx context.Context, conversationID int64) ([]Message, error)
}
