package conversation

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory repository for tests and early development.
// It enforces account isolation on reads and mimics the display_id sequence
// the database assigns per account.
type MemoryRepo struct {
	mu sync.Mutex

	inboxes       map[int64]*Inbox
	contacts      map[int64]*Contact
	conversations map[int64]*Conversation
	messages      map[int64]*Message

	nextID     int64
	displaySeq map[int64]int64 // account_id -> last display_id

	Now func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		inboxes:       map[int64]*Inbox{},
		contacts:      map[int64]*Contact{},
		conversations: map[int64]*Conversation{},
		messages:      map[int64]*Message{},
		displaySeq:    map[int64]int64{},
		Now:           time.Now,
	}
}

func (r *MemoryRepo) nextSeq() int64 {
	r.nextID++
	return r.nextID
}

// AddInbox seeds an inbox fixture.
func (r *MemoryRepo) AddInbox(in *Inbox) *Inbox {
	r.mu.Lock()
	defer r.mu.Unlock()
	if in.ID == 0 {
		in.ID = r.nextSeq()
	}
	cp := *in
	r.inboxes[cp.ID] = &cp
	return in
}

// AddContact seeds a contact fixture.
func (r *MemoryRepo) AddContact(c *Contact) *Contact {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		c.ID = r.nextSeq()
	}
	cp := *c
	r.contacts[cp.ID] = &cp
	return c
}

func (r *MemoryRepo) VoiceInbox(ctx context.Context, accountID int64) (*Inbox, error) {
	if accountID == 0 {
		return nil, ErrInvalidRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, in := range r.inboxes {
		if in.AccountID == accountID && in.ChannelType == ChannelTypeVoice {
			cp := *in
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepo) InboxByID(ctx context.Context, accountID, inboxID int64) (*Inbox, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	in, ok := r.inboxes[inboxID]
	if !ok || in.AccountID != accountID {
		return nil, ErrNotFound
	}
	cp := *in
	return &cp, nil
}

func (r *MemoryRepo) InboxByNumber(ctx context.Context, phoneNumber string) (*Inbox, error) {
	if phoneNumber == "" {
		return nil, ErrInvalidRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, in := range r.inboxes {
		if in.PhoneNumber == phoneNumber {
			cp := *in
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepo) ContactByID(ctx context.Context, accountID, contactID int64) (*Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[contactID]
	if !ok || c.AccountID != accountID {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepo) ContactByPhone(ctx context.Context, accountID int64, phoneNumber string) (*Contact, error) {
	if phoneNumber == "" {
		return nil, ErrInvalidRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.contacts {
		if c.AccountID == accountID && c.PhoneNumber == phoneNumber {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepo) CreateContact(ctx context.Context, c *Contact) error {
	if c == nil || c.AccountID == 0 {
		return ErrInvalidRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.nextSeq()
	cp := *c
	r.contacts[cp.ID] = &cp
	return nil
}

func (r *MemoryRepo) CreateConversation(ctx context.Context, c *Conversation) error {
	if c == nil || c.AccountID == 0 {
		return ErrInvalidRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = r.nextSeq()
	r.displaySeq[c.AccountID]++
	c.DisplayID = r.displaySeq[c.AccountID]
	now := r.Now()
	c.CreatedAt = now
	c.UpdatedAt = now
	if c.Attributes == nil {
		c.Attributes = map[string]any{}
	}
	r.conversations[c.ID] = cloneConversation(c)
	return nil
}

func (r *MemoryRepo) UpdateConversation(ctx context.Context, c *Conversation) error {
	if c == nil || c.ID == 0 {
		return ErrInvalidRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.conversations[c.ID]; !ok {
		return ErrNotFound
	}
	c.UpdatedAt = r.Now()
	r.conversations[c.ID] = cloneConversation(c)
	return nil
}

func (r *MemoryRepo) ConversationByID(ctx context.Context, id int64) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneConversation(c), nil
}

func (r *MemoryRepo) ConversationByDisplayID(ctx context.Context, accountID, displayID int64) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conversations {
		if c.AccountID == accountID && c.DisplayID == displayID {
			return cloneConversation(c), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepo) ConversationByCallSid(ctx context.Context, accountID int64, callSid string) (*Conversation, error) {
	if callSid == "" {
		return nil, ErrInvalidRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.conversations {
		if c.AccountID != accountID {
			continue
		}
		if sid, _ := c.Attributes["call_sid"].(string); sid == callSid {
			return cloneConversation(c), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryRepo) OpenVoiceConversation(ctx context.Context, accountID, inboxID, contactID int64) (*Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *Conversation
	for _, c := range r.conversations {
		if c.AccountID != accountID || c.InboxID != inboxID || c.ContactID != contactID {
			continue
		}
		if latest == nil || c.ID > latest.ID {
			latest = c
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return cloneConversation(latest), nil
}

func (r *MemoryRepo) CreateMessage(ctx context.Context, m *Message) error {
	if m == nil || m.ConversationID == 0 {
		return ErrInvalidRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = r.nextSeq()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = r.Now()
	}
	r.messages[m.ID] = cloneMessage(m)
	return nil
}

func (r *MemoryRepo) UpdateMessage(ctx context.Context, m *Message) error {
	if m == nil || m.ID == 0 {
		return ErrInvalidRequest
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[m.ID]; !ok {
		return ErrNotFound
	}
	r.messages[m.ID] = cloneMessage(m)
	return nil
}

func (r *MemoryRepo) VoiceCallMessage(ctx context.Context, conversationID int64, callSid string) (*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var found *Message
	for _, m := range r.messages {
		if m.ConversationID != conversationID || m.ContentType != ContentTypeVoiceCall {
			continue
		}
		if callSid != "" {
			data, _ := m.ContentAttributes["data"].(map[string]any)
			if sid, _ := data["call_sid"].(string); sid != callSid {
				continue
			}
		}
		if found == nil || m.ID > found.ID {
			found = m
		}
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return cloneMessage(found), nil
}

func (r *MemoryRepo) MessagesByConversation(ctx context.Context, conversationID int64) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, 0)
	for _, m := range r.messages {
		if m.ConversationID == conversationID {
			out = append(out, *cloneMessage(m))
		}
	}
	// stable timeline order
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ID < out[j-1].ID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out, nil
}

func cloneConversation(c *Conversation) *Conversation {
	cp := *c
	cp.Attributes = cloneMap(c.Attributes)
	return &cp
}

func cloneMessage(m *Message) *Message {
	cp := *m
	cp.ContentAttributes = cloneMap(m.ContentAttributes)
	return &cp
}

func cloneMap(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		if nested, ok := v.(map[string]any); ok {
			out[k] = cloneMap(nested)
			continue
		}
		out[k] = v
	}
	return out
}
