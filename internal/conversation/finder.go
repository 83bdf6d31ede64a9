package conversation

import (
	"context"
	"errors"
	"time"
)

// FinderService locates or creates the voice conversation for a phone number.
// Both call-establishment paths go through it: the outbound orchestrator and
// the inbound webhook. A provider call identifier, when already known, is the
// strongest lookup key and wins over contact matching.
type FinderService struct {
	repo Repository

	Now func() time.Time
}

func NewFinderService(repo Repository) *FinderService {
	return &FinderService{repo: repo, Now: time.Now}
}

type FinderParams struct {
	AccountID   int64
	Inbox       *Inbox
	PhoneNumber string

	// ContactName is used only when a new contact has to be created.
	ContactName string

	// CallSid, when set, pins the lookup to the conversation already holding
	// that provider call.
	CallSid string
}

func (s *FinderService) FindOrCreate(ctx context.Context, p FinderParams) (*Conversation, *Contact, error) {
	if p.AccountID == 0 || p.Inbox == nil || p.PhoneNumber == "" {
		return nil, nil, ErrInvalidRequest
	}

	contact, err := s.repo.ContactByPhone(ctx, p.AccountID, p.PhoneNumber)
	if errors.Is(err, ErrNotFound) {
		name := p.ContactName
		if name == "" {
			name = p.PhoneNumber
		}
		contact = &Contact{AccountID: p.AccountID, Name: name, PhoneNumber: p.PhoneNumber}
		if err := s.repo.CreateContact(ctx, contact); err != nil {
			return nil, nil, err
		}
	} else if err != nil {
		return nil, nil, err
	}

	if p.CallSid != "" {
		conv, err := s.repo.ConversationByCallSid(ctx, p.AccountID, p.CallSid)
		if err == nil {
			return conv, contact, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, nil, err
		}
	}

	conv, err := s.repo.OpenVoiceConversation(ctx, p.AccountID, p.Inbox.ID, contact.ID)
	if err == nil {
		return conv, contact, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, nil, err
	}

	conv = &Conversation{
		AccountID:      p.AccountID,
		InboxID:        p.Inbox.ID,
		ContactID:      contact.ID,
		Attributes:     map[string]any{},
		LastActivityAt: s.Now(),
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		return nil, nil, err
	}
	return conv, contact, nil
}
