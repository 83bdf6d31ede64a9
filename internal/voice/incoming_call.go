package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voicedesk/internal/conversation"
	"voicedesk/internal/realtime"
)

// IncomingCallService establishes the conversation side of a caller-originated
// call and announces it to connected clients. Status progression is left to
// the conference webhooks that follow.
type IncomingCallService struct {
	repo      conversation.Repository
	finder    *conversation.FinderService
	locker    ConversationLocker
	publisher EventPublisher
	log       *slog.Logger

	Now func() time.Time
}

func NewIncomingCallService(repo conversation.Repository, finder *conversation.FinderService, locker ConversationLocker, publisher EventPublisher, log *slog.Logger) *IncomingCallService {
	if log == nil {
		log = slog.Default()
	}
	return &IncomingCallService{
		repo:      repo,
		finder:    finder,
		locker:    locker,
		publisher: publisher,
		log:       log,
		Now:       time.Now,
	}
}

type InboundCallRequest struct {
	CallSid    string
	From       string // caller number
	To         string // dialed inbox number
	CallerName string
}

// Process resolves the dialed inbox, finds or creates the conversation, seeds
// inbound call state, creates the call message, and publishes incoming_call.
// Returns the conversation so the webhook layer can answer with the
// conference to join.
func (s *IncomingCallService) Process(ctx context.Context, req InboundCallRequest) (*conversation.Conversation, error) {
	if req.CallSid == "" || req.From == "" || req.To == "" {
		return nil, conversation.ErrInvalidRequest
	}

	inbox, err := s.repo.InboxByNumber(ctx, req.To)
	if errors.Is(err, conversation.ErrNotFound) {
		return nil, fmt.Errorf("voice: no inbox for number %s: %w", req.To, err)
	}
	if err != nil {
		return nil, err
	}

	conv, contact, err := s.finder.FindOrCreate(ctx, conversation.FinderParams{
		AccountID:   inbox.AccountID,
		Inbox:       inbox,
		PhoneNumber: req.From,
		ContactName: req.CallerName,
		CallSid:     req.CallSid,
	})
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Lock(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	state := Load(conv.Attributes)
	if state.CallSid != req.CallSid {
		// A reused conversation hosting a new call attempt starts clean.
		state.ResetAttempt()
	}
	state.Direction = DirectionInbound
	state.CallSid = req.CallSid
	state.EnsureConference(conv.AccountID, conv.DisplayID)
	state.Apply(conv.Attributes)
	conv.LastActivityAt = s.Now()
	if err := s.repo.UpdateConversation(ctx, conv); err != nil {
		return nil, err
	}

	if err := s.ensureCallMessage(ctx, conv, inbox, contact, state); err != nil {
		return nil, err
	}

	ev := realtime.IncomingCall{
		CallSid:           state.CallSid,
		ConversationID:    conv.DisplayID,
		InboxID:           inbox.ID,
		InboxName:         inbox.Name,
		InboxAvatarURL:    inbox.AvatarURL,
		InboxPhoneNumber:  inbox.PhoneNumber,
		ContactName:       contact.Name,
		ContactID:         contact.ID,
		AccountID:         conv.AccountID,
		IsOutbound:        false,
		ConferenceID:      state.ConferenceID,
		RequiresAgentJoin: state.RequiresAgentJoin,
		CallDirection:     string(DirectionInbound),
		PhoneNumber:       contact.PhoneNumber,
		AvatarURL:         contact.AvatarURL,
	}
	if err := s.publisher.PublishIncomingCall(ctx, conv.AccountID, ev); err != nil {
		return nil, err
	}

	s.log.Info("incoming call established",
		"conversation_id", conv.ID,
		"call_sid", state.CallSid,
		"inbox_id", inbox.ID,
	)
	return conv, nil
}

// ensureCallMessage creates the attempt's call message unless redelivery of
// the inbound webhook already did.
func (s *IncomingCallService) ensureCallMessage(ctx context.Context, conv *conversation.Conversation, inbox *conversation.Inbox, contact *conversation.Contact, state CallState) error {
	_, err := s.repo.VoiceCallMessage(ctx, conv.ID, state.CallSid)
	if err == nil {
		return nil
	}
	if !errors.Is(err, conversation.ErrNotFound) {
		return err
	}
	now := s.Now().Unix()
	msg := &conversation.Message{
		AccountID:      conv.AccountID,
		ConversationID: conv.ID,
		Content:        "Voice Call",
		MessageType:    conversation.MessageTypeIncoming,
		ContentType:    conversation.ContentTypeVoiceCall,
		ContentAttributes: map[string]any{
			"data": map[string]any{
				"call_sid":        state.CallSid,
				"status":          StatusRinging.UIStatus(),
				"conversation_id": conv.DisplayID,
				"call_direction":  string(DirectionInbound),
				"conference_id":   state.ConferenceID,
				"from_number":     contact.PhoneNumber,
				"to_number":       inbox.PhoneNumber,
				"meta": map[string]any{
					"created_at": now,
					"ringing_at": now,
				},
			},
		},
		CreatedAt: s.Now(),
	}
	return s.repo.CreateMessage(ctx, msg)
}
