package voice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voicedesk/internal/conversation"
)

// Configuration failures are fatal and non-retryable; they surface verbatim
// to the initiating operator.
var (
	ErrNoVoiceInbox  = errors.New("voice: no voice channel configured")
	ErrNoPhoneNumber = errors.New("voice: contact has no phone number")
)

// Dialer originates the provider leg of an outbound call.
type Dialer interface {
	InitiateCall(ctx context.Context, req DialRequest) (DialResult, error)
}

type DialRequest struct {
	To             string
	From           string
	ConferenceName string
	AgentID        int64
}

type DialResult struct {
	CallSid string
}

// OutgoingCallService initiates an agent-originated call: conversation,
// conference identifier, provider dial-out, call metadata, call message, and
// the one-time "initiated" narration, in that order, so the call message is
// always ahead of the narration in the timeline.
type OutgoingCallService struct {
	repo    conversation.Repository
	finder  *conversation.FinderService
	dialer  Dialer
	manager *Manager
	locker  ConversationLocker
	log     *slog.Logger

	Now func() time.Time
}

func NewOutgoingCallService(repo conversation.Repository, finder *conversation.FinderService, dialer Dialer, manager *Manager, locker ConversationLocker, log *slog.Logger) *OutgoingCallService {
	if log == nil {
		log = slog.Default()
	}
	return &OutgoingCallService{
		repo:    repo,
		finder:  finder,
		dialer:  dialer,
		manager: manager,
		locker:  locker,
		log:     log,
		Now:     time.Now,
	}
}

type OutgoingCallRequest struct {
	AccountID int64
	ContactID int64
	AgentID   int64
}

// Process places the call. An error from the provider dial-out is fatal to
// the attempt and must not be retried automatically: the side effect (a phone
// ringing) cannot be rolled back, and a blind retry risks double-dialing.
func (s *OutgoingCallService) Process(ctx context.Context, req OutgoingCallRequest) (*conversation.Conversation, error) {
	inbox, err := s.repo.VoiceInbox(ctx, req.AccountID)
	if errors.Is(err, conversation.ErrNotFound) {
		return nil, ErrNoVoiceInbox
	}
	if err != nil {
		return nil, err
	}

	contact, err := s.repo.ContactByID(ctx, req.AccountID, req.ContactID)
	if err != nil {
		return nil, err
	}
	if contact.PhoneNumber == "" {
		return nil, ErrNoPhoneNumber
	}

	conv, _, err := s.finder.FindOrCreate(ctx, conversation.FinderParams{
		AccountID:   req.AccountID,
		Inbox:       inbox,
		PhoneNumber: contact.PhoneNumber,
		ContactName: contact.Name,
	})
	if err != nil {
		return nil, err
	}

	release, err := s.locker.Lock(ctx, conv.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	// A fresh attempt on a reused conversation starts from a clean slate.
	state := Load(conv.Attributes)
	state.ResetAttempt()
	state.Direction = DirectionOutbound
	if state.EnsureConference(conv.AccountID, conv.DisplayID) {
		s.log.Warn("conference identifier regenerated", "conversation_id", conv.ID, "conference_id", state.ConferenceID)
	}
	state.Apply(conv.Attributes)
	if err := s.repo.UpdateConversation(ctx, conv); err != nil {
		return nil, err
	}

	// Second self-heal immediately before the provider call: state lost
	// between steps must never reach the provider as a malformed name.
	if state.EnsureConference(conv.AccountID, conv.DisplayID) {
		state.Apply(conv.Attributes)
		if err := s.repo.UpdateConversation(ctx, conv); err != nil {
			return nil, err
		}
	}

	res, err := s.dialer.InitiateCall(ctx, DialRequest{
		To:             contact.PhoneNumber,
		From:           inbox.PhoneNumber,
		ConferenceName: state.ConferenceID,
		AgentID:        req.AgentID,
	})
	if err != nil {
		return nil, fmt.Errorf("voice: call could not be placed: %w", err)
	}

	state.CallSid = res.CallSid
	state.RequiresAgentJoin = true
	state.AgentID = req.AgentID
	state.Apply(conv.Attributes)
	conv.LastActivityAt = s.Now()
	if err := s.repo.UpdateConversation(ctx, conv); err != nil {
		return nil, err
	}

	if err := s.createCallMessage(ctx, conv, inbox, contact, state, req.AgentID); err != nil {
		return nil, err
	}

	// One-time narration for the attempt; the persisted status has not yet
	// reached "initiated", so this goes through the narration entry point
	// rather than the idempotent transition path.
	name := contact.Name
	if name == "" {
		name = contact.PhoneNumber
	}
	if _, err := s.manager.Narrate(ctx, conv, StatusInitiated, "Outgoing call to "+name); err != nil {
		return nil, err
	}

	return conv, nil
}

// createCallMessage creates the single first-class call message of the
// attempt, seeded with the normalized "ringing" presentation.
func (s *OutgoingCallService) createCallMessage(ctx context.Context, conv *conversation.Conversation, inbox *conversation.Inbox, contact *conversation.Contact, state CallState, agentID int64) error {
	now := s.Now().Unix()
	msg := &conversation.Message{
		AccountID:      conv.AccountID,
		ConversationID: conv.ID,
		SenderID:       agentID,
		Content:        "Voice Call",
		MessageType:    conversation.MessageTypeOutgoing,
		ContentType:    conversation.ContentTypeVoiceCall,
		ContentAttributes: map[string]any{
			"data": map[string]any{
				"call_sid":        state.CallSid,
				"status":          StatusRinging.UIStatus(),
				"conversation_id": conv.DisplayID,
				"call_direction":  string(DirectionOutbound),
				"conference_id":   state.ConferenceID,
				"from_number":     inbox.PhoneNumber,
				"to_number":       contact.PhoneNumber,
				"agent_id":        agentID,
				"meta": map[string]any{
					"created_at": now,
					"ringing_at": now,
				},
			},
		},
		CreatedAt: s.Now(),
	}
	if err := s.repo.CreateMessage(ctx, msg); err != nil {
		return fmt.Errorf("voice: call message create failed: %w", err)
	}
	return nil
}
