package voice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voicedesk/internal/conversation"
)

// ConferenceProcessor turns provider conference webhooks into status signals.
// Webhooks arrive at-least-once and unordered; every decision re-reads the
// persisted state under the conversation lock, and the status manager's
// idempotency absorbs duplicates.
type ConferenceProcessor struct {
	repo    conversation.Repository
	manager *Manager
	locker  ConversationLocker
	log     *slog.Logger

	Now func() time.Time
}

func NewConferenceProcessor(repo conversation.Repository, manager *Manager, locker ConversationLocker, log *slog.Logger) *ConferenceProcessor {
	if log == nil {
		log = slog.Default()
	}
	return &ConferenceProcessor{repo: repo, manager: manager, locker: locker, log: log, Now: time.Now}
}

// Process applies one conference event to a conversation. It always persists
// the conversation afterwards so join-timestamp bookkeeping survives even on
// no-op branches.
func (p *ConferenceProcessor) Process(ctx context.Context, conversationID int64, ev ConferenceEvent) error {
	release, err := p.locker.Lock(ctx, conversationID)
	if err != nil {
		return err
	}
	defer release()

	conv, err := p.repo.ConversationByID(ctx, conversationID)
	if err != nil {
		return err
	}
	state := Load(conv.Attributes)

	switch ev.Type {
	case EventConferenceStart:
		err = p.handleConferenceStart(ctx, conv, state, ev)
	case EventConferenceEnd:
		err = p.handleConferenceEnd(ctx, conv, state, ev)
	case EventParticipantJoin:
		err = p.handleParticipantJoin(ctx, conv, state, ev)
	case EventParticipantLeave:
		err = p.handleParticipantLeave(ctx, conv, state, ev)
	default:
		// Unknown event types are ignored, keeping us forward-compatible
		// with provider vocabulary growth.
		p.log.Debug("conference event ignored", "type", ev.Type, "conversation_id", conversationID)
	}
	if err != nil {
		return err
	}

	return p.repo.UpdateConversation(ctx, conv)
}

func (p *ConferenceProcessor) handleConferenceStart(ctx context.Context, conv *conversation.Conversation, state CallState, ev ConferenceEvent) error {
	// A late start after the call progressed or reached a terminal state is
	// a duplicate or out-of-order delivery; never regress.
	if state.Status == StatusInProgress || state.Status.Terminal() {
		return nil
	}
	_, err := p.manager.ProcessStatusUpdate(ctx, conv, StatusRinging, StatusUpdate{CallSid: ev.CallSid})
	return err
}

func (p *ConferenceProcessor) handleConferenceEnd(ctx context.Context, conv *conversation.Conversation, state CallState, ev ConferenceEvent) error {
	target := StatusEnded
	if state.Status == StatusRinging {
		target = StatusNoAnswer
	}
	_, err := p.manager.ProcessStatusUpdate(ctx, conv, target, StatusUpdate{CallSid: ev.CallSid})
	return err
}

func (p *ConferenceProcessor) handleParticipantJoin(ctx context.Context, conv *conversation.Conversation, state CallState, ev ConferenceEvent) error {
	switch ClassifyParticipant(ev.ParticipantLabel) {
	case RoleAgent:
		state.MarkAgentJoined(p.Now().Unix())
		state.Apply(conv.Attributes)
		if state.Status != StatusRinging {
			return nil
		}
		_, err := p.manager.ProcessStatusUpdate(ctx, conv, StatusInProgress, StatusUpdate{CallSid: ev.CallSid})
		return err
	case RoleCaller:
		state.MarkCallerJoined(p.Now().Unix())
		state.Apply(conv.Attributes)
		// On inbound calls the caller is present from the start; only an
		// outbound callee answering moves the call forward.
		if state.Direction != DirectionOutbound || state.Status != StatusRinging {
			return nil
		}
		_, err := p.manager.ProcessStatusUpdate(ctx, conv, StatusInProgress, StatusUpdate{CallSid: ev.CallSid})
		return err
	default:
		return nil
	}
}

func (p *ConferenceProcessor) handleParticipantLeave(ctx context.Context, conv *conversation.Conversation, state CallState, ev ConferenceEvent) error {
	if ClassifyParticipant(ev.ParticipantLabel) != RoleCaller {
		return nil
	}
	switch {
	case state.Status == StatusInProgress:
		_, err := p.manager.ProcessStatusUpdate(ctx, conv, StatusEnded, StatusUpdate{CallSid: ev.CallSid})
		return err
	case state.Status == StatusRinging && state.AgentJoinedAt == 0:
		_, err := p.manager.ProcessStatusUpdate(ctx, conv, StatusNoAnswer, StatusUpdate{CallSid: ev.CallSid})
		return err
	default:
		return nil
	}
}

// ResolveConversation finds the conversation a conference event belongs to by
// its deterministic conference name.
func (p *ConferenceProcessor) ResolveConversation(ctx context.Context, conferenceName string) (*conversation.Conversation, error) {
	accountID, displayID, ok := ParseConferenceName(conferenceName)
	if !ok {
		return nil, fmt.Errorf("voice: unrecognized conference name %q: %w", conferenceName, conversation.ErrNotFound)
	}
	return p.repo.ConversationByDisplayID(ctx, accountID, displayID)
}
