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

// EventPublisher is the outbound side of the real-time distributor.
type EventPublisher interface {
	PublishCallStatusChanged(ctx context.Context, accountID int64, ev realtime.CallStatusChanged) error
	PublishIncomingCall(ctx context.Context, accountID int64, ev realtime.IncomingCall) error
}

// Manager is the sole authority for call_status transitions. All writers,
// the conference event processor and the outbound orchestrator alike, funnel
// through it. Callers are responsible for holding the conversation lock.
type Manager struct {
	repo      conversation.Repository
	publisher EventPublisher
	log       *slog.Logger

	Now func() time.Time
}

func NewManager(repo conversation.Repository, publisher EventPublisher, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{repo: repo, publisher: publisher, log: log, Now: time.Now}
}

// StatusUpdate carries the optional parts of a transition request.
type StatusUpdate struct {
	// CallSid attaches or updates the provider call identifier.
	CallSid string
	// Message overrides the default human-readable narration.
	Message string
}

// ProcessStatusUpdate applies a status transition to the conversation's call
// state. When the target equals the current status no message is created and
// nothing is published; this absorbs duplicate webhook delivery, which is the
// deliberate reason the provider may safely redeliver on non-2xx responses. A
// call sid carried by the duplicate is still recorded as a bookkeeping write,
// and an event publish that failed on the original delivery is retried.
//
// Transitions are permissive (provider events are authoritative) but the
// narration text is derived from the specific (from, to) pair so presentation
// stays correct even when intermediate states were skipped.
func (m *Manager) ProcessStatusUpdate(ctx context.Context, conv *conversation.Conversation, target CallStatus, upd StatusUpdate) (CallState, error) {
	if !target.Valid() {
		return CallState{}, fmt.Errorf("voice: invalid status %q", target)
	}
	state := Load(conv.Attributes)
	if state.Status == target {
		changed := false
		if upd.CallSid != "" && upd.CallSid != state.CallSid {
			state.CallSid = upd.CallSid
			changed = true
		}
		if state.EventPending {
			if err := m.publishStatus(ctx, conv, state, target); err != nil {
				return state, fmt.Errorf("voice: status event publish failed: %w", err)
			}
			state.EventPending = false
			changed = true
		}
		if changed {
			if conv.Attributes == nil {
				conv.Attributes = map[string]any{}
			}
			state.Apply(conv.Attributes)
			if err := m.repo.UpdateConversation(ctx, conv); err != nil {
				return state, fmt.Errorf("voice: call state persist failed: %w", err)
			}
		}
		return state, nil
	}
	return m.apply(ctx, conv, state, target, upd)
}

// Narrate applies a transition without idempotency suppression and with a
// caller-supplied narration. It exists for the single "initiated" entry on an
// outbound attempt, where the persisted status has not yet caught up with
// what the narration announces.
func (m *Manager) Narrate(ctx context.Context, conv *conversation.Conversation, target CallStatus, text string) (CallState, error) {
	if !target.Valid() {
		return CallState{}, fmt.Errorf("voice: invalid status %q", target)
	}
	state := Load(conv.Attributes)
	return m.apply(ctx, conv, state, target, StatusUpdate{Message: text})
}

func (m *Manager) apply(ctx context.Context, conv *conversation.Conversation, state CallState, target CallStatus, upd StatusUpdate) (CallState, error) {
	from := state.Status
	state.Status = target
	state.EventPending = false
	if upd.CallSid != "" {
		state.CallSid = upd.CallSid
	}
	if conv.Attributes == nil {
		conv.Attributes = map[string]any{}
	}
	state.Apply(conv.Attributes)

	if err := m.updateCallMessage(ctx, conv, state); err != nil {
		return state, err
	}

	text := upd.Message
	if text == "" {
		text = transitionText(from, target)
	}
	if text != "" {
		msg := &conversation.Message{
			AccountID:      conv.AccountID,
			ConversationID: conv.ID,
			Content:        text,
			MessageType:    conversation.MessageTypeActivity,
			ContentType:    conversation.ContentTypeText,
			CreatedAt:      m.Now(),
		}
		if err := m.repo.CreateMessage(ctx, msg); err != nil {
			return state, fmt.Errorf("voice: status narration failed: %w", err)
		}
	}

	conv.LastActivityAt = m.Now()
	if err := m.repo.UpdateConversation(ctx, conv); err != nil {
		return state, fmt.Errorf("voice: call state persist failed: %w", err)
	}

	if err := m.publishStatus(ctx, conv, state, target); err != nil {
		// The transition is durable at this point. Flag the unpublished
		// event so a redelivery of the same status retries the publish.
		state.EventPending = true
		state.Apply(conv.Attributes)
		if uerr := m.repo.UpdateConversation(ctx, conv); uerr != nil {
			return state, fmt.Errorf("voice: call state persist failed: %w", uerr)
		}
		return state, fmt.Errorf("voice: status event publish failed: %w", err)
	}

	m.log.Info("call status changed",
		"conversation_id", conv.ID,
		"from", from,
		"to", target,
		"call_sid", state.CallSid,
	)
	return state, nil
}

func (m *Manager) publishStatus(ctx context.Context, conv *conversation.Conversation, state CallState, target CallStatus) error {
	return m.publisher.PublishCallStatusChanged(ctx, conv.AccountID, realtime.CallStatusChanged{
		CallSid:        state.CallSid,
		Status:         string(target),
		ConversationID: conv.DisplayID,
		InboxID:        conv.InboxID,
		Timestamp:      m.Now().Unix(),
	})
}

// updateCallMessage refreshes the call message's normalized UI status. A
// conversation without a call message yet (inbound establishment in flight)
// is not an error.
func (m *Manager) updateCallMessage(ctx context.Context, conv *conversation.Conversation, state CallState) error {
	msg, err := m.repo.VoiceCallMessage(ctx, conv.ID, state.CallSid)
	if errors.Is(err, conversation.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	data := msg.CallData()
	data["status"] = state.Status.UIStatus()
	if state.CallSid != "" {
		data["call_sid"] = state.CallSid
	}
	meta, ok := data["meta"].(map[string]any)
	if !ok {
		meta = map[string]any{}
		data["meta"] = meta
	}
	switch state.Status {
	case StatusRinging:
		meta["ringing_at"] = m.Now().Unix()
	case StatusInProgress:
		meta["connected_at"] = m.Now().Unix()
	case StatusEnded, StatusNoAnswer:
		meta["ended_at"] = m.Now().Unix()
	}
	if err := m.repo.UpdateMessage(ctx, msg); err != nil {
		return fmt.Errorf("voice: call message update failed: %w", err)
	}
	return nil
}

// transitionText derives the narration for a specific transition.
func transitionText(from, to CallStatus) string {
	switch to {
	case StatusInitiated:
		return "Call initiated"
	case StatusRinging:
		return "Call ringing"
	case StatusInProgress:
		return "Call connected"
	case StatusNoAnswer:
		return "No answer"
	case StatusEnded:
		if from == StatusRinging {
			return "Call ended before connecting"
		}
		return "Call ended"
	default:
		return ""
	}
}
