package voice

import (
	"context"
	"errors"
	"testing"

	"voicedesk/internal/conversation"
)

func newIncomingService(env *testEnv) *IncomingCallService {
	finder := conversation.NewFinderService(env.repo)
	finder.Now = testClock
	svc := NewIncomingCallService(env.repo, finder, env.locker, env.publisher, nil)
	svc.Now = testClock
	return svc
}

func TestIncomingCallEstablishesConversation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	svc := newIncomingService(env)

	conv, err := svc.Process(ctx, InboundCallRequest{
		CallSid:    "CA200",
		From:       "+15550177",
		To:         env.inbox.PhoneNumber,
		CallerName: "Grace",
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	st := env.stateOf(ctx, t, conv.ID)
	if st.Direction != DirectionInbound || st.CallSid != "CA200" {
		t.Fatalf("state = %+v", st)
	}
	if want := ConferenceName(conv.AccountID, conv.DisplayID); st.ConferenceID != want {
		t.Fatalf("conference id = %q, want %q", st.ConferenceID, want)
	}

	// New caller becomes a contact named from caller id.
	contact, err := env.repo.ContactByPhone(ctx, 1, "+15550177")
	if err != nil {
		t.Fatal(err)
	}
	if contact.Name != "Grace" {
		t.Fatalf("contact name = %q", contact.Name)
	}

	msg, err := env.repo.VoiceCallMessage(ctx, conv.ID, "CA200")
	if err != nil {
		t.Fatalf("call message missing: %v", err)
	}
	if msg.MessageType != conversation.MessageTypeIncoming {
		t.Fatalf("message type = %s", msg.MessageType)
	}

	if len(env.publisher.incomingEvents) != 1 {
		t.Fatalf("%d incoming_call events, want 1", len(env.publisher.incomingEvents))
	}
	ev := env.publisher.incomingEvents[0]
	if ev.CallSid != "CA200" || ev.ConversationID != conv.DisplayID || ev.InboxID != env.inbox.ID {
		t.Fatalf("event = %+v", ev)
	}
	if ev.ContactName != "Grace" || ev.IsOutbound {
		t.Fatalf("event = %+v", ev)
	}
}

func TestIncomingCallRedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	svc := newIncomingService(env)

	req := InboundCallRequest{CallSid: "CA200", From: "+15550177", To: env.inbox.PhoneNumber}
	first, err := svc.Process(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Process(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatalf("redelivery created conversation %d, want %d", second.ID, first.ID)
	}

	msgs, _ := env.repo.MessagesByConversation(ctx, first.ID)
	if len(msgs) != 1 {
		t.Fatalf("%d call messages after redelivery, want 1", len(msgs))
	}
}

func TestIncomingCallUnknownNumber(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	svc := newIncomingService(env)

	_, err := svc.Process(ctx, InboundCallRequest{CallSid: "CA1", From: "+15550177", To: "+19999999"})
	if !errors.Is(err, conversation.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestIncomingCallRejectsIncompleteRequest(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	svc := newIncomingService(env)

	for _, req := range []InboundCallRequest{
		{From: "+1", To: "+2"},
		{CallSid: "CA1", To: "+2"},
		{CallSid: "CA1", From: "+1"},
	} {
		if _, err := svc.Process(ctx, req); !errors.Is(err, conversation.ErrInvalidRequest) {
			t.Errorf("Process(%+v) err = %v, want ErrInvalidRequest", req, err)
		}
	}
}

func TestIncomingCallNewAttemptOnReusedConversation(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv()
	svc := newIncomingService(env)

	req := InboundCallRequest{CallSid: "CA1", From: env.contact.PhoneNumber, To: env.inbox.PhoneNumber}
	first, err := svc.Process(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	// End the first call, then the same caller dials again.
	if err := newConferenceProcessor(env).Process(ctx, first.ID, ConferenceEvent{Type: EventConferenceEnd, CallSid: "CA1"}); err != nil {
		t.Fatal(err)
	}
	second, err := svc.Process(ctx, InboundCallRequest{CallSid: "CA2", From: env.contact.PhoneNumber, To: env.inbox.PhoneNumber})
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatalf("conversation %d, want reuse of %d", second.ID, first.ID)
	}

	st := env.stateOf(ctx, t, second.ID)
	if st.CallSid != "CA2" {
		t.Fatalf("call sid = %q, want CA2", st.CallSid)
	}
	if st.Status != StatusNone {
		t.Fatalf("status = %s, want clean slate for the new attempt", st.Status)
	}
}
