package voice

import (
	"context"
	"time"

	"voicedesk/internal/conversation"
	"voicedesk/internal/realtime"
)

// fakePublisher records published events in order. Setting statusErr makes
// status publishes fail until it is cleared.
type fakePublisher struct {
	statusEvents   []realtime.CallStatusChanged
	incomingEvents []realtime.IncomingCall
	statusErr      error
}

func (f *fakePublisher) PublishCallStatusChanged(_ context.Context, _ int64, ev realtime.CallStatusChanged) error {
	if f.statusErr != nil {
		return f.statusErr
	}
	f.statusEvents = append(f.statusEvents, ev)
	return nil
}

func (f *fakePublisher) PublishIncomingCall(_ context.Context, _ int64, ev realtime.IncomingCall) error {
	f.incomingEvents = append(f.incomingEvents, ev)
	return nil
}

// fakeDialer returns a canned call sid and records dial requests.
type fakeDialer struct {
	requests []DialRequest
	sid      string
	err      error
}

func (f *fakeDialer) InitiateCall(_ context.Context, req DialRequest) (DialResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return DialResult{}, f.err
	}
	sid := f.sid
	if sid == "" {
		sid = "CAfake"
	}
	return DialResult{CallSid: sid}, nil
}

var testClock = func() time.Time { return time.Unix(1700000000, 0) }

// testEnv bundles the in-memory wiring every service test needs.
type testEnv struct {
	repo      *conversation.MemoryRepo
	publisher *fakePublisher
	manager   *Manager
	locker    *MemoryLocker
	inbox     *conversation.Inbox
	contact   *conversation.Contact
}

func newTestEnv() *testEnv {
	repo := conversation.NewMemoryRepo()
	repo.Now = testClock
	pub := &fakePublisher{}
	mgr := NewManager(repo, pub, nil)
	mgr.Now = testClock

	inbox := repo.AddInbox(&conversation.Inbox{
		AccountID:   1,
		Name:        "Support Line",
		ChannelType: conversation.ChannelTypeVoice,
		PhoneNumber: "+15550100",
	})
	contact := repo.AddContact(&conversation.Contact{
		AccountID:   1,
		Name:        "Ada",
		PhoneNumber: "+15550199",
	})

	return &testEnv{
		repo:      repo,
		publisher: pub,
		manager:   mgr,
		locker:    NewMemoryLocker(),
		inbox:     inbox,
		contact:   contact,
	}
}

// newConversation creates a voice conversation seeded with call state.
func (e *testEnv) newConversation(ctx context.Context, status CallStatus, direction CallDirection, callSid string) *conversation.Conversation {
	conv := &conversation.Conversation{
		AccountID:  1,
		InboxID:    e.inbox.ID,
		ContactID:  e.contact.ID,
		Attributes: map[string]any{},
	}
	if err := e.repo.CreateConversation(ctx, conv); err != nil {
		panic(err)
	}
	st := Load(conv.Attributes)
	st.Status = status
	st.Direction = direction
	st.CallSid = callSid
	st.EnsureConference(conv.AccountID, conv.DisplayID)
	st.Apply(conv.Attributes)
	if err := e.repo.UpdateConversation(ctx, conv); err != nil {
		panic(err)
	}
	return conv
}

// activityMessages filters the conversation timeline down to narration entries.
func (e *testEnv) activityMessages(ctx context.Context, conversationID int64) []conversation.Message {
	msgs, err := e.repo.MessagesByConversation(ctx, conversationID)
	if err != nil {
		panic(err)
	}
	var out []conversation.Message
	for _, m := range msgs {
		if m.MessageType == conversation.MessageTypeActivity {
			out = append(out, m)
		}
	}
	return out
}
