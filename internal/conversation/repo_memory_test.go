package conversation

import (
	"context"
	"errors"
	"testing"
)

func TestDisplayIDSequencePerAccount(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	for want := int64(1); want <= 3; want++ {
		c := &Conversation{AccountID: 1}
		if err := repo.CreateConversation(ctx, c); err != nil {
			t.Fatal(err)
		}
		if c.DisplayID != want {
			t.Fatalf("display id = %d, want %d", c.DisplayID, want)
		}
	}

	// A different account has its own sequence.
	c := &Conversation{AccountID: 2}
	if err := repo.CreateConversation(ctx, c); err != nil {
		t.Fatal(err)
	}
	if c.DisplayID != 1 {
		t.Fatalf("account 2 display id = %d, want 1", c.DisplayID)
	}
}

func TestAccountIsolationOnReads(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	contact := repo.AddContact(&Contact{AccountID: 1, Name: "Ada", PhoneNumber: "+1"})

	if _, err := repo.ContactByID(ctx, 2, contact.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-account contact read: err = %v, want ErrNotFound", err)
	}
	if _, err := repo.ContactByPhone(ctx, 2, "+1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-account phone read: err = %v, want ErrNotFound", err)
	}

	conv := &Conversation{AccountID: 1}
	if err := repo.CreateConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.ConversationByDisplayID(ctx, 2, conv.DisplayID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-account conversation read: err = %v, want ErrNotFound", err)
	}
}

func TestStoredConversationIsIsolatedFromCaller(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	conv := &Conversation{AccountID: 1, Attributes: map[string]any{"call_status": "ringing"}}
	if err := repo.CreateConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	// Mutating the caller's map after the write must not leak into the store.
	conv.Attributes["call_status"] = "ended"

	stored, err := repo.ConversationByID(ctx, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Attributes["call_status"] != "ringing" {
		t.Fatalf("stored attributes aliased caller's map: %v", stored.Attributes)
	}
}

func TestConversationByCallSid(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	conv := &Conversation{AccountID: 1, Attributes: map[string]any{"call_sid": "CA1"}}
	if err := repo.CreateConversation(ctx, conv); err != nil {
		t.Fatal(err)
	}

	got, err := repo.ConversationByCallSid(ctx, 1, "CA1")
	if err != nil || got.ID != conv.ID {
		t.Fatalf("lookup = %+v, %v", got, err)
	}
	if _, err := repo.ConversationByCallSid(ctx, 1, "CA2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown sid: err = %v", err)
	}
	if _, err := repo.ConversationByCallSid(ctx, 1, ""); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("empty sid: err = %v", err)
	}
}

func TestVoiceCallMessageMatchesBySid(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	older := &Message{
		ConversationID: 1,
		ContentType:    ContentTypeVoiceCall,
		ContentAttributes: map[string]any{
			"data": map[string]any{"call_sid": "CA1"},
		},
	}
	newer := &Message{
		ConversationID: 1,
		ContentType:    ContentTypeVoiceCall,
		ContentAttributes: map[string]any{
			"data": map[string]any{"call_sid": "CA2"},
		},
	}
	for _, m := range []*Message{older, newer} {
		if err := repo.CreateMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.VoiceCallMessage(ctx, 1, "CA1")
	if err != nil || got.ID != older.ID {
		t.Fatalf("sid-pinned lookup = %+v, %v", got, err)
	}

	// Without a sid the latest call message wins.
	got, err = repo.VoiceCallMessage(ctx, 1, "")
	if err != nil || got.ID != newer.ID {
		t.Fatalf("latest lookup = %+v, %v", got, err)
	}
}

func TestMessagesByConversationOrdered(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()

	for i := 0; i < 3; i++ {
		if err := repo.CreateMessage(ctx, &Message{ConversationID: 1, Content: "m"}); err != nil {
			t.Fatal(err)
		}
	}
	msgs, err := repo.MessagesByConversation(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 3 {
		t.Fatalf("%d messages", len(msgs))
	}
	for i := 1; i < len(msgs); i++ {
		if msgs[i].ID < msgs[i-1].ID {
			t.Fatalf("timeline out of order: %v", msgs)
		}
	}
}

func TestVoiceInbox(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	repo.AddInbox(&Inbox{AccountID: 1, ChannelType: "email", PhoneNumber: ""})
	voiceInbox := repo.AddInbox(&Inbox{AccountID: 1, ChannelType: ChannelTypeVoice, PhoneNumber: "+15550100"})

	got, err := repo.VoiceInbox(ctx, 1)
	if err != nil || got.ID != voiceInbox.ID {
		t.Fatalf("VoiceInbox = %+v, %v", got, err)
	}
	if _, err := repo.VoiceInbox(ctx, 2); !errors.Is(err, ErrNotFound) {
		t.Fatalf("account without voice inbox: err = %v", err)
	}
}
