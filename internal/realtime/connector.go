package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// TypingTimeout is how long a typing indicator stays on without an explicit
// typing_off signal.
const TypingTimeout = 30 * time.Second

// Connector is the consuming side of the distributor: it subscribes to one
// account's channel, drops events for other accounts before any handler sees
// them, normalizes wire payloads, and updates the call store and typing state.
type Connector struct {
	accountID int64
	rdb       *redis.Client
	store     *CallStore
	log       *slog.Logger

	// TypingTTL overrides TypingTimeout; tests shorten it.
	TypingTTL time.Duration
	Now       func() time.Time

	mu     sync.Mutex
	typing map[int64]*typingEntry // by conversation_id
}

type typingEntry struct {
	userID int64
	timer  *time.Timer
}

func NewConnector(rdb *redis.Client, accountID int64, store *CallStore, log *slog.Logger) *Connector {
	if log == nil {
		log = slog.Default()
	}
	return &Connector{
		accountID: accountID,
		rdb:       rdb,
		store:     store,
		log:       log,
		TypingTTL: TypingTimeout,
		Now:       time.Now,
		typing:    map[int64]*typingEntry{},
	}
}

// Run subscribes and dispatches until ctx is cancelled.
func (c *Connector) Run(ctx context.Context) error {
	sub := c.rdb.Subscribe(ctx, ChannelName(c.accountID))
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			c.stopAllTimers()
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				c.stopAllTimers()
				return nil
			}
			c.Dispatch([]byte(msg.Payload))
		}
	}
}

// Dispatch handles one raw channel frame. Exported so tests can feed frames
// without a broker.
func (c *Connector) Dispatch(frame []byte) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		c.log.Warn("undecodable frame dropped", "err", err)
		return
	}
	// Cross-cutting account filter: events for another account are never
	// delivered to handlers.
	if env.AccountID != c.accountID {
		return
	}

	switch env.Event {
	case EventIncomingCall:
		p, err := NormalizeIncomingCall(env.Data)
		if err != nil {
			c.log.Warn("incoming_call dropped", "err", err)
			return
		}
		c.store.SetIncomingCall(p)
	case EventCallStatusChanged:
		u, err := NormalizeCallStatusChanged(env.Data, c.Now)
		if err != nil {
			c.log.Warn("call_status_changed dropped", "err", err)
			return
		}
		c.store.ApplyStatusChange(u)
	case EventTypingOn:
		var t Typing
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return
		}
		c.typingOn(t)
	case EventTypingOff:
		var t Typing
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return
		}
		c.typingOff(t.ConversationID)
	default:
		// Other platform sync events share this channel; not ours.
	}
}

// TypingUser returns the user currently typing in a conversation, if any.
func (c *Connector) TypingUser(conversationID int64) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.typing[conversationID]
	if !ok {
		return 0, false
	}
	return e.userID, true
}

// typingOn cancels and replaces any pending timer for the conversation.
// There is never more than one live timer per conversation.
func (c *Connector) typingOn(t Typing) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.typing[t.ConversationID]; ok {
		prev.timer.Stop()
	}
	id := t.ConversationID
	e := &typingEntry{userID: t.UserID}
	e.timer = time.AfterFunc(c.TypingTTL, func() { c.expireTyping(id, e) })
	c.typing[id] = e
}

// expireTyping clears the indicator when its timer fires. Stop is not a
// guarantee: a timer whose callback has already started cannot be stopped,
// only disowned, so the callback checks that its entry is still the one in
// the map before clearing. A replaced timer that fires late is a no-op.
func (c *Connector) expireTyping(conversationID int64, owner *typingEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.typing[conversationID]; ok && e == owner {
		delete(c.typing, conversationID)
	}
}

func (c *Connector) typingOff(conversationID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.typing[conversationID]; ok {
		e.timer.Stop()
		delete(c.typing, conversationID)
	}
}

func (c *Connector) stopAllTimers() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, e := range c.typing {
		e.timer.Stop()
		delete(c.typing, id)
	}
}
