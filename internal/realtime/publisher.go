package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Publisher fans events out on the account-scoped channel. One publish per
// accepted transition; duplicate suppression happens upstream in the status
// manager, not here.
type Publisher struct {
	rdb *redis.Client
	log *slog.Logger
}

func NewPublisher(rdb *redis.Client, log *slog.Logger) *Publisher {
	if log == nil {
		log = slog.Default()
	}
	return &Publisher{rdb: rdb, log: log}
}

func (p *Publisher) PublishCallStatusChanged(ctx context.Context, accountID int64, ev CallStatusChanged) error {
	return p.publish(ctx, accountID, EventCallStatusChanged, ev)
}

func (p *Publisher) PublishIncomingCall(ctx context.Context, accountID int64, ev IncomingCall) error {
	return p.publish(ctx, accountID, EventIncomingCall, ev)
}

func (p *Publisher) PublishTypingOn(ctx context.Context, accountID int64, t Typing) error {
	return p.publish(ctx, accountID, EventTypingOn, t)
}

func (p *Publisher) PublishTypingOff(ctx context.Context, accountID int64, t Typing) error {
	return p.publish(ctx, accountID, EventTypingOff, t)
}

func (p *Publisher) publish(ctx context.Context, accountID int64, event string, data any) error {
	if p.rdb == nil {
		return fmt.Errorf("realtime: redis client not configured")
	}
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("realtime: %s encode failed: %w", event, err)
	}
	env := Envelope{Event: event, AccountID: accountID, Data: body}
	frame, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("realtime: envelope encode failed: %w", err)
	}
	if err := p.rdb.Publish(ctx, ChannelName(accountID), frame).Err(); err != nil {
		return fmt.Errorf("realtime: publish %s failed: %w", event, err)
	}
	p.log.Debug("event published", "event", event, "account_id", accountID)
	return nil
}
