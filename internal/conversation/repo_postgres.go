package conversation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"voicedesk/pkg/utils"
)

// PostgresRepo persists the aggregate in Postgres. The flexible attribute
// maps are stored as JSONB so call state keys stay schema-free.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) VoiceInbox(ctx context.Context, accountID int64) (*Inbox, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, name, channel_type, phone_number, COALESCE(avatar_url, '')
		FROM inboxes
		WHERE account_id = $1 AND channel_type = $2
		ORDER BY id
		LIMIT 1`, accountID, ChannelTypeVoice)
	return scanInbox(row)
}

func (r *PostgresRepo) InboxByID(ctx context.Context, accountID, inboxID int64) (*Inbox, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, name, channel_type, phone_number, COALESCE(avatar_url, '')
		FROM inboxes
		WHERE account_id = $1 AND id = $2`, accountID, inboxID)
	return scanInbox(row)
}

func (r *PostgresRepo) InboxByNumber(ctx context.Context, phoneNumber string) (*Inbox, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, name, channel_type, phone_number, COALESCE(avatar_url, '')
		FROM inboxes
		WHERE phone_number = $1
		LIMIT 1`, phoneNumber)
	return scanInbox(row)
}

func (r *PostgresRepo) ContactByID(ctx context.Context, accountID, contactID int64) (*Contact, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, COALESCE(name, ''), COALESCE(phone_number, ''), COALESCE(avatar_url, '')
		FROM contacts
		WHERE account_id = $1 AND id = $2`, accountID, contactID)
	return scanContact(row)
}

func (r *PostgresRepo) ContactByPhone(ctx context.Context, accountID int64, phoneNumber string) (*Contact, error) {
	if phoneNumber == "" {
		return nil, ErrInvalidRequest
	}
	row := r.db.QueryRowContext(ctx, `
		SELECT id, account_id, COALESCE(name, ''), COALESCE(phone_number, ''), COALESCE(avatar_url, '')
		FROM contacts
		WHERE account_id = $1 AND phone_number = $2
		LIMIT 1`, accountID, phoneNumber)
	return scanContact(row)
}

func (r *PostgresRepo) CreateContact(ctx context.Context, c *Contact) error {
	if c == nil || c.AccountID == 0 {
		return ErrInvalidRequest
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO contacts (account_id, name, phone_number, avatar_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id`, c.AccountID, c.Name, c.PhoneNumber, c.AvatarURL).Scan(&c.ID)
}

// CreateConversation inserts the row and claims the next per-account
// display_id inside one transaction so concurrent creates never collide.
func (r *PostgresRepo) CreateConversation(ctx context.Context, c *Conversation) error {
	if c == nil || c.AccountID == 0 {
		return ErrInvalidRequest
	}
	attrs, err := marshalAttrs(c.Attributes)
	if err != nil {
		return err
	}
	return utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		// Serialize display_id allocation per account for the duration of
		// this transaction.
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, c.AccountID); err != nil {
			return fmt.Errorf("conversation: display_id lock failed: %w", err)
		}
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(display_id), 0) + 1
			FROM conversations
			WHERE account_id = $1`, c.AccountID).Scan(&c.DisplayID); err != nil {
			return fmt.Errorf("conversation: display_id allocation failed: %w", err)
		}
		now := time.Now().UTC()
		c.CreatedAt = now
		c.UpdatedAt = now
		return tx.QueryRowContext(ctx, `
			INSERT INTO conversations (account_id, display_id, inbox_id, contact_id, additional_attributes, last_activity_at, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id`,
			c.AccountID, c.DisplayID, c.InboxID, c.ContactID, attrs, c.LastActivityAt, c.CreatedAt, c.UpdatedAt,
		).Scan(&c.ID)
	})
}

func (r *PostgresRepo) UpdateConversation(ctx context.Context, c *Conversation) error {
	if c == nil || c.ID == 0 {
		return ErrInvalidRequest
	}
	attrs, err := marshalAttrs(c.Attributes)
	if err != nil {
		return err
	}
	c.UpdatedAt = time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET additional_attributes = $1, last_activity_at = $2, updated_at = $3
		WHERE id = $4`, attrs, c.LastActivityAt, c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const conversationColumns = `id, account_id, display_id, inbox_id, contact_id, additional_attributes, last_activity_at, created_at, updated_at`

func (r *PostgresRepo) ConversationByID(ctx context.Context, id int64) (*Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

func (r *PostgresRepo) ConversationByDisplayID(ctx context.Context, accountID, displayID int64) (*Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE account_id = $1 AND display_id = $2`,
		accountID, displayID)
	return scanConversation(row)
}

func (r *PostgresRepo) ConversationByCallSid(ctx context.Context, accountID int64, callSid string) (*Conversation, error) {
	if callSid == "" {
		return nil, ErrInvalidRequest
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE account_id = $1 AND additional_attributes->>'call_sid' = $2
		 ORDER BY id DESC LIMIT 1`, accountID, callSid)
	return scanConversation(row)
}

func (r *PostgresRepo) OpenVoiceConversation(ctx context.Context, accountID, inboxID, contactID int64) (*Conversation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE account_id = $1 AND inbox_id = $2 AND contact_id = $3
		 ORDER BY id DESC LIMIT 1`, accountID, inboxID, contactID)
	return scanConversation(row)
}

func (r *PostgresRepo) CreateMessage(ctx context.Context, m *Message) error {
	if m == nil || m.ConversationID == 0 {
		return ErrInvalidRequest
	}
	attrs, err := marshalAttrs(m.ContentAttributes)
	if err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO messages (account_id, conversation_id, sender_id, content, message_type, content_type, content_attributes, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		m.AccountID, m.ConversationID, m.SenderID, m.Content, m.MessageType, m.ContentType, attrs, m.CreatedAt,
	).Scan(&m.ID)
}

func (r *PostgresRepo) UpdateMessage(ctx context.Context, m *Message) error {
	if m == nil || m.ID == 0 {
		return ErrInvalidRequest
	}
	attrs, err := marshalAttrs(m.ContentAttributes)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE messages SET content = $1, content_attributes = $2 WHERE id = $3`,
		m.Content, attrs, m.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const messageColumns = `id, account_id, conversation_id, sender_id, content, message_type, content_type, content_attributes, created_at`

func (r *PostgresRepo) VoiceCallMessage(ctx context.Context, conversationID int64, callSid string) (*Message, error) {
	var row *sql.Row
	if callSid != "" {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+messageColumns+` FROM messages
			 WHERE conversation_id = $1 AND content_type = $2
			   AND content_attributes->'data'->>'call_sid' = $3
			 ORDER BY id DESC LIMIT 1`, conversationID, ContentTypeVoiceCall, callSid)
	} else {
		row = r.db.QueryRowContext(ctx,
			`SELECT `+messageColumns+` FROM messages
			 WHERE conversation_id = $1 AND content_type = $2
			 ORDER BY id DESC LIMIT 1`, conversationID, ContentTypeVoiceCall)
	}
	return scanMessage(row)
}

func (r *PostgresRepo) MessagesByConversation(ctx context.Context, conversationID int64) ([]Message, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = $1 ORDER BY id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		var attrs []byte
		if err := rows.Scan(&m.ID, &m.AccountID, &m.ConversationID, &m.SenderID, &m.Content, &m.MessageType, &m.ContentType, &attrs, &m.CreatedAt); err != nil {
			return nil, err
		}
		if err := unmarshalAttrs(attrs, &m.ContentAttributes); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanInbox(row *sql.Row) (*Inbox, error) {
	var in Inbox
	err := row.Scan(&in.ID, &in.AccountID, &in.Name, &in.ChannelType, &in.PhoneNumber, &in.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

func scanContact(row *sql.Row) (*Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.AccountID, &c.Name, &c.PhoneNumber, &c.AvatarURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var c Conversation
	var attrs []byte
	err := row.Scan(&c.ID, &c.AccountID, &c.DisplayID, &c.InboxID, &c.ContactID, &attrs, &c.LastActivityAt, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := unmarshalAttrs(attrs, &c.Attributes); err != nil {
		return nil, err
	}
	return &c, nil
}

func scanMessage(row *sql.Row) (*Message, error) {
	var m Message
	var attrs []byte
	err := row.Scan(&m.ID, &m.AccountID, &m.ConversationID, &m.SenderID, &m.Content, &m.MessageType, &m.ContentType, &attrs, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := unmarshalAttrs(attrs, &m.ContentAttributes); err != nil {
		return nil, err
	}
	return &m, nil
}

func marshalAttrs(m map[string]any) ([]byte, error) {
	if m == nil {
		m = map[string]any{}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("conversation: attribute encode failed: %w", err)
	}
	return b, nil
}

func unmarshalAttrs(b []byte, dst *map[string]any) error {
	if len(b) == 0 {
		*dst = map[string]any{}
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("conversation: attribute decode failed: %w", err)
	}
	return nil
}
