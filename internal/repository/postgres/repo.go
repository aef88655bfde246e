package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/cache"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/domain"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/observability"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/repository"
	"github.com/SARVESHVARADKAR123/RealChat/services/messaging/internal/tx"
	"github.com/lib/pq"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

type Repository struct {
	DB    *sql.DB
	Cache *cache.Cache
	Tx    tx.Transactor
}

var _ repository.Repository = (*Repository)(nil)

type queryable interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func (r *Repository) getter(tx *sql.Tx) queryable {
	if tx != nil {
		return tx
	}
	return r.DB
}

func (r *Repository) EnsureSchema(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, schema)
	return err
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.DB.PingContext(ctx)
}

const messageColumns = `id, conversation_id, sender_id, content,
		       sent_at, delivered_at, read_at, status, retry_count`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	var msg domain.Message
	var deliveredAt, readAt sql.NullTime
	if err := row.Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.SenderID,
		&msg.Content,
		&msg.SentAt,
		&deliveredAt,
		&readAt,
		&msg.Status,
		&msg.RetryCount,
	); err != nil {
		return nil, err
	}
	if deliveredAt.Valid {
		msg.DeliveredAt = &deliveredAt.Time
	}
	if readAt.Valid {
		msg.ReadAt = &readAt.Time
	}
	return &msg, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func (r *Repository) AppendMessage(ctx context.Context, msg *domain.Message) error {
	err := r.Tx.WithTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		q := r.getter(tx)

		res, err := q.ExecContext(ctx, `
			UPDATE conversations
			SET updated_at = GREATEST(updated_at, $2)
			WHERE id = $1
		`, msg.ConversationID, msg.SentAt)
		if err != nil {
			return fmt.Errorf("touch conversation: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return domain.ErrConversationNotFound
		}

		_, err = q.ExecContext(ctx, `
			INSERT INTO messages (
				id, conversation_id, sender_id, content,
				sent_at, delivered_at, read_at, status, retry_count
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`,
			msg.ID,
			msg.ConversationID,
			msg.SenderID,
			msg.Content,
			msg.SentAt,
			nullTime(msg.DeliveredAt),
			nullTime(msg.ReadAt),
			msg.Status,
			msg.RetryCount,
		)
		if err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if r.Cache != nil {
		if err := r.Cache.DeleteConversation(ctx, msg.ConversationID); err != nil {
			observability.GetLogger(ctx).Warn("conversation cache invalidation failed",
				zap.String("conversation_id", msg.ConversationID), zap.Error(err))
		}
	}
	return nil
}

func (r *Repository) GetMessage(ctx context.Context, id string) (*domain.Message, error) {
	row := r.DB.QueryRowContext(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE id = $1
	`, id)

	msg, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrMessageNotFound
		}
		return nil, err
	}
	return msg, nil
}

func (r *Repository) SaveMessage(ctx context.Context, msg *domain.Message, expected domain.MessageStatus) error {
	res, err := r.DB.ExecContext(ctx, `
		UPDATE messages
		SET status = $2, delivered_at = $3, read_at = $4, retry_count = $5
		WHERE id = $1 AND status = $6
	`,
		msg.ID,
		msg.Status,
		nullTime(msg.DeliveredAt),
		nullTime(msg.ReadAt),
		msg.RetryCount,
		expected,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.DB.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, msg.ID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrMessageNotFound
	}
	return domain.ErrStaleStatus
}

// buildMessageWhere renders a MessageFilter as a WHERE clause with positional
// arguments starting at $1.
func buildMessageWhere(f repository.MessageFilter) (string, []interface{}) {
	var conds []string
	var args []interface{}

	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, s := range f.Statuses {
			statuses[i] = string(s)
		}
		conds = append(conds, "status = ANY("+arg(pq.Array(statuses))+")")
	}
	if f.MaxRetryCount != nil {
		conds = append(conds, "retry_count <= "+arg(*f.MaxRetryCount))
	}
	if len(f.ConversationIDs) > 0 {
		conds = append(conds, "conversation_id = ANY("+arg(pq.Array(f.ConversationIDs))+")")
	}
	if f.ExcludeSenderID != "" {
		conds = append(conds, "sender_id <> "+arg(f.ExcludeSenderID))
	}
	if !f.SentAfter.IsZero() {
		conds = append(conds, "sent_at > "+arg(f.SentAfter))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (r *Repository) FindMessages(ctx context.Context, f repository.MessageFilter) ([]*domain.Message, error) {
	where, args := buildMessageWhere(f)
	query := "SELECT " + messageColumns + " FROM messages" + where + " ORDER BY sent_at ASC, id ASC"
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []*domain.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (r *Repository) CountMessages(ctx context.Context, f repository.MessageFilter) (int, error) {
	where, args := buildMessageWhere(f)
	var n int
	err := r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages"+where, args...).Scan(&n)
	return n, err
}

func (r *Repository) GetUser(ctx context.Context, id string) (*domain.User, error) {
	var u domain.User
	err := r.DB.QueryRowContext(ctx, `
		SELECT id, username, created_at
		FROM users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *Repository) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	if r.Cache != nil {
		conv, err := r.Cache.GetConversation(ctx, id)
		if err == nil && conv != nil {
			return conv, nil
		}
	}

	conv, err := r.fetchConversation(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	if r.Cache != nil {
		_ = r.Cache.SetConversation(ctx, conv)
	}
	return conv, nil
}

func (r *Repository) ListConversationsByUser(ctx context.Context, userID string) ([]*domain.Conversation, error) {
	rows, err := r.DB.QueryContext(ctx, `
		SELECT c.id, c.creator_id, c.created_at, c.updated_at,
		       ARRAY(SELECT p.user_id FROM conversation_participants p
		             WHERE p.conversation_id = c.id ORDER BY p.joined_at, p.user_id)
		FROM conversations c
		JOIN conversation_participants cp ON c.id = cp.conversation_id
		WHERE cp.user_id = $1
		ORDER BY c.updated_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []*domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(
			&c.ID,
			&c.CreatorID,
			&c.CreatedAt,
			&c.UpdatedAt,
			pq.Array(&c.ParticipantIDs),
		); err != nil {
			return nil, err
		}
		conversations = append(conversations, &c)
	}
	return conversations, rows.Err()
}

func (r *Repository) fetchConversation(ctx context.Context, tx *sql.Tx, id string) (*domain.Conversation, error) {
	q := r.getter(tx)

	var conv domain.Conversation
	err := q.QueryRowContext(ctx, `
		SELECT id, creator_id, created_at, updated_at
		FROM conversations
		WHERE id = $1
	`, id).Scan(&conv.ID, &conv.CreatorID, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrConversationNotFound
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT user_id
		FROM conversation_participants
		WHERE conversation_id = $1
		ORDER BY joined_at, user_id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		conv.ParticipantIDs = append(conv.ParticipantIDs, userID)
	}
	return &conv, rows.Err()
}
