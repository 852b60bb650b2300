package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"dmchat/models"
)

var ErrMessageNotFound = errors.New("message not found")

// MessageStore is the durable append-only log of direct messages
type MessageStore struct {
	db *DB
}

func NewMessageStore(db *DB) *MessageStore {
	return &MessageStore{db: db}
}

const messageSelect = `SELECT m.id, m.content, m.file_url, m.type, m.sent_at,
		s.id, s.user_id, s.username, s.display_name,
		r.id, r.user_id, r.username, r.display_name
	FROM messages m
	JOIN users s ON s.id = m.sender_id
	JOIN users r ON r.id = m.receiver_id`

const pairClause = `((m.sender_id = ? AND m.receiver_id = ?) OR (m.sender_id = ? AND m.receiver_id = ?))`

const conversationOrder = ` ORDER BY m.sent_at ASC, m.id ASC`

// Append stores a new message and stamps it with the current time
func (s *MessageStore) Append(ctx context.Context, sender, receiver models.UserRef, msgType models.MessageType, content, fileURL *string) (*models.Message, error) {
	if msgType == "" {
		msgType = models.MessageTypeText
	}
	msg := &models.Message{
		Sender:   sender,
		Receiver: receiver,
		Content:  content,
		FileURL:  fileURL,
		Type:     msgType,
		SentAt:   s.db.now().UTC(),
	}

	err := s.db.QueryRowContext(ctx,
		s.db.rebind("INSERT INTO messages (sender_id, receiver_id, content, file_url, type, sent_at) VALUES (?, ?, ?, ?, ?, ?) RETURNING id"),
		sender.ID, receiver.ID, nullString(content), nullString(fileURL), string(msgType), msg.SentAt,
	).Scan(&msg.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}

	s.db.log.Debug("message_saved",
		zap.Int64("message_id", msg.ID),
		zap.String("sender", sender.UserID),
		zap.String("receiver", receiver.UserID),
		zap.String("type", string(msgType)),
	)
	return msg, nil
}

// Get retrieves a message by its ID
func (s *MessageStore) Get(ctx context.Context, id int64) (*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, s.db.rebind(messageSelect+" WHERE m.id = ?"), id)
	if err != nil {
		return nil, err
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrMessageNotFound
	}
	return msgs[0], nil
}

// ListBetween returns the whole conversation between a and b, oldest first,
// regardless of who deleted what
func (s *MessageStore) ListBetween(ctx context.Context, a, b models.UserRef) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		s.db.rebind(messageSelect+" WHERE "+pairClause+conversationOrder),
		a.ID, b.ID, b.ID, a.ID,
	)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// DeleteAllBetween hard-deletes every message exchanged by a and b.
// Visibility markers go with them through ON DELETE CASCADE.
func (s *MessageStore) DeleteAllBetween(ctx context.Context, a, b models.UserRef) (int64, error) {
	var deleted int64
	err := s.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			s.db.rebind("DELETE FROM messages WHERE (sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)"),
			a.ID, b.ID, b.ID, a.ID,
		)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete conversation: %w", err)
	}

	s.db.log.Info("conversation_purged",
		zap.String("user_a", a.UserID),
		zap.String("user_b", b.UserID),
		zap.Int64("deleted", deleted),
	)
	return deleted, nil
}

func scanMessages(rows *sql.Rows) ([]*models.Message, error) {
	defer rows.Close()

	var messages []*models.Message
	for rows.Next() {
		var (
			msg     models.Message
			content sql.NullString
			fileURL sql.NullString
			msgType string
		)
		if err := rows.Scan(
			&msg.ID, &content, &fileURL, &msgType, &msg.SentAt,
			&msg.Sender.ID, &msg.Sender.UserID, &msg.Sender.Username, &msg.Sender.DisplayName,
			&msg.Receiver.ID, &msg.Receiver.UserID, &msg.Receiver.Username, &msg.Receiver.DisplayName,
		); err != nil {
			return nil, err
		}
		msg.Type = models.MessageType(msgType)
		msg.Content = stringPtr(content)
		msg.FileURL = stringPtr(fileURL)
		msg.SentAt = msg.SentAt.UTC()
		messages = append(messages, &msg)
	}
	return messages, rows.Err()
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
