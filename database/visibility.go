package database

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"dmchat/models"
)

// VisibilityOverlay hides messages from one participant's view without
// touching the stored messages or the other participant's view.
type VisibilityOverlay struct {
	db *DB
}

func NewVisibilityOverlay(db *DB) *VisibilityOverlay {
	return &VisibilityOverlay{db: db}
}

const notHiddenClause = ` AND NOT EXISTS (
		SELECT 1 FROM deleted_messages d
		WHERE d.user_id = ? AND d.message_id = m.id
	)`

// MarkDeleted hides the given messages from forUser and returns how many
// markers were actually created. Already hidden messages are skipped.
func (o *VisibilityOverlay) MarkDeleted(ctx context.Context, forUser models.UserRef, messageIDs []int64) (int64, error) {
	var inserted int64
	err := o.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		n, err := o.markDeleted(ctx, tx, forUser, messageIDs)
		inserted = n
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages deleted: %w", err)
	}
	return inserted, nil
}

func (o *VisibilityOverlay) markDeleted(ctx context.Context, q querier, forUser models.UserRef, messageIDs []int64) (int64, error) {
	if len(messageIDs) == 0 {
		return 0, nil
	}
	stmt := o.db.rebind("INSERT INTO deleted_messages (user_id, message_id, deleted_at) VALUES (?, ?, ?) ON CONFLICT (user_id, message_id) DO NOTHING")
	deletedAt := o.db.now().UTC()

	var inserted int64
	for _, id := range messageIDs {
		res, err := q.ExecContext(ctx, stmt, forUser.ID, id, deletedAt)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		inserted += n
	}
	return inserted, nil
}

// FilterVisible returns the conversation between forUser and other as
// forUser sees it: every message minus the ones forUser has hidden.
func (o *VisibilityOverlay) FilterVisible(ctx context.Context, forUser, other models.UserRef) ([]*models.Message, error) {
	rows, err := o.db.QueryContext(ctx,
		o.db.rebind(messageSelect+" WHERE "+pairClause+notHiddenClause+conversationOrder),
		forUser.ID, other.ID, other.ID, forUser.ID, forUser.ID,
	)
	if err != nil {
		return nil, err
	}
	return scanMessages(rows)
}

// HideConversation hides every message currently visible to forUser in the
// conversation with other. Messages sent afterwards stay visible.
func (o *VisibilityOverlay) HideConversation(ctx context.Context, forUser, other models.UserRef) (int64, error) {
	var hidden int64
	err := o.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		ids, err := o.visibleIDs(ctx, tx, forUser, other)
		if err != nil {
			return err
		}
		hidden, err = o.markDeleted(ctx, tx, forUser, ids)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to hide conversation: %w", err)
	}

	o.db.log.Info("conversation_hidden",
		zap.String("user", forUser.UserID),
		zap.String("other", other.UserID),
		zap.Int64("hidden", hidden),
	)
	return hidden, nil
}

func (o *VisibilityOverlay) visibleIDs(ctx context.Context, q querier, forUser, other models.UserRef) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		o.db.rebind("SELECT m.id FROM messages m WHERE "+pairClause+notHiddenClause+conversationOrder),
		forUser.ID, other.ID, other.ID, forUser.ID, forUser.ID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountMarkers returns how many messages forUser has hidden in total
func (o *VisibilityOverlay) CountMarkers(ctx context.Context, forUser models.UserRef) (int64, error) {
	var n int64
	err := o.db.QueryRowContext(ctx,
		o.db.rebind("SELECT COUNT(*) FROM deleted_messages WHERE user_id = ?"),
		forUser.ID,
	).Scan(&n)
	return n, err
}
