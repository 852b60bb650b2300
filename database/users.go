package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"dmchat/models"
)

var ErrUserNotFound = errors.New("user not found")

// UserDirectory is the identity collaborator: it issues public user ids and
// answers who a user is and whom they are friends with.
type UserDirectory struct {
	db *DB
}

func NewUserDirectory(db *DB) *UserDirectory {
	return &UserDirectory{db: db}
}

const userColumns = "id, user_id, username, display_name"

// Create inserts a new user with a freshly generated public id
func (d *UserDirectory) Create(ctx context.Context, username, displayName string) (models.UserRef, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.UserRef{}, errors.New("username is required")
	}
	if displayName == "" {
		displayName = username
	}

	user := models.UserRef{
		UserID:      uuid.NewString(),
		Username:    username,
		DisplayName: displayName,
	}
	err := d.db.QueryRowContext(ctx,
		d.db.rebind("INSERT INTO users (user_id, username, display_name, created_at) VALUES (?, ?, ?, ?) RETURNING id"),
		user.UserID, user.Username, user.DisplayName, d.db.now().UTC(),
	).Scan(&user.ID)
	if err != nil {
		return models.UserRef{}, fmt.Errorf("failed to create user %q: %w", username, err)
	}
	return user, nil
}

// ResolveUser retrieves a user by their public id
func (d *UserDirectory) ResolveUser(ctx context.Context, userID string) (models.UserRef, error) {
	return d.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE user_id = ?", userID)
}

// GetByUsername retrieves a user by their routing handle
func (d *UserDirectory) GetByUsername(ctx context.Context, username string) (models.UserRef, error) {
	return d.getOne(ctx, "SELECT "+userColumns+" FROM users WHERE username = ?", username)
}

func (d *UserDirectory) getOne(ctx context.Context, query string, arg string) (models.UserRef, error) {
	var u models.UserRef
	err := d.db.QueryRowContext(ctx, d.db.rebind(query), arg).
		Scan(&u.ID, &u.UserID, &u.Username, &u.DisplayName)
	if errors.Is(err, sql.ErrNoRows) {
		return models.UserRef{}, ErrUserNotFound
	}
	if err != nil {
		return models.UserRef{}, err
	}
	return u, nil
}

// LinkFriends records a friendship in both directions
func (d *UserDirectory) LinkFriends(ctx context.Context, a, b models.UserRef) error {
	if a.ID == b.ID {
		return errors.New("a user cannot befriend themselves")
	}
	now := d.db.now().UTC()
	stmt := d.db.rebind("INSERT INTO friends (user_id, friend_id, created_at) VALUES (?, ?, ?) ON CONFLICT (user_id, friend_id) DO NOTHING")
	return d.db.WithTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, stmt, a.ID, b.ID, now); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, stmt, b.ID, a.ID, now)
		return err
	})
}

// IsFriend reports whether a has b in their friend list
func (d *UserDirectory) IsFriend(ctx context.Context, a, b models.UserRef) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		d.db.rebind("SELECT COUNT(*) FROM friends WHERE user_id = ? AND friend_id = ?"),
		a.ID, b.ID,
	).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Friends lists the friends of u ordered by username
func (d *UserDirectory) Friends(ctx context.Context, u models.UserRef) ([]models.UserRef, error) {
	rows, err := d.db.QueryContext(ctx, d.db.rebind(
		`SELECT u.id, u.user_id, u.username, u.display_name
		FROM friends f
		JOIN users u ON u.id = f.friend_id
		WHERE f.user_id = ?
		ORDER BY u.username`),
		u.ID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var friends []models.UserRef
	for rows.Next() {
		var f models.UserRef
		if err := rows.Scan(&f.ID, &f.UserID, &f.Username, &f.DisplayName); err != nil {
			return nil, err
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}
