package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"dmchat/database"
	"dmchat/metrics"
	"dmchat/models"
)

// Identity resolves public user ids and answers friendship questions
type Identity interface {
	ResolveUser(ctx context.Context, userID string) (models.UserRef, error)
	IsFriend(ctx context.Context, a, b models.UserRef) (bool, error)
}

type MessageStore interface {
	Append(ctx context.Context, sender, receiver models.UserRef, msgType models.MessageType, content, fileURL *string) (*models.Message, error)
	DeleteAllBetween(ctx context.Context, a, b models.UserRef) (int64, error)
}

type Overlay interface {
	FilterVisible(ctx context.Context, forUser, other models.UserRef) ([]*models.Message, error)
	HideConversation(ctx context.Context, forUser, other models.UserRef) (int64, error)
}

// Fanout pushes stored events to live connections. It never fails the caller.
type Fanout interface {
	DeliverMessage(payload models.MessagePayload, senderHandle, receiverHandle string)
	BroadcastTyping(event models.TypingEvent)
}

type SendMessageRequest struct {
	ReceiverUserID string  `json:"receiverUserId"`
	Content        *string `json:"content"`
	FileURL        *string `json:"fileUrl"`
	Type           string  `json:"type"`
}

type TypingRequest struct {
	ReceiverUserID string `json:"receiverUserId"`
	Typing         bool   `json:"typing"`
}

type Options struct {
	// RequireFriendship rejects messages and typing events between non-friends
	RequireFriendship bool
}

// Service runs the conversation use cases: validate, resolve, persist, fan out
type Service struct {
	identity Identity
	store    MessageStore
	overlay  Overlay
	fanout   Fanout
	opts     Options
	log      *zap.Logger
	metrics  *metrics.Metrics
}

func NewService(identity Identity, store MessageStore, overlay Overlay, fanout Fanout, opts Options, log *zap.Logger, m *metrics.Metrics) *Service {
	return &Service{
		identity: identity,
		store:    store,
		overlay:  overlay,
		fanout:   fanout,
		opts:     opts,
		log:      log,
		metrics:  m,
	}
}

// SendMessage stores a message from sender and pushes it to both participants.
// Nothing is stored or pushed if validation or receiver lookup fails.
func (s *Service) SendMessage(ctx context.Context, sender models.UserRef, req SendMessageRequest) (models.MessagePayload, error) {
	msgType, err := models.ParseMessageType(req.Type)
	if err != nil {
		return models.MessagePayload{}, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	receiver, err := s.resolve(ctx, req.ReceiverUserID, "receiverUserId")
	if err != nil {
		return models.MessagePayload{}, err
	}
	if err := s.checkFriendship(ctx, sender, receiver); err != nil {
		return models.MessagePayload{}, err
	}

	msg, err := s.store.Append(ctx, sender, receiver, msgType, req.Content, req.FileURL)
	if err != nil {
		s.log.Error("message_save_failed",
			zap.String("sender", sender.UserID),
			zap.String("receiver", receiver.UserID),
			zap.Error(err),
		)
		return models.MessagePayload{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s.metrics.MessageSent(string(msg.Type))

	payload := msg.ToPayload()
	s.fanout.DeliverMessage(payload, sender.Username, receiver.Username)
	return payload, nil
}

// Conversation returns the messages between current and otherUserID that
// current has not deleted, oldest first.
func (s *Service) Conversation(ctx context.Context, current models.UserRef, otherUserID string) ([]models.MessagePayload, error) {
	other, err := s.resolve(ctx, otherUserID, "userId")
	if err != nil {
		return nil, err
	}

	msgs, err := s.overlay.FilterVisible(ctx, current, other)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	payloads := make([]models.MessagePayload, 0, len(msgs))
	for _, m := range msgs {
		payloads = append(payloads, m.ToPayload())
	}
	return payloads, nil
}

// DeleteConversation hides the whole conversation from current only.
// The other participant still sees every message.
func (s *Service) DeleteConversation(ctx context.Context, current models.UserRef, otherUserID string) (models.DeleteResult, error) {
	other, err := s.resolve(ctx, otherUserID, "userId")
	if err != nil {
		return models.DeleteResult{}, err
	}

	hidden, err := s.overlay.HideConversation(ctx, current, other)
	if err != nil {
		return models.DeleteResult{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	s.metrics.ConversationDeleted(hidden)
	return models.DeleteResult{Status: "ok", DeletedCount: hidden}, nil
}

// PurgeConversation permanently removes every message between the two users,
// for both of them. It is only reachable from the admin CLI.
func (s *Service) PurgeConversation(ctx context.Context, aUserID, bUserID string) (int64, error) {
	a, err := s.resolve(ctx, aUserID, "first user")
	if err != nil {
		return 0, err
	}
	b, err := s.resolve(ctx, bUserID, "second user")
	if err != nil {
		return 0, err
	}

	n, err := s.store.DeleteAllBetween(ctx, a, b)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return n, nil
}

// SendTyping broadcasts a typing indicator from sender
func (s *Service) SendTyping(ctx context.Context, sender models.UserRef, req TypingRequest) error {
	receiver, err := s.resolve(ctx, req.ReceiverUserID, "receiverUserId")
	if err != nil {
		return err
	}
	if err := s.checkFriendship(ctx, sender, receiver); err != nil {
		return err
	}

	s.fanout.BroadcastTyping(models.TypingEvent{
		SenderUserID:   sender.UserID,
		ReceiverUserID: receiver.UserID,
		Typing:         req.Typing,
	})
	return nil
}

func (s *Service) resolve(ctx context.Context, userID, field string) (models.UserRef, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return models.UserRef{}, fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	u, err := s.identity.ResolveUser(ctx, userID)
	if errors.Is(err, database.ErrUserNotFound) {
		return models.UserRef{}, fmt.Errorf("%w: %s", ErrNotFound, userID)
	}
	if err != nil {
		return models.UserRef{}, fmt.Errorf("%w: %v", ErrStorage, err)
	}
	return u, nil
}

func (s *Service) checkFriendship(ctx context.Context, a, b models.UserRef) error {
	if !s.opts.RequireFriendship || a.ID == b.ID {
		return nil
	}
	ok, err := s.identity.IsFriend(ctx, a, b)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}
	if !ok {
		return ErrNotFriends
	}
	return nil
}
