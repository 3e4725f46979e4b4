package inbox

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/bloodlink/bloodlink/internal/domain/access"
	"github.com/bloodlink/bloodlink/internal/platform/websocket"
	"github.com/bloodlink/bloodlink/pkg/apperr"
)

// StaffChecker reports whether an email belongs to a staff account.
type StaffChecker interface {
	Exists(ctx context.Context, email string) (bool, error)
}

type Service struct {
	messages Repository
	staff    StaffChecker
	push     websocket.EventPublisher
	logger   zerolog.Logger
}

func NewService(messages Repository, staff StaffChecker, push websocket.EventPublisher, logger zerolog.Logger) *Service {
	if push == nil {
		push = websocket.NopPublisher{}
	}
	return &Service{
		messages: messages,
		staff:    staff,
		push:     push,
		logger:   logger.With().Str("component", "inbox").Logger(),
	}
}

// Send stores a message and pushes it to the receiver's inbox topic. The
// receiver must be a known staff account unless the sender is the system.
func (s *Service) Send(ctx context.Context, m *Message) error {
	m.Sender = strings.TrimSpace(m.Sender)
	m.Receiver = strings.TrimSpace(m.Receiver)
	if m.Sender == "" || m.Receiver == "" {
		return apperr.InvalidState("address_required", "sender and receiver are required")
	}
	if strings.TrimSpace(m.Subject) == "" {
		return apperr.InvalidState("subject_required", "subject is required")
	}
	if m.Type == "" {
		m.Type = TypeMessage
	}
	if !validTypes[m.Type] {
		return apperr.InvalidState("invalid_message_type", "invalid message type: %s", m.Type)
	}
	if m.Sender != SystemSender {
		ok, err := s.staff.Exists(ctx, m.Receiver)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.NotFound("receiver_not_found", "receiver %s is not a staff account", m.Receiver)
		}
	}
	m.IsRead = false

	if err := s.messages.Create(ctx, m); err != nil {
		return err
	}

	ev, err := websocket.NewEvent(websocket.InboxTopic(m.Receiver), "message.created", m.ID.String(), m)
	if err == nil {
		err = s.push.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn().Err(err).Str("receiver", m.Receiver).Msg("inbox push failed")
	}
	return nil
}

// SendAs sends a user-composed message from actor.
func (s *Service) SendAs(ctx context.Context, m *Message, actor access.Actor) error {
	if m.Type == TypeSystemUpdate {
		return apperr.Forbidden("system_type_reserved", "system_update messages are sent by the system only")
	}
	m.Sender = actor.Email
	return s.Send(ctx, m)
}

func (s *Service) List(ctx context.Context, receiver string, unreadOnly bool, limit, offset int) ([]*Message, int, error) {
	return s.messages.List(ctx, receiver, unreadOnly, limit, offset)
}

func (s *Service) UnreadCount(ctx context.Context, receiver string) (int, error) {
	return s.messages.UnreadCount(ctx, receiver)
}

// ownMessage loads id and checks actor is its receiver.
func (s *Service) ownMessage(ctx context.Context, id uuid.UUID, actor access.Actor) (*Message, error) {
	m, err := s.messages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(m.Receiver, actor.Email) {
		return nil, apperr.Forbidden("not_receiver", "only the receiver can change this message")
	}
	return m, nil
}

func (s *Service) MarkRead(ctx context.Context, id uuid.UUID, actor access.Actor) error {
	return s.setRead(ctx, id, true, actor)
}

func (s *Service) MarkUnread(ctx context.Context, id uuid.UUID, actor access.Actor) error {
	return s.setRead(ctx, id, false, actor)
}

func (s *Service) setRead(ctx context.Context, id uuid.UUID, read bool, actor access.Actor) error {
	if _, err := s.ownMessage(ctx, id, actor); err != nil {
		return err
	}
	return s.messages.SetRead(ctx, id, read)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID, actor access.Actor) error {
	if _, err := s.ownMessage(ctx, id, actor); err != nil {
		return err
	}
	return s.messages.Delete(ctx, id)
}
