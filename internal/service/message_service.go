package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type messageRepository interface {
	Create(ctx context.Context, msg *models.Message) error
	ListConversations(ctx context.Context, userID string) ([]models.Conversation, error)
	ListThread(ctx context.Context, userID, partnerID string, page, size int) ([]models.Message, int, error)
	MarkThreadRead(ctx context.Context, userID, partnerID string, at time.Time) (int64, error)
}

type userFinder interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// MessageService delivers direct messages between users.
type MessageService struct {
	repo      messageRepository
	users     userFinder
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewMessageService constructs the service.
func NewMessageService(repo messageRepository, users userFinder, validate *validator.Validate, logger *zap.Logger) *MessageService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MessageService{repo: repo, users: users, validator: validate, logger: logger, now: time.Now}
}

// Send stores a message to another active user.
func (s *MessageService) Send(ctx context.Context, actor *models.JWTClaims, req models.SendMessageRequest) (*models.Message, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid message payload")
	}
	if req.RecipientID == actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot send a message to yourself")
	}
	body := strings.TrimSpace(sanitizeRich(req.Body))
	if body == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message body is required")
	}
	if utf8.RuneCountInString(body) > models.MaxMessageLength {
		return nil, appErrors.Clone(appErrors.ErrValidation, "message is too long")
	}
	if _, err := s.partner(ctx, req.RecipientID); err != nil {
		return nil, err
	}

	msg := &models.Message{SenderID: actor.UserID, RecipientID: req.RecipientID, Body: body}
	if err := s.repo.Create(ctx, msg); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to send message")
	}
	return msg, nil
}

// Conversations lists the caller's message partners.
func (s *MessageService) Conversations(ctx context.Context, actor *models.JWTClaims) ([]models.Conversation, error) {
	items, err := s.repo.ListConversations(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list conversations")
	}
	if items == nil {
		items = []models.Conversation{}
	}
	return items, nil
}

// Thread returns messages exchanged with partnerID, newest first, and marks
// the inbound ones read.
func (s *MessageService) Thread(ctx context.Context, actor *models.JWTClaims, partnerID string, page, size int) ([]models.Message, *models.Pagination, error) {
	if partnerID == actor.UserID {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "cannot open a thread with yourself")
	}
	if _, err := s.users.FindByID(ctx, partnerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	items, total, err := s.repo.ListThread(ctx, actor.UserID, partnerID, page, size)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load messages")
	}
	if items == nil {
		items = []models.Message{}
	}
	now := s.now().UTC()
	marked, err := s.repo.MarkThreadRead(ctx, actor.UserID, partnerID, now)
	if err != nil {
		s.logger.Warn("failed to mark thread read", zap.String("user_id", actor.UserID), zap.String("partner_id", partnerID), zap.Error(err))
	} else if marked > 0 {
		for i := range items {
			if items[i].RecipientID == actor.UserID && items[i].ReadAt == nil {
				items[i].ReadAt = &now
			}
		}
	}
	return items, models.NewPagination(page, size, total), nil
}

func (s *MessageService) partner(ctx context.Context, id string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "recipient not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load recipient")
	}
	if !user.Active {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "recipient not found")
	}
	return user, nil
}
