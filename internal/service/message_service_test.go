package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

const (
	senderID    = "c0c0c0c0-0000-4000-8000-000000000001"
	recipientID = "c0c0c0c0-0000-4000-8000-000000000002"
	inactiveID  = "c0c0c0c0-0000-4000-8000-000000000003"
)

type mockMessageRepo struct {
	messages []models.Message
}

func (m *mockMessageRepo) Create(ctx context.Context, msg *models.Message) error {
	msg.ID = "msg-" + msg.SenderID
	msg.CreatedAt = time.Now().UTC()
	m.messages = append(m.messages, *msg)
	return nil
}

func (m *mockMessageRepo) ListConversations(ctx context.Context, userID string) ([]models.Conversation, error) {
	return nil, nil
}

func (m *mockMessageRepo) ListThread(ctx context.Context, userID, partnerID string, page, size int) ([]models.Message, int, error) {
	var out []models.Message
	for _, msg := range m.messages {
		if (msg.SenderID == userID && msg.RecipientID == partnerID) || (msg.SenderID == partnerID && msg.RecipientID == userID) {
			out = append(out, msg)
		}
	}
	return out, len(out), nil
}

func (m *mockMessageRepo) MarkThreadRead(ctx context.Context, userID, partnerID string, at time.Time) (int64, error) {
	var marked int64
	for i := range m.messages {
		if m.messages[i].RecipientID == userID && m.messages[i].SenderID == partnerID && m.messages[i].ReadAt == nil {
			m.messages[i].ReadAt = &at
			marked++
		}
	}
	return marked, nil
}

func newMessageFixture() (*MessageService, *mockMessageRepo) {
	users := &mockUserRepo{users: map[string]*models.User{
		senderID:    {ID: senderID, Active: true},
		recipientID: {ID: recipientID, Active: true},
		inactiveID:  {ID: inactiveID, Active: false},
	}}
	repo := &mockMessageRepo{}
	return NewMessageService(repo, users, validator.New(), zap.NewNop()), repo
}

func TestMessageServiceSend(t *testing.T) {
	svc, repo := newMessageFixture()
	actor := &models.JWTClaims{UserID: senderID}

	msg, err := svc.Send(context.Background(), actor, models.SendMessageRequest{RecipientID: recipientID, Body: "hi <b>there</b><script>alert(1)</script>"})
	require.NoError(t, err)
	assert.Equal(t, "hi <b>there</b>", msg.Body)
	assert.Len(t, repo.messages, 1)
}

func TestMessageServiceSendRejections(t *testing.T) {
	svc, repo := newMessageFixture()
	actor := &models.JWTClaims{UserID: senderID}

	cases := []struct {
		name string
		req  models.SendMessageRequest
		code string
	}{
		{"self", models.SendMessageRequest{RecipientID: senderID, Body: "hello me"}, appErrors.ErrValidation.Code},
		{"inactive", models.SendMessageRequest{RecipientID: inactiveID, Body: "hello"}, appErrors.ErrNotFound.Code},
		{"unknown", models.SendMessageRequest{RecipientID: "c0c0c0c0-0000-4000-8000-000000000009", Body: "hello"}, appErrors.ErrNotFound.Code},
		{"too long", models.SendMessageRequest{RecipientID: recipientID, Body: strings.Repeat("a", models.MaxMessageLength+1)}, appErrors.ErrValidation.Code},
		{"only markup", models.SendMessageRequest{RecipientID: recipientID, Body: "<script>x</script>"}, appErrors.ErrValidation.Code},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Send(context.Background(), actor, tc.req)
			require.Error(t, err)
			assert.Equal(t, tc.code, appErrors.FromError(err).Code)
		})
	}
	assert.Empty(t, repo.messages)
}

func TestMessageServiceThreadMarksRead(t *testing.T) {
	svc, repo := newMessageFixture()
	_, err := svc.Send(context.Background(), &models.JWTClaims{UserID: senderID}, models.SendMessageRequest{RecipientID: recipientID, Body: "ping"})
	require.NoError(t, err)

	items, pagination, err := svc.Thread(context.Background(), &models.JWTClaims{UserID: recipientID}, senderID, 1, 20)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.NotNil(t, items[0].ReadAt)
	assert.NotNil(t, repo.messages[0].ReadAt)
	assert.Equal(t, 1, pagination.TotalCount)

	_, _, err = svc.Thread(context.Background(), &models.JWTClaims{UserID: recipientID}, recipientID, 1, 20)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestMessageServiceConversationsNeverNil(t *testing.T) {
	svc, _ := newMessageFixture()
	items, err := svc.Conversations(context.Background(), &models.JWTClaims{UserID: senderID})
	require.NoError(t, err)
	assert.NotNil(t, items)
}
