package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type qnaServiceMock struct {
	filter   models.QuestionFilter
	moderate models.UpdateQnARequest
	replyErr error
}

func (m *qnaServiceMock) Ask(ctx context.Context, actor *models.JWTClaims, req models.CreateQuestionRequest) (*models.Question, error) {
	return &models.Question{ID: "q1", CourseID: req.CourseID, UserID: actor.UserID, Title: req.Title}, nil
}

func (m *qnaServiceMock) List(ctx context.Context, actor *models.JWTClaims, filter models.QuestionFilter) ([]models.Question, *models.Pagination, error) {
	m.filter = filter
	return []models.Question{}, models.NewPagination(filter.Page, filter.PageSize, 0), nil
}

func (m *qnaServiceMock) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.QuestionDetail, error) {
	return nil, appErrors.Clone(appErrors.ErrNotFound, "question not found")
}

func (m *qnaServiceMock) Reply(ctx context.Context, actor *models.JWTClaims, id string, req models.CreateReplyRequest) (*models.QuestionReply, error) {
	if m.replyErr != nil {
		return nil, m.replyErr
	}
	return &models.QuestionReply{ID: "r1", QuestionID: id, Body: req.Body}, nil
}

func (m *qnaServiceMock) AdminList(ctx context.Context, actor *models.JWTClaims, filter models.QuestionFilter) ([]models.Question, *models.Pagination, error) {
	m.filter = filter
	return []models.Question{{ID: "q1"}}, models.NewPagination(filter.Page, filter.PageSize, 1), nil
}

func (m *qnaServiceMock) AdminGet(ctx context.Context, actor *models.JWTClaims, id string) (*models.QuestionDetail, error) {
	return &models.QuestionDetail{Question: models.Question{ID: id}, Replies: []models.QuestionReply{}}, nil
}

func (m *qnaServiceMock) Moderate(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateQnARequest) (*models.QuestionDetail, error) {
	m.moderate = req
	return &models.QuestionDetail{Question: models.Question{ID: id, Status: models.QuestionStatusAnswered}}, nil
}

func TestQnAHandlerAsk(t *testing.T) {
	h := NewQnAHandler(&qnaServiceMock{})
	c, w := newTestContext(t, http.MethodPost, "/questions", models.CreateQuestionRequest{CourseID: "c1", Title: "Why?", Body: "Because"}, studentClaims)

	h.Ask(c)

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"user_id":"stu-1"`)
}

func TestQnAHandlerAdminListFilters(t *testing.T) {
	svc := &qnaServiceMock{}
	h := NewQnAHandler(svc)
	c, w := newTestContext(t, http.MethodGet, "/admin/qna?status=OPEN&course_id=c1", nil, adminClaims)

	h.AdminList(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.filter.Status)
	assert.Equal(t, models.QuestionStatusOpen, *svc.filter.Status)
	assert.Equal(t, "c1", svc.filter.CourseID)
}

func TestQnAHandlerModerate(t *testing.T) {
	svc := &qnaServiceMock{}
	h := NewQnAHandler(svc)
	c, w := newTestContext(t, http.MethodPatch, "/admin/qna/q1", `{"answer":"Use channels"}`, adminClaims)
	c.Params = gin.Params{{Key: "id", Value: "q1"}}

	h.Moderate(c)

	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.moderate.Answer)
	assert.Nil(t, svc.moderate.Status)
	assert.Contains(t, w.Body.String(), `"status":"ANSWERED"`)
}

func TestQnAHandlerErrors(t *testing.T) {
	h := NewQnAHandler(&qnaServiceMock{replyErr: appErrors.Clone(appErrors.ErrPreconditionFailed, "question is closed")})

	c, w := newTestContext(t, http.MethodGet, "/questions/q1", nil, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "q1"}}
	h.Get(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	c, w = newTestContext(t, http.MethodPost, "/questions/q1/replies", models.CreateReplyRequest{Body: "again"}, studentClaims)
	c.Params = gin.Params{{Key: "id", Value: "q1"}}
	h.Reply(c)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)

	c, w = newTestContext(t, http.MethodPatch, "/admin/qna/q1", "nope", adminClaims)
	h.Moderate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
