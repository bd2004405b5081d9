package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	"github.com/noah-isme/learnhub-api/internal/repository"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type mockUserRepo struct {
	users     map[string]*models.User
	listUsers []models.User
	listCount int
	listErr   error
	revoked   []string
	auditLogs []*models.AuditLog
}

func (m *mockUserRepo) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	if m.listUsers != nil {
		return m.listUsers, m.listCount, nil
	}
	var users []models.User
	for _, u := range m.users {
		users = append(users, *u)
	}
	return users, len(users), nil
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.users[id]; ok {
		copy := *user
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockUserRepo) Create(ctx context.Context, user *models.User) error {
	if m.users == nil {
		m.users = make(map[string]*models.User)
	}
	for _, u := range m.users {
		if u.Email == user.Email {
			return repository.ErrDuplicate
		}
	}
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Update(ctx context.Context, user *models.User) error {
	copy := *user
	m.users[user.ID] = &copy
	return nil
}

func (m *mockUserRepo) Delete(ctx context.Context, id string) error {
	if user, ok := m.users[id]; ok {
		user.Active = false
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockUserRepo) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revoked = append(m.revoked, userID)
	return nil
}

func (m *mockUserRepo) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.auditLogs = append(m.auditLogs, log)
	return nil
}

func TestUserServiceList(t *testing.T) {
	repo := &mockUserRepo{listUsers: []models.User{{ID: "1", Email: "a@example.com"}}, listCount: 1}
	svc := NewUserService(repo, validator.New(), zap.NewNop())
	users, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 0, PageSize: 500})
	require.NoError(t, err)
	assert.Len(t, users, 1)
	assert.Equal(t, 1, pagination.TotalCount)
	assert.Equal(t, 1, pagination.Page)
	assert.Equal(t, 100, pagination.PageSize)
}

func TestUserServiceCreate(t *testing.T) {
	repo := &mockUserRepo{users: make(map[string]*models.User)}
	svc := NewUserService(repo, validator.New(), zap.NewNop())
	user, err := svc.Create(context.Background(), models.CreateUserRequest{Email: "USER@EXAMPLE.COM", FullName: "User", Password: "secret123", Role: models.RoleInstructor}, "actor", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, "user@example.com", user.Email)
	assert.True(t, user.Active)
	assert.NotEmpty(t, repo.auditLogs)

	_, err = svc.Create(context.Background(), models.CreateUserRequest{Email: "user@example.com", FullName: "User", Password: "secret123", Role: models.RoleStudent}, "actor", RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestUserServiceCreateRejectsUnknownRole(t *testing.T) {
	svc := NewUserService(&mockUserRepo{}, validator.New(), zap.NewNop())
	_, err := svc.Create(context.Background(), models.CreateUserRequest{Email: "a@example.com", FullName: "A", Password: "secret123", Role: "SUPERUSER"}, "actor", RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserServiceUpdate(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "a@example.com", FullName: "Old", Role: models.RoleStudent, Active: true}}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())
	active := false
	role := models.RoleInstructor
	name := "New"
	user, err := svc.Update(context.Background(), "1", models.UpdateUserRequest{FullName: &name, Role: &role, Active: &active}, "actor", RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.RoleInstructor, user.Role)
	assert.Equal(t, "New", user.FullName)
	assert.False(t, user.Active)
	assert.Equal(t, []string{"1"}, repo.revoked)
	assert.NotEmpty(t, repo.auditLogs)
}

func TestUserServiceUpdateSelfDemotion(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"admin": {ID: "admin", Role: models.RoleAdmin, Active: true}}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())
	role := models.RoleStudent
	_, err := svc.Update(context.Background(), "admin", models.UpdateUserRequest{Role: &role}, "admin", RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, 403, appErrors.FromError(err).Status)
}

func TestUserServiceDelete(t *testing.T) {
	repo := &mockUserRepo{users: map[string]*models.User{"1": {ID: "1", Email: "a@example.com", FullName: "Old", Role: models.RoleStudent, Active: true}}}
	svc := NewUserService(repo, validator.New(), zap.NewNop())
	err := svc.Delete(context.Background(), "1", "actor", RequestMeta{})
	require.NoError(t, err)
	assert.False(t, repo.users["1"].Active)
	assert.Equal(t, []string{"1"}, repo.revoked)
	assert.NotEmpty(t, repo.auditLogs)

	err = svc.Delete(context.Background(), "missing", "actor", RequestMeta{})
	require.Error(t, err)
	assert.Equal(t, 404, appErrors.FromError(err).Status)
}
