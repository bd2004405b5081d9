package service

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
	"github.com/noah-isme/learnhub-api/pkg/export"
	"github.com/noah-isme/learnhub-api/pkg/jobs"
	"github.com/noah-isme/learnhub-api/pkg/storage"
)

type mockEnrollmentRepo struct {
	items      map[string]*models.Enrollment
	progress   map[string][]string
	listFilter models.EnrollmentFilter
	certPaths  map[string]string
}

func newMockEnrollmentRepo(items ...models.Enrollment) *mockEnrollmentRepo {
	repo := &mockEnrollmentRepo{items: map[string]*models.Enrollment{}, progress: map[string][]string{}, certPaths: map[string]string{}}
	for i := range items {
		item := items[i]
		repo.items[item.ID] = &item
	}
	return repo
}

func (m *mockEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.Enrollment, int, error) {
	m.listFilter = filter
	return nil, 0, nil
}

func (m *mockEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if item, ok := m.items[id]; ok {
		copy := *item
		return &copy, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) FindByUserCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error) {
	for _, item := range m.items {
		if item.UserID == userID && item.CourseID == courseID {
			copy := *item
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEnrollmentRepo) Upsert(ctx context.Context, exec sqlx.ExtContext, item *models.Enrollment) error {
	if existing, err := m.FindByUserCourse(ctx, item.UserID, item.CourseID); err == nil {
		item.ID = existing.ID
	} else if item.ID == "" {
		item.ID = "enr-" + item.CourseID
	}
	copy := *item
	m.items[item.ID] = &copy
	return nil
}

func (m *mockEnrollmentRepo) MarkLessonComplete(ctx context.Context, enrollmentID, lessonID string, at time.Time) error {
	for _, id := range m.progress[enrollmentID] {
		if id == lessonID {
			return nil
		}
	}
	m.progress[enrollmentID] = append(m.progress[enrollmentID], lessonID)
	return nil
}

func (m *mockEnrollmentRepo) ListCompletedLessons(ctx context.Context, enrollmentID string) ([]string, error) {
	return m.progress[enrollmentID], nil
}

func (m *mockEnrollmentRepo) UpdateProgress(ctx context.Context, id string, percent decimal.Decimal, status models.EnrollmentStatus, completedAt *time.Time) error {
	m.items[id].ProgressPercent = percent
	m.items[id].Status = status
	m.items[id].CompletedAt = completedAt
	return nil
}

func (m *mockEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus) error {
	m.items[id].Status = status
	return nil
}

func (m *mockEnrollmentRepo) SetCertificatePath(ctx context.Context, id, path string) error {
	m.certPaths[id] = path
	return nil
}

type mockSubscriptionFinder struct {
	sub *models.Subscription
}

func (m *mockSubscriptionFinder) FindByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	if m.sub == nil {
		return nil, sql.ErrNoRows
	}
	return m.sub, nil
}

type recordingQueue struct {
	jobs []jobs.Job
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type enrollmentFixture struct {
	svc     *EnrollmentService
	repo    *mockEnrollmentRepo
	courses *mockCourseRepo
	subs    *mockSubscriptionFinder
	queue   *recordingQueue
	sender  *recordingSender
}

func newEnrollmentFixture(grantAll bool, enrollments ...models.Enrollment) *enrollmentFixture {
	free := models.Course{ID: freeCourseID, InstructorID: "inst-1", Title: "Free", Slug: "free", Status: models.CourseStatusPublished}
	paid := models.Course{ID: paidCourseID, InstructorID: "inst-1", Title: "Paid", Slug: "paid", Status: models.CourseStatusPublished, PriceCents: 1500}
	draft := models.Course{ID: draftCourseID, InstructorID: "inst-1", Title: "Draft", Status: models.CourseStatusDraft}
	f := &enrollmentFixture{
		repo:    newMockEnrollmentRepo(enrollments...),
		courses: newMockCourseRepo(free, paid, draft),
		subs:    &mockSubscriptionFinder{},
		queue:   &recordingQueue{},
		sender:  &recordingSender{},
	}
	lessons := &mockLessonRepo{lessons: map[string]*models.Lesson{
		lessonOneID:   {ID: lessonOneID, CourseID: freeCourseID},
		lessonTwoID:   {ID: lessonTwoID, CourseID: freeCourseID},
		lessonThreeID: {ID: lessonThreeID, CourseID: freeCourseID},
		paidLessonID:  {ID: paidLessonID, CourseID: paidCourseID},
	}}
	f.svc = NewEnrollmentService(f.repo, f.courses, lessons, f.subs, nil, f.queue, f.sender, validator.New(), zap.NewNop(), EnrollmentConfig{SubscriptionsGrantAll: grantAll, FrontendURL: "https://app.test"})
	return f
}

const (
	freeCourseID  = "11111111-1111-4111-8111-111111111111"
	paidCourseID  = "22222222-2222-4222-8222-222222222222"
	draftCourseID = "33333333-3333-4333-8333-333333333333"
	lessonOneID   = "aaaaaaaa-0000-4000-8000-000000000001"
	lessonTwoID   = "aaaaaaaa-0000-4000-8000-000000000002"
	lessonThreeID = "aaaaaaaa-0000-4000-8000-000000000003"
	paidLessonID  = "bbbbbbbb-0000-4000-8000-000000000001"
)

func enrollReq(courseID string) models.CreateEnrollmentRequest {
	return models.CreateEnrollmentRequest{CourseID: courseID}
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	f := newEnrollmentFixture(true)
	ctx := context.Background()
	student := &models.JWTClaims{UserID: "stu-1", Role: models.RoleStudent, Email: "stu@example.com"}

	enrollment, err := f.svc.Enroll(ctx, student, enrollReq(freeCourseID))
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentSourceFree, enrollment.Source)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.Len(t, f.sender.messages, 1)
	assert.Equal(t, "stu@example.com", f.sender.messages[0].To)

	_, err = f.svc.Enroll(ctx, student, enrollReq(freeCourseID))
	require.Error(t, err)
	assert.Equal(t, 409, appErrors.FromError(err).Status)

	_, err = f.svc.Enroll(ctx, student, enrollReq(paidCourseID))
	require.Error(t, err)
	assert.Equal(t, 402, appErrors.FromError(err).Status)

	f.subs.sub = &models.Subscription{Status: models.SubscriptionStatusActive}
	enrollment, err = f.svc.Enroll(ctx, student, enrollReq(paidCourseID))
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentSourceSubscription, enrollment.Source)

	_, err = f.svc.Enroll(ctx, student, enrollReq(draftCourseID))
	require.Error(t, err)
	assert.Equal(t, 404, appErrors.FromError(err).Status)
}

func TestEnrollmentServiceSubscriptionIgnoredWhenDisabled(t *testing.T) {
	f := newEnrollmentFixture(false)
	f.subs.sub = &models.Subscription{Status: models.SubscriptionStatusActive}
	_, err := f.svc.Enroll(context.Background(), studentClaims, enrollReq(paidCourseID))
	require.Error(t, err)
	assert.Equal(t, 402, appErrors.FromError(err).Status)
}

func TestEnrollmentServiceEnrollValidatesCourseID(t *testing.T) {
	f := newEnrollmentFixture(true)
	_, err := f.svc.Enroll(context.Background(), studentClaims, enrollReq("not-a-uuid"))
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)
}

func TestEnrollmentServiceProgressToCompletion(t *testing.T) {
	f := newEnrollmentFixture(true, models.Enrollment{ID: "e1", UserID: "stu-1", CourseID: freeCourseID, Status: models.EnrollmentStatusActive})
	ctx := context.Background()
	lesson := func(id string) models.UpdateEnrollmentRequest {
		return models.UpdateEnrollmentRequest{CompletedLessonID: &id}
	}

	detail, err := f.svc.Update(ctx, studentClaims, "e1", lesson(lessonOneID))
	require.NoError(t, err)
	assert.Equal(t, "33.33", detail.ProgressPercent.StringFixed(2))
	assert.Equal(t, models.EnrollmentStatusActive, detail.Status)

	_, err = f.svc.Update(ctx, studentClaims, "e1", lesson(paidLessonID))
	require.Error(t, err)
	assert.Equal(t, 400, appErrors.FromError(err).Status)

	_, err = f.svc.Update(ctx, studentClaims, "e1", lesson(lessonTwoID))
	require.NoError(t, err)
	detail, err = f.svc.Update(ctx, studentClaims, "e1", lesson(lessonThreeID))
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCompleted, detail.Status)
	assert.NotNil(t, detail.CompletedAt)
	assert.Len(t, detail.CompletedLessons, 3)
	require.Len(t, f.queue.jobs, 1)
	assert.Equal(t, JobTypeCertificate, f.queue.jobs[0].Type)
	assert.Equal(t, CertificateJob{EnrollmentID: "e1"}, f.queue.jobs[0].Payload)

	_, err = f.svc.Update(ctx, studentClaims, "e1", lesson(lessonThreeID))
	require.NoError(t, err)
	assert.Len(t, f.queue.jobs, 1)
}

func TestEnrollmentServiceCancel(t *testing.T) {
	f := newEnrollmentFixture(true, models.Enrollment{ID: "e1", UserID: "stu-1", CourseID: freeCourseID, Status: models.EnrollmentStatusActive})
	cancelled := models.EnrollmentStatusCancelled

	_, err := f.svc.Update(context.Background(), instructorClaims, "e1", models.UpdateEnrollmentRequest{Status: &cancelled})
	require.Error(t, err)
	assert.Equal(t, 403, appErrors.FromError(err).Status)

	detail, err := f.svc.Update(context.Background(), studentClaims, "e1", models.UpdateEnrollmentRequest{Status: &cancelled})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusCancelled, detail.Status)

	other := &models.JWTClaims{UserID: "stu-2", Role: models.RoleStudent}
	_, err = f.svc.Get(context.Background(), other, "e1")
	require.Error(t, err)
	assert.Equal(t, 404, appErrors.FromError(err).Status)
}

func TestEnrollmentServiceListScopes(t *testing.T) {
	f := newEnrollmentFixture(true)
	ctx := context.Background()

	_, _, err := f.svc.List(ctx, studentClaims, models.EnrollmentFilter{UserID: "someone-else"})
	require.NoError(t, err)
	assert.Equal(t, "stu-1", f.repo.listFilter.UserID)

	_, _, err = f.svc.List(ctx, instructorClaims, models.EnrollmentFilter{})
	require.NoError(t, err)
	assert.Equal(t, "inst-1", f.repo.listFilter.InstructorID)
	assert.Empty(t, f.repo.listFilter.UserID)

	_, _, err = f.svc.List(ctx, adminClaims, models.EnrollmentFilter{UserID: "stu-9"})
	require.NoError(t, err)
	assert.Equal(t, "stu-9", f.repo.listFilter.UserID)
}

func TestProgressPercent(t *testing.T) {
	assert.True(t, ProgressPercent(0, 0).IsZero())
	assert.Equal(t, "50.00", ProgressPercent(1, 2).StringFixed(2))
	assert.Equal(t, "66.67", ProgressPercent(2, 3).StringFixed(2))
	assert.True(t, ProgressPercent(4, 3).Equal(decimal.NewFromInt(100)))
}

type stubRenderer struct {
	calls int
}

func (r *stubRenderer) Render(cert export.Certificate) ([]byte, error) {
	r.calls++
	return []byte("%PDF-1.3 " + cert.CourseTitle), nil
}

func TestCertificateServiceLinkAndOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	completedAt := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	repo := newMockEnrollmentRepo(models.Enrollment{ID: "e1", UserID: "stu-1", CourseID: "free", Status: models.EnrollmentStatusCompleted, CompletedAt: &completedAt, StudentName: "Stu"})
	courses := newMockCourseRepo(models.Course{ID: "free", Title: "Go", InstructorName: "Ada"})
	renderer := &stubRenderer{}
	svc := NewCertificateService(repo, courses, store, storage.NewSignedURLSigner("secret", time.Minute), renderer, zap.NewNop(), CertificateConfig{APIPrefix: "/api"})

	enrollment, _ := repo.FindByID(context.Background(), "e1")
	link, err := svc.Link(context.Background(), enrollment)
	require.NoError(t, err)
	assert.Contains(t, link.URL, "/api/certificates/download?token=")
	assert.Equal(t, "2024/05/e1.pdf", repo.certPaths["e1"])
	_, statErr := os.Stat(filepath.Join(dir, "2024", "05", "e1.pdf"))
	require.NoError(t, statErr)

	_, err = svc.Link(context.Background(), enrollment)
	require.NoError(t, err)
	assert.Equal(t, 1, renderer.calls)

	token := link.URL[len("/api/certificates/download?token="):]
	file, name, err := svc.Open(token)
	require.NoError(t, err)
	defer file.Close()
	assert.Equal(t, "certificate-e1.pdf", name)

	_, _, err = svc.Open("bogus")
	require.Error(t, err)
	assert.Equal(t, 401, appErrors.FromError(err).Status)
}

func TestCertificateServiceRequiresCompletion(t *testing.T) {
	svc := NewCertificateService(newMockEnrollmentRepo(), newMockCourseRepo(), nil, nil, &stubRenderer{}, zap.NewNop(), CertificateConfig{})
	_, err := svc.Ensure(context.Background(), &models.Enrollment{ID: "e1", Status: models.EnrollmentStatusActive})
	require.Error(t, err)
	assert.Equal(t, 412, appErrors.FromError(err).Status)
}

func TestCertificateServiceHandleJob(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := newMockEnrollmentRepo(models.Enrollment{ID: "e1", CourseID: "free", Status: models.EnrollmentStatusCompleted})
	renderer := &stubRenderer{}
	svc := NewCertificateService(repo, newMockCourseRepo(models.Course{ID: "free", Title: "Go"}), store, nil, renderer, zap.NewNop(), CertificateConfig{})

	require.NoError(t, svc.HandleJob(context.Background(), jobs.Job{Type: JobTypeCertificate, Payload: CertificateJob{EnrollmentID: "e1"}}))
	assert.Equal(t, 1, renderer.calls)
	require.NoError(t, svc.HandleJob(context.Background(), jobs.Job{Type: JobTypeCertificate, Payload: CertificateJob{EnrollmentID: "missing"}}))
	require.Error(t, svc.HandleJob(context.Background(), jobs.Job{Type: JobTypeCertificate, Payload: "wrong"}))
}
