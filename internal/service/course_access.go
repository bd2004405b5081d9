package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/noah-isme/learnhub-api/internal/models"
	appErrors "github.com/noah-isme/learnhub-api/pkg/errors"
)

type courseFinder interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

type enrollmentFinder interface {
	FindByUserCourse(ctx context.Context, userID, courseID string) (*models.Enrollment, error)
}

// courseGate answers the two access questions shared by course scoped features.
type courseGate struct {
	courses     courseFinder
	enrollments enrollmentFinder
}

func (g courseGate) course(ctx context.Context, id string) (*models.Course, error) {
	course, err := g.courses.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}
	return course, nil
}

// enrolled reports whether the actor holds an enrollment that grants access.
func (g courseGate) enrolled(ctx context.Context, actor *models.JWTClaims, courseID string) (bool, error) {
	if actor == nil {
		return false, nil
	}
	enrollment, err := g.enrollments.FindByUserCourse(ctx, actor.UserID, courseID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	return enrollment.Grants(), nil
}

// participant loads the course and reports whether the actor manages it.
// Actors that neither manage nor are enrolled get 403.
func (g courseGate) participant(ctx context.Context, actor *models.JWTClaims, courseID string) (*models.Course, bool, error) {
	course, err := g.course(ctx, courseID)
	if err != nil {
		return nil, false, err
	}
	if isOwnerOrAdmin(actor, course.InstructorID) {
		return course, true, nil
	}
	ok, err := g.enrolled(ctx, actor, course.ID)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "you are not enrolled in this course")
	}
	return course, false, nil
}
