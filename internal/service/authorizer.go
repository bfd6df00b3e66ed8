package service

import (
	"context"

	"github.com/noah-isme/hostel-noc-api/internal/models"
	appErrors "github.com/noah-isme/hostel-noc-api/pkg/errors"
)

// Authorizer decides whether an actor may act on a student's requests.
type Authorizer interface {
	AuthorizeStudent(ctx context.Context, actor *models.JWTClaims, studentID string) error
}

type wardenCohortChecker interface {
	IsWardenFor(ctx context.Context, wardenID, studentID string) (bool, error)
}

// CohortAuthorizer scopes wardens to the (hostel, gender) cohorts they are assigned to.
type CohortAuthorizer struct {
	cohorts wardenCohortChecker
}

// NewCohortAuthorizer constructs the default authorizer.
func NewCohortAuthorizer(cohorts wardenCohortChecker) *CohortAuthorizer {
	return &CohortAuthorizer{cohorts: cohorts}
}

// AuthorizeStudent implements Authorizer.
func (a *CohortAuthorizer) AuthorizeStudent(ctx context.Context, actor *models.JWTClaims, studentID string) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin, models.RoleSuperAdmin:
		return nil
	case models.RoleStudent:
		if actor.UserID == studentID {
			return nil
		}
	case models.RoleWarden:
		if a.cohorts == nil {
			return appErrors.ErrForbidden
		}
		ok, err := a.cohorts.IsWardenFor(ctx, actor.UserID, studentID)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to resolve warden cohort")
		}
		if ok {
			return nil
		}
	}
	return appErrors.ErrForbidden
}
