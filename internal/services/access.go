package services

import (
	"context"
	"errors"

	"github.com/TNEM22/synera-app-backend/internal/apperror"
	"github.com/TNEM22/synera-app-backend/internal/auth"
	"github.com/TNEM22/synera-app-backend/internal/lock"
	"github.com/TNEM22/synera-app-backend/internal/models"
	"github.com/TNEM22/synera-app-backend/internal/repositories"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

// loadProject fetches a project the caller may act on.
func loadProject(ctx context.Context, repo *repositories.Repository[models.Project], id auth.Identity, projectID uuid.UUID) (*models.Project, error) {
	if projectID == uuid.Nil {
		return nil, apperror.Validation("Project ID is required")
	}
	project, err := repo.FindByID(ctx, projectID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("Project not found")
	}
	if err != nil {
		return nil, apperror.Internal("load project", err)
	}
	if !id.CanAccess(project.UserID) {
		return nil, apperror.Forbidden("You do not have access to this project.")
	}
	return project, nil
}

// lockProject takes the project's writer lock. Timing out behind another
// holder is reported as a conflict the caller can retry.
func lockProject(ctx context.Context, locker lock.ProjectLocker, projectID uuid.UUID) (lock.Unlock, error) {
	unlock, err := locker.Lock(ctx, projectID)
	if errors.Is(err, lock.ErrLockTimeout) {
		return nil, apperror.Wrap(apperror.KindConflict, "Project is busy, please retry.", err)
	}
	if err != nil {
		return nil, apperror.Internal("acquire project lock", err)
	}
	return unlock, nil
}
