package services

import (
	"context"
	"log/slog"
	"strings"

	"github.com/TNEM22/synera-app-backend/internal/apperror"
	"github.com/TNEM22/synera-app-backend/internal/auth"
	"github.com/TNEM22/synera-app-backend/internal/board"
	"github.com/TNEM22/synera-app-backend/internal/lock"
	"github.com/TNEM22/synera-app-backend/internal/models"
	"github.com/TNEM22/synera-app-backend/internal/repositories"
	"github.com/TNEM22/synera-app-backend/internal/worker"

	"github.com/gofrs/uuid"
	"gorm.io/gorm"
)

type UpdateProjectRequest struct {
	ID      uuid.UUID       `json:"id"`
	Title   *string         `json:"title"`
	Columns []models.Column `json:"columns"`
}

// ReconcileResult reports what a column rewrite removed.
type ReconcileResult struct {
	RemovedIDs   []uuid.UUID `json:"removedIds"`
	DeletedTasks int64       `json:"deletedTasks"`
}

type ProjectService interface {
	List(ctx context.Context, id auth.Identity) ([]models.Project, error)
	Get(ctx context.Context, id auth.Identity, projectID uuid.UUID) (*models.Project, error)
	Create(ctx context.Context, id auth.Identity, title string) (*models.Project, error)
	Update(ctx context.Context, id auth.Identity, req UpdateProjectRequest) (*models.Project, *ReconcileResult, error)
	ReconcileColumns(ctx context.Context, id auth.Identity, projectID uuid.UUID, proposed []models.Column) (*models.Project, *ReconcileResult, error)
	Delete(ctx context.Context, id auth.Identity, projectID uuid.UUID) (*models.Project, error)
}

type ProjectServiceImpl struct {
	store  *repositories.Store
	locker lock.ProjectLocker
	jobs   worker.Enqueuer
	logger *slog.Logger
}

func NewProjectService(store *repositories.Store, locker lock.ProjectLocker, jobs worker.Enqueuer, logger *slog.Logger) *ProjectServiceImpl {
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectServiceImpl{
		store:  store,
		locker: locker,
		jobs:   jobs,
		logger: logger.With("service", "projects"),
	}
}

func (s *ProjectServiceImpl) List(ctx context.Context, id auth.Identity) ([]models.Project, error) {
	projects, err := s.store.Projects.FindBy(ctx, repositories.Filter{"user_id": id.UserID}, "created_at")
	if err != nil {
		return nil, apperror.Internal("list projects", err)
	}
	if projects == nil {
		projects = []models.Project{}
	}
	return projects, nil
}

func (s *ProjectServiceImpl) Get(ctx context.Context, id auth.Identity, projectID uuid.UUID) (*models.Project, error) {
	return loadProject(ctx, s.store.Projects, id, projectID)
}

func (s *ProjectServiceImpl) Create(ctx context.Context, id auth.Identity, title string) (*models.Project, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, apperror.Validation("Please provide a project title.")
	}

	project := &models.Project{
		Title:   title,
		UserID:  id.UserID,
		Columns: models.DefaultColumns(),
	}
	if err := s.store.Projects.Create(ctx, project); err != nil {
		return nil, apperror.Internal("create project", err)
	}
	s.logger.InfoContext(ctx, "project created", "project_id", project.ID, "user_id", id.UserID)
	return project, nil
}

// Update renames a project or, when columns are supplied, reconciles its
// board. An empty column list never touches columns or tasks.
func (s *ProjectServiceImpl) Update(ctx context.Context, id auth.Identity, req UpdateProjectRequest) (*models.Project, *ReconcileResult, error) {
	if len(req.Columns) > 0 {
		return s.reconcile(ctx, id, req.ID, req.Title, req.Columns)
	}

	if req.Title == nil {
		return nil, nil, apperror.Validation("Please provide a title or columns to update.")
	}
	title := strings.TrimSpace(*req.Title)
	if title == "" {
		return nil, nil, apperror.Validation("Please provide a project title.")
	}

	if _, err := loadProject(ctx, s.store.Projects, id, req.ID); err != nil {
		return nil, nil, err
	}
	project, err := s.store.Projects.UpdateByID(ctx, req.ID, map[string]interface{}{"title": title})
	if err != nil {
		return nil, nil, apperror.Internal("rename project", err)
	}
	return project, nil, nil
}

func (s *ProjectServiceImpl) ReconcileColumns(ctx context.Context, id auth.Identity, projectID uuid.UUID, proposed []models.Column) (*models.Project, *ReconcileResult, error) {
	if len(proposed) == 0 {
		project, err := loadProject(ctx, s.store.Projects, id, projectID)
		return project, &ReconcileResult{}, err
	}
	return s.reconcile(ctx, id, projectID, nil, proposed)
}

func (s *ProjectServiceImpl) reconcile(ctx context.Context, id auth.Identity, projectID uuid.UUID, title *string, proposed []models.Column) (*models.Project, *ReconcileResult, error) {
	project, result, err := s.reconcileLocked(ctx, id, projectID, title, proposed)
	if err != nil {
		return nil, nil, err
	}

	// The sweep takes the project lock itself, so it is queued after release.
	if s.jobs != nil {
		payload := map[string]interface{}{"project_id": projectID.String()}
		if err := s.jobs.Enqueue(ctx, worker.JobTypeOrphanSweep, payload); err != nil {
			s.logger.WarnContext(ctx, "enqueue orphan sweep failed", "project_id", projectID, "error", err)
		}
	}
	return project, result, nil
}

func (s *ProjectServiceImpl) reconcileLocked(ctx context.Context, id auth.Identity, projectID uuid.UUID, title *string, proposed []models.Column) (*models.Project, *ReconcileResult, error) {
	unlock, err := lockProject(ctx, s.locker, projectID)
	if err != nil {
		return nil, nil, err
	}
	defer unlock()

	project, err := loadProject(ctx, s.store.Projects, id, projectID)
	if err != nil {
		return nil, nil, err
	}

	plan, err := board.PlanReconciliation(project.Columns, proposed)
	if err != nil {
		return nil, nil, err
	}

	fields := map[string]interface{}{
		"columns": plan.Final,
		"version": gorm.Expr("version + ?", 1),
	}
	if title != nil {
		if t := strings.TrimSpace(*title); t != "" {
			fields["title"] = t
		}
	}

	result := &ReconcileResult{RemovedIDs: plan.RemovedIDs}
	if result.RemovedIDs == nil {
		result.RemovedIDs = []uuid.UUID{}
	}

	// Tasks of removed columns go first, then the column list, in one
	// transaction.
	err = s.store.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := s.store.WithTx(tx)
		if len(plan.RemovedIDs) > 0 {
			n, err := txStore.Tasks.DeleteBy(ctx, repositories.Filter{
				"project_id": projectID,
				"status":     board.RemovedRefs(plan.RemovedIDs),
			})
			if err != nil {
				return err
			}
			result.DeletedTasks = n
		}

		n, err := txStore.Projects.UpdateWhere(ctx, repositories.Filter{
			"id":      projectID,
			"version": project.Version,
		}, fields)
		if err != nil {
			return err
		}
		if n == 0 {
			return apperror.Conflict("Project was modified concurrently, please retry.")
		}
		return nil
	})
	if err != nil {
		if apperror.KindOf(err) == apperror.KindConflict {
			return nil, nil, err
		}
		return nil, nil, apperror.Internal("reconcile columns", err)
	}

	updated, err := s.store.Projects.FindByID(ctx, projectID)
	if err != nil {
		return nil, nil, apperror.Internal("reload project", err)
	}

	s.logger.InfoContext(ctx, "columns reconciled",
		"project_id", projectID,
		"version", updated.Version,
		"removed_columns", len(plan.RemovedIDs),
		"deleted_tasks", result.DeletedTasks,
	)
	return updated, result, nil
}

// Delete removes a project and every task in it.
func (s *ProjectServiceImpl) Delete(ctx context.Context, id auth.Identity, projectID uuid.UUID) (*models.Project, error) {
	unlock, err := lockProject(ctx, s.locker, projectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	project, err := loadProject(ctx, s.store.Projects, id, projectID)
	if err != nil {
		return nil, err
	}

	var deleted int64
	err = s.store.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txStore := s.store.WithTx(tx)
		// Row lock for writers on other instances using the in-memory locker.
		if _, err := txStore.Projects.Lock(ctx, projectID); err != nil {
			return err
		}
		n, err := txStore.Tasks.DeleteBy(ctx, repositories.Filter{"project_id": projectID})
		if err != nil {
			return err
		}
		deleted = n
		return txStore.Projects.DeleteByID(ctx, projectID)
	})
	if err != nil {
		return nil, apperror.Internal("delete project", err)
	}

	s.logger.InfoContext(ctx, "project deleted", "project_id", projectID, "deleted_tasks", deleted)
	return project, nil
}

var _ ProjectService = (*ProjectServiceImpl)(nil)
