package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

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

type CreateTaskRequest struct {
	ProjectID           uuid.UUID         `json:"projectId"`
	Title               string            `json:"title"`
	Note                string            `json:"note"`
	Milestones          models.StringList `json:"milestones"`
	CompletedMilestones models.StringList `json:"completedMilestones"`
	AssignedDate        *time.Time        `json:"assignedDate"`
	Comments            models.StringList `json:"comments"`
	Pinned              models.StringList `json:"pinned"`
	Collaborators       models.UUIDList   `json:"collaborators"`
	Status              models.ColumnRef  `json:"status"`
}

// UpdateTaskRequest carries the editable task fields. Nil fields are left
// alone. Status changes go through ChangeStatus.
type UpdateTaskRequest struct {
	ID                  uuid.UUID          `json:"id"`
	Title               *string            `json:"title"`
	Note                *string            `json:"note"`
	Milestones          *models.StringList `json:"milestones"`
	CompletedMilestones *models.StringList `json:"completedMilestones"`
	AssignedDate        *time.Time         `json:"assignedDate"`
}

type ChangeStatusRequest struct {
	TaskID    uuid.UUID        `json:"id"`
	ProjectID uuid.UUID        `json:"projectId"`
	Status    models.ColumnRef `json:"status"`
}

type TaskService interface {
	ListByProject(ctx context.Context, id auth.Identity, projectID uuid.UUID) ([]models.Task, error)
	Create(ctx context.Context, id auth.Identity, req CreateTaskRequest) (*models.Task, error)
	Update(ctx context.Context, id auth.Identity, req UpdateTaskRequest) (*models.Task, error)
	Delete(ctx context.Context, id auth.Identity, taskID uuid.UUID) error
	ChangeStatus(ctx context.Context, id auth.Identity, req ChangeStatusRequest) error
	SweepOrphans(ctx context.Context, projectID uuid.UUID) (int64, error)
}

type TaskServiceImpl struct {
	store  *repositories.Store
	locker lock.ProjectLocker
	logger *slog.Logger
}

func NewTaskService(store *repositories.Store, locker lock.ProjectLocker, logger *slog.Logger) *TaskServiceImpl {
	if locker == nil {
		locker = lock.NewMemoryLocker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskServiceImpl{store: store, locker: locker, logger: logger.With("service", "tasks")}
}

func (s *TaskServiceImpl) ListByProject(ctx context.Context, id auth.Identity, projectID uuid.UUID) ([]models.Task, error) {
	if _, err := loadProject(ctx, s.store.Projects, id, projectID); err != nil {
		return nil, err
	}
	tasks, err := s.store.Tasks.FindBy(ctx, repositories.Filter{"project_id": projectID}, "created_at")
	if err != nil {
		return nil, apperror.Internal("list tasks", err)
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

// Create adds a task to a project. An unassigned status lands in the first
// column.
func (s *TaskServiceImpl) Create(ctx context.Context, id auth.Identity, req CreateTaskRequest) (*models.Task, error) {
	title := strings.TrimSpace(req.Title)
	note := strings.TrimSpace(req.Note)
	if title == "" {
		return nil, apperror.Validation("A task must have a title.")
	}
	if note == "" {
		return nil, apperror.Validation("A task must have a note.")
	}

	unlock, err := lockProject(ctx, s.locker, req.ProjectID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	project, err := loadProject(ctx, s.store.Projects, id, req.ProjectID)
	if err != nil {
		return nil, err
	}

	status := req.Status
	if !status.IsAssigned() && len(project.Columns) > 0 {
		status = models.RefTo(project.Columns[0].ID)
	}
	if err := board.ValidateStatus(project.Columns, status); err != nil {
		return nil, err
	}

	task := &models.Task{
		ProjectID:           project.ID,
		UserID:              id.UserID,
		Title:               title,
		Note:                note,
		Milestones:          req.Milestones,
		CompletedMilestones: req.CompletedMilestones,
		AssignedDate:        req.AssignedDate,
		Comments:            req.Comments,
		Pinned:              req.Pinned,
		Collaborators:       req.Collaborators,
		Status:              status,
	}
	if err := s.store.Tasks.Create(ctx, task); err != nil {
		return nil, apperror.Internal("create task", err)
	}
	return task, nil
}

// taskWithAccess loads a task and checks the caller against its project
// owner, or the task creator when the project is gone.
func (s *TaskServiceImpl) taskWithAccess(ctx context.Context, id auth.Identity, taskID uuid.UUID) (*models.Task, error) {
	if taskID == uuid.Nil {
		return nil, apperror.Validation("Task ID is required")
	}
	task, err := s.store.Tasks.FindByID(ctx, taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("Task not found")
	}
	if err != nil {
		return nil, apperror.Internal("load task", err)
	}

	owner := task.UserID
	project, err := s.store.Projects.FindByID(ctx, task.ProjectID)
	switch {
	case err == nil:
		owner = project.UserID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, apperror.Internal("load project", err)
	}
	if !id.CanAccess(owner) {
		return nil, apperror.Forbidden("You do not have access to this task.")
	}
	return task, nil
}

func (s *TaskServiceImpl) Update(ctx context.Context, id auth.Identity, req UpdateTaskRequest) (*models.Task, error) {
	task, err := s.taskWithAccess(ctx, id, req.ID)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{}
	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, apperror.Validation("A task must have a title.")
		}
		fields["title"] = title
	}
	if req.Note != nil {
		note := strings.TrimSpace(*req.Note)
		if note == "" {
			return nil, apperror.Validation("A task must have a note.")
		}
		fields["note"] = note
	}
	if req.Milestones != nil {
		fields["milestones"] = *req.Milestones
	}
	if req.CompletedMilestones != nil {
		fields["completed_milestones"] = *req.CompletedMilestones
	}
	if req.AssignedDate != nil {
		fields["assigned_date"] = req.AssignedDate
	}
	if len(fields) == 0 {
		return task, nil
	}

	updated, err := s.store.Tasks.UpdateByID(ctx, task.ID, fields)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperror.NotFound("Task not found")
	}
	if err != nil {
		return nil, apperror.Internal("update task", err)
	}
	return updated, nil
}

func (s *TaskServiceImpl) Delete(ctx context.Context, id auth.Identity, taskID uuid.UUID) error {
	task, err := s.taskWithAccess(ctx, id, taskID)
	if err != nil {
		return err
	}
	err = s.store.Tasks.DeleteByID(ctx, task.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.NotFound("Task not found")
	}
	if err != nil {
		return apperror.Internal("delete task", err)
	}
	return nil
}

// ChangeStatus moves a task to another column of its project. The column
// must exist. A task that no longer exists is acknowledged without error,
// one that belongs to another project is not found.
func (s *TaskServiceImpl) ChangeStatus(ctx context.Context, id auth.Identity, req ChangeStatusRequest) error {
	unlock, err := lockProject(ctx, s.locker, req.ProjectID)
	if err != nil {
		return err
	}
	defer unlock()

	project, err := loadProject(ctx, s.store.Projects, id, req.ProjectID)
	if err != nil {
		return err
	}
	if !project.Columns.Contains(req.Status) {
		return apperror.Validation("status %q is not a column of this project", req.Status.String())
	}

	task, err := s.store.Tasks.FindOneBy(ctx, repositories.Filter{"id": req.TaskID, "project_id": project.ID})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		n, countErr := s.store.Tasks.Count(ctx, repositories.Filter{"id": req.TaskID})
		if countErr != nil {
			return apperror.Internal("load task", countErr)
		}
		if n > 0 {
			return apperror.NotFound("Task not found")
		}
		s.logger.DebugContext(ctx, "status change for missing task", "task_id", req.TaskID, "project_id", project.ID)
		return nil
	}
	if err != nil {
		return apperror.Internal("load task", err)
	}

	transition, err := board.PlanTransition(project.Columns, task.Milestones, req.Status)
	if err != nil {
		return err
	}

	if _, err := s.store.Tasks.UpdateWhere(ctx, repositories.Filter{"id": task.ID}, transition.Fields()); err != nil {
		return apperror.Internal("change task status", err)
	}
	return nil
}

// SweepOrphans deletes tasks whose status references no column of their
// project, or every task of a project that no longer exists.
func (s *TaskServiceImpl) SweepOrphans(ctx context.Context, projectID uuid.UUID) (int64, error) {
	unlock, err := s.locker.Lock(ctx, projectID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	project, err := s.store.Projects.FindByID(ctx, projectID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return s.store.Tasks.DeleteBy(ctx, repositories.Filter{"project_id": projectID})
	}
	if err != nil {
		return 0, err
	}

	tasks, err := s.store.Tasks.FindBy(ctx, repositories.Filter{"project_id": projectID})
	if err != nil {
		return 0, err
	}

	var orphans []uuid.UUID
	for _, t := range tasks {
		if board.IsOrphan(project.Columns, t.Status) {
			orphans = append(orphans, t.ID)
		}
	}
	if len(orphans) == 0 {
		return 0, nil
	}

	n, err := s.store.Tasks.DeleteBy(ctx, repositories.Filter{"id": orphans})
	if err != nil {
		return 0, err
	}
	s.logger.InfoContext(ctx, "orphaned tasks removed", "project_id", projectID, "count", n)
	return n, nil
}

// RegisterJobs wires background job handlers backed by tasks.
func RegisterJobs(registry *worker.Registry, tasks TaskService) {
	registry.Register(worker.JobTypeOrphanSweep, func(ctx context.Context, job *worker.Job) error {
		raw, ok := job.PayloadString("project_id")
		if !ok {
			return errors.New("orphan sweep job without project_id")
		}
		projectID, err := uuid.FromString(raw)
		if err != nil {
			return err
		}
		_, err = tasks.SweepOrphans(ctx, projectID)
		return err
	})
}

var _ TaskService = (*TaskServiceImpl)(nil)
