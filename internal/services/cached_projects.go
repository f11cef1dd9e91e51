package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/TNEM22/synera-app-backend/internal/auth"
	"github.com/TNEM22/synera-app-backend/internal/cache"
	"github.com/TNEM22/synera-app-backend/internal/models"

	"github.com/gofrs/uuid"
)

// CachedProjectService caches each owner's project list. Lists are stored
// under the owner's current generation, and every write that can change the
// list moves the owner to a new generation. A List that read the database
// before a write can only fill a generation nobody reads any more.
type CachedProjectService struct {
	ProjectService
	cache  cache.Cache
	ttl    time.Duration
	logger *slog.Logger
}

// ProjectCachePrefix prefixes every key this service writes.
const ProjectCachePrefix = "projects:owner:"

func NewCachedProjectService(inner ProjectService, c cache.Cache, ttl time.Duration, logger *slog.Logger) *CachedProjectService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedProjectService{ProjectService: inner, cache: c, ttl: ttl, logger: logger}
}

func ownerGenerationKey(userID uuid.UUID) string {
	return fmt.Sprintf("%s%s:gen", ProjectCachePrefix, userID)
}

func ownerProjectsKey(userID uuid.UUID, generation string) string {
	return fmt.Sprintf("%s%s:%s", ProjectCachePrefix, userID, generation)
}

// generation returns the owner's current generation, starting one if none
// is stored. It must be read before the database.
func (s *CachedProjectService) generation(ctx context.Context, owner uuid.UUID) string {
	var gen string
	if err := s.cache.Get(ctx, ownerGenerationKey(owner), &gen); err == nil && gen != "" {
		return gen
	}
	gen = uuid.Must(uuid.NewV4()).String()
	if err := s.cache.Set(ctx, ownerGenerationKey(owner), gen, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "start project cache generation failed", "user_id", owner, "error", err)
	}
	return gen
}

func (s *CachedProjectService) List(ctx context.Context, id auth.Identity) ([]models.Project, error) {
	key := ownerProjectsKey(id.UserID, s.generation(ctx, id.UserID))

	var cached []models.Project
	if err := s.cache.Get(ctx, key, &cached); err == nil {
		return cached, nil
	}

	projects, err := s.ProjectService.List(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.cache.Set(ctx, key, projects, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "cache project list failed", "user_id", id.UserID, "error", err)
	}
	return projects, nil
}

func (s *CachedProjectService) Create(ctx context.Context, id auth.Identity, title string) (*models.Project, error) {
	project, err := s.ProjectService.Create(ctx, id, title)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, project.UserID)
	return project, nil
}

func (s *CachedProjectService) Update(ctx context.Context, id auth.Identity, req UpdateProjectRequest) (*models.Project, *ReconcileResult, error) {
	project, result, err := s.ProjectService.Update(ctx, id, req)
	if err != nil {
		return nil, nil, err
	}
	s.invalidate(ctx, project.UserID)
	return project, result, nil
}

func (s *CachedProjectService) ReconcileColumns(ctx context.Context, id auth.Identity, projectID uuid.UUID, proposed []models.Column) (*models.Project, *ReconcileResult, error) {
	project, result, err := s.ProjectService.ReconcileColumns(ctx, id, projectID, proposed)
	if err != nil {
		return nil, nil, err
	}
	s.invalidate(ctx, project.UserID)
	return project, result, nil
}

func (s *CachedProjectService) Delete(ctx context.Context, id auth.Identity, projectID uuid.UUID) (*models.Project, error) {
	project, err := s.ProjectService.Delete(ctx, id, projectID)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, project.UserID)
	return project, nil
}

func (s *CachedProjectService) invalidate(ctx context.Context, owner uuid.UUID) {
	next := uuid.Must(uuid.NewV4()).String()
	if err := s.cache.Set(ctx, ownerGenerationKey(owner), next, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "invalidate project list failed", "user_id", owner, "error", err)
		_ = s.cache.Delete(ctx, ownerGenerationKey(owner))
	}
}

func (s *CachedProjectService) CacheStats() map[string]interface{} {
	return s.cache.Stats()
}

var _ ProjectService = (*CachedProjectService)(nil)
