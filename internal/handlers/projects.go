package handlers

import (
	"net/http"

	"github.com/TNEM22/synera-app-backend/internal/middleware"
	"github.com/TNEM22/synera-app-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

type createProjectRequest struct {
	Title string `json:"title"`
}

type projectIDRequest struct {
	ID uuid.UUID `json:"id"`
}

type ProjectHandler struct {
	projects services.ProjectService
}

func NewProjectHandler(projects services.ProjectService) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

func (h *ProjectHandler) List(c *gin.Context) {
	id, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	projects, err := h.projects.List(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	success(c, http.StatusOK, projects)
}

func (h *ProjectHandler) Create(c *gin.Context) {
	id, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	var req createProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	project, err := h.projects.Create(c.Request.Context(), id, req.Title)
	if err != nil {
		c.Error(err)
		return
	}
	success(c, http.StatusCreated, project)
}

// Update renames the project, or rewrites its board when columns are sent.
func (h *ProjectHandler) Update(c *gin.Context) {
	id, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	var req services.UpdateProjectRequest
	if !bindJSON(c, &req) {
		return
	}
	project, _, err := h.projects.Update(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}
	success(c, http.StatusOK, project)
}

func (h *ProjectHandler) Delete(c *gin.Context) {
	id, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	var req projectIDRequest
	if !bindJSON(c, &req) {
		return
	}
	if _, err := h.projects.Delete(c.Request.Context(), id, req.ID); err != nil {
		c.Error(err)
		return
	}
	noContent(c)
}
