package handlers

import (
	"net/http"

	"github.com/TNEM22/synera-app-backend/internal/apperror"
	"github.com/TNEM22/synera-app-backend/internal/middleware"
	"github.com/TNEM22/synera-app-backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

type taskIDRequest struct {
	ID uuid.UUID `json:"id"`
}

type TaskHandler struct {
	tasks services.TaskService
}

func NewTaskHandler(tasks services.TaskService) *TaskHandler {
	return &TaskHandler{tasks: tasks}
}

func (h *TaskHandler) ListByProject(c *gin.Context) {
	id, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	raw := c.Param("id")
	if raw == "" || raw == "undefined" {
		c.Error(apperror.Validation("Project ID is required"))
		return
	}
	projectID, err := uuid.FromString(raw)
	if err != nil {
		c.Error(apperror.Validation("Invalid project ID"))
		return
	}

	tasks, err := h.tasks.ListByProject(c.Request.Context(), id, projectID)
	if err != nil {
		c.Error(err)
		return
	}
	success(c, http.StatusOK, tasks)
}

func (h *TaskHandler) Create(c *gin.Context) {
	id, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	var req services.CreateTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	task, err := h.tasks.Create(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}
	success(c, http.StatusCreated, task)
}

func (h *TaskHandler) Update(c *gin.Context) {
	id, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	var req services.UpdateTaskRequest
	if !bindJSON(c, &req) {
		return
	}
	task, err := h.tasks.Update(c.Request.Context(), id, req)
	if err != nil {
		c.Error(err)
		return
	}
	success(c, http.StatusOK, task)
}

func (h *TaskHandler) Delete(c *gin.Context) {
	id, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	var req taskIDRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.tasks.Delete(c.Request.Context(), id, req.ID); err != nil {
		c.Error(err)
		return
	}
	noContent(c)
}

func (h *TaskHandler) ChangeStatus(c *gin.Context) {
	id, ok := middleware.MustIdentity(c)
	if !ok {
		return
	}
	var req services.ChangeStatusRequest
	if !bindJSON(c, &req) {
		return
	}
	if err := h.tasks.ChangeStatus(c.Request.Context(), id, req); err != nil {
		c.Error(err)
		return
	}
	success(c, http.StatusOK, nil)
}
