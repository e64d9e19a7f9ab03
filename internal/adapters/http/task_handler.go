package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/planty/core/internal/domain/dates"
	"github.com/planty/core/internal/infrastructure/logger"
	"github.com/planty/core/internal/ports"
)

// TaskHandler handles task requests
type TaskHandler struct {
	sectionService ports.SectionService
	taskService    ports.TaskService
	present        presenter
	logger         *logger.Logger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(sectionService ports.SectionService, taskService ports.TaskService, logger *logger.Logger) *TaskHandler {
	return &TaskHandler{
		sectionService: sectionService,
		taskService:    taskService,
		present:        presenter{url: taskService.AttachmentURL},
		logger:         logger,
	}
}

// CreateTask handles task creation
// @Summary Create a task
// @Description Appends a task to a section that holds no subsections
// @Tags tasks
// @Accept json
// @Produce json
// @Param request body ports.CreateTaskRequest true "Task data"
// @Success 201 {object} TaskResponse
// @Failure 400 {object} ports.ErrorResponse
// @Failure 422 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks [post]
func (h *TaskHandler) CreateTask(c echo.Context) error {
	var req ports.CreateTaskRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	task, err := h.sectionService.CreateTask(c.Request().Context(), getUserIDFromContext(c), req)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, h.present.task(task))
}

// CreateTasksBulk handles creating several tasks at once
// @Summary Create tasks in bulk
// @Description Either every task is created or none is
// @Tags tasks
// @Accept json
// @Produce json
// @Param request body BulkCreateTasksRequest true "Tasks"
// @Success 201 {array} TaskResponse
// @Security BearerAuth
// @Router /tasks/bulk [post]
func (h *TaskHandler) CreateTasksBulk(c echo.Context) error {
	var req BulkCreateTasksRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	tasks, err := h.sectionService.CreateTasksBulk(c.Request().Context(), getUserIDFromContext(c), req.Tasks)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, h.present.tasks(tasks))
}

// GetTask handles fetching a task
// @Summary Get a task
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} TaskResponse
// @Failure 404 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id} [get]
func (h *TaskHandler) GetTask(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	task, err := h.taskService.GetTask(c.Request().Context(), getUserIDFromContext(c), id)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, h.present.task(task))
}

// UpdateTask handles partial task updates
// @Summary Update a task
// @Description Absent fields are kept, null clears a field
// @Tags tasks
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param request body ports.UpdateTaskRequest true "Changes"
// @Success 200 {object} TaskResponse
// @Failure 422 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/{id} [patch]
func (h *TaskHandler) UpdateTask(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req ports.UpdateTaskRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}

	task, err := h.taskService.UpdateTask(c.Request().Context(), getUserIDFromContext(c), id, req)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, h.present.task(task))
}

// DeleteTask handles task removal
// @Summary Delete a task
// @Tags tasks
// @Param id path string true "Task ID"
// @Success 204
// @Security BearerAuth
// @Router /tasks/{id} [delete]
func (h *TaskHandler) DeleteTask(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.sectionService.RemoveTask(c.Request().Context(), getUserIDFromContext(c), id); err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// MoveTask handles moving a task to a position in a section
// @Summary Move a task
// @Tags tasks
// @Accept json
// @Produce json
// @Param request body ports.MoveTaskRequest true "Move"
// @Success 200 {object} ports.MessageResponse
// @Failure 422 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/move [post]
func (h *TaskHandler) MoveTask(c echo.Context) error {
	var req ports.MoveTaskRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.sectionService.MoveTask(c.Request().Context(), getUserIDFromContext(c), req); err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, ports.MessageResponse{Message: "Task moved successfully"})
}

// ToggleCompleted handles completing or reopening a task
// @Summary Toggle task completion
// @Description Recurring tasks advance their due date instead of completing
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Param auto_archive query bool false "Archive the task once completed"
// @Success 200 {object} SectionResponse
// @Security BearerAuth
// @Router /tasks/{id}/toggle-completed [post]
func (h *TaskHandler) ToggleCompleted(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var autoArchive *bool
	if c.QueryParam("auto_archive") != "" {
		v, err := boolQuery(c, "auto_archive")
		if err != nil {
			return err
		}
		autoArchive = &v
	}

	section, err := h.sectionService.ToggleTaskCompleted(c.Request().Context(), getUserIDFromContext(c), id, autoArchive)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, h.present.section(section))
}

// ToggleArchived handles archiving or restoring a task
// @Summary Toggle task archival
// @Tags tasks
// @Produce json
// @Param id path string true "Task ID"
// @Success 200 {object} SectionResponse
// @Security BearerAuth
// @Router /tasks/{id}/toggle-archived [post]
func (h *TaskHandler) ToggleArchived(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	section, err := h.sectionService.ToggleTaskArchived(c.Request().Context(), getUserIDFromContext(c), id)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, h.present.section(section))
}

// GetTasksByDate handles the calendar view
// @Summary Tasks by date
// @Description Groups active dated tasks by due date within the window, plus overdue tasks
// @Tags tasks
// @Produce json
// @Param not_before query string true "First day (YYYY-MM-DD)"
// @Param not_after query string true "Last day (YYYY-MM-DD)"
// @Param expand query bool false "Repeat recurring tasks on each occurrence"
// @Success 200 {object} AgendaResponse
// @Failure 422 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /tasks/by-date [get]
func (h *TaskHandler) GetTasksByDate(c echo.Context) error {
	notBefore, err := dates.Parse(c.QueryParam("not_before"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid not_before parameter")
	}
	notAfter, err := dates.Parse(c.QueryParam("not_after"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid not_after parameter")
	}
	expand, err := boolQuery(c, "expand")
	if err != nil {
		return err
	}

	agenda, err := h.taskService.GetTasksByDate(c.Request().Context(), getUserIDFromContext(c), ports.TasksByDateRequest{
		NotBefore: notBefore,
		NotAfter:  notAfter,
		Expand:    expand,
	})
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, h.present.agenda(agenda))
}

// GetArchivedTasks handles listing archived tasks
// @Summary Archived tasks
// @Tags tasks
// @Produce json
// @Success 200 {array} TaskResponse
// @Security BearerAuth
// @Router /tasks/archived [get]
func (h *TaskHandler) GetArchivedTasks(c echo.Context) error {
	tasks, err := h.taskService.GetArchivedTasks(c.Request().Context(), getUserIDFromContext(c))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, h.present.tasks(tasks))
}

// Search handles full-text task lookup
// @Summary Search tasks
// @Tags tasks
// @Produce json
// @Param q query string false "Text to look for in titles and descriptions"
// @Success 200 {array} TaskResponse
// @Security BearerAuth
// @Router /tasks/search [get]
func (h *TaskHandler) Search(c echo.Context) error {
	tasks, err := h.taskService.Search(c.Request().Context(), getUserIDFromContext(c), c.QueryParam("q"))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, h.present.tasks(tasks))
}

// RequestAttachmentUpload handles issuing an upload form for an attachment
// @Summary Request an attachment upload
// @Description Registers the attachment and returns a presigned POST form
// @Tags attachments
// @Accept json
// @Produce json
// @Param id path string true "Task ID"
// @Param request body ports.AttachmentUploadRequest true "Encryption parameters"
// @Success 201 {object} ports.AttachmentUploadInfo
// @Security BearerAuth
// @Router /tasks/{id}/attachments [post]
func (h *TaskHandler) RequestAttachmentUpload(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req ports.AttachmentUploadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request format")
	}
	req.TaskID = id
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	info, err := h.taskService.RequestAttachmentUpload(c.Request().Context(), getUserIDFromContext(c), req)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, info)
}

// RemoveAttachment handles deleting an attachment and its object
// @Summary Remove an attachment
// @Tags attachments
// @Param id path string true "Task ID"
// @Param attachment_id path string true "Attachment ID"
// @Success 204
// @Security BearerAuth
// @Router /tasks/{id}/attachments/{attachment_id} [delete]
func (h *TaskHandler) RemoveAttachment(c echo.Context) error {
	taskID, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	attachmentID, err := uuidParam(c, "attachment_id")
	if err != nil {
		return err
	}

	if err := h.taskService.RemoveAttachment(c.Request().Context(), getUserIDFromContext(c), taskID, attachmentID); err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}
