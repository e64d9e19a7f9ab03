package http

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/planty/core/internal/infrastructure/logger"
	"github.com/planty/core/internal/ports"
)

// SectionHandler handles section hierarchy requests
type SectionHandler struct {
	sectionService ports.SectionService
	present        presenter
	logger         *logger.Logger
}

// NewSectionHandler creates a new section handler
func NewSectionHandler(sectionService ports.SectionService, taskService ports.TaskService, logger *logger.Logger) *SectionHandler {
	return &SectionHandler{
		sectionService: sectionService,
		present:        presenter{url: taskService.AttachmentURL},
		logger:         logger,
	}
}

// GetRoot handles fetching the root section, creating it when missing
// @Summary Root section
// @Tags sections
// @Produce json
// @Success 200 {object} SectionResponse
// @Security BearerAuth
// @Router /sections/root [post]
func (h *SectionHandler) GetRoot(c echo.Context) error {
	ctx := c.Request().Context()
	userID := getUserIDFromContext(c)

	root, err := h.sectionService.CreateRootSection(ctx, userID)
	if err != nil {
		return apiError(err)
	}
	root, err = h.sectionService.GetSection(ctx, userID, root.ID)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, h.present.section(root))
}

// CreateSection handles section creation
// @Summary Create a section
// @Description Appends an empty section to the parent, the root section by default
// @Tags sections
// @Accept json
// @Produce json
// @Param request body ports.CreateSectionRequest true "Section data"
// @Success 201 {object} SectionResponse
// @Failure 400 {object} ports.ErrorResponse
// @Failure 422 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /sections [post]
func (h *SectionHandler) CreateSection(c echo.Context) error {
	var req ports.CreateSectionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	section, err := h.sectionService.CreateSection(c.Request().Context(), getUserIDFromContext(c), req)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusCreated, h.present.section(section))
}

// ListSections handles listing the caller's sections
// @Summary List sections
// @Tags sections
// @Produce json
// @Param leaves query bool false "Only sections that can hold tasks"
// @Param tree query bool false "Nest subsections under their parents"
// @Success 200 {array} SectionResponse
// @Security BearerAuth
// @Router /sections [get]
func (h *SectionHandler) ListSections(c echo.Context) error {
	leavesOnly, err := boolQuery(c, "leaves")
	if err != nil {
		return err
	}
	asTree, err := boolQuery(c, "tree")
	if err != nil {
		return err
	}

	sections, err := h.sectionService.ListSections(c.Request().Context(), getUserIDFromContext(c), leavesOnly, asTree)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, h.present.sections(sections))
}

// GetSection handles fetching a section with its children
// @Summary Get a section
// @Tags sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} SectionResponse
// @Failure 404 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /sections/{id} [get]
func (h *SectionHandler) GetSection(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	section, err := h.sectionService.GetSection(c.Request().Context(), getUserIDFromContext(c), id)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, h.present.section(section))
}

// UpdateSection handles renaming a section
// @Summary Rename a section
// @Tags sections
// @Accept json
// @Produce json
// @Param id path string true "Section ID"
// @Param request body ports.UpdateSectionRequest true "Section data"
// @Success 200 {object} SectionResponse
// @Failure 409 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /sections/{id} [patch]
func (h *SectionHandler) UpdateSection(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}
	var req ports.UpdateSectionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	section, err := h.sectionService.UpdateSection(c.Request().Context(), getUserIDFromContext(c), id, req)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, h.present.section(section))
}

// DeleteSection handles deleting an empty section
// @Summary Delete a section
// @Tags sections
// @Param id path string true "Section ID"
// @Success 204
// @Failure 409 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /sections/{id} [delete]
func (h *SectionHandler) DeleteSection(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	if err := h.sectionService.DeleteSection(c.Request().Context(), getUserIDFromContext(c), id); err != nil {
		return apiError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// MoveSection handles moving a section under another parent
// @Summary Move a section
// @Tags sections
// @Accept json
// @Produce json
// @Param request body ports.MoveSectionRequest true "Move"
// @Success 200 {object} ports.MessageResponse
// @Failure 422 {object} ports.ErrorResponse
// @Security BearerAuth
// @Router /sections/move [post]
func (h *SectionHandler) MoveSection(c echo.Context) error {
	var req ports.MoveSectionRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.sectionService.MoveSection(c.Request().Context(), getUserIDFromContext(c), req); err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, ports.MessageResponse{Message: "Section moved successfully"})
}

// ShuffleSection handles randomizing the task order of a section
// @Summary Shuffle the tasks of a section
// @Tags sections
// @Produce json
// @Param id path string true "Section ID"
// @Success 200 {object} SectionResponse
// @Security BearerAuth
// @Router /sections/{id}/shuffle [post]
func (h *SectionHandler) ShuffleSection(c echo.Context) error {
	id, err := uuidParam(c, "id")
	if err != nil {
		return err
	}

	section, err := h.sectionService.ShuffleSection(c.Request().Context(), getUserIDFromContext(c), id)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, h.present.section(section))
}

func boolQuery(c echo.Context, name string) (bool, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, echo.NewHTTPError(http.StatusBadRequest, "Invalid "+name+" parameter")
	}
	return v, nil
}
