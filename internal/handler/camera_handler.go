// internal/handler/camera_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shutter-service/internal/repository"
	"shutter-service/internal/service"
	"shutter-service/internal/utils"
)

// MeasurementPageView is one page of a camera's measurements
type MeasurementPageView struct {
	Items  []MeasurementView `json:"items"`
	Total  int               `json:"total"`
	Limit  int               `json:"limit"`
	Offset int               `json:"offset"`
}

// CameraHandler handles camera and stored measurement requests
type CameraHandler struct {
	cameras      *service.CameraService
	measurements *service.MeasurementService
	settings     service.Settings
	logger       *utils.ServiceLogger
}

// NewCameraHandler creates a new camera handler
func NewCameraHandler(
	cameras *service.CameraService,
	measurements *service.MeasurementService,
	settings service.Settings,
	logger *zap.Logger,
) *CameraHandler {
	return &CameraHandler{
		cameras:      cameras,
		measurements: measurements,
		settings:     settings,
		logger:       utils.NewServiceLogger(logger, "camera-handler"),
	}
}

// RegisterRoutes registers camera and measurement routes
func (h *CameraHandler) RegisterRoutes(router *gin.RouterGroup) {
	cameras := router.Group("/cameras")
	{
		cameras.POST("", h.CreateCamera)
		cameras.GET("", h.ListCameras)

		camera := cameras.Group("/:id")
		{
			camera.GET("", h.GetCamera)
			camera.PUT("", h.UpdateCamera)
			camera.DELETE("", h.DeleteCamera)
			camera.GET("/measurements", h.ListMeasurements)
		}
	}

	measurements := router.Group("/measurements")
	{
		measurements.GET("/:id", h.GetMeasurement)
		measurements.DELETE("/:id", h.DeleteMeasurement)
	}
}

// CreateCamera registers a camera body
// @Summary Create a camera
// @Tags Cameras
// @Accept json
// @Produce json
// @Param request body service.CameraRequest true "Camera"
// @Success 201 {object} utils.APIResponse{data=model.Camera}
// @Failure 400 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse "Camera already exists"
// @Router /cameras [post]
func (h *CameraHandler) CreateCamera(c *gin.Context) {
	var req service.CameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	camera, err := h.cameras.Create(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, "Failed to create camera", err)
		return
	}
	utils.SuccessResponse(c, http.StatusCreated, "Camera created successfully", camera)
}

// ListCameras lists cameras newest first
// @Summary List cameras
// @Tags Cameras
// @Produce json
// @Success 200 {object} utils.APIResponse{data=utils.ListData{items=[]model.Camera}}
// @Router /cameras [get]
func (h *CameraHandler) ListCameras(c *gin.Context) {
	cameras, err := h.cameras.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "Failed to list cameras", err)
		return
	}
	utils.ListResponse(c, "Cameras retrieved", cameras, len(cameras))
}

// GetCamera returns one camera
// @Summary Get a camera
// @Tags Cameras
// @Produce json
// @Param id path int true "Camera ID"
// @Success 200 {object} utils.APIResponse{data=model.Camera}
// @Failure 404 {object} utils.APIResponse
// @Router /cameras/{id} [get]
func (h *CameraHandler) GetCamera(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	camera, err := h.cameras.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "Failed to get camera", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Camera retrieved", camera)
}

// UpdateCamera replaces a camera's fields
// @Summary Update a camera
// @Tags Cameras
// @Accept json
// @Produce json
// @Param id path int true "Camera ID"
// @Param request body service.CameraRequest true "Camera"
// @Success 200 {object} utils.APIResponse{data=model.Camera}
// @Failure 404 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse
// @Router /cameras/{id} [put]
func (h *CameraHandler) UpdateCamera(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var req service.CameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	camera, err := h.cameras.Update(c.Request.Context(), id, req)
	if err != nil {
		respondError(c, h.logger, "Failed to update camera", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Camera updated successfully", camera)
}

// DeleteCamera removes a camera and its measurements
// @Summary Delete a camera
// @Tags Cameras
// @Produce json
// @Param id path int true "Camera ID"
// @Success 200 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Router /cameras/{id} [delete]
func (h *CameraHandler) DeleteCamera(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.cameras.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "Failed to delete camera", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Camera deleted successfully", nil)
}

// ListMeasurements pages a camera's measurements newest first
// @Summary List a camera's measurements
// @Tags Measurements
// @Produce json
// @Param id path int true "Camera ID"
// @Param limit query int false "Page size, 0 for all"
// @Param offset query int false "Offset"
// @Success 200 {object} utils.APIResponse{data=MeasurementPageView}
// @Failure 404 {object} utils.APIResponse
// @Router /cameras/{id}/measurements [get]
func (h *CameraHandler) ListMeasurements(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	var filter repository.MeasurementFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid query parameters", err)
		return
	}

	page, err := h.measurements.ListByCamera(c.Request.Context(), id, filter)
	if err != nil {
		respondError(c, h.logger, "Failed to list measurements", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Measurements retrieved", MeasurementPageView{
		Items:  newMeasurementViews(page.Items, h.settings.Thresholds()),
		Total:  page.Total,
		Limit:  page.Limit,
		Offset: page.Offset,
	})
}

// GetMeasurement returns one stored measurement
// @Summary Get a measurement
// @Tags Measurements
// @Produce json
// @Param id path int true "Measurement ID"
// @Success 200 {object} utils.APIResponse{data=MeasurementView}
// @Failure 404 {object} utils.APIResponse
// @Router /measurements/{id} [get]
func (h *CameraHandler) GetMeasurement(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	m, err := h.measurements.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "Failed to get measurement", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Measurement retrieved", newMeasurementView(m, h.settings.Thresholds()))
}

// DeleteMeasurement removes one stored measurement
// @Summary Delete a measurement
// @Tags Measurements
// @Produce json
// @Param id path int true "Measurement ID"
// @Success 200 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse
// @Router /measurements/{id} [delete]
func (h *CameraHandler) DeleteMeasurement(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}

	if err := h.measurements.Delete(c.Request.Context(), id); err != nil {
		respondError(c, h.logger, "Failed to delete measurement", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Measurement deleted successfully", nil)
}
