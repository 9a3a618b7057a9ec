// internal/handler/settings_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shutter-service/internal/model"
	"shutter-service/internal/service"
	"shutter-service/internal/utils"
	"shutter-service/pkg/devicetypes"
)

// Preferences are the user-selectable settings
type Preferences interface {
	service.Settings
	ThresholdSource
	SetDeviceType(name string) (devicetypes.Identity, error)
	SetThresholds(thresholds model.DeviationThresholds) error
}

// SettingsView is the response of GET /settings
type SettingsView struct {
	Device     devicetypes.Identity      `json:"device"`
	Thresholds model.DeviationThresholds `json:"thresholds"`
}

// DeviceTypeRequest selects a board by name
type DeviceTypeRequest struct {
	DeviceType string `json:"device_type" binding:"required" example:"STM32"`
}

// ThresholdsRequest updates either limit or both; an omitted limit keeps its
// current value
type ThresholdsRequest struct {
	Warning *float64 `json:"warning,omitempty" example:"5"`
	Error   *float64 `json:"error,omitempty" example:"10"`
}

// SettingsHandler handles preferences and reference data
type SettingsHandler struct {
	preferences Preferences
	logger      *utils.ServiceLogger
}

// NewSettingsHandler creates a new settings handler
func NewSettingsHandler(preferences Preferences, logger *zap.Logger) *SettingsHandler {
	return &SettingsHandler{
		preferences: preferences,
		logger:      utils.NewServiceLogger(logger, "settings-handler"),
	}
}

// RegisterRoutes registers settings routes
func (h *SettingsHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/speeds", h.ListSpeeds)

	settings := router.Group("/settings")
	{
		settings.GET("", h.GetSettings)
		settings.PUT("/device", h.UpdateDevice)
		settings.PUT("/thresholds", h.UpdateThresholds)
	}
}

// ListSpeeds returns the reference shutter speed table
// @Summary List reference shutter speeds
// @Tags Settings
// @Produce json
// @Success 200 {object} utils.APIResponse{data=utils.ListData{items=[]model.ReferenceSpeed}}
// @Router /speeds [get]
func (h *SettingsHandler) ListSpeeds(c *gin.Context) {
	speeds := model.ReferenceSpeeds()
	utils.ListResponse(c, "Reference speeds retrieved", speeds, len(speeds))
}

// GetSettings returns the selected board and thresholds
// @Summary Get settings
// @Tags Settings
// @Produce json
// @Success 200 {object} utils.APIResponse{data=SettingsView}
// @Router /settings [get]
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Settings retrieved", h.view())
}

// UpdateDevice selects the measuring board
// @Summary Select the measuring board
// @Tags Settings
// @Accept json
// @Produce json
// @Param request body DeviceTypeRequest true "Board name"
// @Success 200 {object} utils.APIResponse{data=SettingsView}
// @Failure 400 {object} utils.APIResponse
// @Router /settings/device [put]
func (h *SettingsHandler) UpdateDevice(c *gin.Context) {
	var req DeviceTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if _, ok := devicetypes.ByName(req.DeviceType); !ok {
		utils.ValidationErrorResponse(c, map[string]string{"device_type": "must be one of the supported devices"})
		return
	}

	if _, err := h.preferences.SetDeviceType(req.DeviceType); err != nil {
		h.logger.Error("Failed to update device type", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to update device type", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device type updated", h.view())
}

// UpdateThresholds sets the warning and/or error deviation threshold
// @Summary Update deviation thresholds
// @Tags Settings
// @Accept json
// @Produce json
// @Param request body ThresholdsRequest true "Thresholds in percent"
// @Success 200 {object} utils.APIResponse{data=SettingsView}
// @Failure 400 {object} utils.APIResponse
// @Router /settings/thresholds [put]
func (h *SettingsHandler) UpdateThresholds(c *gin.Context) {
	var req ThresholdsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Warning == nil && req.Error == nil {
		utils.ValidationErrorResponse(c, map[string]string{"thresholds": "warning or error is required"})
		return
	}

	thresholds := h.preferences.Thresholds()
	if req.Warning != nil {
		thresholds.Warning = *req.Warning
	}
	if req.Error != nil {
		thresholds.Error = *req.Error
	}

	if err := thresholds.Validate(); err != nil {
		utils.ValidationErrorResponse(c, map[string]string{"thresholds": err.Error()})
		return
	}

	if err := h.preferences.SetThresholds(thresholds); err != nil {
		h.logger.Error("Failed to update thresholds", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to update thresholds", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Thresholds updated", h.view())
}

func (h *SettingsHandler) view() SettingsView {
	return SettingsView{
		Device:     h.preferences.DeviceIdentity(),
		Thresholds: h.preferences.Thresholds(),
	}
}
