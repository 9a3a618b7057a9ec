// internal/handler/device_handler.go
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shutter-service/internal/protocol"
	"shutter-service/internal/service"
	"shutter-service/internal/utils"
	"shutter-service/pkg/devicetypes"
)

// DeviceHandler handles the measuring board session
type DeviceHandler struct {
	session *service.SessionController
	logger  *utils.ServiceLogger
}

// CommandRequest names a host-to-device command
type CommandRequest struct {
	Command string `json:"command" binding:"required" example:"GET_FIRMWARE_VERSION"`
}

// AttemptResponse identifies a started background task
type AttemptResponse struct {
	AttemptID string `json:"attempt_id"`
}

// NewDeviceHandler creates a new device handler
func NewDeviceHandler(session *service.SessionController, logger *zap.Logger) *DeviceHandler {
	return &DeviceHandler{
		session: session,
		logger:  utils.NewServiceLogger(logger, "device-handler"),
	}
}

// RegisterRoutes registers device and session routes
func (h *DeviceHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/devices/supported", h.ListSupportedDevices)

	session := router.Group("/session")
	{
		session.GET("", h.GetSession)
		session.POST("/connect", h.Connect)
		session.POST("/disconnect", h.Disconnect)
		session.POST("/reset", h.Reset)
		session.POST("/listen", h.StartListening)
		session.POST("/commands", h.SendCommand)
		session.POST("/measurements", h.StartMeasurement)
	}
}

// ListSupportedDevices lists the boards the service can talk to
// @Summary List supported boards
// @Tags Devices
// @Produce json
// @Success 200 {object} utils.APIResponse{data=utils.ListData{items=[]devicetypes.Identity}}
// @Router /devices/supported [get]
func (h *DeviceHandler) ListSupportedDevices(c *gin.Context) {
	devices := devicetypes.All()
	utils.ListResponse(c, "Supported devices retrieved", devices, len(devices))
}

// GetSession returns the connection and measurement state
// @Summary Get session state
// @Tags Session
// @Produce json
// @Success 200 {object} utils.APIResponse{data=SessionView}
// @Router /session [get]
func (h *DeviceHandler) GetSession(c *gin.Context) {
	utils.SuccessResponse(c, http.StatusOK, "Session retrieved", newSessionView(h.session.Status()))
}

// Connect opens the connection to the selected board
// @Summary Connect to the selected board
// @Tags Session
// @Produce json
// @Success 200 {object} utils.APIResponse{data=SessionView}
// @Failure 503 {object} utils.APIResponse "Board not found or not accessible"
// @Router /session/connect [post]
func (h *DeviceHandler) Connect(c *gin.Context) {
	if err := h.session.Connect(c.Request.Context()); err != nil {
		respondError(c, h.logger, "Failed to connect to device", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device connected", newSessionView(h.session.Status()))
}

// Disconnect closes the connection. It always succeeds.
// @Summary Disconnect from the board
// @Tags Session
// @Produce json
// @Success 200 {object} utils.APIResponse{data=SessionView}
// @Router /session/disconnect [post]
func (h *DeviceHandler) Disconnect(c *gin.Context) {
	h.session.Disconnect()
	utils.SuccessResponse(c, http.StatusOK, "Device disconnected", newSessionView(h.session.Status()))
}

// Reset cancels the running task and returns to idle
// @Summary Reset the measurement state
// @Tags Session
// @Produce json
// @Success 200 {object} utils.APIResponse{data=SessionView}
// @Router /session/reset [post]
func (h *DeviceHandler) Reset(c *gin.Context) {
	h.session.Reset()
	utils.SuccessResponse(c, http.StatusOK, "Measurement state reset", newSessionView(h.session.Status()))
}

// StartListening starts the passive telemetry reader
// @Summary Start background telemetry
// @Tags Session
// @Accept json
// @Produce json
// @Param request body service.ListenRequest true "Reference speed"
// @Success 202 {object} utils.APIResponse{data=AttemptResponse}
// @Failure 400 {object} utils.APIResponse
// @Router /session/listen [post]
func (h *DeviceHandler) StartListening(c *gin.Context) {
	var req service.ListenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	id, err := h.session.StartListening(req)
	if err != nil {
		respondError(c, h.logger, "Failed to start listening", err)
		return
	}
	utils.SuccessResponse(c, http.StatusAccepted, "Listening started", AttemptResponse{AttemptID: id})
}

// SendCommand writes a single command byte to the board
// @Summary Send a command
// @Tags Session
// @Accept json
// @Produce json
// @Param request body CommandRequest true "Command name"
// @Success 200 {object} utils.APIResponse
// @Failure 400 {object} utils.APIResponse
// @Failure 409 {object} utils.APIResponse "Not connected or busy"
// @Router /session/commands [post]
func (h *DeviceHandler) SendCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	command, err := protocol.ParseCommand(req.Command)
	if err != nil {
		utils.ValidationErrorResponse(c, map[string]string{"command": err.Error()})
		return
	}

	if err := h.session.SendCommand(c.Request.Context(), command); err != nil {
		respondError(c, h.logger, "Failed to send command", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Command sent", gin.H{"command": command.String()})
}

// StartMeasurement starts a measurement attempt. With wait=true the request
// blocks until the attempt ends and returns the result.
// @Summary Measure the shutter
// @Tags Session
// @Accept json
// @Produce json
// @Param request body service.MeasurementRequest true "Reference speed and camera"
// @Param wait query bool false "Wait for the result"
// @Success 200 {object} utils.APIResponse{data=MeasurementReportView}
// @Success 202 {object} utils.APIResponse{data=AttemptResponse}
// @Failure 400 {object} utils.APIResponse
// @Failure 404 {object} utils.APIResponse "Camera not found"
// @Router /session/measurements [post]
func (h *DeviceHandler) StartMeasurement(c *gin.Context) {
	var req service.MeasurementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	wait, _ := strconv.ParseBool(c.DefaultQuery("wait", "false"))
	if !wait {
		id, err := h.session.StartMeasurement(c.Request.Context(), req)
		if err != nil {
			respondError(c, h.logger, "Failed to start measurement", err)
			return
		}
		utils.SuccessResponse(c, http.StatusAccepted, "Measurement started", AttemptResponse{AttemptID: id})
		return
	}

	report, err := h.session.Measure(c.Request.Context(), req)
	if err != nil {
		respondError(c, h.logger, "Measurement failed", err)
		return
	}

	thresholds := h.session.Status().Thresholds
	utils.SuccessResponse(c, http.StatusOK, "Measurement completed", MeasurementReportView{
		AttemptID:   report.AttemptID,
		Measurement: newMeasurementView(report.Measurement, thresholds),
		Stats:       report.Stats,
	})
}
