// internal/handler/discovery_handler.go
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shutter-service/internal/service"
	"shutter-service/internal/utils"
)

// DiscoveryHandler handles attached board discovery requests
type DiscoveryHandler struct {
	discoveryService *service.DiscoveryService
	logger           *utils.ServiceLogger
}

// NewDiscoveryHandler creates a new discovery handler
func NewDiscoveryHandler(discoveryService *service.DiscoveryService, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		discoveryService: discoveryService,
		logger:           utils.NewServiceLogger(logger, "discovery-handler"),
	}
}

// RegisterRoutes registers discovery routes
func (h *DiscoveryHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/discovery/scan", h.ScanDevices)
}

// ScanDevices lists the supported boards attached to the host
// @Summary Scan for attached boards
// @Description Enumerate USB descriptors and serial ports for supported measuring boards
// @Tags Discovery
// @Produce json
// @Param type query string false "Scan type" Enums(all, usb, serial) default(all)
// @Success 200 {object} utils.APIResponse{data=service.ScanResult} "Device scan completed"
// @Failure 400 {object} utils.APIResponse "Unknown scan type"
// @Router /discovery/scan [get]
func (h *DiscoveryHandler) ScanDevices(c *gin.Context) {
	result, err := h.discoveryService.ScanDevices(c.Request.Context(), c.DefaultQuery("type", "all"))
	if err != nil {
		respondError(c, h.logger, "Failed to scan devices", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Device scan completed", result)
}
