// internal/handler/errors.go
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"shutter-service/internal/protocol"
	"shutter-service/internal/repository"
	"shutter-service/internal/service"
	"shutter-service/internal/utils"
)

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	var (
		connectErr  *protocol.ConnectError
		transferErr *protocol.TransferError
	)

	switch {
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicate), errors.Is(err, protocol.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, protocol.ErrNotConnected):
		return http.StatusConflict
	case errors.As(err, &transferErr) && transferErr.Kind == protocol.NoOutEndpoint:
		return http.StatusConflict
	case errors.As(err, &connectErr):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// respondError logs err and writes the error envelope
func respondError(c *gin.Context, logger *utils.ServiceLogger, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(message, zap.Error(err), zap.String("request_id", utils.GetRequestID(c)))
	} else {
		logger.Debug(message, zap.Error(err), zap.String("request_id", utils.GetRequestID(c)))
	}
	utils.ErrorResponse(c, status, message, err)
}

// parseID reads a positive integer path parameter
func parseID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		utils.ValidationErrorResponse(c, map[string]string{name: "must be a positive integer"})
		return 0, false
	}
	return id, true
}
